// Package merge reconciles value host configurations contributed by different
// authors, typically business logic and UI code. Every property is merged
// under a conflict rule registered on the merge service.
package merge

// RuleKeyword is a built-in conflict resolution policy.
type RuleKeyword string

const (
	// Replace overwrites the destination when the values differ. Config
	// properties have no explicit null: a zero source value counts as unset and
	// leaves the destination alone, so Replace and ReplaceExceptNull merge
	// identically.
	Replace RuleKeyword = "replace"
	// ReplaceExceptNull ignores unset source values. It is kept as a keyword
	// of its own for rule tables written against it; see Replace.
	ReplaceExceptNull RuleKeyword = "replaceExceptNull"
	// NoChange keeps the destination value.
	NoChange RuleKeyword = "nochange"
	// Delete removes the property from the destination.
	Delete RuleKeyword = "delete"
	// ReplaceOrDelete replaces with set source values and deletes otherwise.
	ReplaceOrDelete RuleKeyword = "replaceOrDelete"
	// Locked is a permanent NoChange.
	Locked RuleKeyword = "locked"
)

// Identity describes what is being merged, for conflict handlers and logs.
type Identity struct {
	ValueHostName      string
	ErrorCode          string
	ContainingProperty string
}

// HandlerResult is returned by custom conflict handlers. When UseValue is set
// Value is assigned to the destination, otherwise Action is applied.
type HandlerResult struct {
	Action   RuleKeyword
	Value    interface{}
	UseValue bool
}

// UseAction returns a result applying action.
func UseAction(action RuleKeyword) HandlerResult {
	return HandlerResult{Action: action}
}

// UseValue returns a result assigning value.
func UseValue(value interface{}) HandlerResult {
	return HandlerResult{Value: value, UseValue: true}
}

// PropertyConflictHandler decides how one property of source is merged into
// destination.
type PropertyConflictHandler[T any] func(source, destination T, propertyName string, identity Identity) (HandlerResult, error)

// PropertyConflictRule is either a keyword or a handler. A handler takes
// precedence when both are set.
type PropertyConflictRule[T any] struct {
	Keyword RuleKeyword
	Handler PropertyConflictHandler[T]
}

// KeywordRule returns a rule applying keyword.
func KeywordRule[T any](keyword RuleKeyword) PropertyConflictRule[T] {
	return PropertyConflictRule[T]{Keyword: keyword}
}

// HandlerRule returns a rule delegating to handler.
func HandlerRule[T any](handler PropertyConflictHandler[T]) PropertyConflictRule[T] {
	return PropertyConflictRule[T]{Handler: handler}
}

// IsHandler reports whether the rule delegates to a handler.
func (r PropertyConflictRule[T]) IsHandler() bool {
	return r.Handler != nil
}

// permanent rules can not be replaced once registered.
func (r PropertyConflictRule[T]) permanent() bool {
	return r.IsHandler() || r.Keyword == Locked
}

func (r PropertyConflictRule[T]) String() string {
	if r.IsHandler() {
		return "handler"
	}
	return string(r.Keyword)
}
