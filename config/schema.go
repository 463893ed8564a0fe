package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/parser"
)

const documentSchema = `
#Condition: {
	conditionType:     string & !=""
	category?:         string
	valueHostName?:    string
	expression?:       string
	conditionConfigs?: [...#Condition]
	settings?:         {...}
}

#Validator: {
	validatorType?:      string
	errorCode?:          string
	conditionConfig?:    #Condition
	enablerConfig?:      #Condition
	severity?:           "Error" | "Severe" | "Warning"
	errorMessage?:       string
	errorMessagel10n?:   string
	summaryMessage?:     string
	summaryMessagel10n?: string
	enabled?:            bool
}

#ValueHost: {
	name:              string & !=""
	valueHostType?:    "Static" | "Calc" | "Input" | "Property"
	dataType?:         string
	label?:            string
	labell10n?:        string
	initialValue?:     _
	initialEnabled?:   bool
	enablerConfig?:    #Condition
	validatorConfigs?: [...#Validator]
	propertyName?:     string
	parserLookupKey?:  string
	calcExpression?:   string
}

#Loki: {
	enabled?: bool
	url?:     string
	labels?: {[string]: string}
}

#Logging: {
	level?:  "trace" | "debug" | "info" | "warn" | "error" | "disabled"
	format?: "json" | "text"
	loki?:   #Loki
}

#Telemetry: {
	enabled?:  bool
	provider?: "prometheus" | "noop"
}

#Document: {
	valueHosts?: [...#ValueHost]
	culture?:    string
	localization?: {[string]: {[string]: string}}
	logging?:   #Logging
	telemetry?: #Telemetry
}
`

var (
	schemaMu         sync.RWMutex
	schemaExtensions = make(map[string]string)
)

// RegisterSchemaExtension adds CUE declarations to the document schema, e.g.
// to restrict the allowed data types of a deployment. Declarations of the
// schema definitions are combined with the built-in ones.
func RegisterSchemaExtension(name, src string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("schema extension name must not be empty")
	}
	file, err := parser.ParseFile(name, src)
	if err != nil {
		return fmt.Errorf("parse schema extension %s: %w", name, err)
	}
	if len(file.Imports) > 0 || file.PackageName() != "" {
		return fmt.Errorf("schema extension %s must not declare a package or imports", name)
	}
	schemaMu.Lock()
	defer schemaMu.Unlock()
	if _, exists := schemaExtensions[name]; exists {
		return fmt.Errorf("schema extension %s already registered", name)
	}
	schemaExtensions[name] = src
	return nil
}

// ResetSchemaExtensionsForTest clears the extension registry. This helper is
// intended for tests only.
func ResetSchemaExtensionsForTest() {
	schemaMu.Lock()
	schemaExtensions = make(map[string]string)
	schemaMu.Unlock()
}

func schemaSource() string {
	schemaMu.RLock()
	defer schemaMu.RUnlock()
	names := make([]string, 0, len(schemaExtensions))
	for name := range schemaExtensions {
		names = append(names, name)
	}
	sort.Strings(names)
	var b strings.Builder
	b.WriteString(documentSchema)
	for _, name := range names {
		b.WriteString("\n// ")
		b.WriteString(name)
		b.WriteString("\n")
		b.WriteString(schemaExtensions[name])
		b.WriteString("\n")
	}
	return b.String()
}

// validateDocument checks a decoded document tree against the schema.
func validateDocument(raw map[string]interface{}) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource(), cue.Filename("document.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile document schema: %w", err)
	}

	def := schema.LookupPath(cue.ParsePath("#Document"))
	if err := def.Err(); err != nil {
		return fmt.Errorf("lookup document schema: %w", err)
	}
	data := ctx.Encode(raw)
	if err := data.Err(); err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	if err := def.Unify(data).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("document does not match schema: %s", strings.TrimSpace(cueerrors.Details(err, nil)))
	}
	return nil
}
