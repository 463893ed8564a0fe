package valuehost

import (
	"fmt"
	"weak"

	"github.com/timzifer/valuehosts/errs"
)

// Accessor looks up value hosts by name and narrows them to the requested
// type.
type Accessor struct {
	owner weak.Pointer[Owner]
}

func NewAccessor(owner *Owner) *Accessor {
	return &Accessor{owner: weak.Make(owner)}
}

// Any returns the value host named name.
func (a *Accessor) Any(name string) (ValueHost, error) {
	m := a.owner.Value().Manager()
	if m == nil {
		return nil, errs.NewCodingError("value host accessor used after its manager was disposed")
	}
	vh, ok := m.GetValueHost(name)
	if !ok {
		return nil, fmt.Errorf("value host %q not found", name)
	}
	return vh, nil
}

func (a *Accessor) Input(name string) (InputHost, error) {
	return narrow(a, name, "Input", AsInputHost)
}

func (a *Accessor) Property(name string) (PropertyHost, error) {
	return narrow(a, name, "Property", AsPropertyHost)
}

func (a *Accessor) Static(name string) (StaticHost, error) {
	return narrow(a, name, "Static", AsStaticHost)
}

func (a *Accessor) Calc(name string) (CalcHost, error) {
	return narrow(a, name, "Calc", AsCalcHost)
}

func (a *Accessor) Validators(name string) (ValidatorsHost, error) {
	return narrow(a, name, "validators", AsValidatorsHost)
}

func narrow[T any](a *Accessor, name, kind string, as func(ValueHost) (T, bool)) (T, error) {
	var zero T
	vh, err := a.Any(name)
	if err != nil {
		return zero, err
	}
	h, ok := as(vh)
	if !ok {
		return zero, fmt.Errorf("value host %q is %s, not a %s value host", name, vh.GetValueHostType(), kind)
	}
	return h, nil
}
