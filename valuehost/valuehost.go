// Package valuehost implements the runtime value holders of a form: static
// values, calculated values, validated inputs and validated model properties.
//
// Every mutation clones the instance state, applies the change to the clone,
// compares it with the live state and only commits and notifies on change.
package valuehost

import (
	"github.com/timzifer/valuehosts/config"
	"github.com/timzifer/valuehosts/services"
)

// ValueHost is the contract shared by all value host types.
type ValueHost interface {
	GetName() string
	GetLabel() string
	GetDataType() string
	GetValueHostType() config.ValueHostType
	GetConfig() *config.ValueHostConfig

	GetValue() interface{}
	SetValue(value interface{}, opts *SetValueOptions)
	SetValueToUndefined(opts *SetValueOptions)
	GetConversionErrorMessage() string

	IsEnabled() bool
	SetEnabled(enabled bool)
	IsChanged() bool
	GetChangeCounter() int

	GetInstanceState() *InstanceState
	UpdateInstanceState(updater func(state *InstanceState) error) (bool, error)
	SaveIntoInstanceState(key string, value interface{})
	GetFromInstanceState(key string) (interface{}, bool)

	Dispose()
}

// Manager is what value hosts need from their owner.
type Manager interface {
	Services() *services.Services
	ValueOf(name string) (interface{}, bool)
	GetValueHost(name string) (ValueHost, bool)
	NotifyValueHostInstanceStateChanged(vh ValueHost, state *InstanceState)
	NotifyValueChanged(vh ValueHost, oldValue interface{})
}

// Owner is held strongly by a manager and weakly by its value hosts, so hosts
// never keep a discarded manager alive.
type Owner struct {
	manager Manager
}

// NewOwner wraps m. The caller must keep the returned pointer reachable for as
// long as the value hosts are in use.
func NewOwner(m Manager) *Owner {
	return &Owner{manager: m}
}

// Manager returns the owning manager, or nil after Release.
func (o *Owner) Manager() Manager {
	if o == nil {
		return nil
	}
	return o.manager
}

// Release detaches the manager.
func (o *Owner) Release() {
	o.manager = nil
}
