package merge

import (
	"github.com/rs/zerolog"

	"github.com/timzifer/valuehosts/config"
	"github.com/timzifer/valuehosts/errs"
	"github.com/timzifer/valuehosts/services"
)

const infoLevel = zerolog.InfoLevel

// ValidatorMerger merges the validator lists of two value host configs.
type ValidatorMerger interface {
	Merge(source, destination *config.ValueHostConfig) error
}

// ValueHostConfigMergeService merges value host configs. Validator lists are
// delegated to a ValidatorMerger.
type ValueHostConfigMergeService struct {
	*ConfigMergeServiceBase[*config.ValueHostConfig]
	validators ValidatorMerger
}

// NewValueHostConfigMergeService creates the service with its default rules.
// A nil validators uses a ValidatorConfigMergeService on the same container.
func NewValueHostConfigMergeService(svc *services.Services, validators ValidatorMerger) *ValueHostConfigMergeService {
	base := NewConfigMergeServiceBase[*config.ValueHostConfig](svc)
	if validators == nil {
		validators = NewValidatorConfigMergeService(base.services)
	}
	s := &ValueHostConfigMergeService{ConfigMergeServiceBase: base, validators: validators}
	s.rules["name"] = KeywordRule[*config.ValueHostConfig](Locked)
	s.rules["validatorConfigs"] = KeywordRule[*config.ValueHostConfig](Locked)
	s.rules["valueHostType"] = HandlerRule[*config.ValueHostConfig](s.mergeValueHostType)
	s.rules["dataType"] = KeywordRule[*config.ValueHostConfig](ReplaceExceptNull)
	s.rules["enablerConfig"] = HandlerRule[*config.ValueHostConfig](s.HandleConditionConfigProperty)
	s.rules["enablerCreator"] = KeywordRule[*config.ValueHostConfig](NoChange)
	return s
}

// ValidatorMerger returns the service merging validator lists.
func (s *ValueHostConfigMergeService) ValidatorMerger() ValidatorMerger {
	return s.validators
}

// Merge merges source into destination when both carry the same name.
func (s *ValueHostConfigMergeService) Merge(source, destination *config.ValueHostConfig) error {
	if source == nil || destination == nil {
		return errs.NewCodingError("value host merge requires source and destination")
	}
	if source.Name != destination.Name {
		return nil
	}
	if err := s.MergeConfigs(source, destination, Identity{ValueHostName: destination.Name}); err != nil {
		return err
	}
	return s.validators.Merge(source, destination)
}

// IdentifyValueHostConflict returns the destination with the same name as
// source, or nil.
func (s *ValueHostConfigMergeService) IdentifyValueHostConflict(source *config.ValueHostConfig, destinations []*config.ValueHostConfig) *config.ValueHostConfig {
	if source == nil {
		return nil
	}
	for _, dst := range destinations {
		if dst != nil && dst.Name == source.Name {
			return dst
		}
	}
	return nil
}

// MergeCollections merges every source into its conflicting destination and
// appends copies of the remaining sources.
func (s *ValueHostConfigMergeService) MergeCollections(sources, destinations []*config.ValueHostConfig) ([]*config.ValueHostConfig, error) {
	for _, source := range sources {
		if source == nil {
			continue
		}
		if matched := s.IdentifyValueHostConflict(source, destinations); matched != nil {
			if err := s.Merge(source, matched); err != nil {
				return destinations, err
			}
			continue
		}
		destinations = append(destinations, source.Clone())
		s.logDecision(infoLevel, "valueHosts", Identity{ValueHostName: source.Name}, "append", "valueHost appended")
	}
	return destinations, nil
}

// mergeValueHostType keeps the destination type when either side is Static or
// Calc and the types differ; value hosts without validators are never turned
// into validating ones or back.
func (s *ValueHostConfigMergeService) mergeValueHostType(source, destination *config.ValueHostConfig, propertyName string, identity Identity) (HandlerResult, error) {
	src, dst := source.ValueHostType, destination.ValueHostType
	switch {
	case src == "":
		return UseAction(NoChange), nil
	case dst == "" || src == dst:
		return UseAction(Replace), nil
	case !dst.Validates() || !src.Validates():
		s.logEvent(zerolog.WarnLevel, propertyName, identity).
			Msgf("Will not change ValueHostType from %s to %s.", dst, src)
		return UseAction(NoChange), nil
	default:
		return UseAction(Replace), nil
	}
}
