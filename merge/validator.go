package merge

import (
	"github.com/timzifer/valuehosts/config"
	"github.com/timzifer/valuehosts/errs"
	"github.com/timzifer/valuehosts/services"
)

// IdentifyHandler finds the destination validator that source conflicts with.
// It returns nil when source is new.
type IdentifyHandler func(source *config.ValidatorConfig, destinations []*config.ValidatorConfig, identity Identity) *config.ValidatorConfig

// ValidatorConfigMergeService merges the validator lists of two value host
// configs.
type ValidatorConfigMergeService struct {
	*ConfigMergeServiceBase[*config.ValidatorConfig]
	identify IdentifyHandler
}

// NewValidatorConfigMergeService creates the service with its default rules.
func NewValidatorConfigMergeService(svc *services.Services) *ValidatorConfigMergeService {
	s := &ValidatorConfigMergeService{ConfigMergeServiceBase: NewConfigMergeServiceBase[*config.ValidatorConfig](svc)}
	s.identify = s.IdentifyValidatorConflict
	s.rules["validatorType"] = KeywordRule[*config.ValidatorConfig](Locked)
	s.rules["conditionConfig"] = HandlerRule[*config.ValidatorConfig](s.HandleConditionConfigProperty)
	s.rules["enablerConfig"] = HandlerRule[*config.ValidatorConfig](s.HandleConditionConfigProperty)
	s.rules["conditionCreator"] = KeywordRule[*config.ValidatorConfig](NoChange)
	s.rules["enablerCreator"] = KeywordRule[*config.ValidatorConfig](NoChange)
	s.rules["errorCode"] = KeywordRule[*config.ValidatorConfig](NoChange)
	return s
}

// IdentifyHandler returns the active conflict identification.
func (s *ValidatorConfigMergeService) IdentifyHandler() IdentifyHandler {
	return s.identify
}

// SetIdentifyHandler replaces the conflict identification. nil restores
// IdentifyValidatorConflict.
func (s *ValidatorConfigMergeService) SetIdentifyHandler(handler IdentifyHandler) {
	if handler == nil {
		handler = s.IdentifyValidatorConflict
	}
	s.identify = handler
}

// IdentifyValidatorConflict returns the first destination whose resolved error
// code matches the one of source.
func (s *ValidatorConfigMergeService) IdentifyValidatorConflict(source *config.ValidatorConfig, destinations []*config.ValidatorConfig, _ Identity) *config.ValidatorConfig {
	code := config.ResolveErrorCode(source)
	for _, dst := range destinations {
		if dst != nil && config.SameErrorCode(code, config.ResolveErrorCode(dst)) {
			return dst
		}
	}
	return nil
}

// Merge reconciles the validators of source into destination. Conflicting
// validators are merged property by property, new ones are appended as
// copies.
func (s *ValidatorConfigMergeService) Merge(source, destination *config.ValueHostConfig) error {
	if source == nil || destination == nil {
		return errs.NewCodingError("validator merge requires source and destination")
	}
	for _, sourceValidator := range source.ValidatorConfigs {
		if sourceValidator == nil {
			continue
		}
		identity := Identity{ValueHostName: destination.Name, ErrorCode: config.ResolveErrorCode(sourceValidator)}
		matched := s.identify(sourceValidator, destination.ValidatorConfigs, identity)
		if matched == nil {
			destination.ValidatorConfigs = append(destination.ValidatorConfigs, sourceValidator.Clone())
			s.logDecision(infoLevel, "validatorConfigs", identity, "append", "validatorConfigs appended")
			continue
		}
		if err := s.MergeConfigs(sourceValidator, matched, identity); err != nil {
			return err
		}
	}
	return nil
}
