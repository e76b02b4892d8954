package service

import "github.com/Nueylo/smartroad-inspector-ioqtoe/internal/model"

// ValidationScoreThreshold is the accumulated score at which a reported
// defect becomes validated.
const ValidationScoreThreshold = 5.0

// ScoreService holds the priority scoring rules. It keeps no state.
type ScoreService struct{}

func NewScoreService() *ScoreService {
	return &ScoreService{}
}

// InitialScore seeds a report's priority at submission:
//
//	score = reporter_weight * severity_multiplier
func (s *ScoreService) InitialScore(weight int, severity model.Severity) float64 {
	if weight < 1 {
		weight = WeightCitizen
	}
	return float64(weight * severity.Multiplier())
}

// InitialStatus is the status of every new report. The reporter's own
// weight never counts as a validation, whatever their role.
func (s *ScoreService) InitialStatus() model.DefectStatus {
	return model.StatusReported
}

// ThresholdReached reports whether score qualifies a report as validated.
func (s *ScoreService) ThresholdReached(score float64) bool {
	return score >= ValidationScoreThreshold
}

// EvaluateStatus applies the automatic transition after a score change.
// It only ever moves reported forward to validated.
func (s *ScoreService) EvaluateStatus(current model.DefectStatus, score float64) model.DefectStatus {
	if current == model.StatusReported && s.ThresholdReached(score) {
		return model.StatusValidated
	}
	return current
}
