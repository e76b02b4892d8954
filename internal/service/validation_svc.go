package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/Nueylo/smartroad-inspector-ioqtoe/internal/metrics"
	"github.com/Nueylo/smartroad-inspector-ioqtoe/internal/model"
	"github.com/Nueylo/smartroad-inspector-ioqtoe/pkg/e"
)

type ValidationService struct {
	validations ValidationRepository
	users       UserRepository
	trust       *TrustService
	score       *ScoreService
	cache       *CacheService
}

func NewValidationService(validations ValidationRepository, users UserRepository, trust *TrustService, score *ScoreService, cache *CacheService) *ValidationService {
	return &ValidationService{
		validations: validations,
		users:       users,
		trust:       trust,
		score:       score,
		cache:       cache,
	}
}

// ApplyValidation applies one peer validation to a report and returns the
// updated copy. report itself is never modified. Each validation adds the
// validator's weight to the score and re-evaluates the status.
func (s *ValidationService) ApplyValidation(report *model.DefectReport, validatorID string, weight int) (*model.DefectReport, error) {
	if validatorID == "" {
		return nil, e.ErrNotAuthenticated
	}
	if validatorID == report.ReportedBy {
		return nil, e.ErrSelfValidation
	}
	if report.HasValidator(validatorID) {
		return nil, e.ErrAlreadyValidated
	}
	if report.Status.Terminal() {
		return nil, e.ErrReportClosed
	}
	if weight < 1 {
		weight = WeightCitizen
	}

	next := report.Clone()
	next.Validations = append(next.Validations, validatorID)
	next.Score += float64(weight)
	next.Status = s.score.EvaluateStatus(report.Status, next.Score)
	return next, nil
}

// Validate records validatorID's endorsement of a report. The check-and-add
// runs inside the repository transaction, so nothing is applied unless the
// store acknowledges the write.
func (s *ValidationService) Validate(ctx context.Context, reportID, validatorID string) (*model.ValidationResponse, error) {
	const op = "service.Validation.Validate"

	if validatorID == "" {
		metrics.Validations.WithLabelValues("unauthenticated").Inc()
		return nil, fmt.Errorf("%s: %w", op, e.ErrNotAuthenticated)
	}

	validator, err := s.users.FindByID(ctx, validatorID)
	if err != nil {
		if errors.Is(err, e.ErrNotFound) {
			metrics.Validations.WithLabelValues("unauthenticated").Inc()
			return nil, fmt.Errorf("%s: %w", op, e.ErrNotAuthenticated)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	weight := s.trust.EffectiveWeight(validator)

	var before model.DefectStatus
	updated, err := s.validations.Apply(ctx, reportID, validatorID, weight, func(r *model.DefectReport) (*model.DefectReport, error) {
		before = r.Status
		return s.ApplyValidation(r, validatorID, weight)
	})
	if err != nil {
		metrics.Validations.WithLabelValues(validationOutcome(err)).Inc()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	metrics.Validations.WithLabelValues("accepted").Inc()

	if updated.Status != before {
		metrics.StatusTransitions.WithLabelValues(string(before), string(updated.Status), "score").Inc()
		log.Info().
			Str("report_id", reportID).
			Str("from", string(before)).
			Str("to", string(updated.Status)).
			Float64("score", updated.Score).
			Msg("validation: report auto-validated")
	}

	if s.cache != nil {
		if err := s.cache.InvalidateDefect(ctx, reportID); err != nil {
			log.Warn().Err(err).Str("report_id", reportID).Msg("cache: invalidate defect error")
		}
	}

	return &model.ValidationResponse{
		Success:  true,
		NewScore: updated.Score,
		Status:   updated.Status,
		Weight:   weight,
	}, nil
}

// ListValidations returns the validations recorded for a report.
func (s *ValidationService) ListValidations(ctx context.Context, reportID string) ([]model.Validation, error) {
	return s.validations.ListByReport(ctx, reportID)
}

func validationOutcome(err error) string {
	switch {
	case errors.Is(err, e.ErrAlreadyValidated):
		return "already_validated"
	case errors.Is(err, e.ErrSelfValidation):
		return "self_validation"
	case errors.Is(err, e.ErrReportClosed):
		return "closed"
	case errors.Is(err, e.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
