package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Nueylo/smartroad-inspector-ioqtoe/internal/metrics"
	"github.com/Nueylo/smartroad-inspector-ioqtoe/internal/model"
	"github.com/Nueylo/smartroad-inspector-ioqtoe/pkg/e"
)

// AdminService holds the administrative actions: forced status
// transitions, role changes and the triage export.
type AdminService struct {
	defects  DefectRepository
	users    UserRepository
	trust    *TrustService
	cache    *CacheService
	sessions SessionStore
}

func NewAdminService(defects DefectRepository, users UserRepository, trust *TrustService, cache *CacheService, sessions SessionStore) *AdminService {
	return &AdminService{
		defects:  defects,
		users:    users,
		trust:    trust,
		cache:    cache,
		sessions: sessions,
	}
}

// requireAdmin checks the stored role, not the one carried by the token,
// so a demotion takes effect immediately.
func (s *AdminService) requireAdmin(ctx context.Context, actorID string) error {
	if actorID == "" {
		return e.ErrNotAuthenticated
	}
	actor, err := s.users.FindByID(ctx, actorID)
	if err != nil {
		if errors.Is(err, e.ErrNotFound) {
			return e.ErrNotAuthenticated
		}
		return err
	}
	if model.ParseRole(string(actor.Role)) != model.RoleAdmin {
		return e.ErrForbidden
	}
	return nil
}

// ChangeStatus moves a report along its lifecycle on behalf of an admin.
func (s *AdminService) ChangeStatus(ctx context.Context, adminID, reportID, status string) (*model.DefectReport, error) {
	const op = "service.Admin.ChangeStatus"

	if err := s.requireAdmin(ctx, adminID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	to := model.DefectStatus(status)
	if !model.ValidStatuses[to] {
		return nil, fmt.Errorf("%s: %w", op, e.Input("status", "is not a known status"))
	}

	report, err := s.defects.FindByID(ctx, reportID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	from := report.Status
	if !model.CanTransition(from, to) {
		return nil, fmt.Errorf("%s: %s -> %s: %w", op, from, to, e.ErrInvalidTransition)
	}

	updated, err := s.defects.UpdateStatus(ctx, reportID, from, to)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	metrics.StatusTransitions.WithLabelValues(string(from), string(to), "admin").Inc()

	if s.cache != nil {
		if err := s.cache.InvalidateDefect(ctx, reportID); err != nil {
			log.Warn().Err(err).Str("report_id", reportID).Msg("cache: invalidate defect error")
		}
		if err := s.cache.UpdateRanking(ctx, updated); err != nil {
			log.Warn().Err(err).Str("report_id", reportID).Msg("cache: ranking update error")
		}
	}

	log.Info().
		Str("report_id", reportID).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("admin: status changed")

	return updated, nil
}

// ChangeRole assigns a new canonical role to a user and recomputes the
// user's weight.
func (s *AdminService) ChangeRole(ctx context.Context, adminID, userID, role string) (*model.User, error) {
	const op = "service.Admin.ChangeRole"

	if err := s.requireAdmin(ctx, adminID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !model.KnownRole(role) {
		return nil, fmt.Errorf("%s: %w", op, e.Input("role", "must be citizen, approved or admin"))
	}

	r := model.Role(role)
	user, err := s.users.UpdateRole(ctx, userID, r, s.trust.WeightFor(r))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if s.sessions != nil {
		event := model.SessionEvent{
			Type:   model.SessionRoleChanged,
			UserID: user.ID,
			Role:   user.Role,
			At:     time.Now().UTC(),
		}
		if err := s.sessions.Publish(ctx, event); err != nil {
			log.Warn().Err(err).Str("user_id", user.ID).Msg("sessions: publish role change error")
		}
	}

	return user, nil
}

var exportHeader = []string{
	"id", "status", "severity", "type", "score", "validations",
	"latitude", "longitude", "address",
	"length_cm", "width_cm", "depth_cm", "surface_cm2",
	"reported_at",
}

// Export writes all open reports as CSV, highest priority first.
func (s *AdminService) Export(ctx context.Context, adminID string, w io.Writer) error {
	const op = "service.Admin.Export"

	if err := s.requireAdmin(ctx, adminID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	filter := model.DefectFilter{
		Statuses: []model.DefectStatus{model.StatusReported, model.StatusValidated, model.StatusInProgress},
		SortBy:   model.SortPriority,
		Page:     1,
		Limit:    MaxPageLimit,
	}
	for {
		page, total, err := s.defects.List(ctx, filter)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		for i := range page {
			if err := cw.Write(exportRow(&page[i])); err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}
		}
		if len(page) < filter.Limit || int64(filter.Page*filter.Limit) >= total {
			break
		}
		filter.Page++
	}

	cw.Flush()
	return cw.Error()
}

func exportRow(d *model.DefectReport) []string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	return []string{
		d.ID,
		string(d.Status),
		string(d.Severity),
		string(d.Type),
		f(d.Score),
		strconv.Itoa(len(d.Validations)),
		f(d.Location.Latitude),
		f(d.Location.Longitude),
		d.Location.Address,
		f(d.Dimensions.Length),
		f(d.Dimensions.Width),
		f(d.Dimensions.Depth),
		f(d.Dimensions.Surface),
		d.ReportedAt.UTC().Format(time.RFC3339),
	}
}
