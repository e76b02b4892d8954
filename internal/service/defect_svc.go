package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Nueylo/smartroad-inspector-ioqtoe/internal/metrics"
	"github.com/Nueylo/smartroad-inspector-ioqtoe/internal/model"
	"github.com/Nueylo/smartroad-inspector-ioqtoe/pkg/e"
)

// Listing limits.
const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

const geocodeTimeout = 3 * time.Second

type DefectService struct {
	defects  DefectRepository
	users    UserRepository
	trust    *TrustService
	score    *ScoreService
	cache    *CacheService
	geocoder Geocoder
}

// NewDefectService creates a DefectService. geocoder may be nil, in which
// case reports without an address keep an empty one.
func NewDefectService(defects DefectRepository, users UserRepository, trust *TrustService, score *ScoreService, cache *CacheService, geocoder Geocoder) *DefectService {
	return &DefectService{
		defects:  defects,
		users:    users,
		trust:    trust,
		score:    score,
		cache:    cache,
		geocoder: geocoder,
	}
}

// Submit creates a new defect report on behalf of reporterID. Inputs are
// checked before anything reaches the store.
func (s *DefectService) Submit(ctx context.Context, reporterID string, req *model.CreateDefectRequest) (*model.DefectReport, error) {
	const op = "service.Defect.Submit"

	if reporterID == "" {
		return nil, fmt.Errorf("%s: %w", op, e.ErrNotAuthenticated)
	}
	if err := checkCreateRequest(req); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	reporter, err := s.users.FindByID(ctx, reporterID)
	if err != nil {
		if errors.Is(err, e.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, e.ErrNotAuthenticated)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	dims := model.NewDimensions(*req.Length, *req.Width, *req.Depth)
	severity := model.ClassifySeverity(dims.Depth)
	weight := s.trust.EffectiveWeight(reporter)

	report := &model.DefectReport{
		Location: model.Location{
			Latitude:  *req.Latitude,
			Longitude: *req.Longitude,
			Address:   strings.TrimSpace(req.Address),
		},
		Dimensions:  dims,
		Type:        model.DefectType(req.Type),
		Severity:    severity,
		Description: strings.TrimSpace(req.Description),
		Photos:      cleanPhotos(req.Photos),
		ReportedBy:  reporter.ID,
		Validations: []string{},
		Score:       s.score.InitialScore(weight, severity),
		Status:      s.score.InitialStatus(),
	}

	if report.Location.Address == "" && s.geocoder != nil {
		report.Location.Address = s.lookupAddress(ctx, report.Location.Latitude, report.Location.Longitude)
	}

	if err := s.defects.Create(ctx, report); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	metrics.DefectsSubmitted.WithLabelValues(string(report.Severity)).Inc()

	if s.cache != nil {
		if err := s.cache.UpdateRanking(ctx, report); err != nil {
			log.Warn().Err(err).Str("report_id", report.ID).Msg("cache: ranking update error")
		}
	}

	log.Info().
		Str("report_id", report.ID).
		Str("severity", string(report.Severity)).
		Float64("score", report.Score).
		Msg("defect: submitted")

	return report, nil
}

// lookupAddress is best effort: failures are logged and yield "".
func (s *DefectService) lookupAddress(ctx context.Context, lat, lon float64) string {
	ctx, cancel := context.WithTimeout(ctx, geocodeTimeout)
	defer cancel()

	addr, err := s.geocoder.ReverseGeocode(ctx, lat, lon)
	if err != nil {
		log.Warn().Err(err).Msg("defect: reverse geocode failed")
		return ""
	}
	return model.ClampAddress(addr)
}

// cleanPhotos trims photo references and drops blank ones. A report
// without photos stores nil.
func cleanPhotos(refs []string) []string {
	var out []string
	for _, ref := range refs {
		if ref = strings.TrimSpace(ref); ref != "" {
			out = append(out, ref)
		}
	}
	return out
}

func checkCreateRequest(req *model.CreateDefectRequest) error {
	if req == nil {
		return e.Input("body", "is required")
	}
	if req.Type == "" {
		return e.Input("type", "is required")
	}
	if !model.ValidDefectTypes[model.DefectType(req.Type)] {
		return e.Input("type", "is not a known defect type")
	}
	if req.Latitude == nil || req.Longitude == nil {
		return e.Input("location", "is required")
	}
	if err := CheckCoordinates(*req.Latitude, *req.Longitude); err != nil {
		return err
	}
	if req.Length == nil || req.Width == nil || req.Depth == nil {
		return e.Input("dimensions", "length, width and depth are required")
	}
	if *req.Length < 0 || *req.Width < 0 || *req.Depth < 0 {
		return e.Input("dimensions", "must not be negative")
	}
	if strings.TrimSpace(req.Description) == "" {
		return e.Input("description", "is required")
	}
	return nil
}

// CheckCoordinates rejects latitudes outside [-90,90] and longitudes
// outside [-180,180].
func CheckCoordinates(lat, lon float64) error {
	if lat < -90 || lat > 90 {
		return e.Input("latitude", "must be between -90 and 90")
	}
	if lon < -180 || lon > 180 {
		return e.Input("longitude", "must be between -180 and 180")
	}
	return nil
}

// Get returns a report by id, consulting the cache first.
func (s *DefectService) Get(ctx context.Context, id string) (*model.DefectReport, error) {
	if s.cache != nil {
		cached, err := s.cache.GetDefect(ctx, id)
		if err != nil {
			log.Warn().Err(err).Str("report_id", id).Msg("cache: get defect error")
		} else if cached != nil {
			return cached, nil
		}
	}

	report, err := s.defects.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetDefect(ctx, report); err != nil {
			log.Warn().Err(err).Str("report_id", id).Msg("cache: set defect error")
		}
	}
	return report, nil
}

// List returns one page of reports matching filter.
func (s *DefectService) List(ctx context.Context, filter model.DefectFilter) (*model.DefectListResponse, error) {
	filter = NormalizeFilter(filter)

	defects, total, err := s.defects.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if defects == nil {
		defects = []model.DefectReport{}
	}

	return &model.DefectListResponse{
		Defects: defects,
		Page:    filter.Page,
		Limit:   filter.Limit,
		Total:   total,
	}, nil
}

// NormalizeFilter applies paging defaults and bounds.
func NormalizeFilter(f model.DefectFilter) model.DefectFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	f.Limit = clampLimit(f.Limit)
	if f.SortBy != model.SortPriority {
		f.SortBy = model.SortRecent
	}
	return f
}

func clampLimit(limit int) int {
	if limit < 1 {
		return DefaultPageLimit
	}
	if limit > MaxPageLimit {
		return MaxPageLimit
	}
	return limit
}

// Ranking returns the open reports with the highest priority score.
func (s *DefectService) Ranking(ctx context.Context, limit int) ([]model.RankedDefect, error) {
	limit = clampLimit(limit)

	if s.cache != nil {
		ranked, ok, err := s.cache.TopRanking(ctx, limit)
		if err != nil {
			log.Warn().Err(err).Msg("cache: ranking read error, falling back to database")
		} else if ok {
			return ranked, nil
		}
	}

	ranked, err := s.defects.TopByScore(ctx, limit)
	if err != nil {
		return nil, err
	}
	if ranked == nil {
		ranked = []model.RankedDefect{}
	}
	return ranked, nil
}

// Resize replaces a report's dimensions. Only the reporter or an admin may
// do so, and only while the report is open. The score is left unchanged.
func (s *DefectService) Resize(ctx context.Context, actorID, id string, req *model.ResizeDefectRequest) (*model.DefectReport, error) {
	const op = "service.Defect.Resize"

	if actorID == "" {
		return nil, fmt.Errorf("%s: %w", op, e.ErrNotAuthenticated)
	}
	if req == nil || req.Length == nil || req.Width == nil || req.Depth == nil {
		return nil, fmt.Errorf("%s: %w", op, e.Input("dimensions", "length, width and depth are required"))
	}
	if *req.Length < 0 || *req.Width < 0 || *req.Depth < 0 {
		return nil, fmt.Errorf("%s: %w", op, e.Input("dimensions", "must not be negative"))
	}

	report, err := s.defects.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if report.ReportedBy != actorID {
		actor, err := s.users.FindByID(ctx, actorID)
		if err != nil {
			if errors.Is(err, e.ErrNotFound) {
				return nil, fmt.Errorf("%s: %w", op, e.ErrNotAuthenticated)
			}
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if model.ParseRole(string(actor.Role)) != model.RoleAdmin {
			return nil, fmt.Errorf("%s: %w", op, e.ErrForbidden)
		}
	}
	if report.Status.Terminal() {
		return nil, fmt.Errorf("%s: %w", op, e.ErrReportClosed)
	}

	updated := report.Clone()
	updated.Resize(*req.Length, *req.Width, *req.Depth)
	if err := s.defects.UpdateDimensions(ctx, updated); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if s.cache != nil {
		if err := s.cache.InvalidateDefect(ctx, id); err != nil {
			log.Warn().Err(err).Str("report_id", id).Msg("cache: invalidate defect error")
		}
	}
	return updated, nil
}

// Stats returns platform-wide counters. They are recomputed at most once
// per StatsCacheTTL when Redis is available.
func (s *DefectService) Stats(ctx context.Context) (*model.StatsResponse, error) {
	if s.cache != nil {
		cached, err := s.cache.GetStats(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("cache: get stats error")
		} else if cached != nil {
			return cached, nil
		}
	}

	stats, err := s.defects.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("service.Defect.Stats: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.SetStats(ctx, stats); err != nil {
			log.Warn().Err(err).Msg("cache: set stats error")
		}
	}
	return stats, nil
}
