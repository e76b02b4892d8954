package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Nueylo/smartroad-inspector-ioqtoe/internal/model"
)

// MaxDeltaEntries caps a single delta response; clients page by calling
// again with the returned timestamp.
const MaxDeltaEntries = 500

// SyncOverlap is how far behind the database read the next sync starts.
// A write stamped just before the read but committed just after it falls
// inside this window and is delivered by the following call.
const SyncOverlap = 5 * time.Second

// pgTimeStep is the resolution of a timestamptz.
const pgTimeStep = time.Microsecond

type SyncService struct {
	defects DefectRepository
}

func NewSyncService(defects DefectRepository) *SyncService {
	return &SyncService{defects: defects}
}

// DeltaSync returns defect changes at or after since. The returned
// timestamp comes from the database clock, never the app's.
func (s *SyncService) DeltaSync(ctx context.Context, since time.Time) (*model.SyncDeltaResponse, error) {
	defects, readAt, err := s.defects.ChangedSince(ctx, since, MaxDeltaEntries)
	if err != nil {
		return nil, fmt.Errorf("service.Sync.DeltaSync: %w", err)
	}
	if defects == nil {
		defects = []model.DefectReport{}
	}

	capped := len(defects) == MaxDeltaEntries
	return &model.SyncDeltaResponse{
		Defects:       defects,
		SyncTimestamp: nextSyncStamp(since, readAt, defects, capped).UTC().Format(time.RFC3339Nano),
		HasMore:       capped,
	}, nil
}

// nextSyncStamp picks where the following call starts. It never moves
// backwards past since. A full page resumes from its last row (the bound is
// inclusive, so rows sharing that timestamp are repeated, not lost) unless
// that row is within SyncOverlap of the read.
func nextSyncStamp(since, readAt time.Time, rows []model.DefectReport, capped bool) time.Time {
	horizon := readAt.Add(-SyncOverlap)

	if !capped {
		if horizon.Before(since) {
			return since
		}
		return horizon
	}

	last := rows[len(rows)-1].UpdatedAt
	stamp := last
	if horizon.Before(stamp) {
		stamp = horizon
	}
	if stamp.After(since) {
		return stamp
	}
	if last.After(since) {
		return last
	}

	// Every row of the page carries since itself; step past it or the
	// client would receive this page forever.
	log.Warn().Time("since", since).Int("rows", len(rows)).
		Msg("sync: full page shares one timestamp, skipping ahead")
	return since.Add(pgTimeStep)
}
