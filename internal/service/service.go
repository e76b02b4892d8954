package service

import (
	"context"
	"time"

	"github.com/Nueylo/smartroad-inspector-ioqtoe/internal/model"
)

//go:generate mockgen -source=service.go -destination=mocks/mock.go

// DefectRepository persists defect reports.
type DefectRepository interface {
	Create(ctx context.Context, report *model.DefectReport) error
	FindByID(ctx context.Context, id string) (*model.DefectReport, error)
	List(ctx context.Context, filter model.DefectFilter) ([]model.DefectReport, int64, error)
	UpdateDimensions(ctx context.Context, report *model.DefectReport) error
	UpdateStatus(ctx context.Context, id string, from, to model.DefectStatus) (*model.DefectReport, error)
	ChangedSince(ctx context.Context, since time.Time, limit int) ([]model.DefectReport, time.Time, error)
	TopByScore(ctx context.Context, limit int) ([]model.RankedDefect, error)
	Stats(ctx context.Context) (*model.StatsResponse, error)
}

// ValidationRepository records validations. Apply runs fn against the
// locked report and persists its result atomically with the validation row.
type ValidationRepository interface {
	Apply(ctx context.Context, reportID, validatorID string, weight int,
		fn func(*model.DefectReport) (*model.DefectReport, error)) (*model.DefectReport, error)
	ListByReport(ctx context.Context, reportID string) ([]model.Validation, error)
}

// UserRepository persists user profiles.
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	UpdateRole(ctx context.Context, id string, role model.Role, weight int) (*model.User, error)
	Activity(ctx context.Context, id string) (reports, validations int, err error)
}

// SessionStore tracks revoked tokens and fans out session events.
type SessionStore interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
	Publish(ctx context.Context, event model.SessionEvent) error
	Subscribe(ctx context.Context, userID string) (<-chan model.SessionEvent, error)
}

// Geocoder turns coordinates into a human-readable address.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lon float64) (string, error)
}
