package service_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"

	"github.com/Nueylo/smartroad-inspector-ioqtoe/internal/model"
	"github.com/Nueylo/smartroad-inspector-ioqtoe/internal/service"
	mock_service "github.com/Nueylo/smartroad-inspector-ioqtoe/internal/service/mocks"
	"github.com/Nueylo/smartroad-inspector-ioqtoe/pkg/e"
)

var (
	adminUser   = &model.User{ID: "root", Role: model.RoleAdmin, Weight: 10}
	citizenUser = &model.User{ID: "alice", Role: model.RoleCitizen, Weight: 1}
)

func TestAdminService_ChangeStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		from    model.DefectStatus
		to      string
		wantErr error
	}{
		{"reported to validated", model.StatusReported, "validated", nil},
		{"validated to in progress", model.StatusValidated, "in_progress", nil},
		{"in progress to resolved", model.StatusInProgress, "resolved", nil},
		{"reported to rejected", model.StatusReported, "rejected", nil},
		{"skip to resolved", model.StatusReported, "resolved", e.ErrInvalidTransition},
		{"backward", model.StatusInProgress, "validated", e.ErrInvalidTransition},
		{"from terminal", model.StatusResolved, "rejected", e.ErrInvalidTransition},
		{"unknown status", model.StatusReported, "archived", e.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			defects := mock_service.NewMockDefectRepository(ctrl)
			users := mock_service.NewMockUserRepository(ctrl)

			users.EXPECT().FindByID(gomock.Any(), "root").Return(adminUser, nil)

			report := &model.DefectReport{ID: "report-1", Status: tt.from, Score: 8}
			defects.EXPECT().FindByID(gomock.Any(), "report-1").Return(report, nil).MaxTimes(1)
			if tt.wantErr == nil {
				to := model.DefectStatus(tt.to)
				defects.EXPECT().
					UpdateStatus(gomock.Any(), "report-1", tt.from, to).
					Return(&model.DefectReport{ID: "report-1", Status: to, Score: 8}, nil)
			}

			svc := service.NewAdminService(defects, users, service.NewTrustService(), nil, nil)
			got, err := svc.ChangeStatus(context.Background(), "root", "report-1", tt.to)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if string(got.Status) != tt.to {
				t.Errorf("status = %q, want %q", got.Status, tt.to)
			}
		})
	}
}

func TestAdminService_ChangeStatus_RequiresStoredAdminRole(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		actor   *model.User
		userErr error
		want    error
	}{
		{"citizen", citizenUser, nil, e.ErrForbidden},
		{"approved", &model.User{ID: "alice", Role: model.RoleApproved}, nil, e.ErrForbidden},
		{"deleted account", nil, e.ErrNotFound, e.ErrNotAuthenticated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			defects := mock_service.NewMockDefectRepository(ctrl)
			users := mock_service.NewMockUserRepository(ctrl)
			users.EXPECT().FindByID(gomock.Any(), "alice").Return(tt.actor, tt.userErr)

			svc := service.NewAdminService(defects, users, service.NewTrustService(), nil, nil)
			_, err := svc.ChangeStatus(context.Background(), "alice", "report-1", "validated")
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestAdminService_ChangeStatus_ConcurrentUpdate(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	defects := mock_service.NewMockDefectRepository(ctrl)
	users := mock_service.NewMockUserRepository(ctrl)
	users.EXPECT().FindByID(gomock.Any(), "root").Return(adminUser, nil)
	defects.EXPECT().FindByID(gomock.Any(), "report-1").Return(&model.DefectReport{ID: "report-1", Status: model.StatusReported}, nil)
	defects.EXPECT().
		UpdateStatus(gomock.Any(), "report-1", model.StatusReported, model.StatusValidated).
		Return(nil, e.ErrConflict)

	svc := service.NewAdminService(defects, users, service.NewTrustService(), nil, nil)
	_, err := svc.ChangeStatus(context.Background(), "root", "report-1", "validated")
	if !errors.Is(err, e.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}

func TestAdminService_ChangeRole(t *testing.T) {
	t.Parallel()

	tests := []struct {
		role       string
		wantWeight int
		wantErr    error
	}{
		{"citizen", 1, nil},
		{"approved", 5, nil},
		{"admin", 10, nil},
		{"delegate", 0, e.ErrInvalidInput},
		{"", 0, e.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			users := mock_service.NewMockUserRepository(ctrl)
			sessions := mock_service.NewMockSessionStore(ctrl)

			users.EXPECT().FindByID(gomock.Any(), "root").Return(adminUser, nil)
			if tt.wantErr == nil {
				role := model.Role(tt.role)
				users.EXPECT().
					UpdateRole(gomock.Any(), "bob", role, tt.wantWeight).
					Return(&model.User{ID: "bob", Role: role, Weight: tt.wantWeight}, nil)
				sessions.EXPECT().
					Publish(gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, ev model.SessionEvent) error {
						if ev.Type != model.SessionRoleChanged || ev.UserID != "bob" || ev.Role != role {
							t.Errorf("event = %+v", ev)
						}
						return nil
					})
			}

			svc := service.NewAdminService(nil, users, service.NewTrustService(), nil, sessions)
			got, err := svc.ChangeRole(context.Background(), "root", "bob", tt.role)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if got.Weight != tt.wantWeight {
				t.Errorf("weight = %d, want %d", got.Weight, tt.wantWeight)
			}
		})
	}
}

func TestAdminService_Export(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	defects := mock_service.NewMockDefectRepository(ctrl)
	users := mock_service.NewMockUserRepository(ctrl)
	users.EXPECT().FindByID(gomock.Any(), "root").Return(adminUser, nil)

	reported := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	defects.EXPECT().
		List(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, f model.DefectFilter) ([]model.DefectReport, int64, error) {
			if f.SortBy != model.SortPriority || len(f.Statuses) != 3 {
				t.Errorf("filter = %+v", f)
			}
			return []model.DefectReport{{
				ID:          "report-1",
				Status:      model.StatusValidated,
				Severity:    model.SeverityHigh,
				Type:        model.TypePothole,
				Score:       13,
				Validations: []string{"bob", "carol"},
				Location:    model.Location{Latitude: 48.8566, Longitude: 2.3522, Address: "Rue de Rivoli, Paris"},
				Dimensions:  model.NewDimensions(50, 40, 8),
				ReportedAt:  reported,
			}}, 1, nil
		})

	var buf bytes.Buffer
	svc := service.NewAdminService(defects, users, service.NewTrustService(), nil, nil)
	if err := svc.Export(context.Background(), "root", &buf); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want header + 1", len(rows))
	}
	if rows[0][0] != "id" || rows[0][len(rows[0])-1] != "reported_at" {
		t.Errorf("header = %v", rows[0])
	}
	want := []string{
		"report-1", "validated", "high", "pothole", "13", "2",
		"48.8566", "2.3522", "Rue de Rivoli, Paris",
		"50", "40", "8", "2000", "2026-03-14T09:30:00Z",
	}
	for i, v := range want {
		if rows[1][i] != v {
			t.Errorf("column %s = %q, want %q", rows[0][i], rows[1][i], v)
		}
	}
}

func TestAdminService_Export_Forbidden(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	users := mock_service.NewMockUserRepository(ctrl)
	users.EXPECT().FindByID(gomock.Any(), "alice").Return(citizenUser, nil)

	var buf bytes.Buffer
	svc := service.NewAdminService(nil, users, service.NewTrustService(), nil, nil)
	if err := svc.Export(context.Background(), "alice", &buf); !errors.Is(err, e.ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
	if buf.Len() != 0 {
		t.Errorf("wrote %d bytes before authorization", buf.Len())
	}
}
