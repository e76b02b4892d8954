package service_test

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/golang/mock/gomock"

	"github.com/Nueylo/smartroad-inspector-ioqtoe/internal/model"
	"github.com/Nueylo/smartroad-inspector-ioqtoe/internal/service"
	mock_service "github.com/Nueylo/smartroad-inspector-ioqtoe/internal/service/mocks"
	"github.com/Nueylo/smartroad-inspector-ioqtoe/pkg/e"
)

// --- helpers ---

func f64ptr(v float64) *float64 { return &v }

func validCreateRequest() *model.CreateDefectRequest {
	return &model.CreateDefectRequest{
		Latitude:    f64ptr(48.8566),
		Longitude:   f64ptr(2.3522),
		Length:      f64ptr(50),
		Width:       f64ptr(40),
		Depth:       f64ptr(8),
		Type:        string(model.TypePothole),
		Description: "Deep hole in the right lane",
	}
}

func newDefectService(defects service.DefectRepository, users service.UserRepository, geocoder service.Geocoder) *service.DefectService {
	return service.NewDefectService(defects, users, service.NewTrustService(), service.NewScoreService(), nil, geocoder)
}

// --- Submit ---

func TestDefectService_Submit_CitizenHighSeverity(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	defects := mock_service.NewMockDefectRepository(ctrl)
	users := mock_service.NewMockUserRepository(ctrl)

	users.EXPECT().
		FindByID(gomock.Any(), "alice").
		Return(&model.User{ID: "alice", Role: model.RoleCitizen, Weight: 1}, nil).
		Times(1)

	var stored *model.DefectReport
	defects.EXPECT().
		Create(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, r *model.DefectReport) error {
			stored = r
			r.ID = "report-1"
			return nil
		}).
		Times(1)

	svc := newDefectService(defects, users, nil)

	got, err := svc.Submit(context.Background(), "alice", validCreateRequest())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got != stored {
		t.Fatalf("returned report is not the stored one")
	}
	if got.Severity != model.SeverityHigh {
		t.Errorf("severity = %q, want high", got.Severity)
	}
	if got.Score != 3 {
		t.Errorf("score = %.0f, want 3", got.Score)
	}
	if got.Status != model.StatusReported {
		t.Errorf("status = %q, want reported", got.Status)
	}
	if got.Dimensions.Surface != 2000 {
		t.Errorf("surface = %.0f, want 2000", got.Dimensions.Surface)
	}
	if got.ReportedBy != "alice" || len(got.Validations) != 0 {
		t.Errorf("unexpected reporter/validations: %q %v", got.ReportedBy, got.Validations)
	}
}

func TestDefectService_Submit_AdminReportStaysReported(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	defects := mock_service.NewMockDefectRepository(ctrl)
	users := mock_service.NewMockUserRepository(ctrl)

	users.EXPECT().
		FindByID(gomock.Any(), "root").
		Return(&model.User{ID: "root", Role: model.RoleAdmin, Weight: 10}, nil)
	defects.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)

	req := validCreateRequest()
	req.Depth = f64ptr(12)

	got, err := newDefectService(defects, users, nil).Submit(context.Background(), "root", req)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got.Score != 40 {
		t.Errorf("score = %.0f, want 40", got.Score)
	}
	if got.Status != model.StatusReported {
		t.Errorf("status = %q, want reported", got.Status)
	}
}

func TestDefectService_Submit_InvalidInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(r *model.CreateDefectRequest)
	}{
		{"missing type", func(r *model.CreateDefectRequest) { r.Type = "" }},
		{"unknown type", func(r *model.CreateDefectRequest) { r.Type = "sinkhole" }},
		{"missing latitude", func(r *model.CreateDefectRequest) { r.Latitude = nil }},
		{"latitude out of range", func(r *model.CreateDefectRequest) { r.Latitude = f64ptr(90.5) }},
		{"longitude out of range", func(r *model.CreateDefectRequest) { r.Longitude = f64ptr(-181) }},
		{"missing depth", func(r *model.CreateDefectRequest) { r.Depth = nil }},
		{"negative width", func(r *model.CreateDefectRequest) { r.Width = f64ptr(-1) }},
		{"blank description", func(r *model.CreateDefectRequest) { r.Description = "   " }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			// No repository call is expected.
			defects := mock_service.NewMockDefectRepository(ctrl)
			users := mock_service.NewMockUserRepository(ctrl)

			req := validCreateRequest()
			tt.mutate(req)

			_, err := newDefectService(defects, users, nil).Submit(context.Background(), "alice", req)
			if !errors.Is(err, e.ErrInvalidInput) {
				t.Fatalf("err = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestDefectService_Submit_BoundaryCoordinatesAccepted(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	defects := mock_service.NewMockDefectRepository(ctrl)
	users := mock_service.NewMockUserRepository(ctrl)
	users.EXPECT().FindByID(gomock.Any(), "alice").Return(&model.User{ID: "alice", Role: model.RoleCitizen}, nil)
	defects.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)

	req := validCreateRequest()
	req.Latitude = f64ptr(-90)
	req.Longitude = f64ptr(180)
	req.Depth = f64ptr(0)

	got, err := newDefectService(defects, users, nil).Submit(context.Background(), "alice", req)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got.Severity != model.SeverityLow {
		t.Errorf("severity = %q, want low", got.Severity)
	}
}

func TestDefectService_Submit_UnknownReporter(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	defects := mock_service.NewMockDefectRepository(ctrl)
	users := mock_service.NewMockUserRepository(ctrl)
	users.EXPECT().FindByID(gomock.Any(), "ghost").Return(nil, e.ErrNotFound)

	_, err := newDefectService(defects, users, nil).Submit(context.Background(), "ghost", validCreateRequest())
	if !errors.Is(err, e.ErrNotAuthenticated) {
		t.Fatalf("err = %v, want ErrNotAuthenticated", err)
	}
}

func TestDefectService_Submit_Geocoding(t *testing.T) {
	t.Parallel()

	const rivoli = "Rue de Rivoli 1, Paris"
	long := strings.Repeat("Quartier de l'Hôtel-de-Ville, ", 12)

	tests := []struct {
		name    string
		addr    string
		geoAddr string
		geoErr  error
		want    string
		geoCall int
	}{
		{"fills empty address", "", rivoli, nil, rivoli, 1},
		{"failure keeps empty address", "", rivoli, e.ErrGeocode, "", 1},
		{"explicit address not overwritten", "Quai 3", rivoli, nil, "Quai 3", 0},
		{"long address fits the column", "", long, nil, model.ClampAddress(long), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			defects := mock_service.NewMockDefectRepository(ctrl)
			users := mock_service.NewMockUserRepository(ctrl)
			geocoder := mock_service.NewMockGeocoder(ctrl)

			users.EXPECT().FindByID(gomock.Any(), "alice").Return(&model.User{ID: "alice"}, nil)
			defects.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)
			geocoder.EXPECT().
				ReverseGeocode(gomock.Any(), 48.8566, 2.3522).
				Return(tt.geoAddr, tt.geoErr).
				Times(tt.geoCall)

			req := validCreateRequest()
			req.Address = tt.addr

			got, err := newDefectService(defects, users, geocoder).Submit(context.Background(), "alice", req)
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if tt.geoErr != nil {
				if got.Location.Address != "" {
					t.Errorf("address = %q, want empty", got.Location.Address)
				}
				return
			}
			if got.Location.Address != tt.want {
				t.Errorf("address = %q, want %q", got.Location.Address, tt.want)
			}
			if n := len([]rune(got.Location.Address)); n > model.MaxAddressLength {
				t.Errorf("address has %d characters, column holds %d", n, model.MaxAddressLength)
			}
		})
	}
}

func TestDefectService_Submit_Photos(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		photos []string
		want   []string
	}{
		{"none", nil, nil},
		{"blank only", []string{" ", ""}, nil},
		{"trimmed in order", []string{" https://cdn.example/a.jpg", "", "https://cdn.example/b.jpg "},
			[]string{"https://cdn.example/a.jpg", "https://cdn.example/b.jpg"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			defects := mock_service.NewMockDefectRepository(ctrl)
			users := mock_service.NewMockUserRepository(ctrl)
			users.EXPECT().FindByID(gomock.Any(), "alice").Return(&model.User{ID: "alice"}, nil)
			defects.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)

			req := validCreateRequest()
			req.Photos = tt.photos

			got, err := newDefectService(defects, users, nil).Submit(context.Background(), "alice", req)
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if !slices.Equal(got.Photos, tt.want) {
				t.Errorf("photos = %q, want %q", got.Photos, tt.want)
			}
		})
	}
}

func TestDefectService_Submit_RepoError(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	defects := mock_service.NewMockDefectRepository(ctrl)
	users := mock_service.NewMockUserRepository(ctrl)
	users.EXPECT().FindByID(gomock.Any(), "alice").Return(&model.User{ID: "alice"}, nil)

	wantErr := errors.New("db down")
	defects.EXPECT().Create(gomock.Any(), gomock.Any()).Return(wantErr)

	_, err := newDefectService(defects, users, nil).Submit(context.Background(), "alice", validCreateRequest())
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
}

// --- List / Ranking ---

func TestDefectService_List_NormalizesFilter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   model.DefectFilter
		want model.DefectFilter
	}{
		{
			"defaults",
			model.DefectFilter{},
			model.DefectFilter{Page: 1, Limit: service.DefaultPageLimit, SortBy: model.SortRecent},
		},
		{
			"limit clamped",
			model.DefectFilter{Page: 3, Limit: 1000, SortBy: model.SortPriority},
			model.DefectFilter{Page: 3, Limit: service.MaxPageLimit, SortBy: model.SortPriority},
		},
		{
			"unknown sort",
			model.DefectFilter{Page: -2, Limit: 5, SortBy: "oldest"},
			model.DefectFilter{Page: 1, Limit: 5, SortBy: model.SortRecent},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			defects := mock_service.NewMockDefectRepository(ctrl)
			defects.EXPECT().List(gomock.Any(), tt.want).Return(nil, int64(0), nil)

			resp, err := newDefectService(defects, nil, nil).List(context.Background(), tt.in)
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if resp.Defects == nil {
				t.Errorf("Defects is nil, want empty slice")
			}
			if resp.Page != tt.want.Page || resp.Limit != tt.want.Limit {
				t.Errorf("page/limit = %d/%d, want %d/%d", resp.Page, resp.Limit, tt.want.Page, tt.want.Limit)
			}
		})
	}
}

func TestDefectService_Ranking_FallsBackToDatabase(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	defects := mock_service.NewMockDefectRepository(ctrl)
	defects.EXPECT().
		TopByScore(gomock.Any(), 10).
		Return([]model.RankedDefect{{ID: "a", Score: 40}, {ID: "b", Score: 13}}, nil)

	svc := service.NewDefectService(defects, nil, service.NewTrustService(), service.NewScoreService(),
		service.NewCacheServiceWithClient(nil), nil)

	got, err := svc.Ranking(context.Background(), 10)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(got) != 2 || got[0].ID != "a" {
		t.Errorf("ranking = %+v", got)
	}
}

func TestDefectService_Ranking_EmptyIsNotNil(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	defects := mock_service.NewMockDefectRepository(ctrl)
	defects.EXPECT().TopByScore(gomock.Any(), service.DefaultPageLimit).Return(nil, nil)

	got, err := newDefectService(defects, nil, nil).Ranking(context.Background(), 0)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got == nil {
		t.Fatalf("ranking is nil, want empty slice")
	}
}

// --- Resize ---

func openReport() *model.DefectReport {
	return &model.DefectReport{
		ID:          "report-1",
		ReportedBy:  "alice",
		Dimensions:  model.NewDimensions(50, 40, 8),
		Severity:    model.SeverityHigh,
		Score:       8,
		Status:      model.StatusValidated,
		Validations: []string{"bob"},
	}
}

func resizeRequest(depth float64) *model.ResizeDefectRequest {
	return &model.ResizeDefectRequest{Length: f64ptr(100), Width: f64ptr(60), Depth: f64ptr(depth)}
}

func TestDefectService_Resize_ByReporter(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	defects := mock_service.NewMockDefectRepository(ctrl)
	users := mock_service.NewMockUserRepository(ctrl)

	defects.EXPECT().FindByID(gomock.Any(), "report-1").Return(openReport(), nil)
	defects.EXPECT().UpdateDimensions(gomock.Any(), gomock.Any()).Return(nil)

	got, err := newDefectService(defects, users, nil).Resize(context.Background(), "alice", "report-1", resizeRequest(11))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got.Severity != model.SeverityCritical {
		t.Errorf("severity = %q, want critical", got.Severity)
	}
	if got.Dimensions.Surface != 6000 {
		t.Errorf("surface = %.0f, want 6000", got.Dimensions.Surface)
	}
	if got.Score != 8 {
		t.Errorf("score = %.0f, want unchanged 8", got.Score)
	}
}

func TestDefectService_Resize_Permissions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		actor   *model.User
		userErr error
		want    error
	}{
		{"citizen stranger", &model.User{ID: "mallory", Role: model.RoleCitizen}, nil, e.ErrForbidden},
		{"approved stranger", &model.User{ID: "mallory", Role: model.RoleApproved}, nil, e.ErrForbidden},
		{"unknown actor", nil, e.ErrNotFound, e.ErrNotAuthenticated},
		{"admin", &model.User{ID: "mallory", Role: model.RoleAdmin}, nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			defects := mock_service.NewMockDefectRepository(ctrl)
			users := mock_service.NewMockUserRepository(ctrl)

			defects.EXPECT().FindByID(gomock.Any(), "report-1").Return(openReport(), nil)
			users.EXPECT().FindByID(gomock.Any(), "mallory").Return(tt.actor, tt.userErr)
			if tt.want == nil {
				defects.EXPECT().UpdateDimensions(gomock.Any(), gomock.Any()).Return(nil)
			}

			_, err := newDefectService(defects, users, nil).Resize(context.Background(), "mallory", "report-1", resizeRequest(2))
			if tt.want == nil {
				if err != nil {
					t.Fatalf("unexpected err: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDefectService_Resize_ClosedReport(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	defects := mock_service.NewMockDefectRepository(ctrl)
	report := openReport()
	report.Status = model.StatusResolved
	defects.EXPECT().FindByID(gomock.Any(), "report-1").Return(report, nil)

	_, err := newDefectService(defects, nil, nil).Resize(context.Background(), "alice", "report-1", resizeRequest(2))
	if !errors.Is(err, e.ErrReportClosed) {
		t.Fatalf("err = %v, want ErrReportClosed", err)
	}
}

func TestDefectService_Resize_InvalidDimensions(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	defects := mock_service.NewMockDefectRepository(ctrl)

	_, err := newDefectService(defects, nil, nil).Resize(context.Background(), "alice", "report-1", resizeRequest(-1))
	if !errors.Is(err, e.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

// --- Stats ---

func TestDefectService_Stats_WithoutRedis(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	defects := mock_service.NewMockDefectRepository(ctrl)
	want := &model.StatsResponse{TotalDefects: 4, TotalUsers: 2}
	defects.EXPECT().Stats(gomock.Any()).Return(want, nil).Times(2)

	cache := service.NewCacheServiceWithClient(nil)
	svc := service.NewDefectService(defects, nil, service.NewTrustService(), service.NewScoreService(), cache, nil)

	for i := 0; i < 2; i++ {
		got, err := svc.Stats(context.Background())
		if err != nil {
			t.Fatalf("unexpected err: %v", err)
		}
		if got != want {
			t.Errorf("call %d: stats not passed through", i)
		}
	}
}

func TestDefectService_Stats_RepoError(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	defects := mock_service.NewMockDefectRepository(ctrl)
	defects.EXPECT().Stats(gomock.Any()).Return(nil, errors.New("db down"))

	svc := newDefectService(defects, nil, nil)
	if _, err := svc.Stats(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
