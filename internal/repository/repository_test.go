//go:build integration

package repository_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Nueylo/smartroad-inspector-ioqtoe/internal/db"
	"github.com/Nueylo/smartroad-inspector-ioqtoe/internal/model"
	"github.com/Nueylo/smartroad-inspector-ioqtoe/internal/repository"
	"github.com/Nueylo/smartroad-inspector-ioqtoe/internal/service"
	"github.com/Nueylo/smartroad-inspector-ioqtoe/pkg/e"
)

var (
	testPool *pgxpool.Pool
	tc       testcontainers.Container
)

func TestMain(m *testing.M) {
	ctx := context.Background()

	user := "smartroad"
	pass := "smartroad"
	dbName := "smartroad"

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     user,
			"POSTGRES_PASSWORD": pass,
			"POSTGRES_DB":       dbName,
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("5432/tcp"),
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
		).WithDeadline(90 * time.Second),
	}

	var err error
	tc, err = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		fmt.Println("cannot start container:", err)
		os.Exit(1)
	}

	host, _ := tc.Host(ctx)
	mappedPort, _ := tc.MappedPort(ctx, "5432/tcp")
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, pass, host, mappedPort.Port(), dbName)

	testPool, err = db.NewPool(ctx, dsn, 4)
	if err != nil {
		fmt.Println("db.NewPool:", err)
		_ = tc.Terminate(ctx)
		os.Exit(1)
	}

	if err := db.Migrate(ctx, testPool); err != nil {
		fmt.Println("db.Migrate:", err)
		testPool.Close()
		_ = tc.Terminate(ctx)
		os.Exit(1)
	}

	code := m.Run()

	testPool.Close()
	_ = tc.Terminate(ctx)
	os.Exit(code)
}

func truncateAll(t *testing.T) {
	t.Helper()
	_, err := testPool.Exec(context.Background(), `TRUNCATE TABLE validations, defect_reports, users`)
	if err != nil {
		t.Fatalf("truncate: %v", err)
	}
}

func createUser(t *testing.T, email string, role model.Role) *model.User {
	t.Helper()
	u := &model.User{
		Name:         email,
		Email:        email,
		PasswordHash: "x",
		Role:         role,
		Weight:       service.NewTrustService().WeightFor(role),
	}
	if err := repository.NewUserRepo(testPool).Create(context.Background(), u); err != nil {
		t.Fatalf("create user %s: %v", email, err)
	}
	return u
}

func createReport(t *testing.T, reporter *model.User, depth float64) *model.DefectReport {
	t.Helper()
	score := service.NewScoreService()
	severity := model.ClassifySeverity(depth)
	r := &model.DefectReport{
		Location:    model.Location{Latitude: 48.8566, Longitude: 2.3522},
		Dimensions:  model.NewDimensions(50, 40, depth),
		Type:        model.TypePothole,
		Severity:    severity,
		Description: "hole",
		ReportedBy:  reporter.ID,
		Validations: []string{},
		Score:       score.InitialScore(reporter.Weight, severity),
		Status:      score.InitialStatus(),
	}
	if err := repository.NewDefectRepo(testPool).Create(context.Background(), r); err != nil {
		t.Fatalf("create report: %v", err)
	}
	return r
}

func TestUserRepo_CreateAndFind(t *testing.T) {
	truncateAll(t)
	ctx := context.Background()
	repo := repository.NewUserRepo(testPool)

	u := createUser(t, "Alice@Example.com", model.RoleApproved)
	if u.ID == "" {
		t.Fatalf("ID not set")
	}

	got, err := repo.FindByEmail(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}
	if got.ID != u.ID || got.Role != model.RoleApproved || got.Weight != 5 {
		t.Errorf("user = %+v", got)
	}

	dup := &model.User{Name: "x", Email: "alice@example.com", PasswordHash: "x", Role: model.RoleCitizen, Weight: 1}
	if err := repo.Create(ctx, dup); !errors.Is(err, e.ErrConflict) {
		t.Errorf("duplicate email err = %v, want ErrConflict", err)
	}

	if _, err := repo.FindByID(ctx, "00000000-0000-0000-0000-000000000000"); !errors.Is(err, e.ErrNotFound) {
		t.Errorf("missing user err = %v, want ErrNotFound", err)
	}

	updated, err := repo.UpdateRole(ctx, u.ID, model.RoleAdmin, 10)
	if err != nil {
		t.Fatalf("UpdateRole: %v", err)
	}
	if updated.Role != model.RoleAdmin || updated.Weight != 10 {
		t.Errorf("updated = %+v", updated)
	}
}

func TestDefectRepo_CreateFindList(t *testing.T) {
	truncateAll(t)
	ctx := context.Background()
	repo := repository.NewDefectRepo(testPool)

	alice := createUser(t, "alice@example.com", model.RoleCitizen)
	low := createReport(t, alice, 1)
	high := createReport(t, alice, 8)

	got, err := repo.FindByID(ctx, high.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if got.Severity != model.SeverityHigh || got.Score != 3 || got.Dimensions.Surface != 2000 {
		t.Errorf("report = %+v", got)
	}
	if got.Validations == nil || len(got.Validations) != 0 {
		t.Errorf("validations = %v, want empty", got.Validations)
	}
	if got.ReportedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Errorf("timestamps not set")
	}

	page, total, err := repo.List(ctx, model.DefectFilter{
		Severities: []model.Severity{model.SeverityHigh, model.SeverityCritical},
		SortBy:     model.SortPriority,
		Page:       1,
		Limit:      10,
	})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 1 || len(page) != 1 || page[0].ID != high.ID {
		t.Errorf("filtered list = %d/%v", total, page)
	}

	page, total, err = repo.List(ctx, model.DefectFilter{SortBy: model.SortPriority, Page: 1, Limit: 10})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 2 || page[0].ID != high.ID || page[1].ID != low.ID {
		t.Errorf("priority order = %v", page)
	}
}

func TestValidationRepo_Apply(t *testing.T) {
	truncateAll(t)
	ctx := context.Background()

	alice := createUser(t, "alice@example.com", model.RoleCitizen)
	bob := createUser(t, "bob@example.com", model.RoleApproved)
	carol := createUser(t, "carol@example.com", model.RoleApproved)
	report := createReport(t, alice, 8)

	logic := service.NewValidationService(nil, nil, service.NewTrustService(), service.NewScoreService(), nil)
	repo := repository.NewValidationRepo(testPool)

	apply := func(validator *model.User) (*model.DefectReport, error) {
		return repo.Apply(ctx, report.ID, validator.ID, validator.Weight, func(r *model.DefectReport) (*model.DefectReport, error) {
			return logic.ApplyValidation(r, validator.ID, validator.Weight)
		})
	}

	first, err := apply(bob)
	if err != nil {
		t.Fatalf("bob: %v", err)
	}
	if first.Score != 8 || first.Status != model.StatusValidated {
		t.Errorf("after bob = %.0f/%s, want 8/validated", first.Score, first.Status)
	}

	second, err := apply(carol)
	if err != nil {
		t.Fatalf("carol: %v", err)
	}
	if second.Score != 13 || len(second.Validations) != 2 {
		t.Errorf("after carol = %.0f/%v, want 13 with 2 validators", second.Score, second.Validations)
	}

	if _, err := apply(bob); !errors.Is(err, e.ErrAlreadyValidated) {
		t.Errorf("repeat err = %v, want ErrAlreadyValidated", err)
	}
	if _, err := apply(alice); !errors.Is(err, e.ErrSelfValidation) {
		t.Errorf("self err = %v, want ErrSelfValidation", err)
	}

	stored, err := repository.NewDefectRepo(testPool).FindByID(ctx, report.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if stored.Score != 13 {
		t.Errorf("stored score = %.0f, want 13", stored.Score)
	}

	validations, err := repo.ListByReport(ctx, report.ID)
	if err != nil {
		t.Fatalf("ListByReport: %v", err)
	}
	if len(validations) != 2 {
		t.Errorf("validations = %d, want 2", len(validations))
	}
}

func TestValidationRepo_ConcurrentSameUser(t *testing.T) {
	truncateAll(t)
	ctx := context.Background()

	alice := createUser(t, "alice@example.com", model.RoleCitizen)
	bob := createUser(t, "bob@example.com", model.RoleApproved)
	report := createReport(t, alice, 8)

	logic := service.NewValidationService(nil, nil, service.NewTrustService(), service.NewScoreService(), nil)
	repo := repository.NewValidationRepo(testPool)

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Apply(ctx, report.ID, bob.ID, bob.Weight, func(r *model.DefectReport) (*model.DefectReport, error) {
				return logic.ApplyValidation(r, bob.ID, bob.Weight)
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, e.ErrAlreadyValidated):
		default:
			t.Errorf("unexpected err: %v", err)
		}
	}
	if ok != 1 {
		t.Fatalf("successful validations = %d, want 1", ok)
	}

	stored, err := repository.NewDefectRepo(testPool).FindByID(ctx, report.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if stored.Score != 8 {
		t.Errorf("score = %.0f, want 8", stored.Score)
	}
}

func TestDefectRepo_PhotosAndAddressRoundTrip(t *testing.T) {
	truncateAll(t)
	ctx := context.Background()
	repo := repository.NewDefectRepo(testPool)

	alice := createUser(t, "alice@example.com", model.RoleCitizen)
	bare := createReport(t, alice, 4)

	r := &model.DefectReport{
		Location: model.Location{
			Latitude:  48.8566,
			Longitude: 2.3522,
			Address:   model.ClampAddress(strings.Repeat("Hôtel-de-Ville, ", 30)),
		},
		Dimensions:  model.NewDimensions(50, 40, 4),
		Type:        model.TypeCrack,
		Severity:    model.SeverityModerate,
		Description: "crack",
		Photos:      []string{"https://cdn.example/a.jpg", "https://cdn.example/b.jpg"},
		ReportedBy:  alice.ID,
		Validations: []string{},
		Score:       2,
		Status:      model.StatusReported,
	}
	if err := repo.Create(ctx, r); err != nil {
		t.Fatalf("Create with clamped address: %v", err)
	}

	got, err := repo.FindByID(ctx, r.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if !slices.Equal(got.Photos, r.Photos) {
		t.Errorf("photos = %q, want %q", got.Photos, r.Photos)
	}
	if got.Location.Address != r.Location.Address {
		t.Errorf("address = %q, want %q", got.Location.Address, r.Location.Address)
	}

	got, err = repo.FindByID(ctx, bare.ID)
	if err != nil {
		t.Fatalf("FindByID(bare): %v", err)
	}
	if len(got.Photos) != 0 {
		t.Errorf("photos = %q, want none", got.Photos)
	}
}

func TestDefectRepo_UpdateStatusIsConditional(t *testing.T) {
	truncateAll(t)
	ctx := context.Background()
	repo := repository.NewDefectRepo(testPool)

	alice := createUser(t, "alice@example.com", model.RoleCitizen)
	report := createReport(t, alice, 8)

	updated, err := repo.UpdateStatus(ctx, report.ID, model.StatusReported, model.StatusValidated)
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if updated.Status != model.StatusValidated {
		t.Errorf("status = %q, want validated", updated.Status)
	}

	// A second writer still expecting "reported" loses.
	if _, err := repo.UpdateStatus(ctx, report.ID, model.StatusReported, model.StatusRejected); !errors.Is(err, e.ErrConflict) {
		t.Errorf("stale update err = %v, want ErrConflict", err)
	}
	if _, err := repo.UpdateStatus(ctx, "00000000-0000-0000-0000-000000000000", model.StatusReported, model.StatusValidated); !errors.Is(err, e.ErrNotFound) {
		t.Errorf("missing report err = %v, want ErrNotFound", err)
	}

	if _, err := repo.UpdateStatus(ctx, report.ID, model.StatusValidated, model.StatusRejected); err != nil {
		t.Fatalf("reject: %v", err)
	}
	closed := updated.Clone()
	closed.Resize(1, 1, 1)
	if err := repo.UpdateDimensions(ctx, closed); !errors.Is(err, e.ErrReportClosed) {
		t.Errorf("resize closed err = %v, want ErrReportClosed", err)
	}
}

func TestDefectRepo_ChangedSinceRankingStats(t *testing.T) {
	truncateAll(t)
	ctx := context.Background()
	repo := repository.NewDefectRepo(testPool)

	since := time.Now().Add(-time.Minute)

	alice := createUser(t, "alice@example.com", model.RoleCitizen)
	a := createReport(t, alice, 12)
	b := createReport(t, alice, 4)
	c := createReport(t, alice, 1)

	if _, err := repo.UpdateStatus(ctx, c.ID, model.StatusReported, model.StatusRejected); err != nil {
		t.Fatalf("reject: %v", err)
	}

	changed, readAt, err := repo.ChangedSince(ctx, since, 500)
	if err != nil {
		t.Fatalf("ChangedSince: %v", err)
	}
	if len(changed) != 3 {
		t.Fatalf("changed = %d, want 3", len(changed))
	}
	for i := 1; i < len(changed); i++ {
		if changed[i].UpdatedAt.Before(changed[i-1].UpdatedAt) {
			t.Errorf("changes not ordered by updated_at")
		}
	}
	last := changed[len(changed)-1]
	if readAt.Before(last.UpdatedAt) {
		t.Errorf("readAt %v before last change %v", readAt, last.UpdatedAt)
	}

	// The bound is inclusive: resuming from a row's own timestamp returns it.
	again, _, err := repo.ChangedSince(ctx, last.UpdatedAt, 500)
	if err != nil {
		t.Fatalf("ChangedSince(last): %v", err)
	}
	if len(again) == 0 || again[0].ID != last.ID {
		t.Errorf("resume from %v = %+v, want %s first", last.UpdatedAt, again, last.ID)
	}

	ranked, err := repo.TopByScore(ctx, 10)
	if err != nil {
		t.Fatalf("TopByScore: %v", err)
	}
	if len(ranked) != 2 || ranked[0].ID != a.ID || ranked[1].ID != b.ID {
		t.Errorf("ranking = %+v, want a then b without rejected c", ranked)
	}

	stats, err := repo.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalDefects != 3 || stats.TotalUsers != 1 {
		t.Errorf("totals = %+v", stats)
	}
	if stats.ByStatus[model.StatusRejected] != 1 || stats.BySeverity[model.SeverityCritical] != 1 {
		t.Errorf("breakdown = %+v / %+v", stats.ByStatus, stats.BySeverity)
	}
}
