package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Nueylo/smartroad-inspector-ioqtoe/internal/model"
	"github.com/Nueylo/smartroad-inspector-ioqtoe/pkg/e"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// defectColumns must stay in step with scanDefect.
const defectColumns = `
	d.id::text, d.latitude, d.longitude, COALESCE(d.address, ''),
	d.length_cm, d.width_cm, d.depth_cm, d.surface_cm2,
	d.type, d.severity, d.description, d.photo_urls,
	d.reported_by::text, d.reported_at,
	ARRAY(SELECT v.user_id::text FROM validations v WHERE v.report_id = d.id ORDER BY v.created_at, v.id),
	d.score, d.status, d.updated_at`

const notifyChange = `SELECT pg_notify('defect_changes', $1)`

type DefectRepo struct {
	pool *pgxpool.Pool
}

func NewDefectRepo(pool *pgxpool.Pool) *DefectRepo {
	return &DefectRepo{pool: pool}
}

func scanDefect(row pgx.Row) (*model.DefectReport, error) {
	var (
		d                     model.DefectReport
		typ, severity, status string
		validators            []string
	)
	err := row.Scan(
		&d.ID, &d.Location.Latitude, &d.Location.Longitude, &d.Location.Address,
		&d.Dimensions.Length, &d.Dimensions.Width, &d.Dimensions.Depth, &d.Dimensions.Surface,
		&typ, &severity, &d.Description, &d.Photos,
		&d.ReportedBy, &d.ReportedAt,
		&validators,
		&d.Score, &status, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.Type = model.DefectType(typ)
	d.Severity = model.Severity(severity)
	d.Status = model.DefectStatus(status)
	if validators == nil {
		validators = []string{}
	}
	d.Validations = validators
	return &d, nil
}

func collectDefects(rows pgx.Rows) ([]model.DefectReport, error) {
	defer rows.Close()

	var out []model.DefectReport
	for rows.Next() {
		d, err := scanDefect(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func findDefect(ctx context.Context, q querier, id string) (*model.DefectReport, error) {
	return scanDefect(q.QueryRow(ctx, `SELECT `+defectColumns+` FROM defect_reports d WHERE d.id = $1`, id))
}

// Create inserts a new report, assigning its ID and timestamps.
func (r *DefectRepo) Create(ctx context.Context, d *model.DefectReport) error {
	const op = "repository.Defect.Create"

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return e.WrapError(ctx, op, err)
	}
	defer tx.Rollback(ctx)

	d.ID = uuid.NewString()
	err = tx.QueryRow(ctx, `
		INSERT INTO defect_reports (
			id, latitude, longitude, address,
			length_cm, width_cm, depth_cm, surface_cm2,
			type, severity, description, photo_urls,
			reported_by, score, status)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING reported_at, updated_at`,
		d.ID, d.Location.Latitude, d.Location.Longitude, d.Location.Address,
		d.Dimensions.Length, d.Dimensions.Width, d.Dimensions.Depth, d.Dimensions.Surface,
		string(d.Type), string(d.Severity), d.Description, d.Photos,
		d.ReportedBy, d.Score, string(d.Status),
	).Scan(&d.ReportedAt, &d.UpdatedAt)
	if err != nil {
		return e.WrapError(ctx, op, err)
	}

	if _, err := tx.Exec(ctx, notifyChange, d.ID); err != nil {
		return e.WrapError(ctx, op, err)
	}
	if d.Validations == nil {
		d.Validations = []string{}
	}
	return e.WrapError(ctx, op, tx.Commit(ctx))
}

// FindByID returns a single report with its validator set.
func (r *DefectRepo) FindByID(ctx context.Context, id string) (*model.DefectReport, error) {
	d, err := findDefect(ctx, r.pool, id)
	if err != nil {
		return nil, e.WrapError(ctx, "repository.Defect.FindByID", err)
	}
	return d, nil
}

// List returns one page of reports matching f and the total match count.
func (r *DefectRepo) List(ctx context.Context, f model.DefectFilter) ([]model.DefectReport, int64, error) {
	const op = "repository.Defect.List"

	where, args := filterClause(f)

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM defect_reports d`+where, args...).Scan(&total); err != nil {
		return nil, 0, e.WrapError(ctx, op, err)
	}

	order := ` ORDER BY d.reported_at DESC, d.id`
	if f.SortBy == model.SortPriority {
		order = ` ORDER BY d.score DESC, d.reported_at ASC, d.id`
	}
	limit, offset := f.Limit, (f.Page-1)*f.Limit
	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT %s FROM defect_reports d%s%s LIMIT $%d OFFSET $%d`,
		defectColumns, where, order, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, e.WrapError(ctx, op, err)
	}
	defects, err := collectDefects(rows)
	if err != nil {
		return nil, 0, e.WrapError(ctx, op, err)
	}
	return defects, total, nil
}

func filterClause(f model.DefectFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(column string, values []string) {
		if len(values) == 0 {
			return
		}
		args = append(args, values)
		conds = append(conds, fmt.Sprintf("%s = ANY($%d)", column, len(args)))
	}

	add("d.status", toStrings(f.Statuses))
	add("d.severity", toStrings(f.Severities))
	add("d.type", toStrings(f.Types))

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func toStrings[T ~string](values []T) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}

// UpdateDimensions persists dimensions, surface and severity. Score and
// status are left alone.
func (r *DefectRepo) UpdateDimensions(ctx context.Context, d *model.DefectReport) error {
	const op = "repository.Defect.UpdateDimensions"

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return e.WrapError(ctx, op, err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		UPDATE defect_reports
		SET length_cm = $2, width_cm = $3, depth_cm = $4, surface_cm2 = $5,
		    severity = $6, updated_at = clock_timestamp()
		WHERE id = $1 AND status NOT IN ('resolved', 'rejected')
		RETURNING updated_at`,
		d.ID, d.Dimensions.Length, d.Dimensions.Width, d.Dimensions.Depth, d.Dimensions.Surface,
		string(d.Severity),
	).Scan(&d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return e.WrapError(ctx, op, missingOr(ctx, tx, d.ID, e.ErrReportClosed))
	}
	if err != nil {
		return e.WrapError(ctx, op, err)
	}

	if _, err := tx.Exec(ctx, notifyChange, d.ID); err != nil {
		return e.WrapError(ctx, op, err)
	}
	return e.WrapError(ctx, op, tx.Commit(ctx))
}

// UpdateStatus moves a report from one status to another. The update only
// applies if the report is still in from; otherwise ErrConflict.
func (r *DefectRepo) UpdateStatus(ctx context.Context, id string, from, to model.DefectStatus) (*model.DefectReport, error) {
	const op = "repository.Defect.UpdateStatus"

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, e.WrapError(ctx, op, err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE defect_reports SET status = $3, updated_at = clock_timestamp()
		WHERE id = $1 AND status = $2`,
		id, string(from), string(to))
	if err != nil {
		return nil, e.WrapError(ctx, op, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, e.WrapError(ctx, op, missingOr(ctx, tx, id, e.ErrConflict))
	}

	if _, err := tx.Exec(ctx, notifyChange, id); err != nil {
		return nil, e.WrapError(ctx, op, err)
	}
	d, err := findDefect(ctx, tx, id)
	if err != nil {
		return nil, e.WrapError(ctx, op, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, e.WrapError(ctx, op, err)
	}
	return d, nil
}

// missingOr returns ErrNotFound when id does not exist, otherwise fallback.
func missingOr(ctx context.Context, q querier, id string, fallback error) error {
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM defect_reports WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return e.ErrNotFound
	}
	return fallback
}

// ChangedSince returns reports updated at or after since, oldest change
// first, and the database clock read just before the query. Writers stamp
// updated_at with clock_timestamp(), so a row committed after readAt was
// written no earlier than its transaction reached the row.
func (r *DefectRepo) ChangedSince(ctx context.Context, since time.Time, limit int) ([]model.DefectReport, time.Time, error) {
	const op = "repository.Defect.ChangedSince"

	var readAt time.Time
	if err := r.pool.QueryRow(ctx, `SELECT clock_timestamp()`).Scan(&readAt); err != nil {
		return nil, time.Time{}, e.WrapError(ctx, op, err)
	}

	rows, err := r.pool.Query(ctx, `SELECT `+defectColumns+`
		FROM defect_reports d
		WHERE d.updated_at >= $1
		ORDER BY d.updated_at ASC, d.id
		LIMIT $2`, since, limit)
	if err != nil {
		return nil, time.Time{}, e.WrapError(ctx, op, err)
	}
	defects, err := collectDefects(rows)
	if err != nil {
		return nil, time.Time{}, e.WrapError(ctx, op, err)
	}
	return defects, readAt, nil
}

// TopByScore returns open reports by descending score.
func (r *DefectRepo) TopByScore(ctx context.Context, limit int) ([]model.RankedDefect, error) {
	const op = "repository.Defect.TopByScore"

	rows, err := r.pool.Query(ctx, `
		SELECT id::text, score
		FROM defect_reports
		WHERE status NOT IN ('resolved', 'rejected')
		ORDER BY score DESC, reported_at ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, e.WrapError(ctx, op, err)
	}
	defer rows.Close()

	var ranked []model.RankedDefect
	for rows.Next() {
		var rd model.RankedDefect
		if err := rows.Scan(&rd.ID, &rd.Score); err != nil {
			return nil, e.WrapError(ctx, op, err)
		}
		ranked = append(ranked, rd)
	}
	if err := rows.Err(); err != nil {
		return nil, e.WrapError(ctx, op, err)
	}
	return ranked, nil
}

// Stats returns aggregate counters across reports, validations and users.
func (r *DefectRepo) Stats(ctx context.Context) (*model.StatsResponse, error) {
	const op = "repository.Defect.Stats"

	stats := model.StatsResponse{
		ByStatus:   make(map[model.DefectStatus]int),
		BySeverity: make(map[model.Severity]int),
	}
	err := r.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM defect_reports) AS total_defects,
			(SELECT COUNT(*) FROM validations) AS total_validations,
			(SELECT COUNT(*) FROM users) AS total_users`,
	).Scan(&stats.TotalDefects, &stats.TotalValidations, &stats.TotalUsers)
	if err != nil {
		return nil, e.WrapError(ctx, op, err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT 'status' AS kind, status AS key, COUNT(*) FROM defect_reports GROUP BY status
		UNION ALL
		SELECT 'severity', severity, COUNT(*) FROM defect_reports GROUP BY severity`)
	if err != nil {
		return nil, e.WrapError(ctx, op, err)
	}
	defer rows.Close()

	for rows.Next() {
		var kind, key string
		var count int
		if err := rows.Scan(&kind, &key, &count); err != nil {
			return nil, e.WrapError(ctx, op, err)
		}
		if kind == "status" {
			stats.ByStatus[model.DefectStatus(key)] = count
		} else {
			stats.BySeverity[model.Severity(key)] = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, e.WrapError(ctx, op, err)
	}
	return &stats, nil
}
