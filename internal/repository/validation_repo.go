package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Nueylo/smartroad-inspector-ioqtoe/internal/model"
	"github.com/Nueylo/smartroad-inspector-ioqtoe/pkg/e"
)

type ValidationRepo struct {
	pool *pgxpool.Pool
}

func NewValidationRepo(pool *pgxpool.Pool) *ValidationRepo {
	return &ValidationRepo{pool: pool}
}

// Apply locks the report row, runs fn against it and persists fn's result
// together with the validation row in one transaction. The UNIQUE
// (report_id, user_id) constraint is the final guard against two
// concurrent validations by the same user.
func (r *ValidationRepo) Apply(ctx context.Context, reportID, validatorID string, weight int,
	fn func(*model.DefectReport) (*model.DefectReport, error)) (*model.DefectReport, error) {
	const op = "repository.Validation.Apply"

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, e.WrapError(ctx, op, err)
	}
	defer tx.Rollback(ctx)

	var locked string
	err = tx.QueryRow(ctx, `SELECT id::text FROM defect_reports WHERE id = $1 FOR UPDATE`, reportID).Scan(&locked)
	if err != nil {
		return nil, e.WrapError(ctx, op, err)
	}

	current, err := findDefect(ctx, tx, reportID)
	if err != nil {
		return nil, e.WrapError(ctx, op, err)
	}

	updated, err := fn(current)
	if err != nil {
		return nil, e.WrapError(ctx, op, err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO validations (id, report_id, user_id, weight)
		VALUES ($1, $2, $3, $4)`,
		uuid.NewString(), reportID, validatorID, weight)
	if err != nil {
		if e.IsUniqueViolation(err) {
			return nil, e.WrapError(ctx, op, e.ErrAlreadyValidated)
		}
		return nil, e.WrapError(ctx, op, err)
	}

	err = tx.QueryRow(ctx, `
		UPDATE defect_reports SET score = $2, status = $3, updated_at = clock_timestamp()
		WHERE id = $1
		RETURNING updated_at`,
		reportID, updated.Score, string(updated.Status),
	).Scan(&updated.UpdatedAt)
	if err != nil {
		return nil, e.WrapError(ctx, op, err)
	}

	if _, err := tx.Exec(ctx, notifyChange, reportID); err != nil {
		return nil, e.WrapError(ctx, op, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, e.WrapError(ctx, op, err)
	}
	return updated, nil
}

// ListByReport returns a report's validations, oldest first. Unknown
// reports yield ErrNotFound.
func (r *ValidationRepo) ListByReport(ctx context.Context, reportID string) ([]model.Validation, error) {
	const op = "repository.Validation.ListByReport"

	rows, err := r.pool.Query(ctx, `
		SELECT id::text, report_id::text, user_id::text, weight, created_at
		FROM validations
		WHERE report_id = $1
		ORDER BY created_at ASC, id`, reportID)
	if err != nil {
		return nil, e.WrapError(ctx, op, err)
	}
	defer rows.Close()

	validations := []model.Validation{}
	for rows.Next() {
		var v model.Validation
		if err := rows.Scan(&v.ID, &v.ReportID, &v.UserID, &v.Weight, &v.CreatedAt); err != nil {
			return nil, e.WrapError(ctx, op, err)
		}
		validations = append(validations, v)
	}
	if err := rows.Err(); err != nil {
		return nil, e.WrapError(ctx, op, err)
	}

	if len(validations) == 0 {
		if err := missingOr(ctx, r.pool, reportID, nil); err != nil {
			return nil, e.WrapError(ctx, op, err)
		}
	}
	return validations, nil
}
