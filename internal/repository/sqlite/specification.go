package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/xid"

	"github.com/sakif/snuffspec/internal/apperror"
	"github.com/sakif/snuffspec/internal/model"
	"github.com/sakif/snuffspec/internal/repository"
)

var _ repository.SpecificationRepository = (*DB)(nil)

const specColumns = `id, product_id, product_title, ease_of_use, nicotine_content, user_id, created_at, updated_at`

// errNotOwnedOrMissing is what an owner-filtered mutation returns when it
// touches zero rows. We cannot tell "missing" from "not yours" and do not try.
func errNotOwnedOrMissing(id string) error {
	return &apperror.AppError{
		Err:     apperror.ErrNotFound,
		Message: fmt.Sprintf("Specification %s not found or you do not have permission to modify it", id),
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSpecification(row rowScanner) (*model.SpecificationRecord, error) {
	var (
		rec      model.SpecificationRecord
		ease     string
		nicotine string
	)
	err := row.Scan(
		&rec.ID, &rec.ProductID, &rec.ProductTitle, &ease, &nicotine,
		&rec.UserID, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.EaseOfUse = model.EaseOfUse(ease)
	rec.NicotineContent = model.NicotineContent(nicotine)
	return &rec, nil
}

// Create inserts a record. ID (an xid) and timestamps are filled in here.
func (db *DB) Create(ctx context.Context, rec *model.SpecificationRecord) error {
	rec.ID = xid.New().String()
	now := db.now()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO snuff_specifications (`+specColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.ProductID,
		rec.ProductTitle,
		string(rec.EaseOfUse),
		string(rec.NicotineContent),
		rec.UserID,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating specification: %w", err)
	}
	return nil
}

func (db *DB) GetByID(ctx context.Context, id string) (*model.SpecificationRecord, error) {
	rec, err := scanSpecification(db.conn.QueryRowContext(ctx,
		`SELECT `+specColumns+` FROM snuff_specifications WHERE id = ?`, id,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("specification", id)
		}
		return nil, fmt.Errorf("sqlite: getting specification %s: %w", id, err)
	}
	return rec, nil
}

// List returns records newest first, clamped to 1..100 per page.
func (db *DB) List(ctx context.Context, opts repository.ListOptions) ([]model.SpecificationRecord, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	return db.querySpecifications(ctx, "listing specifications",
		`SELECT `+specColumns+` FROM snuff_specifications
		 ORDER BY created_at DESC
		 LIMIT ? OFFSET ?`,
		limit, offset,
	)
}

func (db *DB) ListByProduct(ctx context.Context, productID int64) ([]model.SpecificationRecord, error) {
	return db.querySpecifications(ctx, "listing specifications by product",
		`SELECT `+specColumns+` FROM snuff_specifications
		 WHERE product_id = ?
		 ORDER BY created_at DESC`,
		productID,
	)
}

func (db *DB) ListByUser(ctx context.Context, userID string) ([]model.SpecificationRecord, error) {
	return db.querySpecifications(ctx, "listing specifications by user",
		`SELECT `+specColumns+` FROM snuff_specifications
		 WHERE user_id = ?
		 ORDER BY created_at DESC`,
		userID,
	)
}

func (db *DB) querySpecifications(ctx context.Context, op, query string, args ...any) ([]model.SpecificationRecord, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %s: %w", op, err)
	}
	defer rows.Close()

	records := make([]model.SpecificationRecord, 0)
	for rows.Next() {
		rec, err := scanSpecification(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning specification row: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating specifications: %w", err)
	}
	return records, nil
}

// Update applies patch to the record with this id, but only if userID owns it.
//
// The owner check is part of the WHERE clause, so it holds even if the
// service-level check raced with an ownership change. Zero rows affected
// means missing or not owned.
func (db *DB) Update(ctx context.Context, id, userID string, patch repository.SpecificationPatch) (*model.SpecificationRecord, error) {
	sets := []string{"updated_at = ?"}
	args := []any{db.now()}

	if patch.ProductTitle != nil {
		sets = append(sets, "product_title = ?")
		args = append(args, *patch.ProductTitle)
	}
	if patch.EaseOfUse != nil {
		sets = append(sets, "ease_of_use = ?")
		args = append(args, string(*patch.EaseOfUse))
	}
	if patch.NicotineContent != nil {
		sets = append(sets, "nicotine_content = ?")
		args = append(args, string(*patch.NicotineContent))
	}
	args = append(args, id, userID)

	result, err := db.conn.ExecContext(ctx,
		`UPDATE snuff_specifications SET `+strings.Join(sets, ", ")+`
		 WHERE id = ? AND user_id = ?`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: updating specification %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, errNotOwnedOrMissing(id)
	}

	return db.GetByID(ctx, id)
}

// Delete removes the record only if userID owns it. See Update.
func (db *DB) Delete(ctx context.Context, id, userID string) error {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM snuff_specifications WHERE id = ? AND user_id = ?`,
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: deleting specification %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return errNotOwnedOrMissing(id)
	}
	return nil
}
