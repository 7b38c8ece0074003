package sqlite

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/sakif/snuffspec/internal/apperror"
	"github.com/sakif/snuffspec/internal/model"
	"github.com/sakif/snuffspec/internal/repository"
)

// createTestSpecification creates a record owned by userID.
func createTestSpecification(t *testing.T, db *DB, userID string, productID int64) *model.SpecificationRecord {
	t.Helper()
	rec := &model.SpecificationRecord{
		ProductID:       productID,
		ProductTitle:    "General White",
		EaseOfUse:       model.EaseBeginner,
		NicotineContent: model.NicotineLow,
		UserID:          userID,
	}
	if err := db.Create(context.Background(), rec); err != nil {
		t.Fatalf("failed to create test specification: %v", err)
	}
	return rec
}

func newSpecTestDB(t *testing.T) *DB {
	t.Helper()
	clock := newTestClock()
	clock.step = time.Second
	return newTestDB(t, WithClock(clock.Now))
}

// =========================================================================
// CREATE / GET TESTS
// =========================================================================

func TestCreate(t *testing.T) {
	db := newSpecTestDB(t)
	owner := createTestIdentity(t, db, "owner@b.com")

	rec := createTestSpecification(t, db, owner.ID, 42)

	if rec.ID == "" {
		t.Error("Create() did not set ID")
	}
	if rec.CreatedAt.IsZero() || rec.UpdatedAt.IsZero() {
		t.Error("Create() did not set timestamps")
	}

	found, err := db.GetByID(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if found.ProductID != 42 || found.EaseOfUse != model.EaseBeginner || found.NicotineContent != model.NicotineLow {
		t.Errorf("GetByID() = %+v", found)
	}
}

func TestGetByID_NotFound(t *testing.T) {
	db := newSpecTestDB(t)

	_, err := db.GetByID(context.Background(), "nonexistent-id")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByID() error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// LIST TESTS
// =========================================================================

func TestListByProduct_NewestFirst(t *testing.T) {
	db := newSpecTestDB(t)
	owner := createTestIdentity(t, db, "owner@b.com")

	older := createTestSpecification(t, db, owner.ID, 1)
	newer := createTestSpecification(t, db, owner.ID, 1)
	createTestSpecification(t, db, owner.ID, 2)

	recs, err := db.ListByProduct(context.Background(), 1)
	if err != nil {
		t.Fatalf("ListByProduct() error = %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("ListByProduct() returned %d, want 2", len(recs))
	}
	if recs[0].ID != newer.ID || recs[1].ID != older.ID {
		t.Errorf("ListByProduct() order = [%s %s], want newest first", recs[0].ID, recs[1].ID)
	}
}

func TestListByUser(t *testing.T) {
	db := newSpecTestDB(t)
	alice := createTestIdentity(t, db, "alice@b.com")
	bob := createTestIdentity(t, db, "bob@b.com")

	createTestSpecification(t, db, alice.ID, 1)
	createTestSpecification(t, db, alice.ID, 2)
	createTestSpecification(t, db, bob.ID, 1)

	recs, err := db.ListByUser(context.Background(), alice.ID)
	if err != nil {
		t.Fatalf("ListByUser() error = %v", err)
	}
	if len(recs) != 2 {
		t.Errorf("ListByUser() returned %d, want 2", len(recs))
	}
}

func TestList_Pagination(t *testing.T) {
	db := newSpecTestDB(t)
	owner := createTestIdentity(t, db, "owner@b.com")
	for i := 0; i < 5; i++ {
		createTestSpecification(t, db, owner.ID, int64(i))
	}

	page1, err := db.List(context.Background(), repository.ListOptions{Limit: 2})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	page3, err := db.List(context.Background(), repository.ListOptions{Limit: 2, Offset: 4})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(page1) != 2 || len(page3) != 1 {
		t.Errorf("pages = %d, %d; want 2, 1", len(page1), len(page3))
	}
}

func TestList_Empty(t *testing.T) {
	db := newSpecTestDB(t)

	recs, err := db.List(context.Background(), repository.ListOptions{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if recs == nil || len(recs) != 0 {
		t.Errorf("List() = %v, want empty non-nil slice", recs)
	}
}

// =========================================================================
// OWNERSHIP TESTS
// =========================================================================

func TestUpdate_Owner(t *testing.T) {
	db := newSpecTestDB(t)
	owner := createTestIdentity(t, db, "owner@b.com")
	rec := createTestSpecification(t, db, owner.ID, 1)

	ease := model.EaseExperienced
	updated, err := db.Update(context.Background(), rec.ID, owner.ID, repository.SpecificationPatch{EaseOfUse: &ease})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.EaseOfUse != model.EaseExperienced {
		t.Errorf("EaseOfUse = %q, want Experienced", updated.EaseOfUse)
	}
	if updated.NicotineContent != model.NicotineLow {
		t.Errorf("NicotineContent changed to %q; nil patch fields must be left alone", updated.NicotineContent)
	}
	if !updated.UpdatedAt.After(rec.UpdatedAt) {
		t.Error("UpdatedAt was not bumped")
	}
}

func TestUpdate_NotOwnerAffectsNothing(t *testing.T) {
	db := newSpecTestDB(t)
	owner := createTestIdentity(t, db, "owner@b.com")
	intruder := createTestIdentity(t, db, "intruder@b.com")
	rec := createTestSpecification(t, db, owner.ID, 1)

	ease := model.EaseExperienced
	_, err := db.Update(context.Background(), rec.ID, intruder.ID, repository.SpecificationPatch{EaseOfUse: &ease})
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("Update() by non-owner error = %v, want ErrNotFound", err)
	}

	found, _ := db.GetByID(context.Background(), rec.ID)
	if found.EaseOfUse != model.EaseBeginner {
		t.Errorf("record was modified by non-owner: EaseOfUse = %q", found.EaseOfUse)
	}
}

func TestDelete_NotOwnerAffectsNothing(t *testing.T) {
	db := newSpecTestDB(t)
	owner := createTestIdentity(t, db, "owner@b.com")
	intruder := createTestIdentity(t, db, "intruder@b.com")
	rec := createTestSpecification(t, db, owner.ID, 1)

	if err := db.Delete(context.Background(), rec.ID, intruder.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("Delete() by non-owner error = %v, want ErrNotFound", err)
	}
	if _, err := db.GetByID(context.Background(), rec.ID); err != nil {
		t.Errorf("record was deleted by non-owner: %v", err)
	}

	if err := db.Delete(context.Background(), rec.ID, owner.ID); err != nil {
		t.Fatalf("Delete() by owner error = %v", err)
	}
	if _, err := db.GetByID(context.Background(), rec.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByID() after delete error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// SQL SHAPE TESTS (go-sqlmock)
// =========================================================================
//
// The ownership rule lives in the WHERE clause. These tests pin the exact
// statements so a refactor cannot quietly drop the user_id predicate.

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	clock := newTestClock()
	return newWithConn(conn, WithClock(clock.Now)), mock
}

func TestDelete_SQLIncludesOwnerPredicate(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM snuff_specifications WHERE id = ? AND user_id = ?`)).
		WithArgs("rec-1", "user-2").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := db.Delete(context.Background(), "rec-1", "user-2")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Delete() error = %v, want ErrNotFound on zero rows", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestUpdate_SQLIncludesOwnerPredicate(t *testing.T) {
	db, mock := newMockDB(t)

	nicotine := model.NicotineHigh
	mock.ExpectExec(`UPDATE snuff_specifications SET updated_at = \?, nicotine_content = \?\s+WHERE id = \? AND user_id = \?`).
		WithArgs(sqlmock.AnyArg(), "High", "rec-1", "user-2").
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := db.Update(context.Background(), "rec-1", "user-2", repository.SpecificationPatch{NicotineContent: &nicotine})
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Update() error = %v, want ErrNotFound on zero rows", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestListByUser_SQL(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{
		"id", "product_id", "product_title", "ease_of_use", "nicotine_content", "user_id", "created_at", "updated_at",
	}).AddRow("rec-1", int64(9), "Siberia", "Experienced", "High", "user-2", now, now)

	mock.ExpectQuery(`SELECT .+ FROM snuff_specifications\s+WHERE user_id = \?`).
		WithArgs("user-2").
		WillReturnRows(rows)

	recs, err := db.ListByUser(context.Background(), "user-2")
	if err != nil {
		t.Fatalf("ListByUser() error = %v", err)
	}
	if len(recs) != 1 || recs[0].NicotineContent != model.NicotineHigh {
		t.Errorf("ListByUser() = %+v", recs)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
