// Package repository declares the storage contracts the service layer depends on.
//
// Two implementations exist: repository/sqlite (the local gateway, used in
// development and tests) and gateway/supabase (the hosted gateway's REST API).
// Services only ever see these interfaces.
package repository

import (
	"context"

	"github.com/sakif/snuffspec/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

// ProfileRepository stores UserProfile rows.
//
// GetProfile returns apperror.ErrNotFound when the Identity has no profile.
// Callers treat that as the anonymous tier, not as a failure.
type ProfileRepository interface {
	CreateProfile(ctx context.Context, profile *model.UserProfile) error
	GetProfile(ctx context.Context, id string) (*model.UserProfile, error)
	ListProfiles(ctx context.Context) ([]model.UserProfile, error)
	UpdateRole(ctx context.Context, id string, role model.Role) error
	DeleteProfile(ctx context.Context, id string) error
	CountProfiles(ctx context.Context) (int, error)
}

// SpecificationPatch holds the fields an owner may change. Nil means "leave as is".
type SpecificationPatch struct {
	ProductTitle    *string
	EaseOfUse       *model.EaseOfUse
	NicotineContent *model.NicotineContent
}

// Empty reports whether the patch changes nothing.
func (p SpecificationPatch) Empty() bool {
	return p.ProductTitle == nil && p.EaseOfUse == nil && p.NicotineContent == nil
}

// SpecificationRepository stores SpecificationRecord rows.
//
// Update and Delete take the acting user's ID and apply it as part of the
// row filter (id AND user_id). A call by someone other than the owner
// affects zero rows and returns apperror.ErrNotFound, whatever checks the
// caller did beforehand.
type SpecificationRepository interface {
	Create(ctx context.Context, rec *model.SpecificationRecord) error
	GetByID(ctx context.Context, id string) (*model.SpecificationRecord, error)
	List(ctx context.Context, opts ListOptions) ([]model.SpecificationRecord, error)
	ListByProduct(ctx context.Context, productID int64) ([]model.SpecificationRecord, error)
	ListByUser(ctx context.Context, userID string) ([]model.SpecificationRecord, error)
	Update(ctx context.Context, id, userID string, patch SpecificationPatch) (*model.SpecificationRecord, error)
	Delete(ctx context.Context, id, userID string) error
}
