package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/snuffspec/internal/apperror"
	"github.com/sakif/snuffspec/internal/model"
	"github.com/sakif/snuffspec/internal/repository"
)

const MaxProductTitleLength = 255

// SpecificationInput is what a person submits for a product.
type SpecificationInput struct {
	ProductID       int64                 `json:"productId"`
	ProductTitle    string                `json:"productTitle"`
	EaseOfUse       model.EaseOfUse       `json:"easeOfUse"`
	NicotineContent model.NicotineContent `json:"nicotineContent"`
}

// SpecificationService manages specification records.
//
// OWNERSHIP:
// Anyone may read. Only the author may change or remove a record. That is
// checked twice: here, against the stored record, and again by the
// repository, which filters on id AND user_id. The second check is the one
// that holds if the record changes hands between the two.
type SpecificationService struct {
	repo   repository.SpecificationRepository
	logger *slog.Logger
}

func NewSpecificationService(repo repository.SpecificationRepository, logger *slog.Logger) *SpecificationService {
	return &SpecificationService{repo: repo, logger: logger}
}

func (s *SpecificationService) Save(ctx context.Context, identity *model.Identity, in SpecificationInput) (*model.SpecificationRecord, error) {
	if err := requireIdentity(identity, "save a specification"); err != nil {
		return nil, err
	}

	in.ProductTitle = strings.TrimSpace(in.ProductTitle)
	if err := validateInput(in); err != nil {
		return nil, err
	}

	rec := &model.SpecificationRecord{
		ProductID:       in.ProductID,
		ProductTitle:    in.ProductTitle,
		EaseOfUse:       in.EaseOfUse,
		NicotineContent: in.NicotineContent,
		UserID:          identity.ID,
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		s.logger.Error("failed to save specification",
			slog.Int64("product_id", in.ProductID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("saving specification: %w", err)
	}

	s.logger.Info("specification saved",
		slog.String("id", rec.ID),
		slog.Int64("product_id", rec.ProductID),
		slog.String("user_id", rec.UserID),
	)
	return rec, nil
}

func validateInput(in SpecificationInput) error {
	if in.ProductID <= 0 {
		return apperror.ValidationFailed("productId", "product ID is required")
	}
	if in.ProductTitle == "" {
		return apperror.ValidationFailed("productTitle", "product title is required")
	}
	if len(in.ProductTitle) > MaxProductTitleLength {
		return apperror.ValidationFailed("productTitle",
			fmt.Sprintf("product title must be %d characters or less", MaxProductTitleLength))
	}
	if !in.EaseOfUse.Valid() {
		return apperror.ValidationFailed("easeOfUse", "ease of use must be Beginner, Intermediate or Experienced")
	}
	if !in.NicotineContent.Valid() {
		return apperror.ValidationFailed("nicotineContent", "nicotine content must be None, Low, Medium or High")
	}
	return nil
}

// Update applies patch to a record the caller owns.
func (s *SpecificationService) Update(ctx context.Context, identity *model.Identity, id string, patch repository.SpecificationPatch) (*model.SpecificationRecord, error) {
	if err := requireIdentity(identity, "update a specification"); err != nil {
		return nil, err
	}
	if patch.Empty() {
		return nil, apperror.ValidationFailed("", "nothing to update")
	}
	if patch.ProductTitle != nil {
		title := strings.TrimSpace(*patch.ProductTitle)
		if title == "" || len(title) > MaxProductTitleLength {
			return nil, apperror.ValidationFailed("productTitle",
				fmt.Sprintf("product title must be 1 to %d characters", MaxProductTitleLength))
		}
		patch.ProductTitle = &title
	}
	if patch.EaseOfUse != nil && !patch.EaseOfUse.Valid() {
		return nil, apperror.ValidationFailed("easeOfUse", "ease of use must be Beginner, Intermediate or Experienced")
	}
	if patch.NicotineContent != nil && !patch.NicotineContent.Valid() {
		return nil, apperror.ValidationFailed("nicotineContent", "nicotine content must be None, Low, Medium or High")
	}

	if err := s.checkOwner(ctx, identity, id, "update"); err != nil {
		return nil, err
	}

	rec, err := s.repo.Update(ctx, id, identity.ID, patch)
	if err != nil {
		return nil, err
	}

	s.logger.Info("specification updated", slog.String("id", id), slog.String("user_id", identity.ID))
	return rec, nil
}

func (s *SpecificationService) Delete(ctx context.Context, identity *model.Identity, id string) error {
	if err := requireIdentity(identity, "delete a specification"); err != nil {
		return err
	}
	if err := s.checkOwner(ctx, identity, id, "delete"); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id, identity.ID); err != nil {
		return err
	}

	s.logger.Info("specification deleted", slog.String("id", id), slog.String("user_id", identity.ID))
	return nil
}

func (s *SpecificationService) checkOwner(ctx context.Context, identity *model.Identity, id, verb string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return apperror.ValidationFailed("id", "specification ID is required")
	}

	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if rec.UserID != identity.ID {
		s.logger.Warn("specification ownership check failed",
			slog.String("id", id),
			slog.String("user_id", identity.ID),
		)
		return apperror.Forbidden(fmt.Sprintf("You do not have permission to %s this specification", verb))
	}
	return nil
}

// ListByProduct is public: no identity needed.
func (s *SpecificationService) ListByProduct(ctx context.Context, productID int64) ([]model.SpecificationRecord, error) {
	if productID <= 0 {
		return nil, apperror.ValidationFailed("productId", "product ID is required")
	}
	recs, err := s.repo.ListByProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("listing specifications for product: %w", err)
	}
	return recs, nil
}

func (s *SpecificationService) ListMine(ctx context.Context, identity *model.Identity) ([]model.SpecificationRecord, error) {
	if err := requireIdentity(identity, "view your specifications"); err != nil {
		return nil, err
	}
	recs, err := s.repo.ListByUser(ctx, identity.ID)
	if err != nil {
		return nil, fmt.Errorf("listing user specifications: %w", err)
	}
	return recs, nil
}

// List returns all records, newest first, a page at a time.
func (s *SpecificationService) List(ctx context.Context, limit, offset int) ([]model.SpecificationRecord, error) {
	limit, offset = clampLimit(limit, offset)
	recs, err := s.repo.List(ctx, repository.ListOptions{Limit: limit, Offset: offset})
	if err != nil {
		s.logger.Error("failed to list specifications", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing specifications: %w", err)
	}
	return recs, nil
}
