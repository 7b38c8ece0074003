package supabase

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sakif/snuffspec/internal/apperror"
	"github.com/sakif/snuffspec/internal/model"
	"github.com/sakif/snuffspec/internal/repository"
)

var (
	_ repository.ProfileRepository       = (*Client)(nil)
	_ repository.SpecificationRepository = (*Client)(nil)
)

const (
	profilesTable       = "/rest/v1/user_profiles"
	specificationsTable = "/rest/v1/snuff_specifications"
)

func eq(v string) string { return "eq." + v }

var returnRepresentation = http.Header{"Prefer": {"return=representation"}}

// =========================================================================
// user_profiles
// =========================================================================

type profileRow struct {
	ID        string    `json:"id"`
	FullName  string    `json:"full_name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (r profileRow) model() model.UserProfile {
	return model.UserProfile{
		ID:        r.ID,
		FullName:  r.FullName,
		Role:      model.Role(r.Role),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func (c *Client) CreateProfile(ctx context.Context, profile *model.UserProfile) error {
	now := time.Now().UTC()
	var rows []profileRow
	_, err := c.do(ctx, request{
		client: c.admin,
		method: http.MethodPost,
		path:   profilesTable,
		header: returnRepresentation,
		body: profileRow{
			ID:        profile.ID,
			FullName:  profile.FullName,
			Role:      string(profile.Role),
			CreatedAt: now,
			UpdatedAt: now,
		},
		out: &rows,
	})
	if err != nil {
		return fmt.Errorf("supabase: creating profile %s: %w", profile.ID, err)
	}
	if len(rows) > 0 {
		*profile = rows[0].model()
	}
	return nil
}

func (c *Client) GetProfile(ctx context.Context, id string) (*model.UserProfile, error) {
	var rows []profileRow
	_, err := c.do(ctx, request{
		client: c.admin,
		method: http.MethodGet,
		path:   profilesTable,
		query:  url.Values{"select": {"*"}, "id": {eq(id)}, "limit": {"1"}},
		out:    &rows,
	})
	if err != nil {
		return nil, fmt.Errorf("supabase: getting profile %s: %w", id, err)
	}
	if len(rows) == 0 {
		return nil, apperror.NotFound("user profile", id)
	}
	p := rows[0].model()
	return &p, nil
}

func (c *Client) ListProfiles(ctx context.Context) ([]model.UserProfile, error) {
	var rows []profileRow
	_, err := c.do(ctx, request{
		client: c.admin,
		method: http.MethodGet,
		path:   profilesTable,
		query:  url.Values{"select": {"*"}, "order": {"created_at.desc"}},
		out:    &rows,
	})
	if err != nil {
		return nil, fmt.Errorf("supabase: listing profiles: %w", err)
	}
	profiles := make([]model.UserProfile, 0, len(rows))
	for _, r := range rows {
		profiles = append(profiles, r.model())
	}
	return profiles, nil
}

func (c *Client) UpdateRole(ctx context.Context, id string, role model.Role) error {
	var rows []profileRow
	_, err := c.do(ctx, request{
		client: c.admin,
		method: http.MethodPatch,
		path:   profilesTable,
		query:  url.Values{"id": {eq(id)}},
		header: returnRepresentation,
		body: map[string]any{
			"role":       string(role),
			"updated_at": time.Now().UTC(),
		},
		out: &rows,
	})
	if err != nil {
		return fmt.Errorf("supabase: updating role for %s: %w", id, err)
	}
	if len(rows) == 0 {
		return apperror.NotFound("user profile", id)
	}
	return nil
}

func (c *Client) DeleteProfile(ctx context.Context, id string) error {
	var rows []profileRow
	_, err := c.do(ctx, request{
		client: c.admin,
		method: http.MethodDelete,
		path:   profilesTable,
		query:  url.Values{"id": {eq(id)}},
		header: returnRepresentation,
		out:    &rows,
	})
	if err != nil {
		return fmt.Errorf("supabase: deleting profile %s: %w", id, err)
	}
	if len(rows) == 0 {
		return apperror.NotFound("user profile", id)
	}
	return nil
}

// CountProfiles asks PostgREST for an exact count with a HEAD request and
// reads it from Content-Range ("0-4/5", or "*/0" when empty).
func (c *Client) CountProfiles(ctx context.Context) (int, error) {
	resp, err := c.do(ctx, request{
		client: c.admin,
		method: http.MethodHead,
		path:   profilesTable,
		query:  url.Values{"select": {"id"}},
		header: http.Header{"Prefer": {"count=exact"}},
	})
	if err != nil {
		return 0, fmt.Errorf("supabase: counting profiles: %w", err)
	}
	return parseContentRangeTotal(resp.Header.Get("Content-Range"))
}

func parseContentRangeTotal(h string) (int, error) {
	i := strings.LastIndexByte(h, '/')
	if i < 0 || i == len(h)-1 {
		return 0, fmt.Errorf("supabase: malformed Content-Range %q", h)
	}
	n, err := strconv.Atoi(h[i+1:])
	if err != nil {
		return 0, fmt.Errorf("supabase: malformed Content-Range %q: %w", h, err)
	}
	return n, nil
}

// =========================================================================
// snuff_specifications
// =========================================================================

type specificationRow struct {
	ID              string    `json:"id,omitempty"`
	ProductID       int64     `json:"product_id"`
	ProductTitle    string    `json:"product_title"`
	EaseOfUse       string    `json:"ease_of_use"`
	NicotineContent string    `json:"nicotine_content"`
	UserID          string    `json:"user_id"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (r specificationRow) model() model.SpecificationRecord {
	return model.SpecificationRecord{
		ID:              r.ID,
		ProductID:       r.ProductID,
		ProductTitle:    r.ProductTitle,
		EaseOfUse:       model.EaseOfUse(r.EaseOfUse),
		NicotineContent: model.NicotineContent(r.NicotineContent),
		UserID:          r.UserID,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

func (c *Client) listSpecifications(ctx context.Context, op string, query url.Values) ([]model.SpecificationRecord, error) {
	query.Set("select", "*")
	query.Set("order", "created_at.desc")

	var rows []specificationRow
	_, err := c.do(ctx, request{
		client: c.admin,
		method: http.MethodGet,
		path:   specificationsTable,
		query:  query,
		out:    &rows,
	})
	if err != nil {
		return nil, fmt.Errorf("supabase: %s: %w", op, err)
	}
	records := make([]model.SpecificationRecord, 0, len(rows))
	for _, r := range rows {
		records = append(records, r.model())
	}
	return records, nil
}

// Create inserts rec; the table generates the id.
func (c *Client) Create(ctx context.Context, rec *model.SpecificationRecord) error {
	now := time.Now().UTC()
	var rows []specificationRow
	_, err := c.do(ctx, request{
		client: c.admin,
		method: http.MethodPost,
		path:   specificationsTable,
		header: returnRepresentation,
		body: specificationRow{
			ProductID:       rec.ProductID,
			ProductTitle:    rec.ProductTitle,
			EaseOfUse:       string(rec.EaseOfUse),
			NicotineContent: string(rec.NicotineContent),
			UserID:          rec.UserID,
			CreatedAt:       now,
			UpdatedAt:       now,
		},
		out: &rows,
	})
	if err != nil {
		return fmt.Errorf("supabase: creating specification: %w", err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("supabase: creating specification: empty representation")
	}
	*rec = rows[0].model()
	return nil
}

func (c *Client) GetByID(ctx context.Context, id string) (*model.SpecificationRecord, error) {
	records, err := c.listSpecifications(ctx, "getting specification "+id, url.Values{"id": {eq(id)}, "limit": {"1"}})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, apperror.NotFound("specification", id)
	}
	return &records[0], nil
}

func (c *Client) List(ctx context.Context, opts repository.ListOptions) ([]model.SpecificationRecord, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	offset := max(opts.Offset, 0)
	return c.listSpecifications(ctx, "listing specifications", url.Values{
		"limit":  {strconv.Itoa(limit)},
		"offset": {strconv.Itoa(offset)},
	})
}

func (c *Client) ListByProduct(ctx context.Context, productID int64) ([]model.SpecificationRecord, error) {
	return c.listSpecifications(ctx, "listing specifications by product",
		url.Values{"product_id": {eq(strconv.FormatInt(productID, 10))}})
}

func (c *Client) ListByUser(ctx context.Context, userID string) ([]model.SpecificationRecord, error) {
	return c.listSpecifications(ctx, "listing specifications by user",
		url.Values{"user_id": {eq(userID)}})
}

func notOwnedOrMissing(id string) error {
	return &apperror.AppError{
		Err:     apperror.ErrNotFound,
		Message: fmt.Sprintf("Specification %s not found or you do not have permission to modify it", id),
	}
}

// Update filters on both id and user_id. An empty representation means the
// row is missing or belongs to someone else.
func (c *Client) Update(ctx context.Context, id, userID string, patch repository.SpecificationPatch) (*model.SpecificationRecord, error) {
	body := map[string]any{"updated_at": time.Now().UTC()}
	if patch.ProductTitle != nil {
		body["product_title"] = *patch.ProductTitle
	}
	if patch.EaseOfUse != nil {
		body["ease_of_use"] = string(*patch.EaseOfUse)
	}
	if patch.NicotineContent != nil {
		body["nicotine_content"] = string(*patch.NicotineContent)
	}

	var rows []specificationRow
	_, err := c.do(ctx, request{
		client: c.admin,
		method: http.MethodPatch,
		path:   specificationsTable,
		query:  url.Values{"id": {eq(id)}, "user_id": {eq(userID)}},
		header: returnRepresentation,
		body:   body,
		out:    &rows,
	})
	if err != nil {
		return nil, fmt.Errorf("supabase: updating specification %s: %w", id, err)
	}
	if len(rows) == 0 {
		return nil, notOwnedOrMissing(id)
	}
	rec := rows[0].model()
	return &rec, nil
}

func (c *Client) Delete(ctx context.Context, id, userID string) error {
	var rows []specificationRow
	_, err := c.do(ctx, request{
		client: c.admin,
		method: http.MethodDelete,
		path:   specificationsTable,
		query:  url.Values{"id": {eq(id)}, "user_id": {eq(userID)}},
		header: returnRepresentation,
		out:    &rows,
	})
	if err != nil {
		return fmt.Errorf("supabase: deleting specification %s: %w", id, err)
	}
	if len(rows) == 0 {
		return notOwnedOrMissing(id)
	}
	return nil
}
