package supabase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/sakif/snuffspec/internal/apperror"
	"github.com/sakif/snuffspec/internal/gateway"
	"github.com/sakif/snuffspec/internal/model"
)

var (
	_ gateway.Authenticator = (*Client)(nil)
	_ gateway.IdentityAdmin = (*Client)(nil)
)

// goTrueUser is the subset of a GoTrue user object we read.
type goTrueUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

func (u goTrueUser) identity() *model.Identity {
	return &model.Identity{ID: u.ID, Email: u.Email}
}

// SendCode asks GoTrue to email a one-time code.
// create_user mirrors opts.AllowNewUser.
func (c *Client) SendCode(ctx context.Context, email string, opts gateway.SendOptions) error {
	_, err := c.do(ctx, request{
		client: c.public,
		method: http.MethodPost,
		path:   "/auth/v1/otp",
		body: map[string]any{
			"email":       strings.TrimSpace(email),
			"create_user": opts.AllowNewUser,
		},
	})
	return err
}

// VerifyCode exchanges an email code for the verified user.
//
// GoTrue also returns access and refresh tokens. We do not keep them: the
// service issues its own session cookie naming the verified identity.
func (c *Client) VerifyCode(ctx context.Context, email, code string) (*model.Identity, error) {
	var out struct {
		User goTrueUser `json:"user"`
	}
	_, err := c.do(ctx, request{
		client: c.public,
		method: http.MethodPost,
		path:   "/auth/v1/verify",
		body: map[string]any{
			"type":  "email",
			"email": strings.TrimSpace(email),
			"token": code,
		},
		out: &out,
	})
	if err != nil {
		return nil, err
	}
	if out.User.ID == "" {
		return nil, &gateway.Error{StatusCode: http.StatusBadGateway, Message: "verify response has no user"}
	}
	return out.User.identity(), nil
}

// CreateIdentity creates a confirmed user through the admin API.
func (c *Client) CreateIdentity(ctx context.Context, email, fullName string) (*model.Identity, error) {
	var out goTrueUser
	_, err := c.do(ctx, request{
		client: c.admin,
		method: http.MethodPost,
		path:   "/auth/v1/admin/users",
		body: map[string]any{
			"email":         strings.TrimSpace(email),
			"email_confirm": true,
			"user_metadata": map[string]string{"full_name": fullName},
		},
		out: &out,
	})
	if err != nil {
		return nil, err
	}
	return out.identity(), nil
}

func (c *Client) DeleteIdentity(ctx context.Context, id string) error {
	_, err := c.do(ctx, request{
		client: c.admin,
		method: http.MethodDelete,
		path:   "/auth/v1/admin/users/" + url.PathEscape(id),
	})
	var gwErr *gateway.Error
	if errors.As(err, &gwErr) && gwErr.StatusCode == http.StatusNotFound {
		return apperror.NotFound("user", id)
	}
	return err
}

// listPageSize is GoTrue's maximum per_page.
const listPageSize = 1000

func (c *Client) ListIdentities(ctx context.Context) ([]model.Identity, error) {
	var identities []model.Identity
	for page := 1; ; page++ {
		var out struct {
			Users []goTrueUser `json:"users"`
		}
		_, err := c.do(ctx, request{
			client: c.admin,
			method: http.MethodGet,
			path:   "/auth/v1/admin/users",
			query: url.Values{
				"page":     {strconv.Itoa(page)},
				"per_page": {strconv.Itoa(listPageSize)},
			},
			out: &out,
		})
		if err != nil {
			return nil, fmt.Errorf("supabase: listing users page %d: %w", page, err)
		}
		for _, u := range out.Users {
			identities = append(identities, *u.identity())
		}
		if len(out.Users) < listPageSize {
			return identities, nil
		}
	}
}

// FindIdentityByEmail scans the admin user list; GoTrue has no lookup by email.
func (c *Client) FindIdentityByEmail(ctx context.Context, email string) (*model.Identity, error) {
	identities, err := c.ListIdentities(ctx)
	if err != nil {
		return nil, err
	}
	for _, i := range identities {
		if strings.EqualFold(i.Email, strings.TrimSpace(email)) {
			found := i
			return &found, nil
		}
	}
	return nil, apperror.NotFound("user", email)
}
