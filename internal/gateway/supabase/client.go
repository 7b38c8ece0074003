// Package supabase talks to a hosted Supabase project: GoTrue for one-time
// codes and identities, PostgREST for the user_profiles and
// snuff_specifications tables.
//
// Two HTTP clients are kept. The public one carries the anon key and is
// used for the sign-in calls a browser could make itself. The admin one
// carries the service role key and is used for everything privileged.
// Both authenticate with a bearer token (x/oauth2 static token source)
// plus the "apikey" header the Supabase gateway also expects.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/sakif/snuffspec/internal/apperror"
	"github.com/sakif/snuffspec/internal/gateway"
)

type Config struct {
	URL            string
	AnonKey        string
	ServiceRoleKey string

	// Base transport for both clients. Tests point this at httptest.
	Transport http.RoundTripper
	Timeout   time.Duration
}

type Client struct {
	baseURL *url.URL
	public  *http.Client
	admin   *http.Client
}

// New validates cfg and builds the two clients. Missing values come back as
// a Configuration error naming each absent key.
func New(cfg Config) (*Client, error) {
	var missing []string
	if cfg.URL == "" {
		missing = append(missing, "SUPABASE_URL")
	}
	if cfg.AnonKey == "" {
		missing = append(missing, "SUPABASE_ANON_KEY")
	}
	if cfg.ServiceRoleKey == "" {
		missing = append(missing, "SUPABASE_SERVICE_ROLE_KEY")
	}
	if len(missing) > 0 {
		return nil, apperror.Configuration(missing...)
	}

	base, err := url.Parse(strings.TrimRight(cfg.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("supabase: parsing URL: %w", err)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		baseURL: base,
		public:  keyedClient(cfg.AnonKey, cfg.Transport, timeout),
		admin:   keyedClient(cfg.ServiceRoleKey, cfg.Transport, timeout),
	}, nil
}

func keyedClient(key string, base http.RoundTripper, timeout time.Duration) *http.Client {
	if base == nil {
		base = http.DefaultTransport
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: key, TokenType: "Bearer"}),
			Base:   apiKeyTransport{key: key, base: base},
		},
	}
}

// apiKeyTransport adds the "apikey" header on top of the bearer token.
type apiKeyTransport struct {
	key  string
	base http.RoundTripper
}

func (t apiKeyTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.Header.Set("apikey", t.key)
	return t.base.RoundTrip(r)
}

// request describes one call. out may be nil.
type request struct {
	client *http.Client
	method string
	path   string
	query  url.Values
	header http.Header
	body   any
	out    any
}

// do performs the request and decodes a 2xx JSON body into req.out.
// Non-2xx answers become *gateway.Error with the server's own wording.
func (c *Client) do(ctx context.Context, req request) (*http.Response, error) {
	u := *c.baseURL
	u.Path = u.Path + req.path
	if req.query != nil {
		u.RawQuery = req.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		buf, err := json.Marshal(req.body)
		if err != nil {
			return nil, fmt.Errorf("supabase: encoding %s %s: %w", req.method, req.path, err)
		}
		body = bytes.NewReader(buf)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("supabase: building %s %s: %w", req.method, req.path, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range req.header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	resp, err := req.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("supabase: %s %s: %w", req.method, req.path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp, decodeError(resp)
	}

	if req.out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(req.out); err != nil && err != io.EOF {
			return resp, fmt.Errorf("supabase: decoding %s %s: %w", req.method, req.path, err)
		}
	}
	return resp, nil
}

// errorBody covers the shapes GoTrue and PostgREST use for failures.
type errorBody struct {
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	ErrorCode        string `json:"error_code"`
	Code             any    `json:"code"` // int from GoTrue, string from PostgREST
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var eb errorBody
	_ = json.Unmarshal(raw, &eb)

	gwErr := &gateway.Error{StatusCode: resp.StatusCode, Code: eb.ErrorCode}
	if gwErr.Code == "" {
		if s, ok := eb.Code.(string); ok {
			gwErr.Code = s
		}
	}

	for _, m := range []string{eb.Msg, eb.Message, eb.ErrorDescription, eb.Error} {
		if m != "" {
			gwErr.Message = m
			break
		}
	}
	if gwErr.Message == "" {
		gwErr.Message = strings.TrimSpace(string(raw))
	}
	if gwErr.Message == "" {
		gwErr.Message = http.StatusText(resp.StatusCode)
	}
	return gwErr
}
