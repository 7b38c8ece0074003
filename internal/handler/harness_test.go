package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/snuffspec/internal/access"
	"github.com/sakif/snuffspec/internal/apperror"
	"github.com/sakif/snuffspec/internal/auth"
	"github.com/sakif/snuffspec/internal/handler"
	"github.com/sakif/snuffspec/internal/model"
	"github.com/sakif/snuffspec/internal/otp"
	"github.com/sakif/snuffspec/internal/repository/sqlite"
	"github.com/sakif/snuffspec/internal/service"
)

// captureDelivery keeps the last code sent to each email instead of mailing it.
type captureDelivery struct {
	mu    sync.Mutex
	codes map[string]string
}

func (d *captureDelivery) DeliverCode(_ context.Context, email, code string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.codes == nil {
		d.codes = make(map[string]string)
	}
	d.codes[email] = code
	return nil
}

func (d *captureDelivery) code(email string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.codes[email]
}

// fakeProducts is an in-memory catalog.Source.
type fakeProducts struct {
	products []model.Product
	err      error
}

func (f *fakeProducts) ListProducts(context.Context) ([]model.Product, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.products, nil
}

func (f *fakeProducts) GetProduct(_ context.Context, id int64) (*model.Product, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, p := range f.products {
		if p.ID == id {
			return &p, nil
		}
	}
	return nil, apperror.NotFound("product", strconv.FormatInt(id, 10))
}

// harness wires the real handlers, gate and local gateway the way the
// server does, against an in-memory database.
type harness struct {
	t        *testing.T
	db       *sqlite.DB
	codes    *captureDelivery
	products *fakeProducts
	tokens   *auth.TokenService
	router   http.Handler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	codes := &captureDelivery{}
	db, err := sqlite.New(":memory:",
		sqlite.WithCodeHasher(auth.NewCodeHasherForTest(bcrypt.MinCost)),
		sqlite.WithCodeDelivery(codes),
		sqlite.WithLogger(logger),
	)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tokens, err := auth.NewTokenService("handler-test-secret-0123456789", time.Hour)
	require.NoError(t, err)
	sessions := auth.NewCookieSessions(tokens, false)

	products := &fakeProducts{products: []model.Product{
		{ID: 7, Title: "Mint Pouch", Vendor: "Nordic", ProductType: "Pouch", Tags: "mint, strong"},
		{ID: 8, Title: "Classic Loose", Vendor: "Brukets", ProductType: "Loose", Tags: "tobacco"},
	}}

	signin := service.NewSignInService(db, otp.NewMemoryStore(64, otp.FlowTTL), db, nil, logger)
	specs := service.NewSpecificationService(db, logger)
	admin := service.NewAdminService(db, db, logger)

	signinH := handler.NewSignInHandler(signin, sessions, db, false, logger)
	catalogH := handler.NewCatalogHandler(products, specs, logger)
	specH := handler.NewSpecificationHandler(specs, products, logger)
	adminH := handler.NewAdminHandler(admin, logger)
	setupH := handler.NewSetupHandler(admin, logger)

	r := chi.NewRouter()
	r.Use(access.NewGate(sessions, db, nil, logger).Handler)
	r.Get("/auth/signin", signinH.HandleStart)
	r.Post("/auth/signin/code", signinH.HandleCode)
	r.Post("/auth/signin/verify", signinH.HandleVerify)
	r.Post("/auth/signin/resend", signinH.HandleResend)
	r.Post("/auth/signin/back", signinH.HandleBack)
	r.Get("/auth/callback", signinH.HandleCallback)
	r.Post("/auth/signout", signinH.HandleSignOut)
	r.Get("/me", signinH.HandleMe)
	r.Get("/", catalogH.HandleList)
	r.Get("/specification/mine", specH.HandleMine)
	r.Get("/specification/all", specH.HandleAll)
	r.Patch("/specification/records/{id}", specH.HandleUpdate)
	r.Delete("/specification/records/{id}", specH.HandleDelete)
	r.Get("/specification/{productID}", catalogH.HandleProduct)
	r.Post("/specification/{productID}", specH.HandleSave)
	r.Get("/admin/users", adminH.HandleList)
	r.Post("/admin/users", adminH.HandleCreate)
	r.Put("/admin/users/{id}/role", adminH.HandleUpdateRole)
	r.Delete("/admin/users/{id}", adminH.HandleDelete)
	r.Get("/setup", setupH.HandleStatus)
	r.Post("/setup/create-admin", setupH.HandleCreateAdmin)

	return &harness{t: t, db: db, codes: codes, products: products, tokens: tokens, router: r}
}

// createUser makes an identity and, unless role is empty, a profile.
func (h *harness) createUser(email, fullName string, role model.Role) *model.Identity {
	h.t.Helper()
	ctx := context.Background()

	identity, err := h.db.CreateIdentity(ctx, email, fullName)
	require.NoError(h.t, err)
	if role != "" {
		require.NoError(h.t, h.db.CreateProfile(ctx, &model.UserProfile{ID: identity.ID, FullName: fullName, Role: role}))
	}
	return identity
}

// browser carries cookies between requests like a real one would.
type browser struct {
	h       *harness
	cookies map[string]*http.Cookie
}

func (h *harness) browser() *browser {
	return &browser{h: h, cookies: make(map[string]*http.Cookie)}
}

// signedIn returns a browser already holding a session for identity.
func (h *harness) signedIn(identity *model.Identity) *browser {
	h.t.Helper()
	token, err := h.tokens.Generate(*identity)
	require.NoError(h.t, err)

	b := h.browser()
	b.cookies[auth.SessionCookieName] = &http.Cookie{Name: auth.SessionCookieName, Value: token}
	return b
}

func (b *browser) do(method, path string, body any) *httptest.ResponseRecorder {
	b.h.t.Helper()

	var r io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(b.h.t, err)
		r = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range b.cookies {
		req.AddCookie(c)
	}

	rec := httptest.NewRecorder()
	b.h.router.ServeHTTP(rec, req)

	for _, c := range rec.Result().Cookies() {
		if c.MaxAge < 0 {
			delete(b.cookies, c.Name)
			continue
		}
		b.cookies[c.Name] = c
	}
	return rec
}

// envelope mirrors handler.ActionResult with the payload left raw.
type envelope struct {
	Success         bool            `json:"success"`
	Data            json.RawMessage `json:"data"`
	Error           string          `json:"error"`
	Kind            string          `json:"kind"`
	Field           string          `json:"field"`
	IsRateLimit     bool            `json:"isRateLimit"`
	WaitTimeSeconds int             `json:"waitTimeSeconds"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, data any) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	if data != nil && len(env.Data) > 0 {
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
	return env
}

func newRawRequest(method, path, body string) (*http.Request, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	return req, httptest.NewRecorder()
}
