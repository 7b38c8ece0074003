package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/sakif/snuffspec/internal/access"
	"github.com/sakif/snuffspec/internal/auth"
	"github.com/sakif/snuffspec/internal/gateway"
	"github.com/sakif/snuffspec/internal/otp"
	"github.com/sakif/snuffspec/internal/service"
)

// FlowCookieName holds the opaque sign-in flow id between requests.
const FlowCookieName = "signin_flow"

// SignInHandler serves the one-time-code sign-in pages and the session
// endpoints around them.
//
// HANDLER RESPONSIBILITIES:
//   - HandleStart    → load or begin a flow, remember where to go afterwards
//   - HandleCode     → send a code to an email
//   - HandleVerify   → check the code, set the session cookie
//   - HandleResend   → send the code again (no-op while cooling down)
//   - HandleBack     → return to email entry
//   - HandleCallback → sign in from an emailed link
//   - HandleSignOut  → clear the session and the flow
//   - HandleMe       → who am I
type SignInHandler struct {
	signin   *service.SignInService
	sessions *auth.CookieSessions
	gw       gateway.Authenticator
	secure   bool
	logger   *slog.Logger
}

func NewSignInHandler(
	signin *service.SignInService,
	sessions *auth.CookieSessions,
	gw gateway.Authenticator,
	secureCookies bool,
	logger *slog.Logger,
) *SignInHandler {
	return &SignInHandler{
		signin:   signin,
		sessions: sessions,
		gw:       gw,
		secure:   secureCookies,
		logger:   logger,
	}
}

type signInPage struct {
	Flow     service.FlowView `json:"flow"`
	ReturnTo string           `json:"returnTo"`
	Notice   string           `json:"notice,omitempty"`
}

type verifiedPage struct {
	Flow        service.FlowView `json:"flow"`
	RedirectTo  string           `json:"redirectTo"`
	IsAnonymous bool             `json:"isAnonymous"`
}

// HandleStart returns the current sign-in state.
//
// HTTP: GET /auth/signin?redirectedFrom=/specification/42
func (h *SignInHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	out, err := h.signin.Start(r.Context(), h.flowID(r), r.URL.Query().Get("redirectedFrom"))
	if err != nil {
		writeError(w, err)
		return
	}
	h.setFlowCookie(w, out.FlowID)

	writeData(w, http.StatusOK, signInPage{
		Flow:     out.View,
		ReturnTo: out.ReturnTo,
		Notice:   r.URL.Query().Get("error"),
	})
}

// HandleCode sends a code.
//
// HTTP: POST /auth/signin/code  {"email": "a@b.com"}
func (h *SignInHandler) HandleCode(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, err)
		return
	}

	out, err := h.signin.RequestCode(r.Context(), h.flowID(r), body.Email)
	h.writeStep(w, out, err)
}

// HandleResend sends the code again to the stored email.
//
// HTTP: POST /auth/signin/resend
func (h *SignInHandler) HandleResend(w http.ResponseWriter, r *http.Request) {
	out, err := h.signin.ResendCode(r.Context(), h.flowID(r))
	h.writeStep(w, out, err)
}

// HandleBack returns the flow to email entry.
//
// HTTP: POST /auth/signin/back
func (h *SignInHandler) HandleBack(w http.ResponseWriter, r *http.Request) {
	out, err := h.signin.Back(r.Context(), h.flowID(r))
	h.writeStep(w, out, err)
}

// HandleVerify checks the code and, on success, sets the session cookie.
//
// HTTP: POST /auth/signin/verify  {"code": "123456"}
func (h *SignInHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Code string `json:"code"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, err)
		return
	}

	out, err := h.signin.VerifyCode(r.Context(), h.flowID(r), body.Code)
	if err != nil || !out.Result.Success {
		h.writeStep(w, out, err)
		return
	}

	if err := h.sessions.Establish(w, *out.Identity); err != nil {
		writeError(w, err)
		return
	}
	h.clearFlowCookie(w)

	writeData(w, http.StatusOK, verifiedPage{
		Flow:        out.View,
		RedirectTo:  out.ReturnTo,
		IsAnonymous: out.IsAnonymous,
	})
}

// writeStep answers a controller step. A failed step is 429 when it was a
// rate limit and 400 otherwise; the flow view is sent either way so the
// page can show the countdown.
func (h *SignInHandler) writeStep(w http.ResponseWriter, out *service.SignInOutcome, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	h.setFlowCookie(w, out.FlowID)

	res := ActionResult{
		Success:         out.Result.Success,
		Data:            signInPage{Flow: out.View, ReturnTo: out.ReturnTo},
		Error:           out.Result.Error,
		IsRateLimit:     out.Result.IsRateLimit,
		WaitTimeSeconds: out.Result.WaitTimeSeconds,
	}

	status := http.StatusOK
	switch {
	case out.Result.IsRateLimit:
		status = http.StatusTooManyRequests
		res.Kind = "rate_limited"
	case !out.Result.Success:
		status = http.StatusBadRequest
		res.Kind = "validation_error"
	}
	writeJSON(w, status, res)
}

// HandleCallback signs in from an emailed link.
//
// HTTP: GET /auth/callback?email=a@b.com&token=123456&next=/specification/42
//
// Failures go back to the sign-in page with the reason in ?error=.
func (h *SignInHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	email, token := q.Get("email"), q.Get("token")
	if email == "" || token == "" {
		h.callbackFailed(w, r, "The sign-in link is incomplete")
		return
	}

	identity, err := h.gw.VerifyCode(r.Context(), email, token)
	if err != nil {
		h.logger.Warn("sign-in link rejected",
			slog.String("email", email),
			slog.String("error", err.Error()),
		)
		msg := "The sign-in link is invalid or has expired"
		var gwErr *gateway.Error
		if errors.As(err, &gwErr) {
			msg = gwErr.Message
		}
		h.callbackFailed(w, r, msg)
		return
	}

	if err := h.sessions.Establish(w, *identity); err != nil {
		h.logger.Error("establishing session", slog.String("error", err.Error()))
		h.callbackFailed(w, r, "Could not start your session")
		return
	}
	http.Redirect(w, r, service.SafeReturnTo(q.Get("next")), http.StatusSeeOther)
}

func (h *SignInHandler) callbackFailed(w http.ResponseWriter, r *http.Request, msg string) {
	http.Redirect(w, r, access.SignInPath+"?"+url.Values{"error": {msg}}.Encode(), http.StatusSeeOther)
}

// HandleSignOut clears the session cookie and any half-finished flow.
//
// HTTP: POST /auth/signout
func (h *SignInHandler) HandleSignOut(w http.ResponseWriter, r *http.Request) {
	h.sessions.Clear(w, r)
	if err := h.signin.Forget(r.Context(), h.flowID(r)); err != nil {
		h.logger.Warn("forgetting sign-in flow", slog.String("error", err.Error()))
	}
	h.clearFlowCookie(w)

	writeData(w, http.StatusOK, map[string]string{"redirectTo": access.SignInPath})
}

// HandleMe returns the resolved caller.
//
// HTTP: GET /me
func (h *SignInHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	p := access.PrincipalFromContext(r.Context())
	identity, _ := access.IdentityFromContext(r.Context())

	me := struct {
		access.Principal
		ID    string `json:"id,omitempty"`
		Email string `json:"email,omitempty"`
	}{Principal: p}
	if identity != nil {
		me.ID = identity.ID
		me.Email = identity.Email
	}
	writeData(w, http.StatusOK, me)
}

func (h *SignInHandler) flowID(r *http.Request) string {
	c, err := r.Cookie(FlowCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

func (h *SignInHandler) setFlowCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     FlowCookieName,
		Value:    id,
		Path:     "/auth",
		MaxAge:   int(otp.FlowTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *SignInHandler) clearFlowCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     FlowCookieName,
		Value:    "",
		Path:     "/auth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
