package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"stride/api/internal/auth"
	"stride/api/internal/config"
	"stride/api/internal/guard"
	"stride/api/internal/logging"
	"stride/api/internal/rbac"
)

const maxBodyBytes = 1 << 20

type HTTPServer struct {
	service     *Service
	corsOrigin  string
	serviceName string
	limiter     *ipLimiter
	proxies     trustedProxies
}

func NewHTTPServer(service *Service, cfg *config.Config) *HTTPServer {
	if cfg == nil {
		cfg = &config.Config{}
	}
	name := cfg.ServiceName
	if name == "" {
		name = "stride-api"
	}
	origin := cfg.CORSOrigin
	if origin == "" {
		origin = "*"
	}
	// Load has already rejected malformed entries.
	proxies, err := cfg.TrustedProxyNets()
	if err != nil {
		service.logger.WithError(err).Warn("ignoring TRUSTED_PROXIES")
	}
	return &HTTPServer{
		service:     service,
		corsOrigin:  origin,
		serviceName: name,
		limiter:     newIPLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		proxies:     proxies,
	}
}

// Handler is the full stack: tracing, request context, body limit, CORS, then
// the router with its access log and per-route limits.
func (s *HTTPServer) Handler() http.Handler {
	var h http.Handler = s.routes()
	h = withCORS(h, s.corsOrigin)
	h = withBodyLimit(h, maxBodyBytes)
	h = withRequestContext(h, s.service.logger, s.proxies)
	return withTracing(h, s.serviceName)
}

func withBodyLimit(next http.Handler, limit int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, limit)
		}
		next.ServeHTTP(w, r)
	})
}

func (s *HTTPServer) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(accessLog(s.service.Metrics()))
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	r.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/api/ready", s.handleReady).Methods(http.MethodGet, http.MethodHead)
	r.Handle("/metrics", s.service.Metrics().Handler()).Methods(http.MethodGet)

	authRoutes := r.PathPrefix("/api/auth").Subrouter()
	authRoutes.Use(s.limiter.middleware)
	s.authRoutes(authRoutes)

	aiRoutes := r.PathPrefix("/api/ai").Subrouter()
	aiRoutes.Use(s.limiter.middleware)
	s.aiRoutes(aiRoutes)

	r.HandleFunc("/dashboard/{role}", s.handleDashboardPage).Methods(http.MethodGet)
	r.HandleFunc("/api/dashboard/{role}", s.handleDashboardAPI).Methods(http.MethodGet)

	s.actionRoutes(r)
	s.queryRoutes(r)
	s.reportRoutes(r)
	return r
}

// =============================================================================
// Sessions and guards
// =============================================================================

type sessionHandler func(w http.ResponseWriter, r *http.Request, actor *auth.Session)

// lookupSession returns nil for a missing, invalid or expired token. Only
// infrastructure failures are errors.
func (s *HTTPServer) lookupSession(r *http.Request) (*auth.Session, error) {
	token := bearerToken(r)
	if token == "" {
		return nil, nil
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
		return nil, nil
	}
	return session, err
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (*auth.Session, bool) {
	session, err := s.lookupSession(r)
	if err != nil {
		logging.FromContext(r.Context()).WithError(err).Error("session lookup failed")
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
		return nil, false
	}
	if session == nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return nil, false
	}
	return session, true
}

func (s *HTTPServer) authed(next sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := s.requireSession(w, r)
		if !ok {
			return
		}
		r = r.WithContext(logging.WithUserID(r.Context(), actor.UserID))
		next(w, r, actor)
	}
}

// guardAPI answers a denied decision on an API route. Forbidden leaks nothing
// beyond the generic message.
func guardAPI(w http.ResponseWriter, d guard.Decision) bool {
	switch d.Outcome {
	case guard.Allow:
		return true
	case guard.Login:
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
	default:
		writeDomainError(w, errForbidden)
	}
	return false
}

// guardPage redirects a denied decision on a page route.
func guardPage(w http.ResponseWriter, r *http.Request, d guard.Decision) bool {
	if d.Allowed() {
		return true
	}
	http.Redirect(w, r, d.Redirect, http.StatusFound)
	return false
}

type dashboardRoute struct {
	decide func(session *auth.Session, next string) guard.Decision
	load   func(s *Service, ctx context.Context, actor *auth.Session) (any, error)
}

// present drops typed nil views so callers can test for "not allowed".
func present[V any](v *V, err error) (any, error) {
	if err != nil || v == nil {
		return nil, err
	}
	return v, nil
}

var dashboardRoutes = map[string]dashboardRoute{
	"admin": {guard.RequireAdmin, func(s *Service, ctx context.Context, actor *auth.Session) (any, error) {
		v, err := s.AdminDashboard(ctx, actor)
		return present(v, err)
	}},
	"manager": {guard.RequireManager, func(s *Service, ctx context.Context, actor *auth.Session) (any, error) {
		v, err := s.ManagerDashboard(ctx, actor)
		return present(v, err)
	}},
	"lead": {guard.RequireLead, func(s *Service, ctx context.Context, actor *auth.Session) (any, error) {
		v, err := s.LeadDashboard(ctx, actor)
		return present(v, err)
	}},
	"employee": {employeeGuard, func(s *Service, ctx context.Context, actor *auth.Session) (any, error) {
		v, err := s.EmployeeDashboard(ctx, actor)
		return present(v, err)
	}},
}

func employeeGuard(session *auth.Session, next string) guard.Decision {
	return guard.RequirePermission(session, next, rbac.PermDashboardEmployee)
}

func (s *HTTPServer) dashboard(w http.ResponseWriter, r *http.Request, page bool) {
	route, ok := dashboardRoutes[mux.Vars(r)["role"]]
	if !ok {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	session, err := s.lookupSession(r)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	decision := route.decide(session, r.URL.Path)
	if page && !guardPage(w, r, decision) {
		return
	}
	if !page && !guardAPI(w, decision) {
		return
	}
	ctx := logging.WithUserID(r.Context(), decision.Session.UserID)
	view, err := route.load(s.service, ctx, decision.Session)
	if err != nil {
		writeFailure(w, r.WithContext(ctx), err)
		return
	}
	if view == nil {
		writeDomainError(w, errForbidden)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *HTTPServer) handleDashboardPage(w http.ResponseWriter, r *http.Request) {
	s.dashboard(w, r, true)
}

func (s *HTTPServer) handleDashboardAPI(w http.ResponseWriter, r *http.Request) {
	s.dashboard(w, r, false)
}

// =============================================================================
// Health
// =============================================================================

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{}
	probes := []struct {
		name string
		ping func(context.Context) error
	}{
		{"database", s.service.Ping},
		{"sessions", s.service.PingSessions},
	}
	for _, probe := range probes {
		if err := probe.ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks[probe.name] = map[string]any{"status": "error", "error": err.Error()}
			continue
		}
		checks[probe.name] = map[string]any{"status": "ok"}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

// =============================================================================
// Auth
// =============================================================================

func (s *HTTPServer) authRoutes(r *mux.Router) {
	r.HandleFunc("/register", s.handleRegister).Methods(http.MethodPost)
	r.HandleFunc("/signin", s.handleSignIn).Methods(http.MethodPost)
	r.HandleFunc("/verify-email", s.handleVerifyEmail).Methods(http.MethodPost)
	r.HandleFunc("/verify-email/resend", s.authed(s.handleResendVerification)).Methods(http.MethodPost)
	r.HandleFunc("/reset-password/request", s.handleRequestReset).Methods(http.MethodPost)
	r.HandleFunc("/reset-password", s.handleResetPassword).Methods(http.MethodPost)
	r.HandleFunc("/refresh", s.handleRefresh).Methods(http.MethodPost)
	r.HandleFunc("/logout", s.handleLogout).Methods(http.MethodPost)
	r.HandleFunc("/session", s.handleSession).Methods(http.MethodGet)
	r.HandleFunc("/me", s.authed(s.handleMe)).Methods(http.MethodGet)
	r.HandleFunc("/oauth/google", s.handleOAuthStart).Methods(http.MethodGet)
	r.HandleFunc("/oauth/google/callback", s.handleOAuthCallback).Methods(http.MethodPost)
}

func (s *HTTPServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body RegisterInput
	if !decodeOrFail(w, r, &body) {
		return
	}
	result, token := s.service.register(r.Context(), body)
	if !result.Success {
		writeAction(w, result)
		return
	}

	response := map[string]any{
		"success": true,
		"id":      result.ID,
		"message": "Please check your email to verify your account",
	}
	// Dev bypass: include verification token in response when email not configured
	if !s.service.SMTPConfigured() {
		response["devVerificationToken"] = token
		response["message"] = "Account created. Verify your email to continue."
	}
	writeJSON(w, http.StatusCreated, response)
}

func (s *HTTPServer) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var body SignInInput
	if !decodeOrFail(w, r, &body) {
		return
	}
	tokens, err := s.service.SignIn(r.Context(), body)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokens)
}

func (s *HTTPServer) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token string `json:"token"`
	}
	if !decodeOrFail(w, r, &body) {
		return
	}
	if err := s.service.VerifyEmail(r.Context(), body.Token); err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Email verified"})
}

func (s *HTTPServer) handleResendVerification(w http.ResponseWriter, r *http.Request, actor *auth.Session) {
	token, err := s.service.ResendVerification(r.Context(), actor)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	response := map[string]any{"success": true, "message": "Verification email sent"}
	if !s.service.SMTPConfigured() {
		response["devVerificationToken"] = token
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *HTTPServer) handleRequestReset(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if !decodeOrFail(w, r, &body) {
		return
	}
	token, err := s.service.RequestPasswordReset(r.Context(), body.Email)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	response := map[string]any{
		"success": true,
		"message": "If an account exists, a reset email has been sent",
	}
	if !s.service.SMTPConfigured() && token != "" {
		response["devResetToken"] = token
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *HTTPServer) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if !decodeOrFail(w, r, &body) {
		return
	}
	if err := s.service.ResetPassword(r.Context(), body.Token, body.Password); err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Password has been reset"})
}

type refreshBody struct {
	RefreshToken string `json:"refreshToken"`
}

func (s *HTTPServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body refreshBody
	if !decodeOrFail(w, r, &body) {
		return
	}
	tokens, err := s.service.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokens)
}

func (s *HTTPServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	var body refreshBody
	if !decodeOrFail(w, r, &body) {
		return
	}
	session, err := s.lookupSession(r)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	if err := s.service.Logout(r.Context(), session, body.RefreshToken); err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *HTTPServer) handleSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.lookupSession(r)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	if session == nil {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "user": nil})
		return
	}
	user, err := s.service.Me(r.Context(), session)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"authenticated": true, "user": user, "expiresAt": session.ExpiresAt})
}

func (s *HTTPServer) handleMe(w http.ResponseWriter, r *http.Request, actor *auth.Session) {
	user, err := s.service.Me(r.Context(), actor)
	writeView(w, r, user, err)
}

func (s *HTTPServer) handleOAuthStart(w http.ResponseWriter, r *http.Request) {
	url, err := s.service.OAuthStart(r.Context())
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"url": url})
}

func (s *HTTPServer) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Code  string `json:"code"`
		State string `json:"state"`
	}
	if !decodeOrFail(w, r, &body) {
		return
	}
	tokens, err := s.service.OAuthCallback(r.Context(), body.Code, body.State)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokens)
}

// =============================================================================
// JSON helpers
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func writeDomainError(w http.ResponseWriter, err *DomainError) {
	writeError(w, err.Status, err.Code, err.Message, err.Details)
}

// writeFailure maps err and logs anything that ends up as a 500.
func writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		logging.FromContext(r.Context()).WithError(err).WithField("path", r.URL.Path).Error("request failed")
	}
	writeError(w, status, code, message, details)
}

// writeView answers a read query: a nil view means the actor may not see it.
func writeView[V any](w http.ResponseWriter, r *http.Request, view *V, err error) {
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	if view == nil {
		writeDomainError(w, errForbidden)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func writeAction(w http.ResponseWriter, result ActionResult) {
	writeJSON(w, result.Status(), result)
}

// decodeBody accepts an empty body so bodiless POSTs decode to the zero value.
func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("request body too large")
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func decodeOrFail(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := decodeBody(r, target); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return false
	}
	return true
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}
