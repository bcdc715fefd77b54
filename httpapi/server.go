// Package httpapi exposes the authentication engine over a JSON HTTP API.
// Session IDs travel in an HttpOnly cookie; access tokens are returned in
// the verify response body and presented back as bearer tokens.
package httpapi

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	lockstep "github.com/lockstep-auth/lockstep"
	"github.com/lockstep-auth/lockstep/logging"
	"github.com/lockstep-auth/lockstep/middleware"
)

// Server wires the engine's operations to HTTP routes.
type Server struct {
	engine *lockstep.Engine
	log    logging.Logger

	// CookieSecure controls the Secure attribute on the session cookie.
	// Disable only behind TLS termination in development.
	CookieSecure bool

	sessionLifetime time.Duration
}

// NewServer returns a server for the given engine.
func NewServer(engine *lockstep.Engine, log logging.Logger) *Server {
	if log == nil {
		log = logging.Nop{}
	}
	return &Server{
		engine:          engine,
		log:             log,
		CookieSecure:    true,
		sessionLifetime: engine.Config().Session.Lifetime,
	}
}

// Routes returns the API mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.HandleFunc("GET /api/auth/status", s.handleStatus)
	mux.HandleFunc("POST /api/auth/logout", s.handleLogout)
	mux.HandleFunc("POST /api/auth/2fa/setup", s.handleTOTPSetup)
	mux.HandleFunc("POST /api/auth/2fa/verify", s.handleTOTPVerify)
	mux.HandleFunc("POST /api/auth/2fa/reset", s.handleTOTPReset)

	return mux
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type codeRequest struct {
	Code string `json:"code"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !s.decode(w, r, &req) {
		return
	}

	identity, err := s.engine.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, map[string]any{
		"username": identity.Username,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !s.decode(w, r, &req) {
		return
	}

	ctx := lockstep.WithClientIP(r.Context(), clientIP(r))
	result, err := s.engine.Login(ctx, req.Username, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.setSessionCookie(w, result.SessionID)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"username":    result.Username,
		"mfa_active":  result.MFAActive,
		"mfa_pending": result.MFAPending,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.engine.Status(r.Context(), s.sessionID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"username":     status.Username,
		"mfa_active":   status.MFAActive,
		"mfa_verified": status.MFAVerified,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Logout(r.Context(), s.sessionID(r)); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.clearSessionCookie(w)
	s.writeJSON(w, http.StatusOK, map[string]any{"logged_out": true})
}

func (s *Server) handleTOTPSetup(w http.ResponseWriter, r *http.Request) {
	setup, err := s.engine.BeginTOTPSetup(r.Context(), s.sessionID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"secret": setup.Secret,
		"uri":    setup.URI,
	})
}

func (s *Server) handleTOTPVerify(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if !s.decode(w, r, &req) {
		return
	}

	result, err := s.engine.VerifyTOTP(r.Context(), s.sessionID(r), req.Code)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"token":      result.AccessToken,
		"expires_at": result.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleTOTPReset(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.ResetTOTP(r.Context(), s.sessionID(r)); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"reset": true})
}

func (s *Server) sessionID(r *http.Request) string {
	cookie, err := r.Cookie(middleware.SessionCookie)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func (s *Server) setSessionCookie(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    sessionID,
		Path:     "/",
		MaxAge:   int(s.sessionLifetime / time.Second),
		HttpOnly: true,
		Secure:   s.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]any{"error": "malformed request body"})
		return false
	}
	return true
}

// writeError maps engine sentinels to status codes. Backend failures get a
// generic body so internals never leak to clients.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, lockstep.ErrAccountExists):
		s.writeJSON(w, http.StatusConflict, map[string]any{"error": "account already exists"})
	case errors.Is(err, lockstep.ErrInvalidCredentials),
		errors.Is(err, lockstep.ErrUserNotFound),
		errors.Is(err, lockstep.ErrUnauthorized),
		errors.Is(err, lockstep.ErrTokenInvalid):
		s.writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
	case errors.Is(err, lockstep.ErrLoginRateLimited):
		s.writeJSON(w, http.StatusTooManyRequests, map[string]any{"error": "too many attempts"})
	case errors.Is(err, lockstep.ErrTOTPInvalid),
		errors.Is(err, lockstep.ErrTOTPRequired),
		errors.Is(err, lockstep.ErrTOTPNotConfigured):
		s.writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid code"})
	default:
		s.log.Error(r.Context(), "request failed", "path", r.URL.Path)
		s.writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal error"})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
