package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/circuitpad/internal/apperror"
	"github.com/sakif/circuitpad/internal/auth"
	"github.com/sakif/circuitpad/internal/service"
)

const stateCookieName = "oauth_state"

// AccountHandler serves registration, sessions and the GitHub login flow.
//
//	POST /accounts/create      → password registration
//	POST /sessions/create      → password login, returns a token and sets the cookie
//	POST /sessions/delete      → clears the cookie
//	GET  /accounts/get         → the current account
//	GET  /auth/github/login    → redirect to GitHub (only when configured)
//	GET  /auth/github/callback → finish the OAuth flow
//
// Tokens are stateless JWTs, so "logging out" only deletes the cookie; a
// token copied elsewhere stays valid until it expires.
type AccountHandler struct {
	accounts   *service.AccountService
	github     *auth.GitHubProvider // nil when GitHub OAuth is not configured
	sessionTTL time.Duration
	logger     *slog.Logger
}

func NewAccountHandler(
	accounts *service.AccountService,
	github *auth.GitHubProvider,
	sessionTTL time.Duration,
	logger *slog.Logger,
) *AccountHandler {
	return &AccountHandler{
		accounts:   accounts,
		github:     github,
		sessionTTL: sessionTTL,
		logger:     logger,
	}
}

type credentialsRequest struct {
	Handle   string `json:"handle"`
	Password string `json:"password"`
}

// HandleCreateAccount registers a password account.
func (h *AccountHandler) HandleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	account, err := h.accounts.Register(r.Context(), req.Handle, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusCreated, "account", account)
}

// HandleCreateSession logs in with a handle and password. The token is
// returned in the body for API clients and set as a cookie for browsers.
func (h *AccountHandler) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	session, err := h.accounts.Login(r.Context(), req.Handle, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	h.setTokenCookie(w, session.Token)
	writeOK(w, http.StatusOK, "session", session)
}

// HandleDeleteSession clears the session cookie.
func (h *AccountHandler) HandleDeleteSession(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeOK(w, http.StatusOK, "message", "logged out")
}

// HandleGetAccount returns the authenticated account.
func (h *AccountHandler) HandleGetAccount(w http.ResponseWriter, r *http.Request) {
	accountID := viewer(r)
	if accountID == "" {
		writeError(w, apperror.Unauthorized("authentication required"))
		return
	}
	account, err := h.accounts.Get(r.Context(), accountID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusOK, "account", account)
}

// HandleGitHubLogin redirects the browser to GitHub's consent page.
//
// A random state value goes into a short-lived HttpOnly cookie and into the
// redirect; the callback only proceeds when both match, which proves the
// flow started here and not on an attacker's page.
func (h *AccountHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback completes the OAuth flow:
//  1. check the state cookie against the state parameter
//  2. exchange the code for the GitHub profile
//  3. upsert the account and issue a token cookie
//  4. redirect home
func (h *AccountHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || stateCookie.Value == "" {
		h.logger.Warn("auth callback: missing state cookie")
		writeError(w, apperror.ValidationFailed("state", "invalid OAuth state"))
		return
	}
	if r.URL.Query().Get("state") != stateCookie.Value {
		h.logger.Warn("auth callback: state mismatch")
		writeError(w, apperror.ValidationFailed("state", "invalid OAuth state"))
		return
	}

	// Single use.
	http.SetCookie(w, &http.Cookie{Name: stateCookieName, Value: "", Path: "/", MaxAge: -1})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("auth callback: user denied authorization", slog.String("error", errParam))
		http.Redirect(w, r, "/?auth=denied", http.StatusSeeOther)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, apperror.ValidationFailed("code", "missing OAuth code"))
		return
	}

	ghUser, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("auth callback: GitHub exchange failed", slog.String("error", err.Error()))
		writeError(w, apperror.Unauthorized("GitHub authentication failed"))
		return
	}

	session, err := h.accounts.LoginOrRegisterGitHub(r.Context(), ghUser)
	if err != nil {
		h.logger.Error("auth callback: account upsert failed",
			slog.Int64("githubID", ghUser.ID),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}

	h.setTokenCookie(w, session.Token)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// setTokenCookie stores the JWT in an HttpOnly cookie so page scripts cannot
// read it. Secure is left to the TLS-terminating proxy in front of us.
func (h *AccountHandler) setTokenCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.sessionTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
