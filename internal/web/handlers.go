package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/justestif/go-castor/internal/account"
	"github.com/justestif/go-castor/internal/catalog"
	"github.com/justestif/go-castor/internal/credential"
	"github.com/justestif/go-castor/internal/debounce"
	"github.com/justestif/go-castor/internal/search"
)

const (
	defaultBrowseLimit = 20
	maxBrowseLimit     = 50
	maxBodyBytes       = 1 << 20
)

// CredentialResolver hands out the current bearer credential.
type CredentialResolver interface {
	Resolve(ctx context.Context) (credential.Credential, error)
}

// TrackSearcher runs the tiered track search.
type TrackSearcher interface {
	Search(ctx context.Context, q debounce.Query) (search.Outcome, error)
}

// Browser is the catalog surface used by the browse routes.
type Browser interface {
	NewReleases(ctx context.Context, cred credential.Credential, limit int) ([]catalog.Album, error)
	Categories(ctx context.Context, cred credential.Credential, limit int) ([]catalog.Category, error)
	Category(ctx context.Context, cred credential.Credential, id string) (catalog.Category, error)
	SearchPlaylists(ctx context.Context, cred credential.Credential, query string, limit int) ([]catalog.Playlist, error)
	FeaturedPlaylists(ctx context.Context, cred credential.Credential, limit int) ([]catalog.Playlist, error)
}

// Handlers contains the HTTP handlers.
type Handlers struct {
	credentials CredentialResolver
	relay       http.Handler
	search      TrackSearcher
	catalog     Browser
	accounts    *account.Service
	logger      zerolog.Logger
	now         func() time.Time
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(deps Dependencies) *Handlers {
	return &Handlers{
		credentials: deps.Credentials,
		relay:       deps.Relay,
		search:      deps.Search,
		catalog:     deps.Catalog,
		accounts:    deps.Accounts,
		logger:      deps.Logger,
		now:         time.Now,
	}
}

type credentialResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type searchResponse struct {
	Sequence uint64          `json:"sequence"`
	Tier     search.Tier     `json:"tier"`
	Tracks   []catalog.Track `json:"tracks"`
}

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type authResponse struct {
	User  account.Profile `json:"user"`
	Token string          `json:"token"`
}

// Health reports liveness (GET /healthz).
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Credential returns the current bearer credential (GET /credential).
func (h *Handlers) Credential(w http.ResponseWriter, r *http.Request) {
	cred, ok := h.resolve(w, r)
	if !ok {
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, credentialResponse{
		AccessToken: cred.Value,
		TokenType:   cred.Kind,
		ExpiresIn:   cred.ExpiresIn(h.now()),
	})
}

// Search runs a tiered track search (GET /api/search?q=&seq=).
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	if h.search == nil {
		writeError(w, http.StatusServiceUnavailable, "search is not configured")
		return
	}

	query := r.URL.Query()
	var seq uint64
	if raw := query.Get("seq"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "seq must be a non-negative integer")
			return
		}
		seq = parsed
	}

	outcome, err := h.search.Search(r.Context(), debounce.Query{Text: query.Get("q"), Sequence: seq})
	if err != nil {
		// Only cancellation reaches here; the client has gone away.
		h.logger.Debug().Err(err).Msg("search abandoned")
		return
	}

	writeJSON(w, http.StatusOK, searchResponse{
		Sequence: outcome.Sequence,
		Tier:     outcome.Tier,
		Tracks:   outcome.Tracks,
	})
}

// NewReleases lists new album releases (GET /api/new-releases).
func (h *Handlers) NewReleases(w http.ResponseWriter, r *http.Request) {
	browse(h, w, r, func(ctx context.Context, cred credential.Credential, limit int) (any, error) {
		albums, err := h.catalog.NewReleases(ctx, cred, limit)
		return map[string]any{"albums": nonNil(albums)}, err
	})
}

// Categories lists browse categories (GET /api/categories).
func (h *Handlers) Categories(w http.ResponseWriter, r *http.Request) {
	browse(h, w, r, func(ctx context.Context, cred credential.Credential, limit int) (any, error) {
		categories, err := h.catalog.Categories(ctx, cred, limit)
		return map[string]any{"categories": nonNil(categories)}, err
	})
}

// Playlists searches playlists (GET /api/playlists?q=).
func (h *Handlers) Playlists(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	browse(h, w, r, func(ctx context.Context, cred credential.Credential, limit int) (any, error) {
		playlists, err := h.catalog.SearchPlaylists(ctx, cred, q, limit)
		return map[string]any{"playlists": nonNil(playlists)}, err
	})
}

func browse(h *Handlers, w http.ResponseWriter, r *http.Request, fetch func(context.Context, credential.Credential, int) (any, error)) {
	if h.catalog == nil {
		writeError(w, http.StatusServiceUnavailable, "catalog is not configured")
		return
	}

	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cred, ok := h.resolve(w, r)
	if !ok {
		return
	}

	body, err := fetch(r.Context(), cred, limit)
	if err != nil {
		h.logger.Warn().Err(err).Str("path", r.URL.Path).Msg("catalog request failed")
		writeError(w, http.StatusBadGateway, "catalog request failed")
		return
	}
	writeJSON(w, http.StatusOK, body)
}

// Register creates an account and logs it in (POST /auth/register).
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	if !h.accountsReady(w) {
		return
	}

	var reg account.Registration
	if !decodeJSON(w, r, &reg) {
		return
	}

	profile, token, err := h.accounts.Register(r.Context(), reg)
	switch {
	case errors.Is(err, account.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, account.ErrUserExists):
		writeError(w, http.StatusConflict, "email or username already registered")
		return
	case err != nil:
		h.logger.Error().Err(err).Msg("registration failed")
		writeError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	setTokenCookie(w, r, token, h.accounts.TTL())
	writeJSON(w, http.StatusCreated, authResponse{User: profile, Token: token})
}

// Login checks credentials and sets the session cookie (POST /auth/login).
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	if !h.accountsReady(w) {
		return
	}

	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Login == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "login and password are required")
		return
	}

	profile, token, err := h.accounts.Login(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, account.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		h.logger.Error().Err(err).Msg("login failed")
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	setTokenCookie(w, r, token, h.accounts.TTL())
	writeJSON(w, http.StatusOK, authResponse{User: profile, Token: token})
}

// Logout forgets the session and clears the cookie (POST /auth/logout).
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if h.accounts != nil {
		if err := h.accounts.Logout(r.Context(), tokenFromRequest(r)); err != nil {
			h.logger.Warn().Err(err).Msg("logout failed")
		}
	}
	clearTokenCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// Me returns the authenticated user's profile (GET /auth/me).
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	profile, err := h.accounts.Profile(r.Context(), userID)
	if err != nil {
		if errors.Is(err, account.ErrUnauthorized) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load profile")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": profile})
}

// resolve writes an error response and returns false when no credential is available.
func (h *Handlers) resolve(w http.ResponseWriter, r *http.Request) (credential.Credential, bool) {
	if h.credentials == nil {
		writeError(w, http.StatusServiceUnavailable, credential.ErrNoCredentialAvailable.Error())
		return credential.Credential{}, false
	}

	cred, err := h.credentials.Resolve(r.Context())
	if err != nil {
		if errors.Is(err, credential.ErrNoCredentialAvailable) {
			writeError(w, http.StatusServiceUnavailable, credential.ErrNoCredentialAvailable.Error())
			return credential.Credential{}, false
		}
		h.logger.Error().Err(err).Msg("resolving credential")
		writeError(w, http.StatusInternalServerError, "failed to resolve credential")
		return credential.Credential{}, false
	}
	return cred, true
}

func (h *Handlers) accountsReady(w http.ResponseWriter) bool {
	if h.accounts == nil {
		writeError(w, http.StatusServiceUnavailable, "accounts are not configured")
		return false
	}
	return true
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return defaultBrowseLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, errors.New("limit must be a positive integer")
	}
	return min(n, maxBrowseLimit), nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
