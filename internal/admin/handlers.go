// Package admin provides HTTP handlers for the gateway administration API.
// Routes expose account registration, key pool status, manual refreshes and
// the rotation cursor. All admin routes are protected by bearer-token
// authentication via AuthMiddleware.
package admin

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/clashkit/cocgw/internal/accountstore"
	"github.com/clashkit/cocgw/internal/logging"
	"github.com/clashkit/cocgw/internal/version"
	"github.com/clashkit/cocgw/keyring"
)

// Handlers holds dependencies for admin HTTP handlers.
type Handlers struct {
	Keys *keyring.Manager
	// Accounts persists accounts registered through the API. Optional.
	Accounts accountstore.Store
	// Now defaults to time.Now.
	Now func() time.Time
}

type accountView struct {
	keyring.AccountStatus
	Persisted    bool  `json:"persisted"`
	RefreshCount int64 `json:"refresh_count,omitempty"`
}

type refreshResult struct {
	Email string `json:"email"`
	Keys  int    `json:"keys"`
	Error string `json:"error,omitempty"`
}

type refreshResponse struct {
	IP         string          `json:"ip"`
	UsableKeys int             `json:"usable_keys"`
	Failed     int             `json:"failed"`
	Accounts   []refreshResult `json:"accounts"`
}

// Routes returns a chi.Router with all admin endpoints mounted.
func (h *Handlers) Routes() chi.Router {
	r := chi.NewRouter()

	// Read-only endpoints (accessible with read-only or admin scope).
	r.Group(func(r chi.Router) {
		r.Use(RequireScope(ScopeReadOnly, ScopeAdmin))
		r.Get("/status", h.status)
		r.Get("/accounts", h.listAccounts)
		r.Get("/accounts/{email}", h.getAccount)
	})

	// Write endpoints (admin scope only).
	r.Group(func(r chi.Router) {
		r.Use(RequireScope(ScopeAdmin))
		r.Post("/accounts", h.createAccount)
		r.Delete("/accounts/{email}", h.deleteAccount)
		r.Post("/accounts/{email}/refresh", h.refreshAccount)
		r.Post("/refresh", h.refreshAll)
		r.Post("/rotation/reset", h.resetRotation)
	})

	return r
}

func (h *Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h *Handlers) status(w http.ResponseWriter, _ *http.Request) {
	ix := h.Keys.Index()
	statuses := h.Keys.Status()
	empty := 0
	for _, st := range statuses {
		if st.Keys == 0 {
			empty++
		}
	}
	accounts := map[string]int{
		"total":        len(statuses),
		"without_keys": empty,
	}
	rotation := map[string]int{
		"account": ix.Account,
		"key":     ix.Key,
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"version":     version.Short(),
		"accounts":    accounts,
		"usable_keys": h.Keys.Usable(),
		"rotation":    rotation,
	})
}

func (h *Handlers) listAccounts(w http.ResponseWriter, _ *http.Request) {
	statuses := h.Keys.Status()
	out := make([]accountView, 0, len(statuses))
	for _, st := range statuses {
		out = append(out, h.view(st))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) getAccount(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")
	st, ok := h.findStatus(email)
	if !ok {
		writeError(w, http.StatusNotFound, "account not found", "not_found_error", "resource_not_found")
		return
	}
	writeJSON(w, http.StatusOK, h.view(st))
}

func (h *Handlers) createAccount(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Refresh  bool   `json:"refresh"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "invalid_request_error", "invalid_request")
		return
	}
	cred := keyring.Credential{Email: body.Email, Password: body.Password}
	if cred.Password == "" {
		writeError(w, http.StatusBadRequest, "password is required", "invalid_request_error", "invalid_request")
		return
	}

	if err := h.Keys.Register(cred); err != nil {
		h.writeKeyringError(w, err)
		return
	}
	if h.Accounts != nil {
		if _, err := h.Accounts.Create(cred.Email, cred.Password); err != nil {
			_ = h.Keys.Deregister(cred.Email)
			if errors.Is(err, accountstore.ErrDuplicate) {
				writeError(w, http.StatusConflict, err.Error(), "conflict_error", "account_exists")
				return
			}
			if errors.Is(err, keyring.ErrInvalidCredential) {
				writeError(w, http.StatusBadRequest, err.Error(), "invalid_request_error", "invalid_request")
				return
			}
			writeError(w, http.StatusInternalServerError, "failed to persist account", "server_error", "internal_error")
			return
		}
	}
	logging.FromContext(r.Context()).Info("account registered", "email", cred.Email)

	if body.Refresh {
		n, err := h.Keys.Refresh(r.Context(), cred.Email)
		h.record(cred.Email, n, err)
		if err != nil {
			logging.FromContext(r.Context()).Warn("initial refresh failed", "email", cred.Email, "error", err)
		}
	}

	st, _ := h.findStatus(cred.Email)
	writeJSON(w, http.StatusCreated, h.view(st))
}

func (h *Handlers) deleteAccount(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")
	if err := h.Keys.Deregister(email); err != nil {
		h.writeKeyringError(w, err)
		return
	}
	if h.Accounts != nil {
		if err := h.Accounts.Delete(email); err != nil && !errors.Is(err, accountstore.ErrNotFound) {
			logging.FromContext(r.Context()).Error("failed to delete stored account", "email", email, "error", err)
		}
	}
	logging.FromContext(r.Context()).Info("account deregistered", "email", email)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) refreshAccount(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")
	n, err := h.Keys.Refresh(r.Context(), email)
	if errors.Is(err, keyring.ErrAccountNotFound) {
		h.writeKeyringError(w, err)
		return
	}
	h.record(email, n, err)
	if err != nil {
		h.writeKeyringError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, refreshResult{Email: email, Keys: n})
}

func (h *Handlers) refreshAll(w http.ResponseWriter, r *http.Request) {
	report, err := h.Keys.RefreshAll(r.Context())
	if err != nil {
		h.writeKeyringError(w, err)
		return
	}
	if err := accountstore.RecordReport(h.Accounts, report, h.now()); err != nil {
		logging.FromContext(r.Context()).Error("failed to record refresh", "error", err)
	}

	resp := refreshResponse{
		IP:         report.IP.String(),
		UsableKeys: report.Usable(),
		Failed:     len(report.Failed()),
		Accounts:   make([]refreshResult, 0, len(report.Results)),
	}
	for _, res := range report.Results {
		item := refreshResult{Email: res.Email, Keys: res.Keys}
		if res.Err != nil {
			item.Error = res.Err.Error()
		}
		resp.Accounts = append(resp.Accounts, item)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) resetRotation(w http.ResponseWriter, _ *http.Request) {
	h.Keys.Reset()
	ix := h.Keys.Index()
	writeJSON(w, http.StatusOK, map[string]int{"account": ix.Account, "key": ix.Key})
}

func (h *Handlers) findStatus(email string) (keyring.AccountStatus, bool) {
	for _, st := range h.Keys.Status() {
		if sameEmail(st.Email, email) {
			return st, true
		}
	}
	return keyring.AccountStatus{}, false
}

func sameEmail(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func (h *Handlers) view(st keyring.AccountStatus) accountView {
	v := accountView{AccountStatus: st}
	if h.Accounts != nil {
		if a, ok := h.Accounts.Get(st.Email); ok {
			v.Persisted = true
			v.RefreshCount = a.RefreshCount
		}
	}
	return v
}

func (h *Handlers) record(email string, keys int, err error) {
	if h.Accounts == nil {
		return
	}
	_ = h.Accounts.RecordRefresh(email, h.now(), keys, err)
}

// writeKeyringError maps keyring errors to admin API responses.
func (h *Handlers) writeKeyringError(w http.ResponseWriter, err error) {
	var refreshErr *keyring.RefreshError
	switch {
	case errors.Is(err, keyring.ErrInvalidCredential):
		writeError(w, http.StatusBadRequest, err.Error(), "invalid_request_error", "invalid_credential")
	case errors.Is(err, keyring.ErrDuplicateAccount):
		writeError(w, http.StatusConflict, err.Error(), "conflict_error", "account_exists")
	case errors.Is(err, keyring.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, "account not found", "not_found_error", "resource_not_found")
	case errors.Is(err, keyring.ErrAuth):
		writeError(w, http.StatusBadGateway, err.Error(), "upstream_error", "portal_auth_failed")
	case errors.As(err, &refreshErr):
		writeError(w, http.StatusBadGateway, err.Error(), "upstream_error", "refresh_failed")
	default:
		writeError(w, http.StatusBadGateway, err.Error(), "upstream_error", "portal_error")
	}
}
