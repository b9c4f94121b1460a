package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vadim/mention-tracker/internal/domain/account/entity"
	"github.com/vadim/mention-tracker/internal/domain/account/policy"
	mentionentity "github.com/vadim/mention-tracker/internal/domain/mention/entity"
	pollingentity "github.com/vadim/mention-tracker/internal/domain/polling/entity"
	"github.com/vadim/mention-tracker/internal/httpx/response"
)

// AccountPolicy defines the interface for tracked account operations
type AccountPolicy interface {
	List(ctx context.Context, includeInactive bool) ([]*entity.Account, error)
	Get(ctx context.Context, id string) (*entity.Account, error)
	Create(ctx context.Context, in policy.CreateInput) (*entity.Account, error)
	SetActive(ctx context.Context, id string, active bool) (*entity.Account, error)
	ReplaceCredentials(ctx context.Context, id string, c entity.Credentials) (*entity.Account, error)
	Delete(ctx context.Context, id string) error
	TriggerFetch(ctx context.Context, id string) (pollingentity.Outcome, error)
	Statistics(ctx context.Context, id string) (*mentionentity.AccountStatistics, error)
}

// AccountHandler handles HTTP requests for tracked accounts
type AccountHandler struct {
	policy AccountPolicy
}

// NewAccountHandler creates a new account handler
func NewAccountHandler(p AccountPolicy) *AccountHandler {
	return &AccountHandler{policy: p}
}

// RegisterRoutes registers account routes
func (h *AccountHandler) RegisterRoutes(r chi.Router) {
	r.Route("/accounts", func(r chi.Router) {
		r.Get("/", h.List())
		r.Post("/", h.Create())

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Get())
			r.Patch("/", h.Update())
			r.Delete("/", h.Delete())

			// Replace OAuth credentials after re-authorization
			r.Put("/credentials", h.ReplaceCredentials())

			// Poll immediately
			r.Post("/fetch", h.Fetch())

			r.Get("/statistics", h.Statistics())
		})
	})
}

// ListAccountsResponse represents the response for listing accounts
type ListAccountsResponse struct {
	Accounts []*entity.Account `json:"accounts"`
	Total    int               `json:"total"`
}

// List handles GET /accounts
func (h *AccountHandler) List() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		includeInactive := r.URL.Query().Get("include_inactive") == "true"

		accounts, err := h.policy.List(r.Context(), includeInactive)
		if err != nil {
			handleAccountError(w, err)
			return
		}
		if accounts == nil {
			accounts = []*entity.Account{}
		}

		response.OK(w, ListAccountsResponse{
			Accounts: accounts,
			Total:    len(accounts),
		})
	}
}

// Get handles GET /accounts/{id}
func (h *AccountHandler) Get() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		acc, err := h.policy.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			handleAccountError(w, err)
			return
		}
		response.OK(w, acc)
	}
}

// CreateAccountRequest represents the request body for registering an account
type CreateAccountRequest struct {
	ExternalID   string     `json:"external_id"`
	Username     string     `json:"username"`
	DisplayName  string     `json:"display_name"`
	AvatarURL    string     `json:"avatar_url"`
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	ExpiresAt    *time.Time `json:"expires_at"`
	AddedBy      string     `json:"added_by"`
}

// Create handles POST /accounts
func (h *AccountHandler) Create() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAccountRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.BadRequest(w, "invalid request body")
			return
		}

		in := policy.CreateInput{
			ExternalID:   req.ExternalID,
			Username:     req.Username,
			DisplayName:  req.DisplayName,
			AvatarURL:    req.AvatarURL,
			AccessToken:  req.AccessToken,
			RefreshToken: req.RefreshToken,
			AddedBy:      req.AddedBy,
		}
		if req.ExpiresAt != nil {
			in.ExpiresAt = *req.ExpiresAt
		}

		acc, err := h.policy.Create(r.Context(), in)
		if err != nil {
			handleAccountError(w, err)
			return
		}
		response.Created(w, acc)
	}
}

// UpdateAccountRequest represents the request body for pausing or resuming
type UpdateAccountRequest struct {
	Active *bool `json:"active"`
}

// Update handles PATCH /accounts/{id}
func (h *AccountHandler) Update() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req UpdateAccountRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.BadRequest(w, "invalid request body")
			return
		}
		if req.Active == nil {
			response.BadRequest(w, "active is required")
			return
		}

		acc, err := h.policy.SetActive(r.Context(), chi.URLParam(r, "id"), *req.Active)
		if err != nil {
			handleAccountError(w, err)
			return
		}
		response.OK(w, acc)
	}
}

// CredentialsRequest represents the request body for replacing credentials
type CredentialsRequest struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	ExpiresAt    *time.Time `json:"expires_at"`
}

// ReplaceCredentials handles PUT /accounts/{id}/credentials
func (h *AccountHandler) ReplaceCredentials() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CredentialsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.BadRequest(w, "invalid request body")
			return
		}

		creds := entity.Credentials{
			AccessToken:  req.AccessToken,
			RefreshToken: req.RefreshToken,
		}
		if req.ExpiresAt != nil {
			creds.ExpiresAt = *req.ExpiresAt
		}

		acc, err := h.policy.ReplaceCredentials(r.Context(), chi.URLParam(r, "id"), creds)
		if err != nil {
			handleAccountError(w, err)
			return
		}
		response.OK(w, acc)
	}
}

// Delete handles DELETE /accounts/{id}
func (h *AccountHandler) Delete() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.policy.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
			handleAccountError(w, err)
			return
		}
		response.NoContent(w)
	}
}

// FetchResponse represents the result of a manual poll
type FetchResponse struct {
	AccountID   string                    `json:"account_id"`
	Outcome     pollingentity.OutcomeKind `json:"outcome"`
	NewMentions int                       `json:"new_mentions"`
	Cursor      string                    `json:"cursor,omitempty"`
	Message     string                    `json:"message,omitempty"`
	DurationMS  int64                     `json:"duration_ms"`
}

// Fetch handles POST /accounts/{id}/fetch
func (h *AccountHandler) Fetch() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := h.policy.TriggerFetch(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			handleAccountError(w, err)
			return
		}

		// The poll ran; a failed outcome is already projected onto the account.
		response.OK(w, FetchResponse{
			AccountID:   out.AccountID,
			Outcome:     out.Kind,
			NewMentions: out.NewMentions,
			Cursor:      out.Cursor,
			Message:     out.Message,
			DurationMS:  out.Duration.Milliseconds(),
		})
	}
}

// Statistics handles GET /accounts/{id}/statistics
func (h *AccountHandler) Statistics() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := h.policy.Statistics(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			handleAccountError(w, err)
			return
		}
		response.OK(w, stats)
	}
}

// handleAccountError maps account and polling errors to HTTP responses
func handleAccountError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, entity.ErrAccountNotFound):
		response.NotFound(w, err.Error())
	case errors.Is(err, entity.ErrMissingCredentials), errors.Is(err, entity.ErrMissingExternalID):
		response.BadRequest(w, err.Error())
	case errors.Is(err, pollingentity.ErrPollInProgress):
		response.Conflict(w, err.Error())
	case errors.Is(err, pollingentity.ErrAccountPaused):
		response.Conflict(w, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		response.Error(w, http.StatusGatewayTimeout, "request timed out")
	default:
		response.InternalError(w, "internal server error")
	}
}
