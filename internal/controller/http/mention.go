package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	accountentity "github.com/vadim/mention-tracker/internal/domain/account/entity"
	"github.com/vadim/mention-tracker/internal/domain/mention/entity"
	"github.com/vadim/mention-tracker/internal/domain/mention/service"
	pollingentity "github.com/vadim/mention-tracker/internal/domain/polling/entity"
	"github.com/vadim/mention-tracker/internal/httpx/response"
)

// MentionPolicy defines the interface for mention operations
type MentionPolicy interface {
	List(ctx context.Context, in service.ListInput) (*service.ListOutput, error)
	Get(ctx context.Context, id string) (*entity.Mention, error)
	Reply(ctx context.Context, id, text string) (*entity.Mention, error)
	Ignore(ctx context.Context, id string) (*entity.Mention, error)
}

// MentionHandler handles HTTP requests for mentions
type MentionHandler struct {
	policy MentionPolicy
}

// NewMentionHandler creates a new mention handler
func NewMentionHandler(p MentionPolicy) *MentionHandler {
	return &MentionHandler{policy: p}
}

// RegisterRoutes registers mention routes
func (h *MentionHandler) RegisterRoutes(r chi.Router) {
	r.Route("/mentions", func(r chi.Router) {
		r.Get("/", h.List())
		r.Get("/{id}", h.Get())
		r.Post("/{id}/reply", h.Reply())
		r.Post("/{id}/ignore", h.Ignore())
	})
}

// List handles GET /mentions
func (h *MentionHandler) List() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		limit := 20
		if l := q.Get("limit"); l != "" {
			if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
				limit = parsed
				if limit > 100 {
					limit = 100
				}
			}
		}

		offset := 0
		if o := q.Get("offset"); o != "" {
			if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
				offset = parsed
			}
		}

		in := service.ListInput{
			AccountID: q.Get("account_id"),
			Limit:     limit,
			Offset:    offset,
		}
		if s := q.Get("status"); s != "" {
			status := entity.Status(s)
			in.Status = &status
		}

		out, err := h.policy.List(r.Context(), in)
		if err != nil {
			handleMentionError(w, err)
			return
		}
		response.OK(w, out)
	}
}

// Get handles GET /mentions/{id}
func (h *MentionHandler) Get() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, err := h.policy.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			handleMentionError(w, err)
			return
		}
		response.OK(w, m)
	}
}

// ReplyRequest represents the request body for replying to a mention
type ReplyRequest struct {
	Text string `json:"text"`
}

// Reply handles POST /mentions/{id}/reply
func (h *MentionHandler) Reply() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ReplyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.BadRequest(w, "invalid request body")
			return
		}

		m, err := h.policy.Reply(r.Context(), chi.URLParam(r, "id"), req.Text)
		if err != nil {
			handleMentionError(w, err)
			return
		}
		response.OK(w, m)
	}
}

// Ignore handles POST /mentions/{id}/ignore
func (h *MentionHandler) Ignore() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, err := h.policy.Ignore(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			handleMentionError(w, err)
			return
		}
		response.OK(w, m)
	}
}

func handleMentionError(w http.ResponseWriter, err error) {
	var rle *pollingentity.RateLimitedError

	switch {
	case errors.Is(err, entity.ErrMentionNotFound), errors.Is(err, accountentity.ErrAccountNotFound):
		response.NotFound(w, err.Error())
	case errors.Is(err, entity.ErrEmptyReply), errors.Is(err, entity.ErrReplyTooLong), errors.Is(err, entity.ErrInvalidStatus):
		response.BadRequest(w, err.Error())
	case errors.Is(err, entity.ErrAlreadyFinalized), errors.Is(err, entity.ErrReplyInProgress):
		response.Conflict(w, err.Error())
	case errors.Is(err, entity.ErrReplyRejected):
		response.UnprocessableEntity(w, err.Error())
	case errors.Is(err, pollingentity.ErrTerminalCredential), errors.Is(err, pollingentity.ErrUnauthorized):
		response.UnprocessableEntity(w, "account credentials are no longer valid")
	case errors.As(err, &rle):
		if wait := time.Until(rle.ResetAt); wait > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(wait.Seconds())+1))
		}
		response.TooManyRequests(w, err.Error())
	case errors.Is(err, pollingentity.ErrRateLimited):
		response.TooManyRequests(w, err.Error())
	case errors.Is(err, pollingentity.ErrTransient):
		response.BadGateway(w, err.Error())
	default:
		response.InternalError(w, "internal server error")
	}
}
