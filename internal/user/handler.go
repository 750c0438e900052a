// AngelaMos | 2026
// handler.go

package user

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/flightscheduly/backend/internal/core"
	"github.com/flightscheduly/backend/internal/middleware"
)

type Handler struct {
	service   *Service
	validator *validator.Validate
}

func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// RegisterAdminRoutes mounts the account directory used by administrators.
func (h *Handler) RegisterAdminRoutes(
	r chi.Router,
	authenticator, adminOnly func(http.Handler) http.Handler,
) {
	r.Route("/admin/users", func(r chi.Router) {
		r.Use(authenticator)
		r.Use(adminOnly)

		r.Get("/", h.ListUsers)
		r.Put("/{userID}/active", h.SetActive)
		r.Post("/{userID}/unlock", h.Unlock)
	})
}

// ListUsers returns a page of accounts, optionally filtered by a search
// term over email and names and by numeric user type.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	params := ListUsersParams{
		Page:     parseIntQuery(r, "page", 1),
		PageSize: parseIntQuery(r, "pageSize", 20),
		Search:   r.URL.Query().Get("search"),
		UserType: parseIntQuery(r, "userType", 0),
	}
	params.Normalize()

	users, total, err := h.service.ListUsers(r.Context(), params)
	if err != nil {
		core.InternalServerError(w, err)
		return
	}

	core.Paginated(
		w,
		ToUserSummaryList(users),
		params.Page,
		params.PageSize,
		total,
	)
}

func (h *Handler) SetActive(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req SetActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	if userID == middleware.GetUserID(r.Context()) && !*req.IsActive {
		core.Forbidden(w, "cannot deactivate your own account")
		return
	}

	if err := h.service.SetActive(r.Context(), userID, *req.IsActive); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			core.NotFound(w, "user")
			return
		}
		core.InternalServerError(w, err)
		return
	}

	slog.InfoContext(r.Context(), "user active flag changed",
		"user_id", userID,
		"is_active", *req.IsActive,
		"by", middleware.GetUserID(r.Context()),
	)
	core.NoContent(w)
}

func (h *Handler) Unlock(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	if err := h.service.Unlock(r.Context(), userID); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			core.NotFound(w, "user")
			return
		}
		core.InternalServerError(w, err)
		return
	}

	core.NoContent(w)
}

func parseIntQuery(r *http.Request, key string, defaultVal int) int {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultVal
	}

	parsed, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}

	return parsed
}
