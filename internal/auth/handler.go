// AngelaMos | 2026
// handler.go

package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"

	"github.com/flightscheduly/backend/internal/core"
	"github.com/flightscheduly/backend/internal/middleware"
)

const maxBodyBytes = 1 << 20

type Handler struct {
	service   *Service
	metrics   *Metrics
	validator *validator.Validate
}

func NewHandler(service *Service, metrics *Metrics) *Handler {
	return &Handler{
		service:   service,
		metrics:   metrics,
		validator: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// RegisterRoutes mounts /auth. credentialLimit guards the anonymous
// credential endpoints and may be nil.
func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator, adminOnly, credentialLimit func(http.Handler) http.Handler,
) {
	r.Route("/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if credentialLimit != nil {
				r.Use(credentialLimit)
			}
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
			r.Post("/refresh-token", h.RefreshToken)
		})

		r.Group(func(r chi.Router) {
			r.Use(authenticator)
			r.Post("/logout", h.Logout)
			r.Get("/me", h.GetMe)
			r.Put("/me", h.UpdateMe)
			r.Post("/change-password", h.ChangePassword)

			r.Group(func(r chi.Router) {
				r.Use(adminOnly)
				r.Post("/assign-role", h.AssignRole)
				r.Get("/user/{userId}", h.GetUser)
			})
		})
	})
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !h.decode(w, r, &req) {
		return
	}

	user, err := h.service.Register(r.Context(), req)
	if err != nil {
		slog.WarnContext(r.Context(), "registration rejected",
			"email", req.Email,
			"error", err,
		)
		h.metrics.registration(outcomeOf(err))
		writeServiceError(w, err)
		return
	}

	h.metrics.registration(outcomeSuccess)
	slog.InfoContext(r.Context(), "user registered",
		"user_id", user.ID,
		"email", user.Email,
	)

	w.Header().Set("Location", "/api/auth/user/"+user.ID)
	core.Created(w, user)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.service.Login(r.Context(), req)
	if err != nil {
		slog.WarnContext(r.Context(), "login failed",
			"email", req.Email,
			"reason", err,
		)
		h.metrics.login(outcomeOf(err))
		writeServiceError(w, err)
		return
	}

	h.metrics.login(outcomeSuccess)
	core.AddSpanEvent(r.Context(), "auth.login",
		attribute.String("user.id", result.User.ID),
	)
	slog.InfoContext(r.Context(), "login succeeded",
		"user_id", result.User.ID,
	)

	core.OK(w, result)
}

func (h *Handler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req RefreshTokenRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.service.RefreshToken(r.Context(), req.Token, req.RefreshToken)
	if err != nil {
		h.metrics.refresh(outcomeOf(err))
		writeServiceError(w, err)
		return
	}

	h.metrics.refresh(outcomeSuccess)
	core.AddSpanEvent(r.Context(), "auth.refresh",
		attribute.String("user.id", result.User.ID),
	)

	core.OK(w, result)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	if err := h.service.RevokeToken(r.Context(), userID); err != nil {
		writeServiceError(w, err)
		return
	}

	h.metrics.revocation()
	core.NoContent(w)
}

func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.GetUserByID(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	core.OK(w, user)
}

func (h *Handler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	var req UpdateUserRequest
	if !h.decode(w, r, &req) {
		return
	}

	user, err := h.service.UpdateUser(
		r.Context(),
		middleware.GetUserID(r.Context()),
		req,
	)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	core.OK(w, user)
}

func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req ChangePasswordRequest
	if !h.decode(w, r, &req) {
		return
	}

	userID := middleware.GetUserID(r.Context())
	if err := h.service.ChangePassword(r.Context(), userID, req); err != nil {
		writeServiceError(w, err)
		return
	}

	h.metrics.revocation()
	slog.InfoContext(r.Context(), "password changed", "user_id", userID)
	core.NoContent(w)
}

func (h *Handler) AssignRole(w http.ResponseWriter, r *http.Request) {
	var req AssignRoleRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.service.AssignRole(r.Context(), req.UserID, req.RoleName); err != nil {
		writeServiceError(w, err)
		return
	}

	slog.InfoContext(r.Context(), "role assigned",
		"user_id", req.UserID,
		"role", req.RoleName,
		"by", middleware.GetUserID(r.Context()),
	)
	core.NoContent(w)
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.GetUserByID(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	core.OK(w, user)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		core.BadRequest(w, "invalid request body")
		return false
	}

	if err := h.validator.Struct(dst); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return false
	}

	return true
}

// writeServiceError maps orchestrator errors onto HTTP responses. Token and
// refresh failures share one response so callers cannot tell them apart.
func writeServiceError(w http.ResponseWriter, err error) {
	var opErr *OperationError

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		core.JSONError(w, core.NewAppError(
			err, "Invalid credentials", http.StatusUnauthorized, "INVALID_CREDENTIALS",
		))
	case errors.Is(err, ErrAccountLocked):
		core.JSONError(w, core.NewAppError(
			err, "Account locked", http.StatusUnauthorized, "ACCOUNT_LOCKED",
		))
	case errors.Is(err, ErrInvalidToken), errors.Is(err, ErrInvalidRefreshToken):
		core.JSONError(w, core.TokenInvalidError())
	case errors.Is(err, ErrUserNotFound):
		core.JSONError(w, core.NotFoundError("user"))
	case errors.Is(err, ErrRoleNotFound):
		core.JSONError(w, core.NewAppError(
			err, "Role does not exist", http.StatusBadRequest, "ROLE_NOT_FOUND",
		))
	case errors.As(err, &opErr):
		code := "OPERATION_FAILED"
		if errors.Is(opErr, ErrRegistrationFailed) {
			code = "REGISTRATION_FAILED"
		}
		core.JSONError(w, core.NewAppError(
			opErr.Kind, opErr.Error(), http.StatusBadRequest, code,
		))
	default:
		core.InternalServerError(w, err)
	}
}

func outcomeOf(err error) string {
	var opErr *OperationError

	switch {
	case errors.Is(err, ErrAccountLocked):
		return outcomeLocked
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrInvalidToken),
		errors.Is(err, ErrInvalidRefreshToken),
		errors.As(err, &opErr):
		return outcomeFailure
	default:
		return outcomeError
	}
}
