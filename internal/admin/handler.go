// AngelaMos | 2026
// handler.go

package admin

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"runtime"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/flightscheduly/backend/internal/auth"
	"github.com/flightscheduly/backend/internal/core"
	"github.com/flightscheduly/backend/internal/middleware"
)

// SessionRevoker ends a user's refresh session.
type SessionRevoker interface {
	RevokeToken(ctx context.Context, userID string) error
}

type Handler struct {
	dbStats    func() sql.DBStats
	redisStats func() *redis.PoolStats
	redisPing  func(ctx context.Context) error
	dbPing     func(ctx context.Context) error
	sessions   SessionRevoker
}

type HandlerConfig struct {
	DBStats    func() sql.DBStats
	RedisStats func() *redis.PoolStats
	RedisPing  func(ctx context.Context) error
	DBPing     func(ctx context.Context) error
	Sessions   SessionRevoker
}

func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{
		dbStats:    cfg.DBStats,
		redisStats: cfg.RedisStats,
		redisPing:  cfg.RedisPing,
		dbPing:     cfg.DBPing,
		sessions:   cfg.Sessions,
	}
}

func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator, adminOnly func(http.Handler) http.Handler,
) {
	r.Route("/admin", func(r chi.Router) {
		r.Use(authenticator)
		r.Use(adminOnly)

		r.Get("/stats", h.GetSystemStats)
		r.Get("/stats/runtime", h.GetRuntimeStats)
		r.Post("/sessions/{userID}/revoke", h.RevokeSession)
	})
}

// RevokeSession rotates the target's security stamp. Their current access
// token keeps working until it expires but cannot be refreshed.
func (h *Handler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	if err := h.sessions.RevokeToken(r.Context(), userID); err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			core.NotFound(w, "user")
			return
		}
		core.InternalServerError(w, err)
		return
	}

	slog.InfoContext(r.Context(), "session revoked by administrator",
		"user_id", userID,
		"by", middleware.GetUserID(r.Context()),
	)
	core.NoContent(w)
}

func (h *Handler) GetSystemStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	response := SystemStatsResponse{
		Database: DatabaseStatus{
			Healthy: pingOK(ctx, h.dbPing),
			Stats:   h.getDBStats(),
		},
		Redis: RedisStatus{
			Healthy: pingOK(ctx, h.redisPing),
			Stats:   h.getRedisStats(),
		},
		Runtime: readRuntimeStats(),
	}

	core.OK(w, response)
}

func (h *Handler) GetRuntimeStats(w http.ResponseWriter, r *http.Request) {
	core.OK(w, readRuntimeStats())
}

func pingOK(ctx context.Context, ping func(context.Context) error) bool {
	if ping == nil {
		return true
	}
	return ping(ctx) == nil
}

func readRuntimeStats() RuntimeStats {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return RuntimeStats{
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
		NumCPU:       runtime.NumCPU(),
		MemAlloc:     memStats.Alloc,
		MemSys:       memStats.Sys,
		NumGC:        memStats.NumGC,
	}
}

func (h *Handler) getDBStats() *DBPoolStats {
	if h.dbStats == nil {
		return nil
	}

	stats := h.dbStats()
	return &DBPoolStats{
		MaxOpenConnections: stats.MaxOpenConnections,
		OpenConnections:    stats.OpenConnections,
		InUse:              stats.InUse,
		Idle:               stats.Idle,
		WaitCount:          stats.WaitCount,
		WaitDuration:       stats.WaitDuration.String(),
	}
}

func (h *Handler) getRedisStats() *RedisPoolStats {
	if h.redisStats == nil {
		return nil
	}

	stats := h.redisStats()
	return &RedisPoolStats{
		Hits:       stats.Hits,
		Misses:     stats.Misses,
		Timeouts:   stats.Timeouts,
		TotalConns: stats.TotalConns,
		IdleConns:  stats.IdleConns,
	}
}
