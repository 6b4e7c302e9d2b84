package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolHealth is the connection-pool snapshot reported by /health/db.
type PoolHealth struct {
	TotalConns    int32 `json:"total_conns"`
	IdleConns     int32 `json:"idle_conns"`
	AcquiredConns int32 `json:"acquired_conns"`
	MaxConns      int32 `json:"max_conns"`
}

func poolHealth(pool *pgxpool.Pool) PoolHealth {
	stat := pool.Stat()
	return PoolHealth{
		TotalConns:    stat.TotalConns(),
		IdleConns:     stat.IdleConns(),
		AcquiredConns: stat.AcquiredConns(),
		MaxConns:      stat.MaxConns(),
	}
}

// healthPayload renders the ping outcome. Split out so the mapping is
// testable without a live pool.
func healthPayload(pingErr error, pool PoolHealth) (int, map[string]interface{}) {
	if pingErr != nil {
		return http.StatusServiceUnavailable, map[string]interface{}{
			"status": "unhealthy",
			"error":  pingErr.Error(),
			"pool":   pool,
		}
	}
	return http.StatusOK, map[string]interface{}{
		"status": "ok",
		"pool":   pool,
	}
}

// HealthHandler serves the /health/db endpoint: a bounded ping plus pool
// statistics, 503 when the database is unreachable.
func HealthHandler(pool *pgxpool.Pool) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()

		code, body := healthPayload(pool.Ping(ctx), poolHealth(pool))
		return c.JSON(code, body)
	}
}
