package handler

import (
	"net/http"

	"github.com/arangkita/arang-chat/internal/api/response"
	"github.com/arangkita/arang-chat/internal/repository/mongo"
	"github.com/arangkita/arang-chat/internal/repository/redis"
)

// HealthCheck returns a simple health check response
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.OK(w, map[string]string{
		"status": "ok",
	})
}

// ReadyCheck returns readiness status including store and feed
// connectivity
func ReadyCheck(db *mongo.DB, redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			response.Error(w, http.StatusServiceUnavailable, "store not ready")
			return
		}
		if err := redisClient.Ping(r.Context()); err != nil {
			response.Error(w, http.StatusServiceUnavailable, "feed not ready")
			return
		}

		response.OK(w, map[string]string{
			"status": "ready",
		})
	}
}
