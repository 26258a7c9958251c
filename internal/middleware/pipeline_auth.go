package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"coopledger/internal/logger"
)

// PipelineActor is recorded as the importer of statements uploaded by the
// bank feed.
const PipelineActor = "pipeline:bank-feed"

// PipelineAuthMiddleware admits bank-feed uploads carrying one of the
// configured keys in X-API-Key and scopes them to coopID, the cooperative
// whose account the feed delivers. apiKeys is a comma-separated list so a
// new key can be rolled out before the old one is retired.
func PipelineAuthMiddleware(apiKeys, coopID string) gin.HandlerFunc {
	keys := splitKeys(apiKeys)
	log := logger.Named("pipeline")

	return func(c *gin.Context) {
		if len(keys) == 0 || coopID == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable,
				gin.H{"error": gin.H{"code": "PIPELINE_NOT_CONFIGURED", "message": "Pipeline endpoints are not configured"}})
			return
		}

		slot := matchKey(keys, c.GetHeader("X-API-Key"))
		if slot < 0 {
			log.Warnw("rejected pipeline request", "client_ip", c.ClientIP(), "route", c.FullPath())
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				gin.H{"error": gin.H{"code": "INVALID_API_KEY", "message": "Invalid or missing API key"}})
			return
		}
		if slot > 0 {
			log.Infow("pipeline request used a secondary key", "slot", slot)
		}

		c.Set("userID", PipelineActor)
		c.Set("coopID", coopID)
		c.Next()
	}
}

func splitKeys(raw string) [][]byte {
	var keys [][]byte
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, []byte(k))
		}
	}
	return keys
}

// matchKey returns the index of the key equal to presented, or -1. Every
// key is compared so timing does not reveal which slot matched.
func matchKey(keys [][]byte, presented string) int {
	if presented == "" {
		return -1
	}
	got := []byte(presented)
	slot := -1
	for i, k := range keys {
		if subtle.ConstantTimeCompare(got, k) == 1 && slot < 0 {
			slot = i
		}
	}
	return slot
}
