package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/clipvault/clipvault/store"
	"github.com/clipvault/clipvault/utils"
)

const statsCacheKey = "stats:totals"

// StatsSource provides aggregate catalog numbers.
type StatsSource interface {
	Stats(ctx context.Context) (*store.Totals, error)
}

// StatsController serves aggregate download statistics with a short
// Redis cache in front of the database.
type StatsController struct {
	source StatsSource
	logger *zap.SugaredLogger
}

func NewStatsController(source StatsSource, logger *zap.SugaredLogger) *StatsController {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &StatsController{source: source, logger: logger}
}

// Totals handles GET /stats.
func (s *StatsController) Totals(ctx *gin.Context) {
	if raw, ok := utils.CacheGetBytes(statsCacheKey); ok {
		var cached store.Totals
		if err := json.Unmarshal(raw, &cached); err == nil {
			utils.Success(ctx, cached)
			return
		}
	}

	totals, err := s.source.Stats(ctx.Request.Context())
	if err != nil {
		s.logger.Errorw("failed to compute stats", "error", err)
		utils.Error(ctx, http.StatusInternalServerError, 50010, "failed to compute stats")
		return
	}

	utils.CacheSetJSON(statsCacheKey, totals, 30*time.Second)
	utils.Success(ctx, totals)
}
