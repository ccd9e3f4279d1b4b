package controllers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clipvault/clipvault/downloader"
	"github.com/clipvault/clipvault/gate"
	"github.com/clipvault/clipvault/middleware"
	"github.com/clipvault/clipvault/models"
	"github.com/clipvault/clipvault/platform"
	"github.com/clipvault/clipvault/store"
	"github.com/clipvault/clipvault/utils"
)

// adTokenTTL bounds how long an issued ad session stays redeemable.
const adTokenTTL = 10 * time.Minute

// UserGetter loads a user row for admission checks.
type UserGetter interface {
	Get(ctx context.Context, id uint) (*models.User, error)
}

// VideoCatalog is the dedup index of already-downloaded videos.
type VideoCatalog interface {
	FindByKey(ctx context.Context, key string) (*models.Video, error)
	Create(ctx context.Context, key string, p platform.Platform, filePath string, fileSize int64, ownerID uint) (*models.Video, error)
	LogDownload(ctx context.Context, userID uint, videoID string) error
}

// Fetcher performs the actual extraction when a URL has no cached copy.
type Fetcher interface {
	Download(ctx context.Context, rawURL string, p platform.Platform) (*downloader.Result, error)
}

// AdTokenStore issues and redeems one-time rewarded-ad session tokens.
type AdTokenStore interface {
	Issue(userID uint, ttl time.Duration) string
	Redeem(userID uint, token string) bool
}

// redisAdTokens backs AdTokenStore with the shared Redis client.
type redisAdTokens struct{}

func (redisAdTokens) Issue(userID uint, ttl time.Duration) string {
	token := uuid.NewString()
	utils.SaveAdToken(userID, token, ttl)
	return token
}

func (redisAdTokens) Redeem(userID uint, token string) bool {
	return utils.ConsumeAdToken(userID, token)
}

// NewAdTokenStore returns the Redis-backed token store.
func NewAdTokenStore() AdTokenStore {
	return redisAdTokens{}
}

// DownloadController owns the download request lifecycle: cooldown
// admission, dedup lookup, extraction and the download audit trail.
type DownloadController struct {
	users    UserGetter
	videos   VideoCatalog
	fetcher  Fetcher
	gate     *gate.Gate
	adTokens AdTokenStore
	logger   *zap.SugaredLogger
}

// NewDownloadController wires the controller's collaborators.
func NewDownloadController(users UserGetter, videos VideoCatalog, fetcher Fetcher, g *gate.Gate, adTokens AdTokenStore, logger *zap.SugaredLogger) *DownloadController {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &DownloadController{
		users:    users,
		videos:   videos,
		fetcher:  fetcher,
		gate:     g,
		adTokens: adTokens,
		logger:   logger,
	}
}

type downloadRequest struct {
	URL      string `json:"url" binding:"required"`
	Platform string `json:"platform" binding:"required"`
}

type downloadResponse struct {
	Success       bool   `json:"success"`
	VideoID       string `json:"videoId,omitempty"`
	DownloadURL   string `json:"downloadUrl,omitempty"`
	CooldownUntil string `json:"cooldownUntil,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Request handles POST /download: admit through the cooldown gate, serve
// from the dedup index when the URL was seen before, otherwise extract.
func (d *DownloadController) Request(ctx *gin.Context) {
	userID, ok := middleware.UserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	var req downloadRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, downloadResponse{Success: false, Error: "url and platform are required"})
		return
	}

	p, ok := platform.Parse(req.Platform)
	if !ok {
		ctx.JSON(http.StatusBadRequest, downloadResponse{Success: false, Error: "unsupported platform"})
		return
	}
	if !p.ValidURL(req.URL) {
		ctx.JSON(http.StatusBadRequest, downloadResponse{Success: false, Error: "url does not match the selected platform"})
		return
	}

	user, err := d.users.Get(ctx.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
			return
		}
		d.logger.Errorw("failed to load user", "user_id", userID, "error", err)
		ctx.JSON(http.StatusInternalServerError, downloadResponse{Success: false, Error: "internal error"})
		return
	}

	key, canonical := p.Normalize(req.URL)
	if !canonical {
		d.logger.Warnw("canonical key fallback", "platform", p, "url", req.URL)
	}

	decision, err := d.gate.Admit(ctx.Request.Context(), user)
	if err != nil {
		d.logger.Errorw("cooldown admission failed", "user_id", userID, "error", err)
		ctx.JSON(http.StatusInternalServerError, downloadResponse{Success: false, Error: "internal error"})
		return
	}
	if !decision.Admitted {
		ctx.JSON(http.StatusOK, downloadResponse{
			Success:       false,
			CooldownUntil: decision.CooldownUntil.UTC().Format(time.RFC3339),
			Error:         "cooldown period active",
		})
		return
	}

	video, err := d.videos.FindByKey(ctx.Request.Context(), key)
	switch {
	case err == nil:
		// Dedup hit: no extraction, but the admission still counts.
	case errors.Is(err, store.ErrNotFound):
		video, err = d.extract(ctx.Request.Context(), req.URL, p, key, user, decision)
		if err != nil {
			ctx.JSON(http.StatusInternalServerError, downloadResponse{Success: false, Error: "failed to download video"})
			return
		}
	default:
		d.logger.Errorw("dedup lookup failed", "key", key, "error", err)
		d.rollback(ctx.Request.Context(), user, decision)
		ctx.JSON(http.StatusInternalServerError, downloadResponse{Success: false, Error: "internal error"})
		return
	}

	if err := d.videos.LogDownload(ctx.Request.Context(), userID, video.ID); err != nil {
		// The audit row is best effort; the cooldown clock already advanced.
		d.logger.Warnw("failed to record download log", "user_id", userID, "video_id", video.ID, "error", err)
	}

	ctx.JSON(http.StatusOK, downloadResponse{
		Success:     true,
		VideoID:     video.ID,
		DownloadURL: "/api/v1/download/" + video.ID,
	})
}

// extract runs the two-phase extraction and registers the result. A lost
// insert race resolves to the winner's row; a failed extraction restores
// the user's previous cooldown clock.
func (d *DownloadController) extract(ctx context.Context, rawURL string, p platform.Platform, key string, user *models.User, decision gate.Decision) (*models.Video, error) {
	result, err := d.fetcher.Download(ctx, rawURL, p)
	if err != nil {
		d.logger.Errorw("extraction failed", "platform", p, "url", rawURL, "error", err)
		d.rollback(ctx, user, decision)
		return nil, err
	}

	video, err := d.videos.Create(ctx, key, p, result.Path, result.Size, user.ID)
	if err == nil {
		return video, nil
	}
	if errors.Is(err, store.ErrDuplicateKey) {
		winner, findErr := d.videos.FindByKey(ctx, key)
		if findErr == nil {
			return winner, nil
		}
		err = findErr
	}
	d.logger.Errorw("failed to register video", "key", key, "error", err)
	d.rollback(ctx, user, decision)
	return nil, err
}

func (d *DownloadController) rollback(ctx context.Context, user *models.User, decision gate.Decision) {
	if err := d.gate.Restore(ctx, user.ID, decision); err != nil {
		d.logger.Errorw("failed to restore cooldown clock", "user_id", user.ID, "error", err)
	}
}

type statusResponse struct {
	Authenticated bool   `json:"authenticated"`
	CooldownUntil string `json:"cooldownUntil,omitempty"`
}

// Status reports whether the caller currently sits in a cooldown window.
func (d *DownloadController) Status(ctx *gin.Context) {
	userID, ok := middleware.UserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	user, err := d.users.Get(ctx.Request.Context(), userID)
	if err != nil {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	resp := statusResponse{Authenticated: true}
	if until := d.gate.Status(user); until != nil {
		resp.CooldownUntil = until.UTC().Format(time.RFC3339)
	}
	ctx.JSON(http.StatusOK, resp)
}

type resetRequest struct {
	AdToken string `json:"adToken" binding:"required"`
}

// ResetCooldown clears the caller's cooldown after redeeming a one-time
// rewarded-ad token.
func (d *DownloadController) ResetCooldown(ctx *gin.Context) {
	userID, ok := middleware.UserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	var req resetRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, downloadResponse{Success: false, Error: "adToken is required"})
		return
	}

	if !d.adTokens.Redeem(userID, req.AdToken) {
		ctx.JSON(http.StatusBadRequest, downloadResponse{Success: false, Error: "invalid or expired ad token"})
		return
	}

	cleared, err := d.gate.Reset(ctx.Request.Context(), userID)
	if err != nil {
		d.logger.Errorw("cooldown reset failed", "user_id", userID, "error", err)
		ctx.JSON(http.StatusInternalServerError, downloadResponse{Success: false, Error: "internal error"})
		return
	}
	if !cleared {
		ctx.JSON(http.StatusOK, downloadResponse{Success: false, Error: "no active cooldown"})
		return
	}
	ctx.JSON(http.StatusOK, downloadResponse{Success: true})
}

type adSessionResponse struct {
	AdToken   string `json:"adToken"`
	ExpiresIn int    `json:"expiresIn"`
}

// AdSession issues a one-time token that a completed rewarded ad view
// trades for a cooldown reset.
func (d *DownloadController) AdSession(ctx *gin.Context) {
	userID, ok := middleware.UserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	token := d.adTokens.Issue(userID, adTokenTTL)
	ctx.JSON(http.StatusOK, adSessionResponse{
		AdToken:   token,
		ExpiresIn: int(adTokenTTL.Seconds()),
	})
}
