package main

import (
	"context"
	"time"

	"github.com/clipvault/clipvault/config"
	"github.com/clipvault/clipvault/controllers"
	"github.com/clipvault/clipvault/downloader"
	"github.com/clipvault/clipvault/gate"
	"github.com/clipvault/clipvault/models"
	"github.com/clipvault/clipvault/routes"
	"github.com/clipvault/clipvault/store"
	"github.com/clipvault/clipvault/utils"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}

	db := config.InitDatabase(&models.User{}, &models.Video{}, &models.DownloadLog{})

	// Make sure the extractor binary is present before accepting requests.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	if err := downloader.EnsureBinary(ctx, cfg.YtDlpPath, cfg.YtDlpAutoDownload); err != nil {
		cancel()
		utils.Sugar.Fatalf("yt-dlp binary unavailable at %s: %v", cfg.YtDlpPath, err)
	}
	cancel()

	users := store.NewUsers(db)
	videos := store.NewVideos(db)

	extractor := &downloader.YtDlp{
		BinaryPath:  cfg.YtDlpPath,
		UserAgent:   cfg.DownloadUserAgent,
		InsecureTLS: cfg.InsecureTLS,
		ForceIPv4:   cfg.ForceIPv4,
	}
	service := downloader.NewService(extractor, cfg.DownloadsRoot,
		time.Duration(cfg.DownloadTimeoutSec)*time.Second, utils.Sugar)

	g := gate.New(users, time.Duration(cfg.CooldownSeconds)*time.Second)

	r := routes.SetupRouter(routes.Controllers{
		Auth:     controllers.NewAuthController(db),
		Download: controllers.NewDownloadController(users, videos, service, g, controllers.NewAdTokenStore(), utils.Sugar),
		File:     controllers.NewFileController(videos, service.Root(), utils.Sugar),
		Stats:    controllers.NewStatsController(videos, utils.Sugar),
	})

	// Sweep abandoned partial downloads in the background (best-effort)
	utils.StartPartialCleaner(service.Root(), 10*time.Minute,
		time.Duration(cfg.PartMaxAgeMinutes)*time.Minute)

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	if err := utils.GraceServer(":"+cfg.AppPort, r); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}
