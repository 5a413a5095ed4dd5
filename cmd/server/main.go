package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/akabaki/saas-ui/internal/api"
	"github.com/akabaki/saas-ui/internal/config"
	"github.com/akabaki/saas-ui/internal/conversion"
	"github.com/akabaki/saas-ui/internal/convert"
	"github.com/akabaki/saas-ui/internal/history"
	"github.com/akabaki/saas-ui/internal/models"
	"github.com/akabaki/saas-ui/internal/notify"
	"github.com/akabaki/saas-ui/internal/organization"
	"github.com/akabaki/saas-ui/internal/parser"
	"github.com/akabaki/saas-ui/internal/settings"
	"github.com/akabaki/saas-ui/internal/storage"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const hookTimeout = 10 * time.Second

func main() {
	// Get the executable's directory for config resolution
	exePath, err := os.Executable()
	if err != nil {
		fmt.Printf("Failed to get executable path: %v\n", err)
		os.Exit(1)
	}
	exeDir := filepath.Dir(exePath)

	// Load XML configuration
	configPath := filepath.Join(exeDir, config.FileName)
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Ensure all data directories exist
	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Printf("Failed to create directories: %v\n", err)
		os.Exit(1)
	}

	api.ShowErrorDetails = cfg.Advanced.LogLevel == "debug"

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Settings
	settingsPath := ""
	if cfg.Storage.EnablePersistence {
		settingsPath = cfg.Storage.SettingsFile
	}
	settingsStore, err := settings.Open(settingsPath)
	if err != nil {
		fmt.Printf("Failed to load settings: %v\n", err)
		os.Exit(1)
	}
	current := settingsStore.Get()

	// Conversion engine
	registry := parser.GetGlobalRegistry()
	maxBytes := current.MaxFileSizeBytes()
	if cfg.Conversion.MaxFileSizeMB > 0 && current.MaxFileSizeMB <= 0 {
		maxBytes = int64(cfg.Conversion.MaxFileSizeMB) * 1024 * 1024
	}
	converter := convert.NewConverter(registry, convert.WithMaxFileSize(maxBytes))

	hub := notify.NewHub(cfg.Advanced.NotificationHistory)

	// Artifact storage, optionally mirrored to object storage
	localStore, err := storage.NewLocalStore(cfg.Storage.ArtifactsDirectory)
	if err != nil {
		fmt.Printf("Failed to initialize storage: %v\n", err)
		os.Exit(1)
	}
	var artifacts storage.Store = localStore
	if cfg.ObjectStorage.Enabled {
		mirror, err := storage.NewMinioMirror(ctx, storage.MinioConfig{
			Endpoint:  cfg.ObjectStorage.Endpoint,
			AccessKey: cfg.ObjectStorage.AccessKey,
			SecretKey: cfg.ObjectStorage.SecretKey,
			Bucket:    cfg.ObjectStorage.Bucket,
			Prefix:    cfg.ObjectStorage.Prefix,
			UseSSL:    cfg.ObjectStorage.UseSSL,
			Region:    cfg.ObjectStorage.Region,
		})
		if err != nil {
			fmt.Printf("Warning: object storage mirror disabled: %v\n", err)
		} else {
			artifacts = storage.NewMirroredStore(localStore, mirror)
			fmt.Printf("Mirroring artifacts to bucket %s on %s\n", cfg.ObjectStorage.Bucket, cfg.ObjectStorage.Endpoint)
		}
	}

	// History and organizations
	var (
		historyStore *history.DuckStore
		historyAPI   api.HistoryStore
		orgStore     organization.Store
	)
	if cfg.Storage.EnablePersistence {
		historyStore, err = history.Open(cfg.Storage.HistoryDatabase)
		if err != nil {
			fmt.Printf("Failed to open history database: %v\n", err)
			os.Exit(1)
		}
		defer historyStore.Close()
		historyAPI = historyStore

		sqliteStore, err := organization.OpenSQLite(cfg.Storage.OrganizationsDB)
		if err != nil {
			fmt.Printf("Failed to open organizations database: %v\n", err)
			os.Exit(1)
		}
		orgStore = sqliteStore
	} else {
		orgStore = organization.NewMemoryStore()
	}
	defer orgStore.Close()

	// Workspace manager
	mgr := conversion.NewManager(registry, converter,
		conversion.WithArtifactStore(artifacts),
		conversion.WithNotifier(hub),
		conversion.WithAllowedExtensions(cfg.AllowedExtensions()),
		conversion.WithQuotedPreview(cfg.Conversion.QuotedPreview),
		conversion.WithOutputFormat(defaultFormat(current, cfg)),
		conversion.WithCompletionHook(recordHistory(historyStore)),
		conversion.WithCompletionHook(recordOrganization(orgStore)),
	)
	mgr.SetPreviewEnabled(current.EnablePreview)

	settingsStore.OnChange(func(s models.Settings) {
		converter.SetMaxFileSize(s.MaxFileSizeBytes())
		mgr.SetPreviewEnabled(s.EnablePreview)
		fmt.Printf("[Settings] Applied: max file size %d MB, preview %v\n", s.MaxFileSizeMB, s.EnablePreview)
	})

	// Start background job cleanup
	go runCleanup(ctx, cfg, mgr, historyStore, localStore)

	e := echo.New()
	e.HideBanner = true

	api.SetupMiddleware(e, api.MiddlewareConfig{
		EnableRequestLogging: cfg.Advanced.EnableRequestLogging,
		RequestTimeout:       time.Duration(cfg.Server.ReadTimeout) * time.Second,
		BodyLimit:            cfg.Server.BodyLimit,
		EnableCORS:           cfg.Server.EnableCORS,
		AllowOrigins:         cfg.Server.AllowOrigins,
	})

	handlers := api.NewHandlers(&api.Dependencies{
		BaseContext:           ctx,
		Workspace:             mgr,
		History:               historyAPI,
		Organizations:         orgStore,
		Settings:              settingsStore,
		Artifacts:             artifacts,
		Notifications:         hub,
		Notifier:              hub,
		AllowArtifactDeletion: cfg.Security.AllowArtifactDeletion,
		ProgressInterval:      time.Duration(cfg.Advanced.ProgressIntervalMs) * time.Millisecond,
		WebSocketMaxMessage:   int64(cfg.Advanced.WebSocketMaxMessageSize) * 1024,
		Version:               Version,
	})

	var groupMiddleware []echo.MiddlewareFunc
	if cfg.Security.RequireAuth {
		if cfg.Security.AuthToken == "" {
			fmt.Println("Failed to start: RequireAuthentication is set but AuthToken is empty")
			os.Exit(1)
		}
		groupMiddleware = append(groupMiddleware, api.TokenAuth(cfg.Security.AuthToken))
	}
	api.RegisterRoutes(e, handlers, groupMiddleware...)

	// Configure server with settings from XML config
	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	persistence := "Disabled (in-memory)"
	if cfg.Storage.EnablePersistence {
		persistence = "Enabled"
	}

	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           DataConvert Server                              ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("║  Persistence:%-45s║\n", persistence)
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", configPath)
	fmt.Printf("║  Listen:    http://%-38s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Data Dir:  %-46s║\n", cfg.GetDataDir())
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")

	go func() {
		if err := e.StartServer(s); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Printf("Server error: %v\n", err)
			stop()
		}
	}()

	<-ctx.Done()
	fmt.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		fmt.Printf("Shutdown error: %v\n", err)
	}
	if err := mgr.Wait(shutdownCtx); err != nil {
		fmt.Printf("Batch still running at shutdown: %v\n", err)
	}
}

func defaultFormat(s models.Settings, cfg *config.AppConfig) models.OutputFormat {
	if f, err := models.ParseOutputFormat(string(s.DefaultOutputFormat)); err == nil {
		return f
	}
	if f, err := models.ParseOutputFormat(cfg.Conversion.DefaultOutputFormat); err == nil {
		return f
	}
	return models.FormatJSON
}

func recordHistory(store *history.DuckStore) conversion.CompletionHook {
	return func(job models.ConversionJob) {
		if store == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), hookTimeout)
		defer cancel()
		if err := store.Record(ctx, job); err != nil {
			fmt.Printf("[DuckStore] Failed to record job %s: %v\n", job.ID, err)
		}
	}
}

func recordOrganization(store organization.Store) conversion.CompletionHook {
	return func(job models.ConversionJob) {
		if job.OrganizationID == "" || job.Status != models.JobStatusCompleted {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), hookTimeout)
		defer cancel()
		at := time.Now()
		if job.CompletedAt != nil {
			at = *job.CompletedAt
		}
		if err := store.RecordConversion(ctx, job.OrganizationID, at); err != nil {
			fmt.Printf("[Organizations] Failed to record conversion for %s: %v\n", job.OrganizationID, err)
		}
	}
}

func runCleanup(ctx context.Context, cfg *config.AppConfig, mgr *conversion.Manager, hist *history.DuckStore, artifacts *storage.LocalStore) {
	interval := time.Duration(cfg.Conversion.CleanupIntervalMinutes) * time.Minute
	retention := time.Duration(cfg.Conversion.JobRetentionMinutes) * time.Minute
	historyRetention := time.Duration(cfg.Storage.HistoryRetentionDays) * 24 * time.Hour
	if interval <= 0 || retention <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := mgr.CleanupOldJobs(retention); n > 0 {
				fmt.Printf("[Cleanup] Removed %d finished job(s) from the workspace\n", n)
			}
			if hist != nil && historyRetention > 0 {
				if n, err := hist.Prune(ctx, time.Now().Add(-historyRetention)); err != nil {
					fmt.Printf("[Cleanup] History prune failed: %v\n", err)
				} else if n > 0 {
					fmt.Printf("[Cleanup] Pruned %d job(s) from history\n", n)
				}
			}
			// Local copies only; mirrored objects are kept.
			if historyRetention > 0 {
				if n, err := artifacts.Prune(time.Now().Add(-historyRetention)); err != nil {
					fmt.Printf("[Cleanup] Artifact prune failed: %v\n", err)
				} else if n > 0 {
					fmt.Printf("[Cleanup] Deleted %d expired artifact(s)\n", n)
				}
			}
		case <-ctx.Done():
			return
		}
	}
}
