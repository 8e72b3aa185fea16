package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/huewheel/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve palette extraction over HTTP",
	Long: `Serve palette extraction over HTTP.

  POST /api/palette    multipart field "image", query k, seed, size, force -> JSON
  POST /api/wheel.png  same parameters -> wheel PNG with centroid markers
  GET  /api/palettes   archived palettes (with --db)
  GET  /api/status     request counters
  GET  /healthz`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	addAnalysisFlags(serveCmd, "serve")

	serveCmd.Flags().String("addr", "127.0.0.1:8080", "Listen address (host:port)")
	serveCmd.Flags().Int("max-concurrent", runtime.NumCPU(), "Max concurrent extractions (default: number of CPUs)")
	serveCmd.Flags().Duration("timeout", 30*time.Second, "Timeout per extraction")
	serveCmd.Flags().Int64("max-upload-mb", 20, "Maximum upload size in MiB")
	serveCmd.Flags().Int("max-clusters", 16, "Largest k a request may ask for")
	serveCmd.Flags().String("cache-control", "no-store", "Cache-Control header for responses")

	bindFlags(serveCmd, []flagBinding{
		{"serve.addr", "addr"},
		{"serve.max_concurrent", "max-concurrent"},
		{"serve.timeout", "timeout"},
		{"serve.max_upload_mb", "max-upload-mb"},
		{"serve.max_clusters", "max-clusters"},
		{"serve.cache_control", "cache-control"},
	})
}

func runServe(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	params, err := analysisParams("serve")
	if err != nil {
		return err
	}
	loadOpts, err := loadOptions("serve")
	if err != nil {
		return err
	}
	addr := viper.GetString("serve.addr")
	maxConc := viper.GetInt("serve.max_concurrent")

	cfg := server.PaletteConfig{
		Defaults:       params,
		Load:           loadOpts,
		MaxUploadBytes: viper.GetInt64("serve.max_upload_mb") << 20,
		MaxClusters:    viper.GetInt("serve.max_clusters"),
		MaxConcurrent:  maxConc,
		Timeout:        viper.GetDuration("serve.timeout"),
		CacheControl:   viper.GetString("serve.cache_control"),
	}

	var history server.History
	store, err := openArchive()
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
		cfg.Store = store
		history = store
	}

	svc, err := server.NewPaletteService(cfg, logger)
	if err != nil {
		return err
	}

	srv := &http.Server{Addr: addr, Handler: svc.Routes(history), ReadHeaderTimeout: 5 * time.Second}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
	}()

	logger.Info("palette server listening",
		"addr", addr,
		"archive", viper.GetString("db"),
		"max_concurrent", maxConc,
		"clusters", params.Clusters,
		"wheel_size", params.WheelSize,
	)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
