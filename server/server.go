// Package server runs the HTTP API together with the upload sweeper
package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"metadata-injector/audio"
	"metadata-injector/config"
	"metadata-injector/errors"
	"metadata-injector/handlers"
	"metadata-injector/storage"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// shutdownTimeout is how long in-flight requests get to finish
const shutdownTimeout = 10 * time.Second

func ginMode(mode string) (string, error) {
	switch mode {
	case gin.DebugMode, gin.ReleaseMode, gin.TestMode:
		return mode, nil
	case "":
		return gin.ReleaseMode, nil
	}
	return "", errors.E(errors.InvalidArgument, errors.Info("gin_mode"), "unknown gin mode "+mode)
}

// Execute serves the API on cfg.Addr until ctx is canceled
func Execute(ctx context.Context, cfg config.Config) error {
	const op errors.Op = "server.Execute"
	logger := zerolog.Ctx(ctx)

	mode, err := ginMode(cfg.GinMode)
	if err != nil {
		return errors.E(op, err)
	}
	gin.SetMode(mode)

	store, err := storage.NewOS(cfg.TempDir)
	if err != nil {
		return errors.E(op, err)
	}

	registry := audio.New(audio.WithFFmpeg(cfg.FFmpegPath, cfg.FFprobePath))
	if err := registry.CheckTools(); err != nil {
		logger.Warn().Err(err).Msg("matroska files can't be tagged")
	}

	h := handlers.NewMetadataHandler(cfg, registry, store, nil)
	router, err := handlers.NewRouter(cfg, *logger, h)
	if err != nil {
		return errors.E(op, err)
	}

	go store.RunSweeper(ctx, cfg.SweepInterval, cfg.UploadTTL)

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	ln, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return errors.E(op, errors.Info(server.Addr), err)
	}

	logger.Info().
		Str("addr", ln.Addr().String()).
		Str("temp_dir", store.Root()).
		Strs("accepted", cfg.AllowedExtensions).
		Msg("server listening")

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(ln)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return errors.E(op, err)
	}

	logger.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(sctx); err != nil {
		return errors.E(op, err)
	}
	return nil
}
