package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/chaos-io/removebg/blob"
	"github.com/chaos-io/removebg/config"
	"github.com/chaos-io/removebg/dispatch"
	"github.com/chaos-io/removebg/export"
	"github.com/chaos-io/removebg/ingest"
	"github.com/chaos-io/removebg/rembg"
	"github.com/chaos-io/removebg/report"
	"github.com/chaos-io/removebg/server"
	"github.com/chaos-io/removebg/task"
	nhttp "github.com/chaos-io/removebg/util/http"
	"github.com/chaos-io/removebg/worker"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.Load()

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatal("Failed to create logger:", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("Server exited", zap.Error(err))
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsRelease() {
		gin.SetMode(gin.ReleaseMode)
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	store := task.NewStore(logger.Named("store"))
	blobs := blob.NewStore()
	cli := nhttp.NewHTTPClient()
	model := rembg.NewInferenceModel(cli, cfg.Inference.URL, cfg.Inference.Model, cfg.Inference.Timeout)

	deps := server.Deps{
		Store:          store,
		Blobs:          blobs,
		MaxUploadBytes: cfg.MaxUploadBytes,
		EventBuffer:    cfg.EventBuffer,
		Logger:         logger.Named("http"),
	}

	var ch *worker.Channel
	if err := model.Live(ctx); err != nil {
		// 推理服务不可用：只提供状态和说明，不接任务
		logger.Warn("Inference backend unavailable, running in fallback mode",
			zap.String("url", cfg.Inference.URL), zap.Error(err))
		deps.Unsupported = fmt.Errorf("background removal is not supported here: inference backend %s is unreachable", cfg.Inference.URL)
	} else {
		ch = worker.NewChannel(cfg.EventBuffer)
		pipeline := rembg.NewPipeline(model, blobs, cli, logger.Named("rembg"))
		runtime := worker.NewRuntime(ch, pipeline, logger.Named("worker"))
		dispatcher := dispatch.New(store, ch, logger.Named("dispatch"))

		go dispatcher.Run(ctx)
		go func() {
			if err := runtime.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Worker stopped", zap.Error(err))
			}
		}()

		reporter, err := report.New(store, dispatcher, cfg.ReportSchedule, logger.Named("report"))
		if err != nil {
			return err
		}
		reporter.Start()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			reporter.Stop(stopCtx)
		}()

		deps.App = dispatcher
		deps.Ingest = ingest.NewAdapter(dispatcher, blobs, logger.Named("ingest"))
		deps.Encoder = export.NewEncoder(store)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.NewRouter(server.NewHandler(deps)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server started", zap.String("address", cfg.Addr), zap.Bool("supported", deps.Unsupported == nil))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	if ch != nil {
		ch.Close()
	}
	return err
}
