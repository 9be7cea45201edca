package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/joseph-ayodele/drawing-quotes/internal/app"
	"github.com/joseph-ayodele/drawing-quotes/internal/common"
	"github.com/joseph-ayodele/drawing-quotes/internal/server"
)

func main() {
	var (
		addr    = flag.String("addr", "", "gRPC listen address (overrides GRPC_ADDR)")
		corpus  = flag.String("corpus", "", "reference corpus directory (overrides KNOWLEDGE_CORPUS_DIR)")
		rebuild = flag.Bool("rebuild", false, "re-index the corpus before serving")
		watch   = flag.Bool("watch", false, "watch the corpus and re-index on change (overrides KNOWLEDGE_WATCH)")
	)
	flag.Parse()

	cfg := common.LoadConfig()
	if *addr != "" {
		cfg.Server.GRPCAddr = *addr
	}
	if *corpus != "" {
		cfg.Knowledge.CorpusDir = *corpus
	}
	if *watch {
		cfg.Knowledge.Watch = true
	}

	logger := common.NewLogger(cfg.Log, os.Stderr)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	if db := a.QuoteDB(); db != nil {
		if err := server.PingDB(ctx, db, logger, 3*time.Second); err != nil {
			os.Exit(1)
		}
		logger.Info("DB health OK")
	}

	caps := a.Reader.Probe()
	logger.Info("reader capabilities",
		"pdf_text", caps.PDFText,
		"pdf_render", caps.PDFRender,
		"ocr", caps.OCR,
		"cad", caps.CAD,
	)
	if !caps.OCR {
		logger.Warn("tesseract not found; scanned pages are read without OCR", "require_ocr", cfg.Reader.RequireOCR)
	}

	if *rebuild {
		if _, stats, err := a.Rebuild(ctx, cfg.Knowledge.CorpusDir); err != nil {
			logger.Error("corpus rebuild failed", "error", err)
			os.Exit(1)
		} else if stats.Failed > 0 {
			logger.Warn("some reference files were not indexed", "failed", stats.Failed)
		}
	}

	if cfg.Knowledge.Watch {
		w := a.Watcher()
		go func() {
			if err := w.Run(ctx); err != nil {
				logger.Error("corpus watcher stopped", "error", err)
			}
		}()
	}

	qs := server.NewQuoteService(a.Service, cfg.Knowledge.DefaultTopK, logger)
	gs, hs := server.NewGRPCServer(qs, logger)

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		logger.Error("listen failed", "addr", cfg.Server.GRPCAddr, "error", err)
		os.Exit(1)
	}
	logger.Info("gRPC serving", "addr", lis.Addr().String())

	errCh := make(chan error, 1)
	go func() { errCh <- gs.Serve(lis) }()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, net.ErrClosed) {
			logger.Error("grpc serve", "error", err)
			os.Exit(1)
		}
	}

	logger.Info("shutting down...")
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	done := make(chan struct{})
	go func() { gs.GracefulStop(); close(done) }()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		logger.Warn("graceful stop timed out; forcing")
		gs.Stop()
	}
	logger.Info("stopped")
}
