package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/repairkit/fixtree/internal/api"
	"github.com/repairkit/fixtree/internal/expressions"
	"github.com/repairkit/fixtree/internal/folders"
	"github.com/repairkit/fixtree/internal/license"
	"github.com/repairkit/fixtree/internal/logging"
	"github.com/repairkit/fixtree/internal/scheduler"
	"github.com/repairkit/fixtree/internal/session"
	"github.com/repairkit/fixtree/internal/store"
	"github.com/repairkit/fixtree/internal/streaming"
	"github.com/repairkit/fixtree/internal/validation"
	"github.com/repairkit/fixtree/internal/workflows"
	"github.com/repairkit/fixtree/pkg/mcp"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fixtree exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := loadConfig()

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel(cfg.LogLevel)})
	logger := slog.New(logging.NewCorrelationHandler(handler))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return err
	}

	st, err := store.NewLibSQLStore("file:" + cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		return err
	}

	local := store.NewLocalStore(cfg.MirrorPath)
	hub := streaming.NewMemoryHub()
	changes := store.NewChangeLog(st)

	adapter := workflows.NewAdapter(st, local, changes, hub, logger)
	service := workflows.NewService(adapter, st, local, hub, logger)
	if err := service.Load(ctx); err != nil {
		return err
	}

	registry, err := expressions.NewRegistry()
	if err != nil {
		return err
	}
	gate := license.NewGate(st, logger)
	walker := session.NewWalker(st, registry, gate, hub, logger)
	folderReg := folders.NewRegistry(st, local, hub, logger)

	validator, err := validation.NewWorkflowValidator()
	if err != nil {
		return err
	}

	sched, err := scheduler.NewScheduler(st, cfg.changeRetention(), logger)
	if err != nil {
		return err
	}
	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	if cfg.MCP {
		srv := mcp.NewFixtreeServer(mcp.FixtreeServerDeps{
			Store:     st,
			Changes:   changes,
			Service:   service,
			Folders:   folderReg,
			Sessions:  walker,
			Gate:      gate,
			Validator: validator,
			Hub:       hub,
			Logger:    logger,
		})
		go func() {
			if err := srv.StartEventBridge(ctx, streaming.EventFilter{}); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("event bridge stopped", "error", err)
			}
		}()
		logger.Info("fixtree MCP server listening on stdio")
		return srv.Serve(ctx)
	}

	apiSrv := api.NewServer(api.Deps{
		Store:     st,
		Changes:   changes,
		Service:   service,
		Folders:   folderReg,
		Sessions:  walker,
		Gate:      gate,
		Validator: validator,
		Hub:       hub,
		Logger:    logger,
	})

	httpSrv := &http.Server{
		Addr:        cfg.ListenAddr,
		Handler:     apiSrv.Handler(),
		ReadTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("fixtree listening", "addr", cfg.ListenAddr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
