package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/mcp"
	"github.com/hyperjump/kotae/internal/server"
	"github.com/hyperjump/kotae/internal/watcher"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"server"},
	Short:   "Start the HTTP API and the inbox watcher",
	Long: `Start the HTTP API. Inbox directories from the config are indexed on
startup and watched for changes. When server.mcp_address is set, the MCP
streamable HTTP transport is served there as well.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	app, err := bootstrap(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()
	cfg, logger, c := app.cfg, app.logger, app.components

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	inbox := watcher.New(&cfg.Inbox, c.Indexer, watcher.WithLogger(logger))
	if err := inbox.Start(ctx); err != nil {
		return err
	}
	defer inbox.Stop()
	go inbox.SyncExistingFiles()

	srv := server.NewServer(c.Engine, c.Indexer, cfg,
		server.WithLogger(logger),
		server.WithInbox(inbox, app.configPath),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Stop(shutdownCtx)
	})
	g.Go(func() error {
		runMaintenance(gctx, &cfg.Statistics, c.Indexer, logger)
		return nil
	})
	if cfg.Server.MCPAddress != "" {
		mcpSrv, err := mcp.NewServer(&mcp.Ports{
			Search:     c.Engine,
			Statistics: c.Indexer,
			Documents:  c.Indexer,
		}, version, mcp.WithLogger(logger))
		if err != nil {
			return err
		}
		g.Go(func() error { return mcpSrv.RunHTTP(gctx, cfg.Server.MCPAddress) })
	}

	err = g.Wait()
	if ferr := c.Indexer.FlushStatistics(context.Background()); ferr != nil {
		logger.Warn("final statistics flush failed", zap.Error(ferr))
	}
	return err
}

// runMaintenance periodically saves dirty statistics and checks them against
// storage until ctx is done.
func runMaintenance(ctx context.Context, cfg *config.StatisticsConfig, idx *indexer.Indexer, logger *zap.Logger) {
	flush := time.NewTicker(cfg.FlushInterval)
	defer flush.Stop()
	integrity := time.NewTicker(cfg.IntegrityInterval)
	defer integrity.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-flush.C:
			if err := idx.FlushStatistics(ctx); err != nil {
				logger.Warn("statistics flush failed", zap.Error(err))
			}
		case <-integrity.C:
			if err := idx.CheckIntegrity(ctx); err != nil {
				logger.Warn("statistics integrity check failed", zap.Error(err))
			}
		}
	}
}
