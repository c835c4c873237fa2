package app

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/sercha-indexer/internal/adapters/driving/api"
	"github.com/custodia-labs/sercha-indexer/internal/adapters/driving/inbox"
	"github.com/custodia-labs/sercha-indexer/internal/adapters/driving/mcp"
	"github.com/custodia-labs/sercha-indexer/internal/logger"
)

// ServeOptions controls the long-running server.
type ServeOptions struct {
	// Version is reported by the service info endpoint.
	Version string

	// Addr overrides the configured listen address.
	Addr string

	// MCP mounts the MCP streamable HTTP handler at /mcp.
	MCP bool
}

// Serve reconciles the index, then runs the HTTP API, the ingestion
// consumer and the inbox watcher until ctx is cancelled or the listener
// fails. Shutdown stops intake first, then lets the consumer finish its
// current document, then flushes index snapshots.
func (a *App) Serve(ctx context.Context, opts ServeOptions) error {
	s := a.Settings

	logger.Section("reconcile")
	if report, err := a.Reconciler.Reconcile(ctx, false); err != nil {
		// Search still works against the loaded snapshot.
		logger.Error("startup reconcile failed", "error", err)
	} else {
		logger.Info("startup reconcile", "status", report.Status, "reason", report.Reason,
			"chunks", report.ChunkStoreCount, "vectors", report.IndexCount, "duration_ms", report.DurationMs)
	}

	addr := opts.Addr
	if addr == "" {
		addr = s.Server.Addr()
	}
	server := api.NewServer(addr, api.Ports{
		Search:     a.Search,
		Index:      a.Indexer,
		Reconciler: a.Reconciler,
		Health:     a.Health,
		Version:    opts.Version,
	})
	if opts.MCP {
		mcpServer, err := mcp.NewServer(&mcp.Ports{Search: a.Search, Index: a.Indexer, Reconciler: a.Reconciler})
		if err != nil {
			return err
		}
		server.Mount("/mcp", mcpServer.Handler())
	}

	logger.Section("serve")
	if err := server.Start(); err != nil {
		return err
	}

	// Workers outlive ctx so they can be stopped in order.
	workers := new(errgroup.Group)
	consumerCtx, stopConsumer := context.WithCancel(context.WithoutCancel(ctx))
	defer stopConsumer()
	inboxCtx, stopInbox := context.WithCancel(context.WithoutCancel(ctx))
	defer stopInbox()

	if s.Consumer.Enabled {
		workers.Go(func() error {
			if err := a.Consumer.Run(consumerCtx); err != nil {
				return fmt.Errorf("consumer: %w", err)
			}
			return nil
		})
	} else {
		logger.Info("ingestion consumer disabled")
	}

	if s.Inbox.Enabled && s.Inbox.Dir != "" {
		watcher := inbox.New(s.Inbox.Dir, a.Indexer)
		workers.Go(func() error {
			if err := watcher.Run(inboxCtx); err != nil {
				return fmt.Errorf("inbox: %w", err)
			}
			return nil
		})
	}

	var errs []error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-server.Err():
		logger.Error("http api failed", "error", err)
		errs = append(errs, err)
	}

	timeout := s.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Stop(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	stopInbox()
	stopConsumer()
	if err := workers.Wait(); err != nil {
		errs = append(errs, err)
	}
	if err := a.Snapshots.Flush(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("flushing snapshots: %w", err))
	}

	logger.Info("stopped")
	return errors.Join(errs...)
}
