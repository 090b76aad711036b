package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/volsnap-project/volsnap/internal/core"
	"github.com/volsnap-project/volsnap/internal/datastore"
	"github.com/volsnap-project/volsnap/internal/metastore"
	"github.com/volsnap-project/volsnap/internal/refcount"
	"github.com/volsnap-project/volsnap/internal/service"
	"github.com/volsnap-project/volsnap/internal/volume"
	"github.com/volsnap-project/volsnap/pkg/config"
	"github.com/volsnap-project/volsnap/pkg/logging"
	"github.com/volsnap-project/volsnap/pkg/metrics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the snapshot engine and its HTTP admin surface",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log := logging.NewLogger(logging.ParseLevel(cfg.Logging.Level))
	logging.SetGlobal(log)

	meta, err := metastore.NewBoltStore(cfg.MetaStorePath)
	if err != nil {
		return fmt.Errorf("open meta store: %w", err)
	}
	defer meta.Close()

	data, err := datastore.NewFSStore(cfg.DataStorePath)
	if err != nil {
		return fmt.Errorf("open data store: %w", err)
	}

	client := volume.NewHTTPClient(cfg.MdsAddr,
		time.Duration(cfg.MdsRequestTimeoutMs)*time.Millisecond)

	engine := core.New(client, meta, data, refcount.NewCounter(), core.Options{
		MaxSnapshotLimit:    cfg.MaxSnapshotLimit,
		ThreadNum:           cfg.SnapshotCoreThreadNum,
		ChunkSplitSize:      cfg.ChunkSplitSize,
		CheckStatusInterval: time.Duration(cfg.CheckSnapshotStatusIntervalMs) * time.Millisecond,
		SessionSettle:       time.Duration(cfg.MdsSessionTimeUs) * time.Microsecond,
	}, log)

	reg := metrics.NewRegistry()
	manager := service.NewManager(engine, cfg.WorkerPoolSize, reg, log)
	manager.Start()
	defer manager.Stop()

	if err := manager.Restore(); err != nil {
		return fmt.Errorf("restore unfinished tasks: %w", err)
	}

	server := service.NewServer(manager, reg, log)
	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("serving", map[string]any{"addr": cfg.ListenAddr})
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Info("shutting down", map[string]any{"signal": sig.String()})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return httpServer.Shutdown(ctx)
}
