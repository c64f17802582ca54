package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/depotgate/depotgate/pkg/api"
	"github.com/depotgate/depotgate/pkg/blob"
	"github.com/depotgate/depotgate/pkg/config"
	"github.com/depotgate/depotgate/pkg/deliverable"
	"github.com/depotgate/depotgate/pkg/events"
	"github.com/depotgate/depotgate/pkg/log"
	"github.com/depotgate/depotgate/pkg/metastore"
	"github.com/depotgate/depotgate/pkg/receipts"
	"github.com/depotgate/depotgate/pkg/shipping"
	"github.com/depotgate/depotgate/pkg/sink"
	"github.com/depotgate/depotgate/pkg/staging"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "depotgate",
	Short: "DepotGate - Artifact staging and outbound logistics gate",
	Long: `DepotGate stages opaque artifacts under task namespaces, verifies
deliverable contracts (closure), and ships satisfied bundles to external
sinks while keeping an append-only receipt trail.

It is a gate, not a pipeline: content is never inspected, transformed,
retried, or scheduled.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"DepotGate version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	rootCmd.AddCommand(serverCmd)
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the DepotGate server",
	RunE: func(cmd *cobra.Command, args []string) error {
		level, _ := cmd.Flags().GetString("log-level")
		jsonOut, _ := cmd.Flags().GetBool("log-json")
		log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOut})

		configPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		return runServer(cfg)
	},
}

func init() {
	serverCmd.Flags().String("config", "", "Path to YAML configuration file")
}

// runServer is the composition root: every component is constructed once
// here and injected; no package-level singletons exist in the core.
func runServer(cfg *config.Config) error {
	fsBackend, err := blob.NewFSBackend(cfg.StorageBasePath, cfg.MaxArtifactBytes)
	if err != nil {
		return fmt.Errorf("storage backend: %w", err)
	}
	blobs, err := blob.NewRegistry(fsBackend)
	if err != nil {
		return err
	}

	var sinks []sink.Sink
	for _, scheme := range cfg.EnabledSinks {
		switch scheme {
		case "fs":
			fsSink, err := sink.NewFSSink(cfg.SinkBasesByScheme["fs"])
			if err != nil {
				return fmt.Errorf("fs sink: %w", err)
			}
			sinks = append(sinks, fsSink)
		case "http", "https":
			// One HTTP sink serves both schemes; skip the duplicate.
			if !hasHTTPSink(sinks) {
				sinks = append(sinks, sink.NewHTTPSink(nil))
			}
		}
	}
	sinkReg, err := sink.NewRegistry(sinks...)
	if err != nil {
		return err
	}

	meta, err := metastore.NewBoltStore(cfg.MetadataDBPath)
	if err != nil {
		return err
	}
	defer meta.Close()

	rcpts, err := receipts.NewBoltStore(cfg.ReceiptsDBPath)
	if err != nil {
		return err
	}
	defer rcpts.Close()

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	stager := staging.NewStager(blobs, meta, rcpts, broker)
	deliverables := deliverable.NewManager(meta)
	shipper := shipping.NewService(blobs, sinkReg, meta, rcpts, deliverables, broker)

	// Mirror broker traffic into the debug log.
	sub := broker.Subscribe()
	go func() {
		evLog := log.WithComponent("events")
		for ev := range sub {
			evLog.Debug().
				Str("type", string(ev.Type)).
				Str("tenant_id", ev.TenantID).
				Str("root_task_id", ev.RootTaskID).
				Msg(ev.Message)
		}
	}()

	server := api.NewServer(cfg.TenantID, stager, deliverables, shipper)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(cfg.ListenAddr())
	}()

	log.Info(fmt.Sprintf("DepotGate %s serving tenant %q on %s", Version, cfg.TenantID, cfg.ListenAddr()))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Info(fmt.Sprintf("received %s, shutting down", sig))
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return server.Stop(ctx)
	}
}

func hasHTTPSink(sinks []sink.Sink) bool {
	for _, s := range sinks {
		for _, scheme := range s.Schemes() {
			if scheme == "http" {
				return true
			}
		}
	}
	return false
}
