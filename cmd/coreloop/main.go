package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/spf13/cobra"

	"github.com/OpenRailAssociation/osrd-sub002/pkg/broker"
	"github.com/OpenRailAssociation/osrd-sub002/pkg/config"
	"github.com/OpenRailAssociation/osrd-sub002/pkg/control"
	"github.com/OpenRailAssociation/osrd-sub002/pkg/driver"
	"github.com/OpenRailAssociation/osrd-sub002/pkg/keepalive"
	"github.com/OpenRailAssociation/osrd-sub002/pkg/log"
	"github.com/OpenRailAssociation/osrd-sub002/pkg/reconnect"
	"github.com/OpenRailAssociation/osrd-sub002/pkg/supervisor"
	"github.com/OpenRailAssociation/osrd-sub002/pkg/tracker"
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
	Use:     "coreloop",
	Short:   "The reconciliation and lifecycle core sitting between the broker and the container platform",
	Version: Version,
	RunE:    run,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"coreloop version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", true, "Output logs in JSON format")
	rootCmd.Flags().Bool("config-check", false, "Validate configuration from the environment and exit")

	cobra.OnInitialize(initLogging)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

func run(cmd *cobra.Command, _ []string) error {
	logger := log.WithComponent("main")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	configCheck, _ := cmd.Flags().GetBool("config-check")
	if configCheck {
		fmt.Println("configuration OK")
		return nil
	}

	drv, err := driver.New(cfg)
	if err != nil {
		return fmt.Errorf("building driver: %w", err)
	}

	keepAlive, err := keepalive.New(cfg.KeepAliveURI, cfg.KeepAlivePrefix)
	if err != nil {
		return fmt.Errorf("building keep-alive register: %w", err)
	}
	defer keepAlive.Close()

	mgmt, err := broker.ManagementClientFromAMQPURI(cfg.AMQPURI, cfg.ManagementPort)
	if err != nil {
		return fmt.Errorf("building broker management client: %w", err)
	}

	trk := tracker.New(cfg.ExtraLifetime)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go trk.Run(ctx)

	policy := cfg.QueuePolicy()

	children := reconnect.Children{
		Tracker: trk,
		NewBroker: func(conn *amqp.Connection) *broker.Client {
			return broker.New(conn, cfg.PoolPrefix, mgmt)
		},
		NewSupervisor: func(b *broker.Client) *supervisor.Supervisor {
			return supervisor.New(supervisor.Config{
				Driver:        drv,
				Broker:        b,
				KeepAlive:     keepAlive,
				Tenants:       trk,
				Policy:        policy,
				MaxErrorCount: cfg.MaxErrorCount,
			})
		},
		NewControlLoop: func(b *broker.Client, sup *supervisor.Supervisor) *control.Loop {
			return control.New(control.Config{
				Pools:         drv,
				Queues:        b,
				KeepAlive:     keepAlive,
				Tenants:       trk,
				Supervisor:    sup,
				LoopInterval:  cfg.LoopInterval,
				CoreTimeout:   cfg.CoreTimeout,
				OpTimeout:     cfg.OperationTimeout,
				MaxErrorCount: cfg.MaxErrorCount,
			})
		},
	}

	sup := reconnect.New(cfg.AMQPURI, children, cfg.ShutdownGrace)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info().Msg("shutdown signal received")
		cancel()
	}()

	logger.Info().Str("driver", string(cfg.Driver)).Str("pool_prefix", cfg.PoolPrefix).Msg("coreloop starting")

	err = sup.Run(ctx)
	switch {
	case err == nil:
		logger.Info().Msg("coreloop stopped cleanly")
		return nil
	case errors.Is(err, reconnect.ErrFatalThreshold):
		return err
	case errors.Is(err, reconnect.ErrShutdownGraceExceeded):
		return err
	default:
		return err
	}
}
