// Command sidecar runs the NATS content-filtering sidecar: it loads a
// YAML configuration, connects to NATS, and drives the engine until
// SIGINT or SIGTERM.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rmacdonaldsmith/nats-sidecar/internal/broker/natsbroker"
	"github.com/rmacdonaldsmith/nats-sidecar/internal/codec"
	"github.com/rmacdonaldsmith/nats-sidecar/internal/config"
	"github.com/rmacdonaldsmith/nats-sidecar/internal/logging"
	"github.com/rmacdonaldsmith/nats-sidecar/internal/schemagen"
	"github.com/rmacdonaldsmith/nats-sidecar/internal/sidecar"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "sidecar",
		Short: "NATS content-filtering sidecar",
		RunE:  runSidecar,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "sidecar.yaml",
		"path to the sidecar's YAML configuration file")

	rootCmd.AddCommand(newGenerateSchemaCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runSidecar(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logging.Init(logging.ParseLevel(cfg.LogLevel))
	log := slog.Default()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	br := natsbroker.New(natsbroker.Config{
		Address: cfg.NATSAddress,
		Port:    cfg.NATSPort,
		TLSCert: cfg.TLSCert,
		TLSKey:  cfg.TLSKey,
		TLSCA:   cfg.TLSCA,
	}, log)

	if err := br.Connect(ctx); err != nil {
		return fmt.Errorf("connecting to nats: %w", err)
	}
	defer br.Close()

	eng, err := sidecar.New(cfg, br, log)
	if err != nil {
		return fmt.Errorf("building engine: %w", err)
	}

	log.Info("sidecar starting",
		"input_subject", cfg.InputSubject,
		"output_prefix", cfg.OutputPrefix,
		"format", cfg.Format,
	)
	if err := eng.Run(ctx); err != nil {
		return fmt.Errorf("running engine: %w", err)
	}
	log.Info("sidecar stopped")
	return nil
}

func newGenerateSchemaCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "generate-schema <sample-file>",
		Short: "Infer an attribute schema from one sample binary message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading sample file: %w", err)
			}

			f, ok := codec.ParseFormat(format)
			if !ok {
				return fmt.Errorf("unknown format %q", format)
			}

			attrs, err := schemagen.Infer(f, payload)
			if err != nil {
				return err
			}

			out, err := schemagen.Render(attrs)
			if err != nil {
				return err
			}

			fmt.Fprint(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "msgpack",
		"binary wire format of the sample file (msgpack, cbor, flexbuffers, zera)")
	return cmd
}
