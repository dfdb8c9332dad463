package main

import (
	"context"
	"os"
	"strconv"

	"github.com/dalemusser/leadtrack/internal/app/bootstrap"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// auditSource identifies leadctl in the audit trail.
const auditSource = "cli"

// globalOpts are the connection flags shared by every subcommand.
type globalOpts struct {
	mongoURI  string
	mongoDB   string
	batchSize int
	verbose   bool
}

func newRootCmd() *cobra.Command {
	opts := &globalOpts{}
	defaults := bootstrap.DefaultAppConfig()

	cmd := &cobra.Command{
		Use:          "leadctl",
		Short:        "Import contacts and merge duplicate leads",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.mongoURI, "mongo-uri", envOr("LEADTRACK_MONGO_URI", defaults.MongoURI), "MongoDB connection URI")
	cmd.PersistentFlags().StringVar(&opts.mongoDB, "mongo-db", envOr("LEADTRACK_MONGO_DATABASE", defaults.MongoDatabase), "MongoDB database name")
	cmd.PersistentFlags().IntVar(&opts.batchSize, "batch-size", envIntOr("LEADTRACK_IMPORT_BATCH_SIZE", defaults.ImportBatchSize), "Lead writes per atomic batch (1-1000)")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log engine activity to stderr")

	cmd.AddCommand(newImportCmd(opts))
	cmd.AddCommand(newMergeCmd(opts))
	cmd.AddCommand(newMergesCmd(opts))
	return cmd
}

// appConfig returns the server defaults overridden by the global flags.
func (o *globalOpts) appConfig() bootstrap.AppConfig {
	cfg := bootstrap.DefaultAppConfig()
	cfg.MongoURI = o.mongoURI
	cfg.MongoDatabase = o.mongoDB
	cfg.ImportBatchSize = o.batchSize
	return cfg
}

func (o *globalOpts) logger() *zap.Logger {
	if !o.verbose {
		return zap.NewNop()
	}
	log, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return log
}

// connect validates the config, opens the database and wires the services.
// The returned func closes the connections.
func (o *globalOpts) connect(ctx context.Context) (*bootstrap.Services, func(), error) {
	cfg := o.appConfig()
	if err := bootstrap.ValidateApp(cfg); err != nil {
		return nil, nil, err
	}
	log := o.logger()

	deps, err := bootstrap.Connect(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		_ = bootstrap.Shutdown(context.Background(), nil, cfg, deps, log)
		_ = log.Sync()
	}
	return bootstrap.NewServices(cfg, deps, log), closeFn, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOr(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
