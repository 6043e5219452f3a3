package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"wordfall-service/internal/config"
	"wordfall-service/internal/logging"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	port       string
	configPath string
)

// Execute runs the CLI until it finishes or the process is interrupted.
func Execute() error {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return newRootCmd().ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	envPort := os.Getenv("PORT")
	envConfig := os.Getenv("CONFIG_PATH")
	if envConfig == "" {
		envConfig = "config/config.yaml"
	}

	cmd := &cobra.Command{
		Use:           "wordfall",
		Short:         "Falling-word quiz game server powered by Gorilla WebSocket",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.PersistentFlags().StringVar(&port, "port", envPort, "port to listen on (overrides config)")
	cmd.PersistentFlags().StringVar(&configPath, "config", envConfig, "path to YAML config")
	cmd.AddCommand(NewStartCmd(&configPath, &port))
	cmd.AddCommand(NewMigrateCmd(&configPath))
	cmd.AddCommand(NewSeedCmd(&configPath))
	return cmd
}

// setup loads the config and attaches a logger built from it to ctx.
func setup(ctx context.Context, path string) (config.Config, context.Context, *zap.SugaredLogger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, ctx, nil, err
	}
	logger := logging.NewLogger(cfg.Log.Debug)
	return cfg, logging.WithLogger(ctx, logger), logger, nil
}
