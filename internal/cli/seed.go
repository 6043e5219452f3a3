package cli

import (
	"context"
	"time"

	"wordfall-service/internal/bank"
	"wordfall-service/internal/config"
	"wordfall-service/internal/domain"
	"wordfall-service/internal/infra/postgres"
	redisinfra "wordfall-service/internal/infra/redis"
	"wordfall-service/internal/logging"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewSeedCmd stores a question bank in Postgres.
func NewSeedCmd(configPath *string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Store a question bank (the built-in one by default) in Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, ctx, logger, err := setup(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer logger.Sync()
			if file == "" {
				file = cfg.Bank.File
			}
			return runSeed(ctx, cfg, file)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "YAML question bank to store")
	return cmd
}

func loadBank(file string) (domain.Bank, error) {
	if file == "" {
		return bank.Default()
	}
	return bank.LoadFile(file)
}

func runSeed(ctx context.Context, cfg config.Config, file string) error {
	logger := logging.FromContext(ctx).Named("cli.seed")

	b, err := loadBank(file)
	if err != nil {
		return err
	}
	if err := runMigrationsWithConfig(ctx, cfg); err != nil {
		return err
	}

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := postgres.NewBankWriter(db).SaveBank(ctx, b); err != nil {
		return err
	}
	logger.Infow("bank stored", "bank", b.ID, "questions", len(b.Questions), "fillers", len(b.Fillers))

	if cfg.Redis.Addr != "" {
		client := newRedisClient(cfg)
		defer client.Close()
		cache := redisinfra.NewBankRepository(client, nil, time.Minute)
		if err := cache.Invalidate(ctx, b.ID); err != nil {
			logger.Warnw("invalidate cached bank", "bank", b.ID, "error", err)
		}
	}
	return nil
}

func newRedisClient(cfg config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}
