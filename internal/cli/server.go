package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"wordfall-service/internal/app"
	"wordfall-service/internal/bank"
	"wordfall-service/internal/config"
	"wordfall-service/internal/domain"
	"wordfall-service/internal/infra/memory"
	"wordfall-service/internal/infra/postgres"
	redisinfra "wordfall-service/internal/infra/redis"
	"wordfall-service/internal/logging"
	transport "wordfall-service/internal/transport/http"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the game server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, ctx, logger, err := setup(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer logger.Sync()
			return runServer(ctx, cfg, *port)
		},
	}
}

type bankLoader interface {
	LoadBank(ctx context.Context, bankID string) (domain.Bank, error)
}

// staticLoader serves the built-in bank plus an optional bank file.
func staticLoader(cfg config.Config) (*memory.StaticBankLoader, error) {
	def, err := bank.Default()
	if err != nil {
		return nil, err
	}
	banks := []domain.Bank{def}
	if cfg.Bank.File != "" {
		b, err := bank.LoadFile(cfg.Bank.File)
		if err != nil {
			return nil, err
		}
		banks = append(banks, b)
	}
	return memory.NewStaticBankLoader(banks...), nil
}

func runServer(ctx context.Context, cfg config.Config, portFlag string) error {
	logger := logging.FromContext(ctx).Named("cli.server")

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = newRedisClient(cfg)
		defer redisClient.Close()
	}

	var loader bankLoader
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		loader = postgres.NewBankLoader(pool)
	} else {
		static, err := staticLoader(cfg)
		if err != nil {
			return err
		}
		loader = static
	}

	bankTTL := config.TTLDuration(cfg.Bank.TTL, 10*time.Minute)
	var banks app.BankRepository
	var store app.SessionRepository
	if redisClient != nil {
		banks = redisinfra.NewBankRepository(redisClient, loader, bankTTL)
		store = redisinfra.NewSessionStore(redisClient, config.TTLDuration(cfg.Redis.TTL, 2*time.Hour))
	} else {
		banks = memory.NewBankRepository(loader, bankTTL)
		store = memory.NewSessionStore()
	}

	summaries, err := memory.NewSummaryCache(cfg.SummaryCacheSize())
	if err != nil {
		return err
	}
	service := app.NewGameService(store, banks, summaries, cfg.SessionConfig(), cfg.TickInterval())

	defaultBank := cfg.Bank.ID
	if defaultBank == "" {
		defaultBank = bank.DefaultID
	}

	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           transport.NewRouter(service, defaultBank, logging.FromContext(ctx)),
		ReadHeaderTimeout: 15 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infow("starting wordfall service", "port", finalPort, "bank", defaultBank)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Infow("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		service.Shutdown(shutdownCtx)
		return err
	})
	return g.Wait()
}
