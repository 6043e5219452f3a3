package integration

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"wordfall-service/internal/app"
	"wordfall-service/internal/domain"
	"wordfall-service/internal/infra/memory"
	"wordfall-service/internal/infra/postgres"
	pgmigrations "wordfall-service/internal/infra/postgres/migrations"
	infraredis "wordfall-service/internal/infra/redis"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
)

func TestSessionEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	seedBank(t, ctx, pgURL, sampleBank())

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	loader := postgres.NewBankLoader(pool)
	if _, err := loader.LoadBank(ctx, "missing"); err == nil {
		t.Fatalf("expected missing bank error")
	}

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	banks := infraredis.NewBankRepository(redisClient, loader, 5*time.Minute)
	sessionStore := infraredis.NewSessionStore(redisClient, 5*time.Minute)
	summaries, err := memory.NewSummaryCache(8)
	if err != nil {
		t.Fatalf("summary cache: %v", err)
	}
	cfg := app.DefaultSessionConfig()
	cfg.Schedule.Base = time.Minute
	service := app.NewGameService(sessionStore, banks, summaries, cfg, 5*time.Millisecond)
	defer service.Shutdown(ctx)

	snap, err := service.CreateSession(ctx, "it-bank")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if n, _ := redisClient.Exists(ctx, "bank:it-bank").Result(); n != 1 {
		t.Fatalf("expected bank cached in redis")
	}

	updates, cancel, err := service.Subscribe(ctx, snap.ID)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	if err := service.PressKey(ctx, snap.ID, "Enter"); err != nil {
		t.Fatalf("start: %v", err)
	}

	var roundID string
	timeout := time.After(10 * time.Second)
	for roundID == "" {
		select {
		case u := <-updates:
			if len(u.Snapshot.Rounds) > 0 {
				roundID = u.Snapshot.Rounds[0].ID
			}
		case <-timeout:
			t.Fatalf("no round spawned")
		}
	}

	for _, word := range []string{"seven", "seas"} {
		if err := service.ClickChoice(ctx, snap.ID, roundID, word); err != nil {
			t.Fatalf("click %q: %v", word, err)
		}
	}

	var summary domain.SessionSummary
	deadline := time.Now().Add(10 * time.Second)
	for {
		summary, err = service.Summary(ctx, snap.ID)
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("summary not recorded: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if summary.Result != domain.ResultWon || summary.Completed != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if n, _ := redisClient.Exists(ctx, "wordfall:session:"+snap.ID).Result(); n != 0 {
		t.Fatalf("expected session key removed after the session ended")
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "wordfall", "POSTGRES_PASSWORD": "wordfallpass", "POSTGRES_DB": "wordfall"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://wordfall:wordfallpass@%s:%s/wordfall?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func seedBank(t *testing.T, ctx context.Context, dsn string, bank domain.Bank) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	writer := postgres.NewBankWriter(db)
	if err := writer.SaveBank(ctx, bank); err != nil {
		t.Fatalf("save bank: %v", err)
	}
	// second save exercises the upsert path
	if err := writer.SaveBank(ctx, bank); err != nil {
		t.Fatalf("resave bank: %v", err)
	}
}

func sampleBank() domain.Bank {
	return domain.Bank{
		ID: "it-bank",
		Questions: []domain.Question{
			{ID: "q1", Prompt: "How many seas are there?", Answer: "seven seas"},
		},
		Fillers: []string{"three", "oceans", "lakes"},
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
