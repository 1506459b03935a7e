package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quiz-battle-service/internal/app"
	"quiz-battle-service/internal/config"
	"quiz-battle-service/internal/infra/memory"
	"quiz-battle-service/internal/infra/postgres"
	redisstore "quiz-battle-service/internal/infra/redis"
	"quiz-battle-service/internal/infra/sqlite"
	"quiz-battle-service/internal/store"
	transport "quiz-battle-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	_ "github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz battle server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

// backend holds everything the server wires from config, plus what must be closed on exit.
type backend struct {
	connect   func() store.Conn
	registry  *app.Registry
	questions interface {
		app.QuestionProvider
		app.QuestionCatalog
	}
	history app.HistoryRecorder
	closers []io.Closer
}

func (b *backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i].Close())
	}
	return errors.Join(errs...)
}

type closerFunc func()

func (f closerFunc) Close() error {
	f()
	return nil
}

func openBackend(ctx context.Context, cfg config.Config) (*backend, error) {
	b := &backend{}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		b.closers = append(b.closers, redisClient)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			b.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
	}

	if redisClient != nil {
		roomTTL := config.TTLDuration(cfg.Redis.TTL, 6*time.Hour)
		shared := redisstore.NewStore(redisClient, roomTTL)
		b.connect = func() store.Conn { return shared.Connect() }
	} else {
		shared := memory.NewStore()
		b.connect = func() store.Conn { return shared.Connect() }
	}
	registryConn := b.connect()
	b.closers = append(b.closers, registryConn)
	b.registry = app.NewRegistry(registryConn)

	var loader memory.QuestionLoader = memory.NewStaticQuestionLoader(sampleQuestions())
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.closers = append(b.closers, closerFunc(pool.Close))
		loader = postgres.NewQuestionLoader(pool)
	}

	questionTTL := config.TTLDuration(cfg.Questions.TTL, 10*time.Minute)
	if redisClient != nil {
		b.questions = redisstore.NewQuestionRepository(redisClient, loader, questionTTL)
	} else {
		b.questions = memory.NewQuestionRepository(loader, questionTTL)
	}

	switch cfg.HistoryDriver() {
	case config.HistoryPostgres:
		db := postgres.OpenDB(cfg.Postgres.URL)
		b.closers = append(b.closers, db)
		b.history = postgres.NewHistoryRecorder(db)
	case config.HistorySQLite:
		db, err := sql.Open("sqlite3", cfg.SQLite.Path)
		if err != nil {
			b.Close()
			return nil, err
		}
		db.SetMaxOpenConns(1)
		b.closers = append(b.closers, db)
		recorder := sqlite.NewHistoryRecorder(db)
		if err := recorder.InitSchema(); err != nil {
			b.Close()
			return nil, fmt.Errorf("sqlite schema: %w", err)
		}
		b.history = recorder
	default:
		b.history = memory.NewHistoryRecorder()
	}
	log.Printf("backends: store=%s questions=%s history=%s", storeName(redisClient), loaderName(cfg), cfg.HistoryDriver())
	return b, nil
}

func storeName(client *redis.Client) string {
	if client != nil {
		return "redis"
	}
	return "memory"
}

func loaderName(cfg config.Config) string {
	if cfg.Postgres.URL != "" {
		return "postgres"
	}
	return "sample"
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

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

	b, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.Close(); err != nil {
			log.Printf("close backends: %v", err)
		}
	}()

	api := transport.NewAPI(b.registry, b.questions, b.questions, b.history, cfg.Server.BaseURL)
	gateway := transport.NewGateway(b.connect)

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     api.Routes(gateway),
		ReadTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting quiz battle server on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
