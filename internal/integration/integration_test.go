package integration

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"quiz-battle-service/internal/app"
	"quiz-battle-service/internal/domain"
	"quiz-battle-service/internal/infra/postgres"
	pgmigrations "quiz-battle-service/internal/infra/postgres/migrations"
	infraredis "quiz-battle-service/internal/infra/redis"
	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun/migrate"
)

func TestExamBattleEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	migrateDB(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	loader := postgres.NewQuestionLoader(pool)
	if err := loader.Seed(ctx, sampleQuestions()); err != nil {
		t.Fatalf("seed: %v", err)
	}

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	questions := infraredis.NewQuestionRepository(redisClient, loader, 5*time.Minute)
	shared := infraredis.NewStore(redisClient, 5*time.Minute)
	db := postgres.OpenDB(pgURL)
	defer db.Close()
	history := postgres.NewHistoryRecorder(db)

	registryConn := shared.Connect()
	defer registryConn.Close()
	code, cfg, err := app.NewRegistry(registryConn).CreateFromSelection(ctx, questions, app.Selection{
		Board:    "CBSE",
		Class:    "10",
		Subjects: []string{"Maths"},
		Count:    3,
		QuizMode: domain.ModeExam,
	}, "alice")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	connect := func(id, name string) *app.Coordinator {
		conn := shared.Connect()
		t.Cleanup(func() { conn.Close() })
		c, err := app.Connect(ctx, app.Deps{Store: conn, Questions: questions, History: history}, code, app.Identity{PlayerID: id, Name: name})
		if err != nil {
			t.Fatalf("connect %s: %v", id, err)
		}
		t.Cleanup(c.Close)
		if _, err := waitFor(ctx, c, func(v app.View) bool { return v.State == app.StateLobby }); err != nil {
			t.Fatalf("%s lobby: %v", id, err)
		}
		if err := c.Join(ctx, code); err != nil {
			t.Fatalf("%s join: %v", id, err)
		}
		return c
	}
	alice := connect("alice", "Alice")
	bob := connect("bob", "Bob")
	if _, err := waitFor(ctx, alice, func(v app.View) bool { return len(v.Players) == 2 }); err != nil {
		t.Fatalf("players: %v", err)
	}
	if err := alice.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := waitFor(ctx, bob, func(v app.View) bool { return v.State == app.StatePlaying }); err != nil {
		t.Fatalf("playing: %v", err)
	}

	bank := map[string]domain.Question{}
	for _, q := range sampleQuestions() {
		bank[q.ID] = q
	}
	answers := map[string]string{}
	for _, id := range cfg.QuestionIDs {
		answers[id] = bank[id].CorrectAnswer
	}
	if _, err := bob.Complete(ctx, app.Result{Score: 12, Correct: 3, Responses: answers}); err != nil {
		t.Fatalf("bob complete: %v", err)
	}
	if _, err := alice.Complete(ctx, app.Result{Score: 0}); err != nil {
		t.Fatalf("alice complete: %v", err)
	}

	v, err := waitFor(ctx, alice, func(v app.View) bool { return v.State == app.StateFinished })
	if err != nil {
		t.Fatalf("finished: %v", err)
	}
	if v.Players[0].ID != "bob" || v.Players[0].Score != 12 {
		t.Fatalf("expected bob leading, got %+v", v.Players)
	}

	stats, err := history.Stats(ctx, "bob")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalGames != 1 || stats.TotalXP != 12 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	records, err := history.RecordsFor(ctx, "bob", 10)
	if err != nil || len(records) != 1 || records[0].Accuracy != 100 {
		t.Fatalf("unexpected records %+v (err %v)", records, err)
	}
}

func waitFor(ctx context.Context, c *app.Coordinator, pred func(app.View) bool) (app.View, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return c.WaitFor(ctx, pred)
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
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
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
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

func migrateDB(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	db := postgres.OpenDB(dsn)
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func sampleQuestions() []domain.Question {
	out := make([]domain.Question, 0, 4)
	for i := 1; i <= 4; i++ {
		out = append(out, domain.Question{
			ID:            fmt.Sprintf("m%d", i),
			Prompt:        fmt.Sprintf("What is %d x 3?", i),
			Options:       []string{fmt.Sprint(i * 2), fmt.Sprint(i * 3), fmt.Sprint(i * 4)},
			CorrectAnswer: fmt.Sprint(i * 3),
			Board:         "CBSE",
			Class:         "10",
			Subject:       "Maths",
			Chapter:       "Arithmetic",
			Difficulty:    "Easy",
		})
	}
	return out
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
