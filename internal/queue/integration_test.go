//go:build integration

package queue_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/felixgeelhaar/pyquest/internal/domain"
	"github.com/felixgeelhaar/pyquest/internal/queue"
	"github.com/felixgeelhaar/pyquest/internal/storage/postgres"
	"github.com/felixgeelhaar/pyquest/internal/storage/sqldb"
)

// setupRabbitMQ creates a RabbitMQ container for testing
func setupRabbitMQ(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := rabbitmq.Run(ctx, "rabbitmq:3.12-management")
	if err != nil {
		t.Fatalf("failed to start RabbitMQ container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	amqpURL, err := container.AmqpURL(ctx)
	if err != nil {
		t.Fatalf("failed to get AMQP URL: %v", err)
	}
	return amqpURL
}

// setupPostgres starts a plain postgres container and returns its URL
func setupPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "pyquest",
				"POSTGRES_PASSWORD": "pyquest",
				"POSTGRES_DB":       "pyquest",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("failed to get port: %v", err)
	}
	return fmt.Sprintf("postgres://pyquest:pyquest@%s:%s/pyquest?sslmode=disable", host, port.Port())
}

func TestIntegration_Connection_InvalidURL(t *testing.T) {
	if _, err := queue.NewConnection("amqp://invalid:5672", nil); err == nil {
		t.Error("expected error for invalid URL")
	}
}

func TestIntegration_Producer_DeclaresAndPublishes(t *testing.T) {
	conn, err := queue.NewConnection(setupRabbitMQ(t), nil)
	if err != nil {
		t.Fatalf("failed to create connection: %v", err)
	}
	defer conn.Close()

	if !conn.IsConnected() {
		t.Fatal("expected connection to be active")
	}

	producer := queue.NewProducer(conn)
	attempt := &domain.Attempt{ID: uuid.New(), UserID: "alice", LessonID: "hello", SubmittedAt: time.Now()}
	if err := producer.PublishAttempt(context.Background(), attempt); err != nil {
		t.Fatalf("PublishAttempt() error = %v", err)
	}

	q, err := conn.Channel().QueueInspect(queue.AttemptQueueName)
	if err != nil {
		t.Fatalf("failed to inspect queue: %v", err)
	}
	if q.Messages != 1 {
		t.Errorf("expected 1 message in queue, got %d", q.Messages)
	}
}

func TestIntegration_EndToEnd(t *testing.T) {
	ctx := context.Background()
	amqpURL := setupRabbitMQ(t)
	pgURL := setupPostgres(t)

	pool, err := postgres.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer pool.Close()
	records := postgres.NewUserRecordRepository(pool)
	if err := records.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}

	db, err := sqldb.Open(ctx, "postgres", pgURL)
	if err != nil {
		t.Fatalf("sqldb.Open() error = %v", err)
	}
	defer db.Close()
	attempts := sqldb.NewAttemptRepository(db)
	if err := attempts.EnsureSchema(ctx); err != nil {
		t.Fatalf("attempts EnsureSchema() error = %v", err)
	}

	conn, err := queue.NewConnection(amqpURL, nil)
	if err != nil {
		t.Fatalf("NewConnection() error = %v", err)
	}
	defer conn.Close()

	consumer := queue.NewConsumer(conn, queue.NewSink(records, attempts, nil), queue.ConsumerConfig{Workers: 1})
	if err := consumer.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer consumer.Stop()

	producer := queue.NewProducer(conn)
	now := time.Now().UTC().Truncate(time.Millisecond)
	newer := &queue.ProgressMessage{UserID: "alice", XP: 300, Level: 4, Snapshot: []byte(`{"user_id":"alice"}`), UpdatedAt: now}
	older := &queue.ProgressMessage{UserID: "alice", XP: 100, Level: 2, Snapshot: []byte(`{"user_id":"alice"}`), UpdatedAt: now.Add(-time.Hour)}
	for _, msg := range []*queue.ProgressMessage{newer, older} {
		if err := producer.PublishProgress(ctx, msg); err != nil {
			t.Fatalf("PublishProgress() error = %v", err)
		}
	}

	attempt := &domain.Attempt{
		ID: uuid.New(), UserID: "alice", CourseID: "python-basics", LessonID: "hello",
		Code: "print(1)", Score: 100, MaxScore: 100, Passed: true, XPEarned: 60, SubmittedAt: now,
	}
	if err := producer.PublishAttempt(ctx, attempt); err != nil {
		t.Fatalf("PublishAttempt() error = %v", err)
	}

	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		rec, err := records.Get(ctx, "alice")
		history, _ := attempts.List(ctx, "alice", "hello", 0)
		if err == nil && len(history) == 1 {
			if rec.XP != 300 {
				t.Errorf("XP = %d; want newest snapshot 300", rec.XP)
			}
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
	t.Fatal("sync messages were not applied in time")
}
