package repository_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/popeskul/chatrelay/internal/infrastructure/migrate"
	"github.com/popeskul/chatrelay/internal/models"
)

func setupTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	ctx := context.Background()

	pgContainer, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = pgContainer.Terminate(ctx)
	})

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	runner := migrate.NewRunner(&migrate.Config{
		DatabaseURL:    dsn,
		MigrationsPath: "../../migrations",
	}, zap.NewNop())
	require.NoError(t, runner.Run())

	db, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})

	return db
}

func insertInstance(t *testing.T, db *sqlx.DB, id string, enabled bool) {
	t.Helper()

	_, err := db.Exec(
		`INSERT INTO instances (id, api_token, base_url, state, enabled) VALUES ($1, $2, $3, $4, $5)`,
		id, "token-"+id, "http://gateway.local", models.InstanceStateConnected, enabled,
	)
	require.NoError(t, err)
}

func insertRule(t *testing.T, db *sqlx.DB, instanceID, trigger string, priority int, maxUses *int64, enabled bool) int64 {
	t.Helper()

	var scope sql.NullString
	if instanceID != "" {
		scope = sql.NullString{String: instanceID, Valid: true}
	}
	var limit sql.NullInt64
	if maxUses != nil {
		limit = sql.NullInt64{Int64: *maxUses, Valid: true}
	}

	var id int64
	err := db.QueryRow(`
		INSERT INTO auto_reply_rules (instance_id, trigger_text, response_text, priority, max_uses_per_day, enabled)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		scope, trigger, "reply to "+trigger, priority, limit, enabled,
	).Scan(&id)
	require.NoError(t, err)

	return id
}

func newTextMessage(instanceID, destination string, priority int, scheduledAt time.Time) *models.QueuedMessage {
	return &models.QueuedMessage{
		InstanceID:  instanceID,
		Destination: destination,
		Type:        models.MessageTypeText,
		Content:     "hello " + destination,
		Priority:    priority,
		ScheduledAt: scheduledAt,
	}
}
