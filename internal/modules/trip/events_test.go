package trip

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventStore_AppendAndList(t *testing.T) {
	store := setupEventStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)

	events := []Event{
		{ID: uuid.NewString(), TripID: "t-db", From: StatusAssigned, To: StatusAccepted, ActorType: ActorDriver, ActorID: "d1", CreatedAt: base},
		{ID: uuid.NewString(), TripID: "t-db", From: StatusAccepted, To: StatusInProgress, ActorType: ActorSystem, CreatedAt: base.Add(time.Second)},
		{ID: uuid.NewString(), TripID: "t-db", From: StatusInProgress, To: StatusCompleted, ActorType: ActorOperator, ActorID: "op1", Reason: "gps lost", Forced: true, CreatedAt: base.Add(2 * time.Second)},
	}
	for _, e := range events {
		require.NoError(t, store.Append(ctx, e))
	}

	got, err := store.List(ctx, "t-db")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, StatusAccepted, got[0].To)
	assert.Empty(t, got[1].ActorID)
	assert.True(t, got[2].Forced)
	assert.Equal(t, "gps lost", got[2].Reason)
	assert.True(t, got[2].CreatedAt.Equal(events[2].CreatedAt))
}

func setupEventStore(t *testing.T) *EventStore {
	t.Helper()

	dsn := os.Getenv("FLEET_TEST_DSN")
	if dsn == "" {
		t.Skip("FLEET_TEST_DSN not set; skipping DB-backed event store tests")
	}

	ctx := context.Background()
	db, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, applyMigration(ctx, db))
	_, err = db.Exec(ctx, "TRUNCATE TABLE trip_events, position_snapshots")
	require.NoError(t, err)
	return NewEventStore(db)
}

func applyMigration(ctx context.Context, db *pgxpool.Pool) error {
	root, err := repoRoot()
	if err != nil {
		return err
	}
	content, err := os.ReadFile(filepath.Join(root, "migrations", "0001_init.sql"))
	if err != nil {
		return err
	}
	for _, stmt := range splitSQL(stripSQLComments(string(content))) {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func repoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for i := 0; i < 6; i++ {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", os.ErrNotExist
}

func stripSQLComments(input string) string {
	var b strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(input))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		b.WriteString(scanner.Text())
		b.WriteString("\n")
	}
	return b.String()
}

func splitSQL(input string) []string {
	parts := strings.Split(input, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if stmt := strings.TrimSpace(p); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}
