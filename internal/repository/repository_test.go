package repository

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raven-chat/internal/db"
	"raven-chat/internal/models"
)

// setupTestDB connects to TEST_DATABASE_URL, or skips when it is unset or
// unreachable.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("Skipping test: TEST_DATABASE_URL is not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Skipf("Skipping test: database not available: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Skipf("Skipping test: database ping failed: %v", err)
	}
	require.NoError(t, db.EnsureSchema(ctx, pool))

	t.Cleanup(pool.Close)
	return pool
}

func TestSetupTestDB_SkipsWithoutURL(t *testing.T) {
	var skipped bool
	t.Run("unset", func(t *testing.T) {
		t.Setenv("TEST_DATABASE_URL", "")
		defer func() { skipped = t.Skipped() }()
		setupTestDB(t)
		t.Error("setupTestDB returned without a database")
	})
	assert.True(t, skipped)
}

// testRoomID returns a room id private to the calling test.
func testRoomID(t *testing.T) string {
	return models.RoomID(models.DefaultRoomNamespace, t.Name()+"-"+uuid.NewString())
}

func TestMessagesRepo_InsertIsConditional(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewMessagesRepo(pool)
	ctx := context.Background()
	roomID := testRoomID(t)

	msg := models.Message{RoomID: roomID, TimeSent: 100, Sender: "A", Action: models.ActionMessage, Body: "hi"}
	require.NoError(t, repo.Insert(ctx, msg))

	dup := msg
	dup.Body = "overwrite?"
	assert.ErrorIs(t, repo.Insert(ctx, dup), ErrDuplicate)

	got, err := repo.Query(ctx, roomID, 0, 1000, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, msg, got[0])
}

func TestMessagesRepo_QueryRangeAndOrder(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewMessagesRepo(pool)
	ctx := context.Background()
	roomID := testRoomID(t)

	for _, ts := range []int64{10, 20, 30, 40, 50} {
		require.NoError(t, repo.Insert(ctx, models.Message{RoomID: roomID, TimeSent: ts, Sender: "A", Action: models.ActionMessage}))
	}

	got, err := repo.Query(ctx, roomID, 20, 40, 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []int64{40, 30, 20}, []int64{got[0].TimeSent, got[1].TimeSent, got[2].TimeSent})

	limited, err := repo.Query(ctx, roomID, 0, 100, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, int64(50), limited[0].TimeSent)
}

func TestMessagesRepo_ScanAndDeleteBatch(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewMessagesRepo(pool)
	ctx := context.Background()
	roomID := testRoomID(t)

	for ts := int64(1); ts <= 5; ts++ {
		require.NoError(t, repo.Insert(ctx, models.Message{RoomID: roomID, TimeSent: ts, Sender: "A", Action: models.ActionMessage}))
	}

	first, err := repo.Scan(ctx, roomID, "", 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, first.Keys)
	require.NotEmpty(t, first.Next)

	second, err := repo.Scan(ctx, roomID, first.Next, 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 4, 5}, second.Keys)
	assert.Empty(t, second.Next)

	require.NoError(t, repo.DeleteBatch(ctx, roomID, first.Keys))
	left, err := repo.Query(ctx, roomID, 0, 10, 10)
	require.NoError(t, err)
	assert.Len(t, left, 3)
}

func TestConnectionsRepo_Lifecycle(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewConnectionsRepo(pool)
	ctx := context.Background()
	roomID := testRoomID(t)

	a := models.Connection{ConnectionID: uuid.NewString(), RoomID: roomID, Username: "alice"}
	b := models.Connection{ConnectionID: uuid.NewString(), RoomID: roomID, Username: "bob"}
	require.NoError(t, repo.Put(ctx, a))
	require.NoError(t, repo.Put(ctx, b))
	require.NoError(t, repo.Put(ctx, a), "put is idempotent")

	members, err := repo.ListByRoom(ctx, roomID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []models.Connection{a, b}, members)

	got, err := repo.Get(ctx, a.ConnectionID)
	require.NoError(t, err)
	assert.Equal(t, a, got)

	require.NoError(t, repo.Delete(ctx, a.ConnectionID))
	require.NoError(t, repo.Delete(ctx, a.ConnectionID), "deleting twice is a no-op")
	_, err = repo.Get(ctx, a.ConnectionID)
	assert.ErrorIs(t, err, ErrNotFound)

	page, err := repo.Scan(ctx, roomID, "", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{b.ConnectionID}, page.Keys)
	require.NoError(t, repo.DeleteBatch(ctx, page.Keys))

	members, err = repo.ListByRoom(ctx, roomID)
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestRoomsRepo_CreateAndStatus(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewRoomsRepo(pool)
	ctx := context.Background()

	name := "room-" + uuid.NewString()
	room := models.Room{ID: models.RoomID(models.DefaultRoomNamespace, name), Name: name, CreatorID: "alice", Status: models.RoomReady}
	t.Cleanup(func() { _ = repo.Delete(context.Background(), room.ID) })

	require.NoError(t, repo.Create(ctx, room))
	assert.ErrorIs(t, repo.Create(ctx, room), ErrDuplicate)

	got, err := repo.Get(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, room, got)

	require.NoError(t, repo.UpdateStatus(ctx, room.ID, models.RoomReady, models.RoomDeleting))
	assert.ErrorIs(t, repo.UpdateStatus(ctx, room.ID, models.RoomReady, models.RoomDeleting), ErrConflict)

	deleting, err := repo.ListByStatus(ctx, models.RoomDeleting)
	require.NoError(t, err)
	assert.Contains(t, deleting, models.Room{ID: room.ID, Name: name, CreatorID: "alice", Status: models.RoomDeleting})

	require.NoError(t, repo.Delete(ctx, room.ID))
	_, err = repo.Get(ctx, room.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, repo.UpdateStatus(ctx, room.ID, models.RoomDeleting, models.RoomReady), ErrNotFound)
}
