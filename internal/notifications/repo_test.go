package notifications

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/routepilothq/routepilot-backend/pkg/db/models"
	"github.com/routepilothq/routepilot-backend/pkg/enums"
	"github.com/routepilothq/routepilot-backend/pkg/pagination"
)

func setupNotificationsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	notifications := `
CREATE TABLE IF NOT EXISTS notifications (
  id TEXT PRIMARY KEY,
  organization_id TEXT NOT NULL,
  user_id TEXT NOT NULL,
  type TEXT NOT NULL,
  title TEXT NOT NULL,
  message TEXT NOT NULL,
  payload TEXT,
  read_at DATETIME,
  created_at DATETIME
);`
	require.NoError(t, db.Exec(notifications).Error)
	return db
}

func createNotification(t *testing.T, db *gorm.DB, orgID, userID uuid.UUID, typ enums.NotificationType, created time.Time) *models.Notification {
	t.Helper()

	n := &models.Notification{
		ID:             uuid.New(),
		OrganizationID: orgID,
		UserID:         userID,
		Type:           typ,
		Title:          "Shift update",
		Message:        "Your assignment changed",
		CreatedAt:      created,
	}
	require.NoError(t, db.Create(n).Error)
	return n
}

func TestNotificationsListPaginates(t *testing.T) {
	db := setupNotificationsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	orgID := uuid.New()
	userID := uuid.New()
	base := time.Date(2026, 3, 23, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		createNotification(t, db, orgID, userID, enums.NotificationTypeAssignmentAssigned, base.Add(time.Duration(i)*time.Minute))
	}

	first, cursor, err := repo.List(ctx, listNotificationsParams{
		OrganizationID: orgID,
		UserID:         userID,
		Limit:          3,
	})
	require.NoError(t, err)
	require.Len(t, first, 3)
	require.NotNil(t, cursor)
	assert.True(t, first[0].CreatedAt.After(first[2].CreatedAt), "expected newest first")

	rest, next, err := repo.List(ctx, listNotificationsParams{
		OrganizationID: orgID,
		UserID:         userID,
		Limit:          3,
		Cursor:         cursor,
	})
	require.NoError(t, err)
	require.Len(t, rest, 2)
	assert.Nil(t, next)
	assert.True(t, first[2].CreatedAt.After(rest[0].CreatedAt))
}

func TestNotificationsListUnreadOnly(t *testing.T) {
	db := setupNotificationsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	orgID := uuid.New()
	userID := uuid.New()
	base := time.Date(2026, 3, 23, 9, 0, 0, 0, time.UTC)
	read := createNotification(t, db, orgID, userID, enums.NotificationTypeBidWon, base)
	unread := createNotification(t, db, orgID, userID, enums.NotificationTypeBidLost, base.Add(time.Minute))

	mark, err := repo.MarkRead(ctx, orgID, userID, read.ID, base.Add(2*time.Minute))
	require.NoError(t, err)
	require.True(t, mark.Updated)

	rows, _, err := repo.List(ctx, listNotificationsParams{
		OrganizationID: orgID,
		UserID:         userID,
		Limit:          pagination.DefaultLimit,
		UnreadOnly:     true,
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, unread.ID, rows[0].ID)
}

func TestNotificationsMarkReadIsIdempotent(t *testing.T) {
	db := setupNotificationsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	orgID := uuid.New()
	userID := uuid.New()
	now := time.Date(2026, 3, 23, 9, 0, 0, 0, time.UTC)
	n := createNotification(t, db, orgID, userID, enums.NotificationTypeNoShowAlert, now)

	mark, err := repo.MarkRead(ctx, orgID, userID, n.ID, now.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, mark.Updated)
	assert.True(t, mark.Found)

	again, err := repo.MarkRead(ctx, orgID, userID, n.ID, now.Add(2*time.Minute))
	require.NoError(t, err)
	assert.False(t, again.Updated)
	assert.True(t, again.Found)
}

func TestNotificationsMarkReadScopedToUser(t *testing.T) {
	db := setupNotificationsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	orgID := uuid.New()
	owner := uuid.New()
	now := time.Date(2026, 3, 23, 9, 0, 0, 0, time.UTC)
	n := createNotification(t, db, orgID, owner, enums.NotificationTypeBidWindowOpened, now)

	mark, err := repo.MarkRead(ctx, orgID, uuid.New(), n.ID, now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, mark.Updated)
	assert.False(t, mark.Found)
}

func TestNotificationsMarkAllRead(t *testing.T) {
	db := setupNotificationsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	orgID := uuid.New()
	userID := uuid.New()
	now := time.Date(2026, 3, 23, 9, 0, 0, 0, time.UTC)
	createNotification(t, db, orgID, userID, enums.NotificationTypeAssignmentDropped, now)
	createNotification(t, db, orgID, userID, enums.NotificationTypeAssignmentCancelled, now.Add(time.Minute))

	updated, err := repo.MarkAllRead(ctx, orgID, userID, now.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated)

	updated, err = repo.MarkAllRead(ctx, orgID, userID, now.Add(3*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(0), updated)
}
