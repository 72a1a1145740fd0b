package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/runclub/clubsync/internal/models"
)

func TestMemoryStoreUpsertAthleteKeysOnProviderID(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	cred := models.Credential{AccessToken: "a", RefreshToken: "r", ExpiresAt: time.Now().Add(time.Hour)}
	first, err := store.UpsertAthlete(ctx, models.Athlete{ID: "100", FirstName: "Ada"}, cred)
	require.NoError(t, err)

	second, err := store.UpsertAthlete(ctx, models.Athlete{ID: "100", FirstName: "Ada", City: "London"}, cred)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, "London", second.City)

	ids, err := store.ListUserIDs(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{first.ID}, ids)

	stored, err := store.GetCredential(ctx, first.ID)
	require.NoError(t, err)
	require.Equal(t, cred, *stored)
}

func TestMemoryStoreMissingUser(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.GetUser(ctx, "missing")
	require.ErrorIs(t, err, models.ErrUserNotFound)

	cred, err := store.GetCredential(ctx, "missing")
	require.NoError(t, err)
	require.Nil(t, cred)

	require.ErrorIs(t, store.SetCredential(ctx, "missing", models.Credential{}), models.ErrUserNotFound)
	require.ErrorIs(t, store.SetLastSyncAt(ctx, "missing", time.Now()), models.ErrUserNotFound)
}

func TestMemoryStoreUpsertActivityIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	start := time.Date(2025, 10, 1, 6, 0, 0, 0, time.UTC)
	activity := models.Activity{ExternalID: "9007199254740993", UserID: "u1", Name: "Run", Type: "Run", StartDate: start}
	require.NoError(t, store.UpsertActivity(ctx, activity))

	activity.Name = "Renamed"
	activity.UserID = "u2"
	require.NoError(t, store.UpsertActivity(ctx, activity))
	require.Equal(t, 1, store.CountActivities())

	list, err := store.ListActivities(ctx, "u1", start)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "Renamed", list[0].Name)
	require.Equal(t, "u1", list[0].UserID, "owner must not be reassigned")
}

func TestMemoryStoreListActivitiesFiltersAndOrders(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"1", "2", "3"} {
		require.NoError(t, store.UpsertActivity(ctx, models.Activity{
			ExternalID: id,
			UserID:     "u1",
			Type:       "Run",
			StartDate:  base.Add(time.Duration(i) * 24 * time.Hour),
		}))
	}
	require.NoError(t, store.UpsertActivity(ctx, models.Activity{ExternalID: "4", UserID: "u2", Type: "Run", StartDate: base}))

	list, err := store.ListActivities(ctx, "u1", base.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "3", list[0].ExternalID)
	require.Equal(t, "2", list[1].ExternalID)
}

func TestMemoryStoreUpsertHook(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.SetUpsertHook(func(a models.Activity) error {
		if a.ExternalID == "bad" {
			return errors.New("constraint violation")
		}
		return nil
	})

	require.Error(t, store.UpsertActivity(ctx, models.Activity{ExternalID: "bad"}))
	require.NoError(t, store.UpsertActivity(ctx, models.Activity{ExternalID: "good"}))
	require.Equal(t, 1, store.CountActivities())
}

func TestMemoryStoreRunLog(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	for i, user := range []string{"u1", "u2", "u1"} {
		require.NoError(t, store.Report(ctx, models.SyncResult{
			RunID:   string(rune('a' + i)),
			UserID:  user,
			Outcome: models.SyncOutcomeSuccess,
			Err:     errors.New("dropped"),
		}))
	}

	runs, err := store.ListRuns(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, "c", runs[0].RunID)
	require.Equal(t, "a", runs[1].RunID)
	require.Nil(t, runs[0].Err)

	all, err := store.ListRuns(ctx, "", 1)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestMemoryStoreLastSyncAtIsCopied(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	user, err := store.UpsertAthlete(ctx, models.Athlete{ID: "1"}, models.Credential{})
	require.NoError(t, err)

	ts := time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.SetLastSyncAt(ctx, user.ID, ts))

	got, err := store.GetUser(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastSyncAt)
	*got.LastSyncAt = time.Time{}

	again, err := store.GetUser(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, ts, *again.LastSyncAt)
}
