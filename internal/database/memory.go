package database

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/runclub/clubsync/internal/models"
)

// MemoryStore keeps users, activities and sync runs in process memory. It backs
// local runs without DATABASE_URL and the tests of the sync subsystem.
type MemoryStore struct {
	mu         sync.RWMutex
	users      map[string]models.User
	order      []string
	byStravaID map[string]string
	creds      map[string]models.Credential
	activities map[string]models.Activity
	runs       []models.SyncResult
	now        func() time.Time

	// upsertHook, when set, runs before each activity write and can fail it.
	upsertHook func(models.Activity) error
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:      make(map[string]models.User),
		byStravaID: make(map[string]string),
		creds:      make(map[string]models.Credential),
		activities: make(map[string]models.Activity),
		now:        time.Now,
	}
}

// SetUpsertHook installs fn to run before every UpsertActivity. A non-nil error from
// fn is returned instead of writing.
func (s *MemoryStore) SetUpsertHook(fn func(models.Activity) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertHook = fn
}

// UpsertAthlete creates or updates the user identified by the provider athlete id and
// stores cred for it.
func (s *MemoryStore) UpsertAthlete(_ context.Context, athlete models.Athlete, cred models.Credential) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	id, exists := s.byStravaID[athlete.ID]
	user := s.users[id]
	if !exists {
		id = uuid.NewString()
		user = models.User{ID: id, StravaID: athlete.ID, CreatedAt: now}
		s.byStravaID[athlete.ID] = id
		s.order = append(s.order, id)
	}

	user.FirstName = athlete.FirstName
	user.LastName = athlete.LastName
	user.Username = athlete.Username
	user.City = athlete.City
	user.Country = athlete.Country
	user.ProfilePicture = athlete.ProfilePicture
	user.UpdatedAt = now

	s.users[id] = user
	s.creds[id] = cred
	return copyUser(user), nil
}

// GetUser returns the user with id.
func (s *MemoryStore) GetUser(_ context.Context, id string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return models.User{}, models.ErrUserNotFound
	}
	return copyUser(user), nil
}

// GetCredential returns nil when the user has no stored credential.
func (s *MemoryStore) GetCredential(_ context.Context, userID string) (*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cred, ok := s.creds[userID]
	if !ok {
		return nil, nil
	}
	return &cred, nil
}

// SetCredential replaces the user's credential.
func (s *MemoryStore) SetCredential(_ context.Context, userID string, cred models.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return models.ErrUserNotFound
	}
	s.creds[userID] = cred
	user.UpdatedAt = s.now()
	s.users[userID] = user
	return nil
}

// SetLastSyncAt records when the user's last complete sync finished.
func (s *MemoryStore) SetLastSyncAt(_ context.Context, userID string, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return models.ErrUserNotFound
	}
	user.LastSyncAt = &ts
	s.users[userID] = user
	return nil
}

// ListUserIDs returns every user id in creation order.
func (s *MemoryStore) ListUserIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.order), nil
}

// UpsertActivity inserts the activity or overwrites the stored one with the same
// external id. The owning user of an existing activity is kept.
func (s *MemoryStore) UpsertActivity(_ context.Context, activity models.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.upsertHook != nil {
		if err := s.upsertHook(activity); err != nil {
			return err
		}
	}

	now := s.now()
	if existing, ok := s.activities[activity.ExternalID]; ok {
		activity.UserID = existing.UserID
		activity.CreatedAt = existing.CreatedAt
	} else {
		activity.CreatedAt = now
	}
	activity.UpdatedAt = now
	s.activities[activity.ExternalID] = activity
	return nil
}

// ListActivities returns the user's activities starting at or after since, newest first.
func (s *MemoryStore) ListActivities(_ context.Context, userID string, since time.Time) ([]models.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Activity
	for _, a := range s.activities {
		if a.UserID == userID && !a.StartDate.Before(since) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartDate.Equal(out[j].StartDate) {
			return out[i].ExternalID > out[j].ExternalID
		}
		return out[i].StartDate.After(out[j].StartDate)
	})
	return out, nil
}

// CountActivities returns the number of stored activities across all users.
func (s *MemoryStore) CountActivities() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.activities)
}

// Report appends a sync run to the run log.
func (s *MemoryStore) Report(_ context.Context, result models.SyncResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	result.Err = nil
	s.runs = append(s.runs, result)
	return nil
}

// ListRuns returns up to limit runs for userID, newest first. An empty userID lists
// runs for every user.
func (s *MemoryStore) ListRuns(_ context.Context, userID string, limit int) ([]models.SyncResult, error) {
	limit = clampLimit(limit)

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.SyncResult{}
	for i := len(s.runs) - 1; i >= 0 && len(out) < limit; i-- {
		if userID == "" || s.runs[i].UserID == userID {
			out = append(out, s.runs[i])
		}
	}
	return out, nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

func copyUser(u models.User) models.User {
	if u.LastSyncAt != nil {
		ts := *u.LastSyncAt
		u.LastSyncAt = &ts
	}
	return u
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 200 {
		return 200
	}
	return limit
}
