package syncer

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/runclub/clubsync/internal/credentials"
	"github.com/runclub/clubsync/internal/database"
	"github.com/runclub/clubsync/internal/logging"
	"github.com/runclub/clubsync/internal/models"
	"github.com/runclub/clubsync/internal/strava"
)

const testPageSize = 3

// fakeProvider serves the token endpoint and the paginated activity listing.
// Refresh tokens map to the access token they produce; activity feeds are keyed by
// access token.
type fakeProvider struct {
	mu        sync.Mutex
	refreshes map[string]string
	feeds     map[string][]map[string]any
	failPage  map[string]int
	requests  map[string][]int
	refreshN  int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		refreshes: make(map[string]string),
		feeds:     make(map[string][]map[string]any),
		failPage:  make(map[string]int),
		requests:  make(map[string][]int),
	}
}

func (p *fakeProvider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/oauth/token":
		p.refreshN++
		_ = r.ParseForm()
		access, ok := p.refreshes[r.PostForm.Get("refresh_token")]
		if !ok {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"message":"Bad Request","errors":[{"code":"invalid"}]}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  access,
			"refresh_token": r.PostForm.Get("refresh_token") + "-rotated",
			"expires_at":    time.Now().Add(6 * time.Hour).Unix(),
		})

	case "/athlete/activities":
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		feed, ok := p.feeds[token]
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
		p.requests[token] = append(p.requests[token], page)

		if p.failPage[token] == page {
			w.WriteHeader(http.StatusBadGateway)
			return
		}

		start := (page - 1) * perPage
		end := start + perPage
		if start > len(feed) {
			start = len(feed)
		}
		if end > len(feed) {
			end = len(feed)
		}
		_ = json.NewEncoder(w).Encode(feed[start:end])

	default:
		http.NotFound(w, r)
	}
}

func (p *fakeProvider) setFeed(token string, records []map[string]any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.feeds[token] = records
}

func (p *fakeProvider) setFailPage(token string, page int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if page == 0 {
		delete(p.failPage, token)
		return
	}
	p.failPage[token] = page
}

func (p *fakeProvider) pagesRequested(token string) []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.requests[token]...)
}

func (p *fakeProvider) refreshCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refreshN
}

func record(id int64, typ string) map[string]any {
	return map[string]any{
		"id":               id,
		"name":             typ + " " + strconv.FormatInt(id, 10),
		"type":             typ,
		"sport_type":       typ,
		"distance":         5000.0,
		"moving_time":      1500,
		"elapsed_time":     1600,
		"start_date":       time.Date(2025, 10, 1, 6, 0, 0, 0, time.UTC).Add(time.Duration(id) * time.Minute).Format(time.RFC3339),
		"start_date_local": time.Date(2025, 10, 1, 8, 0, 0, 0, time.UTC).Format(time.RFC3339),
	}
}

func runs(from, to int64) []map[string]any {
	var out []map[string]any
	for id := from; id <= to; id++ {
		out = append(out, record(id, "Run"))
	}
	return out
}

// harness wires the real vault, provider client and memory store together.
type harness struct {
	provider *fakeProvider
	store    *database.MemoryStore
	orch     *Orchestrator
}

func newHarness(t *testing.T, reporters ...Reporter) *harness {
	t.Helper()

	provider := newFakeProvider()
	srv := httptest.NewServer(provider)
	t.Cleanup(srv.Close)

	logger := logging.Discard()
	store := database.NewMemoryStore()
	oauth := strava.NewOAuthClient(strava.OAuthConfig{
		ClientID:     "club",
		ClientSecret: "secret",
		TokenURL:     srv.URL + "/oauth/token",
		Timeout:      2 * time.Second,
	})
	client := strava.NewClient(strava.ClientConfig{
		BaseURL:        srv.URL,
		PageSize:       testPageSize,
		RequestTimeout: 2 * time.Second,
		Retry:          strava.RetryPolicy{MaxRetries: 0},
	}, logger)

	orch := NewOrchestrator(Config{
		Store:            store,
		Tokens:           credentials.NewVault(store, oauth, logger),
		Source:           client,
		Reporters:        append([]Reporter{store}, reporters...),
		SweepConcurrency: 2,
	}, logger)

	return &harness{provider: provider, store: store, orch: orch}
}

// addUser registers a user whose credential is expired, so the first sync refreshes
// refreshToken into accessToken.
func (h *harness) addUser(t *testing.T, athleteID, refreshToken, accessToken string) string {
	t.Helper()
	user, err := h.store.UpsertAthlete(t.Context(), models.Athlete{ID: athleteID}, models.Credential{
		AccessToken:  "expired-" + athleteID,
		RefreshToken: refreshToken,
		ExpiresAt:    time.Now().Add(-time.Minute),
	})
	if err != nil {
		t.Fatalf("add user: %v", err)
	}
	if accessToken != "" {
		h.provider.mu.Lock()
		h.provider.refreshes[refreshToken] = accessToken
		h.provider.mu.Unlock()
	}
	return user.ID
}
