package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/clipvault/clipvault/downloader"
	"github.com/clipvault/clipvault/gate"
	"github.com/clipvault/clipvault/middleware"
	"github.com/clipvault/clipvault/models"
	"github.com/clipvault/clipvault/platform"
	"github.com/clipvault/clipvault/store"
)

type fakeUsers struct {
	mu    sync.Mutex
	users map[uint]*models.User
}

func (f *fakeUsers) Get(_ context.Context, id uint) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

// memClock implements gate.UserClock with the same conditional-write
// semantics as the database-backed store.
type memClock struct {
	mu     sync.Mutex
	clocks map[uint]*time.Time
}

func newMemClock() *memClock {
	return &memClock{clocks: make(map[uint]*time.Time)}
}

func (m *memClock) Advance(_ context.Context, userID uint, now, threshold time.Time) (bool, *time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.clocks[userID]
	if prev != nil && prev.After(threshold) {
		p := *prev
		return false, &p, nil
	}
	var prevCopy *time.Time
	if prev != nil {
		p := *prev
		prevCopy = &p
	}
	n := now
	m.clocks[userID] = &n
	return true, prevCopy, nil
}

func (m *memClock) Set(_ context.Context, userID uint, at *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if at == nil {
		m.clocks[userID] = nil
		return nil
	}
	v := *at
	m.clocks[userID] = &v
	return nil
}

func (m *memClock) Clear(_ context.Context, userID uint) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	had := m.clocks[userID] != nil
	m.clocks[userID] = nil
	return had, nil
}

func (m *memClock) value(userID uint) *time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clocks[userID]
}

type logEntry struct {
	userID  uint
	videoID string
}

type fakeCatalog struct {
	mu        sync.Mutex
	byKey     map[string]*models.Video
	createErr error
	dupWinner *models.Video
	logs      []logEntry
	nextID    string
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{byKey: make(map[string]*models.Video), nextID: "vid-1"}
}

func (f *fakeCatalog) FindByKey(_ context.Context, key string) (*models.Video, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.byKey[key]; ok {
		cp := *v
		return &cp, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeCatalog) Create(_ context.Context, key string, p platform.Platform, filePath string, fileSize int64, ownerID uint) (*models.Video, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		if f.dupWinner != nil {
			f.byKey[key] = f.dupWinner
		}
		return nil, f.createErr
	}
	v := &models.Video{
		ID:           f.nextID,
		CanonicalKey: key,
		Platform:     string(p),
		FilePath:     filePath,
		FileSize:     fileSize,
		UserID:       ownerID,
	}
	f.byKey[key] = v
	cp := *v
	return &cp, nil
}

func (f *fakeCatalog) LogDownload(_ context.Context, userID uint, videoID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, logEntry{userID: userID, videoID: videoID})
	return nil
}

type fakeFetcher struct {
	mu     sync.Mutex
	calls  int
	result *downloader.Result
	err    error
}

func (f *fakeFetcher) Download(_ context.Context, _ string, _ platform.Platform) (*downloader.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeAdTokens struct {
	mu     sync.Mutex
	issued map[string]uint
}

func newFakeAdTokens() *fakeAdTokens {
	return &fakeAdTokens{issued: make(map[string]uint)}
}

func (f *fakeAdTokens) Issue(userID uint, _ time.Duration) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	token := "tok-" + time.Now().Format("150405.000000000")
	f.issued[token] = userID
	return token
}

func (f *fakeAdTokens) grant(userID uint, token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.issued[token] = userID
}

func (f *fakeAdTokens) Redeem(userID uint, token string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	owner, ok := f.issued[token]
	if !ok || owner != userID {
		return false
	}
	delete(f.issued, token)
	return true
}

type testEnv struct {
	ctrl    *DownloadController
	users   *fakeUsers
	clock   *memClock
	catalog *fakeCatalog
	fetcher *fakeFetcher
	tokens  *fakeAdTokens
}

func newTestEnv() *testEnv {
	users := &fakeUsers{users: map[uint]*models.User{
		1: {ID: 1, Username: "alice", Role: models.RoleUser},
		2: {ID: 2, Username: "root", Role: models.RoleAdmin},
	}}
	clock := newMemClock()
	catalog := newFakeCatalog()
	fetcher := &fakeFetcher{result: &downloader.Result{Path: "2026-09-01/clip.mp4", Size: 2048}}
	tokens := newFakeAdTokens()
	g := gate.New(clock, 5*time.Minute)
	return &testEnv{
		ctrl:    NewDownloadController(users, catalog, fetcher, g, tokens, nil),
		users:   users,
		clock:   clock,
		catalog: catalog,
		fetcher: fetcher,
		tokens:  tokens,
	}
}

func asUser(userID uint) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if userID != 0 {
			ctx.Set(middleware.ContextUserIDKey, userID)
		}
		ctx.Next()
	}
}

func doJSON(t *testing.T, handler gin.HandlerFunc, userID uint, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(asUser(userID))
	r.Handle(method, path, handler)

	var payload *bytes.Buffer
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		payload = bytes.NewBuffer(raw)
	} else {
		payload = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, payload)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeDownload(t *testing.T, w *httptest.ResponseRecorder) downloadResponse {
	t.Helper()
	var resp downloadResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return resp
}

func TestRequestDownloadFreshUser(t *testing.T) {
	env := newTestEnv()
	w := doJSON(t, env.ctrl.Request, 1, http.MethodPost, "/download", gin.H{
		"url":      "https://www.youtube.com/watch?v=abc123XYZ05",
		"platform": "youtube",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", w.Code, w.Body.String())
	}
	resp := decodeDownload(t, w)
	if !resp.Success {
		t.Fatalf("success = false, body %s", w.Body.String())
	}
	if resp.VideoID == "" {
		t.Fatal("missing videoId")
	}
	if want := "/api/v1/download/" + resp.VideoID; resp.DownloadURL != want {
		t.Fatalf("downloadUrl = %q, want %q", resp.DownloadURL, want)
	}
	if env.fetcher.callCount() != 1 {
		t.Fatalf("fetch calls = %d, want 1", env.fetcher.callCount())
	}
	if env.clock.value(1) == nil {
		t.Fatal("cooldown clock was not advanced")
	}
	if len(env.catalog.logs) != 1 || env.catalog.logs[0].userID != 1 {
		t.Fatalf("unexpected audit rows: %+v", env.catalog.logs)
	}
}

func TestRequestDownloadDedupAcrossURLVariants(t *testing.T) {
	env := newTestEnv()

	first := doJSON(t, env.ctrl.Request, 2, http.MethodPost, "/download", gin.H{
		"url":      "https://www.youtube.com/watch?v=abc123XYZ05&t=42",
		"platform": "youtube",
	})
	firstResp := decodeDownload(t, first)
	if !firstResp.Success {
		t.Fatalf("first request failed: %s", first.Body.String())
	}

	second := doJSON(t, env.ctrl.Request, 2, http.MethodPost, "/download", gin.H{
		"url":      "https://youtu.be/abc123XYZ05",
		"platform": "youtube",
	})
	secondResp := decodeDownload(t, second)
	if !secondResp.Success {
		t.Fatalf("second request failed: %s", second.Body.String())
	}

	if firstResp.VideoID != secondResp.VideoID {
		t.Fatalf("dedup miss: %q vs %q", firstResp.VideoID, secondResp.VideoID)
	}
	if env.fetcher.callCount() != 1 {
		t.Fatalf("fetch calls = %d, want 1 across both variants", env.fetcher.callCount())
	}
	if len(env.catalog.logs) != 2 {
		t.Fatalf("audit rows = %d, want 2", len(env.catalog.logs))
	}
}

func TestRequestDownloadBlockedDuringCooldown(t *testing.T) {
	env := newTestEnv()
	last := time.Now().Add(-time.Minute)
	env.clock.Set(context.Background(), 1, &last)

	w := doJSON(t, env.ctrl.Request, 1, http.MethodPost, "/download", gin.H{
		"url":      "https://www.youtube.com/watch?v=abc123XYZ05",
		"platform": "youtube",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	resp := decodeDownload(t, w)
	if resp.Success {
		t.Fatal("expected admission to be denied")
	}
	if resp.CooldownUntil == "" {
		t.Fatal("missing cooldownUntil")
	}
	until, err := time.Parse(time.RFC3339, resp.CooldownUntil)
	if err != nil {
		t.Fatalf("cooldownUntil not RFC3339: %v", err)
	}
	want := last.Add(5 * time.Minute)
	if d := until.Sub(want); d < -time.Second || d > time.Second {
		t.Fatalf("cooldownUntil = %v, want about %v", until, want)
	}
	if env.fetcher.callCount() != 0 {
		t.Fatal("blocked request must not reach the extractor")
	}
}

func TestRequestDownloadAdminBypassesCooldown(t *testing.T) {
	env := newTestEnv()
	last := time.Now().Add(-time.Second)
	env.clock.Set(context.Background(), 2, &last)

	w := doJSON(t, env.ctrl.Request, 2, http.MethodPost, "/download", gin.H{
		"url":      "https://www.instagram.com/reel/XyZ_123/",
		"platform": "instagram",
	})

	resp := decodeDownload(t, w)
	if !resp.Success {
		t.Fatalf("admin was blocked: %s", w.Body.String())
	}
	got := env.clock.value(2)
	if got == nil || !got.Equal(last) {
		t.Fatalf("admin request mutated the clock: %v", got)
	}
}

func TestRequestDownloadFailureRestoresClock(t *testing.T) {
	env := newTestEnv()
	env.fetcher.err = &downloader.ExtractionError{Op: "fetch", Detail: "network unreachable"}

	w := doJSON(t, env.ctrl.Request, 1, http.MethodPost, "/download", gin.H{
		"url":      "https://www.youtube.com/watch?v=abc123XYZ05",
		"platform": "youtube",
	})

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	resp := decodeDownload(t, w)
	if resp.Success {
		t.Fatal("expected failure response")
	}
	if strings.Contains(w.Body.String(), "network unreachable") {
		t.Fatal("extractor detail leaked to the client")
	}
	if env.clock.value(1) != nil {
		t.Fatal("cooldown clock should be restored after a failed extraction")
	}
	if len(env.catalog.logs) != 0 {
		t.Fatal("failed download must not leave an audit row")
	}
}

func TestRequestDownloadAdminFailureLeavesClockUntouched(t *testing.T) {
	env := newTestEnv()
	last := time.Now().Add(-time.Minute)
	env.clock.Set(context.Background(), 2, &last)
	env.fetcher.err = &downloader.ExtractionError{Op: "fetch", Detail: "exit status 1"}

	w := doJSON(t, env.ctrl.Request, 2, http.MethodPost, "/download", gin.H{
		"url":      "https://www.youtube.com/watch?v=abc123XYZ05",
		"platform": "youtube",
	})

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	// The bypass never wrote the clock, so the failure path must not
	// null it either.
	got := env.clock.value(2)
	if got == nil || !got.Equal(last) {
		t.Fatalf("admin clock mutated by failed download: got %v, want %v", got, last)
	}
}

func TestRequestDownloadLostInsertRaceResolvesToWinner(t *testing.T) {
	env := newTestEnv()
	winner := &models.Video{ID: "winner-id", CanonicalKey: "youtube:abc123XYZ05", FilePath: "2026-09-01/w.mp4", FileSize: 9}
	env.catalog.createErr = store.ErrDuplicateKey
	env.catalog.dupWinner = winner

	w := doJSON(t, env.ctrl.Request, 1, http.MethodPost, "/download", gin.H{
		"url":      "https://www.youtube.com/watch?v=abc123XYZ05",
		"platform": "youtube",
	})

	resp := decodeDownload(t, w)
	if !resp.Success {
		t.Fatalf("lost race should still succeed: %s", w.Body.String())
	}
	if resp.VideoID != "winner-id" {
		t.Fatalf("videoId = %q, want winner's row", resp.VideoID)
	}
}

func TestRequestDownloadRejectsMismatchedURL(t *testing.T) {
	env := newTestEnv()
	w := doJSON(t, env.ctrl.Request, 1, http.MethodPost, "/download", gin.H{
		"url":      "https://www.instagram.com/reel/XyZ_123/",
		"platform": "youtube",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if env.fetcher.callCount() != 0 {
		t.Fatal("invalid request must not reach the extractor")
	}
}

func TestRequestDownloadUnauthenticated(t *testing.T) {
	env := newTestEnv()
	w := doJSON(t, env.ctrl.Request, 0, http.MethodPost, "/download", gin.H{
		"url":      "https://www.youtube.com/watch?v=abc123XYZ05",
		"platform": "youtube",
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestStatusReportsCooldown(t *testing.T) {
	env := newTestEnv()
	last := time.Now().Add(-time.Minute)
	env.users.users[1].LastDownloadAt = &last

	w := doJSON(t, env.ctrl.Status, 1, http.MethodGet, "/download/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp statusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Authenticated {
		t.Fatal("authenticated = false")
	}
	if resp.CooldownUntil == "" {
		t.Fatal("expected an active cooldown")
	}
}

func TestStatusNoCooldown(t *testing.T) {
	env := newTestEnv()
	w := doJSON(t, env.ctrl.Status, 1, http.MethodGet, "/download/status", nil)
	var resp statusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.CooldownUntil != "" {
		t.Fatalf("cooldownUntil = %q, want empty", resp.CooldownUntil)
	}
}

func TestResetCooldownWithValidToken(t *testing.T) {
	env := newTestEnv()
	last := time.Now()
	env.clock.Set(context.Background(), 1, &last)
	env.tokens.grant(1, "golden-ticket")

	w := doJSON(t, env.ctrl.ResetCooldown, 1, http.MethodPost, "/download/reset-cooldown", gin.H{
		"adToken": "golden-ticket",
	})

	resp := decodeDownload(t, w)
	if !resp.Success {
		t.Fatalf("reset failed: %s", w.Body.String())
	}
	if env.clock.value(1) != nil {
		t.Fatal("clock should be cleared")
	}
	// Token is one-time: a replay must be rejected.
	again := doJSON(t, env.ctrl.ResetCooldown, 1, http.MethodPost, "/download/reset-cooldown", gin.H{
		"adToken": "golden-ticket",
	})
	if again.Code != http.StatusBadRequest {
		t.Fatalf("replayed token status = %d, want 400", again.Code)
	}
}

func TestResetCooldownWithoutActiveCooldown(t *testing.T) {
	env := newTestEnv()
	env.tokens.grant(1, "golden-ticket")

	w := doJSON(t, env.ctrl.ResetCooldown, 1, http.MethodPost, "/download/reset-cooldown", gin.H{
		"adToken": "golden-ticket",
	})

	resp := decodeDownload(t, w)
	if resp.Success {
		t.Fatal("reset with no active cooldown should not report success")
	}
	if resp.Error == "" {
		t.Fatal("expected an explanatory error")
	}
}

func TestResetCooldownRejectsUnknownToken(t *testing.T) {
	env := newTestEnv()
	w := doJSON(t, env.ctrl.ResetCooldown, 1, http.MethodPost, "/download/reset-cooldown", gin.H{
		"adToken": "forged",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestAdSessionIssuesRedeemableToken(t *testing.T) {
	env := newTestEnv()
	w := doJSON(t, env.ctrl.AdSession, 1, http.MethodPost, "/ads/session", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp adSessionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.AdToken == "" {
		t.Fatal("missing adToken")
	}
	if !env.tokens.Redeem(1, resp.AdToken) {
		t.Fatal("issued token was not redeemable")
	}
}
