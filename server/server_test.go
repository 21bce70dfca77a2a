package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/estatebot/server/telegram"
	"github.com/hrygo/estatebot/store/cache"
)

type fakeWebhook struct {
	mu     sync.Mutex
	url    string
	secret string
	err    error
}

func (f *fakeWebhook) SetWebhook(_ context.Context, url, secret string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.url, f.secret = url, secret
	return f.err
}

func (f *fakeWebhook) registered() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.url
}

type fakeHandler struct {
	mu      sync.Mutex
	updates []telegram.Update
	ctxErr  error
}

func (f *fakeHandler) HandleUpdate(ctx context.Context, u telegram.Update) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, u)
	f.ctxErr = ctx.Err()
	return nil
}

type fakeStatus struct {
	healthy bool
	info    *cache.Info
	err     error
}

func (f fakeStatus) Health(context.Context) bool { return f.healthy }

func (f fakeStatus) CacheInfo(context.Context) (*cache.Info, error) { return f.info, f.err }

const updateJSON = `{"update_id":3,"message":{"message_id":1,"from":{"id":9,"first_name":"A"},"chat":{"id":9,"type":"private"},"text":"hi"}}`

func newTestServer(status fakeStatus) (*Server, *fakeHandler) {
	h := &fakeHandler{}
	s := New(Config{WebhookPath: "/webhook", Secret: "s3cret"}, &fakeWebhook{}, h, status, nil)
	return s, h
}

func postUpdate(s *Server, secret, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set(SecretHeader, secret)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestWebhookDispatchesUpdate(t *testing.T) {
	s, h := newTestServer(fakeStatus{healthy: true})

	rec := postUpdate(s, "s3cret", updateJSON)
	assert.Equal(t, http.StatusOK, rec.Code)

	s.Wait()
	require.Len(t, h.updates, 1)
	assert.Equal(t, int64(3), h.updates[0].UpdateID)
	assert.Equal(t, "hi", h.updates[0].Message.Text)
	// Handling outlives the request.
	assert.NoError(t, h.ctxErr)
}

func TestWebhookRejectsWrongSecret(t *testing.T) {
	s, h := newTestServer(fakeStatus{healthy: true})

	assert.Equal(t, http.StatusNotFound, postUpdate(s, "wrong", updateJSON).Code)
	assert.Equal(t, http.StatusNotFound, postUpdate(s, "", updateJSON).Code)
	s.Wait()
	assert.Empty(t, h.updates)
}

func TestWebhookAcknowledgesGarbage(t *testing.T) {
	s, h := newTestServer(fakeStatus{healthy: true})

	assert.Equal(t, http.StatusOK, postUpdate(s, "s3cret", "{not json").Code)
	s.Wait()
	assert.Empty(t, h.updates)
}

func TestHealth(t *testing.T) {
	for _, tt := range []struct {
		healthy bool
		want    string
	}{
		{true, `{"status":"ok"}`},
		{false, `{"status":"degraded"}`},
	} {
		s, _ := newTestServer(fakeStatus{healthy: tt.healthy})
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, tt.want, rec.Body.String())
	}
}

func TestStats(t *testing.T) {
	t.Run("Enabled", func(t *testing.T) {
		s, _ := newTestServer(fakeStatus{info: &cache.Info{
			Enabled: true,
			Memory:  cache.MemoryInfo{Size: 1, MaxSize: 100},
			Stats:   cache.StatsSnapshot{Hits: 2, HitRate: 100, TotalRequests: 2},
		}})
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"enabled":true`)
		assert.Contains(t, rec.Body.String(), `"memory_cache":{"size":1,"max_size":100`)
		assert.Contains(t, rec.Body.String(), `"hit_rate":100`)
	})

	t.Run("Disabled", func(t *testing.T) {
		s, _ := newTestServer(fakeStatus{})
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"enabled":false`)
	})

	t.Run("Error", func(t *testing.T) {
		s, _ := newTestServer(fakeStatus{err: errors.New("disk gone")})
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestStartRegistersWebhookAndStops(t *testing.T) {
	wh := &fakeWebhook{}
	s := New(Config{
		Addr:       "127.0.0.1:0",
		WebhookURL: "https://bot.example.com/webhook",
		Secret:     "s3cret",
	}, wh, &fakeHandler{}, fakeStatus{healthy: true}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	assert.Eventually(t, func() bool { return wh.registered() != "" }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	assert.Equal(t, "https://bot.example.com/webhook", wh.url)
	assert.Equal(t, "s3cret", wh.secret)
}

func TestStartFailsWhenWebhookRejected(t *testing.T) {
	s := New(Config{Addr: "127.0.0.1:0"}, &fakeWebhook{err: errors.New("bad url")}, &fakeHandler{}, fakeStatus{}, nil)
	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad url")
}
