package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-social-backend/internal/checkpoint"
	"github.com/tbourn/go-social-backend/internal/config"
	"github.com/tbourn/go-social-backend/internal/domain"
	"github.com/tbourn/go-social-backend/internal/http/middleware"
	"github.com/tbourn/go-social-backend/internal/repo"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:router_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func testConfig() config.Config {
	return config.Config{
		APIBasePath: "/api/v1",
		RateRPS:     1000,
		RateBurst:   1000,
		OTEL:        config.OTELConfig{ServiceName: "test-svc"},
		Poll: config.PollConfig{
			Interval:              10 * time.Millisecond,
			MessagesDeadline:      60 * time.Millisecond,
			NotificationsDeadline: 60 * time.Millisecond,
		},
		IdempotencyTTL: time.Hour,
	}
}

func newTestRouter(t *testing.T, cfg config.Config) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := newTestDB(t)
	r := gin.New()
	RegisterRoutes(r, db, checkpoint.NewMemoryStore(0, 0), cfg)
	return r, db
}

func call(t *testing.T, r http.Handler, method, path, user string, body any, hdr ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(middleware.HeaderUserID, user)
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeInto[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("json: %v (body=%s)", err, w.Body.String())
	}
	return v
}

func TestRegisterRoutes_HealthMetricsFallbacks(t *testing.T) {
	r, _ := newTestRouter(t, testConfig())

	w := call(t, r, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK || w.Header().Get("Access-Control-Allow-Origin") != "*" || w.Header().Get("X-Request-ID") == "" {
		t.Fatalf("health: %d %#v", w.Code, w.Header())
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("security headers missing")
	}

	w = call(t, r, http.MethodGet, "/metrics", "", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "http_requests_total") {
		t.Fatalf("metrics: %d", w.Code)
	}

	if w := call(t, r, http.MethodGet, "/nope", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("no route: %d", w.Code)
	}
	if w := call(t, r, http.MethodDelete, "/health", "", nil); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("no method: %d", w.Code)
	}
	if w := call(t, r, http.MethodGet, "/swagger/index.html", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("swagger must be off by default: %d", w.Code)
	}
}

func TestRegisterRoutes_CORSAllowList(t *testing.T) {
	cfg := testConfig()
	cfg.CORS.AllowedOrigins = []string{"https://app.example"}
	r, _ := newTestRouter(t, cfg)

	w := call(t, r, http.MethodGet, "/health", "", nil, "Origin", "https://app.example")
	if w.Header().Get("Access-Control-Allow-Origin") != "https://app.example" {
		t.Fatalf("allowed origin not echoed: %#v", w.Header())
	}
	w = call(t, r, http.MethodGet, "/health", "", nil, "Origin", "https://evil.example")
	if w.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("foreign origin must not be allowed")
	}
}

func TestRegisterRoutes_MessagingAndLongPollFlow(t *testing.T) {
	r, _ := newTestRouter(t, testConfig())
	base := "/api/v1"

	alice := decodeInto[domain.User](t, call(t, r, http.MethodPost, base+"/users", "", map[string]string{"name": "Alice"}))
	bob := decodeInto[domain.User](t, call(t, r, http.MethodPost, base+"/users", "", map[string]string{"name": "Bob"}))

	w := call(t, r, http.MethodPost, base+"/conversations", alice.ID, map[string]string{"recipient_id": bob.ID})
	if w.Code != http.StatusCreated {
		t.Fatalf("open conversation: %d %s", w.Code, w.Body.String())
	}
	conv := decodeInto[domain.Conversation](t, w)

	send := base + "/conversations/" + conv.ID + "/messages"
	w = call(t, r, http.MethodPost, send, alice.ID, map[string]string{"text": "hello bob"}, middleware.HeaderIdempotencyKey, "send-1")
	if w.Code != http.StatusCreated {
		t.Fatalf("send: %d %s", w.Code, w.Body.String())
	}
	sent := decodeInto[struct{ Message domain.Message }](t, w).Message

	w = call(t, r, http.MethodPost, send, alice.ID, map[string]string{"text": "hello bob"}, middleware.HeaderIdempotencyKey, "send-1")
	if w.Code != http.StatusOK || w.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatalf("replay: %d %s", w.Code, w.Body.String())
	}

	// Bob's notification stream carries the message notification.
	poll := base + "/notifications/long-poll"
	w = call(t, r, http.MethodGet, poll, bob.ID, nil)
	if w.Code != http.StatusOK || w.Header().Get("Cache-Control") != "no-store" {
		t.Fatalf("notifications poll: %d %#v", w.Code, w.Header())
	}
	np := decodeInto[struct {
		Data     []string
		Messages []string
		Total    int
	}](t, w)
	if len(np.Data) != 0 || len(np.Messages) != 1 || np.Total != 1 {
		t.Fatalf("notifications poll = %+v", np)
	}
	if got := strings.TrimSpace(call(t, r, http.MethodGet, poll, bob.ID, nil).Body.String()); got != `{"data":[],"messages":[],"total":0}` {
		t.Fatalf("second notifications poll must time out empty, got %s", got)
	}

	// Bob's conversation stream delivers the message exactly once.
	mpoll := base + "/conversations/" + conv.ID + "/messages/long-poll"
	w = call(t, r, http.MethodGet, mpoll, bob.ID, nil)
	want := fmt.Sprintf(`{"data":["%s"],"total":1,"page":1,"total_pages":1}`, sent.ID)
	if got := strings.TrimSpace(w.Body.String()); w.Code != http.StatusOK || got != want {
		t.Fatalf("messages poll: %d %s, want %s", w.Code, got, want)
	}
	if got := strings.TrimSpace(call(t, r, http.MethodGet, mpoll, bob.ID, nil).Body.String()); got != `{"data":[],"total":0}` {
		t.Fatalf("second messages poll must time out empty, got %s", got)
	}

	// Outsiders and strangers are rejected before any waiting.
	carol := decodeInto[domain.User](t, call(t, r, http.MethodPost, base+"/users", "", map[string]string{"name": "Carol"}))
	if w := call(t, r, http.MethodGet, mpoll, carol.ID, nil); w.Code != http.StatusForbidden {
		t.Fatalf("outsider poll: %d", w.Code)
	}
	if w := call(t, r, http.MethodGet, poll, "ghost", nil); w.Code != http.StatusNotFound {
		t.Fatalf("unknown user poll: %d", w.Code)
	}

	// Listing shows the single (non-duplicated) message.
	w = call(t, r, http.MethodGet, send, bob.ID, nil)
	list := decodeInto[struct {
		Data  []domain.Message
		Total int64
	}](t, w)
	if list.Total != 1 || len(list.Data) != 1 || list.Data[0].ID != sent.ID {
		t.Fatalf("list = %+v", list)
	}
}

func TestRegisterRoutes_FeedbackReachesNotificationsLongPoll(t *testing.T) {
	r, _ := newTestRouter(t, testConfig())
	base := "/api/v1"

	alice := decodeInto[domain.User](t, call(t, r, http.MethodPost, base+"/users", "", map[string]string{"name": "Alice"}))
	bob := decodeInto[domain.User](t, call(t, r, http.MethodPost, base+"/users", "", map[string]string{"name": "Bob"}))

	w := call(t, r, http.MethodPost, base+"/users/"+bob.ID+"/feedback", alice.ID, map[string]string{"guide": "communication", "text": "quick replies"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create feedback: %d %s", w.Code, w.Body.String())
	}
	fb := decodeInto[domain.Feedback](t, w)
	if fb.OwnerID != alice.ID || fb.SubjectID != bob.ID {
		t.Fatalf("feedback = %+v", fb)
	}
	if w := call(t, r, http.MethodPost, base+"/users/"+alice.ID+"/feedback", alice.ID, map[string]string{"guide": "g", "text": "t"}); w.Code != http.StatusBadRequest {
		t.Fatalf("self feedback: %d", w.Code)
	}

	// Bob's push stream delivers the feedback notification once.
	poll := base + "/notifications/long-poll"
	np := decodeInto[struct {
		Data     []string
		Messages []string
		Total    int
	}](t, call(t, r, http.MethodGet, poll, bob.ID, nil))
	if len(np.Data) != 1 || len(np.Messages) != 0 || np.Total != 1 {
		t.Fatalf("notifications poll = %+v", np)
	}
	if got := strings.TrimSpace(call(t, r, http.MethodGet, poll, bob.ID, nil).Body.String()); got != `{"data":[],"messages":[],"total":0}` {
		t.Fatalf("second notifications poll must time out empty, got %s", got)
	}

	list := decodeInto[struct {
		Data  []domain.Feedback
		Total int64
	}](t, call(t, r, http.MethodGet, base+"/users/"+bob.ID+"/feedback", "", nil))
	if list.Total != 1 || len(list.Data) != 1 || list.Data[0].ID != fb.ID {
		t.Fatalf("feedback list = %+v", list)
	}

	if w := call(t, r, http.MethodPatch, base+"/feedback/"+fb.ID, bob.ID, map[string]string{"guide": "g", "text": "t"}); w.Code != http.StatusForbidden {
		t.Fatalf("subject edit: %d", w.Code)
	}
	if w := call(t, r, http.MethodDelete, base+"/feedback/"+fb.ID, bob.ID, nil); w.Code != http.StatusNoContent {
		t.Fatalf("subject delete: %d %s", w.Code, w.Body.String())
	}
}

func TestIdempotencyStore(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	s := idempotencyStore{db: db, ttl: time.Hour}

	a, _ := repo.CreateUser(ctx, db, "a")
	b, _ := repo.CreateUser(ctx, db, "b")
	conv, err := repo.CreateConversation(ctx, db, false, a.ID, b.ID)
	if err != nil {
		t.Fatalf("conversation: %v", err)
	}
	msg, err := repo.CreateMessage(ctx, db, conv.ID, a.ID, "hi")
	if err != nil {
		t.Fatalf("message: %v", err)
	}

	if hit, err := s.Lookup(ctx, a.ID, conv.ID, "k", time.Now().UTC()); hit || err != nil {
		t.Fatalf("miss: hit=%v err=%v", hit, err)
	}
	if _, ok := s.Replay(ctx, a.ID, conv.ID, "k"); ok {
		t.Fatalf("replay before remember")
	}
	if err := s.Remember(ctx, a.ID, conv.ID, "k", msg.ID); err != nil {
		t.Fatalf("remember: %v", err)
	}
	if err := s.Remember(ctx, a.ID, conv.ID, "k", "other"); err != nil {
		t.Fatalf("duplicate remember must be absorbed: %v", err)
	}
	if hit, _ := s.Lookup(ctx, a.ID, conv.ID, "k", time.Now().UTC()); !hit {
		t.Fatalf("expected hit")
	}
	if got, ok := s.Replay(ctx, a.ID, conv.ID, "k"); !ok || got.ID != msg.ID {
		t.Fatalf("replay = %+v ok=%v", got, ok)
	}
	if hit, _ := s.Lookup(ctx, a.ID, conv.ID, "k", time.Now().Add(2*time.Hour)); hit {
		t.Fatalf("expired record must miss")
	}
	if hit, _ := s.Lookup(ctx, b.ID, conv.ID, "k", time.Now().UTC()); hit {
		t.Fatalf("keys are scoped per user")
	}
}

func TestConversationRepoShim_Proxies(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	shim := conversationRepoShim{}

	a, _ := repo.CreateUser(ctx, db, "a")
	b, _ := repo.CreateUser(ctx, db, "b")
	c, err := shim.CreateConversation(ctx, db, false, a.ID, b.ID)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if found, err := shim.FindDirectConversation(ctx, db, b.ID, a.ID); err != nil || found.ID != c.ID {
		t.Fatalf("find: %v %v", found, err)
	}
	if got, err := shim.GetConversation(ctx, db, c.ID); err != nil || got.ID != c.ID {
		t.Fatalf("get: %v %v", got, err)
	}
	if ok, err := shim.IsParticipant(ctx, db, c.ID, a.ID); !ok || err != nil {
		t.Fatalf("participant: %v %v", ok, err)
	}
	if n, err := shim.CountConversations(ctx, db, a.ID); n != 1 || err != nil {
		t.Fatalf("count: %d %v", n, err)
	}
	if page, err := shim.ListConversationsPage(ctx, db, a.ID, 0, 10); len(page) != 1 || err != nil {
		t.Fatalf("page: %v %v", page, err)
	}
}

func Test_limitBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(limitBody(8))
	r.POST("/echo", func(c *gin.Context) {
		if _, err := io.ReadAll(c.Request.Body); err != nil {
			c.Status(http.StatusRequestEntityTooLarge)
			return
		}
		c.Status(http.StatusOK)
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader("0123456789")))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("oversized body: %d", w.Code)
	}
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader("small")))
	if w.Code != http.StatusOK {
		t.Fatalf("small body: %d", w.Code)
	}
}

func Test_groupWithPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	for prefix, path := range map[string]string{"": "/ping", "/": "/ping", "/api": "/api/ping"} {
		r := gin.New()
		groupWithPrefix(r, prefix).GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusOK {
			t.Fatalf("prefix %q: GET %s = %d", prefix, path, w.Code)
		}
	}
}
