package routes

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/shelfwise-backend/internal/notifications"
	subscriptionsvc "github.com/angelmondragon/shelfwise-backend/internal/subscriptions"
	mobilemoneywebhook "github.com/angelmondragon/shelfwise-backend/internal/webhooks/mobilemoney"
	pkgAuth "github.com/angelmondragon/shelfwise-backend/pkg/auth"
	"github.com/angelmondragon/shelfwise-backend/pkg/config"
	"github.com/angelmondragon/shelfwise-backend/pkg/db/models"
	"github.com/angelmondragon/shelfwise-backend/pkg/enums"
	"github.com/angelmondragon/shelfwise-backend/pkg/logger"
	"github.com/angelmondragon/shelfwise-backend/pkg/metrics"
	"github.com/angelmondragon/shelfwise-backend/pkg/mobilemoney"
)

const testSigningSecret = "sk_test_router"

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type memoryRedis struct {
	stubPinger
	data map[string]string
}

func (m *memoryRedis) Get(_ context.Context, key string) (string, error) {
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return "", goredis.Nil
}

func (m *memoryRedis) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	str, _ := value.(string)
	m.data[key] = str
	return true, nil
}

func (m *memoryRedis) Set(_ context.Context, key string, value any, _ time.Duration) error {
	str, _ := value.(string)
	m.data[key] = str
	return nil
}

func (m *memoryRedis) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memoryRedis) IdempotencyKey(scope, id string) string {
	return "test:idempotency:" + scope + ":" + id
}

type stubSubscriptionsService struct {
	listCalls int
}

func (s *stubSubscriptionsService) Create(context.Context, uuid.UUID, subscriptionsvc.CreateSubscriptionInput) (*models.Subscription, bool, error) {
	return &models.Subscription{}, true, nil
}

func (s *stubSubscriptionsService) InitializePayment(context.Context, uuid.UUID, subscriptionsvc.InitializePaymentInput) (*subscriptionsvc.InitializePaymentResult, error) {
	return &subscriptionsvc.InitializePaymentResult{}, nil
}

func (s *stubSubscriptionsService) Reconcile(context.Context, subscriptionsvc.ReconcileInput) (*subscriptionsvc.ReconcileResult, error) {
	return &subscriptionsvc.ReconcileResult{}, nil
}

func (s *stubSubscriptionsService) Renew(context.Context, uuid.UUID, uuid.UUID) (*models.Subscription, error) {
	return &models.Subscription{}, nil
}

func (s *stubSubscriptionsService) Get(context.Context, uuid.UUID, uuid.UUID) (*models.Subscription, error) {
	return &models.Subscription{}, nil
}

func (s *stubSubscriptionsService) ListForUser(context.Context, uuid.UUID) ([]models.Subscription, error) {
	s.listCalls++
	return []models.Subscription{}, nil
}

func (s *stubSubscriptionsService) GetForBook(context.Context, uuid.UUID, uuid.UUID) (*models.Subscription, error) {
	return &models.Subscription{}, nil
}

func (s *stubSubscriptionsService) ExpireEnded(context.Context, time.Time, int) (int, error) {
	return 0, nil
}

type stubNotificationsService struct{}

func (stubNotificationsService) Notify(context.Context, uuid.UUID, uuid.UUID, enums.NotificationType, string, string) error {
	return nil
}

func (stubNotificationsService) List(context.Context, notifications.ListParams) (*notifications.ListResult, error) {
	return &notifications.ListResult{}, nil
}

func (stubNotificationsService) MarkRead(context.Context, uuid.UUID, uuid.UUID) error {
	return nil
}

func (stubNotificationsService) MarkAllRead(context.Context, uuid.UUID) (int64, error) {
	return 0, nil
}

type stubWebhookService struct {
	calls int
}

func (s *stubWebhookService) HandleEvent(context.Context, *mobilemoneywebhook.Event) (mobilemoneywebhook.Outcome, error) {
	s.calls++
	return mobilemoneywebhook.OutcomeProcessed, nil
}

type secretVerifier struct{}

func (secretVerifier) VerifySignature(raw []byte, header string) bool {
	return mobilemoney.VerifySignature(raw, header, testSigningSecret)
}

type testRouter struct {
	handler  http.Handler
	cfg      *config.Config
	subs     *stubSubscriptionsService
	webhooks *stubWebhookService
}

func newTestRouter(t *testing.T) testRouter {
	t.Helper()
	cfg := &config.Config{
		App: config.AppConfig{Env: "dev"},
		JWT: config.JWTConfig{Secret: "router-secret", Issuer: "shelfwise", ExpirationMinutes: 30},
	}
	reg := prometheus.NewRegistry()
	metrics.NewCronJobMetrics(reg)

	subs := &stubSubscriptionsService{}
	hooks := &stubWebhookService{}
	handler := NewRouter(
		cfg,
		logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		stubPinger{},
		&memoryRedis{data: map[string]string{}},
		reg,
		subs,
		stubNotificationsService{},
		hooks,
		secretVerifier{},
	)
	return testRouter{handler: handler, cfg: cfg, subs: subs, webhooks: hooks}
}

func (tr testRouter) token(t *testing.T) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(tr.cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{
		UserID: uuid.New(),
		Email:  "reader@example.com",
		Role:   enums.MemberRoleReader,
		JTI:    uuid.NewString(),
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func TestHealthRoutes(t *testing.T) {
	tr := newTestRouter(t)
	for _, path := range []string{"/health/live", "/health/ready"} {
		resp := httptest.NewRecorder()
		tr.handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, path, nil))
		if resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 got %d", path, resp.Code)
		}
	}
}

func TestMetricsRoute(t *testing.T) {
	tr := newTestRouter(t)
	resp := httptest.NewRecorder()
	tr.handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestSubscriptionRoutesRequireAuth(t *testing.T) {
	tr := newTestRouter(t)
	resp := httptest.NewRecorder()
	tr.handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/subscriptions/", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
	if tr.subs.listCalls != 0 {
		t.Fatal("service reached without a token")
	}
}

func TestSubscriptionRoutesWithToken(t *testing.T) {
	tr := newTestRouter(t)
	token := tr.token(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/subscriptions/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	tr.handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if tr.subs.listCalls != 1 {
		t.Fatalf("expected one list call, got %d", tr.subs.listCalls)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/notifications/", nil)
	req.Header.Set("x-auth-token", token)
	resp = httptest.NewRecorder()
	tr.handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestWebhookRoutesSkipUserAuth(t *testing.T) {
	tr := newTestRouter(t)
	body := []byte(`{"event":"charge.success","data":{"reference":"ref-1","status":"success"}}`)

	for _, path := range []string{"/api/v1/subscriptions/webhook", "/api/v1/webhooks/mobile-money"} {
		req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
		req.Header.Set(mobilemoney.SignatureHeader, mobilemoney.ComputeSignature(body, testSigningSecret))
		resp := httptest.NewRecorder()
		tr.handler.ServeHTTP(resp, req)
		if resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 got %d", path, resp.Code)
		}
		if !strings.Contains(resp.Body.String(), "processed") {
			t.Fatalf("%s: unexpected body %s", path, resp.Body.String())
		}
	}
	if tr.webhooks.calls != 2 {
		t.Fatalf("expected 2 webhook deliveries, got %d", tr.webhooks.calls)
	}
}
