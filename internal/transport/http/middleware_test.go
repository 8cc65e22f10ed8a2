package http_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	permsdomain "github.com/astro-web3/txcache-auth/internal/domain/perms"
	httptransport "github.com/astro-web3/txcache-auth/internal/transport/http"
	"github.com/gin-gonic/gin"
)

type mockPermsService struct {
	checkFunc func(ctx context.Context, token string) *permsdomain.Decision
}

func (m *mockPermsService) Check(ctx context.Context, token string) *permsdomain.Decision {
	if m.checkFunc != nil {
		return m.checkFunc(ctx, token)
	}
	return &permsdomain.Decision{Allow: true, Subject: "builder-1"}
}

func newGatedRouter(svc *mockPermsService, exposeReasons bool, handlerCalls *int32) *gin.Engine {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(httptransport.RequirePermission(svc, exposeReasons))
	router.GET("/protected", func(c *gin.Context) {
		atomic.AddInt32(handlerCalls, 1)
		c.Header("x-echo-subject", c.Request.Header.Get(httptransport.SubjectHeader))
		c.String(http.StatusOK, "handler-body")
	})
	return router
}

func decodeAPIError(t *testing.T, w *httptest.ResponseRecorder) (kind, message string) {
	t.Helper()

	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode error body %q: %v", w.Body.String(), err)
	}
	return body.Error, body.Message
}

func TestRequirePermission_MissingHeader(t *testing.T) {
	var handlerCalls int32
	router := newGatedRouter(&mockPermsService{}, false, &handlerCalls)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", w.Code)
	}
	if kind, _ := decodeAPIError(t, w); kind != "MISSING_AUTH_HEADER" {
		t.Errorf("expected MISSING_AUTH_HEADER, got %q", kind)
	}
	if atomic.LoadInt32(&handlerCalls) != 0 {
		t.Error("handler must not run for a request without credentials")
	}
}

func TestRequirePermission_AllowedPassesThrough(t *testing.T) {
	var handlerCalls int32
	svc := &mockPermsService{
		checkFunc: func(_ context.Context, token string) *permsdomain.Decision {
			if token != "Bearer valid-token" {
				t.Errorf("expected raw header to reach the service, got %q", token)
			}
			return &permsdomain.Decision{Allow: true, Subject: "builder-1"}
		},
	}
	router := newGatedRouter(svc, false, &handlerCalls)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if got := w.Body.String(); got != "handler-body" {
		t.Errorf("expected handler response to pass through unmodified, got %q", got)
	}
	if got := w.Header().Get("x-echo-subject"); got != "builder-1" {
		t.Errorf("expected subject header injected for the handler, got %q", got)
	}
	if atomic.LoadInt32(&handlerCalls) != 1 {
		t.Errorf("expected handler to run once, ran %d times", handlerCalls)
	}
}

func TestRequirePermission_DeniedGenericMessage(t *testing.T) {
	var handlerCalls int32
	svc := &mockPermsService{
		checkFunc: func(context.Context, string) *permsdomain.Decision {
			return &permsdomain.Decision{Allow: false, Reason: permsdomain.ReasonNotPermissioned}
		},
	}
	router := newGatedRouter(svc, false, &handlerCalls)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer some-token")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("expected status 403, got %d", w.Code)
	}
	kind, message := decodeAPIError(t, w)
	if kind != "PERMISSION_DENIED" {
		t.Errorf("expected PERMISSION_DENIED, got %q", kind)
	}
	if message != "Permission denied" {
		t.Errorf("expected generic message with reasons hidden, got %q", message)
	}
	if atomic.LoadInt32(&handlerCalls) != 0 {
		t.Error("handler must not run for a denied request")
	}
}

func TestRequirePermission_DeniedExposedReason(t *testing.T) {
	var handlerCalls int32
	svc := &mockPermsService{
		checkFunc: func(context.Context, string) *permsdomain.Decision {
			return &permsdomain.Decision{Allow: false, Reason: permsdomain.ReasonTokenExpired}
		},
	}
	router := newGatedRouter(svc, true, &handlerCalls)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer expired-token")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("expected status 403, got %d", w.Code)
	}
	if _, message := decodeAPIError(t, w); message != permsdomain.ReasonTokenExpired {
		t.Errorf("expected exposed reason %q, got %q", permsdomain.ReasonTokenExpired, message)
	}
}

func TestRequirePermission_UnavailableFailsClosed(t *testing.T) {
	var handlerCalls int32
	svc := &mockPermsService{
		checkFunc: func(context.Context, string) *permsdomain.Decision {
			return &permsdomain.Decision{
				Allow:       false,
				Reason:      permsdomain.ReasonServiceUnavailable,
				Unavailable: true,
			}
		},
	}
	router := newGatedRouter(svc, false, &handlerCalls)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer some-token")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}
	if kind, _ := decodeAPIError(t, w); kind != "PERMISSION_SERVICE_UNAVAILABLE" {
		t.Errorf("expected PERMISSION_SERVICE_UNAVAILABLE, got %q", kind)
	}
	if atomic.LoadInt32(&handlerCalls) != 0 {
		t.Error("an unavailable permission check must never reach the handler")
	}
}
