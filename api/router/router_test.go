package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/switchctl/switchctl/api/handler"
	"github.com/switchctl/switchctl/internal/config"
	"github.com/switchctl/switchctl/internal/control"
	"github.com/switchctl/switchctl/internal/model"
	"github.com/switchctl/switchctl/internal/service"
	"github.com/switchctl/switchctl/internal/session"
)

type stubSwitch struct {
	mu       sync.Mutex
	snap     *model.Snapshot
	pollErr  error
	requests []service.ControlRequest
}

func (s *stubSwitch) Name() string { return "sw1" }

func (s *stubSwitch) Poll(ctx context.Context) (*model.Snapshot, error) {
	return s.snap, s.pollErr
}

func (s *stubSwitch) Control(ctx context.Context, req service.ControlRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	return nil
}

func (s *stubSwitch) ControlMany(ctx context.Context, reqs []service.ControlRequest) error {
	if len(reqs) == 0 {
		return service.ErrNoRequests
	}
	for _, r := range reqs {
		_ = s.Control(ctx, r)
	}
	return nil
}

func (s *stubSwitch) Cached() *model.Snapshot { return s.snap }

func (s *stubSwitch) Status() control.Status { return control.Status{State: "idle"} }

func newTestRouter(sw *stubSwitch, auth config.AuthConfig) *gin.Engine {
	h := handler.NewSwitchHandler(sw, nil, nil)
	return SetupRouter(h, auth, gin.TestMode)
}

func do(r http.Handler, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestStatisticsKeepsLabelOrder(t *testing.T) {
	snap := model.NewSnapshot()
	snap.Statistics.Set("Subnet Mask", "255.255.255.0")
	snap.Statistics.Set("IP Address", "10.0.0.1")
	r := newTestRouter(&stubSwitch{snap: snap}, config.AuthConfig{})

	w := do(r, http.MethodGet, "/api/v1/statistics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Less(t, strings.Index(body, "Subnet Mask"), strings.Index(body, "IP Address"))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestStatisticsConnectFailure(t *testing.T) {
	r := newTestRouter(&stubSwitch{pollErr: session.ErrConnect}, config.AuthConfig{})
	w := do(r, http.MethodGet, "/api/v1/statistics", "", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestControlAcceptsObjectOrList(t *testing.T) {
	sw := &stubSwitch{}
	r := newTestRouter(sw, config.AuthConfig{})

	w := do(r, http.MethodPost, "/api/v1/control", `{"property":"Port 1/0/1","value":"0"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodPost, "/api/v1/control", `[{"property":"Reload"},{"property":"Port 1/0/2","value":"1"}]`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, sw.requests, 3)

	w = do(r, http.MethodPost, "/api/v1/control", `[]`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/api/v1/control", `{"value":"1"}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestControlBindsScalarValues(t *testing.T) {
	sw := &stubSwitch{}
	r := newTestRouter(sw, config.AuthConfig{})

	w := do(r, http.MethodPost, "/api/v1/control", `{"property":"Port 1/0/1","value":0}`, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = do(r, http.MethodPost, "/api/v1/control", `[{"property":"Port 1/0/2","value":1},{"property":"Reload","value":null}]`, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	require.Len(t, sw.requests, 3)
	assert.Equal(t, service.ControlRequest{Property: "Port 1/0/1", Value: "0"}, sw.requests[0])
	assert.Equal(t, service.ControlRequest{Property: "Port 1/0/2", Value: "1"}, sw.requests[1])
	assert.Equal(t, service.ControlRequest{Property: "Reload"}, sw.requests[2])

	for _, body := range []string{
		`[{"property":"Reload"},{"value":"1"}]`,
		`{"property":"  ","value":"1"}`,
		`{"property":"Port 1/0/1","value":{"up":true}}`,
		`not json`,
	} {
		w = do(r, http.MethodPost, "/api/v1/control", body, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
	assert.Len(t, sw.requests, 3, "rejected bodies never reach the switch")
}

func TestControlRequiresTokenWhenSecretSet(t *testing.T) {
	auth := config.AuthConfig{JWTSecret: "s3cret", Issuer: "switchctl"}
	sw := &stubSwitch{}
	r := newTestRouter(sw, auth)
	body := `{"property":"Reload"}`

	w := do(r, http.MethodPost, "/api/v1/control", body, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	sign := func(secret, issuer string) string {
		tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
			Subject:   "operator",
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		})
		s, err := tok.SignedString([]byte(secret))
		require.NoError(t, err)
		return s
	}

	w = do(r, http.MethodPost, "/api/v1/control", body, map[string]string{"Authorization": "Bearer " + sign("wrong", "switchctl")})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = do(r, http.MethodPost, "/api/v1/control", body, map[string]string{"Authorization": "Bearer " + sign("s3cret", "other")})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, sw.requests)

	w = do(r, http.MethodPost, "/api/v1/control", body, map[string]string{"Authorization": "Bearer " + sign("s3cret", "switchctl")})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, sw.requests, 1)

	// 查询接口不需要令牌
	w = do(r, http.MethodGet, "/api/v1/state", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuditsDisabledAndNoRoute(t *testing.T) {
	r := newTestRouter(&stubSwitch{}, config.AuthConfig{})

	w := do(r, http.MethodGet, "/api/v1/audits", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = do(r, http.MethodGet, "/api/v1/missing", "", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "NOT_FOUND", resp["code"])
}

func TestHealthReportsFailedChecks(t *testing.T) {
	h := handler.NewSwitchHandler(&stubSwitch{}, nil, map[string]handler.HealthCheck{
		"database": func() error { return assert.AnError },
	})
	r := SetupRouter(h, config.AuthConfig{}, gin.TestMode)

	w := do(r, http.MethodGet, "/api/v1/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "database")
}
