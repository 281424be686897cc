package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/harun/recondora/internal/availability"
	"github.com/harun/recondora/internal/config"
	"github.com/harun/recondora/internal/metrics"
	"github.com/harun/recondora/internal/ratelimit"
	"github.com/harun/recondora/pkg/dispatch"
	"github.com/harun/recondora/pkg/executor"
	"github.com/harun/recondora/pkg/registry"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubExecutor struct{}

func (stubExecutor) Execute(_ context.Context, target string, spec registry.ToolSpec) executor.Result {
	if spec.Key == "nmap" {
		return executor.Failure(spec, executor.KindExecution, executor.TagExecution, "'nmap' is not installed on the server. Install it to use nmap.")
	}
	return executor.Result{Tool: spec.Key, Kind: spec.Kind, Text: spec.Key + " for " + target}
}

type noBinaries struct{}

func (noBinaries) LookPath(string) (string, error) { return "", errors.New("not found") }

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()

	reg, err := registry.New(
		[]registry.ToolSpec{
			{Key: "whois", Kind: registry.KindRemote, Description: "WHOIS lookup", Remote: &registry.RemoteSpec{URLTemplate: "https://api.example.com/whois/?q="}},
			{Key: "dnslookup", Kind: registry.KindRemote, Remote: &registry.RemoteSpec{URLTemplate: "https://api.example.com/dnslookup/?q="}},
			{Key: "nmap", Kind: registry.KindLocal, Local: &registry.LocalSpec{Command: "nmap", Args: []string{"-F", registry.TargetPlaceholder}}},
		},
		[]registry.Group{{Name: "basic", Keys: []string{"whois", "dnslookup"}}},
		"basic",
	)
	require.NoError(t, err)
	return reg
}

func newTestServer(t *testing.T, secret string, opts ...Option) (*Server, *metrics.Metrics) {
	t.Helper()

	reg := testRegistry(t)
	d := dispatch.New(reg,
		dispatch.WithExecutor(registry.KindRemote, stubExecutor{}),
		dispatch.WithExecutor(registry.KindLocal, stubExecutor{}),
	)
	checker := availability.New(reg, noBinaries{})
	checker.Check()

	m := metrics.NewMetrics()
	opts = append([]Option{
		WithMetrics(m),
		WithAvailability(checker),
		WithVersion("1.0.0"),
	}, opts...)
	s := New(config.ServerConfig{Enabled: true, Host: "127.0.0.1", Port: 0, SharedSecret: secret}, d, opts...)
	return s, m
}

func do(t *testing.T, h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRootAndHealthz(t *testing.T) {
	s, _ := newTestServer(t, "")
	h := s.Handler()

	rec := do(t, h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Recondora 1.0.0 is running.\n", rec.Body.String())

	rec = do(t, h, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","version":"1.0.0"}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	s, m := newTestServer(t, "")
	h := s.Handler()

	do(t, h, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	rec := do(t, h, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "recondora_http_requests_total")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("/healthz", "200")))
}

func TestTools(t *testing.T) {
	s, _ := newTestServer(t, "")

	rec := do(t, s.Handler(), httptest.NewRequest(http.MethodGet, "/api/tools", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp toolsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.Equal(t, "basic", resp.DefaultGroup)
	require.Len(t, resp.Tools, 3)
	assert.Equal(t, "dnslookup", resp.Tools[0].Key)
	assert.Equal(t, "nmap", resp.Tools[1].Key)
	assert.False(t, resp.Tools[1].Available)
	assert.Equal(t, "whois", resp.Tools[2].Key)
	assert.True(t, resp.Tools[2].Available)
	assert.Equal(t, []groupInfo{{Name: "basic", Tools: []string{"whois", "dnslookup"}}}, resp.Groups)
}

func TestRecon(t *testing.T) {
	s, m := newTestServer(t, "")

	rec := do(t, s.Handler(), httptest.NewRequest(http.MethodGet, "/api/recon?target=example.com&tools=whois,nmap", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		ID      string            `json:"id"`
		Target  string            `json:"target"`
		Tools   []string          `json:"tools"`
		Results []executor.Result `json:"results"`
		Failed  int               `json:"failed"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, "example.com", resp.Target)
	assert.Equal(t, []string{"nmap", "whois"}, resp.Tools)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "nmap", resp.Results[0].Tool)
	assert.Equal(t, executor.KindExecution, resp.Results[0].Error)
	assert.Equal(t, "whois for example.com", resp.Results[1].Text)
	assert.Equal(t, 1, resp.Failed)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("/api/recon", "200")))
}

func TestReconDefaultGroupPlainText(t *testing.T) {
	s, _ := newTestServer(t, "")

	rec := do(t, s.Handler(), httptest.NewRequest(http.MethodGet, "/api/recon?target=example.com&format=text", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, "Recon Report for example.com\n\n[DNSLOOKUP]\n"))
	assert.Contains(t, body, "[WHOIS]\nwhois for example.com")
}

func TestReconErrors(t *testing.T) {
	s, _ := newTestServer(t, "")
	h := s.Handler()

	tests := []struct {
		name string
		url  string
		code string
	}{
		{"missing target", "/api/recon?tools=whois", "invalid_target"},
		{"blank target", "/api/recon?target=%20%20", "invalid_target"},
		{"no valid tools", "/api/recon?target=example.com&tools=sqlmap", "no_valid_tools"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, httptest.NewRequest(http.MethodGet, tt.url, nil))
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var body apiErrorBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body.Error.Code)
		})
	}
}

func TestSharedSecret(t *testing.T) {
	s, _ := newTestServer(t, "s3cret")
	h := s.Handler()

	rec := do(t, h, httptest.NewRequest(http.MethodGet, "/api/tools", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/tools", nil)
	req.Header.Set(SecretHeader, "wrong")
	assert.Equal(t, http.StatusUnauthorized, do(t, h, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/api/tools", nil)
	req.Header.Set(SecretHeader, "s3cret")
	assert.Equal(t, http.StatusOK, do(t, h, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/api/tools", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	assert.Equal(t, http.StatusOK, do(t, h, req).Code)

	rec = do(t, h, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code, "health stays public")
}

func TestStartStop(t *testing.T) {
	s, _ := newTestServer(t, "")

	require.NoError(t, s.Start())
	assert.Error(t, s.Start())

	addr := s.Addr()
	require.NotEmpty(t, addr)

	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"ok"`)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	assert.Empty(t, s.Addr())
	assert.Error(t, s.Stop(ctx))
}

func TestReconRateLimited(t *testing.T) {
	limiter := ratelimit.New[string](2, 0)
	s, m := newTestServer(t, "", WithRateLimiter(limiter))
	h := s.Handler()

	recon := func(remoteAddr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/recon?target=example.com&tools=whois", nil)
		req.RemoteAddr = remoteAddr
		return do(t, h, req)
	}

	assert.Equal(t, http.StatusOK, recon("198.51.100.7:40000").Code)
	assert.Equal(t, http.StatusOK, recon("198.51.100.7:40001").Code, "the port does not make a new client")

	rec := recon("198.51.100.7:40002")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	var body apiErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "rate_limited", body.Error.Code)
	assert.Equal(t, ratelimit.ReasonRate, body.Error.Message)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateLimitedTotal))

	assert.Equal(t, http.StatusOK, recon("198.51.100.8:40000").Code, "clients are limited separately")

	count, active := limiter.GetStats("198.51.100.7")
	assert.Equal(t, 2, count)
	assert.Zero(t, active, "finished requests release their slot")

	rec = do(t, h, httptest.NewRequest(http.MethodGet, "/api/tools", nil))
	assert.Equal(t, http.StatusOK, rec.Code, "only recon is limited")
}

func TestReconRateLimitUsesForwardedClient(t *testing.T) {
	s, _ := newTestServer(t, "", WithRateLimiter(ratelimit.New[string](1, 0)))
	h := s.Handler()

	recon := func(forwardedFor string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/recon?target=example.com&tools=whois", nil)
		req.RemoteAddr = "127.0.0.1:50000"
		req.Header.Set("X-Forwarded-For", forwardedFor)
		return do(t, h, req).Code
	}

	assert.Equal(t, http.StatusOK, recon("203.0.113.1"))
	assert.Equal(t, http.StatusTooManyRequests, recon("203.0.113.1"))
	assert.Equal(t, http.StatusOK, recon("203.0.113.2"))
}

func TestReconConcurrencyLimit(t *testing.T) {
	limiter := ratelimit.New[string](0, 1)
	s, _ := newTestServer(t, "", WithRateLimiter(limiter))

	ok, _ := limiter.Acquire("192.0.2.1")
	require.True(t, ok)

	req := httptest.NewRequest(http.MethodGet, "/api/recon?target=example.com", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	rec := do(t, s.Handler(), req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), ratelimit.ReasonConcurrent)

	limiter.Release("192.0.2.1")
	rec = do(t, s.Handler(), req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
