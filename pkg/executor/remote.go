package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/harun/recondora/pkg/registry"
	"github.com/rs/zerolog"
)

const (
	// DefaultRemoteTimeout is the per-request deadline of remote tools.
	DefaultRemoteTimeout = 45 * time.Second

	// DefaultUserAgent identifies requests to reconnaissance APIs.
	DefaultUserAgent = "Mozilla/5.0 (compatible; ReconDoraBot/1.0)"

	maxResponseBytes = 1 << 20
)

// RemoteExecutor performs one HTTP GET per remote tool.
type RemoteExecutor struct {
	client    *http.Client
	timeout   time.Duration
	userAgent string
	logger    zerolog.Logger
}

// RemoteOption configures a RemoteExecutor.
type RemoteOption func(*RemoteExecutor)

// WithHTTPClient sets the shared HTTP client.
func WithHTTPClient(client *http.Client) RemoteOption {
	return func(e *RemoteExecutor) { e.client = client }
}

// WithRemoteTimeout sets the per-request timeout.
func WithRemoteTimeout(d time.Duration) RemoteOption {
	return func(e *RemoteExecutor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) RemoteOption {
	return func(e *RemoteExecutor) {
		if ua != "" {
			e.userAgent = ua
		}
	}
}

// WithRemoteLogger sets the logger.
func WithRemoteLogger(logger zerolog.Logger) RemoteOption {
	return func(e *RemoteExecutor) { e.logger = logger }
}

// NewRemoteExecutor creates a remote executor.
func NewRemoteExecutor(opts ...RemoteOption) *RemoteExecutor {
	e := &RemoteExecutor{
		timeout:   DefaultRemoteTimeout,
		userAgent: DefaultUserAgent,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.client == nil {
		e.client = &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConnsPerHost: 16,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		}
	}
	return e
}

// BuildURL puts the escaped target in place of registry.TargetPlaceholder,
// or appends it when the template has no placeholder.
func BuildURL(template, target string) string {
	escaped := url.QueryEscape(target)
	if strings.Contains(template, registry.TargetPlaceholder) {
		return strings.ReplaceAll(template, registry.TargetPlaceholder, escaped)
	}
	return template + escaped
}

// Execute runs a remote tool.
func (e *RemoteExecutor) Execute(ctx context.Context, target string, spec registry.ToolSpec) Result {
	start := time.Now()
	res := e.execute(ctx, target, spec)
	res.Duration = time.Since(start)
	return res
}

func (e *RemoteExecutor) execute(ctx context.Context, target string, spec registry.ToolSpec) Result {
	if spec.Remote == nil {
		return Failure(spec, KindUnexpected, TagUnexpected, "tool %s has no remote configuration", spec.Key)
	}

	reqCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	method := spec.Remote.Method
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(reqCtx, method, BuildURL(spec.Remote.URLTemplate, target), nil)
	if err != nil {
		return Failure(spec, KindUnexpected, TagUnexpected, "%v", err)
	}
	req.Header.Set("User-Agent", e.userAgent)
	for k, v := range spec.Remote.Headers {
		req.Header.Set(k, v)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		if isTimeout(reqCtx, err) {
			return e.timeoutResult(spec)
		}
		return Failure(spec, KindTransport, TagAPIRequest, "%s", transportCause(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return Failure(spec, KindTransport, TagAPIRequest, "HTTP %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if isTimeout(reqCtx, err) {
			return e.timeoutResult(spec)
		}
		return Failure(spec, KindUnexpected, TagUnexpected, "failed to read response: %v", err)
	}

	text := strings.TrimSpace(strings.ToValidUTF8(string(body), "\uFFFD"))

	if marker, ok := matchMarker(text, spec.Remote.ErrorMarkers); ok {
		e.logger.Debug().Str("tool", spec.Key).Str("marker", marker).Msg("Upstream rejected query")
		return Failure(spec, KindUpstream, TagAPI, "%s", text)
	}

	text, err = formatResponse(spec.Remote.Format, resp, text)
	if err != nil {
		e.logger.Debug().Err(err).Str("tool", spec.Key).Msg("Unusable upstream response")
		return Failure(spec, KindUpstream, TagAPI, "%v", err)
	}

	if text == "" {
		text = NoDataText
	}

	return Result{Tool: spec.Key, Kind: spec.Kind, Text: text}
}

func (e *RemoteExecutor) timeoutResult(spec registry.ToolSpec) Result {
	return Failure(spec, KindTimeout, TagAPIRequest, "Request timed out after %s", e.timeout)
}

func matchMarker(body string, markers []string) (string, bool) {
	lower := strings.ToLower(body)
	for _, m := range markers {
		if m != "" && strings.Contains(lower, strings.ToLower(m)) {
			return m, true
		}
	}
	return "", false
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// transportCause strips the method and URL that *url.Error prepends.
func transportCause(err error) string {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Sprintf("%v", urlErr.Err)
	}
	return err.Error()
}
