// Package executor runs a single tool against a single target and always
// produces a Result; failures are folded into the result text and tagged with
// an ErrorKind.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/harun/recondora/pkg/registry"
)

// ErrorKind classifies a failed tool run.
type ErrorKind string

const (
	// KindNone marks a successful run.
	KindNone ErrorKind = ""
	// KindValidation means the target was rejected before anything ran.
	KindValidation ErrorKind = "validation"
	// KindTransport covers connection, DNS and HTTP status failures.
	KindTransport ErrorKind = "transport"
	// KindUpstream means the API answered but rejected the query.
	KindUpstream ErrorKind = "upstream"
	// KindTimeout means the per-tool deadline expired.
	KindTimeout ErrorKind = "timeout"
	// KindExecution means a local binary is missing or failed.
	KindExecution ErrorKind = "execution"
	// KindUnexpected is everything else.
	KindUnexpected ErrorKind = "unexpected"
)

// Tags prefixed to failure text.
const (
	TagValidation = "[Validation Error]"
	TagAPIRequest = "[API Request Error]"
	TagAPI        = "[API Error]"
	TagTimeout    = "[Timeout Error]"
	TagExecution  = "[Execution Error]"
	TagUnexpected = "[Unexpected Error]"
)

// Placeholders used when a tool succeeds without output.
const (
	NoDataText   = "No data returned."
	NoOutputText = "No output returned."
)

// Result is the outcome of one tool run. Text is never empty.
type Result struct {
	Tool     string        `json:"tool"`
	Kind     registry.Kind `json:"kind"`
	Text     string        `json:"text"`
	Error    ErrorKind     `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Failed reports whether the run failed.
func (r Result) Failed() bool {
	return r.Error != KindNone
}

// Status returns "success" or the error kind, for metrics labels.
func (r Result) Status() string {
	if r.Failed() {
		return string(r.Error)
	}
	return "success"
}

// Executor runs one tool. Implementations must not return without a Result
// and must honour their own timeout.
type Executor interface {
	Execute(ctx context.Context, target string, spec registry.ToolSpec) Result
}

// Failure builds a failed result.
func Failure(spec registry.ToolSpec, kind ErrorKind, tag, format string, args ...any) Result {
	return Result{
		Tool:  spec.Key,
		Kind:  spec.Kind,
		Text:  tag + " " + fmt.Sprintf(format, args...),
		Error: kind,
	}
}
