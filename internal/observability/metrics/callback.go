package metrics

import (
	"strconv"
	"time"

	obserrors "github.com/target/mmk-portal/internal/observability/errors"
	"github.com/target/mmk-portal/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess  = "success"
	ResultError    = "error"
	ResultDegraded = "degraded"
	ResultNoop     = "noop"
)

// CallbackMetric captures the settled outcome of one sign-in callback.
type CallbackMetric struct {
	Result   string
	Kind     string
	Role     string
	Duration time.Duration
	Err      error
}

// EmitCallback emits standardised callback outcome metrics.
func EmitCallback(sink statsd.Sink, in CallbackMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"result": in.Result,
	}
	if in.Kind != "" {
		tags["kind"] = in.Kind
	}
	if in.Role != "" {
		tags["role"] = in.Role
	}
	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("callback.outcome", 1, tags)

	if in.Duration > 0 {
		sink.Timing("callback.duration", in.Duration, CloneTags(tags))
	}
}

// VerifyAttemptMetric describes one backend verification attempt.
type VerifyAttemptMetric struct {
	Attempt  int
	Result   string
	Duration time.Duration
	Err      error
}

// EmitVerifyAttempt emits per-attempt backend verification metrics.
func EmitVerifyAttempt(sink statsd.Sink, in VerifyAttemptMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"attempt": strconv.Itoa(in.Attempt),
		"result":  in.Result,
	}
	if in.Err != nil {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("callback.verify_attempt", 1, tags)
	if in.Duration > 0 {
		sink.Timing("callback.verify_duration", in.Duration, CloneTags(tags))
	}
}

// CloneTags creates a shallow copy of a tag map, filtering out empty keys.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		if k == "" {
			continue
		}
		out[k] = v
	}
	return out
}
