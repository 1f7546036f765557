package metrics

import (
	"time"

	obserrors "github.com/dealshub/dealshub-go/internal/observability/errors"
	"github.com/dealshub/dealshub-go/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess  = "success"
	ResultFallback = "fallback"
	ResultError    = "error"
	ResultNoop     = "noop"
	ResultStale    = "stale"
)

// ResolutionMetric captures one profile resolution for metric emission.
type ResolutionMetric struct {
	Result   string
	Attempts int
	Duration time.Duration
	Err      error
}

// EmitResolution emits profile resolution metrics.
func EmitResolution(sink statsd.Sink, in ResolutionMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{"result": in.Result}
	if in.Err != nil {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("identity.resolve", 1, tags)
	if in.Attempts > 0 {
		sink.Gauge("identity.resolve.attempts", float64(in.Attempts), CloneTags(tags))
	}
	if in.Duration > 0 {
		sink.Timing("identity.resolve.duration", in.Duration, CloneTags(tags))
	}
}

// EmitAuthEvent counts auth events handled by a synchronizer.
func EmitAuthEvent(sink statsd.Sink, event, result string) {
	if sink == nil {
		return
	}
	sink.Count("identity.event", 1, map[string]string{"event": event, "result": result})
}

// EmitGuardDecision counts navigation decisions.
func EmitGuardDecision(sink statsd.Sink, required string, allowed bool, redirectTo string) {
	if sink == nil {
		return
	}
	tags := map[string]string{"required": required, "allowed": "false"}
	if allowed {
		tags["allowed"] = "true"
	} else {
		tags["redirect"] = redirectTo
	}
	sink.Count("guard.decision", 1, tags)
}

// EmitSignOut counts sign-out attempts.
func EmitSignOut(sink statsd.Sink, err error) {
	if sink == nil {
		return
	}
	tags := map[string]string{"result": ResultSuccess}
	if err != nil {
		tags["result"] = ResultError
		tags["error_class"] = obserrors.Classify(err)
	}
	sink.Count("identity.sign_out", 1, tags)
}

// EmitSessions reports the number of live session synchronizers.
func EmitSessions(sink statsd.Sink, live int) {
	if sink == nil {
		return
	}
	sink.Gauge("identity.sessions.live", float64(live), nil)
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
