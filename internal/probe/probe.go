package probe

import (
	"context"
	"fmt"

	"github.com/t77yq/hostwatch/internal/action"
	"github.com/t77yq/hostwatch/internal/model"
)

// ConditionSample is one condition's observation for the current tick,
// together with the policy it should be evaluated under and a human-readable
// detail line for notifications.
type ConditionSample struct {
	Key    model.ConditionKey
	Sample model.Sample
	Policy model.Policy
	Detail string
}

// Snapshot is everything a probe observed in one tick.
type Snapshot struct {
	Conditions []ConditionSample
}

// Probe supplies a named snapshot on demand. Errors are probe-local: the
// driver surfaces them as transient notifications and evaluates nothing for
// the tick, leaving alert records untouched.
type Probe interface {
	ID() model.ProbeID
	Collect(ctx context.Context) (Snapshot, error)
}

// Suggester is implemented by probes that can propose remedial actions for a
// breaching condition, rendered as inline buttons on the alert.
type Suggester interface {
	Suggest(ctx context.Context, condition model.ConditionKey) []action.Proposal
}

// humanSize formats a byte count the way the operator expects to read it.
func humanSize(n int64) string {
	size := float64(n)
	for _, unit := range []string{"B", "KB", "MB", "GB", "TB"} {
		if size < 1024 {
			return fmt.Sprintf("%.1f %s", size, unit)
		}
		size /= 1024
	}
	return fmt.Sprintf("%.1f PB", size)
}
