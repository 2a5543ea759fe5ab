package monitor

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/t77yq/hostwatch/internal/model"
)

// AlertRecord is the per-condition hysteresis and cooldown bookkeeping.
// Records are owned by the engine and mutated only on tick boundaries.
type AlertRecord struct {
	Active         bool      `json:"active"`
	LastNotifiedAt time.Time `json:"last_notified_at"`
	SeenOnce       bool      `json:"seen_once"`
}

// RecordView is a read-only copy of one condition's record, used by the
// on-demand status view.
type RecordView struct {
	Probe     model.ProbeID      `json:"probe"`
	Condition model.ConditionKey `json:"condition"`
	AlertRecord
}

type conditionKey struct {
	probe     model.ProbeID
	condition model.ConditionKey
}

// Engine evaluates condition samples against stored alert records. It is
// edge-triggered: exactly one Raised per upward crossing, exactly one Cleared
// per downward crossing, and at most one Repeated per cooldown window while
// the condition stays abnormal.
type Engine struct {
	logger  *zap.Logger
	mu      sync.Mutex
	records map[conditionKey]*AlertRecord
	now     func() time.Time
}

// NewEngine creates an alert engine with an empty record set. A cold start
// simply re-runs the baseline path for every condition.
func NewEngine(logger *zap.Logger) *Engine {
	return &Engine{
		logger:  logger.Named("alert-engine"),
		records: make(map[conditionKey]*AlertRecord),
		now:     time.Now,
	}
}

// Evaluate applies one sample against the stored record for the condition and
// updates it. Callers must not invoke Evaluate for a condition whose probe
// failed this tick; a failed probe leaves the record untouched so the next
// good sample is judged against the last known state.
func (e *Engine) Evaluate(probe model.ProbeID, condition model.ConditionKey, sample model.Sample, policy model.Policy) model.Transition {
	e.mu.Lock()
	defer e.mu.Unlock()

	k := conditionKey{probe: probe, condition: condition}
	rec, ok := e.records[k]
	if !ok {
		rec = &AlertRecord{}
		e.records[k] = rec
	}

	breaching := sample.Value >= policy.Threshold
	now := e.now()

	if !rec.SeenOnce {
		rec.SeenOnce = true
		rec.Active = breaching
		rec.LastNotifiedAt = now
		if policy.ReportBaseline {
			return model.TransitionBaseline
		}
		return model.TransitionNone
	}

	switch {
	case !breaching && rec.Active:
		rec.Active = false
		e.logger.Info("condition cleared",
			zap.String("probe", string(probe)),
			zap.String("condition", string(condition)),
			zap.Float64("value", sample.Value))
		return model.TransitionCleared

	case !breaching:
		return model.TransitionNone

	case !rec.Active:
		rec.Active = true
		rec.LastNotifiedAt = now
		e.logger.Warn("condition raised",
			zap.String("probe", string(probe)),
			zap.String("condition", string(condition)),
			zap.Float64("value", sample.Value),
			zap.Float64("threshold", policy.Threshold))
		return model.TransitionRaised

	case now.Sub(rec.LastNotifiedAt) >= policy.Cooldown:
		rec.LastNotifiedAt = now
		return model.TransitionRepeated

	default:
		return model.TransitionSuppressed
	}
}

// Active reports whether the condition is currently in the abnormal state.
func (e *Engine) Active(probe model.ProbeID, condition model.ConditionKey) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, ok := e.records[conditionKey{probe: probe, condition: condition}]
	return ok && rec.Active
}

// Snapshot returns copies of all records for the status view.
func (e *Engine) Snapshot() []RecordView {
	e.mu.Lock()
	defer e.mu.Unlock()

	views := make([]RecordView, 0, len(e.records))
	for k, rec := range e.records {
		views = append(views, RecordView{
			Probe:       k.probe,
			Condition:   k.condition,
			AlertRecord: *rec,
		})
	}
	return views
}
