package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/t77yq/hostwatch/internal/action"
	"github.com/t77yq/hostwatch/internal/metrics"
	"github.com/t77yq/hostwatch/internal/model"
	"github.com/t77yq/hostwatch/internal/monitor"
	"github.com/t77yq/hostwatch/internal/notify"
	"github.com/t77yq/hostwatch/internal/probe"
	"github.com/t77yq/hostwatch/internal/storage"
)

// cronLogger adapts zap.Logger to cron.Logger
type cronLogger struct {
	logger *zap.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Info(msg)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, zap.Error(err))
}

// DriverOptions configures the tick loop.
type DriverOptions struct {
	// Interval between probe ticks.
	Interval time.Duration

	// ProbeTimeout bounds a single probe's Collect call.
	ProbeTimeout time.Duration

	// HistoryRetention is how long alert events are kept. Zero disables
	// the retention sweep.
	HistoryRetention time.Duration
}

// Driver ticks all probes on a fixed interval, routes samples through the
// alert engine, and turns notifiable transitions into channel messages. It
// also consumes button presses from the channel and feeds them to the
// confirmation protocol.
type Driver struct {
	logger   *zap.Logger
	cron     *cron.Cron
	probes   []probe.Probe
	engine   *monitor.Engine
	protocol *action.Protocol
	store    *action.Store
	channel  notify.Channel
	history  storage.AlertHistory
	opts     DriverOptions

	quit     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewDriver assembles the tick loop. history may be nil when persistence is
// disabled.
func NewDriver(
	logger *zap.Logger,
	probes []probe.Probe,
	engine *monitor.Engine,
	protocol *action.Protocol,
	store *action.Store,
	channel notify.Channel,
	history storage.AlertHistory,
	opts DriverOptions,
) *Driver {
	cl := &cronLogger{logger: logger.Named("cron")}
	return &Driver{
		logger:   logger.Named("driver"),
		cron:     cron.New(cron.WithChain(cron.Recover(cl))),
		probes:   probes,
		engine:   engine,
		protocol: protocol,
		store:    store,
		channel:  channel,
		history:  history,
		opts:     opts,
		quit:     make(chan struct{}),
	}
}

// Start announces itself on the channel, schedules the tick and maintenance
// jobs, and starts consuming button presses. The first tick runs immediately
// so baselines are reported at startup rather than one interval later.
func (d *Driver) Start(ctx context.Context) error {
	names := make([]string, 0, len(d.probes))
	for _, p := range d.probes {
		names = append(names, string(p.ID()))
	}
	startup := fmt.Sprintf("🟢 hostwatch started. Probes: %s. Interval: %s.",
		strings.Join(names, ", "), d.opts.Interval)
	if err := d.channel.Send(ctx, startup); err != nil {
		d.logger.Warn("Failed to send startup message", zap.Error(err))
	}

	if _, err := d.cron.AddFunc(fmt.Sprintf("@every %s", d.opts.Interval), func() {
		d.Tick(context.Background())
	}); err != nil {
		return fmt.Errorf("failed to schedule tick: %w", err)
	}

	if _, err := d.cron.AddFunc("@every 1h", d.maintain); err != nil {
		return fmt.Errorf("failed to schedule maintenance: %w", err)
	}

	d.wg.Add(1)
	go d.consumeEvents()

	d.cron.Start()
	d.Tick(ctx)

	d.logger.Info("Driver started",
		zap.Int("probes", len(d.probes)),
		zap.Duration("interval", d.opts.Interval))
	return nil
}

// Stop halts the cron jobs and the event consumer, then announces shutdown.
// The channel itself stays open; closing it is the owner's job.
func (d *Driver) Stop(ctx context.Context) {
	d.stopOnce.Do(func() {
		close(d.quit)
		<-d.cron.Stop().Done()
		d.wg.Wait()

		if err := d.channel.Send(ctx, "🔴 hostwatch stopped."); err != nil {
			d.logger.Warn("Failed to send shutdown message", zap.Error(err))
		}
		d.logger.Info("Driver stopped")
	})
}

// Tick collects every probe once and evaluates all sampled conditions. A
// probe failure is reported as a transient notification and skips evaluation
// for that probe, leaving its alert records untouched.
func (d *Driver) Tick(ctx context.Context) {
	timer := prometheus.NewTimer(metrics.TickDuration)
	defer timer.ObserveDuration()

	for _, p := range d.probes {
		pctx, cancel := context.WithTimeout(ctx, d.opts.ProbeTimeout)
		snap, err := p.Collect(pctx)
		cancel()

		if err != nil {
			metrics.ProbeErrorsTotal.WithLabelValues(string(p.ID())).Inc()
			d.logger.Warn("Probe collection failed",
				zap.String("probe", string(p.ID())),
				zap.Error(err))
			d.send(ctx, fmt.Sprintf("⚠️ Probe %s failed: %v", p.ID(), err))
			continue
		}

		for _, cond := range snap.Conditions {
			d.evaluate(ctx, p, cond)
		}
	}

	metrics.PendingActions.Set(float64(d.store.Live()))
}

func (d *Driver) evaluate(ctx context.Context, p probe.Probe, cond probe.ConditionSample) {
	tr := d.engine.Evaluate(p.ID(), cond.Key, cond.Sample, cond.Policy)
	metrics.TransitionsTotal.WithLabelValues(
		string(p.ID()), string(cond.Key), string(tr)).Inc()

	if !tr.Notifiable() {
		return
	}

	text := renderTransition(tr, cond.Detail)
	d.record(ctx, p.ID(), cond, tr, text)

	// Only a live breach gets remedial buttons.
	if tr == model.TransitionRaised || tr == model.TransitionRepeated {
		if sg, ok := p.(probe.Suggester); ok {
			if buttons := d.protocol.IssueBatch(sg.Suggest(ctx, cond.Key)); len(buttons) > 0 {
				d.sendWithButtons(ctx, text, buttons)
				return
			}
		}
	}

	d.send(ctx, text)
}

// record persists one transition to history. Persistence failures are logged
// and swallowed; the notification still goes out.
func (d *Driver) record(ctx context.Context, id model.ProbeID, cond probe.ConditionSample, tr model.Transition, text string) {
	if d.history == nil {
		return
	}
	err := d.history.Store(ctx, &storage.AlertEvent{
		ID:         uuid.New().String(),
		Probe:      id,
		Condition:  cond.Key,
		Transition: tr,
		Value:      cond.Sample.Value,
		Message:    text,
		CreatedAt:  cond.Sample.At,
	})
	if err != nil {
		d.logger.Error("Failed to record alert event", zap.Error(err))
	}
}

// consumeEvents routes button presses through the confirmation protocol and
// sends the resulting reply back on the channel.
func (d *Driver) consumeEvents() {
	defer d.wg.Done()

	for {
		select {
		case <-d.quit:
			return
		case token, ok := <-d.channel.Events():
			if !ok {
				return
			}

			outcome := d.protocol.HandleInvocation(context.Background(), token)
			if len(outcome.Buttons) > 0 {
				d.sendWithButtons(context.Background(), outcome.Text, outcome.Buttons)
			} else {
				d.send(context.Background(), outcome.Text)
			}
			metrics.PendingActions.Set(float64(d.store.Live()))
		}
	}
}

// maintain reclaims stale pending actions and trims old history.
func (d *Driver) maintain() {
	d.store.Sweep()
	metrics.PendingActions.Set(float64(d.store.Live()))

	if d.history == nil || d.opts.HistoryRetention <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := d.history.DeleteBefore(ctx, time.Now().Add(-d.opts.HistoryRetention)); err != nil {
		d.logger.Error("Failed to trim alert history", zap.Error(err))
	}
}

func (d *Driver) send(ctx context.Context, text string) {
	if err := d.channel.Send(ctx, text); err != nil {
		d.logger.Error("Failed to send notification", zap.Error(err))
	}
}

func (d *Driver) sendWithButtons(ctx context.Context, text string, buttons []action.Button) {
	actions := make([]notify.Action, 0, len(buttons))
	for _, b := range buttons {
		actions = append(actions, notify.Action{Label: b.Label, Token: b.Token})
	}
	if err := d.channel.SendWithActions(ctx, text, actions); err != nil {
		d.logger.Error("Failed to send notification with actions", zap.Error(err))
	}
}

func renderTransition(tr model.Transition, detail string) string {
	switch tr {
	case model.TransitionBaseline:
		return "📋 " + detail
	case model.TransitionRaised:
		return "🚨 " + detail
	case model.TransitionRepeated:
		return "🔁 Still failing. " + detail
	case model.TransitionCleared:
		return "✅ Resolved. " + detail
	default:
		return detail
	}
}
