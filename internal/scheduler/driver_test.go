package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/t77yq/hostwatch/internal/action"
	"github.com/t77yq/hostwatch/internal/model"
	"github.com/t77yq/hostwatch/internal/monitor"
	"github.com/t77yq/hostwatch/internal/notify"
	"github.com/t77yq/hostwatch/internal/probe"
	"github.com/t77yq/hostwatch/internal/storage"
)

type fakeProbe struct {
	id        model.ProbeID
	value     float64
	policy    model.Policy
	err       error
	proposals []action.Proposal
}

func (f *fakeProbe) ID() model.ProbeID { return f.id }

func (f *fakeProbe) Collect(ctx context.Context) (probe.Snapshot, error) {
	if f.err != nil {
		return probe.Snapshot{}, f.err
	}
	return probe.Snapshot{
		Conditions: []probe.ConditionSample{
			{
				Key:    "usage",
				Sample: model.Sample{Value: f.value, At: time.Now()},
				Policy: f.policy,
				Detail: "usage detail",
			},
		},
	}, nil
}

func (f *fakeProbe) Suggest(ctx context.Context, condition model.ConditionKey) []action.Proposal {
	return f.proposals
}

type fakeChannel struct {
	mu     sync.Mutex
	sent   []notify.Message
	events chan string
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{events: make(chan string, 16)}
}

func (f *fakeChannel) Send(ctx context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, notify.Message{Text: text})
	return nil
}

func (f *fakeChannel) SendWithActions(ctx context.Context, text string, actions []notify.Action) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, notify.Message{Text: text, Actions: actions})
	return nil
}

func (f *fakeChannel) Events() <-chan string { return f.events }

func (f *fakeChannel) Close() { close(f.events) }

func (f *fakeChannel) messages() []notify.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]notify.Message, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeChannel) lastMessage() notify.Message {
	msgs := f.messages()
	if len(msgs) == 0 {
		return notify.Message{}
	}
	return msgs[len(msgs)-1]
}

type memoryHistory struct {
	mu     sync.Mutex
	events []*storage.AlertEvent
}

func (m *memoryHistory) Store(ctx context.Context, event *storage.AlertEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *memoryHistory) List(ctx context.Context, probe model.ProbeID, offset, limit int) ([]*storage.AlertEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*storage.AlertEvent, len(m.events))
	copy(out, m.events)
	return out, nil
}

func (m *memoryHistory) DeleteBefore(ctx context.Context, before time.Time) error { return nil }

type fakeExecutor struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeExecutor) Execute(ctx context.Context, kind model.ActionKind, payload string) model.ActionResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, payload)
	return model.ActionResult{OK: true, Message: "Restarted " + payload}
}

type driverFixture struct {
	driver  *Driver
	channel *fakeChannel
	history *memoryHistory
	exec    *fakeExecutor
	store   *action.Store
}

func newDriver(t *testing.T, probes ...probe.Probe) *driverFixture {
	t.Helper()

	logger, _ := zap.NewDevelopment()
	channel := newFakeChannel()
	history := &memoryHistory{}
	exec := &fakeExecutor{}
	store := action.NewStore(logger, time.Hour, 64)
	protocol := action.NewProtocol(logger, store, exec, []string{"/tmp"})
	engine := monitor.NewEngine(logger)

	driver := NewDriver(logger, probes, engine, protocol, store, channel, history, DriverOptions{
		Interval:     time.Hour,
		ProbeTimeout: 5 * time.Second,
	})

	return &driverFixture{
		driver:  driver,
		channel: channel,
		history: history,
		exec:    exec,
		store:   store,
	}
}

func TestDriver_TickRaisesAndClears(t *testing.T) {
	p := &fakeProbe{id: "disk", value: 50, policy: model.Policy{Threshold: 80, Cooldown: time.Hour}}
	f := newDriver(t, p)

	// First-ever sample is a silent baseline.
	f.driver.Tick(context.Background())
	require.Empty(t, f.channel.messages())

	p.value = 95
	f.driver.Tick(context.Background())
	require.Len(t, f.channel.messages(), 1)
	require.Contains(t, f.channel.lastMessage().Text, "🚨")

	// Still breaching inside the cooldown window stays quiet.
	f.driver.Tick(context.Background())
	require.Len(t, f.channel.messages(), 1)

	p.value = 50
	f.driver.Tick(context.Background())
	require.Len(t, f.channel.messages(), 2)
	require.Contains(t, f.channel.lastMessage().Text, "✅ Resolved")

	events, err := f.history.List(context.Background(), "", 0, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, model.TransitionRaised, events[0].Transition)
	require.Equal(t, model.TransitionCleared, events[1].Transition)
}

func TestDriver_BaselineReportedOnFirstTick(t *testing.T) {
	p := &fakeProbe{id: "disk", value: 40, policy: model.Policy{
		Threshold: 80, Cooldown: time.Hour, ReportBaseline: true,
	}}
	f := newDriver(t, p)

	f.driver.Tick(context.Background())
	require.Len(t, f.channel.messages(), 1)
	require.Contains(t, f.channel.lastMessage().Text, "📋")

	// Second tick below threshold is silence, not another baseline.
	f.driver.Tick(context.Background())
	require.Len(t, f.channel.messages(), 1)
}

func TestDriver_ProbeErrorLeavesRecordsUntouched(t *testing.T) {
	p := &fakeProbe{id: "disk", value: 50, policy: model.Policy{Threshold: 80, Cooldown: time.Hour}}
	f := newDriver(t, p)

	f.driver.Tick(context.Background())

	p.value = 95
	f.driver.Tick(context.Background())
	require.Contains(t, f.channel.lastMessage().Text, "🚨")

	p.err = errors.New("device busy")
	f.driver.Tick(context.Background())
	require.Contains(t, f.channel.lastMessage().Text, "⚠️ Probe disk failed")

	// Recovery while still breaching must not re-raise; the record survived
	// the failed tick.
	p.err = nil
	f.driver.Tick(context.Background())
	require.NotContains(t, f.channel.lastMessage().Text, "🚨")
}

func TestDriver_BreachAttachesSuggestedButtons(t *testing.T) {
	p := &fakeProbe{
		id:     "disk",
		value:  50,
		policy: model.Policy{Threshold: 80, Cooldown: time.Hour},
		proposals: []action.Proposal{
			{Kind: model.ActionDelete, Payload: "/tmp/big.iso", Label: "🗑 big.iso (4.9 GB)"},
		},
	}
	f := newDriver(t, p)

	f.driver.Tick(context.Background())
	p.value = 95
	f.driver.Tick(context.Background())

	msg := f.channel.lastMessage()
	require.Contains(t, msg.Text, "🚨")
	require.Len(t, msg.Actions, 1)
	require.NotEmpty(t, msg.Actions[0].Token)
	require.Equal(t, 1, f.store.Live())
}

func TestDriver_EventLoopRunsConfirmationFlow(t *testing.T) {
	p := &fakeProbe{
		id:     "docker",
		value:  0,
		policy: model.Policy{Threshold: 1, Cooldown: time.Hour},
		proposals: []action.Proposal{
			{Kind: model.ActionRestart, Payload: "sonarr", Label: "🔄 Restart sonarr"},
		},
	}
	f := newDriver(t, p)

	// Start runs the baseline tick; the container then goes unhealthy.
	require.NoError(t, f.driver.Start(context.Background()))
	defer f.driver.Stop(context.Background())

	p.value = 1
	f.driver.Tick(context.Background())

	require.Eventually(t, func() bool {
		return len(f.channel.lastMessage().Actions) == 1
	}, time.Second, 10*time.Millisecond)

	f.channel.events <- f.channel.lastMessage().Actions[0].Token

	require.Eventually(t, func() bool {
		msg := f.channel.lastMessage()
		return strings.Contains(msg.Text, "Are you sure") && len(msg.Actions) == 2
	}, time.Second, 10*time.Millisecond)

	for _, a := range f.channel.lastMessage().Actions {
		if strings.Contains(a.Label, "Yes") {
			f.channel.events <- a.Token
		}
	}

	require.Eventually(t, func() bool {
		return strings.Contains(f.channel.lastMessage().Text, "Restarted sonarr")
	}, time.Second, 10*time.Millisecond)

	f.exec.mu.Lock()
	defer f.exec.mu.Unlock()
	require.Equal(t, []string{"sonarr"}, f.exec.calls)
}

func TestDriver_StartAndStopAnnounce(t *testing.T) {
	p := &fakeProbe{id: "system", value: 10, policy: model.Policy{Threshold: 80, Cooldown: time.Hour}}
	f := newDriver(t, p)

	require.NoError(t, f.driver.Start(context.Background()))
	f.driver.Stop(context.Background())

	msgs := f.channel.messages()
	require.NotEmpty(t, msgs)
	require.Contains(t, msgs[0].Text, "🟢 hostwatch started")
	require.Contains(t, msgs[len(msgs)-1].Text, "🔴 hostwatch stopped")
}
