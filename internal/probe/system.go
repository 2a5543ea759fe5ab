package probe

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/t77yq/hostwatch/internal/model"
)

const (
	ConditionRAM  model.ConditionKey = "ram"
	ConditionSwap model.ConditionKey = "swap"
	ConditionLoad model.ConditionKey = "load5"
)

// SystemPolicies holds the evaluation policy for each system condition.
type SystemPolicies struct {
	RAM  model.Policy
	Swap model.Policy
	Load model.Policy
}

// SystemProbe samples RAM, swap and load average on the local host.
type SystemProbe struct {
	logger *zap.Logger

	mu       sync.RWMutex
	policies SystemPolicies
}

// NewSystemProbe creates the system resource probe.
func NewSystemProbe(logger *zap.Logger, policies SystemPolicies) *SystemProbe {
	return &SystemProbe{
		logger:   logger.Named("probe-system"),
		policies: policies,
	}
}

func (p *SystemProbe) ID() model.ProbeID { return "system" }

// SetPolicies swaps the evaluation policies, for config hot-reload.
func (p *SystemProbe) SetPolicies(policies SystemPolicies) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.policies = policies
}

// Collect samples all three conditions. A failure of any reading fails the
// whole snapshot; partial snapshots would silently skip evaluations.
func (p *SystemProbe) Collect(ctx context.Context) (Snapshot, error) {
	now := time.Now()

	p.mu.RLock()
	policies := p.policies
	p.mu.RUnlock()

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read memory: %w", err)
	}

	swap, err := mem.SwapMemoryWithContext(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read swap: %w", err)
	}

	avg, err := load.AvgWithContext(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read load average: %w", err)
	}

	return Snapshot{
		Conditions: []ConditionSample{
			{
				Key:    ConditionRAM,
				Sample: model.Sample{Value: vm.UsedPercent, At: now},
				Policy: policies.RAM,
				Detail: fmt.Sprintf("RAM: %.1f%% (%s / %s)",
					vm.UsedPercent, humanSize(int64(vm.Used)), humanSize(int64(vm.Total))),
			},
			{
				Key:    ConditionSwap,
				Sample: model.Sample{Value: swap.UsedPercent, At: now},
				Policy: policies.Swap,
				Detail: fmt.Sprintf("Swap: %.1f%% (%s / %s)",
					swap.UsedPercent, humanSize(int64(swap.Used)), humanSize(int64(swap.Total))),
			},
			{
				Key:    ConditionLoad,
				Sample: model.Sample{Value: avg.Load5, At: now},
				Policy: policies.Load,
				Detail: fmt.Sprintf("Load: %.2f / %.2f / %.2f (1m / 5m / 15m)",
					avg.Load1, avg.Load5, avg.Load15),
			},
		},
	}, nil
}
