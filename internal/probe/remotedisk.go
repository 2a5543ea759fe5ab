package probe

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/t77yq/hostwatch/internal/model"
	"github.com/t77yq/hostwatch/internal/remote"
)

// RemoteDiskProbe samples disk usage on a remote host over SSH with
// `df --output=pcent`.
type RemoteDiskProbe struct {
	logger *zap.Logger
	runner remote.Runner
	id     model.ProbeID
	path   string
	policy model.Policy
}

// NewRemoteDiskProbe creates a probe for the given remote filesystem path.
// name distinguishes multiple remote hosts ("remote-disk:media").
func NewRemoteDiskProbe(logger *zap.Logger, runner remote.Runner, name, path string, policy model.Policy) *RemoteDiskProbe {
	return &RemoteDiskProbe{
		logger: logger.Named("probe-remote-disk"),
		runner: runner,
		id:     model.ProbeID("remote-disk:" + name),
		path:   path,
		policy: policy,
	}
}

func (p *RemoteDiskProbe) ID() model.ProbeID { return p.id }

func (p *RemoteDiskProbe) Collect(ctx context.Context) (Snapshot, error) {
	out, err := p.runner.Run(ctx, fmt.Sprintf("df --output=pcent %s | tail -1", p.path))
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read remote disk usage: %w", err)
	}

	percent, err := parsePercent(out)
	if err != nil {
		return Snapshot{}, fmt.Errorf("unexpected df output %q: %w", out, err)
	}

	return Snapshot{
		Conditions: []ConditionSample{
			{
				Key:    ConditionDiskUsage,
				Sample: model.Sample{Value: percent, At: time.Now()},
				Policy: p.policy,
				Detail: fmt.Sprintf("Remote disk %s: %.0f%% used", p.path, percent),
			},
		},
	}, nil
}

// parsePercent parses df's " 72%" style output.
func parsePercent(out string) (float64, error) {
	trimmed := strings.TrimSuffix(strings.TrimSpace(out), "%")
	n, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, err
	}
	return float64(n), nil
}
