package probe

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"go.uber.org/zap"

	"github.com/t77yq/hostwatch/internal/action"
	"github.com/t77yq/hostwatch/internal/model"
)

// DockerAPI is the slice of the Docker client the probe needs. *client.Client
// satisfies it.
type DockerAPI interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]types.Container, error)
}

// DockerProbe watches containers for unhealthy and restarting states. Each
// container contributes independent boolean conditions so one flapping
// container never masks another.
type DockerProbe struct {
	logger *zap.Logger
	client DockerAPI
	policy model.Policy
	ignore map[string]bool
}

// NewDockerProbe creates a container health probe. ignore lists containers
// known to restart routinely.
func NewDockerProbe(logger *zap.Logger, client DockerAPI, policy model.Policy, ignore []string) *DockerProbe {
	ignored := make(map[string]bool, len(ignore))
	for _, name := range ignore {
		ignored[name] = true
	}
	return &DockerProbe{
		logger: logger.Named("probe-docker"),
		client: client,
		policy: policy,
		ignore: ignored,
	}
}

func (p *DockerProbe) ID() model.ProbeID { return "docker" }

func (p *DockerProbe) Collect(ctx context.Context) (Snapshot, error) {
	containers, err := p.client.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to list containers: %w", err)
	}

	now := time.Now()
	var conditions []ConditionSample

	for _, c := range containers {
		name := containerName(c)
		if name == "" || p.ignore[name] {
			continue
		}

		unhealthy := strings.Contains(c.Status, "(unhealthy)")
		restarting := c.State == "restarting"
		stopped := c.State == "exited"

		conditions = append(conditions,
			ConditionSample{
				Key:    model.ConditionKey("unhealthy:" + name),
				Sample: model.Sample{Value: boolValue(unhealthy), At: now},
				Policy: p.policy,
				Detail: fmt.Sprintf("📦 %s: %s", name, c.Status),
			},
			ConditionSample{
				Key:    model.ConditionKey("restarting:" + name),
				Sample: model.Sample{Value: boolValue(restarting), At: now},
				Policy: p.policy,
				Detail: fmt.Sprintf("📦 %s: %s", name, c.Status),
			},
			ConditionSample{
				Key:    model.ConditionKey("stopped:" + name),
				Sample: model.Sample{Value: boolValue(stopped), At: now},
				Policy: p.policy,
				Detail: fmt.Sprintf("📦 %s: %s", name, c.Status),
			},
		)
	}

	return Snapshot{Conditions: conditions}, nil
}

// Suggest offers a restart button for the container behind a breaching
// condition.
func (p *DockerProbe) Suggest(ctx context.Context, condition model.ConditionKey) []action.Proposal {
	parts := strings.SplitN(string(condition), ":", 2)
	if len(parts) != 2 {
		return nil
	}
	name := parts[1]

	return []action.Proposal{
		{
			Kind:    model.ActionRestart,
			Payload: name,
			Label:   fmt.Sprintf("🔄 Restart %s", truncateName(name, 20)),
		},
	}
}

func containerName(c types.Container) string {
	if len(c.Names) == 0 {
		return ""
	}
	return strings.TrimPrefix(c.Names[0], "/")
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
