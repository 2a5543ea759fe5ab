package executor

import (
	"context"
	"fmt"
	"os"

	"github.com/docker/docker/api/types/container"
	"go.uber.org/zap"

	"github.com/t77yq/hostwatch/internal/model"
)

// DockerClient is the slice of the Docker API the restart action needs.
// *client.Client satisfies it.
type DockerClient interface {
	ContainerRestart(ctx context.Context, containerID string, options container.StopOptions) error
}

// HostExecutor performs confirmed actions on the monitored host: deleting
// paths on the filesystem and restarting Docker containers. Path containment
// is checked before an action reaches the executor; by the time Execute runs
// the action is considered authorized.
type HostExecutor struct {
	logger *zap.Logger
	docker DockerClient
}

// NewHostExecutor creates a host executor. docker may be nil when no Docker
// daemon is configured; restart actions then fail with a clear message.
func NewHostExecutor(logger *zap.Logger, docker DockerClient) *HostExecutor {
	return &HostExecutor{
		logger: logger.Named("executor"),
		docker: docker,
	}
}

// Execute runs one action and reports the outcome. The message is shown to
// the operator verbatim; errors never propagate past this boundary.
func (e *HostExecutor) Execute(ctx context.Context, kind model.ActionKind, payload string) model.ActionResult {
	switch kind {
	case model.ActionDelete:
		return e.deletePath(payload)
	case model.ActionRestart:
		return e.restartContainer(ctx, payload)
	default:
		return model.ActionResult{Message: fmt.Sprintf("Unsupported action: %s", kind)}
	}
}

func (e *HostExecutor) deletePath(path string) model.ActionResult {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return model.ActionResult{Message: fmt.Sprintf("Path does not exist: %s", path)}
		}
		return model.ActionResult{Message: fmt.Sprintf("Failed to inspect %s: %v", path, err)}
	}

	if err := os.RemoveAll(path); err != nil {
		e.logger.Error("Delete failed", zap.String("path", path), zap.Error(err))
		return model.ActionResult{Message: fmt.Sprintf("Failed to delete %s: %v", path, err)}
	}

	e.logger.Info("Deleted path", zap.String("path", path))
	return model.ActionResult{OK: true, Message: fmt.Sprintf("Successfully deleted: %s", path)}
}

func (e *HostExecutor) restartContainer(ctx context.Context, name string) model.ActionResult {
	if e.docker == nil {
		return model.ActionResult{Message: "Docker is not configured on this host"}
	}

	if err := e.docker.ContainerRestart(ctx, name, container.StopOptions{}); err != nil {
		e.logger.Error("Container restart failed", zap.String("container", name), zap.Error(err))
		return model.ActionResult{Message: fmt.Sprintf("Failed to restart %s: %v", name, err)}
	}

	e.logger.Info("Restarted container", zap.String("container", name))
	return model.ActionResult{OK: true, Message: fmt.Sprintf("Restarted container: %s", name)}
}
