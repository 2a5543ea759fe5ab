package probe

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
	"go.uber.org/zap"

	"github.com/t77yq/hostwatch/internal/action"
	"github.com/t77yq/hostwatch/internal/model"
)

// maxDeleteButtons caps the number of delete buttons rendered per alert.
const maxDeleteButtons = 10

const ConditionDiskUsage model.ConditionKey = "usage"

// DiskConfig configures the disk probe.
type DiskConfig struct {
	// Mount is the filesystem to watch, e.g. "/".
	Mount  string
	Policy model.Policy

	// DownloadsPath is scanned for deletion candidates when usage breaches.
	DownloadsPath string

	// MinEntrySize filters out entries too small to be worth deleting.
	MinEntrySize int64

	// Exclude names entries that must never be offered for deletion.
	Exclude []string
}

// DiskProbe samples filesystem usage and, when the threshold is breached,
// proposes the largest entries under the downloads path for deletion.
type DiskProbe struct {
	logger *zap.Logger

	mu  sync.RWMutex
	cfg DiskConfig
}

// NewDiskProbe creates a disk usage probe.
func NewDiskProbe(logger *zap.Logger, cfg DiskConfig) *DiskProbe {
	return &DiskProbe{
		logger: logger.Named("probe-disk"),
		cfg:    cfg,
	}
}

func (p *DiskProbe) ID() model.ProbeID { return "disk" }

// SetConfig swaps the probe configuration, for config hot-reload.
func (p *DiskProbe) SetConfig(cfg DiskConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg = cfg
}

func (p *DiskProbe) config() DiskConfig {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg
}

func (p *DiskProbe) Collect(ctx context.Context) (Snapshot, error) {
	cfg := p.config()

	usage, err := disk.UsageWithContext(ctx, cfg.Mount)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read disk usage for %s: %w", cfg.Mount, err)
	}

	return Snapshot{
		Conditions: []ConditionSample{
			{
				Key:    ConditionDiskUsage,
				Sample: model.Sample{Value: usage.UsedPercent, At: time.Now()},
				Policy: cfg.Policy,
				Detail: fmt.Sprintf("Disk %s: %.1f%% used (%s free)",
					cfg.Mount, usage.UsedPercent, humanSize(int64(usage.Free))),
			},
		},
	}, nil
}

// dirEntry is a deletion candidate with its total size.
type dirEntry struct {
	name string
	path string
	size int64
}

// Suggest lists the largest entries under the downloads path as delete
// proposals, biggest first, capped at maxDeleteButtons.
func (p *DiskProbe) Suggest(ctx context.Context, condition model.ConditionKey) []action.Proposal {
	cfg := p.config()
	if condition != ConditionDiskUsage || cfg.DownloadsPath == "" {
		return nil
	}

	entries, err := p.listEntries(ctx, cfg)
	if err != nil {
		p.logger.Warn("Failed to list deletion candidates",
			zap.String("path", cfg.DownloadsPath),
			zap.Error(err))
		return nil
	}

	if len(entries) > maxDeleteButtons {
		entries = entries[:maxDeleteButtons]
	}

	proposals := make([]action.Proposal, 0, len(entries))
	for _, entry := range entries {
		proposals = append(proposals, action.Proposal{
			Kind:    model.ActionDelete,
			Payload: entry.path,
			Label:   fmt.Sprintf("🗑 %s (%s)", truncateName(entry.name, 20), humanSize(entry.size)),
		})
	}
	return proposals
}

func (p *DiskProbe) listEntries(ctx context.Context, cfg DiskConfig) ([]dirEntry, error) {
	dirents, err := os.ReadDir(cfg.DownloadsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", cfg.DownloadsPath, err)
	}

	excluded := make(map[string]bool, len(cfg.Exclude))
	for _, name := range cfg.Exclude {
		excluded[name] = true
	}

	var entries []dirEntry
	for _, d := range dirents {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if excluded[d.Name()] {
			continue
		}

		path := filepath.Join(cfg.DownloadsPath, d.Name())
		size, err := entrySize(path, d)
		if err != nil {
			p.logger.Debug("Skipping unreadable entry", zap.String("path", path), zap.Error(err))
			continue
		}
		if size < cfg.MinEntrySize {
			continue
		}

		entries = append(entries, dirEntry{name: d.Name(), path: path, size: size})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].size > entries[j].size })
	return entries, nil
}

// entrySize returns a file's size, or the recursive total for a directory.
func entrySize(path string, d os.DirEntry) (int64, error) {
	if !d.IsDir() {
		info, err := d.Info()
		if err != nil {
			return 0, err
		}
		return info.Size(), nil
	}

	var total int64
	err := filepath.WalkDir(path, func(_ string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	return total, err
}

func truncateName(name string, max int) string {
	if len(name) <= max {
		return name
	}
	return name[:max]
}
