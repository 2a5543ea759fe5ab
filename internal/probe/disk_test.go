package probe

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/t77yq/hostwatch/internal/model"
)

func writeFileOfSize(t *testing.T, path string, size int) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
}

func newDiskProbe(t *testing.T, cfg DiskConfig) *DiskProbe {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	return NewDiskProbe(logger, cfg)
}

func TestDiskProbe_SuggestLargestFirst(t *testing.T) {
	downloads := t.TempDir()
	writeFileOfSize(t, filepath.Join(downloads, "small.iso"), 100)
	writeFileOfSize(t, filepath.Join(downloads, "big.iso"), 5000)
	writeFileOfSize(t, filepath.Join(downloads, "medium.iso"), 1000)

	p := newDiskProbe(t, DiskConfig{Mount: "/", DownloadsPath: downloads})

	proposals := p.Suggest(context.Background(), ConditionDiskUsage)
	require.Len(t, proposals, 3)
	require.Equal(t, filepath.Join(downloads, "big.iso"), proposals[0].Payload)
	require.Equal(t, filepath.Join(downloads, "medium.iso"), proposals[1].Payload)
	require.Equal(t, filepath.Join(downloads, "small.iso"), proposals[2].Payload)
	require.Equal(t, model.ActionDelete, proposals[0].Kind)
	require.Contains(t, proposals[0].Label, "big.iso")
}

func TestDiskProbe_SuggestCountsDirectoriesRecursively(t *testing.T) {
	downloads := t.TempDir()
	season := filepath.Join(downloads, "season1")
	require.NoError(t, os.MkdirAll(season, 0o755))
	writeFileOfSize(t, filepath.Join(season, "ep1.mkv"), 3000)
	writeFileOfSize(t, filepath.Join(season, "ep2.mkv"), 3000)
	writeFileOfSize(t, filepath.Join(downloads, "lone.iso"), 4000)

	p := newDiskProbe(t, DiskConfig{Mount: "/", DownloadsPath: downloads})

	proposals := p.Suggest(context.Background(), ConditionDiskUsage)
	require.Len(t, proposals, 2)
	// 6000 bytes of episodes beat the 4000 byte file.
	require.Equal(t, season, proposals[0].Payload)
}

func TestDiskProbe_SuggestFilters(t *testing.T) {
	downloads := t.TempDir()
	writeFileOfSize(t, filepath.Join(downloads, "tiny.srt"), 10)
	writeFileOfSize(t, filepath.Join(downloads, "keep-me.iso"), 5000)
	writeFileOfSize(t, filepath.Join(downloads, "movie.iso"), 5000)

	p := newDiskProbe(t, DiskConfig{
		Mount:         "/",
		DownloadsPath: downloads,
		MinEntrySize:  1000,
		Exclude:       []string{"keep-me.iso"},
	})

	proposals := p.Suggest(context.Background(), ConditionDiskUsage)
	require.Len(t, proposals, 1)
	require.Equal(t, filepath.Join(downloads, "movie.iso"), proposals[0].Payload)
}

func TestDiskProbe_SuggestCapsButtons(t *testing.T) {
	downloads := t.TempDir()
	for i := 0; i < 15; i++ {
		writeFileOfSize(t, filepath.Join(downloads, string(rune('a'+i))+".iso"), 1000+i)
	}

	p := newDiskProbe(t, DiskConfig{Mount: "/", DownloadsPath: downloads})

	proposals := p.Suggest(context.Background(), ConditionDiskUsage)
	require.Len(t, proposals, maxDeleteButtons)
}

func TestDiskProbe_SuggestIgnoresOtherConditions(t *testing.T) {
	p := newDiskProbe(t, DiskConfig{Mount: "/", DownloadsPath: t.TempDir()})

	require.Nil(t, p.Suggest(context.Background(), "ram"))
}

func TestDiskProbe_CollectReportsUsage(t *testing.T) {
	p := newDiskProbe(t, DiskConfig{
		Mount:  "/",
		Policy: model.Policy{Threshold: 80},
	})

	snap, err := p.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Conditions, 1)
	require.Equal(t, ConditionDiskUsage, snap.Conditions[0].Key)
	require.GreaterOrEqual(t, snap.Conditions[0].Sample.Value, 0.0)
	require.LessOrEqual(t, snap.Conditions[0].Sample.Value, 100.0)
}
