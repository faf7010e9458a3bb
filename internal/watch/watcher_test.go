package watch

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/forge3d/assetvault/internal/files"
)

func TestLibraryWatcherReportsBlendChanges(t *testing.T) {
	root := t.TempDir()
	layout := files.NewLayout(root)

	variantDir := layout.LibraryDir("Sword", "Base", "mesh")
	require.NoError(t, os.MkdirAll(variantDir, 0o755))

	var (
		mu      sync.Mutex
		batches [][]string
	)
	watcher, err := NewLibraryWatcher(layout, nil, func(changed []string) error {
		mu.Lock()
		defer mu.Unlock()
		batches = append(batches, changed)
		return nil
	}, zap.NewNop())
	require.NoError(t, err)
	defer watcher.Stop()

	require.NoError(t, watcher.Start())
	time.Sleep(200 * time.Millisecond)

	blend := filepath.Join(variantDir, "Sword.v001.blend")
	require.NoError(t, os.WriteFile(blend, []byte("geometry"), 0o644))

	// Wait out the debounce interval.
	time.Sleep(600 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, batches)
	assert.Contains(t, batches[0], blend)
}

func TestLibraryWatcherIgnoresTempFiles(t *testing.T) {
	root := t.TempDir()
	layout := files.NewLayout(root)

	variantDir := layout.LibraryDir("Sword", "Base", "mesh")
	require.NoError(t, os.MkdirAll(variantDir, 0o755))

	var (
		mu      sync.Mutex
		batches [][]string
	)
	watcher, err := NewLibraryWatcher(layout, nil, func(changed []string) error {
		mu.Lock()
		defer mu.Unlock()
		batches = append(batches, changed)
		return nil
	}, zap.NewNop())
	require.NoError(t, err)
	defer watcher.Stop()

	require.NoError(t, watcher.Start())
	time.Sleep(200 * time.Millisecond)

	tmp := filepath.Join(variantDir, "Sword.v001.json.tmp")
	require.NoError(t, os.WriteFile(tmp, []byte("{}"), 0o644))

	time.Sleep(600 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, batches)
}

func TestDebouncerBatchesAdds(t *testing.T) {
	var (
		mu      sync.Mutex
		batches [][]string
	)
	d := NewDebouncer(50 * time.Millisecond)
	defer d.Stop()
	d.SetCallback(func(changed []string) {
		mu.Lock()
		defer mu.Unlock()
		batches = append(batches, changed)
	})

	d.Add("a.blend")
	d.Add("b.blend")
	d.Add("a.blend")

	time.Sleep(150 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, batches, 1)
	assert.ElementsMatch(t, []string{"a.blend", "b.blend"}, batches[0])
}
