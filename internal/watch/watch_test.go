package watch

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActivityWatcherReportsWrittenFile(t *testing.T) {
	root := t.TempDir()
	var buf safeBuffer

	w := NewActivityWatcher()
	stop, err := w.Start(root, &buf)
	require.NoError(t, err)
	defer stop()

	target := filepath.Join(root, "hello.txt")
	require.NoError(t, os.WriteFile(target, []byte("hi"), 0o644))

	require.Eventually(t, func() bool {
		return strings.Contains(buf.String(), "hello.txt")
	}, 2*time.Second, 20*time.Millisecond)
}

func TestActivityWatcherIgnoresGitDir(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))
	var buf safeBuffer

	w := NewActivityWatcher()
	stop, err := w.Start(root, &buf)
	require.NoError(t, err)
	defer stop()

	require.NoError(t, os.WriteFile(filepath.Join(root, ".git", "index"), []byte("x"), 0o644))
	time.Sleep(DefaultDebounce + 100*time.Millisecond)

	assert.NotContains(t, buf.String(), "index")
}

func TestActivityWatcherDebouncesRapidWrites(t *testing.T) {
	root := t.TempDir()
	var buf safeBuffer

	w := &ActivityWatcher{debounce: 50 * time.Millisecond, ignore: []string{".git"}}
	stop, err := w.Start(root, &buf)
	require.NoError(t, err)
	defer stop()

	target := filepath.Join(root, "burst.txt")
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))
		time.Sleep(5 * time.Millisecond)
	}

	time.Sleep(200 * time.Millisecond)
	stop()

	lines := strings.Count(buf.String(), "burst.txt")
	assert.LessOrEqual(t, lines, 2)
}

// safeBuffer guards bytes.Buffer with a mutex since fsnotify delivery and
// test assertions run concurrently.
type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *safeBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *safeBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}
