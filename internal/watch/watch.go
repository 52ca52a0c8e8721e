// Package watch provides a purely observational file-activity logger for a
// task's worktree while the executor runs in it. It never influences
// control flow — it exists only to interleave "what changed, when" into a
// task's log alongside the executor's own stdout/stderr.
//
// Grounded on the teacher's internal/behavioral/filewatcher.go: an
// fsnotify.Watcher walked recursively over a root directory, with rapid
// repeated writes to the same path coalesced by a short debounce window.
package watch

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces bursts of writes to the same path.
const DefaultDebounce = 150 * time.Millisecond

// ActivityWatcher logs created/written/removed events under a directory
// tree to an io.Writer for the lifetime of a single process-runner call.
type ActivityWatcher struct {
	debounce time.Duration
	ignore   []string // path components to skip, e.g. ".git"
}

// NewActivityWatcher constructs a watcher that skips the given directory
// names (matched by base name) anywhere in the tree, e.g. ".git".
func NewActivityWatcher(ignoreDirs ...string) *ActivityWatcher {
	if len(ignoreDirs) == 0 {
		ignoreDirs = []string{".git"}
	}
	return &ActivityWatcher{debounce: DefaultDebounce, ignore: ignoreDirs}
}

// Start begins watching root recursively, writing one line per coalesced
// event to w, until the returned stop function is called. Start returns an
// error only if the initial recursive watch setup fails; callers treat that
// as non-fatal (the watcher is defense-in-depth, not a control signal).
func (a *ActivityWatcher) Start(root string, w io.Writer) (stop func(), err error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if walkErr := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if a.shouldIgnore(path) {
				return filepath.SkipDir
			}
			_ = fsw.Add(path)
		}
		return nil
	}); walkErr != nil {
		fsw.Close()
		return nil, walkErr
	}

	done := make(chan struct{})
	var mu sync.Mutex
	timers := make(map[string]*time.Timer)

	flush := func(path, op string) {
		fmt.Fprintf(w, "[watch %s] %s %s\n", time.Now().Format("15:04:05"), op, strings.TrimPrefix(path, root+string(filepath.Separator)))
	}

	go func() {
		for {
			select {
			case ev, ok := <-fsw.Events:
				if !ok {
					return
				}
				if a.shouldIgnore(ev.Name) {
					continue
				}
				op := opName(ev.Op)
				if op == "" {
					continue
				}
				if ev.Op&fsnotify.Create != 0 {
					if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
						_ = fsw.Add(ev.Name)
					}
				}

				mu.Lock()
				key := ev.Name
				if t, exists := timers[key]; exists {
					t.Stop()
				}
				timers[key] = time.AfterFunc(a.debounce, func() { flush(ev.Name, op) })
				mu.Unlock()
			case <-fsw.Errors:
				// Observational only: watcher errors never fail the task.
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		mu.Lock()
		for _, t := range timers {
			t.Stop()
		}
		mu.Unlock()
		fsw.Close()
	}, nil
}

func (a *ActivityWatcher) shouldIgnore(path string) bool {
	for _, seg := range strings.Split(filepath.ToSlash(path), "/") {
		for _, ig := range a.ignore {
			if seg == ig {
				return true
			}
		}
	}
	return false
}

func opName(op fsnotify.Op) string {
	switch {
	case op&fsnotify.Create != 0:
		return "created"
	case op&fsnotify.Write != 0:
		return "written"
	case op&fsnotify.Remove != 0:
		return "removed"
	case op&fsnotify.Rename != 0:
		return "renamed"
	default:
		return ""
	}
}
