package tools

import (
	"sort"
	"sync"
)

// TouchedSet tracks workspace-relative paths mutated during a run. The
// verifier scopes its checks to this set and the sandbox merge copies only
// these paths back.
type TouchedSet struct {
	mu    sync.Mutex
	paths map[string]bool
}

// NewTouchedSet creates an empty touched-path set.
func NewTouchedSet() *TouchedSet {
	return &TouchedSet{paths: make(map[string]bool)}
}

// Add records a mutated path.
func (t *TouchedSet) Add(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.paths[path] = true
}

// Paths returns the touched paths, sorted.
func (t *TouchedSet) Paths() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	result := make([]string, 0, len(t.paths))
	for p := range t.paths {
		result = append(result, p)
	}
	sort.Strings(result)
	return result
}

// Len returns the number of touched paths.
func (t *TouchedSet) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.paths)
}
