// Package promptstore is the default collab.PromptStore adapter: prompt
// templates are plain files on disk, one per logical name, whose first
// line carries a version tag that is lifted out before the body is sent to
// any provider.
package promptstore

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"chatcoach/internal/collab"
)

var versionTagRe = regexp.MustCompile(`^\[PROMPT:([^\]]+)\]\s*$`)

// FileStore reads "<dir>/<name>.txt" files lazily and caches them in
// memory; the prompt store is read-only per request so no invalidation
// logic is needed beyond a process restart.
type FileStore struct {
	dir   string
	mu    sync.RWMutex
	cache map[string]collab.PromptTemplate
}

// New creates a FileStore rooted at dir.
func New(dir string) *FileStore {
	return &FileStore{dir: dir, cache: make(map[string]collab.PromptTemplate)}
}

var _ collab.PromptStore = (*FileStore)(nil)

// Get implements collab.PromptStore.
func (s *FileStore) Get(_ context.Context, name string) (collab.PromptTemplate, error) {
	s.mu.RLock()
	if t, ok := s.cache[name]; ok {
		s.mu.RUnlock()
		return t, nil
	}
	s.mu.RUnlock()

	path := filepath.Join(s.dir, name+".txt")
	raw, err := os.ReadFile(path)
	if err != nil {
		return collab.PromptTemplate{}, fmt.Errorf("promptstore: read %s: %w", path, err)
	}

	text := string(raw)
	version := ""

	scanner := bufio.NewScanner(strings.NewReader(text))
	if scanner.Scan() {
		first := scanner.Text()
		if m := versionTagRe.FindStringSubmatch(first); m != nil {
			version = m[1]
			text = strings.TrimPrefix(text, first)
			text = strings.TrimPrefix(text, "\n")
		}
	}

	tpl := collab.PromptTemplate{Text: text, Version: version}

	s.mu.Lock()
	s.cache[name] = tpl
	s.mu.Unlock()

	return tpl, nil
}
