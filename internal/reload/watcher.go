// Package reload detects edits of the configuration documents by polling
// their size and modification time.
package reload

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
)

// stamp is what a document looked like when it was last loaded.
type stamp struct {
	modTime time.Time
	size    int64
}

func stampOf(info os.FileInfo) stamp {
	return stamp{modTime: info.ModTime(), size: info.Size()}
}

// outdatedBy reports whether the document behind info was rewritten after s
// was taken.
func (s stamp) outdatedBy(info os.FileInfo) bool {
	return info.ModTime().After(s.modTime) || info.Size() != s.size
}

// Watcher remembers the business and UI documents a manager was built from.
// A nil Watcher watches nothing.
type Watcher struct {
	mu      sync.Mutex
	tracked map[string]stamp
}

// NewWatcher stamps paths. Paths that do not name a regular file are ignored.
func NewWatcher(paths ...string) (*Watcher, error) {
	w := &Watcher{}
	if err := w.Update(paths...); err != nil {
		return nil, err
	}
	return w, nil
}

// Update forgets the previous stamps and stamps paths again. It is called
// after every reload attempt so an unchanged broken document is not reloaded.
func (w *Watcher) Update(paths ...string) error {
	if w == nil {
		return nil
	}
	docs, err := documentPaths(paths)
	if err != nil {
		return err
	}
	tracked := make(map[string]stamp, len(docs))
	for _, doc := range docs {
		info, err := os.Stat(doc)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		tracked[doc] = stampOf(info)
	}
	w.mu.Lock()
	w.tracked = tracked
	w.mu.Unlock()
	return nil
}

// Files lists the watched documents as absolute paths.
func (w *Watcher) Files() []string {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sortedLocked()
}

// Check lists the documents that were rewritten or removed since the last
// Update. Stamps are left alone; the caller decides when to Update.
func (w *Watcher) Check() ([]string, error) {
	if w == nil {
		return nil, nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	var changed []string
	for _, doc := range w.sortedLocked() {
		info, err := os.Stat(doc)
		switch {
		case err != nil:
			changed = append(changed, doc)
		case info.IsDir():
		case w.tracked[doc].outdatedBy(info):
			changed = append(changed, doc)
		}
	}
	if changed == nil {
		changed = []string{}
	}
	return changed, nil
}

func (w *Watcher) sortedLocked() []string {
	docs := make([]string, 0, len(w.tracked))
	for doc := range w.tracked {
		docs = append(docs, doc)
	}
	slices.Sort(docs)
	return docs
}

// documentPaths makes paths absolute and drops blanks and duplicates, keeping
// the first occurrence. A relative and an absolute spelling of one document
// count as duplicates.
func documentPaths(paths []string) ([]string, error) {
	docs := make([]string, 0, len(paths))
	for _, path := range paths {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", path, err)
		}
		if !slices.Contains(docs, abs) {
			docs = append(docs, abs)
		}
	}
	return docs, nil
}
