// Package collection persists the playlist collection (Collection.json) and
// user settings (settings.json) in a data directory.
package collection

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/voyagen/mbient/internal/models"
)

const (
	collectionFile = "Collection.json"
	settingsFile   = "settings.json"
	lockFile       = ".mbient.lock"
)

// Store reads and writes the JSON documents under Dir.
// DefaultHost ("host:port") resolves collection URLs that are not absolute.
type Store struct {
	Dir         string
	DefaultHost string
}

// New returns a Store rooted at dir.
func New(dir, defaultHost string) *Store {
	return &Store{Dir: dir, DefaultHost: defaultHost}
}

// LoadItems returns the raw collection records sorted by order.
// A missing Collection.json yields an empty collection.
func (s *Store) LoadItems() ([]models.CollectionItem, error) {
	var items []models.CollectionItem
	if err := s.readJSON(collectionFile, &items); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []models.CollectionItem{}, nil
		}
		return nil, err
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Order < items[j].Order })
	return items, nil
}

// MenuItems returns the collection with every URL resolved to an absolute playlist URL.
func (s *Store) MenuItems() ([]models.MenuItem, error) {
	items, err := s.LoadItems()
	if err != nil {
		return nil, err
	}
	menu := make([]models.MenuItem, 0, len(items))
	for _, it := range items {
		menu = append(menu, models.MenuItem{
			Name:  it.Name,
			URL:   s.ResolveURL(it.URL),
			Order: it.Order,
		})
	}
	return menu, nil
}

// ResolveURL turns a collection URL into an absolute one. URLs starting
// with "http" are returned as-is; anything else is appended to DefaultHost.
func (s *Store) ResolveURL(u string) string {
	if strings.HasPrefix(u, "http") {
		return u
	}
	if s.DefaultHost == "" {
		return u
	}
	if !strings.HasPrefix(u, "/") {
		u = "/" + u
	}
	return "http://" + s.DefaultHost + u
}

// NameFor returns the collection name of the entry whose resolved URL is sourceURL, or "".
func (s *Store) NameFor(sourceURL string) string {
	menu, err := s.MenuItems()
	if err != nil {
		return ""
	}
	for _, m := range menu {
		if m.URL == sourceURL {
			return m.Name
		}
	}
	return ""
}

// SaveItems writes items in the given order. Order fields are renumbered
// from zero and entries without an id get a new UUID.
func (s *Store) SaveItems(items []models.CollectionItem) ([]models.CollectionItem, error) {
	out := make([]models.CollectionItem, len(items))
	for i, it := range items {
		if strings.TrimSpace(it.Name) == "" || strings.TrimSpace(it.URL) == "" {
			return nil, fmt.Errorf("collection item %d: name and url are required", i)
		}
		it.Order = i
		if it.ID == "" {
			it.ID = uuid.NewString()
		}
		out[i] = it
	}
	if err := s.writeJSON(collectionFile, out); err != nil {
		return nil, err
	}
	return out, nil
}

// LoadSettings returns the stored settings, or defaults when settings.json is missing or unreadable.
func (s *Store) LoadSettings() models.Settings {
	var st models.Settings
	if err := s.readJSON(settingsFile, &st); err != nil {
		return models.Settings{}
	}
	return st
}

// SaveSettings writes settings.json.
func (s *Store) SaveSettings(st models.Settings) error {
	return s.writeJSON(settingsFile, st)
}

func (s *Store) readJSON(name string, v any) error {
	data, err := os.ReadFile(filepath.Join(s.Dir, name))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

// writeJSON replaces name atomically while holding the data directory lock.
func (s *Store) writeJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	lock := flock.New(filepath.Join(s.Dir, lockFile))
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock data dir: %w", err)
	}
	defer lock.Unlock() //nolint:errcheck

	tmp, err := os.CreateTemp(s.Dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := os.Rename(tmpName, filepath.Join(s.Dir, name)); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}
