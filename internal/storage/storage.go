package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"fernando-live/internal/models"
)

type dataset struct {
	Creators   map[string]models.Creator        `json:"creators"`
	Streams    map[string]models.Stream         `json:"streams"`
	Categories map[string]models.StreamCategory `json:"categories"`
}

// Storage is the JSON-file-backed datastore. Every mutation rewrites the
// backing file atomically; a failed persist rolls the in-memory state back so
// readers never observe unpersisted data.
type Storage struct {
	mu       sync.RWMutex
	filePath string
	data     dataset
	clock    func() time.Time
	// persistOverride allows tests to intercept persist operations.
	persistOverride func(dataset) error
}

func newDataset() dataset {
	return dataset{
		Creators:   make(map[string]models.Creator),
		Streams:    make(map[string]models.Stream),
		Categories: make(map[string]models.StreamCategory),
	}
}

func (s *Storage) ensureDatasetInitializedLocked() {
	if s.data.Creators == nil {
		s.data.Creators = make(map[string]models.Creator)
	}
	if s.data.Streams == nil {
		s.data.Streams = make(map[string]models.Stream)
	}
	if s.data.Categories == nil {
		s.data.Categories = make(map[string]models.StreamCategory)
	}
}

// NewStorage opens (or creates) the datastore file at path.
func NewStorage(path string, opts ...Option) (*Storage, error) {
	store := &Storage{
		filePath: path,
		clock:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt.applyJSON(store)
		}
	}
	if err := store.load(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Storage) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.filePath), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	file, err := os.Open(s.filePath)
	if errors.Is(err, os.ErrNotExist) {
		s.data = newDataset()
		return nil
	} else if err != nil {
		return fmt.Errorf("open store file: %w", err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&s.data); err != nil {
		if errors.Is(err, io.EOF) {
			s.data = newDataset()
			return nil
		}
		return fmt.Errorf("decode store file: %w", err)
	}

	s.ensureDatasetInitializedLocked()
	return nil
}

func (s *Storage) persist() error {
	if s.persistOverride != nil {
		if err := s.persistOverride(s.data); err != nil {
			return err
		}
	}

	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, "store-*.json")
	if err != nil {
		return fmt.Errorf("create temp store file: %w", err)
	}
	tmpPath := tmpFile.Name()
	success := false
	defer func() {
		if !success {
			_ = tmpFile.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	encoder := json.NewEncoder(tmpFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(s.data); err != nil {
		return fmt.Errorf("encode store file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("flush store file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp store file: %w", err)
	}

	if err := os.Rename(tmpPath, s.filePath); err != nil {
		return fmt.Errorf("replace store file: %w", err)
	}
	success = true
	return nil
}

// Ping reports whether the backing file's directory is reachable.
func (s *Storage) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := os.Stat(filepath.Dir(s.filePath))
	return err
}

func (s *Storage) CreateCreator(params CreateCreatorParams) (models.Creator, error) {
	displayName := strings.TrimSpace(params.DisplayName)
	if displayName == "" {
		return models.Creator{}, fmt.Errorf("display name is required")
	}
	channelName := strings.TrimSpace(params.ChannelName)
	if channelName == "" {
		channelName = displayName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.data.Creators {
		if foldEqual(existing.ChannelName, channelName) {
			return models.Creator{}, ErrDuplicateName
		}
	}

	creator := models.Creator{
		ID:          newID(),
		DisplayName: displayName,
		ChannelName: channelName,
		Status:      models.CreatorActive,
		CreatedAt:   s.clock(),
	}
	s.data.Creators[creator.ID] = creator
	if err := s.persist(); err != nil {
		delete(s.data.Creators, creator.ID)
		return models.Creator{}, err
	}
	return creator, nil
}

func (s *Storage) GetCreator(id string) (models.Creator, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	creator, ok := s.data.Creators[id]
	return creator, ok
}

func (s *Storage) ListCreators() []models.Creator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	creators := make([]models.Creator, 0, len(s.data.Creators))
	for _, creator := range s.data.Creators {
		creators = append(creators, creator)
	}
	sort.Slice(creators, func(i, j int) bool { return creators[i].ChannelName < creators[j].ChannelName })
	return creators
}

func (s *Storage) SetCreatorStatus(id string, status models.CreatorStatus) (models.Creator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	creator, ok := s.data.Creators[id]
	if !ok {
		return models.Creator{}, ErrCreatorNotFound
	}
	previous := creator
	creator.Status = status
	s.data.Creators[id] = creator
	if err := s.persist(); err != nil {
		s.data.Creators[id] = previous
		return models.Creator{}, err
	}
	return creator, nil
}

func (s *Storage) CreateCategory(name string) (models.StreamCategory, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return models.StreamCategory{}, fmt.Errorf("category name is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	slug := slugify(trimmed)
	for _, existing := range s.data.Categories {
		if existing.Slug == slug {
			return models.StreamCategory{}, ErrDuplicateName
		}
	}

	category := models.StreamCategory{
		ID:        newID(),
		Name:      trimmed,
		Slug:      slug,
		CreatedAt: s.clock(),
	}
	s.data.Categories[category.ID] = category
	if err := s.persist(); err != nil {
		delete(s.data.Categories, category.ID)
		return models.StreamCategory{}, err
	}
	return category, nil
}

func (s *Storage) GetCategory(id string) (models.StreamCategory, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	category, ok := s.data.Categories[id]
	return category, ok
}

func (s *Storage) ListCategories() []models.StreamCategory {
	s.mu.RLock()
	defer s.mu.RUnlock()
	categories := make([]models.StreamCategory, 0, len(s.data.Categories))
	for _, category := range s.data.Categories {
		categories = append(categories, category)
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i].Name < categories[j].Name })
	return categories
}

func slugify(name string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}
