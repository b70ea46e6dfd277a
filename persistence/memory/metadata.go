package memory

import (
	"sort"
	"sync"

	"github.com/mohitkumar/strand/definition"
	"github.com/mohitkumar/strand/metadata"
	"github.com/mohitkumar/strand/model"
	"github.com/mohitkumar/strand/persistence"
)

var _ metadata.Storage = new(metadataStorage)

type metadataStorage struct {
	mu         sync.RWMutex
	defs       map[string]definition.Document
	activities map[int]model.Activity
	lastID     int
}

func NewMetadataStorage() *metadataStorage {
	return &metadataStorage{
		defs:       make(map[string]definition.Document),
		activities: make(map[int]model.Activity),
	}
}

func defKey(name string, version string) string {
	return name + ":" + version
}

func (s *metadataStorage) SaveDefinition(doc definition.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defs[defKey(doc.Name, doc.Version)] = doc
	return nil
}

func (s *metadataStorage) GetDefinition(name string, version string) (*definition.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.defs[defKey(name, version)]
	if !ok {
		return nil, persistence.NotFoundError{Key: defKey(name, version)}
	}
	return &doc, nil
}

func (s *metadataStorage) ListDefinitions() ([]definition.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]definition.Document, 0, len(s.defs))
	for _, doc := range s.defs {
		out = append(out, doc)
	}
	sort.Slice(out, func(i, j int) bool {
		return defKey(out[i].Name, out[i].Version) < defKey(out[j].Name, out[j].Version)
	})
	return out, nil
}

func (s *metadataStorage) DeleteDefinition(name string, version string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.defs, defKey(name, version))
	return nil
}

func (s *metadataStorage) NextActivityID() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastID++
	return s.lastID, nil
}

func (s *metadataStorage) SaveActivity(activity model.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activities[activity.ID] = activity
	return nil
}

func (s *metadataStorage) GetActivity(id int) (*model.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.activities[id]
	if !ok {
		return nil, persistence.NotFoundError{Key: "activity"}
	}
	return &a, nil
}

func (s *metadataStorage) ListActivities() ([]model.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Activity, 0, len(s.activities))
	for _, a := range s.activities {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	return out, nil
}
