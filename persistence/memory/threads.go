package memory

import (
	"sort"
	"sync"

	"github.com/mohitkumar/strand/model"
	"github.com/mohitkumar/strand/persistence"
)

var _ persistence.ThreadStorage = new(threadStorage)

type threadStorage struct {
	mu      sync.RWMutex
	threads map[int]map[string]*model.ActivityThread
}

func NewThreadStorage() *threadStorage {
	return &threadStorage{
		threads: make(map[int]map[string]*model.ActivityThread),
	}
}

func (s *threadStorage) Get(activityID int, domainID string) (*model.ActivityThread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.threads[activityID][domainID]
	if !ok {
		return nil, persistence.NotFoundError{Key: model.ThreadKey(activityID, domainID)}
	}
	return t.Clone(), nil
}

func (s *threadStorage) MultiGet(activityID int, domainIDs []string) (map[string]*model.ActivityThread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*model.ActivityThread, len(domainIDs))
	for _, id := range domainIDs {
		if t, ok := s.threads[activityID][id]; ok {
			out[id] = t.Clone()
		}
	}
	return out, nil
}

func (s *threadStorage) List(activityID int) ([]*model.ActivityThread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.ActivityThread, 0, len(s.threads[activityID]))
	for _, t := range s.threads[activityID] {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].DomainID < out[j].DomainID
	})
	return out, nil
}

func (s *threadStorage) Insert(thread *model.ActivityThread) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.threads[thread.ActivityID][thread.DomainID]; ok {
		return persistence.AlreadyExistsError{Key: thread.Key()}
	}
	s.put(thread)
	return nil
}

func (s *threadStorage) Upsert(thread *model.ActivityThread) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(thread)
	return nil
}

func (s *threadStorage) BatchUpsert(threads []*model.ActivityThread) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range threads {
		s.put(t)
	}
	return nil
}

func (s *threadStorage) Delete(activityID int, domainID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.threads[activityID], domainID)
	return nil
}

func (s *threadStorage) put(thread *model.ActivityThread) {
	byDomain, ok := s.threads[thread.ActivityID]
	if !ok {
		byDomain = make(map[string]*model.ActivityThread)
		s.threads[thread.ActivityID] = byDomain
	}
	byDomain[thread.DomainID] = thread.Clone()
}
