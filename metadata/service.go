package metadata

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/mohitkumar/strand/clock"
	"github.com/mohitkumar/strand/definition"
	"github.com/mohitkumar/strand/expression"
	"github.com/mohitkumar/strand/logger"
	"github.com/mohitkumar/strand/model"
	"go.uber.org/zap"
)

type DefinitionExistsError struct {
	Name    string
	Version string
}

func (e DefinitionExistsError) Error() string {
	return fmt.Sprintf("definition %s:%s already exists", e.Name, e.Version)
}

type DefinitionNotFoundError struct {
	Name    string
	Version string
}

func (e DefinitionNotFoundError) Error() string {
	return fmt.Sprintf("definition %s:%s not found", e.Name, e.Version)
}

type ActivityNotFoundError struct {
	ID int
}

func (e ActivityNotFoundError) Error() string {
	return fmt.Sprintf("activity %d not found", e.ID)
}

// Service owns the built definitions and the activities. Only definitions
// that pass Build are ever stored or served.
type Service struct {
	storage    Storage
	checker    definition.ComponentChecker
	evaluator  expression.Evaluator
	source     clock.Source
	mu         sync.RWMutex
	defs       map[string]map[string]*definition.ActivityDefinition
	activities map[int]*model.Activity
}

func NewService(storage Storage, checker definition.ComponentChecker, evaluator expression.Evaluator, source clock.Source) *Service {
	return &Service{
		storage:    storage,
		checker:    checker,
		evaluator:  evaluator,
		source:     source,
		defs:       make(map[string]map[string]*definition.ActivityDefinition),
		activities: make(map[int]*model.Activity),
	}
}

// Load rebuilds every stored definition and caches the stored activities.
// Documents that no longer build are skipped and logged.
func (s *Service) Load() error {
	docs, err := s.storage.ListDefinitions()
	if err != nil {
		return err
	}
	for i := range docs {
		def, err := definition.Build(&docs[i], s.checker, s.evaluator)
		if err != nil {
			logger.Error("skipping stored definition", zap.String("definition", docs[i].Name), zap.String("version", docs[i].Version), zap.Error(err))
			continue
		}
		s.put(def)
	}
	activities, err := s.storage.ListActivities()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range activities {
		a := activities[i]
		s.activities[a.ID] = &a
	}
	logger.Info("metadata loaded", zap.Int("definitions", len(docs)), zap.Int("activities", len(activities)))
	return nil
}

// LoadDir adds every yaml definition found in dir. Definitions already
// stored are left untouched.
func (s *Service) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return err
		}
		_, err = s.AddDefinition(data)
		if err != nil {
			if _, ok := err.(DefinitionExistsError); ok {
				continue
			}
			return fmt.Errorf("%s: %w", e.Name(), err)
		}
	}
	return nil
}

func (s *Service) AddDefinition(raw []byte) (*definition.ActivityDefinition, error) {
	doc, err := definition.Parse(raw)
	if err != nil {
		return nil, err
	}
	return s.AddDocument(doc)
}

func (s *Service) AddDocument(doc *definition.Document) (*definition.ActivityDefinition, error) {
	if _, ok := s.Definition(doc.Name, doc.Version); ok {
		return nil, DefinitionExistsError{Name: doc.Name, Version: doc.Version}
	}
	if doc.CreatedOn == 0 {
		doc.CreatedOn = clock.Millis(s.source)
	}
	def, err := definition.Build(doc, s.checker, s.evaluator)
	if err != nil {
		return nil, err
	}
	if err := s.storage.SaveDefinition(*doc); err != nil {
		return nil, err
	}
	s.put(def)
	logger.Info("definition added", zap.String("definition", def.Name), zap.String("version", def.Version), zap.Bool("enable", def.Enable))
	return def, nil
}

func (s *Service) EnableDefinition(name string, version string) error {
	return s.setEnable(name, version, true)
}

func (s *Service) DisableDefinition(name string, version string) error {
	return s.setEnable(name, version, false)
}

func (s *Service) setEnable(name string, version string, enable bool) error {
	def, ok := s.Definition(name, version)
	if !ok {
		return DefinitionNotFoundError{Name: name, Version: version}
	}
	doc, err := s.storage.GetDefinition(name, version)
	if err != nil {
		return err
	}
	doc.Enable = enable
	if err := s.storage.SaveDefinition(*doc); err != nil {
		return err
	}
	s.put(def.WithEnable(enable))
	return nil
}

func (s *Service) DeleteDefinition(name string, version string) error {
	if _, ok := s.Definition(name, version); !ok {
		return DefinitionNotFoundError{Name: name, Version: version}
	}
	if err := s.storage.DeleteDefinition(name, version); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.defs[name], version)
	return nil
}

func (s *Service) Definition(name string, version string) (*definition.ActivityDefinition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.defs[name][version]
	return def, ok
}

// Latest returns the enabled version of name created last.
func (s *Service) Latest(name string) (*definition.ActivityDefinition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *definition.ActivityDefinition
	for _, def := range s.defs[name] {
		if !def.Enable {
			continue
		}
		if latest == nil || def.CreatedOn > latest.CreatedOn ||
			(def.CreatedOn == latest.CreatedOn && def.Version > latest.Version) {
			latest = def
		}
	}
	return latest, latest != nil
}

func (s *Service) Definitions() []*definition.ActivityDefinition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*definition.ActivityDefinition
	for _, versions := range s.defs {
		for _, def := range versions {
			out = append(out, def)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Version < out[j].Version
	})
	return out
}

func (s *Service) put(def *definition.ActivityDefinition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	versions, ok := s.defs[def.Name]
	if !ok {
		versions = make(map[string]*definition.ActivityDefinition)
		s.defs[def.Name] = versions
	}
	versions[def.Version] = def
}

func (s *Service) CreateActivity(displayName string, definitionName string, config map[string]any) (*model.Activity, error) {
	if _, ok := s.Latest(definitionName); !ok {
		return nil, fmt.Errorf("no enabled definition named %s", definitionName)
	}
	id, err := s.storage.NextActivityID()
	if err != nil {
		return nil, err
	}
	now := clock.Millis(s.source)
	a := model.Activity{
		ID:             id,
		DisplayName:    displayName,
		DefinitionName: definitionName,
		Status:         model.ActivityCommon,
		Config:         config,
		CreatedOn:      now,
		UpdatedOn:      now,
	}
	if err := s.storage.SaveActivity(a); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.activities[id] = &a
	s.mu.Unlock()
	logger.Info("activity created", zap.Int("activity", id), zap.String("definition", definitionName))
	return &a, nil
}

func (s *Service) Activity(id int) (*model.Activity, error) {
	s.mu.RLock()
	a, ok := s.activities[id]
	s.mu.RUnlock()
	if ok {
		return a, nil
	}
	stored, err := s.storage.GetActivity(id)
	if err != nil {
		return nil, ActivityNotFoundError{ID: id}
	}
	s.mu.Lock()
	s.activities[id] = stored
	s.mu.Unlock()
	return stored, nil
}

func (s *Service) Activities() []*model.Activity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Activity, 0, len(s.activities))
	for _, a := range s.activities {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Service) SetActivityStatus(id int, status model.ActivityStatus) error {
	a, err := s.Activity(id)
	if err != nil {
		return err
	}
	updated := *a
	updated.Status = status
	updated.UpdatedOn = clock.Millis(s.source)
	if err := s.storage.SaveActivity(updated); err != nil {
		return err
	}
	s.mu.Lock()
	s.activities[id] = &updated
	s.mu.Unlock()
	logger.Info("activity status changed", zap.Int("activity", id), zap.String("status", string(status)))
	return nil
}
