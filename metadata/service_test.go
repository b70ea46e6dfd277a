package metadata_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/mohitkumar/strand/clock"
	"github.com/mohitkumar/strand/expression"
	"github.com/mohitkumar/strand/metadata"
	"github.com/mohitkumar/strand/model"
	"github.com/mohitkumar/strand/persistence/memory"
	"github.com/stretchr/testify/require"
)

type checker struct{}

func (checker) CheckAction(actionType string, args map[string]any) (bool, error) {
	if actionType != "compute" {
		return false, fmt.Errorf("unknown action type %s", actionType)
	}
	return false, nil
}

func (checker) CheckTrigger(triggerType string, args map[string]any) error {
	return nil
}

func definitionYaml(version string, enable bool, actionType string) []byte {
	return []byte(fmt.Sprintf(`
name: order
version: "%s"
domain_id_strategy: order_id
enable: %t
trigger:
  type: event
  args:
    condition: "true"
actions:
  - name: A
    type: %s
    default_ctrl: "finish()"
`, version, enable, actionType))
}

func newService(source *clock.ManualSource) (*metadata.Service, metadata.Storage) {
	storage := memory.NewMetadataStorage()
	ev := expression.NewGojaEvaluator(expression.NewProgramCache(time.Minute), source)
	return metadata.NewService(storage, checker{}, ev, source), storage
}

func TestService(t *testing.T) {
	for scenario, fn := range map[string]func(t *testing.T, s *metadata.Service, source *clock.ManualSource){
		"latest enabled by created time":  testLatestEnabled,
		"invalid definition never stored": testInvalidNeverStored,
		"duplicate version rejected":      testDuplicateVersion,
		"activity lifecycle":              testActivityLifecycle,
	} {
		t.Run(scenario, func(t *testing.T) {
			source := clock.NewManualSource(time.UnixMilli(1000))
			s, _ := newService(source)
			fn(t, s, source)
		})
	}
}

func testLatestEnabled(t *testing.T, s *metadata.Service, source *clock.ManualSource) {
	_, err := s.AddDefinition(definitionYaml("1", true, "compute"))
	require.NoError(t, err)
	source.Advance(time.Second)
	_, err = s.AddDefinition(definitionYaml("2", true, "compute"))
	require.NoError(t, err)
	source.Advance(time.Second)
	_, err = s.AddDefinition(definitionYaml("3", false, "compute"))
	require.NoError(t, err)

	latest, ok := s.Latest("order")
	require.True(t, ok)
	require.Equal(t, "2", latest.Version)

	require.NoError(t, s.DisableDefinition("order", "2"))
	latest, _ = s.Latest("order")
	require.Equal(t, "1", latest.Version)

	require.NoError(t, s.EnableDefinition("order", "3"))
	latest, _ = s.Latest("order")
	require.Equal(t, "3", latest.Version)

	require.NoError(t, s.DeleteDefinition("order", "3"))
	latest, _ = s.Latest("order")
	require.Equal(t, "1", latest.Version)
}

func testInvalidNeverStored(t *testing.T, s *metadata.Service, source *clock.ManualSource) {
	_, err := s.AddDefinition(definitionYaml("1", true, "unknown"))
	require.Error(t, err)
	_, ok := s.Latest("order")
	require.False(t, ok)
	require.Empty(t, s.Definitions())
}

func testDuplicateVersion(t *testing.T, s *metadata.Service, source *clock.ManualSource) {
	_, err := s.AddDefinition(definitionYaml("1", true, "compute"))
	require.NoError(t, err)
	_, err = s.AddDefinition(definitionYaml("1", true, "compute"))
	require.ErrorAs(t, err, &metadata.DefinitionExistsError{})
}

func testActivityLifecycle(t *testing.T, s *metadata.Service, source *clock.ManualSource) {
	_, err := s.CreateActivity("orders", "order", nil)
	require.Error(t, err)
	_, err = s.AddDefinition(definitionYaml("1", true, "compute"))
	require.NoError(t, err)
	a, err := s.CreateActivity("orders", "order", map[string]any{"limit": 5})
	require.NoError(t, err)
	require.Equal(t, model.ActivityCommon, a.Status)
	require.NoError(t, s.SetActivityStatus(a.ID, model.ActivityPaused))
	got, err := s.Activity(a.ID)
	require.NoError(t, err)
	require.True(t, got.IsPaused())
	require.Len(t, s.Activities(), 1)
}

func TestLoad(t *testing.T) {
	source := clock.NewManualSource(time.UnixMilli(1000))
	s, storage := newService(source)
	_, err := s.AddDefinition(definitionYaml("1", true, "compute"))
	require.NoError(t, err)
	a, err := s.CreateActivity("orders", "order", nil)
	require.NoError(t, err)

	ev := expression.NewGojaEvaluator(expression.NewProgramCache(time.Minute), source)
	reloaded := metadata.NewService(storage, checker{}, ev, source)
	require.NoError(t, reloaded.Load())
	_, ok := reloaded.Latest("order")
	require.True(t, ok)
	_, err = reloaded.Activity(a.ID)
	require.NoError(t, err)
}
