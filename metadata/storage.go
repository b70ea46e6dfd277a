package metadata

import (
	"github.com/mohitkumar/strand/definition"
	"github.com/mohitkumar/strand/model"
)

// Storage keeps definition documents keyed by name and version, and the
// activities deployed from them.
type Storage interface {
	SaveDefinition(doc definition.Document) error
	GetDefinition(name string, version string) (*definition.Document, error)
	ListDefinitions() ([]definition.Document, error)
	DeleteDefinition(name string, version string) error

	NextActivityID() (int, error)
	SaveActivity(activity model.Activity) error
	GetActivity(id int) (*model.Activity, error)
	ListActivities() ([]model.Activity, error)
}
