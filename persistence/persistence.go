package persistence

import (
	"fmt"

	"github.com/mohitkumar/strand/model"
)

type StorageLayerError struct {
	Message string
}

func (e StorageLayerError) Error() string {
	return fmt.Sprintf("storage layer error %s", e.Message)
}

type NotFoundError struct {
	Key string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("not found %s", e.Key)
}

type AlreadyExistsError struct {
	Key string
}

func (e AlreadyExistsError) Error() string {
	return fmt.Sprintf("already exists %s", e.Key)
}

// ThreadStorage keeps activity threads keyed by activity id and domain id.
// Insert only succeeds for a key that is not stored yet.
type ThreadStorage interface {
	Get(activityID int, domainID string) (*model.ActivityThread, error)
	// MultiGet returns the stored threads by domain id, absent ids are left out.
	MultiGet(activityID int, domainIDs []string) (map[string]*model.ActivityThread, error)
	List(activityID int) ([]*model.ActivityThread, error)
	Insert(thread *model.ActivityThread) error
	Upsert(thread *model.ActivityThread) error
	BatchUpsert(threads []*model.ActivityThread) error
	Delete(activityID int, domainID string) error
}
