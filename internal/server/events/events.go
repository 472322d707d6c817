package events

import (
	"context"
	"sync"
	"time"
)

// Subjects published for successful hierarchy mutations.
const (
	SubjectFolderCreated = "drive.folder.created"
	SubjectFolderRenamed = "drive.folder.renamed"
	SubjectFileUploaded  = "drive.file.uploaded"
	SubjectItemMoved     = "drive.item.moved"
	SubjectItemDeleted   = "drive.item.deleted"
)

// Event is the payload of every published mutation.
type Event struct {
	Subject    string    `json:"subject"`
	OwnerID    string    `json:"owner_id"`
	ItemID     string    `json:"item_id"`
	ItemType   string    `json:"item_type"`
	Name       string    `json:"name,omitempty"`
	ParentID   *string   `json:"parent_id,omitempty"`
	Size       int64     `json:"size,omitempty"`
	Files      int       `json:"files,omitempty"`
	Folders    int       `json:"folders,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher delivers events. Delivery is best-effort: callers log failures and carry on.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close()
}

// NopPublisher drops every event. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close()                               {}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *Recorder) Close() {}

// Subjects returns the subjects of all recorded events in publish order.
func (r *Recorder) Subjects() []string {
	evs := r.Events()
	out := make([]string, len(evs))
	for i, ev := range evs {
		out[i] = ev.Subject
	}
	return out
}
