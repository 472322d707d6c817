package events

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_ConcurrentPublish(t *testing.T) {
	rec := &Recorder{}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, rec.Publish(context.Background(), Event{Subject: SubjectFileUploaded}))
		}()
	}
	wg.Wait()

	assert.Len(t, rec.Events(), 50)
	assert.Len(t, rec.Subjects(), 50)
}

func TestRecorder_EventsIsACopy(t *testing.T) {
	rec := &Recorder{}
	require.NoError(t, rec.Publish(context.Background(), Event{Subject: SubjectFolderCreated}))

	evs := rec.Events()
	evs[0].Subject = "changed"

	assert.Equal(t, []string{SubjectFolderCreated}, rec.Subjects())
}

func TestEvent_RootParentOmitted(t *testing.T) {
	data, err := json.Marshal(Event{Subject: SubjectItemMoved, OwnerID: "alice", ItemID: "f1", ItemType: "folder"})
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	assert.NotContains(t, fields, "parent_id")
	assert.Equal(t, "alice", fields["owner_id"])
}
