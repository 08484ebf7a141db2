package survey

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeSource struct {
	records []Record
	err     error
	calls   int
}

func (f *fakeSource) ListSubmissions(ctx context.Context) ([]Record, error) {
	f.calls++
	return f.records, f.err
}

func TestChoiceList_DerivesAndCachesFolders(t *testing.T) {
	setup := time.Date(2022, 4, 8, 9, 30, 0, 0, time.UTC)
	source := &fakeSource{records: []Record{
		{"camera_id": "CAMERA2", "setup": float64(setup.UnixMilli())},
		{"camera_id": "CAMERA1", "setup": float64(setup.UnixMilli())},
		{"camera_id": "CAMERA2", "setup": float64(setup.UnixMilli())}, // duplicate
		{"camera_id": "", "setup": float64(setup.UnixMilli())},        // unusable
	}}

	current := time.Unix(5000, 0)
	list := NewChoiceList(source, "20060102", "setup", 120*time.Second, func() time.Time { return current })

	ctx := context.Background()
	choices, err := list.CameraFolders(ctx)
	assert.NoError(t, err)
	assert.Equal(t, []string{"CAMERA1_20220408", "CAMERA2_20220408"}, choices)
	assert.Equal(t, 1, source.calls)

	// Second call within the TTL is served from memory.
	current = current.Add(60 * time.Second)
	_, err = list.CameraFolders(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 1, source.calls)

	// Past the TTL the source is queried again.
	current = current.Add(61 * time.Second)
	_, err = list.CameraFolders(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 2, source.calls)
}

func TestChoiceList_SourceErrorPropagates(t *testing.T) {
	source := &fakeSource{err: errors.New("unreachable")}
	list := NewChoiceList(source, "20060102", "setup", time.Minute, nil)

	_, err := list.CameraFolders(context.Background())
	assert.Error(t, err)
}

func TestRecord_Time(t *testing.T) {
	setup := time.Date(2022, 4, 8, 9, 30, 0, 0, time.UTC)

	ts, ok := Record{"f": float64(setup.UnixMilli())}.Time("f")
	assert.True(t, ok)
	assert.True(t, ts.Equal(setup))

	ts, ok = Record{"f": "2022-04-08T09:30:00Z"}.Time("f")
	assert.True(t, ok)
	assert.True(t, ts.Equal(setup))

	ts, ok = Record{"f": setup}.Time("f")
	assert.True(t, ok)
	assert.True(t, ts.Equal(setup))

	_, ok = Record{"f": "not a time"}.Time("f")
	assert.False(t, ok)

	_, ok = Record{}.Time("f")
	assert.False(t, ok)
}

func TestChoiceList_CallerMutationDoesNotCorruptCache(t *testing.T) {
	setup := time.Date(2022, 4, 8, 9, 30, 0, 0, time.UTC)
	source := &fakeSource{records: []Record{
		{"camera_id": "CAMERA1", "setup": float64(setup.UnixMilli())},
	}}
	list := NewChoiceList(source, "20060102", "setup", time.Minute, nil)

	ctx := context.Background()
	choices, err := list.CameraFolders(ctx)
	assert.NoError(t, err)
	choices[0] = "mangled"

	choices, err = list.CameraFolders(ctx)
	assert.NoError(t, err)
	assert.Equal(t, []string{"CAMERA1_20220408"}, choices)
	assert.Equal(t, 1, source.calls)
}
