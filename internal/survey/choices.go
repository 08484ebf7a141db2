package survey

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"
)

// ChoiceList derives the selectable camera-folder identifiers from the
// submissions currently in the survey source, served from memory for a
// bounded interval so the source is not queried on every form render.
type ChoiceList struct {
	source     Source
	dateLayout string
	setupField string
	ttl        time.Duration
	now        func() time.Time

	mu        sync.Mutex
	choices   []string
	fetchedAt time.Time
}

func NewChoiceList(source Source, dateLayout, setupField string, ttl time.Duration, now func() time.Time) *ChoiceList {
	if now == nil {
		now = time.Now
	}
	return &ChoiceList{
		source:     source,
		dateLayout: dateLayout,
		setupField: setupField,
		ttl:        ttl,
		now:        now,
	}
}

// CameraFolders returns the current choice list, refreshing it from the
// source when the cached copy is older than the TTL.
func (c *ChoiceList) CameraFolders(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Callers get a copy; the cached slice must stay untouched for the
	// rest of the TTL window.
	if c.choices != nil && c.now().Sub(c.fetchedAt) < c.ttl {
		return slices.Clone(c.choices), nil
	}

	records, err := c.source.ListSubmissions(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(records))
	choices := make([]string, 0, len(records))
	for _, record := range records {
		cameraID := record.CameraID()
		setup, ok := record.Time(c.setupField)
		if cameraID == "" || !ok {
			continue
		}
		folder := fmt.Sprintf("%s_%s", cameraID, setup.Format(c.dateLayout))
		if !seen[folder] {
			seen[folder] = true
			choices = append(choices, folder)
		}
	}
	sort.Strings(choices)

	c.choices = choices
	c.fetchedAt = c.now()
	return slices.Clone(choices), nil
}
