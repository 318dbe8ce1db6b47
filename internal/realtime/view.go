package realtime

import (
	"sync"

	"github.com/zulandar/wayfare/internal/models"
)

// View is one viewer's canonical message list for a booking. Order is the
// order rows were added: the initial fetch order followed by appended
// inserts. Deltas never re-sort the list.
type View struct {
	viewer string

	mu    sync.Mutex
	msgs  []models.Message
	floor uint // highest id dropped by Clear; older inserts are stale
}

// NewView creates a view for viewer seeded with initial (already ordered and
// filtered) messages.
func NewView(viewer string, initial []models.Message) *View {
	v := &View{viewer: viewer}
	v.Reset(initial)
	return v
}

// Viewer returns the party this view belongs to.
func (v *View) Viewer() string { return v.viewer }

// Apply reconciles one change event into the view and reports whether the
// list changed.
//
//   - INSERT appends the row unless a row with the same id is present.
//   - DELETE removes the row with the old id.
//   - UPDATE removes the row only when the new row is hidden by this viewer;
//     another party's hide is ignored.
func (v *View) Apply(e Event) bool {
	switch e.Type {
	case EventInsert:
		if e.New == nil {
			return false
		}
		if e.New.IsHiddenFor(v.viewer) {
			return false
		}
		return v.Append(*e.New)
	case EventDelete:
		if e.Old == nil {
			return false
		}
		return v.Remove(e.Old.ID)
	case EventUpdate:
		if e.New == nil || !e.New.IsHiddenFor(v.viewer) {
			return false
		}
		return v.Remove(e.New.ID)
	}
	return false
}

// Append adds m at the end unless its id is already present.
func (v *View) Append(m models.Message) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if m.ID <= v.floor || v.indexLocked(m.ID) >= 0 {
		return false
	}
	v.msgs = append(v.msgs, m)
	return true
}

// Remove drops the message with id, if present.
func (v *View) Remove(id uint) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	i := v.indexLocked(id)
	if i < 0 {
		return false
	}
	v.msgs = append(v.msgs[:i], v.msgs[i+1:]...)
	return true
}

// Contains reports whether a message with id is in the view.
func (v *View) Contains(id uint) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.indexLocked(id) >= 0
}

// Clear empties the view. Inserts for rows no newer than the last one
// cleared are ignored afterwards, so a late event cannot resurrect them.
func (v *View) Clear() {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, m := range v.msgs {
		if m.ID > v.floor {
			v.floor = m.ID
		}
	}
	v.msgs = nil
}

// Reset replaces the contents with msgs, dropping duplicate ids.
func (v *View) Reset(msgs []models.Message) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.msgs = make([]models.Message, 0, len(msgs))
	seen := make(map[uint]bool, len(msgs))
	for _, m := range msgs {
		if seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		v.msgs = append(v.msgs, m)
	}
}

// Messages returns a copy of the current list.
func (v *View) Messages() []models.Message {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]models.Message, len(v.msgs))
	copy(out, v.msgs)
	return out
}

// Len returns the number of messages in the view.
func (v *View) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.msgs)
}

func (v *View) indexLocked(id uint) int {
	for i := range v.msgs {
		if v.msgs[i].ID == id {
			return i
		}
	}
	return -1
}
