package realtime

import (
	"context"

	"github.com/zulandar/wayfare/internal/models"
)

// Dispatch applies events from sub to view until ctx is cancelled or the
// subscription closes. onInsert, when non-nil, is called after each insert
// that changed the view (the scroll-to-latest hook).
//
// A closed subscription is not reconnected and missed events are not
// replayed; callers recover by re-fetching on re-entry.
func Dispatch(ctx context.Context, sub *Subscription, view *View, onInsert func(models.Message)) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub.C:
			if !ok {
				return
			}
			if view.Apply(e) && e.Type == EventInsert && onInsert != nil {
				onInsert(*e.New)
			}
		}
	}
}
