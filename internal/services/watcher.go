package services

import (
	"context"
	"fmt"

	"kiptrack/internal/store"
)

// Watcher streams live summaries for one student.
type Watcher struct {
	sub store.Subscriber
}

func NewWatcher(sub store.Subscriber) *Watcher {
	return &Watcher{sub: sub}
}

// Watch emits a summary for the current state and again after every change.
// Once ctx is cancelled nothing further is delivered and the channel closes;
// a summary computed after cancellation is discarded.
func (w *Watcher) Watch(ctx context.Context, studentID string) (<-chan Summary, error) {
	snaps, err := w.sub.Subscribe(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", studentID, err)
	}

	out := make(chan Summary, 1)
	go func() {
		defer close(out)
		for snap := range snaps {
			summary := Summarize(snap.Student, snap.Transactions)
			if ctx.Err() != nil {
				return
			}
			select {
			case out <- summary:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
