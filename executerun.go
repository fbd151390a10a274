package conduit

import "context"

// ExecuteRun is the one-shot convenience wrapper for synchronous callers:
// it subscribes before submitting (guaranteeing the run's assignment event
// is received), sends the input, and returns a channel carrying only the
// messages of the assigned run. The channel closes after the run's
// RunCompleted event or when ctx is cancelled; the internal subscription is
// released on every exit path.
func (l *Loop) ExecuteRun(ctx context.Context, input UserInput) (<-chan Message, error) {
	subID, stream, err := l.Subscribe()
	if err != nil {
		return nil, err
	}

	asg, err := l.Send(ctx, input)
	if err != nil {
		l.Unsubscribe(subID)
		return nil, err
	}

	out := make(chan Message, streamBuffer)
	go func() {
		defer close(out)
		defer l.Unsubscribe(subID)
		for {
			select {
			case m, ok := <-stream:
				if !ok {
					return
				}
				// Messages with no run id predate run stamping; keep them
				// for backwards compatibility.
				if m.RunID != "" && m.RunID != asg.RunID {
					continue
				}
				select {
				case out <- m:
				case <-ctx.Done():
					return
				}
				if m.Kind == KindRunCompleted && m.Completion != nil && m.Completion.RunID == asg.RunID {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
