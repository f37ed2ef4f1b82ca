package watch

import (
	"context"
	"time"

	"github.com/phobologic/pydependra/internal/logging"
)

// ChangeEvent is a batch of changed paths.
type ChangeEvent struct {
	Paths     []string // unique, in order of first change
	Timestamp time.Time
}

// Debouncer batches rapid changes. A batch is emitted once no change has
// arrived for the quiet period, or once maxWait has passed since the first
// change of the batch, whichever comes first.
type Debouncer struct {
	input       <-chan string
	output      chan ChangeEvent
	quietPeriod time.Duration
	maxWait     time.Duration
}

// NewDebouncer creates a debouncer reading paths from input.
func NewDebouncer(input <-chan string, quietPeriod, maxWait time.Duration) *Debouncer {
	if maxWait < quietPeriod {
		maxWait = quietPeriod
	}
	return &Debouncer{
		input:       input,
		output:      make(chan ChangeEvent, 1),
		quietPeriod: quietPeriod,
		maxWait:     maxWait,
	}
}

// Start processes input until ctx is done or input is closed, then flushes
// and closes Output.
func (d *Debouncer) Start(ctx context.Context) {
	go d.run(ctx)
}

// Output returns the channel of batches.
func (d *Debouncer) Output() <-chan ChangeEvent {
	return d.output
}

func (d *Debouncer) run(ctx context.Context) {
	defer close(d.output)

	quiet := stoppedTimer()
	maxWait := stoppedTimer()
	var (
		paths   []string
		seen    = make(map[string]struct{})
		pending bool
	)

	flush := func() {
		quiet.Stop()
		maxWait.Stop()
		if !pending {
			return
		}
		logging.Debug("flushing changes", "count", len(paths))
		ev := ChangeEvent{Paths: paths, Timestamp: time.Now()}
		paths, seen, pending = nil, make(map[string]struct{}), false
		select {
		case d.output <- ev:
		case <-ctx.Done():
		}
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case p, ok := <-d.input:
			if !ok {
				flush()
				return
			}
			if _, dup := seen[p]; !dup {
				seen[p] = struct{}{}
				paths = append(paths, p)
			}
			if !pending {
				pending = true
				maxWait.Reset(d.maxWait)
			}
			quiet.Reset(d.quietPeriod)

		case <-quiet.C:
			flush()

		case <-maxWait.C:
			flush()
		}
	}
}

func stoppedTimer() *time.Timer {
	t := time.NewTimer(time.Hour)
	t.Stop()
	return t
}
