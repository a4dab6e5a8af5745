package translate

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"live-caption-service/internal/caption"
	"live-caption-service/internal/observability/logging"
	"live-caption-service/internal/observability/metrics"
)

// DefaultQueueCapacity bounds how many translated branches may wait for the
// next drain.
const DefaultQueueCapacity = 256

// Queue runs translations in the background and holds the resulting branches
// until they are drained.
type Queue struct {
	tr      Translator
	out     chan caption.Branch
	wg      sync.WaitGroup
	timeout time.Duration
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// NewQueue creates a queue over tr. A nil or Disabled translator makes
// Submit a no-op.
func NewQueue(tr Translator, capacity int, timeout time.Duration) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	name := "disabled"
	if tr != nil {
		name = tr.Name()
	}
	return &Queue{
		tr:      tr,
		out:     make(chan caption.Branch, capacity),
		timeout: timeout,
		metrics: metrics.DefaultMetrics,
		log:     logging.WithRecognizer("translate", name),
	}
}

// Enabled reports whether submitted lines are translated.
func (q *Queue) Enabled() bool {
	return !IsDisabled(q.tr)
}

// Submit translates the best final speech branch of line in a goroutine.
// Lines without one, error lines and translations are ignored.
func (q *Queue) Submit(ctx context.Context, line caption.Alternatives) bool {
	if !q.Enabled() || line.Translated {
		return false
	}
	src, ok := speechBranch(line)
	if !ok {
		return false
	}

	q.wg.Add(1)
	go q.run(context.WithoutCancel(ctx), src)
	return true
}

func (q *Queue) run(ctx context.Context, src caption.Branch) {
	defer q.wg.Done()

	if q.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.timeout)
		defer cancel()
	}

	start := time.Now()
	results, err := q.tr.Translate(ctx, src.Text, src.Language)
	q.metrics.RecordTranslation(q.tr.Name(), err, time.Since(start).Seconds())
	if err != nil {
		q.log.Warn().Err(err).Str("text", src.Text).Msg("translation failed")
		return
	}

	for _, r := range results {
		b := caption.NewBranch(src.When, src.Confidence.V, true, r.Text, q.tr.Name(), r.Language)
		select {
		case q.out <- b:
		default:
			q.log.Warn().Str("text", r.Text).Msg("translation queue full, dropping branch")
		}
	}
}

// Drain returns every translated branch waiting in the queue without
// blocking.
func (q *Queue) Drain() []caption.Branch {
	var out []caption.Branch
	for {
		select {
		case b := <-q.out:
			out = append(out, b)
		default:
			return out
		}
	}
}

// Wait blocks until every submitted translation has finished.
func (q *Queue) Wait() {
	q.wg.Wait()
}

// speechBranch picks the latest final speech branch of line.
func speechBranch(line caption.Alternatives) (caption.Branch, bool) {
	branches := line.Branches()
	for i := len(branches) - 1; i >= 0; i-- {
		b := branches[i]
		if b.Final && !b.IsError() && b.Text != "" {
			return b, true
		}
	}
	return caption.Branch{}, false
}
