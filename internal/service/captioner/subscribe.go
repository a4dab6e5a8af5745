package captioner

import (
	"sync"

	"live-caption-service/internal/models"
)

// subscribers fans live transcript snapshots out to readers. A slow reader
// misses intermediate snapshots rather than blocking processing.
type subscribers struct {
	mu     sync.Mutex
	next   int
	chans  map[int]chan models.TranscriptDocument
	closed bool
}

func (s *subscribers) add() (int, chan models.TranscriptDocument) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan models.TranscriptDocument, 1)
	if s.closed {
		close(ch)
		return -1, ch
	}
	if s.chans == nil {
		s.chans = make(map[int]chan models.TranscriptDocument)
	}
	id := s.next
	s.next++
	s.chans[id] = ch
	return id, ch
}

func (s *subscribers) remove(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ch, ok := s.chans[id]; ok {
		delete(s.chans, id)
		close(ch)
	}
}

func (s *subscribers) broadcast(doc models.TranscriptDocument) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ch := range s.chans {
		select {
		case ch <- doc:
			continue
		default:
		}
		// Replace the stale snapshot with the newer one.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- doc:
		default:
		}
	}
}

func (s *subscribers) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, ch := range s.chans {
		delete(s.chans, id)
		close(ch)
	}
	s.closed = true
}

// Subscribe returns a channel that receives the live transcript whenever it
// changes, and a function that ends the subscription. The channel is closed
// on cancel or shutdown.
func (c *Controller) Subscribe() (<-chan models.TranscriptDocument, func()) {
	id, ch := c.subs.add()
	var once sync.Once
	return ch, func() {
		once.Do(func() { c.subs.remove(id) })
	}
}
