package events

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
)

var ErrStreamingUnsupported = errors.New("streaming unsupported by connection")

// Subscriber is one live admin stream connection. It is transient: never
// persisted, gone on disconnect, failed send, or session invalidation.
type Subscriber struct {
	token   string
	w       http.ResponseWriter
	flusher http.Flusher

	closeOnce sync.Once
	done      chan struct{}
}

func NewSubscriber(token string, w http.ResponseWriter) (*Subscriber, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}

	return &Subscriber{
		token:   token,
		w:       w,
		flusher: flusher,
		done:    make(chan struct{}),
	}, nil
}

// send writes one SSE frame; callers (the hub) serialize access
func (s *Subscriber) send(eventName string, data []byte) error {
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", eventName, data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// Close releases the connection handler; safe to call more than once
func (s *Subscriber) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

// Done is closed when the hub lets go of this subscriber
func (s *Subscriber) Done() <-chan struct{} {
	return s.done
}
