package decode

import (
	"context"
	"errors"
	"sync"

	"github.com/fpang/qr-checkin/internal/camera"
	"github.com/rs/zerolog/log"
)

// Event is one decode loop outcome. Exactly one of Text or Err is set;
// Err is always a device-level failure and is the last event of the loop.
type Event struct {
	Text string
	Err  error
}

// Subscription is a running decode loop.
type Subscription struct {
	events chan Event
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
	dec    Decoder
}

// Start launches the decode loop over stream. The loop ends on a device
// error, on Cancel, or when ctx is cancelled.
func Start(ctx context.Context, stream camera.Stream, dec Decoder) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	s := &Subscription{
		events: make(chan Event),
		cancel: cancel,
		done:   make(chan struct{}),
		dec:    dec,
	}
	go s.run(ctx, stream)
	return s
}

// Events delivers decoded text and device failures.
func (s *Subscription) Events() <-chan Event { return s.events }

// Done is closed when the loop goroutine has exited.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Cancel stops the loop, waits for it to exit and releases the decoder.
// Safe to call multiple times and from any goroutine.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.cancel()
		<-s.done
		s.dec.Close()
	})
}

func (s *Subscription) run(ctx context.Context, stream camera.Stream) {
	defer close(s.done)

	var frames, misses int
	defer func() {
		log.Debug().Int("frames", frames).Int("misses", misses).Msg("Decode loop exited")
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case err := <-stream.Errors():
			s.emit(ctx, Event{Err: err})
			return

		case img, ok := <-stream.Frames():
			if !ok {
				s.emit(ctx, Event{Err: camera.NewError(camera.KindNotReadable, "stream ended", nil)})
				return
			}
			frames++
			text, err := s.dec.Decode(img)
			if errors.Is(err, ErrNoCode) {
				misses++
				continue
			}
			if err != nil {
				// Decoder internals failing is not a camera problem; skip the frame.
				log.Warn().Err(err).Msg("Frame decode failed")
				continue
			}
			log.Debug().Int("length", len(text)).Msg("QR code decoded")
			if !s.emit(ctx, Event{Text: text}) {
				return
			}
		}
	}
}

// emit delivers ev unless the loop is being cancelled.
func (s *Subscription) emit(ctx context.Context, ev Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
