// Package camera acquires live video for QR scanning.
//
// A Device opens a Stream under a set of Constraints. Acquire implements the
// preference order used by the scanner: rear (environment-facing) camera
// first, then any camera if the rear request could not be satisfied. Every
// stream handed out by Acquire is tracked in a process-wide registry so that
// ReleaseAll can stop anything a failed teardown left behind.
package camera

import (
	"context"
	"image"
	"sync"

	"github.com/rs/zerolog/log"
)

// Facing selects which physical camera to prefer.
type Facing int

const (
	// FacingAny accepts whatever camera the device offers by default.
	FacingAny Facing = iota
	// FacingEnvironment requests the rear camera.
	FacingEnvironment
)

func (f Facing) String() string {
	if f == FacingEnvironment {
		return "environment"
	}
	return "any"
}

// Constraints describes the requested stream.
type Constraints struct {
	Facing Facing
}

// Track is one capture resource backing a stream (a device handle, a
// capture process). Stop must be idempotent.
type Track interface {
	Label() string
	Stop()
}

// Stream is a live source of frames.
// Errors delivers device-level failures after the stream was opened.
type Stream interface {
	Frames() <-chan image.Image
	Errors() <-chan error
	Tracks() []Track
}

// Device opens streams. Open must return a *Error on failure.
type Device interface {
	Open(ctx context.Context, c Constraints) (Stream, error)
}

// Surface is the preview the stream is bound to while scanning.
// A Play error is not fatal: frames keep flowing to the decoder.
type Surface interface {
	Attach(s Stream)
	Play(ctx context.Context) error
	Detach()
}

// NopSurface is used when there is no preview window.
type NopSurface struct{}

func (NopSurface) Attach(Stream)              {}
func (NopSurface) Play(context.Context) error { return nil }
func (NopSurface) Detach()                    {}

// Acquire opens a stream on dev, preferring the rear camera. A NotFound or
// Overconstrained failure on the rear request falls back to an unconstrained
// request; any other failure is returned without retry.
func Acquire(ctx context.Context, dev Device) (Stream, error) {
	s, err := dev.Open(ctx, Constraints{Facing: FacingEnvironment})
	if err == nil {
		register(s)
		return s, nil
	}

	kind := KindOf(err)
	if kind != KindNotFound && kind != KindOverconstrained {
		log.Error().Err(err).Str("kind", kind.String()).Msg("Camera error (preferred)")
		return nil, asCameraError(err)
	}
	log.Debug().Err(err).Msg("Rear camera unavailable, retrying without constraints")

	s, err = dev.Open(ctx, Constraints{})
	if err != nil {
		log.Error().Err(err).Str("kind", KindOf(err).String()).Msg("Camera error (fallback)")
		return nil, asCameraError(err)
	}
	register(s)
	return s, nil
}

// asCameraError wraps unclassified errors as KindOther.
func asCameraError(err error) error {
	if _, ok := err.(*Error); ok {
		return err
	}
	return NewError(KindOther, "", err)
}

// track wraps a stop function as an idempotent Track.
type track struct {
	label string
	once  sync.Once
	stop  func()
}

// NewTrack returns a Track whose stop function runs at most once.
func NewTrack(label string, stop func()) Track {
	return &track{label: label, stop: stop}
}

func (t *track) Label() string { return t.label }

func (t *track) Stop() {
	t.once.Do(func() {
		if t.stop != nil {
			t.stop()
		}
	})
}

var (
	registryMu sync.Mutex
	registry   = make(map[Stream]struct{})
)

func register(s Stream) {
	registryMu.Lock()
	registry[s] = struct{}{}
	registryMu.Unlock()
}

// Release stops every track of s and forgets it. Safe to call repeatedly.
func Release(s Stream) {
	if s == nil {
		return
	}
	for _, t := range s.Tracks() {
		t.Stop()
	}
	registryMu.Lock()
	delete(registry, s)
	registryMu.Unlock()
}

// ReleaseAll stops every stream still registered.
func ReleaseAll() {
	registryMu.Lock()
	streams := make([]Stream, 0, len(registry))
	for s := range registry {
		streams = append(streams, s)
	}
	registry = make(map[Stream]struct{})
	registryMu.Unlock()

	for _, s := range streams {
		for _, t := range s.Tracks() {
			t.Stop()
		}
	}
	if len(streams) > 0 {
		log.Debug().Int("streams", len(streams)).Msg("Released cached camera streams")
	}
}

// OpenCount returns the number of registered streams.
func OpenCount() int {
	registryMu.Lock()
	defer registryMu.Unlock()
	return len(registry)
}
