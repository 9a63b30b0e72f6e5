package camera

import "image"

// Feed is the Stream implementation shared by the capture backends.
// Producers call Push and Fail; neither blocks. The frame buffer holds a
// single frame and a newer frame replaces a stale one, so a slow decoder
// always sees the most recent picture.
type Feed struct {
	frames chan image.Image
	errs   chan error
	tracks []Track
}

// NewFeed returns a Feed backed by the given tracks.
func NewFeed(tracks ...Track) *Feed {
	return &Feed{
		frames: make(chan image.Image, 1),
		errs:   make(chan error, 1),
		tracks: tracks,
	}
}

func (f *Feed) Frames() <-chan image.Image { return f.frames }
func (f *Feed) Errors() <-chan error       { return f.errs }
func (f *Feed) Tracks() []Track            { return f.tracks }

// AddTrack appends a track; call before the feed is handed out.
func (f *Feed) AddTrack(t Track) {
	f.tracks = append(f.tracks, t)
}

// Push delivers img, replacing a frame nobody has read yet.
func (f *Feed) Push(img image.Image) {
	for {
		select {
		case f.frames <- img:
			return
		default:
		}
		select {
		case <-f.frames:
		default:
		}
	}
}

// Fail reports a device-level error. Only the first error is kept.
func (f *Feed) Fail(err error) {
	select {
	case f.errs <- err:
	default:
	}
}
