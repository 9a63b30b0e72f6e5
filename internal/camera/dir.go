package camera

// dir.go replays still images from a directory as a looping camera feed.
// Kiosks with an external frame grabber drop snapshots into a folder; the
// same device drives demos and tests without hardware.

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DefaultFrameInterval is the replay rate of a DirDevice.
const DefaultFrameInterval = 250 * time.Millisecond

var frameExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".bmp": true, ".tif": true, ".tiff": true, ".webp": true,
}

// DirDevice replays the images in Dir. It has no notion of facing, so it
// satisfies any Constraints.
type DirDevice struct {
	Dir      string
	Interval time.Duration
}

// Open decodes every frame in the directory up front and starts replaying.
func (d *DirDevice) Open(ctx context.Context, c Constraints) (Stream, error) {
	paths, err := collectFramePaths(d.Dir)
	if err != nil {
		return nil, err
	}

	frames := make([]image.Image, 0, len(paths))
	for _, path := range paths {
		img, err := decodeFrame(path)
		if err != nil {
			return nil, NewError(KindNotReadable, filepath.Base(path), err)
		}
		frames = append(frames, img)
	}

	interval := d.Interval
	if interval <= 0 {
		interval = DefaultFrameInterval
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	feed := NewFeed(NewTrack("dir:"+d.Dir, func() {
		close(stop)
		<-done
	}))

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for i := 0; ; i = (i + 1) % len(frames) {
			feed.Push(frames[i])
			select {
			case <-stop:
				return
			case <-ticker.C:
			}
		}
	}()

	log.Info().
		Str("dir", d.Dir).
		Int("frames", len(frames)).
		Dur("interval", interval).
		Msg("Replaying frames from directory")
	return feed, nil
}

// collectFramePaths returns the sorted image files in dir.
func collectFramePaths(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		switch {
		case errors.Is(err, os.ErrNotExist):
			return nil, NewError(KindNotFound, dir, err)
		case errors.Is(err, os.ErrPermission):
			return nil, NewError(KindNotAllowed, dir, err)
		default:
			return nil, NewError(KindNotReadable, dir, err)
		}
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if frameExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	if len(paths) == 0 {
		return nil, NewError(KindNotFound, "no frames in "+dir, nil)
	}
	sort.Strings(paths)
	return paths, nil
}

func decodeFrame(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	log.Trace().Str("file", filepath.Base(path)).Str("format", format).Msg("Frame decoded")
	return img, nil
}
