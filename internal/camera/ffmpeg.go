package camera

// ffmpeg.go captures live frames from a webcam by running ffmpeg and reading
// raw 8-bit grayscale frames from its stdout. Grayscale is all the QR decoder
// needs and keeps each frame at Width*Height bytes.

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultWidth and DefaultHeight are the scaled capture size.
	DefaultWidth  = 640
	DefaultHeight = 480

	// DefaultFPS is the rate frames are handed to the decoder.
	DefaultFPS = 8.0

	// startupTimeout bounds how long Open waits for the first frame.
	startupTimeout = 10 * time.Second

	// maxStderrBytes caps the ffmpeg diagnostics kept for classification.
	maxStderrBytes = 8 * 1024
)

// FFmpegDevice opens webcams through ffmpeg.
type FFmpegDevice struct {
	// Format is the ffmpeg input format (v4l2, avfoundation, dshow).
	// Empty selects the platform default.
	Format string

	// RearInput is the input used for environment-facing requests,
	// e.g. /dev/video2 or "video=Rear Camera". Empty means the host has no
	// known rear camera and such requests fail as Overconstrained.
	RearInput string

	// Input is the input used for unconstrained requests.
	Input string

	Width, Height int
	FPS           float64

	// FFmpegPath overrides the ffmpeg binary lookup.
	FFmpegPath string
}

// DefaultInputFormat returns the ffmpeg capture format for the running OS.
func DefaultInputFormat() string {
	switch runtime.GOOS {
	case "darwin":
		return "avfoundation"
	case "windows":
		return "dshow"
	default:
		return "v4l2"
	}
}

// DefaultInput returns the usual first camera for the running OS.
func DefaultInput() string {
	switch runtime.GOOS {
	case "darwin":
		return "0"
	case "windows":
		return "video=Integrated Camera"
	default:
		return "/dev/video0"
	}
}

// Open starts ffmpeg on the input matching c and waits for the first frame,
// so that busy or missing devices are reported by Open rather than later.
func (d *FFmpegDevice) Open(ctx context.Context, c Constraints) (Stream, error) {
	ffmpegPath := d.FFmpegPath
	if ffmpegPath == "" {
		p, err := exec.LookPath("ffmpeg")
		if err != nil {
			return nil, NewError(KindNotSupported, "ffmpeg not found", err)
		}
		ffmpegPath = p
	}

	input := d.Input
	if input == "" {
		input = DefaultInput()
	}
	if c.Facing == FacingEnvironment {
		if d.RearInput == "" {
			return nil, NewError(KindOverconstrained, "no rear camera configured", nil)
		}
		input = d.RearInput
	}

	format := d.Format
	if format == "" {
		format = DefaultInputFormat()
	}
	if format == "v4l2" {
		if err := checkDeviceNode(input); err != nil {
			return nil, err
		}
	}

	width, height, fps := d.dims()
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", format,
		"-i", input,
		"-vf", fmt.Sprintf("fps=%s,scale=%d:%d", strconv.FormatFloat(fps, 'f', 2, 64), width, height),
		"-pix_fmt", "gray",
		"-f", "rawvideo",
		"-",
	}

	log.Debug().
		Str("input", input).
		Str("format", format).
		Str("facing", c.Facing.String()).
		Int("width", width).
		Int("height", height).
		Float64("fps", fps).
		Msg("Starting ffmpeg capture")

	// The capture outlives Open's ctx; it is stopped through its track.
	cmd := exec.Command(ffmpegPath, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, NewError(KindOther, "stdout pipe", err)
	}
	stderr := &boundedBuffer{limit: maxStderrBytes}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, NewError(KindNotSupported, "start ffmpeg", err)
	}

	p := &ffmpegProcess{cmd: cmd, stderr: stderr, done: make(chan struct{})}
	feed := NewFeed(NewTrack("ffmpeg:"+input, p.stop))
	first := make(chan error, 1)
	go p.read(stdout, feed, width, height, first)

	timer := time.NewTimer(startupTimeout)
	defer timer.Stop()
	select {
	case err := <-first:
		if err != nil {
			p.stop()
			return nil, err
		}
	case <-timer.C:
		p.stop()
		return nil, NewError(KindNotReadable, "no frames within "+startupTimeout.String(), nil)
	case <-ctx.Done():
		p.stop()
		return nil, NewError(KindOther, "acquisition cancelled", ctx.Err())
	}

	log.Info().Str("input", input).Msg("Camera stream started")
	return feed, nil
}

func (d *FFmpegDevice) dims() (int, int, float64) {
	width, height, fps := d.Width, d.Height, d.FPS
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	if fps <= 0 {
		fps = DefaultFPS
	}
	return width, height, fps
}

// checkDeviceNode classifies a missing or unreadable v4l2 device node before
// ffmpeg is started.
func checkDeviceNode(path string) error {
	f, err := os.Open(path)
	if err == nil {
		f.Close()
		return nil
	}
	switch {
	case errors.Is(err, os.ErrNotExist):
		return NewError(KindNotFound, path, err)
	case errors.Is(err, os.ErrPermission):
		return NewError(KindNotAllowed, path, err)
	default:
		return NewError(KindNotReadable, path, err)
	}
}

type ffmpegProcess struct {
	cmd     *exec.Cmd
	stderr  *boundedBuffer
	mu      sync.Mutex
	stopped bool
	done    chan struct{}
}

// stop kills ffmpeg and waits for the reader goroutine to finish.
func (p *ffmpegProcess) stop() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	<-p.done
	log.Debug().Msg("ffmpeg capture stopped")
}

func (p *ffmpegProcess) isStopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

// read decodes frames until ffmpeg exits. The first frame, or the startup
// failure, is signalled on first.
func (p *ffmpegProcess) read(r io.Reader, feed *Feed, width, height int, first chan<- error) {
	defer close(p.done)

	frameSize := width * height
	started := false
	for {
		img := image.NewGray(image.Rect(0, 0, width, height))
		if _, err := io.ReadFull(r, img.Pix[:frameSize]); err != nil {
			waitErr := p.cmd.Wait()
			if p.isStopped() {
				if !started {
					first <- NewError(KindOther, "capture stopped", nil)
				}
				return
			}
			camErr := classifyFFmpeg(p.stderr.String(), waitErr)
			if !started {
				first <- camErr
				return
			}
			log.Error().Err(camErr).Msg("Camera stream failed")
			feed.Fail(camErr)
			return
		}
		feed.Push(img)
		if !started {
			started = true
			first <- nil
		}
	}
}

// classifyFFmpeg maps ffmpeg diagnostics to a Kind.
func classifyFFmpeg(stderr string, err error) *Error {
	lower := strings.ToLower(stderr)
	switch {
	case strings.Contains(lower, "permission denied"),
		strings.Contains(lower, "not authorized"):
		return NewError(KindNotAllowed, stderr, err)
	case strings.Contains(lower, "device or resource busy"):
		return NewError(KindNotReadable, stderr, err)
	case strings.Contains(lower, "no such file or directory"),
		strings.Contains(lower, "video device not found"),
		strings.Contains(lower, "could not find video device"):
		return NewError(KindNotFound, stderr, err)
	case strings.Contains(lower, "invalid argument"),
		strings.Contains(lower, "could not set video options"),
		strings.Contains(lower, "not supported by the device"):
		return NewError(KindOverconstrained, stderr, err)
	default:
		return NewError(KindOther, stderr, err)
	}
}

// boundedBuffer keeps the first limit bytes written to it.
type boundedBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room := b.limit - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *boundedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
