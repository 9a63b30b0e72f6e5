package camera

import (
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// scriptedDevice returns errs in order, then a stream.
type scriptedDevice struct {
	errs  []error
	calls []Constraints
}

func (d *scriptedDevice) Open(_ context.Context, c Constraints) (Stream, error) {
	d.calls = append(d.calls, c)
	if i := len(d.calls) - 1; i < len(d.errs) && d.errs[i] != nil {
		return nil, d.errs[i]
	}
	return NewFeed(NewTrack("test", nil)), nil
}

func TestAcquirePrefersRearCamera(t *testing.T) {
	dev := &scriptedDevice{}
	s, err := Acquire(context.Background(), dev)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer Release(s)

	if len(dev.calls) != 1 || dev.calls[0].Facing != FacingEnvironment {
		t.Errorf("calls = %+v, want one environment-facing request", dev.calls)
	}
}

func TestAcquireFallsBack(t *testing.T) {
	for _, kind := range []Kind{KindNotFound, KindOverconstrained} {
		t.Run(kind.String(), func(t *testing.T) {
			dev := &scriptedDevice{errs: []error{NewError(kind, "rear", nil)}}
			s, err := Acquire(context.Background(), dev)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			defer Release(s)

			if len(dev.calls) != 2 {
				t.Fatalf("expected 2 open calls, got %d", len(dev.calls))
			}
			if dev.calls[1].Facing != FacingAny {
				t.Errorf("fallback facing = %s, want any", dev.calls[1].Facing)
			}
		})
	}
}

func TestAcquireFatalWithoutRetry(t *testing.T) {
	for _, kind := range []Kind{KindNotAllowed, KindNotReadable, KindNotSupported, KindOther} {
		t.Run(kind.String(), func(t *testing.T) {
			dev := &scriptedDevice{errs: []error{NewError(kind, "", nil)}}
			_, err := Acquire(context.Background(), dev)
			if KindOf(err) != kind {
				t.Errorf("KindOf(err) = %s, want %s", KindOf(err), kind)
			}
			if len(dev.calls) != 1 {
				t.Errorf("expected no retry, got %d calls", len(dev.calls))
			}
		})
	}
}

func TestAcquireFallbackFailure(t *testing.T) {
	dev := &scriptedDevice{errs: []error{
		NewError(KindNotFound, "rear", nil),
		NewError(KindNotAllowed, "default", nil),
	}}
	_, err := Acquire(context.Background(), dev)
	if KindOf(err) != KindNotAllowed {
		t.Errorf("KindOf(err) = %s, want NotAllowed", KindOf(err))
	}
}

func TestAcquireWrapsUnclassifiedErrors(t *testing.T) {
	dev := &scriptedDevice{errs: []error{errors.New("boom")}}
	_, err := Acquire(context.Background(), dev)
	var camErr *Error
	if !errors.As(err, &camErr) || camErr.Kind != KindOther {
		t.Errorf("expected KindOther camera error, got %v", err)
	}
}

func TestUserMessagesAreDistinct(t *testing.T) {
	seen := make(map[string]Kind)
	for _, kind := range []Kind{KindNotAllowed, KindNotFound, KindNotReadable, KindNotSupported, KindOverconstrained, KindOther} {
		msg := kind.message()
		if prev, ok := seen[msg]; ok {
			t.Errorf("%s and %s share message %q", kind, prev, msg)
		}
		seen[msg] = kind
	}

	err := NewError(KindNotAllowed, "line one\n/dev/video0: Permission denied\n", nil)
	got := err.UserMessage()
	if !strings.Contains(got, "NotAllowedError - /dev/video0: Permission denied") {
		t.Errorf("UserMessage() = %q, want name and last detail line", got)
	}
}

func TestReleaseAllStopsRegisteredStreams(t *testing.T) {
	stopped := 0
	dev := deviceFunc(func() Stream {
		return NewFeed(NewTrack("a", func() { stopped++ }), NewTrack("b", func() { stopped++ }))
	})

	if _, err := Acquire(context.Background(), dev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if OpenCount() == 0 {
		t.Fatal("expected stream to be registered")
	}

	ReleaseAll()
	ReleaseAll()

	if stopped != 2 {
		t.Errorf("stopped = %d, want 2", stopped)
	}
	if OpenCount() != 0 {
		t.Errorf("OpenCount() = %d, want 0", OpenCount())
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	stopped := 0
	s := NewFeed(NewTrack("a", func() { stopped++ }))
	Release(s)
	Release(s)
	Release(nil)
	if stopped != 1 {
		t.Errorf("stopped = %d, want 1", stopped)
	}
}

func TestFeedKeepsNewestFrame(t *testing.T) {
	f := NewFeed()
	a := image.NewGray(image.Rect(0, 0, 1, 1))
	b := image.NewGray(image.Rect(0, 0, 2, 2))
	f.Push(a)
	f.Push(b)

	got := <-f.Frames()
	if got != image.Image(b) {
		t.Error("expected the newest frame")
	}

	f.Fail(errors.New("first"))
	f.Fail(errors.New("second"))
	if err := <-f.Errors(); err.Error() != "first" {
		t.Errorf("Errors() = %v, want first", err)
	}
}

func TestClassifyFFmpeg(t *testing.T) {
	tests := []struct {
		stderr string
		want   Kind
	}{
		{"[video4linux2,v4l2 @ 0x1] Cannot open video device /dev/video0: Permission denied", KindNotAllowed},
		{"[video4linux2,v4l2 @ 0x1] ioctl(VIDIOC_STREAMON): Device or resource busy", KindNotReadable},
		{"/dev/video7: No such file or directory", KindNotFound},
		{"[video4linux2,v4l2 @ 0x1] ioctl(VIDIOC_S_FMT): Invalid argument", KindOverconstrained},
		{"something unexpected", KindOther},
	}
	for _, tt := range tests {
		if got := classifyFFmpeg(tt.stderr, nil).Kind; got != tt.want {
			t.Errorf("classifyFFmpeg(%q) = %s, want %s", tt.stderr, got, tt.want)
		}
	}
}

func TestFFmpegRearRequestWithoutRearInput(t *testing.T) {
	d := &FFmpegDevice{FFmpegPath: "/bin/true"}
	_, err := d.Open(context.Background(), Constraints{Facing: FacingEnvironment})
	if KindOf(err) != KindOverconstrained {
		t.Errorf("KindOf(err) = %s, want Overconstrained", KindOf(err))
	}
}

func TestFFmpegMissingDeviceNode(t *testing.T) {
	d := &FFmpegDevice{
		FFmpegPath: "/bin/true",
		Format:     "v4l2",
		Input:      filepath.Join(t.TempDir(), "video9"),
	}
	_, err := d.Open(context.Background(), Constraints{})
	if KindOf(err) != KindNotFound {
		t.Errorf("KindOf(err) = %s, want NotFound", KindOf(err))
	}
}

func TestDirDeviceReplaysFrames(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "frame_000001.png"), 4)
	writePNG(t, filepath.Join(dir, "frame_000002.png"), 8)
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatal(err)
	}

	d := &DirDevice{Dir: dir, Interval: 5 * time.Millisecond}
	s, err := d.Open(context.Background(), Constraints{Facing: FacingEnvironment})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer Release(s)

	select {
	case img := <-s.Frames():
		if img.Bounds().Dx() != 4 && img.Bounds().Dx() != 8 {
			t.Errorf("unexpected frame size %v", img.Bounds())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no frame received")
	}
}

func TestDirDeviceErrors(t *testing.T) {
	d := &DirDevice{Dir: filepath.Join(t.TempDir(), "missing")}
	if _, err := d.Open(context.Background(), Constraints{}); KindOf(err) != KindNotFound {
		t.Errorf("missing dir: KindOf(err) = %s, want NotFound", KindOf(err))
	}

	empty := &DirDevice{Dir: t.TempDir()}
	if _, err := empty.Open(context.Background(), Constraints{}); KindOf(err) != KindNotFound {
		t.Errorf("empty dir: KindOf(err) = %s, want NotFound", KindOf(err))
	}

	bad := t.TempDir()
	if err := os.WriteFile(filepath.Join(bad, "broken.png"), []byte("not a png"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := (&DirDevice{Dir: bad}).Open(context.Background(), Constraints{}); KindOf(err) != KindNotReadable {
		t.Errorf("corrupt frame: KindOf(err) = %s, want NotReadable", KindOf(err))
	}
}

type deviceFunc func() Stream

func (f deviceFunc) Open(context.Context, Constraints) (Stream, error) { return f(), nil }

func writePNG(t *testing.T, path string, size int) {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, size, size))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}
