package decode

import (
	"context"
	"errors"
	"image"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fpang/qr-checkin/internal/camera"
	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// stubDecoder returns text for frames wider than one pixel and ErrNoCode
// otherwise.
type stubDecoder struct {
	text   string
	closed atomic.Int32
}

func (d *stubDecoder) Decode(img image.Image) (string, error) {
	if img.Bounds().Dx() > 1 {
		return d.text, nil
	}
	return "", ErrNoCode
}

func (d *stubDecoder) Close() { d.closed.Add(1) }

func blank(size int) image.Image {
	return image.NewGray(image.Rect(0, 0, size, size))
}

func nextEvent(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev := <-sub.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestQRDecoderReadsGeneratedCode(t *testing.T) {
	const content = "ATTENDANCE:CLASS:42:TOKEN:abc123"
	matrix, err := qrcode.NewQRCodeWriter().Encode(content, gozxing.BarcodeFormat_QR_CODE, 200, 200, nil)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	dec := NewQRDecoder(true)
	defer dec.Close()

	got, err := dec.Decode(matrix)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if got != content {
		t.Errorf("Decode() = %q, want %q", got, content)
	}
}

func TestQRDecoderBlankFrame(t *testing.T) {
	dec := NewQRDecoder(false)
	defer dec.Close()

	if _, err := dec.Decode(blank(64)); !errors.Is(err, ErrNoCode) {
		t.Errorf("Decode(blank) error = %v, want ErrNoCode", err)
	}
}

func TestLoopSkipsMissesAndEmitsResults(t *testing.T) {
	feed := camera.NewFeed()
	dec := &stubDecoder{text: "CLASS:1:TOKEN:x"}
	sub := Start(context.Background(), feed, dec)
	defer sub.Cancel()

	feed.Push(blank(1))
	feed.Push(blank(1))
	feed.Push(blank(4))

	ev := nextEvent(t, sub)
	if ev.Err != nil || ev.Text != "CLASS:1:TOKEN:x" {
		t.Errorf("event = %+v, want decoded text", ev)
	}
}

func TestLoopEmitsDeviceErrorAndExits(t *testing.T) {
	feed := camera.NewFeed()
	sub := Start(context.Background(), feed, &stubDecoder{})
	defer sub.Cancel()

	feed.Fail(camera.NewError(camera.KindNotReadable, "unplugged", nil))

	ev := nextEvent(t, sub)
	if camera.KindOf(ev.Err) != camera.KindNotReadable {
		t.Errorf("event error = %v, want NotReadable", ev.Err)
	}
	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not exit after device error")
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	feed := camera.NewFeed()
	dec := &stubDecoder{text: "x"}
	sub := Start(context.Background(), feed, dec)

	// A result nobody reads must not block cancellation.
	feed.Push(blank(4))
	time.Sleep(10 * time.Millisecond)

	sub.Cancel()
	sub.Cancel()

	select {
	case <-sub.Done():
	default:
		t.Error("Done() not closed after Cancel")
	}
	if n := dec.closed.Load(); n != 1 {
		t.Errorf("decoder closed %d times, want 1", n)
	}
}

func TestContextCancelEndsLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sub := Start(ctx, camera.NewFeed(), &stubDecoder{})
	cancel()

	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not exit on context cancel")
	}
	sub.Cancel()
}
