// Package decode turns camera frames into QR text.
//
// Start runs a single decode loop over a camera stream and exposes it as a
// Subscription: results and device failures arrive as Events, frames with no
// readable code are skipped silently, and Cancel tears the loop down.
package decode

import (
	"errors"
	"image"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// ErrNoCode reports a frame without a readable QR code. It is the normal
// outcome for most frames and never ends a scan.
var ErrNoCode = errors.New("no QR code in frame")

// Decoder extracts QR text from a single frame.
type Decoder interface {
	Decode(img image.Image) (string, error)
	// Close releases decoder resources. Called once when a loop ends.
	Close()
}

// QRDecoder decodes QR codes with gozxing.
type QRDecoder struct {
	reader gozxing.Reader
	hints  map[gozxing.DecodeHintType]interface{}
}

// NewQRDecoder returns a gozxing-backed decoder. tryHarder trades speed for
// better detection of small or skewed codes.
func NewQRDecoder(tryHarder bool) *QRDecoder {
	hints := map[gozxing.DecodeHintType]interface{}{}
	if tryHarder {
		hints[gozxing.DecodeHintType_TRY_HARDER] = true
	}
	return &QRDecoder{reader: qrcode.NewQRCodeReader(), hints: hints}
}

// Decode returns ErrNoCode for frames where gozxing finds no code or cannot
// read it (not found, checksum and format failures).
func (d *QRDecoder) Decode(img image.Image) (string, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", ErrNoCode
	}
	result, err := d.reader.Decode(bmp, d.hints)
	if err != nil {
		var readerErr gozxing.ReaderException
		if errors.As(err, &readerErr) {
			return "", ErrNoCode
		}
		return "", err
	}
	return result.GetText(), nil
}

// Close resets the reader state.
func (d *QRDecoder) Close() {
	d.reader.Reset()
}
