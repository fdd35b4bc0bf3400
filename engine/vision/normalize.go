package vision

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var (
	ErrTooSmall          = errors.New("vision: image below minimum size")
	ErrNoDimensions      = errors.New("vision: raw pixels without dimensions")
	ErrUnsupportedFormat = errors.New("vision: unsupported image format")
)

// Supported lists the encodings a vision model accepts.
var Supported = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
}

// Normalize returns data as an encoded image and its MIME type. Bytes that
// already carry an image signature pass through; anything else is treated as
// 8-bit raw samples of width x height and encoded as PNG, with the channel
// count inferred from the byte length.
func Normalize(data []byte, width, height int) ([]byte, string, error) {
	mt := mimetype.Detect(data)
	if !isImage(mt) {
		if width <= 0 || height <= 0 {
			return nil, "", ErrNoDimensions
		}
		encoded, err := encodeRaw(data, width, height)
		if err != nil {
			return nil, "", err
		}
		data = encoded
		mt = mimetype.Detect(data)
	}
	mime := mt.String()
	if !Supported[mime] {
		return nil, "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, mime)
	}
	return data, mime, nil
}

func isImage(mt *mimetype.MIME) bool {
	for m := mt; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "image/") {
			return true
		}
	}
	return false
}

// encodeRaw packs raw samples into a PNG. Missing trailing samples read as 0.
func encodeRaw(data []byte, width, height int) ([]byte, error) {
	channels := int(math.Round(float64(len(data)) / float64(width*height)))
	if channels < 1 || channels > 4 {
		return nil, fmt.Errorf("%w: %d bytes for %dx%d", ErrUnsupportedFormat, len(data), width, height)
	}
	at := func(i int) uint8 {
		if i < len(data) {
			return data[i]
		}
		return 0
	}

	var img image.Image
	switch channels {
	case 1:
		g := image.NewGray(image.Rect(0, 0, width, height))
		for i := range g.Pix {
			g.Pix[i] = at(i)
		}
		img = g
	default:
		n := image.NewNRGBA(image.Rect(0, 0, width, height))
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				i := (y*width + x) * channels
				var c color.NRGBA
				switch channels {
				case 2:
					c = color.NRGBA{R: at(i), G: at(i), B: at(i), A: at(i + 1)}
				case 3:
					c = color.NRGBA{R: at(i), G: at(i + 1), B: at(i + 2), A: 0xFF}
				case 4:
					c = color.NRGBA{R: at(i), G: at(i + 1), B: at(i + 2), A: at(i + 3)}
				}
				n.SetNRGBA(x, y, c)
			}
		}
		img = n
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("vision: encode png: %w", err)
	}
	return buf.Bytes(), nil
}
