package pdfdoc

import (
	"bytes"
	"errors"
	"image/jpeg"
)

var (
	jpegStart = []byte{0xFF, 0xD8, 0xFF}
	jpegEnd   = []byte{0xFF, 0xD9}

	errNoJPEG = errors.New("pdfdoc: embedded jpeg not found")
)

// findJPEG locates a DCT-encoded image stream in the raw file. The decoder
// does not expose stream offsets, but a DCT stream is stored verbatim: it
// starts with an SOI marker, is exactly length bytes long, ends with EOI,
// and its frame header carries the XObject's dimensions.
func findJPEG(raw []byte, length int64, width, height int) ([]byte, error) {
	if length < int64(len(jpegStart)+len(jpegEnd)) {
		return nil, errNoJPEG
	}
	n := int(length)
	for off := 0; ; {
		i := bytes.Index(raw[off:], jpegStart)
		if i < 0 {
			return nil, errNoJPEG
		}
		start := off + i
		off = start + 1
		end := start + n
		if end > len(raw) {
			continue
		}
		candidate := raw[start:end]
		// Writers may pad the stream with a line break after EOI.
		trimmed := bytes.TrimRight(candidate, "\r\n")
		if !bytes.HasSuffix(trimmed, jpegEnd) {
			continue
		}
		cfg, err := jpeg.DecodeConfig(bytes.NewReader(trimmed))
		if err != nil {
			continue
		}
		if (width == 0 || cfg.Width == width) && (height == 0 || cfg.Height == height) {
			return trimmed, nil
		}
	}
}
