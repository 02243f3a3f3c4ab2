// Package imaging shrinks uploaded product and banner images before they
// are stored inline as data URLs.
package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"strings"

	"github.com/example/giftshop/pkg/config"
	"github.com/nfnt/resize"
)

var (
	ErrNotDataURL   = errors.New("not a base64 data URL")
	ErrUnsupported  = errors.New("unsupported image format")
	ErrEmptyPayload = errors.New("empty image payload")
	ErrTooLarge     = errors.New("image dimensions too large")
)

const dataURLPrefix = "data:"

type Compressor struct {
	maxWidth  uint
	maxHeight uint
	maxPixels int
	quality   int
}

func NewCompressor(cfg config.ImagingConfig) *Compressor {
	return &Compressor{maxWidth: cfg.MaxWidth, maxHeight: cfg.MaxHeight, maxPixels: cfg.MaxPixels, quality: cfg.JPEGQuality}
}

// IsDataURL reports whether s carries inline image data.
func IsDataURL(s string) bool {
	return strings.HasPrefix(s, dataURLPrefix)
}

// Compress decodes a JPEG or PNG, fits it inside the configured bounds
// keeping its aspect ratio, and re-encodes it as JPEG. Smaller images are
// not enlarged. Images over the pixel cap are refused before decoding.
func (c *Compressor) Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrEmptyPayload
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	if c.maxPixels > 0 && int64(cfg.Width)*int64(cfg.Height) > int64(c.maxPixels) {
		return nil, fmt.Errorf("%w: %dx%d", ErrTooLarge, cfg.Width, cfg.Height)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}

	img = resize.Thumbnail(c.maxWidth, c.maxHeight, img, resize.Lanczos3)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: c.quality}); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// CompressDataURL compresses an inline image and returns it as a JPEG
// data URL.
func (c *Compressor) CompressDataURL(s string) (string, error) {
	data, err := DecodeDataURL(s)
	if err != nil {
		return "", err
	}
	out, err := c.Compress(data)
	if err != nil {
		return "", err
	}
	return EncodeDataURL("image/jpeg", out), nil
}

// DecodeDataURL extracts the payload of a base64 data URL.
func DecodeDataURL(s string) ([]byte, error) {
	if !IsDataURL(s) {
		return nil, ErrNotDataURL
	}
	header, payload, ok := strings.Cut(s[len(dataURLPrefix):], ",")
	if !ok || !strings.HasSuffix(header, ";base64") {
		return nil, ErrNotDataURL
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotDataURL, err)
	}
	return data, nil
}

func EncodeDataURL(mime string, data []byte) string {
	return dataURLPrefix + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}
