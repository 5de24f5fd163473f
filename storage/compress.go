package storage

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"

	_ "golang.org/x/image/webp" // webp decode support for imaging.Decode
)

const (
	maxWidth  = 1600
	maxHeight = 1200
	quality   = 80
)

// OutputFormat maps an input mime type onto the re-encode target. PNG and
// WEBP inputs keep their format; everything else becomes JPEG.
func OutputFormat(mimeType string) string {
	mime := strings.ToLower(mimeType)
	switch {
	case strings.Contains(mime, "png"):
		return "png"
	case strings.Contains(mime, "webp"):
		return "webp"
	default:
		return "jpeg"
	}
}

// Compress re-orients the image using its EXIF metadata, scales it down to
// fit within 1600x1200 (never upscaling), and re-encodes it at quality 80.
func Compress(data []byte, mimeType string) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() > maxWidth || bounds.Dy() > maxHeight {
		img = imaging.Fit(img, maxWidth, maxHeight, imaging.Lanczos)
	}

	var buf bytes.Buffer
	switch OutputFormat(mimeType) {
	case "png":
		err = imaging.Encode(&buf, img, imaging.PNG)
	case "webp":
		err = webp.Encode(&buf, img, &webp.Options{Quality: quality})
	default:
		err = imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality))
	}
	if err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	return buf.Bytes(), nil
}
