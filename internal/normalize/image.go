package normalize

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // register PNG decoder for uploads and pdftoppm output

	"golang.org/x/image/draw"

	"github.com/nilansh-07/FintelAI/internal/common"
)

const (
	shrinkFactor   = 0.75
	maxShrinkSteps = 6
)

// decodeImage decodes JPEG or PNG bytes. The header is checked against
// MaxPixels before any pixel buffer is allocated.
func (n *Normalizer) decodeImage(b []byte) (image.Image, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(b))
	if err != nil {
		return nil, common.CorruptDocument("failed to read image header", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, common.CorruptDocument("image has no pixels", nil)
	}
	if px := int64(cfg.Width) * int64(cfg.Height); n.cfg.MaxPixels > 0 && px > n.cfg.MaxPixels {
		return nil, common.PageLimitExceededf("image is %dx%d (%d pixels, limit %d)", cfg.Width, cfg.Height, px, n.cfg.MaxPixels)
	}

	img, _, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, common.CorruptDocument("failed to decode image", err)
	}
	if img.Bounds().Empty() {
		return nil, common.CorruptDocument("image has no pixels", nil)
	}
	return img, nil
}

// canonicalize renders img as a JPEG whose longest edge is at most
// MaxDimension and whose encoding fits MaxPageBytes.
func (n *Normalizer) canonicalize(img image.Image) ([]byte, int, int, error) {
	b := img.Bounds()
	w, h := fitWithin(b.Dx(), b.Dy(), n.cfg.MaxDimension)

	for step := 0; ; step++ {
		data, err := encodeJPEG(resample(img, w, h), n.cfg.JPEGQuality)
		if err != nil {
			return nil, 0, 0, fmt.Errorf("encode jpeg: %w", err)
		}
		if n.cfg.MaxPageBytes <= 0 || len(data) <= n.cfg.MaxPageBytes {
			return data, w, h, nil
		}
		if step == maxShrinkSteps || w == 1 || h == 1 {
			return nil, 0, 0, common.PageLimitExceededf("page too large: %d bytes after %d downscales (limit %d)", len(data), step, n.cfg.MaxPageBytes)
		}
		n.logger.Debug("normalize.page.shrink", "bytes", len(data), "width", w, "height", h)
		w = max(1, int(float64(w)*shrinkFactor))
		h = max(1, int(float64(h)*shrinkFactor))
	}
}

// fitWithin scales (w, h) so the longest edge is at most maxDim, keeping aspect ratio.
func fitWithin(w, h, maxDim int) (int, int) {
	if maxDim <= 0 || (w <= maxDim && h <= maxDim) {
		return w, h
	}
	if w >= h {
		return maxDim, max(1, int(float64(h)*float64(maxDim)/float64(w)))
	}
	return max(1, int(float64(w)*float64(maxDim)/float64(h))), maxDim
}

// resample draws img onto an opaque white canvas of size w x h.
func resample(img image.Image, w, h int) *image.RGBA {
	src := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	if src.Dx() == w && src.Dy() == h {
		draw.Draw(dst, dst.Bounds(), img, src.Min, draw.Over)
		return dst
	}
	// CatmullRom is similar to Lanczos
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, src, draw.Over, nil)
	return dst
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	if quality <= 0 || quality > 100 {
		quality = jpeg.DefaultQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
