package normalize

import (
	"bytes"
	"context"
	"errors"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nilansh-07/FintelAI/constants"
	"github.com/nilansh-07/FintelAI/internal/common"
)

// fakeRunner writes one PNG per configured page where pdftoppm would.
type fakeRunner struct {
	pages []image.Image
	err   error
	calls int
	args  []string
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.calls++
	f.args = append([]string{name}, args...)
	if f.err != nil {
		return nil, []byte("boom"), f.err
	}
	prefix := args[len(args)-1]
	for i, img := range f.pages {
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, nil, err
		}
		if err := os.WriteFile(fmt.Sprintf("%s-%d.png", prefix, i+1), buf.Bytes(), 0o600); err != nil {
			return nil, nil, err
		}
	}
	return nil, nil, nil
}

func solid(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func noise(w, h int) image.Image {
	r := rand.New(rand.NewSource(1))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(r.Intn(256)), uint8(r.Intn(256)), uint8(r.Intn(256)), 255})
		}
	}
	return img
}

func pngBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// minimalPDF builds a structurally valid letter-size PDF with n blank pages.
func minimalPDF(n int) []byte {
	return sizedPDF(n, 612, 792)
}

// sizedPDF builds a PDF with n blank pages of w x h points.
func sizedPDF(n, w, h int) []byte {
	var b bytes.Buffer
	var offsets []int
	b.WriteString("%PDF-1.4\n")
	obj := func(s string) {
		offsets = append(offsets, b.Len())
		b.WriteString(s)
	}
	kids := make([]string, n)
	for i := range kids {
		kids[i] = fmt.Sprintf("%d 0 R", 3+i)
	}
	obj("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	obj(fmt.Sprintf("2 0 obj\n<< /Type /Pages /Kids [%s] /Count %d >>\nendobj\n", strings.Join(kids, " "), n))
	for i := 0; i < n; i++ {
		obj(fmt.Sprintf("%d 0 obj\n<< /Type /Page /Parent 2 0 R /Resources << >> /MediaBox [0 0 %d %d] >>\nendobj\n", 3+i, w, h))
	}
	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1)
	for _, o := range offsets {
		fmt.Fprintf(&b, "%010d 00000 n \n", o)
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return b.Bytes()
}

// pngHeaderOnly returns a PNG signature and IHDR chunk declaring w x h
// RGBA pixels with no image data behind it.
func pngHeaderOnly(w, h uint32) []byte {
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], w)
	binary.BigEndian.PutUint32(ihdr[4:], h)
	ihdr[8] = 8 // bit depth
	ihdr[9] = 6 // truecolor with alpha

	var b bytes.Buffer
	b.WriteString("\x89PNG\r\n\x1a\n")
	_ = binary.Write(&b, binary.BigEndian, uint32(len(ihdr)))
	chunk := append([]byte("IHDR"), ihdr...)
	b.Write(chunk)
	_ = binary.Write(&b, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return b.Bytes()
}

func testConfig() Config {
	return Config{DPI: 200, MaxPages: 5, MaxPageBytes: 4 << 20, MaxDimension: 2000, JPEGQuality: 85}
}

func TestNormalizeImageClampsLongestEdge(t *testing.T) {
	n := NewNormalizer(testConfig(), nil)
	raw := pngBytes(t, solid(3000, 1500, color.RGBA{200, 10, 10, 255}))

	doc, err := n.Normalize(context.Background(), raw, "")
	require.NoError(t, err)
	require.Len(t, doc.Pages, 1)

	p := doc.Pages[0]
	assert.Equal(t, constants.IMAGE, doc.SourceFormat)
	assert.Equal(t, ContentHash(raw), doc.ID)
	assert.Equal(t, 0, p.Index)
	assert.Equal(t, 2000, p.Width)
	assert.Equal(t, 1000, p.Height)
	assert.Equal(t, constants.CanonicalMIMEType, p.MIMEType)
	assert.Equal(t, ContentHash(p.Image), p.Hash)
	assert.Same(t, doc, p.Document)
	assert.True(t, bytes.HasPrefix(p.Image, []byte{0xFF, 0xD8, 0xFF}))
}

func TestNormalizeIsDeterministic(t *testing.T) {
	n := NewNormalizer(testConfig(), nil)
	raw := pngBytes(t, noise(120, 80))

	a, err := n.Normalize(context.Background(), raw, constants.IMAGE)
	require.NoError(t, err)
	b, err := n.Normalize(context.Background(), raw, constants.IMAGE)
	require.NoError(t, err)

	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, a.Pages[0].Hash, b.Pages[0].Hash)
}

func TestNormalizeRejectsUnknownContent(t *testing.T) {
	n := NewNormalizer(testConfig(), nil)

	_, err := n.Normalize(context.Background(), []byte("just some text"), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrUnsupportedFormat)

	_, err = n.Normalize(context.Background(), nil, "")
	assert.ErrorIs(t, err, common.ErrUnsupportedFormat)
}

func TestNormalizeRejectsDeclaredMismatch(t *testing.T) {
	n := NewNormalizer(testConfig(), nil)
	raw := pngBytes(t, solid(10, 10, color.White))

	_, err := n.Normalize(context.Background(), raw, constants.PDF)
	assert.ErrorIs(t, err, common.ErrUnsupportedFormat)
}

func TestNormalizeTruncatedImageIsCorrupt(t *testing.T) {
	n := NewNormalizer(testConfig(), nil)
	raw := pngBytes(t, solid(50, 50, color.White))

	_, err := n.Normalize(context.Background(), raw[:40], "")
	assert.ErrorIs(t, err, common.ErrCorruptDocument)
}

func TestNormalizeCorruptPDFSkipsRasterizer(t *testing.T) {
	fr := &fakeRunner{}
	n := NewNormalizer(testConfig(), nil, WithRunner(fr))

	_, err := n.Normalize(context.Background(), []byte("%PDF-1.7\nthis is not a pdf"), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrCorruptDocument)
	assert.Equal(t, 0, fr.calls)
}

func TestNormalizePDFOverPageLimit(t *testing.T) {
	fr := &fakeRunner{}
	cfg := testConfig()
	cfg.MaxPages = 2
	n := NewNormalizer(cfg, nil, WithRunner(fr))

	_, err := n.Normalize(context.Background(), minimalPDF(3), constants.PDF)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrPageLimitExceeded)
	assert.Equal(t, "PAGE_LIMIT_EXCEEDED", common.ErrorCode(err))
	assert.Equal(t, 0, fr.calls, "page limit is enforced before rasterizing")
}

func TestNormalizePDFPreservesPageOrder(t *testing.T) {
	fr := &fakeRunner{pages: []image.Image{
		solid(100, 50, color.White),
		solid(60, 120, color.Black),
	}}
	n := NewNormalizer(testConfig(), nil, WithRunner(fr))

	doc, err := n.Normalize(context.Background(), minimalPDF(2), "")
	require.NoError(t, err)
	require.Len(t, doc.Pages, 2)

	assert.Equal(t, constants.PDF, doc.SourceFormat)
	assert.Equal(t, 0, doc.Pages[0].Index)
	assert.Equal(t, 100, doc.Pages[0].Width)
	assert.Equal(t, 1, doc.Pages[1].Index)
	assert.Equal(t, 120, doc.Pages[1].Height)
	assert.NotEqual(t, doc.Pages[0].Hash, doc.Pages[1].Hash)

	require.Equal(t, 1, fr.calls)
	assert.Equal(t, []string{"pdftoppm", "-r", "200", "-png"}, fr.args[:4])
}

func TestNormalizeRasterizerFailureIsCorrupt(t *testing.T) {
	fr := &fakeRunner{err: errors.New("exit status 1")}
	n := NewNormalizer(testConfig(), nil, WithRunner(fr))

	_, err := n.Normalize(context.Background(), minimalPDF(1), "")
	assert.ErrorIs(t, err, common.ErrCorruptDocument)
}

func TestNormalizeRasterizerNoOutputIsCorrupt(t *testing.T) {
	n := NewNormalizer(testConfig(), nil, WithRunner(&fakeRunner{}))

	_, err := n.Normalize(context.Background(), minimalPDF(1), "")
	assert.ErrorIs(t, err, common.ErrCorruptDocument)
}

func TestNormalizePageTooLarge(t *testing.T) {
	cfg := testConfig()
	cfg.MaxPageBytes = 100
	n := NewNormalizer(cfg, nil)

	_, err := n.Normalize(context.Background(), pngBytes(t, noise(64, 64)), "")
	assert.ErrorIs(t, err, common.ErrPageLimitExceeded)
}

func TestNormalizeShrinksToFitByteBudget(t *testing.T) {
	n := NewNormalizer(testConfig(), nil)
	raw := pngBytes(t, noise(400, 400))

	full, err := n.Normalize(context.Background(), raw, "")
	require.NoError(t, err)

	cfg := testConfig()
	cfg.MaxPageBytes = len(full.Pages[0].Image) / 2
	small, err := NewNormalizer(cfg, nil).Normalize(context.Background(), raw, "")
	require.NoError(t, err)

	p := small.Pages[0]
	assert.LessOrEqual(t, len(p.Image), cfg.MaxPageBytes)
	assert.Less(t, p.Width, 400)
}

func TestFitWithin(t *testing.T) {
	cases := []struct {
		w, h, max    int
		wantW, wantH int
	}{
		{100, 50, 2000, 100, 50},
		{4000, 1000, 2000, 2000, 500},
		{1000, 4000, 2000, 500, 2000},
		{100, 50, 0, 100, 50},
	}
	for _, c := range cases {
		w, h := fitWithin(c.w, c.h, c.max)
		assert.Equal(t, c.wantW, w, "%dx%d max %d", c.w, c.h, c.max)
		assert.Equal(t, c.wantH, h, "%dx%d max %d", c.w, c.h, c.max)
	}
}

func TestPageNumberSortsNumerically(t *testing.T) {
	assert.Equal(t, 10, pageNumber("/tmp/x/page-10.png", "/tmp/x/page"))
	assert.Equal(t, 2, pageNumber("/tmp/x/page-02.png", "/tmp/x/page"))
}

func TestNormalizeRejectsOversizedImageFromHeader(t *testing.T) {
	n := NewNormalizer(testConfig(), nil)

	raw := pngHeaderOnly(40000, 40000)
	_, err := n.Normalize(context.Background(), raw, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrPageLimitExceeded)
	assert.Contains(t, err.Error(), "40000x40000")
}

func TestNormalizeMaxPixelsIsConfigurable(t *testing.T) {
	cfg := testConfig()
	cfg.MaxPixels = 50 * 50
	n := NewNormalizer(cfg, nil)

	_, err := n.Normalize(context.Background(), pngBytes(t, solid(50, 50, color.White)), "")
	require.NoError(t, err)
	_, err = n.Normalize(context.Background(), pngBytes(t, solid(51, 50, color.White)), "")
	assert.ErrorIs(t, err, common.ErrPageLimitExceeded)
}

func TestNormalizeHugePDFPageLowersDPI(t *testing.T) {
	fr := &fakeRunner{pages: []image.Image{solid(100, 100, color.White)}}
	n := NewNormalizer(testConfig(), nil, WithRunner(fr))

	// 100 x 100 inches: 20000 x 20000 pixels at 200 dpi
	doc, err := n.Normalize(context.Background(), sizedPDF(1, 7200, 7200), constants.PDF)
	require.NoError(t, err)
	require.Len(t, doc.Pages, 1)

	require.Equal(t, 1, fr.calls)
	assert.Equal(t, []string{"pdftoppm", "-r", "70", "-png"}, fr.args[:4])
}
