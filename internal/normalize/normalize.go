package normalize

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"time"

	"github.com/nilansh-07/FintelAI/constants"
	"github.com/nilansh-07/FintelAI/internal/common"
	"github.com/nilansh-07/FintelAI/internal/entity"
)

type Config struct {
	Pdftoppm     string // binary name or absolute path; if empty -> "pdftoppm"
	DPI          int    // rasterization DPI, default 200
	MaxPages     int    // 0 = no limit
	MaxPageBytes int    // encoded JPEG budget per page; 0 = no limit
	MaxDimension int    // longest edge in pixels; 0 = keep source size
	MaxPixels    int64  // decoded width*height ceiling per page; default 50M
	JPEGQuality  int    // 1..100, default 85
}

const defaultMaxPixels = 50_000_000

// ConfigFrom maps the application config onto normalizer settings.
func ConfigFrom(c common.NormalizeConfig) Config {
	return Config{
		Pdftoppm:     c.Pdftoppm,
		DPI:          c.DPI,
		MaxPages:     c.MaxPages,
		MaxPageBytes: c.MaxPageBytes,
		MaxDimension: c.MaxDimension,
		MaxPixels:    c.MaxPixels,
		JPEGQuality:  c.JPEGQuality,
	}
}

// Normalizer converts raw uploads into canonical page images.
type Normalizer struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

type Option func(*Normalizer)

// WithRunner replaces the external command runner (tests).
func WithRunner(r Runner) Option {
	return func(n *Normalizer) { n.runner = r }
}

func NewNormalizer(cfg Config, logger *slog.Logger, opts ...Option) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 200
	}
	if cfg.JPEGQuality <= 0 {
		cfg.JPEGQuality = 85
	}
	if cfg.MaxPixels <= 0 {
		cfg.MaxPixels = defaultMaxPixels
	}
	n := &Normalizer{cfg: cfg, runner: execRunner{logger: logger}, logger: logger}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize detects the format of raw, rejects inputs outside the configured
// limits and returns a Document with one canonical JPEG per page. declared
// may be empty to auto-detect; otherwise it must match the sniffed family.
func (n *Normalizer) Normalize(ctx context.Context, raw []byte, declared constants.Format) (*entity.Document, error) {
	start := time.Now()
	if len(raw) == 0 {
		return nil, common.UnsupportedFormatf("empty document")
	}

	sniffed := constants.DetectFormat(raw)
	if sniffed == "" {
		return nil, common.UnsupportedFormatf("unrecognized content (want pdf, jpeg or png)")
	}
	if declared != "" && declared != sniffed {
		return nil, common.UnsupportedFormatf("declared format %s does not match content (%s)", declared, sniffed)
	}

	doc := &entity.Document{
		ID:           ContentHash(raw),
		SourceFormat: sniffed,
		UploadedAt:   time.Now().UTC(),
	}
	log := n.logger.With("doc_id", doc.ID, "format", sniffed)
	log.Info("normalize.start", "bytes", len(raw))

	var err error
	switch sniffed {
	case constants.PDF:
		err = n.normalizePDF(ctx, doc, raw)
	default:
		err = n.normalizeImage(doc, raw)
	}
	if err != nil {
		log.Warn("normalize.rejected", "code", common.ErrorCode(err), "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, err
	}

	log.Info("normalize.done", "pages", len(doc.Pages), "elapsed_ms", time.Since(start).Milliseconds())
	return doc, nil
}

func (n *Normalizer) normalizeImage(doc *entity.Document, raw []byte) error {
	img, err := n.decodeImage(raw)
	if err != nil {
		return err
	}
	return n.addPage(doc, img)
}

func (n *Normalizer) normalizePDF(ctx context.Context, doc *entity.Document, raw []byte) error {
	tmpDir, err := os.MkdirTemp("", "fintel-pdf-*")
	if err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	defer func(path string) {
		if err := os.RemoveAll(path); err != nil {
			n.logger.Warn("normalize.tempdir_cleanup_failed", "path", path, "error", err)
		}
	}(tmpDir)

	path, err := writeTemp(tmpDir, "source.pdf", raw)
	if err != nil {
		return err
	}

	pages, err := countPages(path)
	if err != nil {
		return err
	}
	if n.cfg.MaxPages > 0 && pages > n.cfg.MaxPages {
		return common.PageLimitExceededf("document has %d pages (limit %d)", pages, n.cfg.MaxPages)
	}

	dpi, err := n.renderDPI(path)
	if err != nil {
		return err
	}
	rendered, err := n.rasterize(ctx, path, tmpDir, dpi)
	if err != nil {
		return err
	}
	if n.cfg.MaxPages > 0 && len(rendered) > n.cfg.MaxPages {
		return common.PageLimitExceededf("rasterizer produced %d pages (limit %d)", len(rendered), n.cfg.MaxPages)
	}

	for _, p := range rendered {
		if err := ctx.Err(); err != nil {
			return err
		}
		b, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("read rendered page: %w", err)
		}
		img, err := n.decodeImage(b)
		if err != nil {
			return err
		}
		if err := n.addPage(doc, img); err != nil {
			return err
		}
	}
	return nil
}

func (n *Normalizer) addPage(doc *entity.Document, img image.Image) error {
	data, w, h, err := n.canonicalize(img)
	if err != nil {
		return err
	}
	doc.Pages = append(doc.Pages, &entity.Page{
		Document: doc,
		Index:    len(doc.Pages),
		Image:    data,
		MIMEType: constants.CanonicalMIMEType,
		Width:    w,
		Height:   h,
		Hash:     ContentHash(data),
	})
	return nil
}
