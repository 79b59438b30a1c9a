package normalize

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/nilansh-07/FintelAI/internal/common"
)

// countPages validates the PDF with pdfcpu and returns its page count.
func countPages(path string) (int, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if err := api.ValidateFile(path, conf); err != nil {
		return 0, common.CorruptDocument("pdf failed validation", err)
	}
	pages, err := api.PageCountFile(path)
	if err != nil {
		return 0, common.CorruptDocument("failed to read pdf page count", err)
	}
	if pages == 0 {
		return 0, common.CorruptDocument("pdf has no pages", nil)
	}
	return pages, nil
}

// renderDPI returns the configured DPI, lowered so that the largest page of
// the PDF at path renders within MaxPixels.
func (n *Normalizer) renderDPI(path string) (int, error) {
	dims, err := api.PageDimsFile(path)
	if err != nil {
		return 0, common.CorruptDocument("failed to read pdf page sizes", err)
	}
	var largest float64
	for _, d := range dims {
		// points are 1/72 inch
		w := d.Width / 72 * float64(n.cfg.DPI)
		h := d.Height / 72 * float64(n.cfg.DPI)
		largest = max(largest, w*h)
	}
	if n.cfg.MaxPixels <= 0 || largest <= float64(n.cfg.MaxPixels) {
		return n.cfg.DPI, nil
	}
	dpi := int(float64(n.cfg.DPI) * math.Sqrt(float64(n.cfg.MaxPixels)/largest))
	if dpi < 1 {
		return 0, common.PageLimitExceededf("pdf page of %.0f pixels at %d dpi exceeds %d pixels", largest, n.cfg.DPI, n.cfg.MaxPixels)
	}
	n.logger.Info("normalize.pdf.dpi_reduced", "dpi", dpi, "configured_dpi", n.cfg.DPI, "max_pixels", n.cfg.MaxPixels)
	return dpi, nil
}

// rasterize renders every page of the PDF at path into dir and returns the
// PNG paths in page order.
func (n *Normalizer) rasterize(ctx context.Context, path, dir string, dpi int) ([]string, error) {
	prefix := filepath.Join(dir, "page")
	// pdftoppm -r 200 -png <in.pdf> <dir/page>
	_, errb, err := n.runner.Run(ctx, n.cfg.Pdftoppm, "-r", strconv.Itoa(dpi), "-png", path, prefix)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, common.CorruptDocument("pdftoppm failed: "+truncate(strings.TrimSpace(string(errb)), 512), err)
	}

	// collect generated pngs (prefix-1.png or zero-padded prefix-01.png, ...)
	matches, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		return nil, fmt.Errorf("glob rendered pages: %w", err)
	}
	if len(matches) == 0 {
		return nil, common.CorruptDocument("pdftoppm produced no images", nil)
	}
	slices.SortFunc(matches, func(a, b string) int {
		return pageNumber(a, prefix) - pageNumber(b, prefix)
	})
	return matches, nil
}

func pageNumber(path, prefix string) int {
	s := strings.TrimSuffix(strings.TrimPrefix(path, prefix+"-"), ".png")
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

func writeTemp(dir, name string, b []byte) (string, error) {
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, b, 0o600); err != nil {
		return "", fmt.Errorf("write temp file: %w", err)
	}
	return p, nil
}
