package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nilansh-07/FintelAI/constants"
	"github.com/nilansh-07/FintelAI/internal/cache"
	"github.com/nilansh-07/FintelAI/internal/common"
	"github.com/nilansh-07/FintelAI/internal/entity"
	"github.com/nilansh-07/FintelAI/internal/llm"
	"github.com/nilansh-07/FintelAI/internal/normalize"
	"github.com/nilansh-07/FintelAI/internal/validate"
)

type fakeBackend struct {
	content string
	calls   atomic.Int32
}

func (f *fakeBackend) Name() string  { return "fake" }
func (f *fakeBackend) Model() string { return "fake-model" }

func (f *fakeBackend) Complete(context.Context, llm.BackendRequest) (llm.BackendResponse, error) {
	f.calls.Add(1)
	return llm.BackendResponse{Content: f.content}, nil
}

// pageExtractor answers from a table keyed by page index.
type pageExtractor struct {
	mu      sync.Mutex
	replies map[int]string
	delay   func(index int) time.Duration
	calls   int
}

func (p *pageExtractor) Extract(ctx context.Context, req entity.ExtractionRequest) (entity.ExtractionResult, error) {
	p.mu.Lock()
	p.calls++
	raw := p.replies[req.Page.Index]
	p.mu.Unlock()
	if p.delay != nil {
		select {
		case <-time.After(p.delay(req.Page.Index)):
		case <-ctx.Done():
			return entity.ExtractionResult{}, ctx.Err()
		}
	}
	return entity.ExtractionResult{Key: req.Key(), Raw: raw, Attempts: 1, Backend: "fake"}, nil
}

type blockingExtractor struct{ started chan struct{} }

func (b *blockingExtractor) Extract(ctx context.Context, _ entity.ExtractionRequest) (entity.ExtractionResult, error) {
	b.started <- struct{}{}
	<-ctx.Done()
	return entity.ExtractionResult{}, ctx.Err()
}

func pngInvoice(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := range 48 {
		for x := range 64 {
			img.Set(x, y, color.RGBA{uint8(x * 4), uint8(y * 5), 90, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func testDoc(n int) *entity.Document {
	doc := &entity.Document{ID: "doc-hash", SourceFormat: constants.PDF}
	for i := range n {
		img := []byte{0xFF, 0xD8, 0xFF, byte(i)}
		doc.Pages = append(doc.Pages, &entity.Page{
			Document: doc,
			Index:    i,
			Image:    img,
			MIMEType: constants.CanonicalMIMEType,
			Hash:     normalize.ContentHash(img),
		})
	}
	return doc
}

func newValidator(t *testing.T) *validate.Validator {
	t.Helper()
	v, err := validate.NewValidator(nil)
	require.NoError(t, err)
	return v
}

func newCache(t *testing.T) *cache.Cache {
	t.Helper()
	c, err := cache.New(cache.Config{}, nil)
	require.NoError(t, err)
	return c
}

func newEndToEnd(t *testing.T, b llm.Backend) (*Orchestrator, *cache.Cache) {
	t.Helper()
	c := newCache(t)
	adapter := llm.NewAdapter(b, llm.AdapterConfig{MaxAttempts: 3, AttemptTimeout: time.Second}, nil,
		llm.WithBackOff(func() backoff.BackOff { return &backoff.ZeroBackOff{} }))
	n := normalize.NewNormalizer(normalize.Config{MaxPages: 10, MaxDimension: 2000}, nil)
	return NewOrchestrator(Config{Concurrency: 2}, n, adapter, newValidator(t), c, nil), c
}

func TestProcessCleanInvoice(t *testing.T) {
	b := &fakeBackend{content: `{"invoice_number":"INV-2398","date":"2024-09-12","total_amount":18450}`}
	o, _ := newEndToEnd(t, b)

	res, err := o.Process(context.Background(), pngInvoice(t), constants.IMAGE, Options{})
	require.NoError(t, err)

	assert.Equal(t, constants.DocumentSuccess, res.Status)
	require.Len(t, res.Pages, 1)
	assert.Equal(t, constants.StatusValid, res.Pages[0].Status)
	require.NotNil(t, res.Record)
	assert.Equal(t, "INV-2398", res.Record.InvoiceNumber)
	assert.Equal(t, "2024-09-12", res.Record.Date)
	assert.Equal(t, 18450.0, res.Record.TotalAmount)
	assert.Empty(t, res.Record.Currency)
	assert.Empty(t, res.Record.LineItems)
	assert.Equal(t, string(constants.Invoice), res.Template)
	assert.Empty(t, res.Warnings)
}

func TestProcessTrailingCommaIsRepaired(t *testing.T) {
	b := &fakeBackend{content: `{"invoice_number":"INV-1","date":"2024-01-01","total_amount":100,}`}
	o, _ := newEndToEnd(t, b)

	res, err := o.Process(context.Background(), pngInvoice(t), "", Options{})
	require.NoError(t, err)

	assert.Equal(t, constants.DocumentSuccess, res.Status)
	assert.Equal(t, constants.StatusRepaired, res.Pages[0].Status)
	assert.Equal(t, []string{validate.RepairTrailingCommas}, res.Pages[0].Repairs)
	assert.Equal(t, "INV-1", res.Record.InvoiceNumber)
	assert.Equal(t, 100.0, res.Record.TotalAmount)
}

func TestProcessIsIdempotent(t *testing.T) {
	b := &fakeBackend{content: `{"invoice_number":"INV-7","date":"2024-03-04","total_amount":12.5}`}
	o, c := newEndToEnd(t, b)
	raw := pngInvoice(t)

	first, err := o.Process(context.Background(), raw, "", Options{})
	require.NoError(t, err)
	second, err := o.Process(context.Background(), raw, "", Options{})
	require.NoError(t, err)

	assert.EqualValues(t, 1, b.calls.Load())
	assert.Equal(t, first.DocumentID, second.DocumentID)
	assert.Equal(t, first.Pages[0].PageHash, second.Pages[0].PageHash)
	assert.False(t, first.Pages[0].Cached)
	assert.True(t, second.Pages[0].Cached)
	assert.Equal(t, first.Record, second.Record)
	assert.EqualValues(t, 1, c.Stats().Hits)
}

func TestProcessPromptOverrideChangesKey(t *testing.T) {
	b := &fakeBackend{content: `{"invoice_number":"INV-7","date":"2024-03-04","total_amount":12.5}`}
	o, _ := newEndToEnd(t, b)
	raw := pngInvoice(t)

	_, err := o.Process(context.Background(), raw, "", Options{})
	require.NoError(t, err)
	_, err = o.Process(context.Background(), raw, "", Options{Prompt: "Only the total, please."})
	require.NoError(t, err)
	assert.EqualValues(t, 2, b.calls.Load())
}

func TestProcessRejectsUnsupportedInputBeforeBackend(t *testing.T) {
	b := &fakeBackend{content: "{}"}
	o, _ := newEndToEnd(t, b)

	res, err := o.Process(context.Background(), []byte("plain text, not a document"), "", Options{})
	require.ErrorIs(t, err, common.ErrUnsupportedFormat)
	assert.Equal(t, constants.DocumentFailure, res.Status)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, common.CodeUnsupportedFormat, res.Errors[0].Code)
	assert.Empty(t, res.Pages)
	assert.Zero(t, b.calls.Load())
}

func TestProcessDocumentKeepsPageOrder(t *testing.T) {
	const n = 6
	x := &pageExtractor{
		replies: map[int]string{},
		delay:   func(i int) time.Duration { return time.Duration(n-i) * 5 * time.Millisecond },
	}
	for i := range n {
		x.replies[i] = fmt.Sprintf(`{"invoice_number":"P-%d","date":"2024-01-0%d","total_amount":%d}`, i, i+1, i*10)
	}
	o := NewOrchestrator(Config{Concurrency: n}, nil, x, newValidator(t), nil, nil)

	res, err := o.ProcessDocument(context.Background(), testDoc(n), Options{})
	require.NoError(t, err)
	require.Len(t, res.Pages, n)
	for i, p := range res.Pages {
		assert.Equal(t, i, p.Index)
		require.NotNil(t, p.Record)
		assert.Equal(t, fmt.Sprintf("P-%d", i), p.Record.InvoiceNumber)
		require.NotNil(t, p.Record.SourcePage)
		assert.Equal(t, i, *p.Record.SourcePage)
	}
	assert.Equal(t, constants.DocumentSuccess, res.Status)
}

func TestProcessDocumentPartial(t *testing.T) {
	x := &pageExtractor{replies: map[int]string{
		0: `{"invoice_number":"A-1","date":"2024-01-01","total_amount":10}`,
		1: `sorry, I cannot read this page`,
	}}
	o := NewOrchestrator(Config{}, nil, x, newValidator(t), newCache(t), nil)

	res, err := o.ProcessDocument(context.Background(), testDoc(2), Options{})
	require.NoError(t, err)

	assert.Equal(t, constants.DocumentPartial, res.Status)
	assert.Equal(t, "A-1", res.Record.InvoiceNumber)
	assert.Equal(t, constants.StatusInvalid, res.Pages[1].Status)
	require.NotEmpty(t, res.Errors)
	require.NotNil(t, res.Errors[0].Page)
	assert.Equal(t, 1, *res.Errors[0].Page)
	assert.Equal(t, common.CodeValidation, res.Errors[0].Code)
}

func TestProcessDocumentFailureCarriesEveryPageError(t *testing.T) {
	x := &pageExtractor{replies: map[int]string{0: `nope`, 1: `{"date":"2024-01-01"}`, 2: ``}}
	o := NewOrchestrator(Config{}, nil, x, newValidator(t), nil, nil)

	res, err := o.ProcessDocument(context.Background(), testDoc(3), Options{})
	require.NoError(t, err)

	assert.Equal(t, constants.DocumentFailure, res.Status)
	assert.Nil(t, res.Record)
	pages := map[int]bool{}
	for _, e := range res.Errors {
		require.NotNil(t, e.Page)
		pages[*e.Page] = true
	}
	assert.Equal(t, map[int]bool{0: true, 1: true, 2: true}, pages)
}

func TestProcessDocumentIdenticalPagesShareOneExtraction(t *testing.T) {
	doc := testDoc(1)
	dup := *doc.Pages[0]
	dup.Index = 1
	doc.Pages = append(doc.Pages, &dup)

	x := &pageExtractor{
		replies: map[int]string{0: `{"invoice_number":"D-1","date":"2024-01-01","total_amount":1}`, 1: `{"invoice_number":"D-1","date":"2024-01-01","total_amount":1}`},
		delay:   func(int) time.Duration { return 20 * time.Millisecond },
	}
	o := NewOrchestrator(Config{Concurrency: 2}, nil, x, newValidator(t), newCache(t), nil)

	res, err := o.ProcessDocument(context.Background(), doc, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, x.calls)
	assert.Equal(t, constants.DocumentSuccess, res.Status)
	assert.Equal(t, 1, res.Pages[1].Index)
}

func TestProcessDocumentCancellation(t *testing.T) {
	x := &blockingExtractor{started: make(chan struct{}, 4)}
	c := newCache(t)
	o := NewOrchestrator(Config{Concurrency: 4}, nil, x, newValidator(t), c, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	var res entity.DocumentResult
	go func() {
		var err error
		res, err = o.ProcessDocument(ctx, testDoc(3), Options{})
		done <- err
	}()
	for range 3 {
		<-x.started
	}
	cancel()

	err := <-done
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, constants.DocumentFailure, res.Status)
	assert.Zero(t, c.Stats().InFlight)
	assert.Zero(t, c.Stats().Entries)
}
