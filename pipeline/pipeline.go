// Package pipeline validates harvested products and exports them to files.
package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aluiziolira/go-wishlist-harvester/models"
	"github.com/aluiziolira/go-wishlist-harvester/parser"
)

var (
	// ErrPipelineClosed is returned when Process is called after shutdown.
	ErrPipelineClosed = errors.New("pipeline: closed")
)

const defaultBatchSize = 64

// OutputWriter defines the interface for data output.
type OutputWriter interface {
	Write(products []*models.Product) error
	Close() error
	Validate() error
}

// NewWriter opens the writer for format: "csv", "json" (JSONL) or "dual".
// A dual export writes <name>.csv and <name>.jsonl next to filename.
func NewWriter(format, filename string) (OutputWriter, error) {
	switch format {
	case "csv":
		return NewCSVWriter(filename)
	case "json":
		return NewJSONWriter(filename)
	case "dual":
		stem := strings.TrimSuffix(filename, filepath.Ext(filename))
		return NewDualWriter(stem+".csv", stem+".jsonl")
	default:
		return nil, fmt.Errorf("unknown export format %q", format)
	}
}

// Pipeline validates, de-duplicates and batches products to a writer.
type Pipeline struct {
	writer    OutputWriter
	batchSize int
	batch     []*models.Product
	seen      *lru.Cache[string, struct{}]

	metrics metrics

	mu     sync.Mutex
	closed bool
	err    error
}

// NewPipeline builds a pipeline remembering up to dedupeSize product URLs.
func NewPipeline(writer OutputWriter, dedupeSize int) (*Pipeline, error) {
	seen, err := lru.New[string, struct{}](dedupeSize)
	if err != nil {
		return nil, fmt.Errorf("create dedupe cache: %w", err)
	}
	return &Pipeline{
		writer:    writer,
		batchSize: defaultBatchSize,
		batch:     make([]*models.Product, 0, defaultBatchSize),
		seen:      seen,
		metrics:   newMetrics(),
	}, nil
}

// Process validates products and writes them out in batches. Invalid and
// duplicate products are counted and dropped.
func (p *Pipeline) Process(products ...*models.Product) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.err != nil {
		return p.err
	}
	if p.closed {
		return ErrPipelineClosed
	}

	for _, product := range products {
		if !p.accept(product) {
			continue
		}
		p.batch = append(p.batch, product)
		if len(p.batch) >= p.batchSize {
			if err := p.flush(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close flushes the pending batch and closes the writer.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return p.err
	}
	p.closed = true

	if p.err == nil {
		p.flush()
	}
	if err := p.writer.Close(); err != nil && p.err == nil {
		p.err = fmt.Errorf("close writer: %w", err)
	}
	return p.err
}

// Err returns the first error encountered during processing.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// GetMetrics returns a snapshot of the internal counters.
func (p *Pipeline) GetMetrics() map[string]interface{} {
	return p.metrics.snapshot()
}

func (p *Pipeline) accept(product *models.Product) bool {
	if product == nil {
		return false
	}
	if err := parser.ValidateProduct(product); err != nil {
		p.metrics.addValidation("invalid_record")
		slog.Warn("dropping invalid product", slog.Any("error", err))
		return false
	}
	if p.seen.Contains(product.ProductURL) {
		p.metrics.addValidation("duplicate_url")
		return false
	}
	p.seen.Add(product.ProductURL, struct{}{})
	p.metrics.incrementProcessed()
	return true
}

func (p *Pipeline) flush() error {
	if len(p.batch) == 0 {
		return nil
	}
	if err := p.writer.Write(p.batch); err != nil {
		p.err = fmt.Errorf("write batch: %w", err)
		return p.err
	}
	p.batch = p.batch[:0]
	return nil
}

type metrics struct {
	mu         sync.Mutex
	processed  int64
	validation map[string]int
}

func newMetrics() metrics {
	return metrics{
		validation: make(map[string]int),
	}
}

func (m *metrics) incrementProcessed() {
	m.mu.Lock()
	m.processed++
	m.mu.Unlock()
}

func (m *metrics) addValidation(kind string) {
	m.mu.Lock()
	m.validation[kind]++
	m.mu.Unlock()
}

func (m *metrics) snapshot() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	copyValidation := make(map[string]int, len(m.validation))
	for k, v := range m.validation {
		copyValidation[k] = v
	}

	return map[string]interface{}{
		"processed_products": m.processed,
		"validation_errors":  copyValidation,
	}
}
