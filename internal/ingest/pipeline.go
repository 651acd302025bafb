// Package ingest turns document chunks into persisted vectors, batch by
// batch.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/blueberrycongee/ragmux/internal/embedding"
	"github.com/blueberrycongee/ragmux/internal/metrics"
	"github.com/blueberrycongee/ragmux/internal/vectorstore"
	ragerrors "github.com/blueberrycongee/ragmux/pkg/errors"
)

// chunkIDNamespace seeds deterministic chunk IDs. A chunk without an
// explicit ID gets the same UUID on every run, so replaying a document
// upserts instead of duplicating.
var chunkIDNamespace = uuid.MustParse("8b9cdd34-5a1f-4f0b-9d7e-2f6a3c1e8d40")

// Config holds the ingestion tunables.
type Config struct {
	BatchSize int `yaml:"batch_size"`
}

// DefaultConfig returns the default ingestion configuration.
func DefaultConfig() Config {
	return Config{BatchSize: 32}
}

// Pipeline embeds and persists chunks in fixed-size batches. Each batch is
// embedded with one model call and written with one store round trip;
// earlier batches survive a mid-document failure, and the returned error
// carries enough progress to resume.
type Pipeline struct {
	embedder *embedding.Service
	store    vectorstore.Store
	cfg      Config
	logger   *slog.Logger

	// OnDocumentIngested runs after a document is fully persisted; the
	// facade uses it to drop stale cached contexts.
	OnDocumentIngested func(ctx context.Context, documentID string)
}

// New builds a Pipeline.
func New(embedder *embedding.Service, store vectorstore.Store, cfg Config, logger *slog.Logger) *Pipeline {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{embedder: embedder, store: store, cfg: cfg, logger: logger}
}

// Ingest persists the chunks of a document and returns how many were
// written. Blank chunks are skipped. Chunk IDs default deterministically
// from the document ID and chunk position, and writes are upserts, so
// calling Ingest again with the same chunks (or with the tail after a
// partial failure) is safe.
func (p *Pipeline) Ingest(ctx context.Context, documentID string, chunks []vectorstore.Chunk) (int, error) {
	if strings.TrimSpace(documentID) == "" {
		return 0, ragerrors.NewInvalidArgumentError("ingest", "document id must not be empty")
	}

	prepared := p.prepare(documentID, chunks)
	if len(prepared) == 0 {
		p.logger.Info("no ingestible chunks", "document", documentID)
		return 0, nil
	}

	if err := p.embedder.EnsureReady(ctx); err != nil {
		return 0, err
	}

	inserted := 0
	batches := 0
	for start := 0; start < len(prepared); start += p.cfg.BatchSize {
		end := min(start+p.cfg.BatchSize, len(prepared))
		batch := prepared[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}

		vectors, err := p.embedder.EmbedBatch(ctx, texts, len(texts))
		if err != nil {
			metrics.IngestBatchFailures.Inc()
			return inserted, &ragerrors.IngestionBatchError{
				DocumentID:   documentID,
				BatchesDone:  batches,
				Inserted:     inserted,
				FailedBatch:  batches,
				Cause:        err,
				EmbedFailure: true,
			}
		}
		metrics.EmbedBatches.Inc()

		records := make([]vectorstore.Record, len(batch))
		for i, c := range batch {
			records[i] = vectorstore.Record{Chunk: c, Vector: vectors[i]}
		}

		if err := p.store.InsertBatch(ctx, records); err != nil {
			metrics.IngestBatchFailures.Inc()
			return inserted, &ragerrors.IngestionBatchError{
				DocumentID:  documentID,
				BatchesDone: batches,
				Inserted:    inserted,
				FailedBatch: batches,
				Cause:       err,
			}
		}

		inserted += len(batch)
		batches++
		metrics.IngestChunks.Add(float64(len(batch)))
		p.logger.Debug("ingested batch", "document", documentID, "batch", batches, "chunks", inserted)
	}

	p.logger.Info("document ingested", "document", documentID, "chunks", inserted, "batches", batches)
	if p.OnDocumentIngested != nil {
		p.OnDocumentIngested(ctx, documentID)
	}
	return inserted, nil
}

// prepare drops blank chunks and fills in document ID, position, and a
// deterministic chunk ID where missing.
func (p *Pipeline) prepare(documentID string, chunks []vectorstore.Chunk) []vectorstore.Chunk {
	positioned := false
	for _, c := range chunks {
		if c.Position != 0 {
			positioned = true
			break
		}
	}

	prepared := make([]vectorstore.Chunk, 0, len(chunks))
	for i, c := range chunks {
		if strings.TrimSpace(c.Text) == "" {
			continue
		}
		c.DocumentID = documentID
		if !positioned {
			c.Position = i
		}
		if c.ID == "" {
			c.ID = uuid.NewSHA1(chunkIDNamespace, []byte(fmt.Sprintf("%s:%d", documentID, c.Position))).String()
		}
		prepared = append(prepared, c)
	}
	return prepared
}
