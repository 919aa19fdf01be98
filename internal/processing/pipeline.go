package processing

import (
	"context"
	"log/slog"
	"time"

	"proofbox/internal/config"
	"proofbox/internal/logging"
	"proofbox/internal/store"
)

// WatermarkVersion tags the watermark layout burned into images. Bump when
// the rendered content or placement changes.
const WatermarkVersion = "wm1"

// Result carries the pipeline output for one record.
type Result struct {
	Data       []byte
	Thumbnail  []byte
	Provenance store.Provenance
	// Changed reports whether Data differs from the input and must be
	// persisted back to the payload table.
	Changed bool
}

// Pipeline applies the compression and watermark stages lazily, the first
// time a record is dequeued for upload.
type Pipeline struct {
	cfg    config.Processing
	pool   *RenderPool
	logger *slog.Logger
}

// NewPipeline constructs a pipeline. When cfg.RenderWorkers is zero the
// render pool is absent and watermarking runs inline.
func NewPipeline(cfg config.Processing, logger *slog.Logger) *Pipeline {
	var pool *RenderPool
	if cfg.RenderWorkers > 0 {
		pool = NewRenderPool(cfg.RenderWorkers, time.Duration(cfg.RenderTimeoutSeconds)*time.Second)
	}
	return &Pipeline{
		cfg:    cfg,
		pool:   pool,
		logger: logging.NewComponentLogger(logger, "processing"),
	}
}

// Close releases the render pool workers.
func (p *Pipeline) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

// Process runs the stages the record's provenance marks as outstanding.
// Stage failures never fail the pipeline; the prior stage's output flows
// through and the marker stays unset so the stage retries next attempt.
func (p *Pipeline) Process(ctx context.Context, rec *store.Record, data []byte) Result {
	result := Result{Data: data, Provenance: rec.Provenance}

	if !result.Provenance.Compressed() {
		compressed, thumbnail, prov, err := p.compress(data)
		if err != nil {
			p.logger.Warn("compression failed, uploading original bytes",
				logging.String(logging.FieldRecordID, rec.ID),
				logging.Error(err),
				logging.String(logging.FieldEventType, "compress_failed"),
			)
		} else {
			prov.WatermarkVersion = result.Provenance.WatermarkVersion
			result.Data = compressed
			result.Thumbnail = thumbnail
			result.Provenance = prov
			result.Changed = true
		}
	}

	if p.cfg.WatermarkEnabled && !result.Provenance.Watermarked() {
		stamped, err := p.watermark(ctx, rec, result.Data)
		if err != nil {
			p.logger.Warn("watermark failed, uploading unwatermarked bytes",
				logging.String(logging.FieldRecordID, rec.ID),
				logging.Error(err),
				logging.String(logging.FieldEventType, "watermark_failed"),
			)
		} else {
			result.Data = stamped
			result.Provenance.WatermarkVersion = WatermarkVersion
			result.Provenance.ProcessedBytes = int64(len(stamped))
			result.Changed = true
		}
	}

	return result
}
