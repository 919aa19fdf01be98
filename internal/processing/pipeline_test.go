package processing_test

import (
	"bytes"
	"context"
	"image"
	"testing"
	"time"

	"proofbox/internal/config"
	"proofbox/internal/logging"
	"proofbox/internal/processing"
	"proofbox/internal/store"
	"proofbox/internal/testsupport"
)

func testProcessingConfig() config.Processing {
	return config.Processing{
		MaxDimensionPx:       64,
		JPEGQuality:          75,
		MaxSourceBytes:       10 << 20,
		ThumbnailPx:          32,
		WatermarkEnabled:     false,
		RenderWorkers:        0,
		RenderTimeoutSeconds: 5,
	}
}

func testRecord() *store.Record {
	return &store.Record{
		ID:      "rec-1",
		JobID:   "job-1",
		JobName: "Kitchen Remodel",
		Stage:   store.StageDuring,
		TakenAt: time.Date(2026, 3, 1, 14, 30, 0, 0, time.UTC),
	}
}

func TestProcessCompressesOversizedImage(t *testing.T) {
	pipe := processing.NewPipeline(testProcessingConfig(), logging.NewNop())
	defer pipe.Close()

	original := testsupport.JPEGImage(t, 200, 100)
	result := pipe.Process(context.Background(), testRecord(), original)

	if !result.Changed {
		t.Fatal("expected pipeline to change an oversized image")
	}
	if !result.Provenance.Compressed() {
		t.Fatal("expected compression marker to be set")
	}
	if result.Provenance.OriginalBytes != int64(len(original)) {
		t.Fatalf("unexpected original byte count %d", result.Provenance.OriginalBytes)
	}

	decoded, _, err := image.Decode(bytes.NewReader(result.Data))
	if err != nil {
		t.Fatalf("decode processed image: %v", err)
	}
	bounds := decoded.Bounds()
	if bounds.Dx() > 64 || bounds.Dy() > 64 {
		t.Fatalf("expected image within 64px bound, got %dx%d", bounds.Dx(), bounds.Dy())
	}
	if len(result.Thumbnail) == 0 {
		t.Fatal("expected a thumbnail to be rendered")
	}
}

func TestProcessDoesNotUpscaleSmallImages(t *testing.T) {
	pipe := processing.NewPipeline(testProcessingConfig(), logging.NewNop())
	defer pipe.Close()

	original := testsupport.JPEGImage(t, 32, 16)
	result := pipe.Process(context.Background(), testRecord(), original)

	decoded, _, err := image.Decode(bytes.NewReader(result.Data))
	if err != nil {
		t.Fatalf("decode processed image: %v", err)
	}
	bounds := decoded.Bounds()
	if bounds.Dx() != 32 || bounds.Dy() != 16 {
		t.Fatalf("expected dimensions preserved, got %dx%d", bounds.Dx(), bounds.Dy())
	}
}

func TestProcessSkipsCompletedStages(t *testing.T) {
	cfg := testProcessingConfig()
	cfg.WatermarkEnabled = true
	pipe := processing.NewPipeline(cfg, logging.NewNop())
	defer pipe.Close()

	rec := testRecord()
	rec.Provenance = store.Provenance{
		SHA256:           "already-done",
		WatermarkVersion: processing.WatermarkVersion,
	}

	original := testsupport.JPEGImage(t, 200, 100)
	result := pipe.Process(context.Background(), rec, original)

	if result.Changed {
		t.Fatal("expected no work for a fully processed record")
	}
	if !bytes.Equal(result.Data, original) {
		t.Fatal("expected payload bytes to pass through untouched")
	}
}

func TestProcessWatermarkCompletesProvenance(t *testing.T) {
	cfg := testProcessingConfig()
	cfg.WatermarkEnabled = true
	pipe := processing.NewPipeline(cfg, logging.NewNop())
	defer pipe.Close()

	result := pipe.Process(context.Background(), testRecord(), testsupport.JPEGImage(t, 100, 80))

	if !result.Provenance.Complete() {
		t.Fatalf("expected both stage markers set, got %#v", result.Provenance)
	}
	if result.Provenance.WatermarkVersion != processing.WatermarkVersion {
		t.Fatalf("unexpected watermark version %q", result.Provenance.WatermarkVersion)
	}
	if _, _, err := image.Decode(bytes.NewReader(result.Data)); err != nil {
		t.Fatalf("watermarked output is not a valid image: %v", err)
	}
}

func TestProcessKeepsOriginalWhenUndecodable(t *testing.T) {
	cfg := testProcessingConfig()
	cfg.WatermarkEnabled = true
	pipe := processing.NewPipeline(cfg, logging.NewNop())
	defer pipe.Close()

	garbage := []byte("not an image at all")
	result := pipe.Process(context.Background(), testRecord(), garbage)

	if result.Changed {
		t.Fatal("expected no change for undecodable payload")
	}
	if !bytes.Equal(result.Data, garbage) {
		t.Fatal("expected original bytes to flow through")
	}
	if result.Provenance.Compressed() || result.Provenance.Watermarked() {
		t.Fatalf("expected no stage markers, got %#v", result.Provenance)
	}
}

func TestProcessResumesAfterCompression(t *testing.T) {
	cfg := testProcessingConfig()
	cfg.WatermarkEnabled = true
	pipe := processing.NewPipeline(cfg, logging.NewNop())
	defer pipe.Close()

	rec := testRecord()
	rec.Provenance = store.Provenance{SHA256: "precomputed"}

	original := testsupport.JPEGImage(t, 50, 50)
	result := pipe.Process(context.Background(), rec, original)

	if result.Provenance.SHA256 != "precomputed" {
		t.Fatal("compression must not rerun once marked complete")
	}
	if !result.Provenance.Watermarked() {
		t.Fatal("expected outstanding watermark stage to run")
	}
	if !result.Changed {
		t.Fatal("expected watermarked bytes to require persistence")
	}
}

func TestProcessUsesRenderPool(t *testing.T) {
	cfg := testProcessingConfig()
	cfg.WatermarkEnabled = true
	cfg.RenderWorkers = 2
	pipe := processing.NewPipeline(cfg, logging.NewNop())
	defer pipe.Close()

	result := pipe.Process(context.Background(), testRecord(), testsupport.JPEGImage(t, 100, 80))
	if !result.Provenance.Watermarked() {
		t.Fatal("expected pooled watermark render to complete")
	}
}
