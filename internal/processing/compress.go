package processing

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"proofbox/internal/store"
)

// compress resamples oversized images to fit the configured bound and
// re-encodes them as JPEG. The content hash of the original bytes is
// computed first, so provenance always points back at what the camera
// produced. A small thumbnail is rendered from the same decode.
func (p *Pipeline) compress(data []byte) ([]byte, []byte, store.Provenance, error) {
	digest := sha256.Sum256(data)
	prov := store.Provenance{
		SHA256:         hex.EncodeToString(digest[:]),
		OriginalBytes:  int64(len(data)),
		MaxDimensionPx: p.cfg.MaxDimensionPx,
		JPEGQuality:    p.cfg.JPEGQuality,
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, nil, store.Provenance{}, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	longest := bounds.Dx()
	if bounds.Dy() > longest {
		longest = bounds.Dy()
	}

	output := img
	if longest > p.cfg.MaxDimensionPx || int64(len(data)) > p.cfg.MaxSourceBytes {
		output = imaging.Fit(img, p.cfg.MaxDimensionPx, p.cfg.MaxDimensionPx, imaging.Lanczos)
	}

	buf := &bytes.Buffer{}
	if err := imaging.Encode(buf, output, imaging.JPEG, imaging.JPEGQuality(p.cfg.JPEGQuality)); err != nil {
		return nil, nil, store.Provenance{}, fmt.Errorf("encode image: %w", err)
	}

	thumbnail, err := p.renderThumbnail(output)
	if err != nil {
		// The preview is a convenience; the upload proceeds without it.
		thumbnail = nil
	}

	prov.ProcessedBytes = int64(buf.Len())
	return buf.Bytes(), thumbnail, prov, nil
}

func (p *Pipeline) renderThumbnail(img image.Image) ([]byte, error) {
	thumb := imaging.Fit(img, p.cfg.ThumbnailPx, p.cfg.ThumbnailPx, imaging.Lanczos)
	buf := &bytes.Buffer{}
	if err := imaging.Encode(buf, thumb, imaging.JPEG, imaging.JPEGQuality(p.cfg.JPEGQuality)); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
