package processing

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"strings"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"proofbox/internal/store"
)

// watermarkTimeFormat renders capture timestamps in a fixed zone and layout
// so burned-in text is comparable across devices.
const watermarkTimeFormat = "2006-01-02 15:04 UTC"

// watermark burns the evidence caption into the bottom-left corner. The
// render runs on the pool when one is configured, falling back inline on
// timeout or when the pool is absent.
func (p *Pipeline) watermark(ctx context.Context, rec *store.Record, data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode for watermark: %w", err)
	}

	lines := captionLines(rec)
	render := func() (*image.NRGBA, error) {
		return burnCaption(img, lines), nil
	}

	var stamped *image.NRGBA
	if p.pool != nil {
		stamped, err = p.pool.Submit(ctx, render)
		if err != nil {
			// Pool saturated or timed out: run on the calling goroutine.
			stamped, err = render()
		}
	} else {
		stamped, err = render()
	}
	if err != nil {
		return nil, err
	}

	buf := &bytes.Buffer{}
	if err := imaging.Encode(buf, stamped, imaging.JPEG, imaging.JPEGQuality(p.cfg.JPEGQuality)); err != nil {
		return nil, fmt.Errorf("encode watermarked image: %w", err)
	}
	return buf.Bytes(), nil
}

// captionLines builds the fixed caption content: job, timestamp, location.
// The field set is deliberately not configurable.
func captionLines(rec *store.Record) []string {
	job := strings.TrimSpace(rec.JobName)
	if job == "" {
		job = rec.JobID
	}
	lines := []string{
		job,
		rec.TakenAt.UTC().Format(watermarkTimeFormat),
	}
	if location := strings.TrimSpace(rec.Location); location != "" {
		lines = append(lines, location)
	}
	return lines
}

// burnCaption draws outlined text lines into the bottom-left corner. The
// dark halo under a light fill keeps the caption legible over arbitrary
// backgrounds.
func burnCaption(img image.Image, lines []string) *image.NRGBA {
	canvas := imaging.Clone(img)
	face := basicfont.Face7x13
	lineHeight := face.Metrics().Height.Ceil() + 2
	margin := 8

	baseY := canvas.Bounds().Max.Y - margin - lineHeight*(len(lines)-1)
	for i, line := range lines {
		y := baseY + i*lineHeight
		drawOutlinedText(canvas, face, margin, y, line)
	}
	return canvas
}

func drawOutlinedText(dst *image.NRGBA, face font.Face, x, y int, text string) {
	outline := image.NewUniform(color.NRGBA{0, 0, 0, 255})
	fill := image.NewUniform(color.NRGBA{255, 255, 255, 255})

	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			if dx == 0 && dy == 0 {
				continue
			}
			drawText(dst, face, x+dx, y+dy, text, outline)
		}
	}
	drawText(dst, face, x, y, text, fill)
}

func drawText(dst *image.NRGBA, face font.Face, x, y int, text string, src image.Image) {
	drawer := font.Drawer{
		Dst:  dst,
		Src:  src,
		Face: face,
		Dot:  fixed.P(x, y),
	}
	drawer.DrawString(text)
}
