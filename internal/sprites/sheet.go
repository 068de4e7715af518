package sprites

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"math"

	xdraw "golang.org/x/image/draw"

	"github.com/neka-nat/lecturia/internal/domain"
)

const (
	// Character sheets are a 3x3 grid: one row of animation frames per pose.
	Cols = 3
	Rows = 3

	// Frames per second of the pose animation loop.
	AnimationFPS = 3

	// Inner margin cropped off each cell before compositing.
	cellMargin = 6
)

var poseRows = map[string]int{
	domain.PoseIdle:  0,
	domain.PoseTalk:  1,
	domain.PosePoint: 2,
}

// Sheet is a decoded character sprite sheet.
type Sheet struct {
	img   *image.RGBA
	cellW int
	cellH int
}

// Load decodes a PNG sprite sheet.
func Load(data []byte) (*Sheet, error) {
	src, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode sprite sheet: %w", err)
	}
	b := src.Bounds()
	if b.Dx() < Cols || b.Dy() < Rows {
		return nil, fmt.Errorf("sprite sheet too small: %dx%d", b.Dx(), b.Dy())
	}
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), src, b.Min, draw.Src)
	return &Sheet{
		img:   rgba,
		cellW: b.Dx() / Cols,
		cellH: b.Dy() / Rows,
	}, nil
}

// Frame returns the animation cell for a pose at a point in time. Unknown
// poses fall back to idle. The returned image shares no pixels with the
// sheet and has the outer cell margin cropped off.
func (s *Sheet) Frame(pose string, timeSec float64) *image.RGBA {
	row, ok := poseRows[pose]
	if !ok {
		row = poseRows[domain.PoseIdle]
	}
	col := int(math.Floor(timeSec*AnimationFPS)) % Cols
	if col < 0 {
		col = 0
	}

	x0 := col*s.cellW + cellMargin
	y0 := row*s.cellH + cellMargin
	x1 := (col+1)*s.cellW - cellMargin
	y1 := (row+1)*s.cellH - cellMargin

	out := image.NewRGBA(image.Rect(0, 0, x1-x0, y1-y0))
	draw.Draw(out, out.Bounds(), s.img, image.Pt(x0, y0), draw.Src)
	return out
}

// ScaleTo resizes a frame for on-slide compositing.
func ScaleTo(frame *image.RGBA, w, h int) *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(out, out.Bounds(), frame, frame.Bounds(), xdraw.Over, nil)
	return out
}

// AlignBaseline re-centers every cell of a sheet horizontally and drops it
// so that, within each row, all cells share the lowest opaque scanline.
// Without this, pose frames exported at slightly different offsets make the
// character jitter when the animation cycles.
func AlignBaseline(src image.Image, cols, rows int) (*image.RGBA, error) {
	if cols <= 0 || rows <= 0 {
		return nil, fmt.Errorf("invalid grid %dx%d", cols, rows)
	}
	b := src.Bounds()
	sw, sh := b.Dx(), b.Dy()
	cw, ch := sw/cols, sh/rows
	if cw == 0 || ch == 0 {
		return nil, fmt.Errorf("sheet %dx%d too small for grid %dx%d", sw, sh, cols, rows)
	}

	rgba := image.NewRGBA(image.Rect(0, 0, sw, sh))
	draw.Draw(rgba, rgba.Bounds(), src, b.Min, draw.Src)

	type cell struct {
		centroidX float64
		baseline  int
	}
	cells := make([]cell, 0, cols*rows)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			var sumX, count float64
			baseline := ch - 1
			found := false
			for y := 0; y < ch; y++ {
				for x := 0; x < cw; x++ {
					_, _, _, a := rgba.At(c*cw+x, r*ch+y).RGBA()
					if a == 0 {
						continue
					}
					sumX += float64(x)
					count++
					if !found || y > baseline {
						baseline = y
					}
					found = true
				}
			}
			cx := float64(cw) / 2
			if count > 0 {
				cx = sumX / count
			}
			if !found {
				baseline = ch - 1
			}
			cells = append(cells, cell{centroidX: cx, baseline: baseline})
		}
	}

	out := image.NewRGBA(image.Rect(0, 0, sw, sh))
	for r := 0; r < rows; r++ {
		rowBaseline := 0
		for c := 0; c < cols; c++ {
			if bl := cells[r*cols+c].baseline; bl > rowBaseline {
				rowBaseline = bl
			}
		}
		for c := 0; c < cols; c++ {
			info := cells[r*cols+c]
			dx := int(math.Round(float64(cw)/2 - info.centroidX))
			dy := rowBaseline - info.baseline

			dst := image.Rect(c*cw+dx, r*ch+dy, (c+1)*cw+dx, (r+1)*ch+dy).
				Intersect(image.Rect(c*cw, r*ch, (c+1)*cw, (r+1)*ch))
			if dst.Empty() {
				continue
			}
			srcPt := image.Pt(dst.Min.X-dx, dst.Min.Y-dy)
			draw.Draw(out, dst, rgba, srcPt, draw.Over)
		}
	}
	return out, nil
}

// EncodePNG serializes an aligned sheet back to PNG bytes.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
