package renderer

import (
	"image"
	"image/color"

	"github.com/fogleman/gg"
	"golang.org/x/image/font"

	"github.com/neka-nat/lecturia/internal/domain"
	"github.com/neka-nat/lecturia/internal/sprites"
)

const overlayMargin = 24

// overlay composites character sprites and the quiz interlude card on top
// of a captured slide frame.
type overlay struct {
	sheets   map[domain.Side]*sprites.Sheet
	width    int
	height   int
	fontFace font.Face
}

func newOverlay(sheets map[domain.Side]*sprites.Sheet, width, height int, face font.Face) *overlay {
	return &overlay{sheets: sheets, width: width, height: height, fontFace: face}
}

// Compose draws the current character poses (animated by timeSec) and, when
// set, the quiz card over the slide capture. The base image is not mutated.
func (o *overlay) Compose(base image.Image, poses map[domain.Side]string, quizName string, timeSec float64) image.Image {
	dc := gg.NewContextForImage(base)

	size := o.height / 3
	y := o.height - size - overlayMargin
	for _, side := range []domain.Side{domain.SideRight, domain.SideLeft} {
		sheet, ok := o.sheets[side]
		if !ok {
			continue
		}
		pose := poses[side]
		if pose == "" {
			pose = domain.PoseIdle
		}
		frame := sprites.ScaleTo(sheet.Frame(pose, timeSec), size, size)
		x := overlayMargin
		if side == domain.SideRight {
			x = o.width - size - overlayMargin
		}
		dc.DrawImage(frame, x, y)
	}

	if quizName != "" {
		o.drawQuizCard(dc, quizName)
	}
	return dc.Image()
}

func (o *overlay) drawQuizCard(dc *gg.Context, name string) {
	w := float64(o.width) * 0.6
	h := float64(o.height) * 0.25
	x := (float64(o.width) - w) / 2
	y := (float64(o.height) - h) / 2

	dc.SetRGBA(0, 0, 0, 0.45)
	dc.DrawRectangle(0, 0, float64(o.width), float64(o.height))
	dc.Fill()

	dc.SetColor(color.White)
	dc.DrawRoundedRectangle(x, y, w, h, 18)
	dc.Fill()
	dc.SetRGB(0.16, 0.35, 0.75)
	dc.SetLineWidth(4)
	dc.DrawRoundedRectangle(x, y, w, h, 18)
	dc.Stroke()

	if o.fontFace == nil {
		return
	}
	dc.SetFontFace(o.fontFace)
	dc.SetRGB(0.1, 0.1, 0.1)
	tw, th := dc.MeasureString(name)
	dc.DrawString(name, x+(w-tw)/2, y+(h+th)/2)
}
