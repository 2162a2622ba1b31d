package classroom

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// EmotionInputSize is the square crop size the emotion classifier expects.
const EmotionInputSize = 160

var (
	colorKnown     = color.RGBA{R: 0, G: 255, B: 255, A: 255}
	colorUnknown   = color.RGBA{R: 160, G: 160, B: 160, A: 255}
	colorGood      = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	colorBad       = color.RGBA{R: 255, G: 0, B: 0, A: 255}
	colorEmotion   = color.RGBA{R: 255, G: 255, B: 0, A: 255}
	colorLandmark  = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	colorLabelBack = color.RGBA{R: 0, G: 0, B: 0, A: 160}
)

// toRGBA returns a private RGBA copy of img, rebased at the origin.
func toRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Draw(dst, dst.Bounds(), img, b.Min, xdraw.Src)
	return dst
}

// downscale returns img resized by factor together with the factor actually
// applied. Frames too small to shrink are returned as is with a factor of 1.
func downscale(img image.Image, factor float64) (image.Image, float64) {
	if factor <= 0 || factor >= 1 {
		return img, 1
	}
	b := img.Bounds()
	w := int(float64(b.Dx()) * factor)
	h := int(float64(b.Dy()) * factor)
	if w < 1 || h < 1 {
		return img, 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst, factor
}

// cropFace cuts box out of frame, clamped to the frame, and resizes it to the
// classifier input size. ok is false when the clamped region is empty.
func cropFace(frame image.Image, box Box) (image.Image, bool) {
	r := box.Rect().Canon().Intersect(frame.Bounds())
	if r.Empty() {
		return nil, false
	}
	dst := image.NewRGBA(image.Rect(0, 0, EmotionInputSize, EmotionInputSize))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), frame, r, xdraw.Src, nil)
	return dst, true
}

// drawBox outlines r with a border of the given thickness.
func drawBox(dst *image.RGBA, r image.Rectangle, c color.Color, thickness int) {
	r = r.Canon()
	u := image.NewUniform(c)
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+thickness),
		image.Rect(r.Min.X, r.Max.Y-thickness, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+thickness, r.Max.Y),
		image.Rect(r.Max.X-thickness, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		xdraw.Draw(dst, e.Intersect(dst.Bounds()), u, image.Point{}, xdraw.Over)
	}
}

// drawLabel writes text with its baseline-left corner at pt over a dim backing strip.
func drawLabel(dst *image.RGBA, pt image.Point, text string, c color.Color) {
	face := basicfont.Face7x13
	d := &font.Drawer{Dst: dst, Src: image.NewUniform(c), Face: face}
	width := d.MeasureString(text).Ceil()

	back := image.Rect(pt.X-2, pt.Y-face.Ascent-2, pt.X+width+2, pt.Y+face.Descent+2)
	xdraw.Draw(dst, back.Intersect(dst.Bounds()), image.NewUniform(colorLabelBack), image.Point{}, xdraw.Over)

	d.Dot = fixed.P(pt.X, pt.Y)
	d.DrawString(text)
}

// drawLandmarks marks each landmark with a small square.
func drawLandmarks(dst *image.RGBA, lm Landmarks, c color.Color) {
	u := image.NewUniform(c)
	b := dst.Bounds()
	for _, l := range lm {
		p := pixel(l, b)
		xdraw.Draw(dst, image.Rect(p.X-1, p.Y-1, p.X+2, p.Y+2).Intersect(b), u, image.Point{}, xdraw.Over)
	}
}

// annotateKnown draws the box, the student ID, and the engagement readings
// under the box.
func annotateKnown(dst *image.RGBA, box Box, id StudentID, s EngagementSample) {
	r := box.Rect().Canon()
	drawBox(dst, r, colorKnown, 2)
	drawLabel(dst, image.Pt(r.Min.X, r.Min.Y-8), string(id), colorKnown)

	lineH := basicfont.Face7x13.Height + 4
	y := r.Max.Y + lineH
	drawLabel(dst, image.Pt(r.Min.X, y), fmt.Sprintf("Emotion: %s (%.2f)", s.Emotion.Label, s.Emotion.Confidence), colorEmotion)
	y += lineH
	drawLabel(dst, image.Pt(r.Min.X, y), "Posture: "+s.Posture, statusColor(s.Posture == PostureGood))
	y += lineH
	drawLabel(dst, image.Pt(r.Min.X, y), "Eyes: "+s.Eyes+" | Attention: "+s.Attention,
		statusColor(s.Eyes == EyesOpen && s.Attention == AttentionFocused))
}

func annotateUnknown(dst *image.RGBA, box Box) {
	r := box.Rect().Canon()
	drawBox(dst, r, colorUnknown, 1)
	drawLabel(dst, image.Pt(r.Min.X, r.Min.Y-8), "Unknown", colorUnknown)
}

func statusColor(ok bool) color.Color {
	if ok {
		return colorGood
	}
	return colorBad
}

// encodeJPEG compresses img at the given quality (1-100).
func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	if quality < 1 || quality > 100 {
		quality = jpeg.DefaultQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
