// Package overlay draws hand landmarks and control readings onto frames.
package overlay

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/ayusman/mudra/internal/controller"
	"github.com/ayusman/mudra/internal/detector"
)

var (
	pointColor = color.RGBA{R: 0, G: 255, B: 0, A: 0}
	boneColor  = color.RGBA{R: 255, G: 255, B: 255, A: 0}
	textColor  = color.RGBA{R: 0, G: 255, B: 255, A: 0}
	bannerFill = color.RGBA{R: 0, G: 0, B: 160, A: 0}
	bannerText = color.RGBA{R: 255, G: 255, B: 255, A: 0}
)

const (
	pointRadius = 4
	lineHeight  = 28
	textScale   = 0.7
	textMargin  = 10
	bannerSize  = 40
)

// Bones are the landmark pairs joined when drawing a hand skeleton.
var Bones = [][2]int{
	{detector.Wrist, detector.ThumbCMC}, {detector.ThumbCMC, detector.ThumbMCP},
	{detector.ThumbMCP, detector.ThumbIP}, {detector.ThumbIP, detector.ThumbTip},
	{detector.Wrist, detector.IndexMCP}, {detector.IndexMCP, detector.IndexPIP},
	{detector.IndexPIP, detector.IndexDIP}, {detector.IndexDIP, detector.IndexTip},
	{detector.IndexMCP, detector.MiddleMCP}, {detector.MiddleMCP, detector.MiddlePIP},
	{detector.MiddlePIP, detector.MiddleDIP}, {detector.MiddleDIP, detector.MiddleTip},
	{detector.MiddleMCP, detector.RingMCP}, {detector.RingMCP, detector.RingPIP},
	{detector.RingPIP, detector.RingDIP}, {detector.RingDIP, detector.RingTip},
	{detector.RingMCP, detector.PinkyMCP}, {detector.Wrist, detector.PinkyMCP},
	{detector.PinkyMCP, detector.PinkyPIP}, {detector.PinkyPIP, detector.PinkyDIP},
	{detector.PinkyDIP, detector.PinkyTip},
}

// Draw annotates img in place. In streaming mode it draws the hand skeleton
// and one text line per reading; in mapping mode it draws a banner naming
// the selected slot.
func Draw(img *gocv.Mat, f controller.Frame) {
	if img == nil || img.Empty() {
		return
	}

	if f.Mode == controller.Mapping {
		drawBanner(img, Banner(f))
		return
	}

	if f.Hand != nil {
		drawHand(img, f.Hand)
	}
	for i, line := range f.Overlay {
		org := image.Pt(textMargin, textMargin+lineHeight*(i+1))
		gocv.PutText(img, line, org, gocv.FontHersheySimplex, textScale, textColor, 2)
	}
}

// Banner returns the mapping-mode caption for a frame.
func Banner(f controller.Frame) string {
	if !f.Selected.Valid() {
		return "MAPPING: select a slot"
	}
	return fmt.Sprintf("MAPPING: %s (CC%d)", f.Selected, f.Selected.CC())
}

func drawHand(img *gocv.Mat, hand *detector.HandLandmarks) {
	w, h := img.Cols(), img.Rows()

	for _, bone := range Bones {
		x1, y1 := hand.Pixel(bone[0], w, h)
		x2, y2 := hand.Pixel(bone[1], w, h)
		gocv.Line(img, image.Pt(x1, y1), image.Pt(x2, y2), boneColor, 2)
	}
	for i := 0; i < detector.NumLandmarks; i++ {
		x, y := hand.Pixel(i, w, h)
		gocv.Circle(img, image.Pt(x, y), pointRadius, pointColor, -1)
	}
}

func drawBanner(img *gocv.Mat, text string) {
	bar := image.Rect(0, 0, img.Cols(), bannerSize)
	gocv.Rectangle(img, bar, bannerFill, -1)
	gocv.PutText(img, text, image.Pt(textMargin, bannerSize-12), gocv.FontHersheySimplex, textScale, bannerText, 2)
}
