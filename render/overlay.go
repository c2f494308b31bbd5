package render

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/unklbee/vc-yov5n-ver2/counter"
)

// CountLines renders the counting lines on the source image with a tally
// label of up and down crossings next to each line midpoint
func CountLines(img *gocv.Mat, stats []counter.Statistics,
	font Font, lineThickness int) {

	for _, st := range stats {

		gocv.Line(img, st.P1, st.P2, Red, lineThickness)

		// place tally label at the line midpoint
		text := fmt.Sprintf("up %d down %d", st.Crossings.Up, st.Crossings.Down)
		mid := image.Pt((st.P1.X+st.P2.X)/2, (st.P1.Y+st.P2.Y)/2)

		textSize := gocv.GetTextSize(text, font.Face, font.Scale, font.Thickness)
		labelPos := image.Pt(mid.X-textSize.X/2, mid.Y-font.BottomPad)

		bRect := image.Rect(labelPos.X-font.LeftPad,
			labelPos.Y-textSize.Y-font.TopPad,
			labelPos.X+textSize.X+font.RightPad, mid.Y)

		gocv.Rectangle(img, bRect, Red, -1)
		gocv.PutTextWithParams(img, text, labelPos,
			font.Face, font.Scale, font.Color, font.Thickness,
			font.LineType, false)
	}
}

// Region renders the region of interest polygon outline on the source image
func Region(img *gocv.Mat, points []image.Point, lineThickness int) {

	if len(points) < 3 {
		return
	}

	for i := 1; i < len(points); i++ {
		gocv.Line(img, points[i-1], points[i], Green, lineThickness)
	}

	// close the polygon
	gocv.Line(img, points[len(points)-1], points[0], Green, lineThickness)
}

// Stats renders a block of per class vehicle counts in the top left corner
// of the source image
func Stats(img *gocv.Mat, classes []string, counts map[string]counter.Tally,
	font Font) {

	lineHeight := 0
	maxWidth := 0
	lines := make([]string, 0, len(classes)+1)

	total := 0

	for _, class := range classes {
		tally := counts[class]
		total += tally.Total()
		lines = append(lines, fmt.Sprintf("%s: %d", class, tally.Total()))
	}

	lines = append(lines, fmt.Sprintf("total: %d", total))

	for _, text := range lines {
		textSize := gocv.GetTextSize(text, font.Face, font.Scale, font.Thickness)

		if textSize.X > maxWidth {
			maxWidth = textSize.X
		}

		if textSize.Y > lineHeight {
			lineHeight = textSize.Y
		}
	}

	rowHeight := lineHeight + font.TopPad + font.BottomPad

	// background box behind the text block
	bRect := image.Rect(0, 0, maxWidth+font.LeftPad+font.RightPad,
		rowHeight*len(lines)+font.TopPad)
	gocv.Rectangle(img, bRect, Black, -1)

	for i, text := range lines {
		pos := image.Pt(font.LeftPad, (i+1)*rowHeight)
		gocv.PutTextWithParams(img, text, pos,
			font.Face, font.Scale, font.Color, font.Thickness,
			font.LineType, false)
	}
}
