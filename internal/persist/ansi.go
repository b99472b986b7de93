package persist

import (
	"bufio"
	"fmt"
	"io"

	"github.com/marben/mandel"
)

// upperHalf draws the upper pixel in the foreground colour and the lower one
// in the background colour.
const upperHalf = '▀'

// WriteANSI writes a truecolor preview of img that is columns characters wide.
// Every character cell shows two vertically stacked pixels.
func WriteANSI(w io.Writer, img *mandel.Image, columns int) error {
	if columns < 1 || img.Width == 0 || img.Height == 0 {
		return nil
	}
	if columns > img.Width {
		columns = img.Width
	}
	pixRows := (columns*img.Height + img.Width/2) / img.Width
	if pixRows < 1 {
		pixRows = 1
	}

	sample := func(x, y int) mandel.RGB {
		sx := (x*img.Width + img.Width/2) / columns
		sy := (y*img.Height + img.Height/2) / pixRows
		return img.At(min(sx, img.Width-1), min(sy, img.Height-1))
	}

	bw := bufio.NewWriter(w)
	for y := 0; y < pixRows; y += 2 {
		var lastFg, lastBg mandel.RGB
		lastValid := false
		for x := 0; x < columns; x++ {
			fg := sample(x, y)
			bg := mandel.Black
			if y+1 < pixRows {
				bg = sample(x, y+1)
			}
			if !lastValid || fg != lastFg || bg != lastBg {
				fmt.Fprintf(bw, "\x1b[0;38;2;%d;%d;%d;48;2;%d;%d;%dm", fg.R, fg.G, fg.B, bg.R, bg.G, bg.B)
				lastFg, lastBg, lastValid = fg, bg, true
			}
			bw.WriteRune(upperHalf)
		}
		bw.WriteString("\x1b[0m\n")
	}
	return bw.Flush()
}
