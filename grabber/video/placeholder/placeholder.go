package placeholder

import (
	"image"
	"image/color"
	"sync"
	"time"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/goregular"
)

var (
	font     *truetype.Font
	fontErr  error
	fontOnce sync.Once
)

func loadFont() (*truetype.Font, error) {
	fontOnce.Do(func() {
		font, fontErr = truetype.Parse(goregular.TTF)
	})
	return font, fontErr
}

// Bars are the seven SMPTE-like colour bars drawn by CreateTestPattern
var Bars = []color.RGBA{
	{R: 192, G: 192, B: 192, A: 255},
	{R: 192, G: 192, B: 0, A: 255},
	{R: 0, G: 192, B: 192, A: 255},
	{R: 0, G: 192, B: 0, A: 255},
	{R: 192, G: 0, B: 192, A: 255},
	{R: 192, G: 0, B: 0, A: 255},
	{R: 0, G: 0, B: 192, A: 255},
}

// CreateTestPattern
// draw vertical colour bars with a caption in the centre,
// shift moves the bars to the right so consecutive frames differ.
func CreateTestPattern(
	width, height int,
	shift int,
	text string,
	timestamp bool, // put current time in YYYY-MM-dd HH:mm:ss pattern at the right bottom corner
) (image.Image, error) {
	dc := gg.NewContext(width, height)

	barWidth := float64(width) / float64(len(Bars))
	for i := range Bars {
		dc.SetColor(Bars[(i+len(Bars)-shift%len(Bars))%len(Bars)])
		dc.DrawRectangle(float64(i)*barWidth, 0, barWidth+1, float64(height))
		dc.Fill()
	}

	if text == "" && !timestamp {
		return dc.Image(), nil
	}

	f, err := loadFont()
	if err != nil {
		return nil, err
	}

	size := float64(height) / 8
	if size < 8 {
		return dc.Image(), nil
	}

	dc.SetColor(color.Black)
	if text != "" {
		dc.SetFontFace(truetype.NewFace(f, &truetype.Options{Size: size}))
		dc.DrawStringAnchored(text, float64(width/2), float64(height/2), 0.5, 0.5)
	}

	if timestamp {
		nowStr := time.Now().Format(time.DateTime)
		dc.SetFontFace(truetype.NewFace(f, &truetype.Options{Size: size / 3}))
		dc.DrawStringAnchored(nowStr, float64(width)-size/3, float64(height)-size/3, 1, 0)
	}

	return dc.Image(), nil
}
