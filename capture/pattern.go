package capture

import "github.com/zsiec/aqueduct/media"

// barColors are the seven classic bar colors in BGRA byte order.
var barColors = [7][4]byte{
	{0xC0, 0xC0, 0xC0, 0xFF}, // white
	{0x00, 0xC0, 0xC0, 0xFF}, // yellow
	{0xC0, 0xC0, 0x00, 0xFF}, // cyan
	{0x00, 0xC0, 0x00, 0xFF}, // green
	{0xC0, 0x00, 0xC0, 0xFF}, // magenta
	{0x00, 0x00, 0xC0, 0xFF}, // red
	{0xC0, 0x00, 0x00, 0xFF}, // blue
}

// ColorBars generates BGRA color bars that shift one column per frame,
// so consecutive frames differ and compression ratios stay realistic.
// The frame buffer is reused across calls; the sender finishes encoding
// a frame before the next NextFrame, which the pipeline's pull loop
// guarantees.
type ColorBars struct {
	width  uint32
	height uint32
	offset uint32
	data   []byte
}

// NewColorBars creates a pattern generator at the given resolution.
func NewColorBars(width, height uint32) *ColorBars {
	return &ColorBars{
		width:  width,
		height: height,
		data:   make([]byte, int(width)*int(height)*4),
	}
}

// NextFrame implements VideoSource. It never ends.
func (c *ColorBars) NextFrame() (*media.VideoFrame, error) {
	barWidth := c.width / uint32(len(barColors))
	if barWidth == 0 {
		barWidth = 1
	}

	for y := uint32(0); y < c.height; y++ {
		row := c.data[y*c.width*4:]
		for x := uint32(0); x < c.width; x++ {
			bar := ((x + c.offset) / barWidth) % uint32(len(barColors))
			copy(row[x*4:x*4+4], barColors[bar][:])
		}
	}
	c.offset++

	return &media.VideoFrame{
		Width:  c.width,
		Height: c.height,
		Format: media.FormatBGRA,
		Data:   c.data,
	}, nil
}
