package ink

import (
	"github.com/zlnvch/folio/models"
)

// Capture accumulates pointer motion into a single stroke while a drawing tool is active.
// Device coordinates are divided by the page scale so stored ink is zoom independent.
type Capture struct {
	scale  float64
	tool   models.Tool
	color  string
	points []models.Point
	active bool
}

func NewCapture() *Capture {
	return &Capture{scale: 1}
}

func (c *Capture) SetScale(scale float64) {
	if scale <= 0 {
		return
	}
	c.scale = scale
}

func (c *Capture) Scale() float64 {
	return c.scale
}

func (c *Capture) Active() bool {
	return c.active
}

// Begin starts a stroke. With the cursor tool selected nothing is captured.
func (c *Capture) Begin(tool models.Tool, color string, device models.Point) {
	c.points = c.points[:0]
	c.active = false
	if tool == models.ToolCursor {
		return
	}
	c.tool = tool
	c.color = color
	c.active = true
	c.points = append(c.points, c.toPage(device))
}

func (c *Capture) Extend(device models.Point) {
	if !c.active {
		return
	}
	c.points = append(c.points, c.toPage(device))
}

// End finishes the stroke. Strokes with fewer than two points are discarded.
func (c *Capture) End() (models.Stroke, bool) {
	if !c.active {
		return models.Stroke{}, false
	}
	c.active = false

	if len(c.points) < minStrokePoints {
		c.points = c.points[:0]
		return models.Stroke{}, false
	}

	stroke := models.Stroke{
		Points: append([]models.Point(nil), c.points...),
		Tool:   c.tool,
		Color:  c.color,
		Width:  WidthFor(c.tool),
	}
	c.points = c.points[:0]
	return stroke, true
}

func (c *Capture) toPage(p models.Point) models.Point {
	return models.Point{X: p.X / c.scale, Y: p.Y / c.scale}
}
