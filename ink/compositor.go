package ink

import (
	"bytes"
	"image"
	"image/png"
	"math"
	"strconv"

	"github.com/zlnvch/folio/models"
	"golang.org/x/image/vector"
)

// Surface is the unscaled size of a page as reported by the document renderer.
type Surface struct {
	Width  float64
	Height float64
}

const (
	highlighterAlpha = 77 // 30% of 255
	capSegments      = 16
)

// Compositor rasterises a page's strokes into a transparent ink layer.
// Render is a pure function of its arguments; the rasterizer is only scratch space,
// so a Compositor must not be shared between goroutines.
type Compositor struct {
	raster *vector.Rasterizer
	mask   *image.Alpha
}

func NewCompositor() *Compositor {
	return &Compositor{}
}

func (c *Compositor) Render(surface Surface, strokes []models.Stroke, scale float64) *image.RGBA {
	w := int(math.Ceil(surface.Width * scale))
	h := int(math.Ceil(surface.Height * scale))
	if w < 0 {
		w = 0
	}
	if h < 0 {
		h = 0
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	if w == 0 || h == 0 {
		return dst
	}

	if c.raster == nil {
		c.raster = vector.NewRasterizer(w, h)
	}
	if c.mask == nil || c.mask.Bounds() != dst.Bounds() {
		c.mask = image.NewAlpha(dst.Bounds())
	}

	for _, s := range strokes {
		if len(s.Points) == 0 {
			continue
		}
		c.coverage(s, scale, w, h)
		switch s.Tool {
		case models.ToolPen:
			r, g, b := parseHex(s.Color)
			blendSourceOver(dst, c.mask, r, g, b, 255)
		case models.ToolHighlighter:
			col := s.Color
			if isNoColor(col) {
				col = DefaultHighlight
			}
			r, g, b := parseHex(col)
			blendMultiply(dst, c.mask, r, g, b, highlighterAlpha)
		case models.ToolEraser:
			blendDestinationOut(dst, c.mask)
		}
	}

	return dst
}

// coverage fills c.mask with the anti-aliased footprint of the stroke at the given scale:
// one quad per segment plus a round cap at every point.
func (c *Compositor) coverage(s models.Stroke, scale float64, w, h int) {
	c.raster.Reset(w, h)
	clear(c.mask.Pix)

	half := WidthFor(s.Tool) * scale / 2
	if half <= 0 {
		half = s.Width * scale / 2
	}

	for i, p := range s.Points {
		x, y := p.X*scale, p.Y*scale
		c.addCap(x, y, half)
		if i == 0 {
			continue
		}
		px, py := s.Points[i-1].X*scale, s.Points[i-1].Y*scale
		vx, vy := x-px, y-py
		vl := math.Hypot(vx, vy)
		if vl == 0 {
			continue
		}
		nx, ny := -vy/vl*half, vx/vl*half
		c.raster.MoveTo(float32(px+nx), float32(py+ny))
		c.raster.LineTo(float32(x+nx), float32(y+ny))
		c.raster.LineTo(float32(x-nx), float32(y-ny))
		c.raster.LineTo(float32(px-nx), float32(py-ny))
		c.raster.ClosePath()
	}

	c.raster.Draw(c.mask, c.mask.Bounds(), image.Opaque, image.Point{})
}

// addCap winds the same way as the segment quads so overlapping areas accumulate.
func (c *Compositor) addCap(x, y, r float64) {
	for k := 0; k <= capSegments; k++ {
		theta := -2 * math.Pi * float64(k%capSegments) / capSegments
		px := float32(x + r*math.Cos(theta))
		py := float32(y + r*math.Sin(theta))
		if k == 0 {
			c.raster.MoveTo(px, py)
			continue
		}
		c.raster.LineTo(px, py)
	}
	c.raster.ClosePath()
}

func mul255(a, b uint32) uint32 {
	return (a*b + 127) / 255
}

func blendSourceOver(dst *image.RGBA, mask *image.Alpha, r, g, b, alpha uint32) {
	for i, m := range mask.Pix {
		if m == 0 {
			continue
		}
		sa := mul255(alpha, uint32(m))
		inv := 255 - sa
		j := i * 4
		dst.Pix[j+0] = uint8(mul255(r, sa) + mul255(uint32(dst.Pix[j+0]), inv))
		dst.Pix[j+1] = uint8(mul255(g, sa) + mul255(uint32(dst.Pix[j+1]), inv))
		dst.Pix[j+2] = uint8(mul255(b, sa) + mul255(uint32(dst.Pix[j+2]), inv))
		dst.Pix[j+3] = uint8(sa + mul255(uint32(dst.Pix[j+3]), inv))
	}
}

// blendMultiply is the separable multiply blend composited source-over, on premultiplied pixels:
// co = Sc*(1-Da) + Dc*(1-Sa) + Sc*Dc.
func blendMultiply(dst *image.RGBA, mask *image.Alpha, r, g, b, alpha uint32) {
	for i, m := range mask.Pix {
		if m == 0 {
			continue
		}
		sa := mul255(alpha, uint32(m))
		j := i * 4
		da := uint32(dst.Pix[j+3])
		oa := sa + mul255(da, 255-sa)
		src := [3]uint32{mul255(r, sa), mul255(g, sa), mul255(b, sa)}
		for k := 0; k < 3; k++ {
			dc := uint32(dst.Pix[j+k])
			oc := mul255(src[k], 255-da) + mul255(dc, 255-sa) + mul255(src[k], dc)
			if oc > oa {
				oc = oa
			}
			dst.Pix[j+k] = uint8(oc)
		}
		dst.Pix[j+3] = uint8(oa)
	}
}

func blendDestinationOut(dst *image.RGBA, mask *image.Alpha) {
	for i, m := range mask.Pix {
		if m == 0 {
			continue
		}
		inv := 255 - uint32(m)
		j := i * 4
		for k := 0; k < 4; k++ {
			dst.Pix[j+k] = uint8(mul255(uint32(dst.Pix[j+k]), inv))
		}
	}
}

// parseHex reads #RRGGBB; anything else draws black.
func parseHex(s string) (uint32, uint32, uint32) {
	if !hexColorRegex.MatchString(s) {
		return 0, 0, 0
	}
	v, err := strconv.ParseUint(s[1:], 16, 32)
	if err != nil {
		return 0, 0, 0
	}
	return uint32(v>>16) & 0xFF, uint32(v>>8) & 0xFF, uint32(v) & 0xFF
}

// Layer keeps the last raster for one page and re-renders only when the page's
// stroke version or the scale changes.
type Layer struct {
	compositor *Compositor
	surface    Surface
	version    uint64
	scale      float64
	image      *image.RGBA
}

func NewLayer(compositor *Compositor) *Layer {
	return &Layer{compositor: compositor}
}

func (l *Layer) Update(surface Surface, strokes []models.Stroke, version uint64, scale float64) (*image.RGBA, bool) {
	if l.image != nil && l.version == version && l.scale == scale && l.surface == surface {
		return l.image, false
	}
	l.image = l.compositor.Render(surface, strokes, scale)
	l.version = version
	l.scale = scale
	l.surface = surface
	return l.image, true
}

func (l *Layer) Image() *image.RGBA {
	return l.image
}

func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
