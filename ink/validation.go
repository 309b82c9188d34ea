package ink

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/zlnvch/folio/models"
)

var ErrInvalidStroke = errors.New("invalid stroke")

var hexColorRegex = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

const (
	minWidth        = 1
	maxWidth        = 20
	minStrokePoints = 2
	maxStrokePoints = 5000

	// NoColor is the reserved "no colour" value a highlighter may carry.
	NoColor          = "transparent"
	DefaultHighlight = "#FFEB3B"
)

func isNoColor(c string) bool {
	return c == "" || strings.EqualFold(c, NoColor)
}

func ValidateStroke(s models.Stroke) error {
	switch s.Tool {
	case models.ToolPen, models.ToolHighlighter, models.ToolEraser:
	default:
		return fmt.Errorf("%w: invalid tool", ErrInvalidStroke)
	}

	// Only the highlighter may use the reserved value; the eraser ignores colour entirely
	if s.Tool == models.ToolPen && !hexColorRegex.MatchString(s.Color) {
		return fmt.Errorf("%w: invalid color", ErrInvalidStroke)
	}
	if s.Tool == models.ToolHighlighter && !isNoColor(s.Color) && !hexColorRegex.MatchString(s.Color) {
		return fmt.Errorf("%w: invalid color", ErrInvalidStroke)
	}

	if s.Width < minWidth || s.Width > maxWidth {
		return fmt.Errorf("%w: invalid width", ErrInvalidStroke)
	}

	if len(s.Points) < minStrokePoints {
		return fmt.Errorf("%w: stroke too short", ErrInvalidStroke)
	}
	if len(s.Points) > maxStrokePoints {
		return fmt.Errorf("%w: stroke too long", ErrInvalidStroke)
	}

	return nil
}

// WidthFor returns the fixed line width each tool draws with.
func WidthFor(tool models.Tool) float64 {
	switch tool {
	case models.ToolPen:
		return 3
	case models.ToolHighlighter, models.ToolEraser:
		return 20
	default:
		return 0
	}
}
