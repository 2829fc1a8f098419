package overlay

import (
	"image"
	"image/color"
	"image/draw"
)

// Widget represents a renderable overlay widget
type Widget interface {
	// ID returns the unique identifier for this widget instance
	ID() string

	// Type returns the widget type name
	Type() string

	// Render draws the widget onto the provided image at the configured position
	Render(img *image.RGBA) error

	// UpdateConfig updates the widget's configuration
	UpdateConfig(config map[string]interface{}) error

	// IsEnabled returns whether the widget should be rendered
	IsEnabled() bool

	// SetEnabled sets whether the widget should be rendered
	SetEnabled(enabled bool)
}

// StatsReceiver is implemented by widgets that show per-frame segmentation results
type StatsReceiver interface {
	UpdateStats(frame int, coverage float64)
}

// BaseWidget provides common functionality for all widgets
type BaseWidget struct {
	id      string
	enabled bool
	x       int
	y       int
	opacity float64 // 0.0 to 1.0
}

// NewBaseWidget creates a new base widget
func NewBaseWidget(id string, x, y int, opacity float64) *BaseWidget {
	w := &BaseWidget{id: id, enabled: true, x: x, y: y}
	w.SetOpacity(opacity)
	return w
}

// ID returns the widget's unique identifier
func (w *BaseWidget) ID() string {
	return w.id
}

// IsEnabled returns whether the widget should be rendered
func (w *BaseWidget) IsEnabled() bool {
	return w.enabled
}

// SetEnabled sets whether the widget should be rendered
func (w *BaseWidget) SetEnabled(enabled bool) {
	w.enabled = enabled
}

// SetOpacity sets the widget's opacity, clamped to [0,1]
func (w *BaseWidget) SetOpacity(opacity float64) {
	if opacity < 0.0 {
		opacity = 0.0
	}
	if opacity > 1.0 {
		opacity = 1.0
	}
	w.opacity = opacity
}

// applyCommon reads the position/opacity/enabled keys shared by all widgets
func (w *BaseWidget) applyCommon(config map[string]interface{}) {
	if x, ok := config["x"]; ok {
		w.x = getInt(x)
	}
	if y, ok := config["y"]; ok {
		w.y = getInt(y)
	}
	if opacity, ok := config["opacity"].(float64); ok {
		w.SetOpacity(opacity)
	}
	if enabled, ok := config["enabled"].(bool); ok {
		w.SetEnabled(enabled)
	}
}

// BlendImage composites src over dst with its top-left corner at (x, y),
// scaling src alpha by opacity. Pixels outside dst are clipped.
func BlendImage(dst *image.RGBA, src image.Image, x, y int, opacity float64) {
	if opacity <= 0 {
		return
	}

	sb := src.Bounds()
	target := image.Rect(x, y, x+sb.Dx(), y+sb.Dy()).Intersect(dst.Bounds())
	if target.Empty() {
		return
	}
	sp := sb.Min.Add(target.Min.Sub(image.Pt(x, y)))

	draw.DrawMask(dst, target, src, sp, opacityMask(opacity), image.Point{}, draw.Over)
}

// DrawRectangle draws a filled rectangle with the specified color and opacity
func DrawRectangle(dst *image.RGBA, x, y, width, height int, c color.Color, opacity float64) {
	target := image.Rect(x, y, x+width, y+height).Intersect(dst.Bounds())
	if target.Empty() || opacity <= 0 {
		return
	}
	draw.DrawMask(dst, target, image.NewUniform(c), image.Point{}, opacityMask(opacity), image.Point{}, draw.Over)
}

func opacityMask(opacity float64) image.Image {
	if opacity > 1 {
		opacity = 1
	}
	return image.NewUniform(color.Alpha{A: uint8(opacity*255 + 0.5)})
}

// getInt extracts an integer value from an interface{} that might be int or float64
func getInt(v interface{}) int {
	switch val := v.(type) {
	case int:
		return val
	case float64:
		return int(val)
	case int64:
		return int(val)
	default:
		return 0
	}
}

// getColor parses {r,g,b,a} maps
func getColor(v interface{}) (color.RGBA, bool) {
	m, ok := v.(map[string]interface{})
	if !ok {
		return color.RGBA{}, false
	}
	a := 255
	if raw, ok := m["a"]; ok {
		a = getInt(raw)
	}
	return color.RGBA{
		R: uint8(getInt(m["r"])),
		G: uint8(getInt(m["g"])),
		B: uint8(getInt(m["b"])),
		A: uint8(a),
	}, true
}
