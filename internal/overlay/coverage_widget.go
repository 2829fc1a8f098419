package overlay

import (
	"fmt"
	"image"
	"image/color"
	"sync"
)

// CoverageWidget shows the frame index and the share of flame pixels as a
// label above a horizontal bar.
type CoverageWidget struct {
	*BaseWidget
	mu        sync.RWMutex
	width     int
	barHeight int
	barColor  color.RGBA
	bgColor   color.RGBA
	frame     int
	coverage  float64
	seen      bool
}

// NewCoverageWidget creates a coverage widget
func NewCoverageWidget(id string, config map[string]interface{}) (*CoverageWidget, error) {
	w := &CoverageWidget{
		BaseWidget: NewBaseWidget(id, 8, 8, 0.85),
		width:      160,
		barHeight:  6,
		barColor:   color.RGBA{255, 64, 0, 255},
		bgColor:    color.RGBA{0, 0, 0, 160},
	}
	if err := w.UpdateConfig(config); err != nil {
		return nil, err
	}
	return w, nil
}

// Type returns the widget type
func (w *CoverageWidget) Type() string {
	return "coverage"
}

// UpdateStats records the latest frame result
func (w *CoverageWidget) UpdateStats(frame int, coverage float64) {
	if coverage < 0 {
		coverage = 0
	}
	if coverage > 1 {
		coverage = 1
	}
	w.mu.Lock()
	w.frame = frame
	w.coverage = coverage
	w.seen = true
	w.mu.Unlock()
}

// Label returns the text drawn above the bar
func (w *CoverageWidget) Label() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if !w.seen {
		return "flame: waiting"
	}
	return fmt.Sprintf("frame %d  flame %.1f%%", w.frame, w.coverage*100)
}

// Render draws the label and the coverage bar
func (w *CoverageWidget) Render(img *image.RGBA) error {
	if !w.IsEnabled() {
		return nil
	}

	label := w.Label()
	w.mu.RLock()
	coverage, width, barHeight, barColor, bg := w.coverage, w.width, w.barHeight, w.barColor, w.bgColor
	w.mu.RUnlock()

	const padding = 4
	const textHeight = 13
	boxHeight := textHeight + barHeight + padding*3

	DrawRectangle(img, w.x, w.y, width, boxHeight, bg, w.opacity)
	drawLabel(img, label, w.x, w.y, padding, color.RGBA{255, 255, 255, 255}, nil, w.opacity)

	barY := w.y + padding*2 + textHeight
	inner := width - padding*2
	DrawRectangle(img, w.x+padding, barY, inner, barHeight, color.RGBA{80, 80, 80, 255}, w.opacity)
	DrawRectangle(img, w.x+padding, barY, int(float64(inner)*coverage+0.5), barHeight, barColor, w.opacity)
	return nil
}

// UpdateConfig updates the widget configuration
func (w *CoverageWidget) UpdateConfig(config map[string]interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.applyCommon(config)

	if v, ok := config["width"]; ok {
		width := getInt(v)
		if width < 16 {
			return fmt.Errorf("coverage widget width must be at least 16, got %d", width)
		}
		w.width = width
	}
	if v, ok := config["bar_height"]; ok {
		h := getInt(v)
		if h < 1 {
			return fmt.Errorf("coverage widget bar_height must be positive, got %d", h)
		}
		w.barHeight = h
	}
	if c, ok := getColor(config["color"]); ok {
		w.barColor = c
	}
	if c, ok := getColor(config["background"]); ok {
		w.bgColor = c
	}
	return nil
}
