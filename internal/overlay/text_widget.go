package overlay

import (
	"fmt"
	"image"
	"image/color"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// TextWidget displays a line of text, optionally on a background box
type TextWidget struct {
	*BaseWidget
	mu        sync.RWMutex
	text      string
	textColor color.RGBA
	bgColor   *color.RGBA
	padding   int
}

// NewTextWidget creates a new text widget
func NewTextWidget(id string, config map[string]interface{}) (*TextWidget, error) {
	w := &TextWidget{
		BaseWidget: NewBaseWidget(id, 0, 0, 1.0),
		textColor:  color.RGBA{255, 255, 255, 255},
		padding:    5,
	}

	if err := w.UpdateConfig(config); err != nil {
		return nil, err
	}
	return w, nil
}

// Type returns the widget type
func (w *TextWidget) Type() string {
	return "text"
}

// Render draws the text widget
func (w *TextWidget) Render(img *image.RGBA) error {
	w.mu.RLock()
	text, fg, bg, padding := w.text, w.textColor, w.bgColor, w.padding
	w.mu.RUnlock()

	if !w.IsEnabled() || text == "" {
		return nil
	}
	drawLabel(img, text, w.x, w.y, padding, fg, bg, w.opacity)
	return nil
}

// drawLabel renders text in basicfont 7x13 with its box's top-left corner at (x, y)
func drawLabel(img *image.RGBA, text string, x, y, padding int, fg color.RGBA, bg *color.RGBA, opacity float64) {
	face := basicfont.Face7x13
	height := face.Metrics().Height.Ceil()
	width := font.MeasureString(face, text).Ceil()

	if bg != nil {
		DrawRectangle(img, x, y, width+padding*2, height+padding*2, *bg, opacity)
	}

	label := image.NewRGBA(image.Rect(0, 0, width, height))
	d := &font.Drawer{
		Dst:  label,
		Src:  image.NewUniform(fg),
		Face: face,
		Dot:  fixed.Point26_6{X: 0, Y: face.Metrics().Ascent},
	}
	d.DrawString(text)

	BlendImage(img, label, x+padding, y+padding, opacity)
}

// UpdateConfig updates the widget configuration
func (w *TextWidget) UpdateConfig(config map[string]interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.applyCommon(config)

	if text, ok := config["text"].(string); ok {
		w.text = text
	}
	if padding, ok := config["padding"]; ok {
		p := getInt(padding)
		if p < 0 {
			return fmt.Errorf("padding must not be negative, got %d", p)
		}
		w.padding = p
	}
	if c, ok := getColor(config["color"]); ok {
		w.textColor = c
	}
	if c, ok := getColor(config["background"]); ok {
		w.bgColor = &c
	}
	return nil
}
