package overlay

import (
	"fmt"
	"image"
	"sort"
	"sync"

	"github.com/bryanchriswhite/FlameSeg/internal/logger"
)

// Manager handles overlay widgets and rendering
type Manager struct {
	widgets map[string]Widget
	mu      sync.RWMutex
}

// NewManager creates a new overlay manager
func NewManager() *Manager {
	return &Manager{
		widgets: make(map[string]Widget),
	}
}

// NewHUD returns a manager holding the default coverage widget
func NewHUD() *Manager {
	m := NewManager()
	w, _ := NewCoverageWidget("coverage", nil)
	m.AddWidget(w)
	return m
}

// AddWidget adds a widget to the overlay
func (m *Manager) AddWidget(widget Widget) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.widgets[widget.ID()]; exists {
		return fmt.Errorf("widget with ID %s already exists", widget.ID())
	}

	m.widgets[widget.ID()] = widget
	logger.WithComponent("overlay").Debug().
		Str("widget", widget.ID()).
		Str("type", widget.Type()).
		Msg("Added widget")
	return nil
}

// UpdateStats forwards a frame result to every widget that displays one
func (m *Manager) UpdateStats(frame int, coverage float64) {
	for _, w := range m.sorted() {
		if r, ok := w.(StatsReceiver); ok {
			r.UpdateStats(frame, coverage)
		}
	}
}

// Render renders all enabled widgets onto the provided image, in ID order
func (m *Manager) Render(img *image.RGBA) error {
	for _, widget := range m.sorted() {
		if !widget.IsEnabled() {
			continue
		}
		if err := widget.Render(img); err != nil {
			logger.WithComponent("overlay").Warn().
				Err(err).
				Str("widget", widget.ID()).
				Msg("Failed to render widget")
		}
	}
	return nil
}

func (m *Manager) sorted() []Widget {
	m.mu.RLock()
	widgets := make([]Widget, 0, len(m.widgets))
	for _, widget := range m.widgets {
		widgets = append(widgets, widget)
	}
	m.mu.RUnlock()

	sort.Slice(widgets, func(i, j int) bool { return widgets[i].ID() < widgets[j].ID() })
	return widgets
}

// CreateWidget creates a new widget instance from configuration
func (m *Manager) CreateWidget(widgetType string, id string, config map[string]interface{}) (Widget, error) {
	var widget Widget
	var err error

	switch widgetType {
	case "text":
		widget, err = NewTextWidget(id, config)
	case "coverage":
		widget, err = NewCoverageWidget(id, config)
	default:
		return nil, fmt.Errorf("unknown widget type: %s", widgetType)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create %s widget: %w", widgetType, err)
	}
	return widget, nil
}

// LoadFromConfig creates and adds widgets from their configuration maps.
// Entries that cannot be built are logged and skipped.
func (m *Manager) LoadFromConfig(configs []map[string]interface{}) {
	log := logger.WithComponent("overlay")
	for _, config := range configs {
		widgetType, _ := config["type"].(string)
		id, _ := config["id"].(string)
		if widgetType == "" || id == "" {
			log.Warn().Msg("Skipping widget with missing type or ID")
			continue
		}

		widget, err := m.CreateWidget(widgetType, id, config)
		if err != nil {
			log.Warn().Err(err).Str("widget", id).Msg("Failed to create widget")
			continue
		}
		if err := m.AddWidget(widget); err != nil {
			log.Warn().Err(err).Str("widget", id).Msg("Failed to add widget")
		}
	}
}
