package output

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"net/http"
	"sync"
	"time"

	"github.com/bryanchriswhite/FlameSeg/internal/config"
	"github.com/bryanchriswhite/FlameSeg/internal/logger"
	"github.com/bryanchriswhite/FlameSeg/internal/overlay"
	"gocv.io/x/gocv"
)

// MJPEGOutput streams composited frames as Motion JPEG over HTTP so a run
// can be watched live in a browser while it is being recorded.
type MJPEGOutput struct {
	config  Config
	running bool
	mu      sync.RWMutex

	overlay *overlay.Manager

	// Latest encoded frame, served to clients that connect mid-run
	frameMu    sync.RWMutex
	lastJPEG   []byte
	lastUpdate time.Time

	// Connected clients
	clientsMu sync.RWMutex
	clients   map[chan []byte]struct{}

	// Stats
	frameCount uint64
	startTime  time.Time
}

// NewMJPEGOutput creates a new MJPEG stream output
func NewMJPEGOutput(config Config) *MJPEGOutput {
	if config.Quality <= 0 || config.Quality > 100 {
		config.Quality = jpeg.DefaultQuality
	}
	return &MJPEGOutput{
		config:  config,
		clients: make(map[chan []byte]struct{}),
	}
}

// SetOverlay sets the widgets drawn on every streamed frame. Nil disables them.
func (m *MJPEGOutput) SetOverlay(o *overlay.Manager) {
	m.mu.Lock()
	m.overlay = o
	m.mu.Unlock()
}

// Start initializes the MJPEG output
// Note: The HTTP handler is registered separately via GetHTTPHandler()
func (m *MJPEGOutput) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("MJPEG output already running")
	}

	m.running = true
	m.startTime = time.Now()
	m.frameCount = 0

	logger.WithComponent("output").Info().
		Int("width", m.config.Width).
		Int("height", m.config.Height).
		Int("quality", m.config.Quality).
		Msg("MJPEG output started")
	return nil
}

// Stop cleanly shuts down the output and disconnects every client
func (m *MJPEGOutput) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}

	m.running = false

	m.clientsMu.Lock()
	for ch := range m.clients {
		close(ch)
	}
	m.clients = make(map[chan []byte]struct{})
	m.clientsMu.Unlock()

	logger.WithComponent("output").Info().
		Uint64("frames", m.frameCount).
		Msg("MJPEG output stopped")
	return nil
}

// WriteFrame renders the overlay onto a copy of frame, encodes it as JPEG and
// sends it to all connected clients. Slow clients skip frames.
func (m *MJPEGOutput) WriteFrame(frame gocv.Mat) error {
	if !m.IsRunning() {
		return ErrNotRunning
	}

	img, err := m.toRGBA(frame)
	if err != nil {
		return err
	}

	m.mu.RLock()
	hud := m.overlay
	m.mu.RUnlock()
	if hud != nil {
		if err := hud.Render(img); err != nil {
			logger.WithComponent("output").Warn().Err(err).Msg("Failed to render overlay")
		}
	}

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: m.config.Quality}); err != nil {
		return fmt.Errorf("failed to encode JPEG: %w", err)
	}
	jpegData := buf.Bytes()

	m.frameMu.Lock()
	m.lastJPEG = jpegData
	m.lastUpdate = time.Now()
	m.frameMu.Unlock()

	m.mu.Lock()
	m.frameCount++
	m.mu.Unlock()

	m.clientsMu.RLock()
	for ch := range m.clients {
		select {
		case ch <- jpegData:
		default:
			// Client is slow, skip this frame
		}
	}
	m.clientsMu.RUnlock()

	return nil
}

// toRGBA converts a 3-channel Mat in the configured channel order to a
// freshly allocated RGBA image
func (m *MJPEGOutput) toRGBA(frame gocv.Mat) (*image.RGBA, error) {
	if frame.Empty() {
		return nil, fmt.Errorf("empty frame")
	}

	src := frame
	if m.config.ChannelOrder == config.ChannelOrderRGB && frame.Channels() == 3 {
		bgr := gocv.NewMat()
		defer bgr.Close()
		gocv.CvtColor(frame, &bgr, gocv.ColorRGBToBGR)
		src = bgr
	}

	decoded, err := src.ToImage()
	if err != nil {
		return nil, fmt.Errorf("failed to convert frame: %w", err)
	}
	if rgba, ok := decoded.(*image.RGBA); ok {
		return rgba, nil
	}

	rgba := image.NewRGBA(decoded.Bounds())
	draw.Draw(rgba, rgba.Bounds(), decoded, decoded.Bounds().Min, draw.Src)
	return rgba, nil
}

// Name returns the output type name
func (m *MJPEGOutput) Name() string {
	return "MJPEG HTTP Stream"
}

// IsRunning returns true if the output is active
func (m *MJPEGOutput) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// FrameCount returns the number of frames encoded since Start
func (m *MJPEGOutput) FrameCount() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.frameCount
}

// ClientCount returns the number of connected stream clients
func (m *MJPEGOutput) ClientCount() int {
	m.clientsMu.RLock()
	defer m.clientsMu.RUnlock()
	return len(m.clients)
}

// LastFrame returns the most recent encoded JPEG, or nil before the first frame
func (m *MJPEGOutput) LastFrame() []byte {
	m.frameMu.RLock()
	defer m.frameMu.RUnlock()
	return m.lastJPEG
}

// GetHTTPHandler returns an http.Handler for the MJPEG stream
// Mount this at /stream or similar endpoint
func (m *MJPEGOutput) GetHTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")
		w.Header().Set("Connection", "close")

		log := logger.WithComponent("output")

		frameChan := make(chan []byte, 2) // Buffer 2 frames
		if last := m.LastFrame(); last != nil {
			frameChan <- last
		}

		m.clientsMu.Lock()
		m.clients[frameChan] = struct{}{}
		clientCount := len(m.clients)
		m.clientsMu.Unlock()

		log.Info().Int("clients", clientCount).Msg("MJPEG client connected")

		defer func() {
			m.clientsMu.Lock()
			delete(m.clients, frameChan)
			clientCount := len(m.clients)
			m.clientsMu.Unlock()
			log.Info().Int("clients", clientCount).Msg("MJPEG client disconnected")
		}()

		for {
			select {
			case <-r.Context().Done():
				return
			case jpegData, ok := <-frameChan:
				if !ok {
					return
				}
				if err := writePart(w, jpegData); err != nil {
					return
				}
			}
		}
	}
}

func writePart(w http.ResponseWriter, jpegData []byte) error {
	if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(jpegData)); err != nil {
		return err
	}
	if _, err := w.Write(jpegData); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "\r\n"); err != nil {
		return err
	}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}

// GetViewerHandler returns an HTTP handler that displays the stream full-window
func (m *MJPEGOutput) GetViewerHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		html := `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>FlameSeg</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            background: #000;
            overflow: hidden;
            display: flex;
            justify-content: center;
            align-items: center;
            min-height: 100vh;
        }
        img {
            width: 100vw;
            height: 100vh;
            object-fit: contain;
            display: block;
            background: #000;
        }
        .status {
            position: fixed;
            bottom: 16px;
            left: 16px;
            padding: 8px 14px;
            background: rgba(40, 40, 40, 0.9);
            color: #ccc;
            border-radius: 20px;
            font-family: system-ui, -apple-system, sans-serif;
            font-size: 13px;
        }
    </style>
</head>
<body>
    <img src="/stream" alt="FlameSeg live preview">
    <div class="status" id="status">connecting…</div>
    <script>
        const el = document.getElementById('status');
        const proto = location.protocol === 'https:' ? 'wss://' : 'ws://';
        const ws = new WebSocket(proto + location.host + '/api/status/stream');
        ws.onmessage = (ev) => {
            const s = JSON.parse(ev.data);
            el.textContent = s.state + ' · frame ' + s.frames + ' · flame ' + (s.last_coverage * 100).toFixed(1) + '%';
        };
        ws.onclose = () => { el.textContent += ' · disconnected'; };
    </script>
</body>
</html>`
		w.Write([]byte(html))
	}
}

// GetStatsHandler returns an HTTP handler that shows stream statistics
func (m *MJPEGOutput) GetStatsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.mu.RLock()
		running := m.running
		frameCount := m.frameCount
		startTime := m.startTime
		m.mu.RUnlock()

		m.frameMu.RLock()
		lastUpdate := m.lastUpdate
		m.frameMu.RUnlock()

		clientCount := m.ClientCount()

		var fps float64
		if running && !startTime.IsZero() {
			elapsed := time.Since(startTime).Seconds()
			if elapsed > 0 {
				fps = float64(frameCount) / elapsed
			}
		}

		status, statusClass := "Stopped", "status-stopped"
		if running {
			status, statusClass = "Running", "status-running"
		}
		last := "Never"
		if !lastUpdate.IsZero() {
			last = time.Since(lastUpdate).Round(time.Millisecond).String() + " ago"
		}
		uptime := "N/A"
		if !startTime.IsZero() {
			uptime = time.Since(startTime).Round(time.Second).String()
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head>
    <title>FlameSeg - Preview Stats</title>
    <style>
        body { font-family: monospace; padding: 20px; background: #1e1e1e; color: #d4d4d4; }
        .stat { margin: 10px 0; }
        .label { color: #569cd6; }
        .value { color: #4ec9b0; }
        .status-running { color: #4ec9b0; }
        .status-stopped { color: #ce9178; }
    </style>
</head>
<body>
    <h1>FlameSeg Preview Stats</h1>
    <div class="stat"><span class="label">Status:</span> <span class="value %s">%s</span></div>
    <div class="stat"><span class="label">Resolution:</span> <span class="value">%dx%d @ %.2f FPS (source)</span></div>
    <div class="stat"><span class="label">Actual FPS:</span> <span class="value">%.2f</span></div>
    <div class="stat"><span class="label">Total Frames:</span> <span class="value">%d</span></div>
    <div class="stat"><span class="label">Connected Clients:</span> <span class="value">%d</span></div>
    <div class="stat"><span class="label">Last Update:</span> <span class="value">%s</span></div>
    <div class="stat"><span class="label">Uptime:</span> <span class="value">%s</span></div>
    <p><a href="/" style="color: #569cd6;">View Stream</a></p>
</body>
</html>`,
			statusClass, status,
			m.config.Width, m.config.Height, m.config.FPS,
			fps,
			frameCount,
			clientCount,
			last,
			uptime,
		)
	}
}
