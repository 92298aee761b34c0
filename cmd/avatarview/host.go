package main

import (
	"fmt"
	"image/color"
	"maps"
	"sync"

	uv "github.com/charmbracelet/ultraviolet"
	"go.uber.org/zap"

	"github.com/taigrr/avatarview/internal/config"
	"github.com/taigrr/avatarview/internal/logger"
	"github.com/taigrr/avatarview/pkg/math3d"
	"github.com/taigrr/avatarview/pkg/viewer"
)

const (
	sliderStep = 0.05
	toneStep   = 0.05
	dragScale  = 1.0 // viewport widths per half turn
)

// termContainer adapts the terminal to viewer.Container. Each cell holds
// two framebuffer rows.
type termContainer struct {
	mu            sync.Mutex
	width, height int // in cells

	// owned by the loop goroutine
	subscriber func(viewer.InputEvent)
	post       func(func())

	// owned by the event goroutine
	mouseDown    bool
	lastX, lastY int
}

func newTermContainer(width, height int, post func(func())) *termContainer {
	return &termContainer{width: width, height: height, post: post}
}

func (c *termContainer) Size() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.width, c.height * 2
}

func (c *termContainer) cells() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.width, c.height
}

func (c *termContainer) setSize(width, height int) {
	c.mu.Lock()
	c.width, c.height = width, height
	c.mu.Unlock()
}

// Subscribe implements viewer.InputSource.
func (c *termContainer) Subscribe(fn func(viewer.InputEvent)) func() {
	c.subscriber = fn
	return func() { c.subscriber = nil }
}

func (c *termContainer) emit(ev viewer.InputEvent) {
	c.post(func() {
		if c.subscriber != nil {
			c.subscriber(ev)
		}
	})
}

// handle turns mouse events into orbit input. It runs on the event
// goroutine.
func (c *termContainer) handle(ev uv.Event) {
	w, h := c.cells()
	if w == 0 || h == 0 {
		return
	}
	switch ev := ev.(type) {
	case uv.MouseClickEvent:
		c.mouseDown = true
		c.lastX, c.lastY = ev.X, ev.Y
	case uv.MouseReleaseEvent:
		c.mouseDown = false
	case uv.MouseMotionEvent:
		if !c.mouseDown {
			return
		}
		dx, dy := ev.X-c.lastX, ev.Y-c.lastY
		c.lastX, c.lastY = ev.X, ev.Y
		c.emit(viewer.InputEvent{
			Kind: viewer.InputDrag,
			DX:   float64(dx) / float64(w) * dragScale,
			DY:   float64(dy) / float64(h) * dragScale,
		})
	case uv.MouseWheelEvent:
		switch ev.Button {
		case uv.MouseWheelUp:
			c.emit(viewer.InputEvent{Kind: viewer.InputZoom, DY: -1})
		case uv.MouseWheelDown:
			c.emit(viewer.InputEvent{Kind: viewer.InputZoom, DY: 1})
		}
	}
}

// host holds the terminal's UI state. Every method runs on the loop
// goroutine.
type host struct {
	v   *viewer.Viewer
	log *zap.Logger

	values   map[string]float64
	selected int
	tone     float64
	showHUD  bool

	autoRotatePending bool
}

func newHost(v *viewer.Viewer, cfg *config.Config) *host {
	return &host{
		v:                 v,
		log:               logger.Named("host"),
		values:            make(map[string]float64),
		tone:              cfg.Subject.SkinTone,
		showHUD:           true,
		autoRotatePending: cfg.Viewer.AutoRotate,
	}
}

func (h *host) params() []string {
	return h.v.Refs().MorphologyMapping.Get().Names()
}

func (h *host) selectedParam() (string, bool) {
	names := h.params()
	if len(names) == 0 {
		return "", false
	}
	h.selected = (h.selected%len(names) + len(names)) % len(names)
	return names[h.selected], true
}

func (h *host) key(ev uv.KeyPressEvent) {
	switch {
	case ev.MatchString("1"):
		h.v.SetCameraView(viewer.PresetFront)
	case ev.MatchString("2"):
		h.v.SetCameraView(viewer.PresetProfile)
	case ev.MatchString("3"):
		h.v.SetCameraView(viewer.PresetThreeQuarter)
	case ev.MatchString("a"):
		h.v.ToggleAutoRotate()
	case ev.MatchString("r"):
		h.v.ResetCamera()
	case ev.MatchString("up"):
		h.selected--
	case ev.MatchString("down"):
		h.selected++
	case ev.MatchString("left"):
		h.adjust(-sliderStep)
	case ev.MatchString("right"):
		h.adjust(sliderStep)
	case ev.MatchString("T", "shift+t"):
		h.setTone(h.tone - toneStep)
	case ev.MatchString("t"):
		h.setTone(h.tone + toneStep)
	case ev.MatchString("g"):
		s := h.v.Subject()
		next := "male"
		if s.Gender == "male" {
			next = "female"
		}
		h.v.SetSubject(next, s.ScanID)
	case ev.MatchString("f"):
		h.v.SetPerformanceMode(!h.v.PerformanceMode())
	case ev.MatchString("p"):
		h.v.SetProjectionSession(!h.v.Refs().ProjectionSessionActive.Get())
	case ev.MatchString("f5", "ctrl+r"):
		if !h.v.RetryInitialization() {
			h.log.Debug("retry ignored", zap.Stringer("phase", h.v.State().Phase))
		}
	case ev.MatchString("?", "shift+/"):
		h.showHUD = !h.showHUD
	}
}

func (h *host) adjust(delta float64) {
	name, ok := h.selectedParam()
	if !ok {
		return
	}
	h.values[name] += delta
	h.v.UpdateMorphData(viewer.Overrides{Morphs: maps.Clone(h.values)})
}

func (h *host) setTone(t float64) {
	h.tone = math3d.Clamp(t, 0, 1)
	h.v.UpdateMorphData(viewer.Overrides{SkinTone: &viewer.SkinToneInput{Tone: h.tone}})
}

// tick runs once per frame before rendering.
func (h *host) tick() {
	if h.autoRotatePending && h.v.IsReady() {
		if !h.v.Camera().AutoRotate() {
			h.v.ToggleAutoRotate()
		}
		h.autoRotatePending = false
	}
}

var (
	hudFg = color.RGBA{235, 235, 235, 255}
	hudBg = color.RGBA{0, 0, 0, 255}
	errFg = color.RGBA{255, 110, 110, 255}
)

func (h *host) drawHUD(scr uv.Screen, width, height int) {
	if !h.showHUD || height < 2 {
		return
	}
	st := h.v.State()
	stats := h.v.Stats()
	subject := h.v.Subject()

	top := fmt.Sprintf(" %s | %s | updates %d/%d", st.Phase, subject, stats.Successes, stats.Attempts)
	if h.v.Camera().AutoRotate() {
		top += " | auto-rotate"
	}
	if !h.v.Refs().ProjectionSessionActive.Get() {
		top += " | session paused"
	}
	drawText(scr, 0, width, top, hudFg)

	var bottom string
	fg := hudFg
	switch {
	case st.HasError():
		bottom = " error: " + st.ErrorMessage() + " (F5 to retry)"
		fg = errFg
	case h.v.Refs().MorphologyMapping.Get() == nil:
		bottom = " waiting for mapping table"
	default:
		if name, ok := h.selectedParam(); ok {
			bottom = fmt.Sprintf(" %s = %.2f", name, h.values[name])
		}
		if tone, ok := h.v.SkinTone(); ok {
			bottom += fmt.Sprintf("   skin %.2f", tone.Normalized)
		}
	}
	drawText(scr, height-1, width, bottom, fg)
}

func drawText(scr uv.Screen, row, width int, text string, fg color.Color) {
	col := 0
	for _, r := range text {
		if col >= width {
			break
		}
		scr.SetCell(col, row, &uv.Cell{
			Content: string(r),
			Width:   1,
			Style:   uv.Style{Fg: fg, Bg: hudBg},
		})
		col++
	}
	for ; col < width; col++ {
		scr.SetCell(col, row, &uv.Cell{Content: " ", Width: 1, Style: uv.Style{Bg: hudBg}})
	}
}

func clearArea(scr uv.Screen, area uv.Rectangle) {
	for row := area.Min.Y; row < area.Max.Y; row++ {
		for col := area.Min.X; col < area.Max.X; col++ {
			scr.SetCell(col, row, &uv.Cell{Content: " ", Width: 1})
		}
	}
}
