package hud

import (
	"context"

	"github.com/gdamore/tcell/v2"

	"tvc-hud/watcher/internal/poll"
)

var (
	styleHeader = tcell.StyleDefault.Foreground(tcell.ColorWhite).Bold(true)
	styleSlot   = tcell.StyleDefault.Foreground(tcell.ColorGreen)
	styleAdv    = tcell.StyleDefault.Foreground(tcell.ColorYellow)
	styleLog    = tcell.StyleDefault.Foreground(tcell.ColorSilver)
)

// HUD draws a Model onto a tcell screen. The caller initializes the screen;
// Run finalizes it on return.
type HUD struct {
	screen tcell.Screen
	model  *Model
}

func New(screen tcell.Screen, logLines int) *HUD {
	return &HUD{screen: screen, model: NewModel(logLines)}
}

func (h *HUD) Model() *Model {
	return h.model
}

// Draw renders the header at the top and as much of the hit log as fits
// below it, newest at the bottom.
func (h *HUD) Draw() {
	h.screen.Clear()
	width, height := h.screen.Size()
	header := h.model.Header()
	y := 0
	for i, line := range header {
		if y >= height {
			break
		}
		style := styleSlot
		switch {
		case i == 0:
			style = styleHeader
		case i == len(header)-1:
			style = styleAdv
		}
		drawText(h.screen, 0, y, width, line, style)
		y++
	}
	if y < height {
		y++
	}

	log := h.model.Log()
	room := height - y
	if room <= 0 {
		return
	}
	if len(log) > room {
		log = log[len(log)-room:]
	}
	for _, line := range log {
		drawText(h.screen, 0, y, width, line, styleLog)
		y++
	}
}

// Run redraws on every frame until ctx ends, frames closes or the user
// quits with Esc, q or Ctrl-C. Quitting calls cancel so the rest of the
// application shuts down with the HUD.
func (h *HUD) Run(ctx context.Context, frames <-chan poll.Frame, cancel context.CancelFunc) error {
	defer h.screen.Fini()

	done := make(chan struct{})
	defer close(done)
	events := make(chan tcell.Event, 16)
	go func() {
		for {
			ev := h.screen.PollEvent()
			if ev == nil {
				return
			}
			select {
			case events <- ev:
			case <-done:
				return
			}
		}
	}()

	h.Draw()
	h.screen.Show()
	for {
		select {
		case <-ctx.Done():
			return nil
		case frame, ok := <-frames:
			if !ok {
				return nil
			}
			h.model.Apply(frame)
			h.Draw()
			h.screen.Show()
		case ev := <-events:
			switch ev := ev.(type) {
			case *tcell.EventKey:
				if quitKey(ev) {
					if cancel != nil {
						cancel()
					}
					return nil
				}
			case *tcell.EventResize:
				h.screen.Sync()
				h.Draw()
				h.screen.Show()
			}
		}
	}
}

func quitKey(ev *tcell.EventKey) bool {
	switch ev.Key() {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		return true
	case tcell.KeyRune:
		return ev.Rune() == 'q' || ev.Rune() == 'Q'
	}
	return false
}

func drawText(screen tcell.Screen, x, y, width int, text string, style tcell.Style) {
	for _, r := range text {
		if x >= width {
			return
		}
		screen.SetContent(x, y, r, nil, style)
		x++
	}
}
