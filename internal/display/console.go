package display

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// ConsoleRenderer draws the bubble as a line on a terminal. It is the
// headless surface used when no overlay window is attached, and doubles as
// a reference Renderer implementation.
type ConsoleRenderer struct {
	mu      sync.Mutex
	out     io.Writer
	visible string
}

// NewConsoleRenderer creates a renderer writing to stdout.
func NewConsoleRenderer() *ConsoleRenderer {
	return &ConsoleRenderer{out: os.Stdout}
}

// WriteText replaces the visible line. Empty hides it.
func (r *ConsoleRenderer) WriteText(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.visible = text
	if text == "" {
		fmt.Fprintln(r.out, "  ( ... )")
		return
	}
	fmt.Fprintf(r.out, "  ( %s )\n", text)
}

// VisibleText reports the currently visible line.
func (r *ConsoleRenderer) VisibleText() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.visible
}
