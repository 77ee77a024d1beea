// Package display owns the bubble's visible lifetime: auto-hide timing and
// the watchdog that repairs externally clobbered text.
package display

// Renderer is the write path to whatever surface actually draws the
// bubble. Implementations must not call back into the Manager.
type Renderer interface {
	// WriteText replaces the bubble's visible text. Empty hides it.
	WriteText(text string)
	// VisibleText reports what is currently visible, "" when the bubble
	// is empty or hidden.
	VisibleText() string
}
