// Package led drives a board LED as a tally light: solid while a camera
// streams, blinking after a failed automatic transition, off when idle.
package led

// Patterns understood by every Controller.
const (
	PatternSolid = "solid"
	PatternBlink = "blink"
	PatternOff   = "off"
)

// Controller abstracts LED hardware control across different SBC boards.
type Controller interface {
	// Set drives the named LED with one of the Pattern constants.
	Set(name, pattern string) error

	// Available returns the LED names this controller can drive.
	Available() []string
}
