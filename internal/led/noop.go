package led

import "log/slog"

// noop implements Controller for systems without a usable LED.
type noop struct {
	logger *slog.Logger
}

func newNoop(logger *slog.Logger) *noop {
	return &noop{logger: logger}
}

// Set logs the request but touches no hardware.
func (n *noop) Set(name, pattern string) error {
	n.logger.Debug("LED control not available (no-op)", "led", name, "pattern", pattern)
	return nil
}

// Available returns an empty list since no LEDs are available.
func (n *noop) Available() []string {
	return []string{}
}
