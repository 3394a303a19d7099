package led

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

const deviceTreeModelPath = "/proc/device-tree/model"

// TallyLED is the logical name the manager drives.
const TallyLED = "tally"

// Config selects the LED used as tally light.
type Config struct {
	// LED is a sysfs LED directory name. Empty means detect from the board.
	LED string
	// SysfsRoot overrides /sys/class/leds.
	SysfsRoot string
	// ModelPath overrides /proc/device-tree/model.
	ModelPath string
}

// boardLEDs maps board model substrings to the LED used as tally.
var boardLEDs = []struct {
	model string
	led   string
}{
	{"NanoPC-T6", "usr_led"},
	{"Orange Pi", "green_led"},
	{"Raspberry Pi", "ACT"},
}

// New returns a sysfs controller for the configured or detected LED, or a
// no-op controller when none is present.
func New(cfg Config, logger *slog.Logger) Controller {
	root := cfg.SysfsRoot
	if root == "" {
		root = sysfsLEDPath
	}

	name := cfg.LED
	if name == "" {
		model := detectBoard(cfg.ModelPath)
		logger.Info("Detecting board for tally LED", "board_model", model)
		for _, b := range boardLEDs {
			if strings.Contains(model, b.model) {
				name = b.led
				break
			}
		}
	}

	if name == "" {
		logger.Info("No tally LED detected, using no-op controller")
		return newNoop(logger)
	}
	if _, err := os.Stat(filepath.Join(root, name)); err != nil {
		logger.Warn("Tally LED not present, using no-op controller", "led", name, "error", err)
		return newNoop(logger)
	}

	logger.Info("Using sysfs tally LED", "led", name)
	return newSysfs(root, map[string]string{TallyLED: name})
}

// detectBoard reads the device tree model to identify the board.
func detectBoard(path string) string {
	if path == "" {
		path = deviceTreeModelPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "unknown"
	}
	// Device tree strings are NUL terminated
	return strings.TrimRight(string(data), "\x00")
}
