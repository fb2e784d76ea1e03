package rfid

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/gobwas/glob"

	"github.com/noshadows/soundmachine/internal/config"
	"github.com/noshadows/soundmachine/internal/errors"
)

var eventHandler = regexp.MustCompile(`\bevent\d+\b`)

// InputDevice is one block of /proc/bus/input/devices.
type InputDevice struct {
	Name     string
	Handlers []string
}

// Events returns the evdev handler names (event0, event1, ...) of the device.
func (d InputDevice) Events() []string {
	var events []string
	for _, h := range d.Handlers {
		if eventHandler.MatchString(h) {
			events = append(events, h)
		}
	}
	return events
}

// Device is an event node to read key presses from.
type Device struct {
	Path string
	Name string
}

// ParseDevices parses the kernel's input device listing. Blocks are separated
// by blank lines; only the N: and H: lines are used.
func ParseDevices(r io.Reader) ([]InputDevice, error) {
	var (
		devices []InputDevice
		cur     InputDevice
		inBlock bool
	)
	flush := func() {
		if inBlock {
			devices = append(devices, cur)
		}
		cur = InputDevice{}
		inBlock = false
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			flush()
			continue
		}
		inBlock = true
		switch {
		case strings.HasPrefix(line, "N: Name="):
			cur.Name = strings.Trim(strings.TrimPrefix(line, "N: Name="), `"`)
		case strings.HasPrefix(line, "H: Handlers="):
			cur.Handlers = strings.Fields(strings.TrimPrefix(line, "H: Handlers="))
		}
	}
	flush()
	return devices, scanner.Err()
}

// Discover returns the event nodes of input devices whose name matches one of
// cfg.DevicePatterns, ignoring case. When nothing matches, every event node under
// cfg.InputDir is returned. No node at all is an error wrapping
// ErrDeviceNotFound.
func Discover(cfg config.RFIDConfig) ([]Device, error) {
	patterns := make([]glob.Glob, 0, len(cfg.DevicePatterns))
	for _, p := range cfg.DevicePatterns {
		g, err := glob.Compile(strings.ToLower(p))
		if err != nil {
			return nil, errors.NewValidationError("invalid device pattern").
				WithField("rfid.device_patterns").WithValue(p).WithCause(err)
		}
		patterns = append(patterns, g)
	}

	var found []Device
	if f, err := os.Open(cfg.DevicesFile); err == nil {
		inputs, perr := ParseDevices(f)
		_ = f.Close()
		if perr != nil {
			return nil, errors.NewDeviceError("cannot parse input device list", perr).WithPath(cfg.DevicesFile)
		}
		found = matchDevices(inputs, patterns, cfg.InputDir)
	}
	if len(found) > 0 {
		return found, nil
	}

	nodes, err := filepath.Glob(filepath.Join(cfg.InputDir, "event*"))
	if err != nil {
		return nil, errors.Wrap(err, "failed to list event devices")
	}
	sort.Strings(nodes)
	for _, node := range nodes {
		found = append(found, Device{Path: node, Name: "unknown device"})
	}
	if len(found) == 0 {
		return nil, errors.NewDeviceError("no input devices found", errors.ErrDeviceNotFound).WithPath(cfg.InputDir)
	}
	return found, nil
}

func matchDevices(inputs []InputDevice, patterns []glob.Glob, inputDir string) []Device {
	var found []Device
	seen := make(map[string]bool)
	for _, in := range inputs {
		if !matchesAny(strings.ToLower(in.Name), patterns) {
			continue
		}
		for _, ev := range in.Events() {
			path := filepath.Join(inputDir, ev)
			if seen[path] {
				continue
			}
			seen[path] = true
			found = append(found, Device{Path: path, Name: in.Name})
		}
	}
	return found
}

func matchesAny(name string, patterns []glob.Glob) bool {
	for _, g := range patterns {
		if g.Match(name) {
			return true
		}
	}
	return false
}
