package parammap

import (
	"fmt"
	"io/ioutil"
	"strconv"
	"strings"

	"github.com/go-yaml/yaml"
)

// DeviceConfig ties a logical device to a MIDI port and channel.
type DeviceConfig struct {
	Port    string `yaml:"port"`
	Channel int    `yaml:"channel"`
}

// Config is the daemon configuration.
type Config struct {
	// ListenAddress is where OSC from the UI and the script host arrives.
	ListenAddress string `yaml:"listenAddress"`
	ScriptAddress string `yaml:"scriptAddress"`
	UIAddress     string `yaml:"uiAddress"`
	StatusAddress string `yaml:"statusAddress"`

	// Devices maps a device id, or a range of ids such as "2..4", to a port.
	// Devices of a range use consecutive channels starting at Channel.
	Devices map[string]DeviceConfig `yaml:"devices"`

	PresetFile  string `yaml:"presetFile"`
	SnapshotDir string `yaml:"snapshotDir"`

	KeepPresetState          bool `yaml:"keepPresetState"`
	LoadPresetStateOnStartup bool `yaml:"loadPresetStateOnStartup"`
	SendDefaultsOnLoad       bool `yaml:"sendDefaultsOnLoad"`

	devices map[int]DeviceConfig
}

// LoadConfig reads and validates the config file at path.
func LoadConfig(path string) (*Config, error) {
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("couldn't read config file: %v", err)
	}
	return ParseConfig(raw)
}

func ParseConfig(raw []byte) (*Config, error) {
	c := &Config{}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return nil, fmt.Errorf("couldn't parse config file: %v", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) validate() error {
	for name, a := range map[string]string{
		"listenAddress": c.ListenAddress,
		"scriptAddress": c.ScriptAddress,
		"uiAddress":     c.UIAddress,
		"statusAddress": c.StatusAddress,
	} {
		if a == "" {
			continue
		}
		if _, _, err := splitAddress(a); err != nil {
			return fmt.Errorf("invalid %s: %v", name, err)
		}
	}

	c.devices = make(map[int]DeviceConfig)
	for k, d := range c.Devices {
		lo, hi, err := parseRange(k)
		if err != nil {
			return fmt.Errorf("invalid device %q: %v", k, err)
		}
		if d.Channel == 0 {
			d.Channel = 1
		}
		for id, ch := lo, d.Channel; id <= hi; id, ch = id+1, ch+1 {
			if err := validateDeviceID(id); err != nil {
				return err
			}
			if ch < 1 || ch > 16 {
				return fmt.Errorf("device %d: invalid channel %d", id, ch)
			}
			if _, ok := c.devices[id]; ok {
				return fmt.Errorf("duplicate mapping for device %d", id)
			}
			c.devices[id] = DeviceConfig{Port: d.Port, Channel: ch}
		}
	}
	return nil
}

// Device returns the port and channel of a device id.
func (c *Config) Device(id int) (DeviceConfig, bool) {
	d, ok := c.devices[id]
	return d, ok
}

// DeviceIDs returns the configured device ids.
func (c *Config) DeviceIDs() []int {
	r := make([]int, 0, len(c.devices))
	for id := MinDeviceID; id <= MaxDeviceID; id++ {
		if _, ok := c.devices[id]; ok {
			r = append(r, id)
		}
	}
	return r
}

func (c *Config) Policy() Policy {
	return Policy{
		KeepPresetState:          c.KeepPresetState,
		LoadPresetStateOnStartup: c.LoadPresetStateOnStartup,
	}
}

func (c *Config) Options() Options {
	return Options{SendDefaultsOnLoad: c.SendDefaultsOnLoad}
}

func splitAddress(a string) (string, int, error) {
	bits := strings.Split(a, ":")
	if c := len(bits); c != 2 {
		return "", 0, fmt.Errorf("invalid address:port - found %d ':', expected 1", c-1)
	}
	port, err := strconv.Atoi(bits[1])
	if err != nil {
		return "", 0, fmt.Errorf("invalid port: %q", err)
	}
	return bits[0], port, nil
}

// parseRange reads a device key: a single id, or an inclusive range of ids
// such as 4..7.
func parseRange(r string) (int, int, error) {
	rng := strings.Split(r, "..")
	switch l := len(rng); l {
	case 1:
		v, err := strconv.Atoi(rng[0])
		if err != nil {
			return -1, -1, fmt.Errorf("invalid range %v", err)
		}
		return v, v, nil
	case 2:
		lo, err := strconv.Atoi(rng[0])
		if err != nil {
			return -1, -1, fmt.Errorf("invalid range lower %v", err)
		}
		hi, err := strconv.Atoi(rng[1])
		if err != nil {
			return -1, -1, fmt.Errorf("invalid range upper %v", err)
		}
		if lo > hi {
			return -1, -1, fmt.Errorf("invalid range %d > %d", lo, hi)
		}
		return lo, hi, nil
	default:
		return -1, -1, fmt.Errorf("invalid range %q", r)
	}
}
