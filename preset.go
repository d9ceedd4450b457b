package parammap

import (
	"fmt"
	"io/ioutil"
	"sort"

	"github.com/go-yaml/yaml"
	"github.com/golang/glog"
)

// Preset is a parsed preset: its controls and the project id its snapshots
// are stored under.
type Preset struct {
	Name      string
	ProjectID string
	Controls  []*Control
	Overlays  map[int]*Overlay
}

// Control returns the control with the given id.
func (p *Preset) Control(id int) (*Control, bool) {
	for _, c := range p.Controls {
		if c.ID == id {
			return c, true
		}
	}
	return nil, false
}

type presetFile struct {
	Name      string          `yaml:"name"`
	ProjectID string          `yaml:"projectId"`
	Overlays  []*Overlay      `yaml:"overlays"`
	Controls  []presetControl `yaml:"controls"`
}

type presetControl struct {
	ID     int           `yaml:"id"`
	Name   string        `yaml:"name"`
	Type   Kind          `yaml:"type"`
	Values []presetValue `yaml:"values"`
}

type presetValue struct {
	ID        string        `yaml:"id"`
	Min       *int          `yaml:"min"`
	Max       *int          `yaml:"max"`
	Default   int           `yaml:"defaultValue"`
	Formatter string        `yaml:"formatter"`
	Function  string        `yaml:"function"`
	OverlayID int           `yaml:"overlayId"`
	Message   presetMessage `yaml:"message"`
}

type presetMessage struct {
	DeviceID        int         `yaml:"deviceId"`
	Type            MessageType `yaml:"type"`
	ParameterNumber int         `yaml:"parameterNumber"`
	Min             *int        `yaml:"min"`
	Max             *int        `yaml:"max"`
	SignMode        SignMode    `yaml:"signMode"`
	BitWidth        uint8       `yaml:"bitWidth"`
}

// LoadPreset reads and parses the preset file at path.
func LoadPreset(path string) (*Preset, error) {
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("couldn't read preset: %v", err)
	}
	return ParsePreset(raw)
}

// ParsePreset parses a YAML preset. Unset bit widths default to the message
// type's width, unset midi ranges to the full range of the bit width and
// unset display ranges to the midi range.
func ParsePreset(raw []byte) (*Preset, error) {
	f := presetFile{}
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("couldn't parse preset: %v", err)
	}

	p := &Preset{
		Name:      f.Name,
		ProjectID: f.ProjectID,
		Overlays:  make(map[int]*Overlay),
	}
	for _, o := range f.Overlays {
		if _, ok := p.Overlays[o.ID]; ok {
			return nil, fmt.Errorf("duplicate overlay %d", o.ID)
		}
		o.Sort()
		p.Overlays[o.ID] = o
	}

	seen := make(map[int]bool)
	for _, pc := range f.Controls {
		if seen[pc.ID] {
			return nil, fmt.Errorf("duplicate control %d", pc.ID)
		}
		seen[pc.ID] = true

		values := make([]*ControlValue, 0, len(pc.Values))
		for _, pv := range pc.Values {
			v, err := p.buildValue(pc.Type, pv)
			if err != nil {
				return nil, fmt.Errorf("control %d: %w", pc.ID, err)
			}
			values = append(values, v)
		}
		p.Controls = append(p.Controls, NewControl(pc.ID, pc.Name, pc.Type, values))
	}
	sort.SliceStable(p.Controls, func(i, j int) bool { return p.Controls[i].ID < p.Controls[j].ID })
	return p, nil
}

func (p *Preset) buildValue(kind Kind, pv presetValue) (*ControlValue, error) {
	id := pv.ID
	if id == "" {
		id = "value"
	}
	if !kind.hasValueID(id) {
		return nil, fmt.Errorf("invalid value id %q for %s", id, kind)
	}

	msg := pv.Message
	key, err := NewKey(msg.DeviceID, msg.Type, msg.ParameterNumber)
	if err != nil {
		return nil, err
	}

	bw := msg.BitWidth
	if bw == 0 {
		bw = msg.Type.BitWidth()
	}
	bw = clampBitWidth(bw)
	lo, hi := wireLimits(msg.SignMode, bw)
	midiMin, midiMax := orDefault(msg.Min, lo), orDefault(msg.Max, hi)
	if midiMin < lo || midiMax > hi {
		return nil, fmt.Errorf("%w: range %d..%d does not fit %d bits", ErrInvalidMidiValue, midiMin, midiMax, bw)
	}

	slot := Slot{
		SignMode:   msg.SignMode,
		BitWidth:   bw,
		MidiMin:    midiMin,
		MidiMax:    midiMax,
		DisplayMin: orDefault(pv.Min, midiMin),
		DisplayMax: orDefault(pv.Max, midiMax),
		Formatter:  pv.Formatter,
		Function:   pv.Function,
	}
	if pv.OverlayID != 0 {
		o, ok := p.Overlays[pv.OverlayID]
		if !ok {
			return nil, fmt.Errorf("unknown overlay %d", pv.OverlayID)
		}
		slot.Overlay = o
	}
	return &ControlValue{ValueID: id, Default: pv.Default, Key: key, Slot: slot}, nil
}

// wireLimits returns the signed-domain range representable in bitWidth bits.
func wireLimits(signMode SignMode, bitWidth uint8) (int, int) {
	half := halfRange(bitWidth)
	switch signMode {
	case TwosComplement:
		return -half, half - 1
	case SignBit:
		return -(half - 1), half - 1
	default:
		return 0, fullRange(bitWidth) - 1
	}
}

func orDefault(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

// Policy is the preset persistence configuration.
type Policy struct {
	// KeepPresetState keeps values on unload and recalls them on load.
	KeepPresetState bool
	// LoadPresetStateOnStartup recalls values kept by an earlier run. When
	// unset, the first load of a project in a session starts from defaults.
	LoadPresetStateOnStartup bool
}

// Presets switches the active preset of a Map.
type Presets struct {
	m        *Map
	policy   Policy
	listener Listener

	active *Preset
	loaded map[string]bool
}

// NewPresets returns a preset manager for m. Destinations registered for
// preset controls report to l.
func NewPresets(m *Map, policy Policy, l Listener) *Presets {
	return &Presets{
		m:        m,
		policy:   policy,
		listener: l,
		loaded:   make(map[string]bool),
	}
}

// Active returns the loaded preset, or nil.
func (p *Presets) Active() *Preset {
	if p == nil {
		return nil
	}
	return p.active
}

// Load makes pr the active preset.
func (p *Presets) Load(pr *Preset) error {
	if pr == nil {
		return fmt.Errorf("no preset to load")
	}
	if err := p.Unload(); err != nil {
		glog.Errorf("preset %q: %v", pr.Name, err)
	}

	for _, c := range pr.Controls {
		c.Attach(p.m, p.listener)
	}
	for _, c := range pr.Controls {
		c.ApplyDefaults(p.m, PresetLoad)
	}
	p.m.SetProjectID(pr.ProjectID)

	if !p.policy.LoadPresetStateOnStartup && !p.loaded[pr.ProjectID] {
		if err := p.m.Forget(); err != nil {
			glog.Errorf("preset %q: couldn't forget state: %v", pr.Name, err)
		}
	}
	if p.policy.KeepPresetState {
		if err := p.m.Recall(); err != nil {
			glog.Errorf("preset %q: couldn't recall state: %v", pr.Name, err)
		}
	}
	p.loaded[pr.ProjectID] = true
	p.active = pr
	glog.Infof("preset %q loaded: %d controls, project %q", pr.Name, len(pr.Controls), pr.ProjectID)
	return nil
}

// Unload discards the active preset, keeping its values first if the
// policy says so.
func (p *Presets) Unload() error {
	if p.active == nil {
		return nil
	}
	var err error
	if p.policy.KeepPresetState {
		err = p.m.Keep()
	}
	for _, c := range p.active.Controls {
		c.Detach(p.m)
	}
	p.m.Reset()
	glog.Infof("preset %q unloaded", p.active.Name)
	p.active = nil
	if err != nil {
		return fmt.Errorf("couldn't keep preset state: %w", err)
	}
	return nil
}
