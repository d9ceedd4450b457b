package parammap

import (
	"errors"
	"fmt"
	"testing"

	"github.com/kr/pretty"
)

type emitted struct {
	Key   string
	Value uint16
}

type fakeEmitter struct {
	sent []emitted
	err  error
}

func (f *fakeEmitter) Emit(k Key, v uint16) error {
	f.sent = append(f.sent, emitted{Key: k.String(), Value: v})
	return f.err
}

type scriptCall struct {
	Name    string
	Display int
	Origin  Origin
}

type changeCall struct {
	Key     string
	Origin  Origin
	Value   uint16
	NumDest int
}

type fakeScript struct {
	calls   []scriptCall
	changes []changeCall
	// onCall runs inside CallFunction.
	onCall func(name string, displayValue int)
}

func (f *fakeScript) CallFunction(name string, d *Destination, displayValue int, origin Origin) {
	f.calls = append(f.calls, scriptCall{Name: name, Display: displayValue, Origin: origin})
	if f.onCall != nil {
		f.onCall(name, displayValue)
	}
}

func (f *fakeScript) OnChange(key Key, destinations []*Destination, origin Origin, midiValue uint16) {
	f.changes = append(f.changes, changeCall{Key: key.String(), Origin: origin, Value: midiValue, NumDest: len(destinations)})
}

// notifications records listener calls as "name:display:origin".
type notifications []string

func (n *notifications) listener(name string) Listener {
	return ListenerFunc(func(d *Destination, displayValue int, origin Origin) {
		*n = append(*n, fmt.Sprintf("%s:%d:%s", name, displayValue, origin))
	})
}

func percentSlot() *Slot {
	return &Slot{BitWidth: 7, MidiMax: 127, DisplayMax: 100}
}

func TestSetValuePercentFader(t *testing.T) {
	em := &fakeEmitter{}
	m := New(em, nil, nil, Options{})
	k := mustKey(t, 3, ControlChange, 10)
	var got notifications
	slot := percentSlot()
	m.Bind(k, &Destination{Slot: slot, Listener: got.listener("fader")})

	m.SetValue(k, 64, IncomingMidi)
	if diff := pretty.Diff([]string(got), []string{"fader:50:incomingMidi"}); len(diff) > 0 {
		t.Errorf("notifications differ: %v", diff)
	}
	if len(em.sent) != 0 {
		t.Fatalf("incoming midi was sent back: %v", em.sent)
	}

	m.ApplyToValue(k, slot.ToWire(50), UserInteraction)
	if diff := pretty.Diff(em.sent, []emitted{{Key: "3/cc7/10", Value: 64}}); len(diff) > 0 {
		t.Errorf("sent messages differ: %v", diff)
	}
}

func TestFanOutOrder(t *testing.T) {
	em := &fakeEmitter{}
	sc := &fakeScript{}
	m := New(em, sc, nil, Options{})
	k := mustKey(t, 1, ControlChange14, 5)
	var got notifications
	m.Bind(k, &Destination{Slot: &Slot{BitWidth: 14, MidiMax: 16383, DisplayMax: 16383}, Listener: got.listener("label")})
	m.Bind(k, &Destination{Slot: &Slot{BitWidth: 14, MidiMax: 16383, DisplayMax: 100, Function: "logic"}, Listener: got.listener("fader")})
	m.Bind(k, &Destination{Listener: got.listener("raw")})

	m.SetValue(k, 8192, IncomingMidi)

	want := []string{"label:8192:incomingMidi", "fader:50:incomingMidi", "raw:8192:incomingMidi"}
	if diff := pretty.Diff([]string(got), want); len(diff) > 0 {
		t.Errorf("notifications differ: %v", diff)
	}
	if diff := pretty.Diff(sc.calls, []scriptCall{{Name: "logic", Display: 50, Origin: IncomingMidi}}); len(diff) > 0 {
		t.Errorf("script calls differ: %v", diff)
	}
	if diff := pretty.Diff(sc.changes, []changeCall{{Key: "1/cc14/5", Origin: IncomingMidi, Value: 8192, NumDest: 3}}); len(diff) > 0 {
		t.Errorf("onChange calls differ: %v", diff)
	}
	if len(em.sent) != 0 {
		t.Errorf("incoming midi was sent back: %v", em.sent)
	}
}

func TestOriginEmission(t *testing.T) {
	for _, test := range []struct {
		desc     string
		origin   Origin
		opts     Options
		wantSent bool
	}{
		{desc: "IncomingMidi", origin: IncomingMidi},
		{desc: "UserInteraction", origin: UserInteraction, wantSent: true},
		{desc: "Script", origin: Script, wantSent: true},
		{desc: "PresetLoad", origin: PresetLoad},
		{desc: "PresetLoadSendDefaults", origin: PresetLoad, opts: Options{SendDefaultsOnLoad: true}, wantSent: true},
		{desc: "SnapshotRecall", origin: SnapshotRecall},
		{desc: "SnapshotRecallSendDefaults", origin: SnapshotRecall, opts: Options{SendDefaultsOnLoad: true}},
	} {
		t.Run(test.desc, func(t *testing.T) {
			em := &fakeEmitter{}
			m := New(em, nil, nil, test.opts)
			k := mustKey(t, 1, ControlChange, 1)
			var got notifications
			m.Bind(k, &Destination{Listener: got.listener("d")})

			m.SetValue(k, 12, test.origin)
			if gotSent := len(em.sent) > 0; gotSent != test.wantSent {
				t.Errorf("sent = %v, want %v", gotSent, test.wantSent)
			}
			if len(got) != 1 {
				t.Errorf("got %d notifications, want 1", len(got))
			}
		})
	}
}

func TestVirtualNeverSent(t *testing.T) {
	em := &fakeEmitter{}
	m := New(em, nil, nil, Options{})
	k := mustKey(t, 1, Virtual, 100)
	m.SetValue(k, 5, UserInteraction)
	if err := m.Send(k); err != nil {
		t.Fatalf("Send = %v", err)
	}
	if len(em.sent) != 0 {
		t.Errorf("virtual parameter was sent: %v", em.sent)
	}
	if got := m.GetValue(k); got != 5 {
		t.Errorf("got %d, want 5", got)
	}
}

func TestSetValueUnchanged(t *testing.T) {
	em := &fakeEmitter{}
	m := New(em, nil, nil, Options{})
	k := mustKey(t, 1, ControlChange, 1)
	var got notifications
	m.Bind(k, &Destination{Listener: got.listener("d")})

	m.SetValue(k, 7, UserInteraction)
	m.SetValue(k, 7, UserInteraction)
	if len(got) != 1 || len(em.sent) != 1 {
		t.Errorf("SetValue of an unchanged value: %d notifications, %d sent; want 1, 1", len(got), len(em.sent))
	}

	m.ApplyToValue(k, 7, UserInteraction)
	m.ApplyToValue(k, 7, UserInteraction)
	if len(got) != 3 || len(em.sent) != 3 {
		t.Errorf("ApplyToValue: %d notifications, %d sent; want 3, 3", len(got), len(em.sent))
	}
}

func TestFirstValueOfNewEntryPropagates(t *testing.T) {
	m := New(nil, nil, nil, Options{})
	k := mustKey(t, 1, ControlChange, 1)
	sc := &fakeScript{}
	m.script = sc
	m.SetValue(k, 0, IncomingMidi)
	if len(sc.changes) != 1 {
		t.Errorf("got %d onChange calls, want 1", len(sc.changes))
	}
	if _, ok := m.Get(k); !ok {
		t.Error("SetValue did not create the entry")
	}
}

func TestReentrantWrite(t *testing.T) {
	em := &fakeEmitter{}
	sc := &fakeScript{}
	m := New(em, sc, nil, Options{})
	k := mustKey(t, 1, ControlChange, 20)

	var got notifications
	calls := 0
	// The first destination always writes back the next value.
	m.Bind(k, &Destination{Listener: ListenerFunc(func(d *Destination, displayValue int, origin Origin) {
		calls++
		if calls > 10 {
			t.Fatal("feedback loop")
		}
		got = append(got, fmt.Sprintf("first:%d:%s", displayValue, origin))
		m.SetValue(k, uint16(displayValue+1), Script)
	})})
	m.Bind(k, &Destination{Listener: got.listener("second")})

	m.SetValue(k, 10, UserInteraction)

	want := []string{"first:10:userInteraction", "second:11:userInteraction"}
	if diff := pretty.Diff([]string(got), want); len(diff) > 0 {
		t.Errorf("notifications differ: %v", diff)
	}
	wantSent := []emitted{{Key: "1/cc7/20", Value: 10}, {Key: "1/cc7/20", Value: 11}}
	if diff := pretty.Diff(em.sent, wantSent); len(diff) > 0 {
		t.Errorf("sent messages differ: %v", diff)
	}
	if diff := pretty.Diff(sc.changes, []changeCall{{Key: "1/cc7/20", Origin: UserInteraction, Value: 11, NumDest: 2}}); len(diff) > 0 {
		t.Errorf("onChange calls differ: %v", diff)
	}
	if got := m.GetValue(k); got != 11 {
		t.Errorf("got value %d, want 11", got)
	}

	// The in-flight mark is cleared after the pass.
	m.SetValue(k, 40, UserInteraction)
	if got := m.GetValue(k); got != 41 {
		t.Errorf("second pass: got value %d, want 41", got)
	}
}

func TestReentrantScriptHook(t *testing.T) {
	em := &fakeEmitter{}
	sc := &fakeScript{}
	m := New(em, sc, nil, Options{})
	k := mustKey(t, 2, NRPN, 1000)
	sc.onCall = func(name string, displayValue int) {
		m.ApplyToValue(k, uint16(displayValue), Script)
	}
	m.Bind(k, &Destination{Slot: &Slot{BitWidth: 14, MidiMax: 16383, DisplayMax: 16383, Function: "echo"}})

	m.SetValue(k, 500, IncomingMidi)
	if len(sc.calls) != 1 {
		t.Errorf("got %d hook calls, want 1", len(sc.calls))
	}
	// The hook's own write is a script change and reaches the wire.
	if diff := pretty.Diff(em.sent, []emitted{{Key: "2/nrpn/1000", Value: 500}}); len(diff) > 0 {
		t.Errorf("sent messages differ: %v", diff)
	}
}

func TestMutualRecursion(t *testing.T) {
	m := New(&fakeEmitter{}, nil, nil, Options{})
	k1 := mustKey(t, 1, ControlChange, 1)
	k2 := mustKey(t, 1, ControlChange, 2)
	n := 0
	m.Bind(k1, &Destination{Listener: ListenerFunc(func(d *Destination, v int, o Origin) {
		n++
		m.SetValue(k2, uint16(v+1), Script)
	})})
	m.Bind(k2, &Destination{Listener: ListenerFunc(func(d *Destination, v int, o Origin) {
		n++
		m.SetValue(k1, uint16(v+1), Script)
	})})

	m.SetValue(k1, 1, UserInteraction)
	if n != 2 {
		t.Errorf("got %d notifications, want 2", n)
	}
	if got1, got2 := m.GetValue(k1), m.GetValue(k2); got1 != 3 || got2 != 2 {
		t.Errorf("got values %d, %d; want 3, 2", got1, got2)
	}
}

func TestEmitterErrorKeepsState(t *testing.T) {
	em := &fakeEmitter{err: errors.New("port gone")}
	m := New(em, nil, nil, Options{})
	k := mustKey(t, 1, ControlChange, 1)
	var got notifications
	m.Bind(k, &Destination{Listener: got.listener("d")})
	m.SetValue(k, 99, UserInteraction)
	if m.GetValue(k) != 99 || len(got) != 1 {
		t.Errorf("failed send lost the change: value %d, %d notifications", m.GetValue(k), len(got))
	}
}

func TestMissingEntries(t *testing.T) {
	m := New(&fakeEmitter{}, nil, nil, Options{})
	k := mustKey(t, 5, ControlChange, 1)
	if got := m.GetValue(k); got != 0 {
		t.Errorf("GetValue = %d, want 0", got)
	}
	if _, err := m.GetValues(k); !errors.Is(err, ErrNoEntry) {
		t.Errorf("GetValues = %v, want %v", err, ErrNoEntry)
	}
	if err := m.Send(k); !errors.Is(err, ErrNoEntry) {
		t.Errorf("Send = %v, want %v", err, ErrNoEntry)
	}
	m.SetValue(k, 3, IncomingMidi)
	if _, err := m.GetValues(k); !errors.Is(err, ErrNoEntry) {
		t.Errorf("GetValues on an entry without destinations = %v, want %v", err, ErrNoEntry)
	}
}

func TestSend(t *testing.T) {
	em := &fakeEmitter{}
	m := New(em, nil, nil, Options{})
	k := mustKey(t, 1, PitchBend, 0)
	m.SetValue(k, 9000, IncomingMidi)
	if err := m.Send(k); err != nil {
		t.Fatalf("Send = %v", err)
	}
	if diff := pretty.Diff(em.sent, []emitted{{Key: "1/pitchbend/0", Value: 9000}}); len(diff) > 0 {
		t.Errorf("sent messages differ: %v", diff)
	}
}

func TestResetDevice(t *testing.T) {
	m := New(nil, nil, nil, Options{})
	k1 := mustKey(t, 1, ControlChange, 1)
	k2 := mustKey(t, 2, ControlChange, 1)
	m.SetValue(k1, 10, IncomingMidi)
	m.SetValue(k2, 20, IncomingMidi)
	m.ResetDevice(1)
	if m.GetValue(k1) != 0 || m.GetValue(k2) != 20 {
		t.Errorf("got values %d, %d; want 0, 20", m.GetValue(k1), m.GetValue(k2))
	}
	m.Reset()
	if m.Table().Len() != 0 {
		t.Errorf("got %d entries after Reset, want 0", m.Table().Len())
	}
}

func TestKeepResetRecall(t *testing.T) {
	em := &fakeEmitter{}
	m := New(em, nil, nil, Options{})
	m.SetProjectID("proj")
	keys := []Key{
		mustKey(t, 1, ControlChange, 1),
		mustKey(t, 1, NRPN, 400),
		mustKey(t, 7, PitchBend, 0),
	}
	for i, k := range keys {
		m.SetValue(k, uint16(100*(i+1)), UserInteraction)
	}
	want := map[string]uint16{}
	for _, k := range keys {
		want[k.String()] = m.GetValue(k)
	}

	if err := m.Keep(); err != nil {
		t.Fatalf("Keep = %v", err)
	}
	m.Reset()
	em.sent = nil

	var got notifications
	m.Bind(keys[1], &Destination{Listener: got.listener("d")})
	if err := m.Recall(); err != nil {
		t.Fatalf("Recall = %v", err)
	}
	gotValues := map[string]uint16{}
	for _, k := range keys {
		gotValues[k.String()] = m.GetValue(k)
	}
	if diff := pretty.Diff(gotValues, want); len(diff) > 0 {
		t.Errorf("recalled values differ: %v", diff)
	}
	if len(em.sent) != 0 {
		t.Errorf("recall sent %v", em.sent)
	}
	if diff := pretty.Diff([]string(got), []string{"d:200:snapshotRecall"}); len(diff) > 0 {
		t.Errorf("notifications differ: %v", diff)
	}

	if err := m.Forget(); err != nil {
		t.Fatalf("Forget = %v", err)
	}
	m.Reset()
	if err := m.Recall(); err != nil {
		t.Fatalf("Recall = %v", err)
	}
	if m.Table().Len() != 0 {
		t.Errorf("recall after forget restored %d entries", m.Table().Len())
	}
}

func TestSnapshotsPerProject(t *testing.T) {
	m := New(nil, nil, nil, Options{})
	k := mustKey(t, 1, ControlChange, 1)

	m.SetProjectID("a")
	m.SetValue(k, 10, UserInteraction)
	if err := m.Keep(); err != nil {
		t.Fatal(err)
	}
	m.SetProjectID("b")
	m.SetValue(k, 20, UserInteraction)
	if err := m.Keep(); err != nil {
		t.Fatal(err)
	}

	m.Reset()
	m.SetProjectID("a")
	if err := m.Recall(); err != nil {
		t.Fatal(err)
	}
	if got := m.GetValue(k); got != 10 {
		t.Errorf("project a: got %d, want 10", got)
	}
}

func TestUndeclaredBitWidth(t *testing.T) {
	for _, test := range []struct {
		desc        string
		slot        Slot
		wire        uint16
		wantDisplay int
	}{
		{
			desc:        "Unsigned",
			slot:        Slot{MidiMax: 127, DisplayMax: 100},
			wire:        64,
			wantDisplay: 50,
		}, {
			desc:        "TwosComplement",
			slot:        Slot{SignMode: TwosComplement, MidiMin: -64, MidiMax: 63, DisplayMin: -64, DisplayMax: 63},
			wire:        127,
			wantDisplay: -1,
		},
	} {
		t.Run(test.desc, func(t *testing.T) {
			m := New(nil, nil, nil, Options{})
			k := mustKey(t, 3, ControlChange, 10)
			var got []int
			slot := test.slot
			m.Bind(k, &Destination{Slot: &slot, Listener: ListenerFunc(func(d *Destination, display int, origin Origin) {
				got = append(got, display)
			})})
			if slot.BitWidth != 7 {
				t.Errorf("bound slot has bit width %d, want 7", slot.BitWidth)
			}
			m.SetValue(k, test.wire, IncomingMidi)
			if diff := pretty.Diff(got, []int{test.wantDisplay}); len(diff) > 0 {
				t.Errorf("displays differ: %v", diff)
			}
		})
	}

	unbound := Slot{MidiMax: 127, DisplayMax: 100}
	if got := unbound.ToDisplay(64); got != 50 {
		t.Errorf("unbound slot: got display %d, want 50", got)
	}
	if got := unbound.ToWire(50); got != 64 {
		t.Errorf("unbound slot: got wire %d, want 64", got)
	}
}
