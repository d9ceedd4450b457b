package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/9600org/parammap"
	"github.com/golang/glog"
	"gitlab.com/gomidi/midi/v2"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

var (
	config = flag.String("config", "parammap.yaml", "parameterMap config file")
	preset = flag.String("preset", "", "Preset file, overrides presetFile in the config")
	useMCP = flag.Bool("mcp", false, "Serve the parameterMap tools over MCP on stdio")
)

func main() {
	flag.Parse()
	flag.Set("logtostderr", "true")
	defer midi.CloseDriver()

	conf, err := parammap.LoadConfig(*config)
	if err != nil {
		glog.Exitf("Failed to load config: %s", err)
	}

	var store parammap.SnapshotStore
	if conf.SnapshotDir != "" {
		if store, err = parammap.NewFileStore(conf.SnapshotDir); err != nil {
			glog.Exitf("Failed to open snapshot store: %s", err)
		}
	}

	var script, ui parammap.Client
	if conf.ScriptAddress != "" {
		if script, err = parammap.DialUDP(conf.ScriptAddress); err != nil {
			glog.Exitf("Failed to connect to script host: %s", err)
		}
	}
	if conf.UIAddress != "" {
		if ui, err = parammap.DialUDP(conf.UIAddress); err != nil {
			glog.Exitf("Failed to connect to UI: %s", err)
		}
	}

	emitter := parammap.NewMidiEmitter()
	if err := parammap.OpenOutputs(conf, emitter); err != nil {
		glog.Exitf("Failed to open MIDI outputs: %s", err)
	}

	var host parammap.ScriptHost
	if script != nil {
		host = &parammap.OSCScriptHost{Client: script}
	}
	var listener parammap.Listener
	if ui != nil {
		listener = &parammap.OSCListener{Client: ui}
	}

	m := parammap.New(emitter, host, store, conf.Options())
	presets := parammap.NewPresets(m, conf.Policy(), listener)
	srv := parammap.NewServer(conf, m, presets, script)

	stop, err := parammap.ListenInputs(conf, srv.DeliverMidi)
	if err != nil {
		glog.Exitf("Failed to open MIDI inputs: %s", err)
	}
	defer stop()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	presetFile := conf.PresetFile
	if *preset != "" {
		presetFile = *preset
	}
	if presetFile != "" {
		pr, err := parammap.LoadPreset(presetFile)
		if err != nil {
			glog.Exitf("Failed to load preset: %s", err)
		}
		go func() {
			if err := srv.LoadPreset(ctx, pr); err != nil {
				glog.Errorf("Failed to activate preset: %s", err)
			}
		}()
	}

	if *useMCP {
		go func() {
			if err := parammap.ServeMCP(srv); err != nil {
				glog.Errorf("MCP server exiting: %s", err)
			}
			cancel()
		}()
	}

	glog.Info("Starting parameterMap server")
	if err := srv.Run(ctx); err != nil {
		glog.Exitf("Server exiting: %s", err)
	}
	glog.Info("Server stopped")
}
