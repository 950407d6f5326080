package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/banshee-data/handheld/internal/api"
	"github.com/banshee-data/handheld/internal/config"
	"github.com/banshee-data/handheld/internal/display"
	"github.com/banshee-data/handheld/internal/eventbus"
	"github.com/banshee-data/handheld/internal/httputil"
	"github.com/banshee-data/handheld/internal/network"
	"github.com/banshee-data/handheld/internal/orchestrator"
	"github.com/banshee-data/handheld/internal/serialmux"
)

type stubState struct{}

func (stubState) Snapshot() orchestrator.Snapshot {
	return orchestrator.Snapshot{
		State:       display.State{Kind: display.Error, Message: "sensor init failed"},
		Screen:      "error",
		Message:     "sensor init failed",
		Frame:       []string{"Error", "sensor init failed"},
		Ticks:       7,
		MotionName:  "still",
		NetworkName: "disconnected",
	}
}

type recordingCommander struct{ cmds []network.Command }

func (r *recordingCommander) Send(cmd network.Command) error {
	r.cmds = append(r.cmds, cmd)
	return nil
}

func newCtlClient(t *testing.T) (*api.Client, *eventbus.Receiver, *recordingCommander) {
	t.Helper()
	tx, rx := eventbus.New()
	srv := api.NewServer(stubState{}, tx)
	t.Cleanup(srv.Close)
	rc := &recordingCommander{}
	srv.SetNetwork(rc)
	return api.NewClient("http://device", &httputil.HandlerClient{Handler: srv.ServeMux()}), rx, rc
}

func TestFlagDefaults(t *testing.T) {
	if *listen != ":8080" {
		t.Errorf("listen default = %q", *listen)
	}
	if *baud != serialmux.DefaultBaudRate {
		t.Errorf("baud default = %d", *baud)
	}
	if *configFile != config.DefaultConfigPath {
		t.Errorf("config default = %q", *configFile)
	}
	if *devMode || *simNetwork || *headless {
		t.Error("dev, sim-network and headless must default to off")
	}
}

func TestCtl_State(t *testing.T) {
	c, _, _ := newCtlClient(t)
	var out bytes.Buffer
	if err := runCtl(context.Background(), c, []string{"state"}, &out); err != nil {
		t.Fatalf("state: %v", err)
	}
	want := "screen:  error\nmessage: sensor init failed\nmotion:  still\nnetwork: disconnected \nticks:   7\n| Error\n| sensor init failed\n"
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
}

func TestCtl_InputAndNetwork(t *testing.T) {
	c, rx, rc := newCtlClient(t)
	ctx := context.Background()

	if err := runCtl(ctx, c, []string{"input", "press"}, &bytes.Buffer{}); err != nil {
		t.Fatalf("input: %v", err)
	}
	e, err := rx.TryRecv()
	if err != nil || e != (eventbus.UserInputEvent{Input: eventbus.InputPress}) {
		t.Errorf("bus got %v, %v", e, err)
	}

	if err := runCtl(ctx, c, []string{"network", "connect", "workshop", "hunter22"}, &bytes.Buffer{}); err != nil {
		t.Fatalf("network: %v", err)
	}
	want := network.ConnectCommand(network.Credentials{SSID: "workshop", Password: "hunter22"})
	if len(rc.cmds) != 1 || rc.cmds[0] != want {
		t.Errorf("commands = %+v", rc.cmds)
	}
}

func TestCtl_Errors(t *testing.T) {
	c, _, _ := newCtlClient(t)
	ctx := context.Background()

	tests := []struct {
		args []string
		want string
	}{
		{nil, "missing action"},
		{[]string{"reboot"}, `unknown action "reboot"`},
		{[]string{"input"}, "usage: handheld ctl input <name>"},
		{[]string{"input", "jump"}, `api: 400 unknown action "jump"`},
		{[]string{"network", "connect", "cafe", "short"}, "api: 400 password must be at least 8 characters"},
		{[]string{"transitions", "zero"}, `invalid count "zero"`},
		{[]string{"transitions"}, "api: 503 journal disabled"},
	}
	for _, tt := range tests {
		err := runCtl(ctx, c, tt.args, &bytes.Buffer{})
		if err == nil || err.Error() != tt.want {
			t.Errorf("runCtl(%q) error = %v, want %q", tt.args, err, tt.want)
		}
	}
}

func TestCtl_Help(t *testing.T) {
	var out bytes.Buffer
	if err := runCtl(context.Background(), nil, []string{"help"}, &out); err != nil {
		t.Fatalf("help: %v", err)
	}
	if !strings.HasPrefix(out.String(), "Usage: handheld ctl") {
		t.Errorf("help output = %q", out.String())
	}
}

func TestNetworkTransport_Simulated(t *testing.T) {
	old := *simNetwork
	*simNetwork = true
	defer func() { *simNetwork = old }()

	tr, err := networkTransport()()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, ok := tr.(*network.SimTransport); !ok {
		t.Errorf("transport = %T, want *network.SimTransport", tr)
	}
}
