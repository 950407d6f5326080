package main

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/banshee-data/handheld/internal/api"
	"github.com/banshee-data/handheld/internal/network"
)

const ctlHelp = `Usage: handheld ctl <action> [args]

Actions:
  state                          print the current screen and status
  input <name>                   inject a button: press, confirm, cancel, settings, back
  network <cmd> [ssid] [pass]    queue connect, disconnect, scan or status
  transitions [n]                print the newest n journaled transitions (default 10)
`

func runCtl(ctx context.Context, c *api.Client, args []string, out io.Writer) error {
	if len(args) == 0 || args[0] == "help" {
		fmt.Fprint(out, ctlHelp)
		if len(args) == 0 {
			return fmt.Errorf("missing action")
		}
		return nil
	}

	switch args[0] {
	case "state":
		snap, err := c.State(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "screen:  %s\n", snap.Screen)
		if snap.Message != "" {
			fmt.Fprintf(out, "message: %s\n", snap.Message)
		}
		fmt.Fprintf(out, "motion:  %s\n", snap.MotionName)
		fmt.Fprintf(out, "network: %s %s\n", snap.NetworkName, snap.Address)
		fmt.Fprintf(out, "ticks:   %d\n", snap.Ticks)
		for _, line := range snap.Frame {
			fmt.Fprintf(out, "| %s\n", line)
		}
		return nil

	case "input":
		if len(args) != 2 {
			return fmt.Errorf("usage: handheld ctl input <name>")
		}
		return c.Input(ctx, args[1])

	case "network":
		if len(args) < 2 || len(args) > 4 {
			return fmt.Errorf("usage: handheld ctl network <cmd> [ssid] [password]")
		}
		var creds network.Credentials
		if len(args) > 2 {
			creds.SSID = args[2]
		}
		if len(args) > 3 {
			creds.Password = args[3]
		}
		return c.Network(ctx, args[1], creds)

	case "transitions":
		n := 10
		if len(args) > 1 {
			v, err := strconv.Atoi(args[1])
			if err != nil || v <= 0 {
				return fmt.Errorf("invalid count %q", args[1])
			}
			n = v
		}
		recs, err := c.Transitions(ctx, n)
		if err != nil {
			return err
		}
		for _, r := range recs {
			line := fmt.Sprintf("%s %s -> %s (%s)", r.At.Format("15:04:05.000"), r.From, r.To, r.Cause)
			if r.Message != "" {
				line += ": " + r.Message
			}
			fmt.Fprintln(out, line)
		}
		return nil

	default:
		return fmt.Errorf("unknown action %q", args[0])
	}
}
