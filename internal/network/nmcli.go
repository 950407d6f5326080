package network

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Runner executes a command and returns its standard output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands with os/exec and folds stderr into the error.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return out, fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return out, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// NmcliTransport drives NetworkManager through its command-line client.
type NmcliTransport struct {
	Interface string
	Run       Runner
}

func NewNmcliTransport(iface string) *NmcliTransport {
	return &NmcliTransport{Interface: iface, Run: ExecRunner}
}

func (n *NmcliTransport) nmcli(ctx context.Context, args ...string) ([]byte, error) {
	return n.Run(ctx, "nmcli", args...)
}

func (n *NmcliTransport) Connect(ctx context.Context, creds Credentials) (string, error) {
	args := []string{"--wait", waitSeconds(ctx), "device", "wifi", "connect", creds.SSID}
	if creds.Password != "" {
		args = append(args, "password", creds.Password)
	}
	args = append(args, "ifname", n.Interface)
	if _, err := n.nmcli(ctx, args...); err != nil {
		return "", err
	}

	out, err := n.nmcli(ctx, "-g", "IP4.ADDRESS", "device", "show", n.Interface)
	if err != nil {
		return "", fmt.Errorf("read address: %w", err)
	}
	// "192.168.1.20/24" possibly followed by more addresses separated by " | "
	addr := strings.TrimSpace(string(out))
	addr, _, _ = strings.Cut(addr, " | ")
	addr, _, _ = strings.Cut(addr, "/")
	return addr, nil
}

// waitSeconds converts the context deadline into nmcli's --wait argument.
func waitSeconds(ctx context.Context) string {
	d, ok := ctx.Deadline()
	if !ok {
		return "0"
	}
	secs := int(time.Until(d).Seconds())
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

func (n *NmcliTransport) Disconnect(ctx context.Context) error {
	_, err := n.nmcli(ctx, "device", "disconnect", n.Interface)
	return err
}

func (n *NmcliTransport) Scan(ctx context.Context) ([]string, error) {
	out, err := n.nmcli(ctx, "-t", "-f", "SSID", "device", "wifi", "list", "--rescan", "yes", "ifname", n.Interface)
	if err != nil {
		return nil, err
	}
	return parseSSIDs(out), nil
}

// parseSSIDs reads nmcli terse output: one SSID per line with ':' and '\'
// escaped. Hidden networks print as empty lines and are skipped.
func parseSSIDs(out []byte) []string {
	seen := make(map[string]bool)
	var names []string
	for _, line := range strings.Split(string(out), "\n") {
		name := strings.NewReplacer(`\:`, ":", `\\`, `\`).Replace(strings.TrimRight(line, "\r"))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}

func (n *NmcliTransport) Connected(ctx context.Context) bool {
	out, err := n.nmcli(ctx, "-t", "-f", "DEVICE,STATE", "device")
	if err != nil {
		return false
	}
	for _, line := range strings.Split(string(out), "\n") {
		dev, state, ok := strings.Cut(strings.TrimSpace(line), ":")
		if ok && dev == n.Interface {
			return state == "connected"
		}
	}
	return false
}
