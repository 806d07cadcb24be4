// Package network implements the device network link on the host.
package network

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"

	"github.com/golang/glog"
)

// Environment passed to the join command.
const (
	EnvNetworkID     = "MORSE_NETWORK_ID"
	EnvNetworkSecret = "MORSE_NETWORK_SECRET"
)

// HostLink is a link over a host interface. Joining a network is
// delegated to JoinCommand (e.g. a wpa_cli or nmcli wrapper script)
// which receives the credentials in its environment. Without a command
// the host is expected to manage the network itself.
type HostLink struct {
	// Interface is the interface name, any non-loopback one if empty.
	Interface   string
	JoinCommand []string

	interfaces func() ([]net.Interface, error)
	addrs      func(net.Interface) ([]net.Addr, error)
}

// NewHostLink creates a HostLink.
func NewHostLink(iface string, joinCmd ...string) *HostLink {
	return &HostLink{Interface: iface, JoinCommand: joinCmd}
}

// Associate implements connectivity.Link.
func (l *HostLink) Associate(ctx context.Context, networkID, secret string) error {
	if len(l.JoinCommand) == 0 {
		glog.V(1).Infof("network: no join command, expecting %q to be managed by the host", networkID)
		return nil
	}
	cmd := exec.CommandContext(ctx, l.JoinCommand[0], l.JoinCommand[1:]...)
	cmd.Env = append(os.Environ(),
		EnvNetworkID+"="+networkID,
		EnvNetworkSecret+"="+secret,
	)
	if l.Interface != "" {
		cmd.Env = append(cmd.Env, "MORSE_INTERFACE="+l.Interface)
	}
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("join %q: %w: %s", networkID, err, out)
	}
	return nil
}

// Up implements connectivity.Link.
func (l *HostLink) Up() bool {
	return l.Address() != ""
}

// Address implements connectivity.Link. It is the first IPv4 address of
// an up interface.
func (l *HostLink) Address() string {
	listIfaces, listAddrs := l.interfaces, l.addrs
	if listIfaces == nil {
		listIfaces = net.Interfaces
	}
	if listAddrs == nil {
		listAddrs = func(iface net.Interface) ([]net.Addr, error) { return iface.Addrs() }
	}
	ifaces, err := listIfaces()
	if err != nil {
		glog.Warningf("network: list interfaces: %v", err)
		return ""
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if l.Interface != "" && iface.Name != l.Interface {
			continue
		}
		addrs, err := listAddrs(iface)
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok {
				if ip4 := ipnet.IP.To4(); ip4 != nil {
					return ip4.String()
				}
			}
		}
	}
	return ""
}
