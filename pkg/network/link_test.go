package network

import (
	"context"
	"errors"
	"net"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeHost(link *HostLink, addrs map[string][]net.Addr) {
	link.interfaces = func() ([]net.Interface, error) {
		return []net.Interface{
			{Index: 1, Name: "lo", Flags: net.FlagUp | net.FlagLoopback},
			{Index: 2, Name: "eth0", Flags: 0},
			{Index: 3, Name: "wlan0", Flags: net.FlagUp},
		}, nil
	}
	link.addrs = func(iface net.Interface) ([]net.Addr, error) {
		return addrs[iface.Name], nil
	}
}

func ipNet(s string) *net.IPNet {
	return &net.IPNet{IP: net.ParseIP(s), Mask: net.CIDRMask(24, 32)}
}

func TestAddress(t *testing.T) {
	link := NewHostLink("")
	fakeHost(link, map[string][]net.Addr{
		"lo":    {ipNet("127.0.0.1")},
		"eth0":  {ipNet("192.168.1.5")},
		"wlan0": {&net.IPNet{IP: net.ParseIP("fe80::1"), Mask: net.CIDRMask(64, 128)}, ipNet("10.10.6.99")},
	})
	assert.Equal(t, "10.10.6.99", link.Address())
	assert.True(t, link.Up())

	link.Interface = "eth0"
	assert.Empty(t, link.Address())
	assert.False(t, link.Up())
}

func TestAddressListFailure(t *testing.T) {
	link := NewHostLink("")
	link.interfaces = func() ([]net.Interface, error) { return nil, errors.New("boom") }
	assert.False(t, link.Up())
}

func TestAssociateWithoutCommand(t *testing.T) {
	assert.NoError(t, NewHostLink("").Associate(context.Background(), "home", "secret"))
}

func TestAssociateRunsCommand(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	link := NewHostLink("wlan0", "sh", "-c", `test "$MORSE_NETWORK_ID" = home && test "$MORSE_NETWORK_SECRET" = secret`)
	require.NoError(t, link.Associate(context.Background(), "home", "secret"))
	assert.Error(t, link.Associate(context.Background(), "office", "secret"))
}
