package netif

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/losdos/motionglove/internal/link"
	th "github.com/losdos/motionglove/internal/testing"
)

var _ link.Station = (*Station)(nil)

type fakeRunner struct {
	mu    sync.Mutex
	calls []string
	out   map[string]string
	errs  map[string]error
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	cmd := name + " " + strings.Join(args, " ")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, cmd)
	for prefix, err := range f.errs {
		if strings.HasPrefix(cmd, prefix) {
			return []byte(f.out[prefix]), err
		}
	}
	return nil, nil
}

func testConfig() Config {
	return Config{
		Interface:    "wlan0",
		SSID:         "MotionGlove-Network",
		Password:     "Password123",
		Channel:      5,
		PollInterval: time.Millisecond,
		Nmcli:        "nmcli",
	}
}

func TestJoinCommand(t *testing.T) {
	run := &fakeRunner{}
	st := NewStation(testConfig(), run, th.NewLogger(t))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, st.Join(ctx))
	assert.Equal(t, []string{"nmcli --wait 5 device wifi connect MotionGlove-Network password Password123 ifname wlan0"}, run.calls)
}

func TestJoinError(t *testing.T) {
	run := &fakeRunner{errs: map[string]error{"nmcli": errors.New("exit status 10")}}
	st := NewStation(testConfig(), run, th.NewLogger(t))
	assert.ErrorContains(t, st.Join(context.Background()), "join \"MotionGlove-Network\"")
}

func TestLeaveIgnoresInactive(t *testing.T) {
	run := &fakeRunner{
		errs: map[string]error{"nmcli device disconnect": errors.New("exit status 6")},
		out:  map[string]string{"nmcli device disconnect": "Error: Device 'wlan0' (...) disconnecting failed: This device is not active"},
	}
	st := NewStation(testConfig(), run, th.NewLogger(t))
	assert.NoError(t, st.Leave(context.Background()))
}

func TestWaitLinkUp(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "wlan0"), 0o755))
	state := filepath.Join(dir, "wlan0", "operstate")
	require.NoError(t, os.WriteFile(state, []byte("dormant\n"), 0o644))

	st := NewStation(testConfig(), &fakeRunner{}, th.NewLogger(t))
	st.sysfs = dir

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = os.WriteFile(state, []byte("up\n"), 0o644)
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, st.WaitLinkUp(ctx))
}

func TestWaitLinkUpCancelled(t *testing.T) {
	st := NewStation(testConfig(), &fakeRunner{}, th.NewLogger(t))
	st.sysfs = t.TempDir()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, st.WaitLinkUp(ctx), context.DeadlineExceeded)
}

func TestWaitConfigUpStaticAddress(t *testing.T) {
	cfg := testConfig()
	cfg.Address = "192.168.0.12/16"
	run := &fakeRunner{}
	st := NewStation(cfg, run, th.NewLogger(t))

	var polls int
	st.addrs = func(string) ([]net.Addr, error) {
		polls++
		if polls < 3 {
			return []net.Addr{&net.IPNet{IP: net.ParseIP("fe80::1"), Mask: net.CIDRMask(64, 128)}}, nil
		}
		return []net.Addr{&net.IPNet{IP: net.IPv4(192, 168, 0, 12), Mask: net.CIDRMask(16, 32)}}, nil
	}

	require.NoError(t, st.WaitConfigUp(context.Background()))
	assert.Equal(t, []string{"ip addr replace 192.168.0.12/16 dev wlan0"}, run.calls)
	assert.Equal(t, 3, polls)
}

func TestWaitConfigUpBadAddress(t *testing.T) {
	cfg := testConfig()
	cfg.Address = "192.168.0.12"
	st := NewStation(cfg, &fakeRunner{}, th.NewLogger(t))
	assert.Error(t, st.WaitConfigUp(context.Background()))
}

func TestAccessPointStart(t *testing.T) {
	cfg := testConfig()
	cfg.Address = "192.168.0.10/16"
	run := &fakeRunner{}
	ap := NewAccessPoint(cfg, run, th.NewLogger(t))

	require.NoError(t, ap.Start(context.Background()))
	require.Len(t, run.calls, 3)
	assert.Equal(t, "nmcli connection delete motionglove-ap", run.calls[0])
	assert.Contains(t, run.calls[1], "802-11-wireless.mode ap")
	assert.Contains(t, run.calls[1], "802-11-wireless.channel 5")
	assert.Contains(t, run.calls[1], "ipv4.addresses 192.168.0.10/16")
	assert.Contains(t, run.calls[1], "wifi-sec.psk Password123")
	assert.Equal(t, "nmcli connection up motionglove-ap", run.calls[2])

	require.NoError(t, ap.Stop(context.Background()))
}

func TestAccessPointNeedsAddress(t *testing.T) {
	ap := NewAccessPoint(testConfig(), &fakeRunner{}, th.NewLogger(t))
	assert.Error(t, ap.Start(context.Background()))
}

func TestWaitSeconds(t *testing.T) {
	assert.Equal(t, "0", waitSeconds(context.Background()))
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	assert.Equal(t, "1", waitSeconds(ctx))
}
