package ble

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"

	"github.com/teslashibe/go-ringwave/internal/config"
	"github.com/teslashibe/go-ringwave/internal/log"
	"github.com/teslashibe/go-ringwave/pkg/debug"
	"github.com/teslashibe/go-ringwave/pkg/protocol"
	"github.com/teslashibe/go-ringwave/pkg/ring"
)

// ErrNoRingFound is returned when no matching ring advertises within the
// scan timeout.
var ErrNoRingFound = errors.New("ble: no matching ring found")

// Config tunes discovery.
type Config struct {
	// NamePattern matches the advertised device name. Defaults to the
	// RF03-family pattern.
	NamePattern *regexp.Regexp
	// ScanTimeout bounds a single scan. Defaults to 15 seconds.
	ScanTimeout time.Duration
}

func (c *Config) fill() {
	if c.NamePattern == nil {
		c.NamePattern = config.NamePattern()
	}
	if c.ScanTimeout == 0 {
		c.ScanTimeout = 15 * time.Second
	}
}

// Device is the BLE transport for one ring. It implements ring.Link and
// drives the controller's connection lifecycle. Create it with NewDevice,
// then call Connect.
type Device struct {
	adapter *bluetooth.Adapter
	ctrl    *ring.Controller
	cfg     Config

	mu        sync.Mutex
	dev       *bluetooth.Device
	writeChar bluetooth.DeviceCharacteristic
	haveWrite bool
	// wantConnected is set between Connect and Disconnect; an unexpected
	// link drop while set triggers a single reconnect attempt.
	wantConnected bool
	reconnecting  bool

	enableOnce sync.Once
	enableErr  error
}

// NewDevice wires a transport to the controller and registers itself as the
// controller's link.
func NewDevice(ctrl *ring.Controller, cfg Config) *Device {
	cfg.fill()
	d := &Device{
		adapter: bluetooth.DefaultAdapter,
		ctrl:    ctrl,
		cfg:     cfg,
	}
	ctrl.AttachLink(d)
	return d
}

func (d *Device) enableAdapter() error {
	d.enableOnce.Do(func() {
		d.enableErr = d.adapter.Enable()
		if d.enableErr != nil {
			return
		}
		d.adapter.SetConnectHandler(func(dev bluetooth.Device, connected bool) {
			if connected {
				return
			}
			d.onLinkDropped()
		})
	})
	return d.enableErr
}

// Connect scans for a ring, connects, discovers the service, subscribes to
// notifications, and leaves the controller in Idle. It blocks until the link
// is up or the attempt fails.
func (d *Device) Connect(ctx context.Context) error {
	if err := d.enableAdapter(); err != nil {
		return fmt.Errorf("enable adapter: %w", err)
	}

	d.ctrl.OnScanning()
	addr, name, err := d.scan(ctx)
	if err != nil {
		d.ctrl.OnDisconnected()
		return err
	}
	log.Info("ble: found ring", "name", name, "addr", addr.String())

	d.ctrl.OnConnecting()
	dev, err := d.adapter.Connect(addr, bluetooth.ConnectionParams{})
	if err != nil {
		d.ctrl.OnDisconnected()
		return fmt.Errorf("connect %s: %w", addr.String(), err)
	}

	if err := d.attach(&dev); err != nil {
		_ = dev.Disconnect()
		d.ctrl.OnDisconnected()
		return err
	}

	d.mu.Lock()
	d.wantConnected = true
	d.mu.Unlock()

	d.ctrl.OnConnected()
	return nil
}

// scan looks for the first advertisement whose local name matches the
// configured pattern.
func (d *Device) scan(ctx context.Context) (bluetooth.Address, string, error) {
	type hit struct {
		addr bluetooth.Address
		name string
	}
	found := make(chan hit, 1)

	stop := time.AfterFunc(d.cfg.ScanTimeout, func() { _ = d.adapter.StopScan() })
	defer stop.Stop()
	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()
	go func() {
		<-watchCtx.Done()
		_ = d.adapter.StopScan()
	}()

	err := d.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
		name := result.LocalName()
		if name == "" || !d.cfg.NamePattern.MatchString(name) {
			return
		}
		select {
		case found <- hit{addr: result.Address, name: name}:
		default:
		}
		_ = adapter.StopScan()
	})

	select {
	case h := <-found:
		return h.addr, h.name, nil
	default:
	}
	if ctx.Err() != nil {
		return bluetooth.Address{}, "", ctx.Err()
	}
	if err != nil {
		return bluetooth.Address{}, "", fmt.Errorf("scan: %w", err)
	}
	return bluetooth.Address{}, "", ErrNoRingFound
}

// attach discovers the ring service and wires up both characteristics.
func (d *Device) attach(dev *bluetooth.Device) error {
	srvs, err := dev.DiscoverServices([]bluetooth.UUID{ServiceUUID})
	if err != nil || len(srvs) == 0 {
		return fmt.Errorf("discover service: %w", err)
	}

	chars, err := srvs[0].DiscoverCharacteristics([]bluetooth.UUID{WriteCharUUID, NotifyCharUUID})
	if err != nil {
		return fmt.Errorf("discover characteristics: %w", err)
	}

	var write, notify bluetooth.DeviceCharacteristic
	var haveWrite, haveNotify bool
	for _, char := range chars {
		switch char.UUID() {
		case WriteCharUUID:
			write, haveWrite = char, true
		case NotifyCharUUID:
			notify, haveNotify = char, true
		}
	}
	if !haveWrite || !haveNotify {
		return errors.New("ble: ring service missing write or notify characteristic")
	}

	if err := notify.EnableNotifications(func(buf []byte) {
		debug.FrameLog("ring->host", buf)
		d.ctrl.OnFrame(buf)
	}); err != nil {
		return fmt.Errorf("enable notifications: %w", err)
	}

	d.mu.Lock()
	d.dev = dev
	d.writeChar = write
	d.haveWrite = true
	d.mu.Unlock()
	return nil
}

// WriteCommand sends one command frame to the ring's write characteristic.
func (d *Device) WriteCommand(frame [protocol.FrameSize]byte) error {
	d.mu.Lock()
	ok := d.haveWrite
	char := d.writeChar
	d.mu.Unlock()
	if !ok {
		return errors.New("ble: not connected")
	}
	debug.FrameLog("host->ring", frame[:])
	_, err := char.WriteWithoutResponse(frame[:])
	return err
}

// Disconnect tears the link down deliberately. No reconnect is attempted.
func (d *Device) Disconnect() error {
	d.mu.Lock()
	d.wantConnected = false
	d.haveWrite = false
	dev := d.dev
	d.dev = nil
	d.mu.Unlock()

	d.ctrl.OnDisconnected()
	if dev != nil {
		return dev.Disconnect()
	}
	return nil
}

// onLinkDropped handles an unexpected disconnect: the controller falls back
// to Disconnected and exactly one reconnect attempt is made.
func (d *Device) onLinkDropped() {
	d.mu.Lock()
	if !d.wantConnected || d.reconnecting {
		d.mu.Unlock()
		return
	}
	d.wantConnected = false
	d.haveWrite = false
	d.dev = nil
	d.reconnecting = true
	d.mu.Unlock()

	log.Warn("ble: link dropped, attempting one reconnect")
	d.ctrl.OnDisconnected()

	go func() {
		defer func() {
			d.mu.Lock()
			d.reconnecting = false
			d.mu.Unlock()
		}()
		ctx, cancel := context.WithTimeout(context.Background(), d.cfg.ScanTimeout+30*time.Second)
		defer cancel()
		if err := d.Connect(ctx); err != nil {
			log.Error("ble: reconnect failed", "err", err)
		}
	}()
}
