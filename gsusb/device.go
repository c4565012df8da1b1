// gs_usb protocol core
// https://github.com/usbarmory/gsusb
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package gsusb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/usbarmory/gsusb/gsusb/internal/pool"
)

// frameBufferSize is sized for the largest possible host frame: a
// 12-byte header, a 64-byte FD payload and a 4-byte timestamp. Every
// pool buffer is this size regardless of whether FD or timestamping
// are in use, trading a little memory for a single pool and no
// per-class buffer sizing (§4.5).
const frameBufferSize = hostFrameHdrLen + 64 + 4

// defaultMSOSVendorCode is the vendor request code used to retrieve
// the Microsoft OS 2.0 descriptor set when the Config does not
// override it.
const defaultMSOSVendorCode = 0x01

// Config holds the build-time choices a real gs_usb firmware bakes in
// at compile time (§9: these are runtime fields here instead).
type Config struct {
	VendorID        uint16
	ProductID       uint16
	SoftwareVersion uint32
	HardwareVersion uint32

	// TimestampBuildOption and TerminationBuildOption gate
	// FeatureHwTimestamp/FeatureTermination even when a channel's
	// Operations implements the corresponding callback (§4.2).
	TimestampBuildOption   bool
	TerminationBuildOption bool

	// SoFCaptureEnabled enables the USB start-of-frame timestamp
	// latch consumed by the TIMESTAMP control request (§4.4).
	SoFCaptureEnabled bool

	// MSOSVendorCode overrides defaultMSOSVendorCode when non-zero.
	MSOSVendorCode uint8

	// PoolBuffers sizes the host-frame buffer pool; defaults to 64
	// when zero.
	PoolBuffers int
}

// BulkTransport is the bulk-endpoint contract a transport adapter
// supplies to Device.Run (§6). ReadOut blocks for the next host OUT
// packet; WriteIn blocks until the IN transfer completes.
type BulkTransport interface {
	ReadOut(buf []byte) (n int, err error)
	WriteIn(buf []byte) error
}

// Device is the process-wide gs_usb bridge instance: the channel
// array, the registered Controller/Operations pairs, the buffer pool
// and the worker goroutines (§3).
type Device struct {
	cfg Config

	mu       sync.Mutex
	channels []*Channel

	pool *pool.Pool

	outCh chan []byte
	rxCh  chan []byte

	sofCaptured atomic.Bool
	sofValue    atomic.Uint32

	classEnabled atomic.Bool
}

// New allocates a Device with n channels, all unregistered.
// RegisterChannel must be called for every index before Run.
func New(n int, cfg Config) (*Device, error) {
	if n <= 0 || n > 256 {
		return nil, fmt.Errorf("gsusb: channel count %d out of range [1,256]", n)
	}

	if cfg.PoolBuffers <= 0 {
		cfg.PoolBuffers = 64
	}
	if cfg.MSOSVendorCode == 0 {
		cfg.MSOSVendorCode = defaultMSOSVendorCode
	}

	d := &Device{
		cfg:      cfg,
		channels: make([]*Channel, n),
		pool:     pool.New(cfg.PoolBuffers, frameBufferSize),
		outCh:    make(chan []byte, cfg.PoolBuffers),
		rxCh:     make(chan []byte, cfg.PoolBuffers),
	}

	return d, nil
}

// NumChannels returns the number of channels this device was created
// with.
func (d *Device) NumChannels() int {
	return len(d.channels)
}

// RegisterChannel binds a CAN controller and an Operations
// implementation to channel index i, computing its feature bitmask
// from the controller's capabilities and the presence of optional
// Operations callbacks (§4.2).
func (d *Device) RegisterChannel(i int, ctrl Controller, ops Operations, lines LEDLines) (*Channel, error) {
	if i < 0 || i >= len(d.channels) {
		return nil, errInvalid("register_channel")
	}
	if ctrl == nil || ops == nil {
		return nil, errInvalid("register_channel")
	}

	ch := &Channel{
		index:      i,
		controller: ctrl,
		ops:        ops,
	}

	ch.features = FeatureGetState |
		featuresFromCapabilities(ctrl.Capabilities()) |
		featuresFromOps(ops, d.cfg.TimestampBuildOption, d.cfg.TerminationBuildOption)

	ch.led = newLEDMachine(i, ops, lines)

	ctrl.SetRxFilter(func(f Frame) { d.onControllerRX(ch, f) })
	ctrl.SetStateChangeCallback(func(s ControllerState, rxErr, txErr uint8) { d.onStateChange(ch, s, rxErr, txErr) })

	d.mu.Lock()
	d.channels[i] = ch
	d.mu.Unlock()

	return ch, nil
}

func (d *Device) channel(i int) (*Channel, error) {
	if i < 0 || i >= len(d.channels) {
		return nil, errInvalid("channel")
	}

	d.mu.Lock()
	ch := d.channels[i]
	d.mu.Unlock()

	if ch == nil {
		return nil, &Error{Code: ErrCodeNoDevice, Op: "channel"}
	}

	return ch, nil
}

func (d *Device) channelFor(idx uint8) *Channel {
	d.mu.Lock()
	defer d.mu.Unlock()
	if int(idx) >= len(d.channels) {
		return nil
	}
	return d.channels[idx]
}

func (d *Device) release(buf []byte) {
	d.pool.Put(buf[:cap(buf)])
}

// NotifySOF latches a USB start-of-frame timestamp for the next
// TIMESTAMP control request to consume, when SoFCaptureEnabled (§4.4).
// Called by the transport adapter, which owns the actual SoF
// interrupt/counter.
func (d *Device) NotifySOF(ts uint32) {
	if !d.cfg.SoFCaptureEnabled {
		return
	}
	d.sofValue.Store(ts)
	d.sofCaptured.Store(true)
}

// Run starts the OUT/TX/IN worker goroutines (received frames arrive
// through the controllers' callbacks, not a worker of their own) and
// every registered channel's LED goroutine, and blocks until ctx is
// canceled. On return
// it performs the disconnect cancellation sequence: every channel is
// reset, exactly as a real USB disconnect would (§5).
func (d *Device) Run(ctx context.Context, bulk BulkTransport) error {
	d.classEnabled.Store(true)
	defer d.classEnabled.Store(false)

	var wg sync.WaitGroup

	d.mu.Lock()
	channels := append([]*Channel(nil), d.channels...)
	d.mu.Unlock()

	for _, ch := range channels {
		if ch == nil {
			continue
		}
		wg.Add(1)
		go func(ch *Channel) {
			defer wg.Done()
			ch.led.run(ctx)
		}(ch)
	}

	wg.Add(3)
	go func() { defer wg.Done(); d.outWorker(ctx, bulk) }()
	go func() { defer wg.Done(); d.txWorker(ctx) }()
	go func() { defer wg.Done(); d.inWorker(ctx, bulk) }()

	<-ctx.Done()
	wg.Wait()

	for _, ch := range channels {
		if ch != nil {
			ch.reset()
		}
	}

	return ctx.Err()
}
