// gs_usb protocol core
// https://github.com/usbarmory/gsusb
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package socketcan implements gsusb.Controller over a Linux
// SocketCAN raw socket. It is grounded on the AF_CAN/SOCK_RAW/CAN_RAW
// socket setup and the SO_RCVTIMEO polling loop used by
// gocanopen's socketcanv3 bus driver, adapted from a CANopen frame
// listener to a gsusb.Controller's RX-filter/state-change callbacks.
package socketcan

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/usbarmory/gsusb/gsusb"
)

// Wire sizes of struct can_frame and struct canfd_frame (linux/can.h).
const (
	classicFrameSize = 16
	fdFrameSize      = 72
)

const pollTimeout = 100 * time.Millisecond

// Controller adapts a Linux SocketCAN network interface (e.g. "can0")
// to gsusb.Controller.
type Controller struct {
	fd   int
	name string
	log  *slog.Logger

	caps      gsusb.Capabilities
	clock     uint32
	timingMin gsusb.BitTiming
	timingMax gsusb.BitTiming
	dataMin   gsusb.BitTiming
	dataMax   gsusb.BitTiming

	mu      sync.Mutex
	started bool

	rx          func(gsusb.Frame)
	stateChange func(gsusb.ControllerState, uint8, uint8)

	closeCh chan struct{}
	wg      sync.WaitGroup

	lastState atomic.Uint32 // gsusb.ControllerState, for restart/busoff edge tracking
}

// Option configures a Controller at New.
type Option func(*Controller)

func WithClock(hz uint32) Option { return func(c *Controller) { c.clock = hz } }

func WithCapabilities(caps gsusb.Capabilities) Option {
	return func(c *Controller) { c.caps = caps }
}

func WithTimingRange(min, max gsusb.BitTiming) Option {
	return func(c *Controller) { c.timingMin, c.timingMax = min, max }
}

func WithDataTimingRange(min, max gsusb.BitTiming) Option {
	return func(c *Controller) { c.dataMin, c.dataMax = min, max }
}

func WithLogger(log *slog.Logger) Option {
	return func(c *Controller) { c.log = log }
}

// New binds a raw CAN_RAW socket to the named SocketCAN interface. The
// interface must already be administratively up (e.g. via "ip link
// set canX up type can bitrate ..."): this package, like the gs_usb
// core it backs, never owns link-level bring-up.
func New(name string, opts ...Option) (*Controller, error) {
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return nil, fmt.Errorf("socketcan: %s: %w", name, err)
	}

	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW, unix.CAN_RAW)
	if err != nil {
		return nil, fmt.Errorf("socketcan: socket: %w", err)
	}

	timeout := unix.NsecToTimeval(pollTimeout.Nanoseconds())
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &timeout); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("socketcan: SO_RCVTIMEO: %w", err)
	}

	if err := unix.Bind(fd, &unix.SockaddrCAN{Ifindex: iface.Index}); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("socketcan: bind: %w", err)
	}

	full := gsusb.BitTiming{PropSeg: 1, PhaseSeg1: 1, PhaseSeg2: 1, SJW: 1, Prescaler: 1}
	c := &Controller{
		fd:        fd,
		name:      name,
		log:       slog.Default(),
		caps:      gsusb.CapListenOnly | gsusb.CapLoopBack,
		clock:     80_000_000,
		timingMin: full,
		timingMax: gsusb.BitTiming{PropSeg: 8, PhaseSeg1: 8, PhaseSeg2: 8, SJW: 4, Prescaler: 1024},
		closeCh:   make(chan struct{}),
	}
	c.dataMin, c.dataMax = c.timingMin, c.timingMax

	for _, opt := range opts {
		opt(c)
	}

	if c.caps.Has(gsusb.CapFD) {
		if err := unix.SetsockoptInt(fd, unix.SOL_CAN_RAW, unix.CAN_RAW_FD_FRAMES, 1); err != nil {
			c.log.Warn("socketcan: CAN_RAW_FD_FRAMES unsupported", "iface", name, "err", err)
		}
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_CAN_RAW, unix.CAN_RAW_ERR_FILTER, int(unix.CAN_ERR_MASK)); err != nil {
		c.log.Warn("socketcan: CAN_RAW_ERR_FILTER unsupported", "iface", name, "err", err)
	}

	return c, nil
}

func (c *Controller) Capabilities() gsusb.Capabilities { return c.caps }
func (c *Controller) CoreClock() uint32                { return c.clock }

func (c *Controller) TimingRange() (min, max gsusb.BitTiming)     { return c.timingMin, c.timingMax }
func (c *Controller) DataTimingRange() (min, max gsusb.BitTiming) { return c.dataMin, c.dataMax }

// SetTiming and SetDataTiming are no-ops: bit-timing on a SocketCAN
// interface is link-level configuration ("ip link set ... bitrate")
// owned by the network stack, not by a socket bound to CAN_RAW.
func (c *Controller) SetTiming(gsusb.BitTiming) error     { return nil }
func (c *Controller) SetDataTiming(gsusb.BitTiming) error { return nil }

// SetMode is a no-op for the same reason: listen-only/loopback are
// link attributes in SocketCAN, not socket options.
func (c *Controller) SetMode(gsusb.Mode) error { return nil }

func (c *Controller) Start() error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	c.mu.Unlock()

	c.wg.Add(1)
	go c.readLoop()
	return nil
}

func (c *Controller) Stop() error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = false
	c.mu.Unlock()

	close(c.closeCh)
	c.wg.Wait()
	c.closeCh = make(chan struct{})
	return nil
}

func (c *Controller) State() (gsusb.ControllerState, uint8, uint8) {
	c.mu.Lock()
	started := c.started
	c.mu.Unlock()
	if !started {
		return gsusb.StateStopped, 0, 0
	}
	return gsusb.ControllerState(c.lastState.Load()), 0, 0
}

func (c *Controller) Send(f gsusb.Frame, completion func(error)) {
	fd := f.FD && c.caps.Has(gsusb.CapFD)

	var raw []byte
	if fd {
		raw = make([]byte, fdFrameSize)
	} else {
		raw = make([]byte, classicFrameSize)
	}

	id := f.ID
	if f.Extended {
		id |= 0x80000000
	}
	if f.RTR {
		id |= 0x40000000
	}
	binary.LittleEndian.PutUint32(raw[0:4], id)
	raw[4] = f.DLC

	if fd {
		var flags uint8
		if f.BRS {
			flags |= 0x01
		}
		if f.ESI {
			flags |= 0x02
		}
		raw[5] = flags
		copy(raw[8:], f.Data[:])
	} else {
		copy(raw[8:], f.Data[:8])
	}

	_, err := unix.Write(c.fd, raw)
	completion(err)
}

func (c *Controller) SetRxFilter(f func(gsusb.Frame)) {
	c.mu.Lock()
	c.rx = f
	c.mu.Unlock()
}

func (c *Controller) SetStateChangeCallback(f func(gsusb.ControllerState, uint8, uint8)) {
	c.mu.Lock()
	c.stateChange = f
	c.mu.Unlock()
}

func (c *Controller) readLoop() {
	defer c.wg.Done()

	buf := make([]byte, fdFrameSize)

	for {
		select {
		case <-c.closeCh:
			return
		default:
		}

		n, err := unix.Read(c.fd, buf)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR {
				continue
			}
			c.log.Error("socketcan: read error", "iface", c.name, "err", err)
			return
		}
		if n < classicFrameSize {
			continue
		}

		c.handleFrame(buf[:n])
	}
}

func (c *Controller) handleFrame(raw []byte) {
	id := binary.LittleEndian.Uint32(raw[0:4])

	if id&0x20000000 != 0 {
		c.handleErrorFrame(id, raw)
		return
	}

	c.mu.Lock()
	rx := c.rx
	c.mu.Unlock()
	if rx == nil {
		return
	}

	fd := len(raw) >= fdFrameSize
	f := gsusb.Frame{
		Extended: id&0x80000000 != 0,
		RTR:      id&0x40000000 != 0,
		DLC:      raw[4],
		FD:       fd,
	}
	if f.Extended {
		f.ID = id & 0x1fffffff
	} else {
		f.ID = id & 0x000007ff
	}
	if fd {
		f.BRS = raw[5]&0x01 != 0
		f.ESI = raw[5]&0x02 != 0
		copy(f.Data[:], raw[8:min(len(raw), 8+64)])
	} else {
		copy(f.Data[:8], raw[8:min(len(raw), 16)])
	}

	rx(f)
}

// handleErrorFrame translates a CAN_ERR_FLAG frame into the bus state
// the gs_usb error-frame builder expects (§4.5). SocketCAN's bus-off
// and restart notifications arrive this way rather than through a
// side channel, so this is the only place Controller state actually
// changes.
func (c *Controller) handleErrorFrame(id uint32, raw []byte) {
	var state gsusb.ControllerState

	switch {
	case id&0x00000040 != 0: // CAN_ERR_BUSOFF
		state = gsusb.StateBusOff
	case len(raw) > 1 && raw[1]&0x20 != 0: // CAN_ERR_CRTL_TX_PASSIVE
		state = gsusb.StateErrorPassive
	case len(raw) > 1 && raw[1]&0x10 != 0: // CAN_ERR_CRTL_RX_PASSIVE
		state = gsusb.StateErrorPassive
	case len(raw) > 1 && (raw[1]&0x04 != 0 || raw[1]&0x08 != 0): // CAN_ERR_CRTL_*_WARNING
		state = gsusb.StateErrorWarning
	case id&0x00000100 != 0: // CAN_ERR_RESTARTED
		state = gsusb.StateErrorActive
	default:
		return
	}

	c.lastState.Store(uint32(state))

	c.mu.Lock()
	cb := c.stateChange
	c.mu.Unlock()

	var rxErr, txErr uint8
	if len(raw) > 7 {
		txErr = raw[6]
		rxErr = raw[7]
	}
	if cb != nil {
		cb(state, rxErr, txErr)
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
