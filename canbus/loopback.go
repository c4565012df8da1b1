// gs_usb protocol core
// https://github.com/usbarmory/gsusb
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package canbus collects gsusb.Controller implementations: a
// dependency-free loopback reference used by tests and examples, and
// a Linux SocketCAN adapter under canbus/socketcan.
package canbus

import (
	"sync"
	"sync/atomic"

	"github.com/usbarmory/gsusb/gsusb"
)

// Loopback is a gsusb.Controller that immediately reflects every
// transmitted frame back as received, with no hardware beneath it. It
// exists for tests and for board-less examples, grounded on the same
// Controller contract every real adapter satisfies.
type Loopback struct {
	caps      gsusb.Capabilities
	clock     uint32
	timingMin gsusb.BitTiming
	timingMax gsusb.BitTiming
	dataMin   gsusb.BitTiming
	dataMax   gsusb.BitTiming

	mu      sync.Mutex
	started bool
	timing  gsusb.BitTiming

	rx          func(gsusb.Frame)
	stateChange func(gsusb.ControllerState, uint8, uint8)

	rxErr atomic.Uint32
	txErr atomic.Uint32
}

// NewLoopback creates a Loopback controller advertising caps, with a
// generous default timing range accepting whatever the host requests.
func NewLoopback(caps gsusb.Capabilities, clock uint32) *Loopback {
	full := gsusb.BitTiming{PropSeg: 1 << 10, PhaseSeg1: 1 << 10, PhaseSeg2: 1 << 10, SJW: 1 << 6, Prescaler: 1 << 12}
	return &Loopback{
		caps:      caps,
		clock:     clock,
		timingMin: gsusb.BitTiming{PropSeg: 1, PhaseSeg1: 1, PhaseSeg2: 1, SJW: 1, Prescaler: 1},
		timingMax: full,
		dataMin:   gsusb.BitTiming{PropSeg: 1, PhaseSeg1: 1, PhaseSeg2: 1, SJW: 1, Prescaler: 1},
		dataMax:   full,
	}
}

func (c *Loopback) Capabilities() gsusb.Capabilities { return c.caps }
func (c *Loopback) CoreClock() uint32                { return c.clock }

func (c *Loopback) TimingRange() (min, max gsusb.BitTiming)     { return c.timingMin, c.timingMax }
func (c *Loopback) DataTimingRange() (min, max gsusb.BitTiming) { return c.dataMin, c.dataMax }

func (c *Loopback) SetTiming(t gsusb.BitTiming) error {
	c.mu.Lock()
	c.timing = t
	c.mu.Unlock()
	return nil
}

func (c *Loopback) SetDataTiming(gsusb.BitTiming) error {
	return nil
}

func (c *Loopback) SetMode(gsusb.Mode) error {
	return nil
}

func (c *Loopback) Start() error {
	c.mu.Lock()
	c.started = true
	c.mu.Unlock()
	return nil
}

func (c *Loopback) Stop() error {
	c.mu.Lock()
	c.started = false
	c.mu.Unlock()
	return nil
}

func (c *Loopback) State() (gsusb.ControllerState, uint8, uint8) {
	c.mu.Lock()
	started := c.started
	c.mu.Unlock()

	if !started {
		return gsusb.StateStopped, uint8(c.rxErr.Load()), uint8(c.txErr.Load())
	}
	return gsusb.StateErrorActive, uint8(c.rxErr.Load()), uint8(c.txErr.Load())
}

// Send loops frame straight back to the registered RX filter on a
// fresh goroutine, mirroring the asynchronous completion contract real
// controllers have (§3 invariant 6).
func (c *Loopback) Send(f gsusb.Frame, completion func(error)) {
	c.mu.Lock()
	started := c.started
	rx := c.rx
	c.mu.Unlock()

	go func() {
		if !started {
			completion(gsusb.ErrNoDevice)
			return
		}
		completion(nil)
		if rx != nil {
			rx(f)
		}
	}()
}

func (c *Loopback) SetRxFilter(f func(gsusb.Frame)) {
	c.mu.Lock()
	c.rx = f
	c.mu.Unlock()
}

func (c *Loopback) SetStateChangeCallback(f func(gsusb.ControllerState, uint8, uint8)) {
	c.mu.Lock()
	c.stateChange = f
	c.mu.Unlock()
}

// InjectStateChange lets a test drive a bus-state transition through
// the same callback path a real controller would use.
func (c *Loopback) InjectStateChange(state gsusb.ControllerState, rxErr, txErr uint8) {
	c.rxErr.Store(uint32(rxErr))
	c.txErr.Store(uint32(txErr))

	c.mu.Lock()
	cb := c.stateChange
	c.mu.Unlock()

	if cb != nil {
		cb(state, rxErr, txErr)
	}
}
