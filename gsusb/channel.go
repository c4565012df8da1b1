// gs_usb protocol core
// https://github.com/usbarmory/gsusb
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package gsusb

import (
	"errors"
	"sync/atomic"
)

// Features is the gs_usb feature bitmask, shared by a channel's
// advertised capabilities and by the (necessarily narrower) mode flags
// a host may request at MODE=START time (§3 invariant 1).
type Features uint32

// Feature bits, in the order gs_usb hosts expect them.
const (
	FeatureListenOnly Features = 1 << iota
	FeatureLoopBack
	FeatureTripleSample
	FeatureOneShot
	FeatureHwTimestamp
	FeatureIdentify
	FeatureUserID
	FeaturePadPktsToMaxPktSize
	FeatureFD
	FeatureRequestUsbQuirkLpc546xx
	FeatureBtConstExt
	FeatureTermination
	FeatureBerrReporting
	FeatureGetState
)

// Has reports whether all bits in want are set in f.
func (f Features) Has(want Features) bool {
	return f&want == want
}

// Channel is the per-index state described in §3. Long-lived fields
// are each written by exactly one goroutine (Mode/Started by the
// control dispatcher, Busoff by the controller's state-change
// callback) and read with atomics from anywhere, matching §5's
// single-owner discipline without needing a lock.
type Channel struct {
	index int

	controller Controller
	ops        Operations

	features Features

	mode    atomic.Uint32 // Features, 0 while stopped
	started atomic.Bool
	busoff  atomic.Bool
	overflow atomic.Uint32

	led *ledMachine
}

// Features returns the channel's advertised capability bitmask.
func (c *Channel) Features() Features {
	return c.features
}

// Mode returns the channel's current mode bitmask (0 while stopped).
func (c *Channel) Mode() Features {
	return Features(c.mode.Load())
}

// Started reports whether the channel's controller has been
// successfully started since the last reset or disconnect.
func (c *Channel) Started() bool {
	return c.started.Load()
}

// featuresFromCapabilities maps CAN controller capability bits to
// gs_usb feature bits (§4.2).
func featuresFromCapabilities(caps Capabilities) Features {
	var f Features

	if caps.Has(CapLoopBack) {
		f |= FeatureLoopBack
	}
	if caps.Has(CapListenOnly) {
		f |= FeatureListenOnly
	}
	if caps.Has(CapFD) {
		f |= FeatureFD | FeatureBtConstExt
	}
	if caps.Has(CapOneShot) {
		f |= FeatureOneShot
	}
	if caps.Has(CapTripleSample) {
		f |= FeatureTripleSample
	}

	return f
}

// featuresFromOps adds features derived from the presence of optional
// Operations callbacks (§4.2, §9's runtime capability detection).
func featuresFromOps(ops Operations, timestampBuildOption, terminationBuildOption bool) Features {
	var f Features

	if _, ok := ops.(TimestampProvider); ok && timestampBuildOption {
		f |= FeatureHwTimestamp
	}
	if _, ok := ops.(Identifier); ok {
		f |= FeatureIdentify
	}
	if _, ok := ops.(Terminator); ok && terminationBuildOption {
		f |= FeatureTermination
	}

	return f
}

// reset clears mode/started/busoff, drains the overflow counter and
// requests the controller stop; an already-stopped controller is
// success (§4.2).
func (c *Channel) reset() error {
	c.mode.Store(0)
	c.started.Store(false)
	c.busoff.Store(false)
	c.overflow.Store(0)

	if err := c.controller.Stop(); err != nil && !errors.Is(err, ErrNoDevice) {
		return errController("reset", err)
	}

	return nil
}

func (c *Channel) incOverflow() {
	c.overflow.Add(1)
}

// takeOverflow decrements and reports whether an overflow was pending,
// for the IN worker to set FrameFlagOverflow on the next delivered
// frame (§3 invariant 5).
func (c *Channel) takeOverflow() bool {
	for {
		v := c.overflow.Load()
		if v == 0 {
			return false
		}
		if c.overflow.CompareAndSwap(v, v-1) {
			return true
		}
	}
}
