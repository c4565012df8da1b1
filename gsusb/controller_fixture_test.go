// gs_usb protocol core
// https://github.com/usbarmory/gsusb
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package gsusb

// fakeController is a minimal, directly-instantiated gsusb.Controller
// double shared by all of the package's tests; none of them uses
// canbus.Loopback.
type fakeController struct {
	caps Capabilities

	clock            uint32
	timingMin        BitTiming
	timingMax        BitTiming
	dataMin          BitTiming
	dataMax          BitTiming

	started bool
	stopErr error
	startErr error

	state ControllerState
	rxErr uint8
	txErr uint8

	sent []Frame

	rxFilter    func(Frame)
	stateChange func(ControllerState, uint8, uint8)
}

func newFakeController(caps Capabilities) *fakeController {
	return &fakeController{
		caps:      caps,
		clock:     80000000,
		timingMax: BitTiming{PropSeg: 8, PhaseSeg1: 8, PhaseSeg2: 8, SJW: 4, Prescaler: 256},
		timingMin: BitTiming{PropSeg: 1, PhaseSeg1: 1, PhaseSeg2: 1, SJW: 1, Prescaler: 1},
		dataMax:   BitTiming{PropSeg: 8, PhaseSeg1: 8, PhaseSeg2: 8, SJW: 4, Prescaler: 256},
		dataMin:   BitTiming{PropSeg: 1, PhaseSeg1: 1, PhaseSeg2: 1, SJW: 1, Prescaler: 1},
	}
}

func (c *fakeController) Capabilities() Capabilities { return c.caps }
func (c *fakeController) CoreClock() uint32          { return c.clock }

func (c *fakeController) TimingRange() (min, max BitTiming)     { return c.timingMin, c.timingMax }
func (c *fakeController) DataTimingRange() (min, max BitTiming) { return c.dataMin, c.dataMax }

func (c *fakeController) SetTiming(BitTiming) error     { return nil }
func (c *fakeController) SetDataTiming(BitTiming) error { return nil }
func (c *fakeController) SetMode(Mode) error            { return nil }

func (c *fakeController) Start() error {
	if c.startErr != nil {
		return c.startErr
	}
	c.started = true
	return nil
}

func (c *fakeController) Stop() error {
	if c.stopErr != nil {
		return c.stopErr
	}
	c.started = false
	return nil
}

func (c *fakeController) State() (ControllerState, uint8, uint8) {
	return c.state, c.rxErr, c.txErr
}

func (c *fakeController) Send(f Frame, completion func(error)) {
	c.sent = append(c.sent, f)
	if completion != nil {
		completion(nil)
	}
}

func (c *fakeController) SetRxFilter(f func(Frame)) {
	c.rxFilter = f
}

func (c *fakeController) SetStateChangeCallback(f func(ControllerState, uint8, uint8)) {
	c.stateChange = f
}

func (c *fakeController) injectRx(f Frame) {
	if c.rxFilter != nil {
		c.rxFilter(f)
	}
}

func (c *fakeController) injectStateChange(state ControllerState, rxErr, txErr uint8) {
	c.state = state
	c.rxErr = rxErr
	c.txErr = txErr
	if c.stateChange != nil {
		c.stateChange(state, rxErr, txErr)
	}
}
