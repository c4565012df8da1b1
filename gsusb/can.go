// gs_usb protocol core
// https://github.com/usbarmory/gsusb
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package gsusb

// Capabilities is the bitmask a Controller advertises for the features
// its hardware actually supports (§4.2).
type Capabilities uint32

const (
	CapListenOnly Capabilities = 1 << iota
	CapLoopBack
	CapTripleSample
	CapOneShot
	CapFD
)

// Has reports whether all bits in want are set in c.
func (c Capabilities) Has(want Capabilities) bool {
	return c&want == want
}

// Mode is the controller-native mode bitmask a Controller's SetMode is
// called with, translated from the host's MODE=START flags.
type Mode uint32

const (
	ModeListenOnly Mode = 1 << iota
	ModeLoopBack
	ModeTripleSample
	ModeOneShot
)

// ControllerState is the CAN bus-state enum a Controller reports
// (§4.4 GET_STATE).
type ControllerState int

const (
	StateErrorActive ControllerState = iota
	StateErrorWarning
	StateErrorPassive
	StateBusOff
	StateStopped
)

// BitTiming is the {prop_seg, phase_seg1, phase_seg2, sjw, prescaler}
// tuple shared by the wire format and the controller-native
// representation (§3).
type BitTiming struct {
	PropSeg   uint32
	PhaseSeg1 uint32
	PhaseSeg2 uint32
	SJW       uint32
	Prescaler uint32
}

// Frame is a native CAN frame exchanged with a Controller.
type Frame struct {
	ID       uint32
	Extended bool
	RTR      bool
	FD       bool
	BRS      bool
	ESI      bool
	DLC      uint8
	Data     [64]byte
}

// Controller is the narrow contract a CAN controller driver must
// satisfy to back a gs_usb channel (§6). Implementations are provided
// by the embedder; the canbus package ships a loopback reference
// implementation and a Linux SocketCAN adapter.
type Controller interface {
	// Capabilities returns the set of gs_usb features this
	// controller's hardware can support.
	Capabilities() Capabilities

	// CoreClock returns the controller's core clock in Hz, reported
	// verbatim in BT_CONST/BT_CONST_EXT.
	CoreClock() uint32

	// TimingRange and DataTimingRange return the controller's
	// advertised min/max bit-timing segment limits.
	TimingRange() (min, max BitTiming)
	DataTimingRange() (min, max BitTiming)

	// SetTiming and SetDataTiming apply already-mapped bit timing.
	// Only ever called while the channel is stopped (§3 invariant 2).
	SetTiming(BitTiming) error
	SetDataTiming(BitTiming) error

	// SetMode applies the controller-native mode flags translated
	// from a MODE=START request, before Start is called.
	SetMode(Mode) error

	// Start and Stop start/stop the controller. Stop on an
	// already-stopped controller is success.
	Start() error
	Stop() error

	// State returns the controller's current bus state and error
	// counters (§4.4 GET_STATE).
	State() (state ControllerState, rxErr uint8, txErr uint8)

	// Send transmits frame asynchronously; completion is invoked
	// exactly once, with a non-nil error if the controller rejected
	// or failed to transmit the frame (§3 invariant 6).
	Send(frame Frame, completion func(error))

	// SetRxFilter registers the callback invoked by the controller
	// for every received frame. Called once at registration.
	SetRxFilter(func(Frame))

	// SetStateChangeCallback registers the callback invoked whenever
	// the controller's bus state transitions. Called once at
	// registration.
	SetStateChangeCallback(func(state ControllerState, rxErr, txErr uint8))
}
