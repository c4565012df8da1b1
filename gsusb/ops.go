// gs_usb protocol core
// https://github.com/usbarmory/gsusb
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package gsusb

// LEDEvent is a hardware-facing LED command emitted by the channel LED
// state machine (§4.6). Operations.Event is the sole place these reach
// the embedder; the state machine itself never touches GPIO.
type LEDEvent int

const (
	LEDStateOn LEDEvent = iota
	LEDStateOff
	LEDStateInvertOn
	LEDStateInvertOff
	LEDActivityOn
	LEDActivityOff
	LEDActivityRXOn
	LEDActivityRXOff
	LEDActivityTXOn
	LEDActivityTXOff
	LEDIdentifyOn
	LEDIdentifyOff
)

// Operations is the always-required embedder callback set (§6).
type Operations interface {
	// Event delivers a LED command computed by the channel LED state
	// machine for the given channel index.
	Event(channel int, ev LEDEvent)
}

// TimestampProvider is implemented by embedders that expose a free
// running microsecond counter; its presence (and the HW timestamp
// build option) is what turns on FeatureHwTimestamp (§4.2).
type TimestampProvider interface {
	// Timestamp returns the current 32-bit microsecond timestamp.
	Timestamp() (uint32, error)
}

// Identifier is implemented by embedders that can drive a
// device-identify indicator; its presence is what turns on
// FeatureIdentify (§4.2).
type Identifier interface {
	Identify(channel int, on bool) error
}

// Terminator is implemented by embedders that can drive a bus
// termination resistor; both methods must be present for
// FeatureTermination to turn on (§4.2).
type Terminator interface {
	SetTermination(channel int, on bool) error
	GetTermination(channel int) (bool, error)
}

// ChannelEvent feeds the per-channel LED state machine (§4.6).
type ChannelEvent int

const (
	EventTick ChannelEvent = iota
	EventChannelStarted
	EventChannelStopped
	EventActivityRX
	EventActivityTX
	EventIdentifyOn
	EventIdentifyOff
)
