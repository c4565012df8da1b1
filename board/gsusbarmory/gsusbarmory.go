// gs_usb protocol core
// https://github.com/usbarmory/gsusb
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package gsusbarmory wires a gsusb.Device to the USB armory Mk II's
// two GPIO-driven LEDs and CAN transceiver termination jumper, grounded
// on board/usbarmory/mk2's GPIO pad initialization pattern (led.go).
package gsusbarmory

import (
	"github.com/usbarmory/gsusb/gsusb"
	"github.com/usbarmory/gsusb/soc/nxp/gpio"
	"github.com/usbarmory/gsusb/soc/nxp/imx6ul"
	"github.com/usbarmory/gsusb/soc/nxp/iomuxc"
)

// GPIO pad wiring for the two on-board LEDs, reused from
// board/usbarmory/mk2/led.go's CSI_DATA00/01 pads.
const (
	whitePin                        = 21
	iomuxcMuxCtlPadCSIData00 uint32 = 0x020e01e4
	iomuxcPadCtlPadCSIData00 uint32 = 0x020e0470

	bluePin                         = 22
	iomuxcMuxCtlPadCSIData01 uint32 = 0x020e01e8
	iomuxcPadCtlPadCSIData01 uint32 = 0x020e0474

	// termPin drives an external CAN transceiver's 120R termination
	// switch, present on board revisions that carry one on the
	// expansion header.
	termPin = 6 // GPIO5_IO06

	// gpioMode is the IOMUXC pad mux mode selecting GPIO function,
	// reused from board/usbarmory/mk2.
	gpioMode = 5
)

// Board drives the USB armory Mk II's white/blue LEDs and an optional
// termination GPIO for one or more gsusb channels. It implements
// gsusb.Operations directly; Terminator is implemented too but only
// meaningful when termPin is actually wired to a transceiver.
type Board struct {
	white *gpio.Pin
	blue  *gpio.Pin
	term  *gpio.Pin
}

// New initializes the board's GPIO pads.
func New() (*Board, error) {
	ctl := uint32((1 << iomuxc.SW_PAD_CTL_PKE) |
		(iomuxc.SW_PAD_CTL_SPEED_100MHZ << iomuxc.SW_PAD_CTL_SPEED) |
		(iomuxc.SW_PAD_CTL_DSE_2_R0_6 << iomuxc.SW_PAD_CTL_DSE))

	white, err := imx6ul.GPIO4.Init(whitePin)
	if err != nil {
		return nil, err
	}
	white.Out()
	iomuxc.Init(iomuxcMuxCtlPadCSIData00, iomuxcPadCtlPadCSIData00, gpioMode).Ctl(ctl)

	blue, err := imx6ul.GPIO4.Init(bluePin)
	if err != nil {
		return nil, err
	}
	blue.Out()
	iomuxc.Init(iomuxcMuxCtlPadCSIData01, iomuxcPadCtlPadCSIData01, gpioMode).Ctl(ctl)

	term, err := imx6ul.GPIO5.Init(termPin)
	if err != nil {
		return nil, err
	}
	term.Out()

	return &Board{white: white, blue: blue, term: term}, nil
}

// LEDLines reports white as the state line and blue as the shared
// activity line: the board has no separate RX/TX indicators.
func (b *Board) LEDLines() gsusb.LEDLines {
	return gsusb.LEDLines{State: true, Activity: true}
}

// Event implements gsusb.Operations. channel is ignored: a single
// Board drives one physical LED pair regardless of how many gs_usb
// channels are registered against it, matching the hardware's one
// pair-of-LEDs-per-interface layout.
func (b *Board) Event(channel int, ev gsusb.LEDEvent) {
	switch ev {
	case gsusb.LEDStateOn:
		b.white.Low()
	case gsusb.LEDStateOff:
		b.white.High()
	case gsusb.LEDStateInvertOn:
		b.white.High()
	case gsusb.LEDStateInvertOff:
		b.white.Low()
	case gsusb.LEDActivityOn:
		b.blue.Low()
	case gsusb.LEDActivityOff:
		b.blue.High()
	case gsusb.LEDIdentifyOn:
		b.white.Low()
		b.blue.Low()
	case gsusb.LEDIdentifyOff:
		b.white.High()
		b.blue.High()
	}
}

// SetTermination implements gsusb.Terminator.
func (b *Board) SetTermination(channel int, on bool) error {
	if on {
		b.term.High()
	} else {
		b.term.Low()
	}
	return nil
}

// GetTermination implements gsusb.Terminator.
func (b *Board) GetTermination(channel int) (bool, error) {
	return b.term.Value(), nil
}
