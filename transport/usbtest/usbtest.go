// gs_usb protocol core
// https://github.com/usbarmory/gsusb
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package usbtest is an in-process stand-in for a real USB controller,
// for exercising gsusb.Device without any hardware or host kernel.
// It plays the role a USB host's control and bulk pipes would: Control
// drives gsusb.Device.HandleSetup directly, and the bulk queues are
// plain Go channels satisfying gsusb.BulkTransport.
package usbtest

import (
	"errors"

	"github.com/usbarmory/gsusb/gsusb"
)

// Harness is a loopback USB transport: OUT() feeds bytes a real host
// would have sent down the bulk OUT pipe, and IN() drains whatever the
// device under test wrote to the bulk IN pipe.
type Harness struct {
	Device *gsusb.Device

	out chan []byte
	in  chan []byte
}

// New wraps dev in a Harness with queues of depth n.
func New(dev *gsusb.Device, n int) *Harness {
	return &Harness{
		Device: dev,
		out:    make(chan []byte, n),
		in:     make(chan []byte, n),
	}
}

// ReadOut implements gsusb.BulkTransport: it blocks for the next
// buffer queued by OUT.
func (h *Harness) ReadOut(buf []byte) (int, error) {
	data, ok := <-h.out
	if !ok {
		return 0, errors.New("usbtest: harness closed")
	}
	return copy(buf, data), nil
}

// WriteIn implements gsusb.BulkTransport: it queues buf for IN to
// observe.
func (h *Harness) WriteIn(buf []byte) error {
	cp := make([]byte, len(buf))
	copy(cp, buf)

	select {
	case h.in <- cp:
		return nil
	default:
		return errors.New("usbtest: IN queue full")
	}
}

// OUT enqueues a bulk OUT packet as if the host had sent it.
func (h *Harness) OUT(buf []byte) {
	cp := make([]byte, len(buf))
	copy(cp, buf)
	h.out <- cp
}

// IN blocks for the next bulk IN packet the device under test wrote.
func (h *Harness) IN() []byte {
	return <-h.in
}

// Close stops ReadOut from blocking forever once a test is done
// driving the harness.
func (h *Harness) Close() {
	close(h.out)
}

// Control drives a single control transfer through
// gsusb.Device.HandleSetup, standing in for a real SETUP/DATA/STATUS
// sequence on EP0.
func (h *Harness) Control(req gsusb.ControlRequest, payload []byte) ([]byte, error) {
	return h.Device.HandleSetup(req, payload)
}
