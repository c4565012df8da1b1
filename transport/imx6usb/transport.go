// gs_usb protocol core
// https://github.com/usbarmory/gsusb
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package imx6usb adapts a gsusb.Device to the i.MX6 USB device-mode
// controller, grounded on soc/imx6/usb's EndpointFunction/SetupFunction
// hooks (§6, §9: one of the two transport adapters this core ships).
package imx6usb

import (
	"github.com/usbarmory/gsusb/gsusb"
	usb "github.com/usbarmory/gsusb/soc/imx6/usb"
)

// Config describes the USB identity and endpoint numbering a board
// wires the gs_usb interface up with.
type Config struct {
	VendorID     uint16
	ProductID    uint16
	Manufacturer string
	Product      string
	Serial       string

	// OutEndpoint/InEndpoint are endpoint numbers (1-15); direction
	// bits are added automatically.
	OutEndpoint uint8
	InEndpoint  uint8

	// MaxPacketSize is 64 at full speed, 512 at high speed.
	MaxPacketSize uint16
}

// Transport bridges a *gsusb.Device to the imx6 USB hardware: it
// builds the descriptor set (including the BOS/MS OS 2.0 platform
// capability) hw.Start needs, and implements gsusb.BulkTransport over
// the bulk endpoint pair by bridging the hardware's push-style
// EndpointFunction callbacks to gsusb's pull-style ReadOut/WriteIn.
type Transport struct {
	hw  *usb.USB
	dev *gsusb.Device

	out chan []byte
	in  chan []byte
}

// New builds the usb.Device descriptor hierarchy for dev and returns a
// Transport ready to be passed to dev.Run, plus the *usb.Device the
// caller passes to hw.Start.
func New(hw *usb.USB, dev *gsusb.Device, cfg Config) (*Transport, *usb.Device, error) {
	t := &Transport{
		hw:  hw,
		dev: dev,
		out: make(chan []byte, 16),
		in:  make(chan []byte, 16),
	}

	usbDev := &usb.Device{}

	usbDev.Descriptor = &usb.DeviceDescriptor{}
	usbDev.Descriptor.SetDefaults()
	usbDev.Descriptor.VendorId = cfg.VendorID
	usbDev.Descriptor.ProductId = cfg.ProductID
	usbDev.Descriptor.DeviceClass = 0x00

	usbDev.Qualifier = &usb.DeviceQualifierDescriptor{}
	usbDev.Qualifier.SetDefaults()

	if err := usbDev.SetLanguageCodes([]uint16{0x0409}); err != nil {
		return nil, nil, err
	}
	if idx, err := usbDev.AddString(cfg.Manufacturer); err == nil {
		usbDev.Descriptor.Manufacturer = idx
	}
	if idx, err := usbDev.AddString(cfg.Product); err == nil {
		usbDev.Descriptor.Product = idx
	}
	if idx, err := usbDev.AddString(cfg.Serial); err == nil {
		usbDev.Descriptor.SerialNumber = idx
	}

	out := &usb.EndpointDescriptor{}
	out.SetDefaults()
	out.EndpointAddress = cfg.OutEndpoint & 0x0f
	out.Attributes = 0x02 // bulk
	out.MaxPacketSize = cfg.MaxPacketSize
	out.Function = t.outFunction

	in := &usb.EndpointDescriptor{}
	in.SetDefaults()
	in.EndpointAddress = 0x80 | (cfg.InEndpoint & 0x0f)
	in.Attributes = 0x02 // bulk
	in.MaxPacketSize = cfg.MaxPacketSize
	in.Function = t.inFunction

	iface := &usb.InterfaceDescriptor{}
	iface.SetDefaults()
	iface.NumEndpoints = 2
	iface.InterfaceClass = gsusb.InterfaceClass
	iface.InterfaceSubClass = gsusb.InterfaceSubClass
	iface.InterfaceProtocol = gsusb.InterfaceProtocol
	iface.Endpoints = append(iface.Endpoints, out, in)

	conf := &usb.ConfigurationDescriptor{}
	conf.SetDefaults()
	conf.AddInterface(iface)

	if err := usbDev.AddConfiguration(conf); err != nil {
		return nil, nil, err
	}

	usbDev.BOS = dev.BOSDescriptor()
	usbDev.Setup = t.setup

	return t, usbDev, nil
}

// setup answers every vendor-specific SETUP packet by delegating to
// gsusb.Device.HandleSetup. Standard requests never reach here: the
// hardware's own doSetup handles them first (§6).
func (t *Transport) setup(setup *usb.SetupData, payload []byte) (in []byte, ack bool, done bool, err error) {
	recipient := gsusb.RecipientInterface
	if setup.RequestType&0x1f == 0 {
		recipient = gsusb.RecipientDevice
	}

	req := gsusb.ControlRequest{
		Recipient: recipient,
		Request:   setup.Request,
		Value:     setup.Value,
		Length:    setup.Length,
	}

	resp, err := t.dev.HandleSetup(req, payload)
	if err != nil {
		return nil, false, true, err
	}

	if len(resp) == 0 {
		return nil, true, true, nil
	}
	return resp, false, true, nil
}

func (t *Transport) outFunction(buf []byte, lastErr error) ([]byte, error) {
	if lastErr != nil {
		return nil, lastErr
	}

	cp := make([]byte, len(buf))
	copy(cp, buf)

	select {
	case t.out <- cp:
	default:
		// Back pressure from a stalled OUT worker drops the packet
		// rather than blocking the hardware's endpoint goroutine.
	}

	return nil, nil
}

func (t *Transport) inFunction(_ []byte, lastErr error) ([]byte, error) {
	if lastErr != nil {
		return nil, lastErr
	}
	return <-t.in, nil
}

// ReadOut implements gsusb.BulkTransport.
func (t *Transport) ReadOut(buf []byte) (int, error) {
	data := <-t.out
	n := copy(buf, data)
	return n, nil
}

// WriteIn implements gsusb.BulkTransport.
func (t *Transport) WriteIn(buf []byte) error {
	cp := make([]byte, len(buf))
	copy(cp, buf)
	t.in <- cp
	return nil
}
