// gs_usb protocol core
// https://github.com/usbarmory/gsusb
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Command gsusbd is the composition root binding a gsusb.Device to the
// USB armory Mk II's USB controller, GPIO-driven LEDs and a single
// SocketCAN-backed channel (can0).
//
// This binary targets `GOOS=tamago GOARCH=arm`: it never runs under a
// host OS kernel, it owns the hardware directly.
package main

import (
	"context"
	"log"

	_ "github.com/usbarmory/gsusb/board/usbarmory/mk2"

	"github.com/usbarmory/gsusb/board/gsusbarmory"
	"github.com/usbarmory/gsusb/canbus/socketcan"
	"github.com/usbarmory/gsusb/gsusb"
	usb "github.com/usbarmory/gsusb/soc/imx6/usb"
	"github.com/usbarmory/gsusb/transport/imx6usb"
)

func main() {
	log.SetFlags(0)

	board, err := gsusbarmory.New()
	if err != nil {
		log.Fatalf("gsusbd: board init: %v", err)
	}

	dev, err := gsusb.New(1, gsusb.Config{
		VendorID:               0x1d50,
		ProductID:              0x606f,
		SoftwareVersion:        1,
		HardwareVersion:        1,
		TimestampBuildOption:   true,
		TerminationBuildOption: true,
	})
	if err != nil {
		log.Fatalf("gsusbd: %v", err)
	}

	ctrl, err := socketcan.New("can0",
		socketcan.WithCapabilities(gsusb.CapListenOnly|gsusb.CapLoopBack|gsusb.CapTripleSample|gsusb.CapOneShot),
	)
	if err != nil {
		log.Fatalf("gsusbd: can0: %v", err)
	}

	if _, err := dev.RegisterChannel(0, ctrl, board, board.LEDLines()); err != nil {
		log.Fatalf("gsusbd: register channel: %v", err)
	}

	usb.USB1.Init()
	usb.USB1.DeviceMode()

	hwTransport, usbDev, err := imx6usb.New(usb.USB1, dev, imx6usb.Config{
		VendorID:      0x1d50,
		ProductID:     0x606f,
		Manufacturer:  "usbarmory",
		Product:       "gs_usb CAN bridge",
		Serial:        "0",
		OutEndpoint:   1,
		InEndpoint:    2,
		MaxPacketSize: 512,
	})
	if err != nil {
		log.Fatalf("gsusbd: transport: %v", err)
	}

	go usb.USB1.Start(usbDev)

	if err := dev.Run(context.Background(), hwTransport); err != nil {
		log.Printf("gsusbd: device stopped: %v", err)
	}
}
