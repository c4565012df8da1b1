// gs_usb protocol core
// https://github.com/usbarmory/gsusb
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package gsusb

import (
	"encoding/binary"
	"testing"
)

func TestBOSDescriptorHeader(t *testing.T) {
	dev, err := New(1, Config{})
	if err != nil {
		t.Fatal(err)
	}

	b := dev.BOSDescriptor()
	if b[0] != 5 {
		t.Fatalf("bLength = %d, want 5", b[0])
	}
	if b[1] != 0x0f {
		t.Fatalf("bDescriptorType = %#x, want 0x0f", b[1])
	}
	if got := binary.LittleEndian.Uint16(b[2:4]); int(got) != len(b) {
		t.Fatalf("wTotalLength = %d, want %d", got, len(b))
	}
	if b[4] != 1 {
		t.Fatalf("bNumDeviceCaps = %d, want 1", b[4])
	}
}

func TestBOSCapabilityDescriptorCarriesPlatformUUID(t *testing.T) {
	dev, err := New(1, Config{})
	if err != nil {
		t.Fatal(err)
	}

	b := dev.BOSCapabilityDescriptor()
	if b[1] != 0x10 {
		t.Fatalf("bDescriptorType = %#x, want 0x10", b[1])
	}
	if b[2] != 0x05 {
		t.Fatalf("bDevCapabilityType = %#x, want 0x05 (PLATFORM)", b[2])
	}
	for i, want := range msOS20PlatformCapabilityUUID {
		if b[4+i] != want {
			t.Fatalf("UUID byte %d = %#x, want %#x", i, b[4+i], want)
		}
	}
}

func TestMSOSDescriptorSetIsWinUSBCompatible(t *testing.T) {
	b := msosDescriptorSet()

	setLen := binary.LittleEndian.Uint16(b[0:2])
	if setLen != msOS20SetHeaderLen {
		t.Fatalf("set header length = %d, want %d", setLen, msOS20SetHeaderLen)
	}

	id := binary.LittleEndian.Uint16(b[int(msOS20SetHeaderLen)+2 : int(msOS20SetHeaderLen)+4])
	if id != msOS20FeatureCompatibleID {
		t.Fatalf("wDescriptorType = %#x, want %#x", id, msOS20FeatureCompatibleID)
	}

	compatOff := int(msOS20SetHeaderLen) + 4
	if string(b[compatOff:compatOff+6]) != "WINUSB" {
		t.Fatalf("compatibleID = %q, want WINUSB", b[compatOff:compatOff+6])
	}
}

func TestMSOSVendorCodeDefaultsWhenZero(t *testing.T) {
	dev, err := New(1, Config{})
	if err != nil {
		t.Fatal(err)
	}
	if dev.cfg.MSOSVendorCode != defaultMSOSVendorCode {
		t.Fatalf("MSOSVendorCode = %#x, want default %#x", dev.cfg.MSOSVendorCode, defaultMSOSVendorCode)
	}
}

func TestHandleSetupDeviceRecipientMSOSDescriptor(t *testing.T) {
	dev, err := New(1, Config{})
	if err != nil {
		t.Fatal(err)
	}

	req := ControlRequest{Recipient: RecipientDevice, Request: dev.cfg.MSOSVendorCode}
	resp, err := dev.HandleSetup(req, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(resp) != int(msOS20SetHeaderLen+msOS20CompatibleIDLen) {
		t.Fatalf("len = %d, want %d", len(resp), msOS20SetHeaderLen+msOS20CompatibleIDLen)
	}
}

func TestHandleSetupDeviceRecipientRejectsOtherCodes(t *testing.T) {
	dev, err := New(1, Config{})
	if err != nil {
		t.Fatal(err)
	}

	req := ControlRequest{Recipient: RecipientDevice, Request: dev.cfg.MSOSVendorCode + 1}
	if _, err := dev.HandleSetup(req, nil); err == nil {
		t.Fatal("expected an unrecognized device-recipient vendor code to fail")
	}
}
