// gs_usb protocol core
// https://github.com/usbarmory/gsusb
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package gsusb

import "encoding/binary"

// Vendor-specific interface class/subclass/protocol a gs_usb transport
// adapter advertises for its bulk IN/OUT interface (§4.1, §9).
const (
	InterfaceClass    = 0xff
	InterfaceSubClass = 0x00
	InterfaceProtocol = 0x00
)

// msOS20PlatformCapabilityUUID is the Microsoft OS 2.0 platform
// capability descriptor UUID, D8DD60DF-4589-4CC7-9CD2-659D9E648A9F in
// the byte order the BOS descriptor's CapPlatformDescriptor.
// PlatformCapabilityUUID field expects (§9: MS OS 2.0 is the way a
// gs_usb device avoids needing a signed Windows driver).
var msOS20PlatformCapabilityUUID = [16]byte{
	0xdf, 0x60, 0xdd, 0xd8, 0x89, 0x45, 0xc7, 0x4c,
	0x9c, 0xd2, 0x65, 0x9d, 0x9e, 0x64, 0x8a, 0x9f,
}

const (
	msOS20DescriptorSetHeader  uint16 = 0x00
	msOS20FeatureCompatibleID  uint16 = 0x03
	msOS20WindowsVersion       uint32 = 0x06030000 // NTDDI_WINBLUE
	msOS20SetHeaderLen         uint16 = 10
	msOS20CompatibleIDLen      uint16 = 20
)

// msosDescriptorSet builds the Microsoft OS 2.0 descriptor set: a set
// header followed by a single WINUSB compatible-ID feature descriptor,
// so hosts that understand it bind WinUSB without a signed driver
// package. The vendor request index is ignored: this device exposes
// exactly one descriptor set.
func msosDescriptorSet() []byte {
	total := msOS20SetHeaderLen + msOS20CompatibleIDLen
	b := make([]byte, total)

	binary.LittleEndian.PutUint16(b[0:2], msOS20SetHeaderLen)
	binary.LittleEndian.PutUint16(b[2:4], msOS20DescriptorSetHeader)
	binary.LittleEndian.PutUint32(b[4:8], msOS20WindowsVersion)
	binary.LittleEndian.PutUint16(b[8:10], total)

	off := int(msOS20SetHeaderLen)
	binary.LittleEndian.PutUint16(b[off:off+2], msOS20CompatibleIDLen)
	binary.LittleEndian.PutUint16(b[off+2:off+4], msOS20FeatureCompatibleID)
	copy(b[off+4:off+12], []byte("WINUSB\x00\x00"))
	// SubCompatibleID left zeroed: no sub-compatible ID.

	return b
}

// msosDescriptor answers the device-recipient vendor request used to
// retrieve the MS OS 2.0 descriptor set (§4.1, §9). The wValue/index
// split a real host uses to distinguish descriptor-set vs. alternate
// enumeration requests collapses to a single case here, since this
// device advertises neither BOS alternate enumeration nor more than
// one descriptor set.
func (d *Device) msosDescriptor(index uint16) ([]byte, error) {
	return msosDescriptorSet(), nil
}

// BOSCapabilityDescriptor returns the Microsoft OS 2.0 platform
// capability descriptor bytes a transport adapter should fold into its
// BOS descriptor, so a host knows to issue the vendor request that
// msosDescriptor answers.
//
// Layout: bLength, bDescriptorType=0x10 (DEVICE CAPABILITY),
// bDevCapabilityType=0x05 (PLATFORM), bReserved, PlatformCapabilityUUID,
// then the MS OS 2.0 descriptor-set-information capability data
// (dwWindowsVersion, wMSOSDescriptorSetTotalLength, bMS_VendorCode,
// bAltEnumCode).
func (d *Device) BOSCapabilityDescriptor() []byte {
	data := make([]byte, 8)
	binary.LittleEndian.PutUint32(data[0:4], msOS20WindowsVersion)
	binary.LittleEndian.PutUint16(data[4:6], msOS20SetHeaderLen+msOS20CompatibleIDLen)
	data[6] = d.cfg.MSOSVendorCode
	data[7] = 0x00 // no alternate enumeration

	b := make([]byte, 4+16+len(data))
	b[0] = byte(len(b))
	b[1] = 0x10 // DEVICE CAPABILITY descriptor type
	b[2] = 0x05 // PLATFORM capability type
	b[3] = 0x00 // reserved
	copy(b[4:20], msOS20PlatformCapabilityUUID[:])
	copy(b[20:], data)

	return b
}

// BOSDescriptor wraps BOSCapabilityDescriptor in the 5-byte BOS
// header (bLength, bDescriptorType=0x0F, wTotalLength,
// bNumDeviceCaps) a transport adapter serves for a standard
// GET_DESCRIPTOR(BOS) request.
func (d *Device) BOSDescriptor() []byte {
	capDesc := d.BOSCapabilityDescriptor()

	b := make([]byte, 5+len(capDesc))
	b[0] = 5
	b[1] = 0x0f
	binary.LittleEndian.PutUint16(b[2:4], uint16(len(b)))
	b[4] = 1
	copy(b[5:], capDesc)

	return b
}
