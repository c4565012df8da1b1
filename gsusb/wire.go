// gs_usb protocol core
// https://github.com/usbarmory/gsusb
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package gsusb

import "encoding/binary"

// Wire struct sizes (§4.1). Every control payload is validated against
// these exact byte counts before it is unpacked.
const (
	hostConfigLen      = 4
	deviceConfigLen    = 12
	deviceModeLen      = 8
	deviceStateLen     = 12
	deviceBittimingLen = 20
	identifyModeLen    = 4
	terminationLen     = 4
	btConstLen         = 40
	btConstExtLen      = 72
	hostFrameHdrLen    = 12
)

// hostByteOrderMagic is the value HOST_FORMAT must carry
// (0x0000BEEF, little-endian on the wire as EF BE 00 00).
const hostByteOrderMagic = 0x0000beef

// hostConfig is the HOST_FORMAT payload.
type hostConfig struct {
	ByteOrder uint32
}

func unpackHostConfig(b []byte) (hostConfig, error) {
	var c hostConfig
	if len(b) != hostConfigLen {
		return c, errInvalid("host_config")
	}
	c.ByteOrder = binary.LittleEndian.Uint32(b)
	return c, nil
}

// deviceConfig is the DEVICE_CONFIG response.
type deviceConfig struct {
	Reserved1  uint8
	Reserved2  uint8
	Reserved3  uint8
	ICount     uint8 // nchannels - 1
	SWVersion  uint32
	HWVersion  uint32
}

func (c deviceConfig) pack() []byte {
	b := make([]byte, deviceConfigLen)
	b[0], b[1], b[2], b[3] = c.Reserved1, c.Reserved2, c.Reserved3, c.ICount
	binary.LittleEndian.PutUint32(b[4:8], c.SWVersion)
	binary.LittleEndian.PutUint32(b[8:12], c.HWVersion)
	return b
}

// Device mode values (device_mode.mode). device_mode.flags reuses the
// Features bit positions directly (§3 invariant 1: mode is a subset of
// features), see channel.go.
const (
	CANModeReset uint32 = 0
	CANModeStart uint32 = 1
)

// deviceMode is the MODE payload.
type deviceMode struct {
	Mode  uint32
	Flags uint32
}

func unpackDeviceMode(b []byte) (deviceMode, error) {
	var m deviceMode
	if len(b) != deviceModeLen {
		return m, errInvalid("device_mode")
	}
	m.Mode = binary.LittleEndian.Uint32(b[0:4])
	m.Flags = binary.LittleEndian.Uint32(b[4:8])
	return m, nil
}

// deviceState is the GET_STATE response.
type deviceState struct {
	State uint32
	RxErr uint32
	TxErr uint32
}

func (s deviceState) pack() []byte {
	b := make([]byte, deviceStateLen)
	binary.LittleEndian.PutUint32(b[0:4], s.State)
	binary.LittleEndian.PutUint32(b[4:8], s.RxErr)
	binary.LittleEndian.PutUint32(b[8:12], s.TxErr)
	return b
}

// Channel state values reported by GET_STATE.
const (
	ChannelStateErrorActive uint32 = iota
	ChannelStateErrorWarning
	ChannelStateErrorPassive
	ChannelStateBusOff
	ChannelStateStopped
)

// deviceBittiming is the BITTIMING/DATA_BITTIMING payload: five u32
// fields in the order prop_seg, phase_seg1, phase_seg2, sjw, brp.
type deviceBittiming struct {
	PropSeg   uint32
	PhaseSeg1 uint32
	PhaseSeg2 uint32
	SJW       uint32
	Prescaler uint32
}

func unpackBittiming(b []byte) (deviceBittiming, error) {
	var t deviceBittiming
	if len(b) != deviceBittimingLen {
		return t, errInvalid("device_bittiming")
	}
	t.PropSeg = binary.LittleEndian.Uint32(b[0:4])
	t.PhaseSeg1 = binary.LittleEndian.Uint32(b[4:8])
	t.PhaseSeg2 = binary.LittleEndian.Uint32(b[8:12])
	t.SJW = binary.LittleEndian.Uint32(b[12:16])
	t.Prescaler = binary.LittleEndian.Uint32(b[16:20])
	return t, nil
}

func (t deviceBittiming) pack() []byte {
	b := make([]byte, deviceBittimingLen)
	binary.LittleEndian.PutUint32(b[0:4], t.PropSeg)
	binary.LittleEndian.PutUint32(b[4:8], t.PhaseSeg1)
	binary.LittleEndian.PutUint32(b[8:12], t.PhaseSeg2)
	binary.LittleEndian.PutUint32(b[12:16], t.SJW)
	binary.LittleEndian.PutUint32(b[16:20], t.Prescaler)
	return b
}

// identifyMode is the IDENTIFY payload.
type identifyMode struct {
	Mode uint32
}

func unpackIdentifyMode(b []byte) (identifyMode, error) {
	var m identifyMode
	if len(b) != identifyModeLen {
		return m, errInvalid("identify_mode")
	}
	m.Mode = binary.LittleEndian.Uint32(b)
	return m, nil
}

// terminationState is the SET_TERMINATION/GET_TERMINATION payload.
type terminationState struct {
	State uint32
}

const (
	TerminationOff uint32 = 0
	TerminationOn  uint32 = 1
)

func unpackTermination(b []byte) (terminationState, error) {
	var s terminationState
	if len(b) != terminationLen {
		return s, errInvalid("termination_state")
	}
	s.State = binary.LittleEndian.Uint32(b)
	return s, nil
}

func (s terminationState) pack() []byte {
	b := make([]byte, terminationLen)
	binary.LittleEndian.PutUint32(b, s.State)
	return b
}

// btConst is the BT_CONST response.
type btConst struct {
	Feature  uint32
	FClkCAN  uint32
	TSeg1Min uint32
	TSeg1Max uint32
	TSeg2Min uint32
	TSeg2Max uint32
	SJWMax   uint32
	BRPMin   uint32
	BRPMax   uint32
	BRPInc   uint32
}

func (c btConst) pack() []byte {
	b := make([]byte, btConstLen)
	vals := []uint32{c.Feature, c.FClkCAN, c.TSeg1Min, c.TSeg1Max, c.TSeg2Min, c.TSeg2Max, c.SJWMax, c.BRPMin, c.BRPMax, c.BRPInc}
	for i, v := range vals {
		binary.LittleEndian.PutUint32(b[i*4:i*4+4], v)
	}
	return b
}

// btConstExt is the BT_CONST_EXT response: btConst plus data-phase
// timing limits.
type btConstExt struct {
	btConst
	DTSeg1Min uint32
	DTSeg1Max uint32
	DTSeg2Min uint32
	DTSeg2Max uint32
	DSJWMax   uint32
	DBRPMin   uint32
	DBRPMax   uint32
	DBRPInc   uint32
}

func (c btConstExt) pack() []byte {
	b := make([]byte, btConstExtLen)
	copy(b[:btConstLen], c.btConst.pack())
	vals := []uint32{c.DTSeg1Min, c.DTSeg1Max, c.DTSeg2Min, c.DTSeg2Max, c.DSJWMax, c.DBRPMin, c.DBRPMax, c.DBRPInc}
	for i, v := range vals {
		off := btConstLen + i*4
		binary.LittleEndian.PutUint32(b[off:off+4], v)
	}
	return b
}

// hostFrameHdr is the 12-byte header prefixing every host frame (§3).
type hostFrameHdr struct {
	EchoID   uint32
	CanID    uint32
	CanDLC   uint8
	Channel  uint8
	Flags    uint8
	Reserved uint8
}

// echoIDRx marks a device-originated RX or error frame.
const echoIDRx uint32 = 0xffffffff

// Host frame flags (hostFrameHdr.Flags).
const (
	FrameFlagOverflow uint8 = 1 << 0
	FrameFlagFD       uint8 = 1 << 1
	FrameFlagBRS      uint8 = 1 << 2
	FrameFlagESI      uint8 = 1 << 3
)

func unpackFrameHdr(b []byte) (hostFrameHdr, error) {
	var h hostFrameHdr
	if len(b) < hostFrameHdrLen {
		return h, errInvalid("host_frame_hdr")
	}
	h.EchoID = binary.LittleEndian.Uint32(b[0:4])
	h.CanID = binary.LittleEndian.Uint32(b[4:8])
	h.CanDLC = b[8]
	h.Channel = b[9]
	h.Flags = b[10]
	h.Reserved = b[11]
	return h, nil
}

func (h hostFrameHdr) pack() []byte {
	b := make([]byte, hostFrameHdrLen)
	binary.LittleEndian.PutUint32(b[0:4], h.EchoID)
	binary.LittleEndian.PutUint32(b[4:8], h.CanID)
	b[8] = h.CanDLC
	b[9] = h.Channel
	b[10] = h.Flags
	b[11] = h.Reserved
	return b
}

// CAN id flags, matching the well known SocketCAN wire values that
// gs_usb itself reuses.
const (
	idFlagExtended uint32 = 0x80000000
	idFlagRTR      uint32 = 0x40000000
	idFlagErr      uint32 = 0x20000000
	maskExtended   uint32 = 0x1fffffff
	maskStandard   uint32 = 0x000007ff
)

// CAN error-frame can_id bits (linux/can/error.h).
const (
	errCRTL      uint32 = 0x00000004
	errBusoff    uint32 = 0x00000040
	errRestarted uint32 = 0x00000100
	errCnt       uint32 = 0x00000200
)

// CAN error-frame payload[1] (data[1], CAN_ERR_CRTL_*) bits.
const (
	errCRTLRxWarning uint8 = 0x04
	errCRTLTxWarning uint8 = 0x08
	errCRTLRxPassive uint8 = 0x10
	errCRTLTxPassive uint8 = 0x20
	errCRTLActive    uint8 = 0x40
)

// dlcToLen converts a DLC to a payload byte count. Classic frames are
// bounded to 8 bytes; FD frames use the standard DLC-to-length table.
func dlcToLen(dlc uint8, fd bool) int {
	if dlc > 15 {
		dlc = 15
	}
	if !fd {
		if dlc > 8 {
			return 8
		}
		return int(dlc)
	}
	switch {
	case dlc <= 8:
		return int(dlc)
	case dlc == 9:
		return 12
	case dlc == 10:
		return 16
	case dlc == 11:
		return 20
	case dlc == 12:
		return 24
	case dlc == 13:
		return 32
	case dlc == 14:
		return 48
	default:
		return 64
	}
}
