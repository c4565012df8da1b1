// gs_usb protocol core
// https://github.com/usbarmory/gsusb
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package gsusb

import "encoding/binary"

// Vendor control request codes (§4.1), matching the well known gs_usb
// GS_USB_BREQ_* values.
const (
	reqHostFormat     uint8 = 0
	reqBittiming      uint8 = 1
	reqMode           uint8 = 2
	reqBerr           uint8 = 3
	reqBtConst        uint8 = 4
	reqDeviceConfig   uint8 = 5
	reqTimestamp      uint8 = 6
	reqIdentify       uint8 = 7
	reqGetUserID      uint8 = 8
	reqSetUserID      uint8 = 9
	reqDataBittiming  uint8 = 10
	reqBtConstExt     uint8 = 11
	reqSetTermination uint8 = 12
	reqGetTermination uint8 = 13
	reqGetState       uint8 = 14
)

// SetupRecipient distinguishes the two request recipients the
// dispatcher handles: per-channel interface requests, and the single
// device-recipient request used to retrieve the Microsoft OS 2.0
// descriptor set (§4.1, §9).
type SetupRecipient int

const (
	RecipientInterface SetupRecipient = iota
	RecipientDevice
)

// ControlRequest is a decoded vendor SETUP packet, already split from
// the transport's raw bmRequestType/bRequest/wValue/wIndex/wLength
// fields.
type ControlRequest struct {
	Recipient SetupRecipient
	Request   uint8
	Value     uint16 // channel index for RecipientInterface
	Length    uint16
}

// HandleSetup is the control dispatcher entry point (§4.1). It never
// blocks on a FIFO: every path here either returns synchronously or
// defers to a Controller/Operations call that the embedder is
// expected to implement non-blockingly, exactly like the rest of the
// collaborator contracts in can.go/ops.go.
func (d *Device) HandleSetup(req ControlRequest, payload []byte) ([]byte, error) {
	if req.Recipient == RecipientDevice {
		if req.Request == d.cfg.MSOSVendorCode {
			return d.msosDescriptor(req.Value)
		}
		return nil, errNotSupported("setup")
	}

	ch, err := d.channel(int(req.Value))
	if err != nil {
		return nil, err
	}

	switch req.Request {
	case reqHostFormat:
		return nil, d.handleHostFormat(payload)
	case reqBittiming:
		return nil, d.handleBittiming(ch, payload, false)
	case reqDataBittiming:
		return nil, d.handleBittiming(ch, payload, true)
	case reqMode:
		return nil, d.handleMode(ch, payload)
	case reqIdentify:
		return nil, d.handleIdentify(ch, payload)
	case reqSetTermination:
		return nil, d.handleSetTermination(ch, payload)
	case reqGetTermination:
		return d.handleGetTermination(ch)
	case reqBtConst:
		return d.handleBtConst(ch)
	case reqBtConstExt:
		return d.handleBtConstExt(ch)
	case reqDeviceConfig:
		return d.handleDeviceConfig(), nil
	case reqTimestamp:
		return d.handleTimestamp(ch)
	case reqGetState:
		return d.handleGetState(ch)
	case reqBerr, reqGetUserID, reqSetUserID:
		return nil, errNotSupported("setup")
	default:
		return nil, errInvalid("setup")
	}
}

func (d *Device) handleHostFormat(payload []byte) error {
	c, err := unpackHostConfig(payload)
	if err != nil {
		return err
	}
	if c.ByteOrder != hostByteOrderMagic {
		return errNotSupported("host_format")
	}
	return nil
}

func (d *Device) handleBittiming(ch *Channel, payload []byte, data bool) error {
	if data && !ch.Features().Has(FeatureFD) {
		return errNotSupported("bittiming")
	}
	if ch.Started() {
		return errBusy("bittiming")
	}

	t, err := unpackBittiming(payload)
	if err != nil {
		return err
	}

	in := BitTiming{PropSeg: t.PropSeg, PhaseSeg1: t.PhaseSeg1, PhaseSeg2: t.PhaseSeg2, SJW: t.SJW, Prescaler: t.Prescaler}

	if data {
		min, max := ch.controller.DataTimingRange()
		mapped := mapTiming(in, min, max)
		if err := ch.controller.SetDataTiming(mapped); err != nil {
			return errController("data_bittiming", err)
		}
		return nil
	}

	min, max := ch.controller.TimingRange()
	mapped := mapTiming(in, min, max)
	if err := ch.controller.SetTiming(mapped); err != nil {
		return errController("bittiming", err)
	}
	return nil
}

// modeFromFeatures translates the subset of Features that double as
// mode flags (§3 invariant 1) into the controller-native Mode bitmask.
func modeFromFeatures(f Features) Mode {
	var m Mode
	if f.Has(FeatureListenOnly) {
		m |= ModeListenOnly
	}
	if f.Has(FeatureLoopBack) {
		m |= ModeLoopBack
	}
	if f.Has(FeatureTripleSample) {
		m |= ModeTripleSample
	}
	if f.Has(FeatureOneShot) {
		m |= ModeOneShot
	}
	return m
}

func (d *Device) handleMode(ch *Channel, payload []byte) error {
	m, err := unpackDeviceMode(payload)
	if err != nil {
		return err
	}

	switch m.Mode {
	case CANModeReset:
		return ch.reset()

	case CANModeStart:
		flags := Features(m.Flags)
		if flags&^ch.Features() != 0 {
			return errInvalid("mode")
		}

		ch.mode.Store(uint32(flags))
		ch.started.Store(true)

		if err := ch.controller.SetMode(modeFromFeatures(flags)); err != nil {
			ch.mode.Store(0)
			ch.started.Store(false)
			return errController("mode", err)
		}
		if err := ch.controller.Start(); err != nil {
			ch.mode.Store(0)
			ch.started.Store(false)
			return errController("mode", err)
		}

		ch.led.send(EventChannelStarted)
		return nil

	default:
		return errInvalid("mode")
	}
}

func (d *Device) handleIdentify(ch *Channel, payload []byte) error {
	idr, ok := ch.ops.(Identifier)
	if !ok || !ch.Features().Has(FeatureIdentify) {
		return errNotSupported("identify")
	}

	m, err := unpackIdentifyMode(payload)
	if err != nil {
		return err
	}

	on := m.Mode != 0
	if err := idr.Identify(ch.index, on); err != nil {
		return errController("identify", err)
	}

	if on {
		ch.led.send(EventIdentifyOn)
	} else {
		ch.led.send(EventIdentifyOff)
	}
	return nil
}

func (d *Device) handleSetTermination(ch *Channel, payload []byte) error {
	term, ok := ch.ops.(Terminator)
	if !ok || !ch.Features().Has(FeatureTermination) {
		return errNotSupported("set_termination")
	}

	s, err := unpackTermination(payload)
	if err != nil {
		return err
	}

	if err := term.SetTermination(ch.index, s.State == TerminationOn); err != nil {
		return errController("set_termination", err)
	}
	return nil
}

func (d *Device) handleGetTermination(ch *Channel) ([]byte, error) {
	term, ok := ch.ops.(Terminator)
	if !ok || !ch.Features().Has(FeatureTermination) {
		return nil, errNotSupported("get_termination")
	}

	on, err := term.GetTermination(ch.index)
	if err != nil {
		return nil, errController("get_termination", err)
	}

	state := terminationState{State: TerminationOff}
	if on {
		state.State = TerminationOn
	}
	return state.pack(), nil
}

// btConstFor builds the shared BT_CONST payload fields, combining the
// split prop_seg/phase_seg1 limits of BitTiming into the single tseg1
// range the wire struct reports (§4.4). tseg2 reports phase_seg2
// directly: the corrected behavior decided for Open Question #1,
// rather than the historical tseg2/phase_seg2 mismatch some firmwares
// shipped.
func btConstFor(ch *Channel) btConst {
	min, max := ch.controller.TimingRange()
	return btConst{
		Feature:  uint32(ch.Features()),
		FClkCAN:  ch.controller.CoreClock(),
		TSeg1Min: min.PropSeg + min.PhaseSeg1,
		TSeg1Max: max.PropSeg + max.PhaseSeg1,
		TSeg2Min: min.PhaseSeg2,
		TSeg2Max: max.PhaseSeg2,
		SJWMax:   max.SJW,
		BRPMin:   min.Prescaler,
		BRPMax:   max.Prescaler,
		BRPInc:   1,
	}
}

func (d *Device) handleBtConst(ch *Channel) ([]byte, error) {
	return btConstFor(ch).pack(), nil
}

func (d *Device) handleBtConstExt(ch *Channel) ([]byte, error) {
	if !ch.Features().Has(FeatureBtConstExt) {
		return nil, errNotSupported("bt_const_ext")
	}

	dmin, dmax := ch.controller.DataTimingRange()
	ext := btConstExt{
		btConst:   btConstFor(ch),
		DTSeg1Min: dmin.PropSeg + dmin.PhaseSeg1,
		DTSeg1Max: dmax.PropSeg + dmax.PhaseSeg1,
		DTSeg2Min: dmin.PhaseSeg2,
		DTSeg2Max: dmax.PhaseSeg2,
		DSJWMax:   dmax.SJW,
		DBRPMin:   dmin.Prescaler,
		DBRPMax:   dmax.Prescaler,
		DBRPInc:   1,
	}
	return ext.pack(), nil
}

func (d *Device) handleDeviceConfig() []byte {
	c := deviceConfig{
		ICount:    uint8(len(d.channels) - 1),
		SWVersion: d.cfg.SoftwareVersion,
		HWVersion: d.cfg.HardwareVersion,
	}
	return c.pack()
}

func (d *Device) handleTimestamp(ch *Channel) ([]byte, error) {
	if d.cfg.SoFCaptureEnabled && d.sofCaptured.CompareAndSwap(true, false) {
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, d.sofValue.Load())
		return b, nil
	}

	tp, ok := ch.ops.(TimestampProvider)
	if !ok {
		return nil, errNotSupported("timestamp")
	}

	ts, err := tp.Timestamp()
	if err != nil {
		return nil, errController("timestamp", err)
	}

	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, ts)
	return b, nil
}

// channelStateFromController maps the Controller-reported state to
// the wire ChannelState* enum (§4.4).
func channelStateFromController(s ControllerState) uint32 {
	switch s {
	case StateErrorActive:
		return ChannelStateErrorActive
	case StateErrorWarning:
		return ChannelStateErrorWarning
	case StateErrorPassive:
		return ChannelStateErrorPassive
	case StateBusOff:
		return ChannelStateBusOff
	default:
		return ChannelStateStopped
	}
}

func (d *Device) handleGetState(ch *Channel) ([]byte, error) {
	state, rxErr, txErr := ch.controller.State()
	s := deviceState{
		State: channelStateFromController(state),
		RxErr: uint32(rxErr),
		TxErr: uint32(txErr),
	}
	return s.pack(), nil
}
