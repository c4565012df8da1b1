// gs_usb protocol core
// https://github.com/usbarmory/gsusb
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package gsusb

import (
	"context"
	"encoding/binary"
	"log"
	"runtime"
)

// hdrFlagsOffset is the byte offset of hostFrameHdr.Flags within a
// packed header, used by the IN worker to set FrameFlagOverflow
// in-place without repacking the whole header.
const hdrFlagsOffset = 10

// outWorker pulls OUT packets off the bulk endpoint and forwards them
// to the TX worker. A transient pool exhaustion on the OUT path simply
// yields and retries: TX buffers are never counted against a
// channel's RX overflow counter (§3 invariant 5 is an RX-side
// concern).
func (d *Device) outWorker(ctx context.Context, bulk BulkTransport) {
	for {
		if ctx.Err() != nil {
			return
		}

		buf, ok := d.pool.Get()
		if !ok {
			runtime.Gosched()
			continue
		}

		n, err := bulk.ReadOut(buf)
		if err != nil {
			d.release(buf)
			if ctx.Err() != nil {
				return
			}
			log.Printf("gsusb: OUT transfer error: %v", err)
			continue
		}

		select {
		case d.outCh <- buf[:n]:
		case <-ctx.Done():
			d.release(buf)
			return
		}
	}
}

// txWorker decodes each OUT packet as a host frame and hands it to the
// owning channel's controller.
func (d *Device) txWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case buf := <-d.outCh:
			d.handleTX(buf)
		}
	}
}

func (d *Device) handleTX(buf []byte) {
	hdr, err := unpackFrameHdr(buf)
	if err != nil {
		d.release(buf)
		return
	}

	ch := d.channelFor(hdr.Channel)
	if ch == nil || !ch.Started() {
		d.release(buf)
		return
	}

	fd := ch.Features().Has(FeatureFD)

	canID := hdr.CanID
	frame := Frame{
		Extended: canID&idFlagExtended != 0,
		RTR:      canID&idFlagRTR != 0,
		DLC:      hdr.CanDLC,
	}
	if frame.Extended {
		frame.ID = canID & maskExtended
	} else {
		frame.ID = canID & maskStandard
	}
	if fd {
		frame.FD = hdr.Flags&FrameFlagFD != 0
		frame.BRS = frame.FD && hdr.Flags&FrameFlagBRS != 0
	}

	if !frame.RTR {
		payload := buf[hostFrameHdrLen:]
		n := dlcToLen(frame.DLC, frame.FD)
		if n > len(payload) {
			d.release(buf)
			return
		}
		copy(frame.Data[:n], payload[:n])
	}

	echo := hostFrameHdr{EchoID: hdr.EchoID, Channel: hdr.Channel}.pack()
	copy(buf[:hostFrameHdrLen], echo)
	buf = buf[:hostFrameHdrLen]

	ch.controller.Send(frame, func(err error) {
		d.onTXComplete(buf, ch, err)
	})
}

// onTXComplete runs on whatever goroutine the Controller invokes its
// Send completion from. A failed transmit simply returns the buffer;
// gs_usb does not report TX failures back to the host (§4.5).
func (d *Device) onTXComplete(buf []byte, ch *Channel, err error) {
	if err != nil {
		d.release(buf)
		return
	}

	payloadLen := 8
	if ch.Features().Has(FeatureFD) {
		payloadLen = 64
	}

	out := buf[:hostFrameHdrLen+payloadLen]
	for i := hostFrameHdrLen; i < len(out); i++ {
		out[i] = 0
	}

	if d.cfg.TimestampBuildOption {
		out = d.appendTimestampFor(out, ch)
	}

	d.enqueueRx(out)
}

// onControllerRX runs on the Controller's RX callback goroutine. It
// builds an RX host frame and either enqueues it or raises the
// channel's overflow counter when no pool buffer is available (§3
// invariant 5).
func (d *Device) onControllerRX(ch *Channel, f Frame) {
	buf, ok := d.pool.Get()
	if !ok {
		ch.incOverflow()
		return
	}

	fd := f.FD && ch.Features().Has(FeatureFD)

	canID := f.ID
	if f.Extended {
		canID = (canID & maskExtended) | idFlagExtended
	} else {
		canID &= maskStandard
	}
	if f.RTR {
		canID |= idFlagRTR
	}

	var flags uint8
	if fd {
		flags |= FrameFlagFD
		if f.BRS {
			flags |= FrameFlagBRS
		}
		if f.ESI {
			flags |= FrameFlagESI
		}
	}

	hdr := hostFrameHdr{
		EchoID:  echoIDRx,
		CanID:   canID,
		CanDLC:  f.DLC,
		Channel: uint8(ch.index),
		Flags:   flags,
	}

	payloadLen := 8
	if fd {
		payloadLen = 64
	}

	out := buf[:hostFrameHdrLen+payloadLen]
	copy(out[:hostFrameHdrLen], hdr.pack())
	for i := hostFrameHdrLen; i < len(out); i++ {
		out[i] = 0
	}

	if !f.RTR {
		n := dlcToLen(f.DLC, fd)
		if n > payloadLen {
			n = payloadLen
		}
		copy(out[hostFrameHdrLen:hostFrameHdrLen+n], f.Data[:n])
	}

	if d.cfg.TimestampBuildOption {
		out = d.appendTimestampFor(out, ch)
	}

	d.enqueueRx(out)
}

// onStateChange runs on the Controller's state-change callback
// goroutine. STOPPED transitions are never reported to the host; every
// other transition becomes a CAN error frame carrying the linux/can
// error bits, matching the host-visible shape of a real gs_usb error
// frame (§4.5).
func (d *Device) onStateChange(ch *Channel, state ControllerState, rxErr, txErr uint8) {
	if state == StateStopped {
		return
	}

	wasBusoff := ch.busoff.Load()
	ch.busoff.Store(state == StateBusOff)

	buf, ok := d.pool.Get()
	if !ok {
		ch.incOverflow()
		return
	}

	canID := idFlagErr | errCnt
	var ctrl uint8

	switch state {
	case StateErrorWarning:
		canID |= errCRTL
		ctrl = errCRTLRxWarning | errCRTLTxWarning
	case StateErrorPassive:
		canID |= errCRTL
		ctrl = errCRTLRxPassive | errCRTLTxPassive
	case StateBusOff:
		canID |= errBusoff
	case StateErrorActive:
		canID |= errCRTL
		ctrl = errCRTLActive
		if wasBusoff {
			canID |= errRestarted
		}
	}

	hdr := hostFrameHdr{EchoID: echoIDRx, CanID: canID, CanDLC: 8, Channel: uint8(ch.index)}

	out := buf[:hostFrameHdrLen+8]
	copy(out[:hostFrameHdrLen], hdr.pack())
	for i := hostFrameHdrLen; i < len(out); i++ {
		out[i] = 0
	}
	out[hostFrameHdrLen+1] = ctrl
	out[hostFrameHdrLen+6] = txErr
	out[hostFrameHdrLen+7] = rxErr

	if d.cfg.TimestampBuildOption {
		out = d.appendTimestampFor(out, ch)
	}

	d.enqueueRx(out)
}

// appendTimestampFor extends buf in place (the pool buffer always has
// spare capacity for the trailing 4-byte timestamp, see
// frameBufferSize) with the channel's current microsecond timestamp,
// falling back to 0 if the channel has no TimestampProvider or it
// errors.
func (d *Device) appendTimestampFor(buf []byte, ch *Channel) []byte {
	var ts uint32
	if tp, ok := ch.ops.(TimestampProvider); ok {
		if v, err := tp.Timestamp(); err == nil {
			ts = v
		}
	}
	out := buf[:len(buf)+4]
	binary.LittleEndian.PutUint32(out[len(buf):], ts)
	return out
}

func (d *Device) enqueueRx(buf []byte) {
	select {
	case d.rxCh <- buf:
	default:
		// rxCh is sized to the pool's buffer count; hitting this means
		// the IN worker has fallen behind the producers rather than a
		// real-world one-frame burst. Dropping here is preferable to
		// blocking a controller's RX or state-change callback.
		d.release(buf)
	}
}

// inWorker drains completed host frames onto the bulk IN endpoint and
// raises the per-channel LED activity event for whichever direction
// the frame represents, once the transfer has actually completed
// (§4.5: activity LEDs track what reached the host, not what the
// controller produced).
func (d *Device) inWorker(ctx context.Context, bulk BulkTransport) {
	for {
		select {
		case <-ctx.Done():
			return
		case buf := <-d.rxCh:
			d.handleIN(bulk, buf)
		}
	}
}

func (d *Device) handleIN(bulk BulkTransport, buf []byte) {
	hdr, _ := unpackFrameHdr(buf)
	ch := d.channelFor(hdr.Channel)

	if ch != nil && ch.takeOverflow() {
		buf[hdrFlagsOffset] |= FrameFlagOverflow
		hdr.Flags |= FrameFlagOverflow
	}

	err := bulk.WriteIn(buf)
	d.release(buf)

	if err != nil {
		log.Printf("gsusb: IN transfer error: %v", err)
		return
	}

	if ch == nil || hdr.CanID&idFlagErr != 0 {
		return
	}

	if hdr.EchoID == echoIDRx {
		ch.led.send(EventActivityRX)
	} else {
		ch.led.send(EventActivityTX)
	}
}
