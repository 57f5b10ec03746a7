/*
   SDSPI - SD card block driver for SPI mode
   Copyright (c) 2026, The SDSPI Authors

   This file is part of SDSPI.

   SDSPI is free software: you can redistribute it and/or modify
   it under the terms of the GNU General Public License as published by
   the Free Software Foundation, either version 3 of the License, or
   (at your option) any later version.

   SDSPI is distributed in the hope that it will be useful,
   but WITHOUT ANY WARRANTY; without even the implied warranty of
   MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
   GNU General Public License for more details.

   You should have received a copy of the GNU General Public License
   along with SDSPI. If not, see <http://www.gnu.org/licenses/>.
*/

package sdcard

import (
	"encoding/binary"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// data commands may take longer to respond than the plain response window
const dataRespPolls = 16

// data response token, status bits
const dataRespMask = 0x1F
const dataAccepted = 0x05

// firstSignificant returns the first byte in buf that is not idle filler, or
// idleByte if there is none
func firstSignificant(buf []byte) byte {
	for _, b := range buf {
		if b != idleByte {
			return b
		}
	}
	return idleByte
}

/*
	writeBlock writes one data block to protocol address addr. The command's
	response is not run through sendCommand, since chip-select has to stay
	asserted for the data phase that follows.
*/
func (d *Device) writeBlock(data []byte, addr uint32) error {

	crc := CRC16(data)
	buf := make([]byte, respLength)

	frame(cmdWriteBlock, addr, buf)

	if err := d.selectCard(); err != nil {
		return err
	}
	defer d.releaseCard()

	if err := d.send(buf[:frameLength]); err != nil {
		return fmt.Errorf("error sending write command: %w", err)
	}
	if err := d.receive(buf); err != nil {
		return fmt.Errorf("error receiving write command response: %w", err)
	}

	if firstSignificant(buf) == idleByte {
		d.fail(WriteErr)
		return fmt.Errorf("write at 0x%08x failed: %w", addr, ErrNoResponse)
	}

	buf[0] = tokenStartBlock
	if err := d.send(buf[:1]); err != nil {
		return fmt.Errorf("error sending start token: %w", err)
	}
	if err := d.send(data); err != nil {
		return fmt.Errorf("error sending data block: %w", err)
	}
	binary.BigEndian.PutUint16(buf, crc)
	if err := d.send(buf[:2]); err != nil {
		return fmt.Errorf("error sending data CRC: %w", err)
	}

	if err := d.receive(buf); err != nil {
		return fmt.Errorf("error receiving data response: %w", err)
	}

	var failure error
	if resp := firstSignificant(buf); resp&dataRespMask != dataAccepted {
		failure = fmt.Errorf("%w, data response 0x%02x", ErrRejected, resp)
	}

	released, err := d.findToken(idleByte, tokenTimeout)
	if err != nil {
		return fmt.Errorf("error waiting for card to leave busy state: %w", err)
	}
	if !released {
		failure = errors.Join(failure, ErrBusyTimeout)
	}

	if failure != nil {
		d.fail(WriteErr)
		log.WithField("address", addr).Debugf("write failed: %v", failure)
		return fmt.Errorf("write at 0x%08x failed: %w", addr, failure)
	}

	return nil
}

/*
	readDataBlock issues a data command and reads len(out) bytes of data plus
	the data CRC. The data phase is always read out completely, even after an
	earlier problem, so that the card's output is flushed and the next
	transaction starts aligned. A CRC mismatch always fails the read.
*/
func (d *Device) readDataBlock(cmd byte, arg uint32, out []byte) error {

	buf := make([]byte, respLength)
	frame(cmd, arg, buf)

	if err := d.selectCard(); err != nil {
		return err
	}
	defer d.releaseCard()

	if err := d.send(buf[:frameLength]); err != nil {
		return fmt.Errorf("error sending CMD%d: %w", cmd, err)
	}

	var resp byte = idleByte
	for ix := 0; ix < dataRespPolls; ix++ {
		if err := d.receive(buf[:1]); err != nil {
			return fmt.Errorf("error receiving CMD%d response: %w", cmd, err)
		}
		if resp = buf[0]; resp != idleByte {
			break
		}
	}

	var failure error
	if resp != 0 {
		failure = fmt.Errorf("%w 0x%02x", ErrInvalidResponse, resp)
	}

	found, err := d.findToken(tokenStartBlock, tokenTimeout)
	if err != nil {
		return fmt.Errorf("error waiting for start token: %w", err)
	}
	if !found {
		failure = ErrNoStartToken
	}

	if err := d.receive(out); err != nil {
		return fmt.Errorf("error receiving data block: %w", err)
	}
	if err := d.receive(buf[:2]); err != nil {
		return fmt.Errorf("error receiving data CRC: %w", err)
	}

	// best effort, card may still be busy
	if _, err := d.findToken(idleByte, tokenTimeout); err != nil {
		return fmt.Errorf("error waiting for card to leave busy state: %w", err)
	}

	if recd, crc := binary.BigEndian.Uint16(buf), CRC16(out); recd != crc {
		d.fail(CRCErr)
		failure = fmt.Errorf("%w, received 0x%04x, calculated 0x%04x",
			ErrCRCMismatch, recd, crc)
	}

	if failure != nil {
		d.fail(ReadErr)
		log.WithFields(log.Fields{
			"cmd": cmd, "arg": arg}).Debugf("read failed: %v", failure)
		return fmt.Errorf("read of CMD%d at 0x%08x failed: %w", cmd, arg, failure)
	}

	return nil
}
