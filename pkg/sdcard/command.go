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
	"fmt"

	log "github.com/sirupsen/logrus"
)

// command codes in SPI mode
const (
	cmdGoIdleState     = 0
	cmdSendIfCond      = 8
	cmdSendCSD         = 9
	cmdSetBlockLen     = 16
	cmdReadSingleBlock = 17
	cmdWriteBlock      = 24
	cmdSendOpCond      = 41 // application command
	cmdAppCmd          = 55
	cmdReadOCR         = 58
	cmdCRCOnOff        = 59
)

//
const frameLength = 6
const respLength = 8

//
const idleByte = 0xFF
const tokenStartBlock = 0xFE

// command flags
type cmdFlags uint8

const (
	appCmd       cmdFlags = 1 << iota // prefix with application command
	fullResponse                      // refill response window after shift
)

// frame places the 6 byte command frame for cmd and arg in buf
func frame(cmd byte, arg uint32, buf []byte) {
	buf[0] = cmd | 0x40
	binary.BigEndian.PutUint32(buf[1:5], arg)
	buf[5] = CRC7(buf[:5])
}

//
func fill(buf []byte) {
	for ix := range buf {
		buf[ix] = idleByte
	}
}

//
func (d *Device) send(data []byte) error {
	return d.bus.Transfer(data, false)
}

//
func (d *Device) receive(data []byte) error {
	fill(data)
	return d.bus.Transfer(data, true)
}

//
func (d *Device) selectCard() error {
	if err := d.bus.Select(true); err != nil {
		return fmt.Errorf("error selecting card: %w", err)
	}
	return nil
}

//
func (d *Device) releaseCard() {
	if err := d.bus.Select(false); err != nil {
		log.Warnf("error releasing card: %v", err)
	}
}

/*
	sendCommand sends a command and returns the first significant response
	byte. buf needs room for at least respLength bytes. On return, it holds the
	response window, realigned so that the response starts at index 0. With
	fullResponse set, bytes lost through realignment are read in from the bus,
	so that the window is complete. Chip-select is held for the whole exchange
	and released on all paths.
*/
func (d *Device) sendCommand(
	cmd byte, arg uint32, buf []byte, flags cmdFlags) (byte, error) {

	if err := d.selectCard(); err != nil {
		return idleByte, err
	}
	defer d.releaseCard()

	if flags&appCmd != 0 {
		frame(cmdAppCmd, 0, buf)
		if err := d.send(buf[:frameLength]); err != nil {
			return idleByte, fmt.Errorf("error sending CMD%d: %w", cmdAppCmd, err)
		}
	}

	frame(cmd, arg, buf)
	if err := d.send(buf[:frameLength]); err != nil {
		return idleByte, fmt.Errorf("error sending CMD%d: %w", cmd, err)
	}

	window := buf[:respLength]
	if err := d.receive(window); err != nil {
		return idleByte, fmt.Errorf("error receiving response: %w", err)
	}

	var ret byte = idleByte

	for ix := range window {
		if ret = window[ix]; ret == idleByte {
			continue
		}
		if ix > 0 {
			recd := copy(window, window[ix:])
			if flags&fullResponse != 0 {
				if err := d.receive(window[recd:]); err != nil {
					return ret, fmt.Errorf("error completing response: %w", err)
				}
			}
		}
		break
	}

	log.WithFields(log.Fields{
		"cmd":      cmd,
		"arg":      fmt.Sprintf("0x%08x", arg),
		"response": fmt.Sprintf("0x%02x", ret),
	}).Trace("command")

	return ret, nil
}
