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
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

// power-up: wait, then at least 74 clock cycles with chip-select released
const powerUpDelay = time.Millisecond
const powerUpClockBursts = 10

// interface condition: supply voltage 2.7-3.6V, check pattern
const ifCondArg = 0x10A
const ifCondPattern = 0x0A

// R1 response bits
const (
	r1Ready          = 0x00
	r1Idle           = 0x01
	r1IllegalCommand = 0x04
)

// OCR bits, as found in the realigned response window
const ocrVoltage32to34 = 0x30 // window byte 2
const ocrCapacity = 0x40      // window byte 1

// ACMD41 argument bit announcing host support for high capacity cards
const hostCapacitySupport = 1 << 30

// CSD byte 14: permanent & temporary write protection
const csdWriteProtect = 0x30

/*
	Init brings up the card. The sequence is strictly linear. The first stage
	that fails ends it with its fault added, reported as a *StageError. Only
	when all stages pass, including the write protect check, is the device
	marked initialized, and the bus switched to transfer rate.

	A write protected card fails initialization altogether, it is not mounted
	read-only.
*/
func (d *Device) Init() error {

	d.state &^= Initialized | HighCapacity | WriteProtected | Deinitialized
	d.version = 0
	d.csdValid = false

	if err := d.bus.SetRate(d.initRate); err != nil {
		return fmt.Errorf("error setting bus rate: %w", err)
	}

	if err := d.powerUp(); err != nil {
		return err
	}

	buf := make([]byte, respLength)

	// stage 1
	log.Debug("card init: going idle")
	if err := d.stage(StageGoIdle, NoIdle, cmdGoIdleState, 0, buf, 0,
		equals(r1Idle), attemptsGoIdle); err != nil {
		return err
	}

	// stage 2
	log.Debug("card init: checking interface condition")
	if err := d.stage(StageIfCond, IfCondErr, cmdSendIfCond, ifCondArg, buf,
		fullResponse, differs(idleByte), attemptsIfCond); err != nil {
		return err
	}

	if buf[0]&r1IllegalCommand != 0 {
		d.version = 1
	} else if buf[0] == r1Idle && buf[3] == 1 && buf[4] == ifCondPattern {
		d.version = 2
	} else {
		d.fail(IfCondErr)
		return &StageError{Stage: StageIfCond, Fault: IfCondErr,
			Err: fmt.Errorf("%w, interface condition % x", ErrInvalidResponse, buf[:5])}
	}
	log.Debugf("card init: protocol version %d", d.version)

	// stage 3
	log.Debug("card init: enabling CRC")
	if err := d.stage(StageCRCOn, CRCErr, cmdCRCOnOff, 1, buf, 0,
		equals(r1Idle), attemptsCRCOn); err != nil {
		return err
	}

	// stage 4
	log.Debug("card init: checking voltage window")
	if err := d.stage(StageOCR, OCRErr, cmdReadOCR, 0, buf, fullResponse,
		equals(r1Idle), attemptsOCR); err != nil {
		return err
	}

	if buf[2]&ocrVoltage32to34 != ocrVoltage32to34 {
		d.fail(OCRErr)
		return &StageError{Stage: StageOCR, Fault: OCRErr,
			Err: fmt.Errorf("3.2-3.4V not supported, OCR % x", buf[1:5])}
	}

	// stage 5, may take a while for the card to finish
	log.Debug("card init: leaving idle state")
	var opCondArg uint32
	if d.version == 2 {
		opCondArg = hostCapacitySupport
	}
	if err := d.stage(StageOpCond, OpCondErr, cmdSendOpCond, opCondArg, buf,
		appCmd, equals(r1Ready), attemptsOpCond); err != nil {
		return err
	}

	// stage 6
	if d.version == 2 {
		log.Debug("card init: determining capacity")
		if err := d.stage(StageCapacity, OCRErr, cmdReadOCR, 0, buf,
			fullResponse, equals(r1Ready), attemptsCapacity); err != nil {
			return err
		}
		if buf[1]&ocrCapacity != 0 {
			d.state |= HighCapacity
		}
	}

	// stage 7
	log.Debug("card init: setting block length")
	if err := d.stage(StageBlockLen, OtherErr, cmdSetBlockLen, SectorSize,
		buf, 0, equals(r1Ready), attemptsBlockLen); err != nil {
		return err
	}

	// stage 8
	log.Debug("card init: checking write protection")
	if err := d.checkWriteProtect(); err != nil {
		d.state |= WriteProtected
		return &StageError{Stage: StageWriteProtect, Err: err}
	}

	d.state |= Initialized

	if err := d.bus.SetRate(d.xferRate); err != nil {
		return fmt.Errorf("error setting bus rate: %w", err)
	}

	log.WithFields(log.Fields{
		"version":      d.version,
		"highCapacity": d.state.Has(HighCapacity),
		"sectors":      d.SectorCount(),
	}).Info("card initialized")

	return nil
}

//
func (d *Device) powerUp() error {

	d.clock.Sleep(powerUpDelay)

	if err := d.bus.Select(false); err != nil {
		return fmt.Errorf("error releasing card: %w", err)
	}

	buf := make([]byte, respLength)
	for ix := 0; ix < powerUpClockBursts; ix++ {
		fill(buf)
		if err := d.send(buf); err != nil {
			return fmt.Errorf("error clocking card: %w", err)
		}
	}

	return nil
}

// stage runs one retry-gated stage of the bring-up sequence, adding fault if
// it does not pass
func (d *Device) stage(s Stage, fault Fault, cmd byte, arg uint32, buf []byte,
	flags cmdFlags, ok match, attempts int) error {

	passed, err := d.checkCommand(cmd, arg, buf, flags, ok, attempts)
	if err != nil {
		return &StageError{Stage: s, Err: err}
	}
	if !passed {
		d.fail(fault)
		return &StageError{Stage: s, Fault: fault, Err: ErrExhausted}
	}
	return nil
}

// checkWriteProtect reads the CSD register and fails if the card reports
// permanent or temporary write protection
func (d *Device) checkWriteProtect() error {
	var csd [16]byte
	if err := d.readDataBlock(cmdSendCSD, 0, csd[:]); err != nil {
		return err
	}
	d.csd = csd
	d.csdValid = true
	if csd[14]&csdWriteProtect != 0 {
		return ErrWriteProtected
	}
	return nil
}
