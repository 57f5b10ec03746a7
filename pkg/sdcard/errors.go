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
	"errors"
	"fmt"
)

// usage errors
var (
	ErrNotReady     = errors.New("card not initialized")
	ErrBufferSize   = fmt.Errorf("buffer must be exactly %d bytes", SectorSize)
	ErrAddressRange = errors.New(
		"sector beyond address range of standard capacity card")
)

// protocol errors
var (
	ErrNoResponse      = errors.New("no response from card")
	ErrExhausted       = errors.New("attempts exhausted without expected response")
	ErrInvalidResponse = errors.New("invalid response from card")
	ErrNoStartToken    = errors.New("data start token not found")
	ErrCRCMismatch     = errors.New("data CRC mismatch")
	ErrRejected        = errors.New("data rejected by card")
	ErrBusyTimeout     = errors.New("timeout waiting for card to leave busy state")
	ErrWriteProtected  = errors.New("card is write protected")
)

// Stage identifies a step of the card bring-up sequence.
type Stage int

const (
	StageGoIdle Stage = iota + 1
	StageIfCond
	StageCRCOn
	StageOCR
	StageOpCond
	StageCapacity
	StageBlockLen
	StageWriteProtect
)

//
func (s Stage) String() string {
	switch s {
	case StageGoIdle:
		return "go idle"
	case StageIfCond:
		return "interface condition"
	case StageCRCOn:
		return "enable CRC"
	case StageOCR:
		return "read OCR"
	case StageOpCond:
		return "operation condition"
	case StageCapacity:
		return "capacity"
	case StageBlockLen:
		return "set block length"
	case StageWriteProtect:
		return "write protect check"
	default:
		return "<unknown>"
	}
}

/*
	StageError is returned by Init when a stage of the bring-up sequence
	exhausts its attempts or sees an unacceptable response. Fault is the flag
	that was added to the device's fault set, zero for the write protect stage,
	which sets the WriteProtected state flag instead. Err optionally carries
	the underlying cause.
*/
type StageError struct {
	Stage Stage
	Fault Fault
	Err   error
}

//
func (e *StageError) Error() string {
	msg := fmt.Sprintf("card init failed at stage '%s'", e.Stage)
	if e.Fault != 0 {
		msg = fmt.Sprintf("%s [%s]", msg, e.Fault)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

//
func (e *StageError) Unwrap() error {
	return e.Err
}
