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
	"strings"
)

// State is the set of status flags of a device.
type State uint8

const (
	Initialized State = 1 << iota
	HighCapacity
	WriteProtected
	Deinitialized
)

var stateNames = []string{
	"initialized", "high-capacity", "write-protected", "deinitialized"}

// Has reports whether all flags in f are set in s.
func (s State) Has(f State) bool {
	return s&f == f
}

//
func (s State) String() string {
	return bitNames(uint8(s), stateNames)
}

/*
	Fault is the set of error conditions a device has run into. Faults only
	ever accumulate. There is no way to clear them short of creating a new
	device.
*/
type Fault uint8

const (
	NoIdle Fault = 1 << iota
	IfCondErr
	CRCErr
	OpCondErr
	OCRErr
	ReadErr
	WriteErr
	OtherErr
)

var faultNames = []string{
	"no-idle", "if-cond", "crc", "op-cond", "ocr", "read", "write", "other"}

// Has reports whether all faults in f are present in e.
func (e Fault) Has(f Fault) bool {
	return e&f == f
}

//
func (e Fault) String() string {
	return bitNames(uint8(e), faultNames)
}

//
func bitNames(bits uint8, names []string) string {
	if bits == 0 {
		return "none"
	}
	var ret []string
	for ix, n := range names {
		if bits&(1<<uint(ix)) != 0 {
			ret = append(ret, n)
		}
	}
	return strings.Join(ret, "|")
}
