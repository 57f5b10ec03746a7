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
	"time"

	log "github.com/sirupsen/logrus"
)

// attempt budgets of the bring-up stages
const (
	attemptsGoIdle   = 50
	attemptsIfCond   = 3
	attemptsCRCOn    = 3
	attemptsOCR      = 20
	attemptsOpCond   = 250
	attemptsCapacity = 5
	attemptsBlockLen = 3
)

// delay between two attempts of the same command
const retryDelay = time.Millisecond

// match decides whether a response byte counts as success
type match func(resp byte) bool

//
func equals(want byte) match {
	return func(resp byte) bool { return resp == want }
}

//
func differs(reject byte) match {
	return func(resp byte) bool { return resp != reject }
}

/*
	checkCommand sends a command up to attempts times, until ok accepts the
	response. Between failed attempts, but not after the last one, it waits for
	retryDelay. Bus errors end the loop right away.
*/
func (d *Device) checkCommand(cmd byte, arg uint32, buf []byte, flags cmdFlags,
	ok match, attempts int) (bool, error) {

	for left := attempts; left > 0; left-- {
		resp, err := d.sendCommand(cmd, arg, buf, flags)
		if err != nil {
			return false, err
		}
		if ok(resp) {
			return true, nil
		}
		if left > 1 {
			d.clock.Sleep(retryDelay)
		}
	}

	log.WithFields(log.Fields{
		"cmd": cmd, "attempts": attempts}).Debug("command attempts exhausted")
	return false, nil
}
