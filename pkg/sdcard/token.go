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
)

// all token scans use the same wall-clock limit
const tokenTimeout = 50 * time.Millisecond

// findToken polls the bus byte by byte until token shows up, or timeout has
// passed. Chip-select is expected to be asserted by the caller.
func (d *Device) findToken(token byte, timeout time.Duration) (bool, error) {

	buf := make([]byte, 1)
	deadline := d.clock.Now().Add(timeout)

	for d.clock.Now().Before(deadline) {
		if err := d.receive(buf); err != nil {
			return false, err
		}
		if buf[0] == token {
			return true, nil
		}
	}

	return false, nil
}
