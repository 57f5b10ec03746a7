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

/*
	Bus is the hardware the driver talks through. Implementations do not need
	to be safe for concurrent use, the driver never calls them concurrently.
*/
type Bus interface {

	// Transfer clocks len(data) bytes over the bus. When receive is false, the
	// content of data is sent and whatever comes back is dropped. When receive
	// is true, the content of data is sent as well (callers fill it with idle
	// filler bytes), and data gets overwritten with the bytes received.
	Transfer(data []byte, receive bool) error

	// Select drives the chip-select line; active means asserted (low).
	Select(active bool) error

	// SetRate changes the bus clock rate, given in Hz.
	SetRate(hz uint32) error
}

// Clock is the monotonic timer and delay service used for polling deadlines
// and fixed delays.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

//
type systemClock struct{}

//
func (systemClock) Now() time.Time {
	return time.Now()
}

//
func (systemClock) Sleep(d time.Duration) {
	time.Sleep(d)
}

// SystemClock returns a Clock based on the time package.
func SystemClock() Clock {
	return systemClock{}
}
