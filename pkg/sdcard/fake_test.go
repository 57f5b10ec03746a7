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

// fakeBus is a scripted bus. Whenever something is sent, onSend may queue up
// bytes the bus returns on subsequent receives. With nothing queued, receives
// yield the filler byte.
type fakeBus struct {
	onSend func(data []byte) []byte
	filler byte
	//
	queue    []byte
	selected bool
	selects  int
	releases int
	bytes    int
	frames   [][]byte
	rates    []uint32
}

//
func newFakeBus(onSend func(data []byte) []byte) *fakeBus {
	return &fakeBus{onSend: onSend, filler: idleByte}
}

//
func (f *fakeBus) Transfer(data []byte, receive bool) error {
	f.bytes += len(data)
	if receive {
		for ix := range data {
			if len(f.queue) > 0 {
				data[ix] = f.queue[0]
				f.queue = f.queue[1:]
			} else {
				data[ix] = f.filler
			}
		}
		return nil
	}
	if len(data) == frameLength && data[0]&0xc0 == 0x40 {
		f.frames = append(f.frames, append([]byte{}, data...))
	}
	if f.onSend != nil {
		f.queue = append(f.queue, f.onSend(data)...)
	}
	return nil
}

//
func (f *fakeBus) Select(active bool) error {
	if active {
		f.selects++
	} else {
		f.releases++
		f.queue = nil
	}
	f.selected = active
	return nil
}

//
func (f *fakeBus) SetRate(hz uint32) error {
	f.rates = append(f.rates, hz)
	return nil
}

// fakeClock advances by step on every reading, and by the requested duration
// on every sleep
type fakeClock struct {
	now    time.Time
	step   time.Duration
	sleeps []time.Duration
}

//
func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(0, 0), step: 100 * time.Microsecond}
}

//
func (c *fakeClock) Now() time.Time {
	c.now = c.now.Add(c.step)
	return c.now
}

//
func (c *fakeClock) Sleep(d time.Duration) {
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
}

// respondTo returns an onSend hook answering frames for cmd with resp
func respondTo(cmd byte, resp ...byte) func([]byte) []byte {
	return func(data []byte) []byte {
		if len(data) == frameLength && data[0] == cmd|0x40 {
			return resp
		}
		return nil
	}
}

//
func newTestDevice(bus *fakeBus) (*Device, *fakeClock) {
	clock := newFakeClock()
	return New(bus, WithClock(clock)), clock
}
