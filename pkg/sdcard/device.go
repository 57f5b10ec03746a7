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
	"math"

	log "github.com/sirupsen/logrus"
)

// SectorSize is the size of a data block in bytes
const SectorSize = 512

// highest sector whose byte address still fits the 32 bit argument
const maxByteAddressedSector = math.MaxUint32 / SectorSize

//
const (
	defaultInitRate = 400000
	defaultXferRate = 4000000
)

/*
	Device is a single SD card attached to a Bus. It keeps the card's state and
	the accumulated faults. A Device is not safe for concurrent use, callers
	have to serialize access, e.g. by having a single goroutine own it.
*/
type Device struct {
	//
	bus   Bus
	clock Clock
	//
	initRate uint32
	xferRate uint32
	//
	state    State
	faults   Fault
	version  int
	csd      [16]byte
	csdValid bool
}

// Option configures a Device.
type Option func(*Device)

// WithClock sets the timer service used for delays and polling deadlines.
func WithClock(c Clock) Option {
	return func(d *Device) {
		if c != nil {
			d.clock = c
		}
	}
}

// WithRates sets the bus clock rates in Hz used during bring-up and for data
// transfer after successful initialization.
func WithRates(init, xfer uint32) Option {
	return func(d *Device) {
		if init > 0 {
			d.initRate = init
		}
		if xfer > 0 {
			d.xferRate = xfer
		}
	}
}

// New creates a device on the given bus. No bus access happens until Init.
func New(bus Bus, opts ...Option) *Device {
	if bus == nil {
		panic("bus cannot be nil")
	}
	d := &Device{
		bus:      bus,
		clock:    SystemClock(),
		initRate: defaultInitRate,
		xferRate: defaultXferRate,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// State returns the device's status flags.
func (d *Device) State() State {
	return d.state
}

// Faults returns all error conditions accumulated so far.
func (d *Device) Faults() Fault {
	return d.faults
}

// Version returns the SD protocol version negotiated during the last
// initialization, 1 or 2, or 0 if not known.
func (d *Device) Version() int {
	return d.version
}

// CSD returns the card specific data register as read during initialization.
func (d *Device) CSD() [16]byte {
	return d.csd
}

//
func (d *Device) fail(f Fault) {
	d.faults |= f
}

//
func (d *Device) ready() bool {
	return d.state.Has(Initialized)
}

// address translates a sector index into a protocol address. Standard capacity
// cards are byte addressed, high capacity cards take the block index.
func (d *Device) address(index uint32) (uint32, error) {
	if d.state.Has(HighCapacity) {
		return index, nil
	}
	if index > maxByteAddressedSector {
		return 0, fmt.Errorf("%w: sector %d", ErrAddressRange, index)
	}
	return index * SectorSize, nil
}

/*
	ReadSector reads the sector at index into buf, which needs to be exactly
	SectorSize bytes long. ErrNotReady is returned without touching the bus if
	the card has not been initialized.
*/
func (d *Device) ReadSector(buf []byte, index uint32) error {
	if !d.ready() {
		return ErrNotReady
	}
	if len(buf) != SectorSize {
		return ErrBufferSize
	}
	addr, err := d.address(index)
	if err != nil {
		return err
	}
	log.WithField("sector", index).Trace("read sector")
	return d.readDataBlock(cmdReadSingleBlock, addr, buf)
}

/*
	WriteSector writes the SectorSize bytes in buf to the sector at index.
	ErrNotReady is returned without touching the bus if the card has not been
	initialized.
*/
func (d *Device) WriteSector(buf []byte, index uint32) error {
	if !d.ready() {
		return ErrNotReady
	}
	if len(buf) != SectorSize {
		return ErrBufferSize
	}
	addr, err := d.address(index)
	if err != nil {
		return err
	}
	log.WithField("sector", index).Trace("write sector")
	return d.writeBlock(buf, addr)
}

/*
	Deinit returns the card to idle state with CRC checking turned off, and
	drops the bus to the initialization rate. Results of the commands are
	ignored. Calling Deinit again is a no-op. Afterwards, I/O calls report
	ErrNotReady until the next successful Init.
*/
func (d *Device) Deinit() {

	if d.state.Has(Deinitialized) {
		return
	}

	d.state |= Deinitialized
	d.state &^= Initialized

	buf := make([]byte, respLength)

	if _, err := d.sendCommand(cmdGoIdleState, 0, buf, 0); err != nil {
		log.Debugf("deinit, go idle: %v", err)
	}
	if _, err := d.sendCommand(cmdCRCOnOff, 0, buf, 0); err != nil {
		log.Debugf("deinit, CRC off: %v", err)
	}
	if err := d.bus.SetRate(d.initRate); err != nil {
		log.Debugf("deinit, bus rate: %v", err)
	}

	log.Debug("card deinitialized")
}
