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

/*
	Package periph provides an sdcard.Bus on top of an SPI controller of the
	host, e.g. on a Raspberry Pi, using the periph.io drivers. Chip-select is
	driven as a plain GPIO, since the card needs it held low across several
	transfers.
*/
package periph

import (
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// spidev limits a single transfer to 4 KiB by default
const maxChunk = 4096

// bring-up rate before the card tells otherwise
const initialRate = 400 * physic.KiloHertz

//
type port interface {
	io.Closer
	Tx(w, r []byte) error
}

//
type opener func(name string, f physic.Frequency) (port, error)

//
type connection struct {
	spi.Conn
	io.Closer
}

//
func openSPI(name string, f physic.Frequency) (port, error) {
	p, err := spireg.Open(name)
	if err != nil {
		return nil, err
	}
	c, err := p.Connect(f, spi.Mode0|spi.NoCS, 8)
	if err != nil {
		p.Close()
		return nil, err
	}
	return &connection{Conn: c, Closer: p}, nil
}

// Bus is an SPI controller with a GPIO pin for chip-select.
type Bus struct {
	name string
	open opener
	port port
	cs   gpio.PinOut
	rate physic.Frequency
}

/*
	Open initializes the host drivers, and opens SPI port spiName, e.g.
	"/dev/spidev0.0" or "SPI0.0", with the GPIO pin named csName as chip-select.
	An empty spiName picks the first port available.
*/
func Open(spiName, csName string) (*Bus, error) {

	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("cannot initialize host drivers: %w", err)
	}

	if csName == "" {
		return nil, fmt.Errorf("no chip-select pin given")
	}
	cs := gpioreg.ByName(csName)
	if cs == nil {
		return nil, fmt.Errorf("no such GPIO pin: %s", csName)
	}

	return newBus(spiName, cs, openSPI)
}

//
func newBus(name string, cs gpio.PinOut, open opener) (*Bus, error) {

	ret := &Bus{name: name, open: open, cs: cs}

	if err := cs.Out(gpio.High); err != nil {
		return nil, fmt.Errorf("cannot drive chip-select: %w", err)
	}
	if err := ret.connect(initialRate); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{"port": name, "cs": cs}).Info("opened SPI bus")
	return ret, nil
}

//
func (b *Bus) connect(f physic.Frequency) error {
	p, err := b.open(b.name, f)
	if err != nil {
		return fmt.Errorf("cannot open SPI port '%s' at %s: %w", b.name, f, err)
	}
	b.port = p
	b.rate = f
	return nil
}

//
func (b *Bus) String() string {
	return fmt.Sprintf("SPI port '%s' at %s", b.name, b.rate)
}

// Select implements sdcard.Bus. Chip-select is active low.
func (b *Bus) Select(active bool) error {
	l := gpio.High
	if active {
		l = gpio.Low
	}
	return b.cs.Out(l)
}

/*
	SetRate implements sdcard.Bus. A connection's clock is fixed once
	connected, so the port is closed and connected again with the new rate.
*/
func (b *Bus) SetRate(hz uint32) error {

	f := physic.Frequency(hz) * physic.Hertz
	if f == b.rate && b.port != nil {
		return nil
	}

	if b.port != nil {
		if err := b.port.Close(); err != nil {
			log.Warnf("error closing SPI port: %v", err)
		}
		b.port = nil
	}

	log.Debugf("switching SPI clock to %s", f)
	return b.connect(f)
}

// Transfer implements sdcard.Bus.
func (b *Bus) Transfer(data []byte, receive bool) error {

	if b.port == nil {
		return fmt.Errorf("SPI port '%s' not open", b.name)
	}

	for len(data) > 0 {
		n := len(data)
		if n > maxChunk {
			n = maxChunk
		}
		var r []byte
		if receive {
			r = data[:n]
		}
		if err := b.port.Tx(data[:n], r); err != nil {
			return fmt.Errorf("SPI transfer failed: %w", err)
		}
		data = data[n:]
	}

	return nil
}

// Close releases chip-select and closes the port.
func (b *Bus) Close() error {
	if err := b.cs.Out(gpio.High); err != nil {
		log.Warnf("error releasing chip-select: %v", err)
	}
	if b.port == nil {
		return nil
	}
	err := b.port.Close()
	b.port = nil
	return err
}
