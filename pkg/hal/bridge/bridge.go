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
	Package bridge drives an SPI bus through an adapter microcontroller that is
	attached via a USB serial port. The adapter owns the actual SPI peripheral
	and the chip-select line, and executes simple 4 byte commands it receives
	over the serial line:

		's' active 0 0             drive chip-select
		'r' kHz(24 bit, BE)        set SPI clock rate
		't' mode len(16 bit, BE)   clock len bytes, followed by the data

	For a transfer with mode 1, the adapter sends back the len bytes it
	received on MISO. Every command is acknowledged with a single 'k'.
*/
package bridge

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/jacobsa/go-serial/serial"
	log "github.com/sirupsen/logrus"
)

//
const commandLength = 4
const maxChunk = 4096
const syncLimit = 64

//
const (
	cmdSelect   = 's'
	cmdRate     = 'r'
	cmdTransfer = 't'
	ack         = 'k'
)

//
const (
	modeSend    = 0
	modeReceive = 1
)

//
var helloBridge = []byte("hlob")
var helloDaemon = []byte("hlod")

// Bridge is an sdcard.Bus on top of a serial connection to the adapter.
type Bridge struct {
	port io.ReadWriteCloser
	name string
	cmd  []byte
}

// Open opens the serial port at name, and syncs with the adapter on it.
func Open(name string) (*Bridge, error) {
	port, err := serial.Open(serial.OpenOptions{
		PortName:        name,
		BaudRate:        1000000,
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("cannot open serial port %s: %w", name, err)
	}
	b, err := New(port, name)
	if err != nil {
		port.Close()
		return nil, err
	}
	return b, nil
}

// New syncs with an adapter over an already opened connection.
func New(port io.ReadWriteCloser, name string) (*Bridge, error) {
	ret := &Bridge{port: port, name: name, cmd: make([]byte, commandLength)}
	if err := ret.syncOnHello(); err != nil {
		return nil, err
	}
	return ret, nil
}

//
func (b *Bridge) String() string {
	return fmt.Sprintf("bridge at %s", b.name)
}

// Close closes the connection to the adapter.
func (b *Bridge) Close() error {
	return b.port.Close()
}

/*
	syncOnHello answers the adapter's hello and waits for the
	acknowledgement. Left over hellos the adapter had sent before we were
	listening are dropped along the way.
*/
func (b *Bridge) syncOnHello() error {

	log.Infof("syncing with adapter at %s", b.name)
	hello := make([]byte, len(helloBridge))

	for !bytes.Equal(hello, helloBridge) {
		shiftLeft(hello)
		if err := b.receive(hello[len(hello)-1:]); err != nil {
			return fmt.Errorf("error waiting for adapter hello: %w", err)
		}
	}

	if err := b.send(helloDaemon); err != nil {
		return fmt.Errorf("error sending daemon hello: %w", err)
	}

	buf := make([]byte, 1)
	for ix := 0; ix < syncLimit; ix++ {
		if err := b.receive(buf); err != nil {
			return fmt.Errorf("error waiting for adapter sync: %w", err)
		}
		if buf[0] == ack {
			log.Infof("synced with adapter at %s", b.name)
			return nil
		}
		log.Tracef("discarding 0x%02x", buf[0])
	}

	return fmt.Errorf("adapter at %s did not acknowledge hello", b.name)
}

// Select implements sdcard.Bus.
func (b *Bridge) Select(active bool) error {
	b.cmd[0] = cmdSelect
	b.cmd[1] = 0
	if active {
		b.cmd[1] = 1
	}
	b.cmd[2], b.cmd[3] = 0, 0
	return b.command(nil, nil)
}

// SetRate implements sdcard.Bus. The adapter takes the rate in kHz.
func (b *Bridge) SetRate(hz uint32) error {
	khz := hz / 1000
	if khz == 0 {
		khz = 1
	}
	binary.BigEndian.PutUint32(b.cmd, khz)
	b.cmd[0] = cmdRate
	return b.command(nil, nil)
}

// Transfer implements sdcard.Bus. Large transfers are split into chunks.
func (b *Bridge) Transfer(data []byte, receive bool) error {

	for len(data) > 0 {

		n := len(data)
		if n > maxChunk {
			n = maxChunk
		}

		b.cmd[0] = cmdTransfer
		b.cmd[1] = modeSend
		if receive {
			b.cmd[1] = modeReceive
		}
		binary.BigEndian.PutUint16(b.cmd[2:], uint16(n))

		var in []byte
		if receive {
			in = data[:n]
		}
		if err := b.command(data[:n], in); err != nil {
			return err
		}

		data = data[n:]
	}

	return nil
}

// command sends the prepared command, followed by out if not nil, then reads
// len(in) bytes into in, and finally the acknowledgement
func (b *Bridge) command(out, in []byte) error {

	if err := b.send(b.cmd); err != nil {
		return fmt.Errorf("error sending command '%c': %w", b.cmd[0], err)
	}
	if len(out) > 0 {
		if err := b.send(out); err != nil {
			return fmt.Errorf("error sending data: %w", err)
		}
	}
	if len(in) > 0 {
		if err := b.receive(in); err != nil {
			return fmt.Errorf("error receiving data: %w", err)
		}
	}

	resp := make([]byte, 1)
	if err := b.receive(resp); err != nil {
		return fmt.Errorf("error receiving acknowledgement: %w", err)
	}
	if resp[0] != ack {
		return fmt.Errorf("adapter rejected command '%c': 0x%02x", b.cmd[0], resp[0])
	}

	return nil
}

//
func (b *Bridge) receive(data []byte) error {
	_, err := io.ReadFull(b.port, data)
	return err
}

//
func (b *Bridge) send(data []byte) error {
	_, err := b.port.Write(data)
	return err
}

//
func shiftLeft(buf []byte) {
	if len(buf) > 1 {
		copy(buf, buf[1:])
	}
}
