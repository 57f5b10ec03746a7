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

package bridge

import (
	"bytes"
	"encoding/binary"
	"io"
	"net"
	"testing"

	"github.com/xelalexv/sdspi/pkg/hal/sim"
	"github.com/xelalexv/sdspi/pkg/sdcard"
)

// adapter plays the microcontroller side of the serial line, on top of a
// simulated card
type adapter struct {
	conn   net.Conn
	card   *sim.Card
	chunks int
	reject bool
}

//
func (a *adapter) sync() error {
	if _, err := a.conn.Write([]byte("\x00xhlob")); err != nil {
		return err
	}
	hello := make([]byte, 4)
	if _, err := io.ReadFull(a.conn, hello); err != nil {
		return err
	}
	// a stale hello is still in flight when the answer arrives
	_, err := a.conn.Write([]byte("hlobk"))
	return err
}

//
func (a *adapter) serve() {

	defer a.conn.Close()

	if err := a.sync(); err != nil {
		return
	}

	cmd := make([]byte, commandLength)
	for {
		if _, err := io.ReadFull(a.conn, cmd); err != nil {
			return
		}

		var err error
		switch cmd[0] {
		case cmdSelect:
			err = a.card.Select(cmd[1] == 1)
		case cmdRate:
			khz := binary.BigEndian.Uint32(cmd) & 0xffffff
			err = a.card.SetRate(khz * 1000)
		case cmdTransfer:
			a.chunks++
			buf := make([]byte, binary.BigEndian.Uint16(cmd[2:]))
			if _, err := io.ReadFull(a.conn, buf); err != nil {
				return
			}
			err = a.card.Transfer(buf, cmd[1] == modeReceive)
			if cmd[1] == modeReceive {
				if _, err := a.conn.Write(buf); err != nil {
					return
				}
			}
		default:
			a.conn.Write([]byte{'e'})
			continue
		}

		resp := []byte{ack}
		if err != nil || a.reject {
			resp[0] = 'e'
		}
		if _, err := a.conn.Write(resp); err != nil {
			return
		}
	}
}

//
func newTestBridge(t *testing.T, card *sim.Card) (*Bridge, *adapter) {
	t.Helper()
	local, remote := net.Pipe()
	a := &adapter{conn: remote, card: card}
	go a.serve()
	b, err := New(local, "pipe")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b, a
}

func TestBridgeCard(t *testing.T) {
	card := sim.NewCard(sim.Config{HighCapacity: true, BusyBytes: 8},
		sim.NewMemoryImage(2048))
	b, _ := newTestBridge(t, card)

	d := sdcard.New(b)
	if err := d.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if rate := card.Stats().Rate; rate != 4000000 {
		t.Errorf("rate = %d, want 4000000", rate)
	}

	data := bytes.Repeat([]byte("bridge!!"), sdcard.SectorSize/8)
	if err := d.WriteSector(data, 1234); err != nil {
		t.Fatalf("WriteSector() error = %v", err)
	}
	buf := make([]byte, sdcard.SectorSize)
	if err := d.ReadSector(buf, 1234); err != nil {
		t.Fatalf("ReadSector() error = %v", err)
	}
	if !bytes.Equal(buf, data) {
		t.Error("read back data differs")
	}
}

func TestBridgeChunks(t *testing.T) {
	card := sim.NewCard(sim.Config{}, sim.NewMemoryImage(16))
	b, a := newTestBridge(t, card)

	if err := b.Select(true); err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	data := bytes.Repeat([]byte{0xff}, 2*maxChunk+100)
	if err := b.Transfer(data, true); err != nil {
		t.Fatalf("Transfer() error = %v", err)
	}
	if a.chunks != 3 {
		t.Errorf("chunks = %d, want 3", a.chunks)
	}
	if n := card.Stats().Bytes; n != len(data) {
		t.Errorf("bytes clocked = %d, want %d", n, len(data))
	}
}

func TestBridgeRejected(t *testing.T) {
	card := sim.NewCard(sim.Config{}, sim.NewMemoryImage(16))
	b, a := newTestBridge(t, card)
	a.reject = true

	if err := b.SetRate(400000); err == nil {
		t.Error("SetRate() did not fail on rejection")
	}
}

func TestBridgeRateFrame(t *testing.T) {
	card := sim.NewCard(sim.Config{}, sim.NewMemoryImage(16))
	b, _ := newTestBridge(t, card)

	for _, tt := range []struct{ hz, expected uint32 }{
		{400000, 400000},
		{25000000, 25000000},
		{999, 1000},
	} {
		if err := b.SetRate(tt.hz); err != nil {
			t.Fatalf("SetRate() error = %v", err)
		}
		if rate := card.Stats().Rate; rate != tt.expected {
			t.Errorf("rate for %d Hz = %d, want %d", tt.hz, rate, tt.expected)
		}
	}
}

func TestPortInfoString(t *testing.T) {
	tests := []struct {
		name     string
		info     PortInfo
		expected string
	}{
		{
			name:     "plain",
			info:     PortInfo{Name: "/dev/ttyS0"},
			expected: "/dev/ttyS0",
		},
		{
			name: "usb",
			info: PortInfo{Name: "/dev/ttyUSB0", USB: true, VID: "1a86",
				PID: "7523", Product: "CH340", Serial: "42"},
			expected: "/dev/ttyUSB0  [1a86:7523] CH340, serial 42",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.info.String(); got != tt.expected {
				t.Errorf("String() = %q, want %q", got, tt.expected)
			}
		})
	}
}
