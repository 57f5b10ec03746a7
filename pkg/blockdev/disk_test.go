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

package blockdev

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/xelalexv/sdspi/pkg/hal/sim"
	"github.com/xelalexv/sdspi/pkg/sdcard"
)

//
type memDevice struct {
	data   []byte
	reads  int
	writes int
	count  uint64
}

//
func newMemDevice(sectors int) *memDevice {
	return &memDevice{
		data:  make([]byte, sectors*sdcard.SectorSize),
		count: uint64(sectors),
	}
}

//
func (m *memDevice) ReadSector(buf []byte, index uint32) error {
	m.reads++
	off := int(index) * sdcard.SectorSize
	if off >= len(m.data) {
		return errors.New("out of range")
	}
	copy(buf, m.data[off:])
	return nil
}

//
func (m *memDevice) WriteSector(buf []byte, index uint32) error {
	m.writes++
	off := int(index) * sdcard.SectorSize
	if off >= len(m.data) {
		return errors.New("out of range")
	}
	copy(m.data[off:off+sdcard.SectorSize], buf)
	return nil
}

//
func (m *memDevice) SectorCount() uint64 {
	return m.count
}

func TestDiskWriteAt(t *testing.T) {
	tests := []struct {
		name   string
		off    int64
		length int
		reads  int
		writes int
	}{
		{"aligned single", 512, 512, 0, 1},
		{"aligned multiple", 1024, 1536, 0, 3},
		{"inside one sector", 100, 50, 1, 1},
		{"across sector boundary", 500, 100, 2, 2},
		{"unaligned start, whole sectors after", 256, 1280, 1, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := newMemDevice(8)
			for ix := range dev.data {
				dev.data[ix] = 0xEE
			}
			disk := New(dev)

			p := bytes.Repeat([]byte{0x42}, tt.length)
			n, err := disk.WriteAt(p, tt.off)
			if err != nil || n != tt.length {
				t.Fatalf("WriteAt() = %d, %v", n, err)
			}
			if dev.reads != tt.reads || dev.writes != tt.writes {
				t.Errorf("reads/writes = %d/%d, want %d/%d",
					dev.reads, dev.writes, tt.reads, tt.writes)
			}

			for ix, b := range dev.data {
				inside := int64(ix) >= tt.off && int64(ix) < tt.off+int64(tt.length)
				if inside && b != 0x42 || !inside && b != 0xEE {
					t.Fatalf("byte %d = 0x%02X", ix, b)
				}
			}
		})
	}
}

func TestDiskReadAt(t *testing.T) {
	dev := newMemDevice(4)
	for ix := range dev.data {
		dev.data[ix] = byte(ix / 7)
	}
	disk := New(dev)

	p := make([]byte, 700)
	n, err := disk.ReadAt(p, 300)
	if err != nil || n != 700 {
		t.Fatalf("ReadAt() = %d, %v", n, err)
	}
	if !bytes.Equal(p, dev.data[300:1000]) {
		t.Error("read data differs")
	}

	n, err = disk.ReadAt(p, int64(len(dev.data))-100)
	if n != 100 || err != io.EOF {
		t.Errorf("ReadAt() at end = %d, %v, want 100, EOF", n, err)
	}

	if _, err = disk.ReadAt(p, int64(len(dev.data))); err != io.EOF {
		t.Errorf("ReadAt() beyond end error = %v, want EOF", err)
	}
	if _, err = disk.ReadAt(p, -1); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("ReadAt() negative offset error = %v", err)
	}
}

func TestDiskWriteBeyondEnd(t *testing.T) {
	dev := newMemDevice(2)
	disk := New(dev)

	n, err := disk.WriteAt(make([]byte, 600), 512)
	if n != 512 || !errors.Is(err, ErrOutOfRange) {
		t.Errorf("WriteAt() = %d, %v, want 512, %v", n, err, ErrOutOfRange)
	}
	if _, err := disk.WriteAt([]byte{1}, 1024); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("WriteAt() beyond end error = %v", err)
	}
}

func TestDiskUnknownSize(t *testing.T) {
	dev := newMemDevice(2)
	dev.count = 0
	disk := New(dev)

	if disk.Size() != 0 {
		t.Errorf("Size() = %d", disk.Size())
	}
	// without known size, the device decides
	if _, err := disk.ReadAt(make([]byte, 10), 2048); err == nil {
		t.Error("ReadAt() past device end did not fail")
	}
}

func TestDiskOnSimulatedCard(t *testing.T) {
	card := sim.NewCard(sim.Config{HighCapacity: true}, sim.NewMemoryImage(1024))
	dev := sdcard.New(card)
	if err := dev.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	disk := New(dev)

	if disk.BlockSize() != 512 || disk.BlockCount() != 1024 {
		t.Errorf("geometry = %d x %d", disk.BlockSize(), disk.BlockCount())
	}

	msg := []byte("hello, card! this spans a sector boundary")
	if _, err := disk.WriteAt(msg, 1000); err != nil {
		t.Fatalf("WriteAt() error = %v", err)
	}
	buf := make([]byte, len(msg))
	if _, err := disk.ReadAt(buf, 1000); err != nil {
		t.Fatalf("ReadAt() error = %v", err)
	}
	if !bytes.Equal(buf, msg) {
		t.Errorf("ReadAt() = %q", buf)
	}
}
