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
	Package blockdev presents a sector device as a plain byte addressed disk,
	implementing io.ReaderAt and io.WriterAt. Writes that do not cover whole
	sectors are done as read-modify-write.
*/
package blockdev

import (
	"errors"
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"

	"github.com/xelalexv/sdspi/pkg/sdcard"
)

// SectorDevice is what the disk is built on, e.g. an *sdcard.Device.
type SectorDevice interface {
	ReadSector(buf []byte, index uint32) error
	WriteSector(buf []byte, index uint32) error
	SectorCount() uint64
}

//
var ErrOutOfRange = errors.New("offset out of range")

var _ io.ReaderAt = (*Disk)(nil)
var _ io.WriterAt = (*Disk)(nil)

// Disk is a byte addressed view of a sector device.
type Disk struct {
	dev SectorDevice
}

//
func New(dev SectorDevice) *Disk {
	return &Disk{dev: dev}
}

// BlockSize returns the size of a block in bytes.
func (d *Disk) BlockSize() uint32 {
	return sdcard.SectorSize
}

// BlockCount returns the number of blocks on the disk, or 0 if unknown.
func (d *Disk) BlockCount() uint64 {
	return d.dev.SectorCount()
}

// Size returns the disk size in bytes, or 0 if unknown.
func (d *Disk) Size() int64 {
	return int64(d.BlockCount()) * sdcard.SectorSize
}

// limit cuts length n at offset off down to the disk size; with unknown size,
// nothing is cut
func (d *Disk) limit(off int64, n int) (int, error) {
	if off < 0 {
		return 0, ErrOutOfRange
	}
	size := d.Size()
	if size == 0 {
		return n, nil
	}
	if off >= size {
		return 0, io.EOF
	}
	if rem := size - off; int64(n) > rem {
		return int(rem), nil
	}
	return n, nil
}

//
func (d *Disk) sector(off int64) (uint32, int, error) {
	index := off / sdcard.SectorSize
	if index > 0xffffffff {
		return 0, 0, ErrOutOfRange
	}
	return uint32(index), int(off % sdcard.SectorSize), nil
}

// ReadAt implements io.ReaderAt.
func (d *Disk) ReadAt(p []byte, off int64) (int, error) {

	n, err := d.limit(off, len(p))
	if err != nil {
		return 0, err
	}

	buf := make([]byte, sdcard.SectorSize)
	done := 0

	for done < n {
		index, skip, err := d.sector(off + int64(done))
		if err != nil {
			return done, err
		}
		if err := d.dev.ReadSector(buf, index); err != nil {
			return done, fmt.Errorf("error reading sector %d: %w", index, err)
		}
		done += copy(p[done:n], buf[skip:])
	}

	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt implements io.WriterAt.
func (d *Disk) WriteAt(p []byte, off int64) (int, error) {

	n, err := d.limit(off, len(p))
	if err != nil {
		if err == io.EOF {
			err = ErrOutOfRange
		}
		return 0, err
	}

	buf := make([]byte, sdcard.SectorSize)
	done := 0

	for done < n {

		index, skip, err := d.sector(off + int64(done))
		if err != nil {
			return done, err
		}

		chunk := n - done
		if chunk > sdcard.SectorSize-skip {
			chunk = sdcard.SectorSize - skip
		}

		if chunk < sdcard.SectorSize {
			log.WithFields(log.Fields{
				"sector": index, "offset": skip, "length": chunk,
			}).Trace("partial sector write")
			if err := d.dev.ReadSector(buf, index); err != nil {
				return done, fmt.Errorf("error reading sector %d: %w", index, err)
			}
		}

		copy(buf[skip:], p[done:done+chunk])
		if err := d.dev.WriteSector(buf, index); err != nil {
			return done, fmt.Errorf("error writing sector %d: %w", index, err)
		}
		done += chunk
	}

	if n < len(p) {
		return n, ErrOutOfRange
	}
	return n, nil
}
