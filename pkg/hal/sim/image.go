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

package sim

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/xelalexv/sdspi/pkg/sdcard"
)

/*
	Image is the storage behind a simulated card, either a file or a plain
	memory buffer. Image files are locked exclusively while open, so that two
	simulated cards never share the same image.
*/
type Image struct {
	file    *os.File
	mem     []byte
	sectors uint64
}

// NewMemoryImage creates a zero filled in-memory image of the given size.
func NewMemoryImage(sectors uint64) *Image {
	return &Image{
		mem:     make([]byte, sectors*sdcard.SectorSize),
		sectors: sectors,
	}
}

/*
	OpenImage opens the image file at path. If the file does not exist and
	sectors is larger than zero, it is created with that size. The size of an
	existing file needs to be a multiple of the sector size.
*/
func OpenImage(path string, sectors uint64) (*Image, error) {

	flags := os.O_RDWR
	if sectors > 0 {
		flags |= os.O_CREATE
	}

	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, err
	}

	if err := lock(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("cannot lock image %s: %v", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	size := info.Size()
	if size == 0 && sectors > 0 {
		size = int64(sectors * sdcard.SectorSize)
		if err := f.Truncate(size); err != nil {
			f.Close()
			return nil, fmt.Errorf("cannot size image %s: %v", path, err)
		}
	}

	if size == 0 || size%sdcard.SectorSize != 0 {
		f.Close()
		return nil, fmt.Errorf(
			"image %s has invalid size %d, needs to be a non-zero multiple of %d",
			path, size, sdcard.SectorSize)
	}

	log.WithFields(log.Fields{
		"image":   path,
		"sectors": size / sdcard.SectorSize,
	}).Info("opened card image")

	return &Image{file: f, sectors: uint64(size / sdcard.SectorSize)}, nil
}

// Sectors returns the size of the image in sectors.
func (i *Image) Sectors() uint64 {
	return i.sectors
}

//
func (i *Image) readSector(index uint64, buf []byte) error {
	if index >= i.sectors {
		return fmt.Errorf("sector %d out of range", index)
	}
	off := int64(index) * sdcard.SectorSize
	if i.file == nil {
		copy(buf, i.mem[off:off+sdcard.SectorSize])
		return nil
	}
	_, err := i.file.ReadAt(buf[:sdcard.SectorSize], off)
	return err
}

//
func (i *Image) writeSector(index uint64, buf []byte) error {
	if index >= i.sectors {
		return fmt.Errorf("sector %d out of range", index)
	}
	off := int64(index) * sdcard.SectorSize
	if i.file == nil {
		copy(i.mem[off:off+sdcard.SectorSize], buf)
		return nil
	}
	_, err := i.file.WriteAt(buf[:sdcard.SectorSize], off)
	return err
}

// Close syncs and releases an image file. For memory images, this is a no-op.
func (i *Image) Close() error {
	if i.file == nil {
		return nil
	}
	if err := i.file.Sync(); err != nil {
		log.Errorf("error syncing image: %v", err)
	}
	if err := unlock(i.file); err != nil {
		log.Errorf("error unlocking image: %v", err)
	}
	return i.file.Close()
}
