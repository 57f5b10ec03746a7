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

// CSD register layouts
const (
	csdVersion1 = 0
	csdVersion2 = 1
)

/*
	SectorCount returns the capacity of the card in sectors, as given by the
	CSD register read during the last initialization. It returns 0 if the
	register has not been read, or uses an unknown layout.
*/
func (d *Device) SectorCount() uint64 {
	if !d.csdValid {
		return 0
	}
	return csdSectors(d.csd)
}

//
func csdSectors(csd [16]byte) uint64 {

	switch csd[0] >> 6 {

	case csdVersion1:
		readBlLen := uint(csd[5] & 0x0f)
		cSize := uint64(csd[6]&0x03)<<10 | uint64(csd[7])<<2 | uint64(csd[8]>>6)
		cSizeMult := uint(csd[9]&0x03)<<1 | uint(csd[10]>>7)
		bytes := (cSize + 1) << (cSizeMult + 2) << readBlLen
		return bytes / SectorSize

	case csdVersion2:
		cSize := uint64(csd[7]&0x3f)<<16 | uint64(csd[8])<<8 | uint64(csd[9])
		return (cSize + 1) * 1024

	default:
		return 0
	}
}
