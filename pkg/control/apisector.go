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

package control

import (
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/xelalexv/sdspi/pkg/blockdev"
	"github.com/xelalexv/sdspi/pkg/sdcard"
)

// getSector parses the sector index of the request, and rejects it if it lies
// beyond the end of the card, as far as the card's size is known
func (a *api) getSector(w http.ResponseWriter,
	req *http.Request) (uint32, bool) {

	index, err := strconv.ParseUint(mux.Vars(req)["index"], 10, 32)
	if err != nil {
		handleError(fmt.Errorf("invalid sector index: %v", err),
			http.StatusUnprocessableEntity, w)
		return 0, false
	}

	if count := a.daemon.SectorCount(); count > 0 && index >= count {
		handleError(fmt.Errorf("%w: sector %d, card has %d sectors",
			blockdev.ErrOutOfRange, index, count),
			http.StatusUnprocessableEntity, w)
		return 0, false
	}

	return uint32(index), true
}

//
func (a *api) readSector(w http.ResponseWriter, req *http.Request) {

	index, ok := a.getSector(w, req)
	if !ok {
		return
	}

	buf := make([]byte, sdcard.SectorSize)
	if err := a.daemon.ReadSector(buf, index); err != nil {
		handleError(err, statusFor(err), w)
		return
	}

	if isFlagSet(req, "dump") {
		sendReply([]byte(hex.Dump(buf)), http.StatusOK, w)
	} else {
		sendBinaryReply(buf, http.StatusOK, w)
	}
}

//
func (a *api) writeSector(w http.ResponseWriter, req *http.Request) {

	index, ok := a.getSector(w, req)
	if !ok {
		return
	}

	data, err := readBody(req)
	if handleError(err, http.StatusUnprocessableEntity, w) {
		return
	}
	if len(data) != sdcard.SectorSize {
		handleError(fmt.Errorf("sector data needs to be %d bytes, got %d",
			sdcard.SectorSize, len(data)), http.StatusUnprocessableEntity, w)
		return
	}

	if err := a.daemon.WriteSector(data, index); err != nil {
		handleError(err, statusFor(err), w)
		return
	}

	sendReply([]byte(fmt.Sprintf("wrote sector %d", index)), http.StatusOK, w)
}

//
func (a *api) readData(w http.ResponseWriter, req *http.Request) {

	offset, err := getInt64Arg(req, "offset", 0)
	if handleError(err, http.StatusUnprocessableEntity, w) {
		return
	}
	length, err := getInt64Arg(req, "length", sdcard.SectorSize)
	if handleError(err, http.StatusUnprocessableEntity, w) {
		return
	}
	if length > maxDataLength {
		handleError(fmt.Errorf("length exceeds %d bytes", maxDataLength),
			http.StatusUnprocessableEntity, w)
		return
	}

	buf := make([]byte, length)
	n, err := a.disk.ReadAt(buf, offset)
	if err == io.EOF {
		if n == 0 {
			handleError(fmt.Errorf("offset %d beyond end of card", offset),
				http.StatusUnprocessableEntity, w)
			return
		}
		err = nil
	}
	if err != nil {
		handleError(err, statusFor(err), w)
		return
	}

	if isFlagSet(req, "dump") {
		sendReply([]byte(hex.Dump(buf[:n])), http.StatusOK, w)
	} else {
		sendBinaryReply(buf[:n], http.StatusOK, w)
	}
}

//
func (a *api) writeData(w http.ResponseWriter, req *http.Request) {

	offset, err := getInt64Arg(req, "offset", 0)
	if handleError(err, http.StatusUnprocessableEntity, w) {
		return
	}

	data, err := readBody(req)
	if handleError(err, http.StatusUnprocessableEntity, w) {
		return
	}

	n, err := a.disk.WriteAt(data, offset)
	if err != nil {
		handleError(fmt.Errorf("wrote %d of %d bytes: %w", n, len(data), err),
			statusFor(err), w)
		return
	}

	sendReply([]byte(fmt.Sprintf("wrote %d bytes at offset %d", n, offset)),
		http.StatusOK, w)
}
