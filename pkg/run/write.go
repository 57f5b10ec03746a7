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

package run

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/xelalexv/sdspi/pkg/sdcard"
)

// maxWriteLength matches what the API server accepts in one request
const maxWriteLength = 1048576

//
func NewWrite() *Write {

	w := &Write{}
	w.Runner = *NewRunner(
		`write -n|--sector {index} [-i|--input {file}] [-y|--yes]
      [-s|--server {host}] [-p|--port {port}]`,
		"write data to card",
		`Use the write command to write data to the card, starting at the given sector.
The data is read from standard input, unless an input file is given.`,
		"", `- Data that does not end on a sector boundary leaves the remainder of the
  last sector unchanged.

- Writing overwrites what is on the card without further notice, so you will
  be asked to confirm, unless you specify --yes.

`+runnerHelpEpilogue, w.Run)

	w.AddBaseSettings()
	w.AddServerSetting()
	w.AddSetting(&w.Sector, "sector", "n", "", -1,
		"index of first sector to write", false)
	w.AddSetting(&w.Input, "input", "i", "", nil,
		"file to read data from", false)
	w.AddSetting(&w.Yes, "yes", "y", "", false,
		"do not ask for confirmation", false)

	return w
}

//
type Write struct {
	//
	Runner
	//
	Sector int
	Input  string
	Yes    bool
}

//
func (w *Write) Run() error {

	if err := w.ParseSettings(); err != nil {
		return err
	}

	if w.Sector < 0 {
		return errors.New("you need to specify the sector with --sector")
	}

	in := io.Reader(os.Stdin)
	if w.Input != "" {
		f, err := os.Open(w.Input)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	data, err := io.ReadAll(io.LimitReader(in, maxWriteLength+1))
	if err != nil {
		return err
	}

	path, err := writePath(w.Sector, len(data))
	if err != nil {
		return err
	}

	if !w.Yes && !GetUserConfirmation(fmt.Sprintf(
		"write %d bytes at sector %d?", len(data), w.Sector)) {
		return errors.New("write cancelled")
	}

	msg, err := w.apiRequest(http.MethodPut, path, data)
	if err != nil {
		return err
	}
	fmt.Println(msg)
	return nil
}

// writePath picks the API endpoint for writing length bytes at sector
func writePath(sector, length int) (string, error) {
	switch {
	case length == 0:
		return "", errors.New("no data to write")
	case length > maxWriteLength:
		return "", fmt.Errorf("data exceeds %d bytes", maxWriteLength)
	case length == sdcard.SectorSize:
		return fmt.Sprintf("/sector/%d", sector), nil
	}
	return fmt.Sprintf("/data?offset=%d",
		int64(sector)*sdcard.SectorSize), nil
}
