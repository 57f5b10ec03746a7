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

//
func NewRead() *Read {

	r := &Read{}
	r.Runner = *NewRunner(
		`read -n|--sector {index} [-c|--count {sectors}] [-d|--dump]
     [-o|--output {file}] [-s|--server {host}] [-p|--port {port}]`,
		"read sectors from card",
		`Use the read command to read one or more consecutive sectors from the card.
The raw data is written to standard output, unless an output file is given.`,
		"", `- With --dump, the data is printed as a hex dump instead of raw bytes.

- A read reaching beyond the end of the card returns the sectors up to the end.

`+runnerHelpEpilogue, r.Run)

	r.AddBaseSettings()
	r.AddServerSetting()
	r.AddSetting(&r.Sector, "sector", "n", "", -1,
		"index of first sector to read", false)
	r.AddSetting(&r.Count, "count", "c", "", 1,
		"number of sectors to read", false)
	r.AddSetting(&r.Dump, "dump", "d", "", false,
		"print hex dump", false)
	r.AddSetting(&r.Output, "output", "o", "", nil,
		"file to write data to", false)

	return r
}

//
type Read struct {
	//
	Runner
	//
	Sector int
	Count  int
	Dump   bool
	Output string
}

// maxReadCount is the number of sectors fitting into one data request
const maxReadCount = 2048

//
func (r *Read) path() (string, error) {

	if r.Sector < 0 {
		return "", errors.New("you need to specify the sector with --sector")
	}
	if r.Count < 1 || r.Count > maxReadCount {
		return "", fmt.Errorf("sector count needs to be between 1 and %d",
			maxReadCount)
	}

	dump := ""
	if r.Dump {
		dump = "dump=true"
	}

	if r.Count == 1 {
		if dump != "" {
			dump = "?" + dump
		}
		return fmt.Sprintf("/sector/%d%s", r.Sector, dump), nil
	}

	if dump != "" {
		dump = "&" + dump
	}
	return fmt.Sprintf("/data?offset=%d&length=%d%s",
		int64(r.Sector)*sdcard.SectorSize, r.Count*sdcard.SectorSize, dump), nil
}

//
func (r *Read) Run() error {

	if err := r.ParseSettings(); err != nil {
		return err
	}

	path, err := r.path()
	if err != nil {
		return err
	}

	resp, err := r.apiCall(http.MethodGet, path, false, nil)
	if err != nil {
		return err
	}
	defer resp.Close()

	out := io.Writer(os.Stdout)
	if r.Output != "" {
		f, err := os.Create(r.Output)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	_, err = io.Copy(out, resp)
	return err
}
