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
	"io"
	"net/http"
	"os"
)

//
func NewStatus() *Status {

	s := &Status{}
	s.Runner = *NewRunner(
		"status [-j|--json] [-s|--server {host}] [-p|--port {port}]",
		"get daemon & card status",
		"Use the status command to get the state of the daemon and the card.",
		"", runnerHelpEpilogue, s.Run)

	s.AddBaseSettings()
	s.AddServerSetting()
	s.AddSetting(&s.JSON, "json", "j", "", false,
		"get status as JSON", false)

	return s
}

//
type Status struct {
	//
	Runner
	//
	JSON bool
}

//
func (s *Status) Run() error {

	if err := s.ParseSettings(); err != nil {
		return err
	}

	resp, err := s.apiCall(http.MethodGet, "/status", s.JSON, nil)
	if err != nil {
		return err
	}
	defer resp.Close()

	_, err = io.Copy(os.Stdout, resp)
	return err
}
