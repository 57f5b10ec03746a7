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
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

//
const runnerHelpPrologue = ""
const runnerHelpEpilogue = `- When a flag can be set via environment variable, the variable name is given
  in parenthesis at the end of the flag explanation. Note however that a flag,
  when specified overrides an environment variable.
`

//
const apiTimeout = 30 * time.Second

/*
	NewRunner creates a base runner for commands to use. The parameters are
	passed to the base command wrapped by this runner.
*/
func NewRunner(use, short, long, helpPrologue, helpEpilogue string,
	exec func() error) *Runner {
	return &Runner{
		Command: *NewCommand(
			use, short, long, helpPrologue, helpEpilogue, exec),
	}
}

//
type Runner struct {
	//
	Command
	//
	Server string
	Port   int
}

//
func (r *Runner) AddBaseSettings() {
	// Implementation Note: This cannot be included in NewRunner, but rather has
	// to be called from the top level command type. Otherwise, the targets are
	// not the ones the command later reads from.
	r.AddSetting(&r.Port, "port", "p", "SDSPI_PORT", 8888,
		"port of daemon's API server", false)
}

//
func (r *Runner) AddServerSetting() {
	r.AddSetting(&r.Server, "server", "s", "SDSPI_SERVER", "127.0.0.1",
		"host of daemon's API server", false)
}

//
func (r *Runner) baseURL() string {
	server := r.Server
	if server == "" {
		server = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s:%d", server, r.Port)
}

/*
	apiCall sends a request to the daemon's API server and returns the body of
	a successful response. For a failed request, the returned error carries
	the HTTP status and the message the server sent.
*/
func (r *Runner) apiCall(method, path string, json bool,
	body io.Reader) (io.ReadCloser, error) {

	client := &http.Client{Timeout: apiTimeout}
	req, err := http.NewRequest(method, r.baseURL()+path, body)
	if err != nil {
		return nil, err
	}

	if json {
		req.Header.Add("Content-Type", "application/json")
		req.Header.Add("Accept", "application/json")
	} else {
		req.Header.Add("Content-Type", "application/octet-stream")
		req.Header.Add("Accept", "text/plain, application/octet-stream")
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%s: %s", resp.Status,
			strings.TrimSpace(string(msg)))
	}

	return resp.Body, nil
}

// apiRequest is apiCall for when only the server's message is of interest
func (r *Runner) apiRequest(method, path string, body []byte) (string, error) {
	var in io.Reader
	if body != nil {
		in = bytes.NewReader(body)
	}
	resp, err := r.apiCall(method, path, false, in)
	if err != nil {
		return "", err
	}
	defer resp.Close()
	msg, err := io.ReadAll(resp)
	return strings.TrimSpace(string(msg)), err
}
