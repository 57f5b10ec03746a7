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
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/xelalexv/sdspi/pkg/daemon"
	"github.com/xelalexv/sdspi/pkg/hal/sim"
	"github.com/xelalexv/sdspi/pkg/sdcard"
)

//
func newTestServer(t *testing.T, cfg sim.Config, init bool) *httptest.Server {
	t.Helper()
	d := daemon.NewDaemon("sim", func() (daemon.Bus, error) {
		return sim.NewCard(cfg, sim.NewMemoryImage(1024)), nil
	})
	if init {
		if err := d.Reinit(); err != nil {
			t.Fatalf("Reinit() error = %v", err)
		}
	}
	srv := httptest.NewServer(newAPI("", d).router())
	t.Cleanup(func() {
		srv.Close()
		d.Stop()
	})
	return srv
}

//
func call(t *testing.T, srv *httptest.Server, method, path string,
	body []byte) (int, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, data
}

func TestAPISectorRoundTrip(t *testing.T) {
	srv := newTestServer(t, sim.Config{HighCapacity: true}, true)

	data := bytes.Repeat([]byte{0xC3, 0x3C}, sdcard.SectorSize/2)
	if code, body := call(t, srv, "PUT", "/sector/12", data); code != http.StatusOK {
		t.Fatalf("PUT /sector/12 = %d: %s", code, body)
	}

	code, body := call(t, srv, "GET", "/sector/12", nil)
	if code != http.StatusOK {
		t.Fatalf("GET /sector/12 = %d: %s", code, body)
	}
	if !bytes.Equal(body, data) {
		t.Error("read back data differs")
	}

	code, body = call(t, srv, "GET", "/sector/12?dump=true", nil)
	if code != http.StatusOK || !strings.HasPrefix(string(body),
		"00000000  c3 3c c3 3c") {
		t.Errorf("GET /sector/12?dump=true = %d: %s", code, body)
	}
}

func TestAPIErrors(t *testing.T) {
	tests := []struct {
		name   string
		init   bool
		method string
		path   string
		body   []byte
		code   int
	}{
		{
			name:   "not initialized",
			method: "GET",
			path:   "/sector/0",
			code:   http.StatusConflict,
		},
		{
			name:   "sector data too short",
			init:   true,
			method: "PUT",
			path:   "/sector/0",
			body:   []byte("short"),
			code:   http.StatusUnprocessableEntity,
		},
		{
			name:   "sector index too large",
			init:   true,
			method: "GET",
			path:   "/sector/99999999999",
			code:   http.StatusUnprocessableEntity,
		},
		{
			name:   "sector beyond card",
			init:   true,
			method: "GET",
			path:   "/sector/5000",
			code:   http.StatusUnprocessableEntity,
		},
		{
			name:   "data beyond end",
			init:   true,
			method: "GET",
			path:   "/data?offset=524288",
			code:   http.StatusUnprocessableEntity,
		},
		{
			name:   "negative offset",
			init:   true,
			method: "GET",
			path:   "/data?offset=-5",
			code:   http.StatusUnprocessableEntity,
		},
		{
			name:   "write beyond end",
			init:   true,
			method: "PUT",
			path:   "/data?offset=524280",
			body:   make([]byte, 100),
			code:   http.StatusUnprocessableEntity,
		},
		{
			name:   "unknown route",
			method: "GET",
			path:   "/sector/abc",
			code:   http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, sim.Config{HighCapacity: true}, tt.init)
			if code, body := call(t, srv, tt.method, tt.path, tt.body); code != tt.code {
				t.Errorf("%s %s = %d, want %d: %s",
					tt.method, tt.path, code, tt.code, body)
			}
		})
	}
}

func TestAPIData(t *testing.T) {
	srv := newTestServer(t, sim.Config{}, true)

	msg := []byte("some bytes that straddle sectors")
	if code, body := call(t, srv, "PUT", "/data?offset=500", msg); code != http.StatusOK {
		t.Fatalf("PUT /data = %d: %s", code, body)
	}

	code, body := call(t, srv, "GET",
		"/data?offset=500&length="+strconv.Itoa(len(msg)), nil)
	if code != http.StatusOK || !bytes.Equal(body, msg) {
		t.Errorf("GET /data = %d: %q", code, body)
	}

	// reading past the end returns what is there
	code, body = call(t, srv, "GET", "/data?offset=524280&length=100", nil)
	if code != http.StatusOK || len(body) != 8 {
		t.Errorf("GET /data at end = %d, %d bytes", code, len(body))
	}
}

func TestAPIInitDeinit(t *testing.T) {
	srv := newTestServer(t, sim.Config{HighCapacity: true}, false)

	if code, body := call(t, srv, "PUT", "/deinit", nil); code != http.StatusConflict {
		t.Errorf("PUT /deinit without bus = %d: %s", code, body)
	}
	if code, body := call(t, srv, "PUT", "/init", nil); code != http.StatusOK {
		t.Fatalf("PUT /init = %d: %s", code, body)
	}
	if code, _ := call(t, srv, "GET", "/sector/1", nil); code != http.StatusOK {
		t.Errorf("GET /sector/1 after init = %d", code)
	}
	if code, body := call(t, srv, "PUT", "/deinit", nil); code != http.StatusOK {
		t.Fatalf("PUT /deinit = %d: %s", code, body)
	}
	if code, _ := call(t, srv, "GET", "/sector/1", nil); code != http.StatusConflict {
		t.Errorf("GET /sector/1 after deinit = %d", code)
	}
}

func TestAPIInitWriteProtected(t *testing.T) {
	srv := newTestServer(t, sim.Config{WriteProtect: true}, false)
	if code, body := call(t, srv, "PUT", "/init", nil); code != http.StatusBadGateway {
		t.Errorf("PUT /init = %d: %s", code, body)
	}
}

func TestAPIStatus(t *testing.T) {
	srv := newTestServer(t, sim.Config{HighCapacity: true}, true)

	req, _ := http.NewRequest("GET", srv.URL+"/status", nil)
	req.Header.Set("Accept", "application/json")
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var st Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("cannot decode status: %v", err)
	}
	if !st.Initialized || !st.HighCapacity || st.Sectors != 1024 || st.Version != 2 {
		t.Errorf("status = %+v", st)
	}

	code, body := call(t, srv, "GET", "/status", nil)
	if code != http.StatusOK ||
		!strings.Contains(string(body), "initialized|high-capacity") ||
		!strings.Contains(string(body), "1024 sectors, 512.0 KiB") {
		t.Errorf("GET /status = %d:\n%s", code, body)
	}
}

func TestHumanSize(t *testing.T) {
	tests := []struct {
		bytes    uint64
		expected string
	}{
		{100, "100 B"},
		{32768, "32.0 KiB"},
		{2 * 1024 * 1024 * 1024, "2.0 GiB"},
	}
	for _, tt := range tests {
		if got := humanSize(tt.bytes); got != tt.expected {
			t.Errorf("humanSize(%d) = %q, want %q", tt.bytes, got, tt.expected)
		}
	}
}

func TestAPISectorBeyondStandardCapacityCard(t *testing.T) {
	srv := newTestServer(t, sim.Config{Version: 2}, true)

	first := bytes.Repeat([]byte{0x11}, sdcard.SectorSize)
	if code, body := call(t, srv, "PUT", "/sector/1", first); code != http.StatusOK {
		t.Fatalf("PUT /sector/1 = %d: %s", code, body)
	}

	other := bytes.Repeat([]byte{0xAB}, sdcard.SectorSize)
	for _, path := range []string{"/sector/1024", "/sector/8388609"} {
		if code, body := call(t, srv, "PUT", path, other); code !=
			http.StatusUnprocessableEntity {
			t.Errorf("PUT %s = %d, want %d: %s",
				path, code, http.StatusUnprocessableEntity, body)
		}
		if code, _ := call(t, srv, "GET", path, nil); code !=
			http.StatusUnprocessableEntity {
			t.Errorf("GET %s = %d, want %d",
				path, code, http.StatusUnprocessableEntity)
		}
	}

	code, body := call(t, srv, "GET", "/sector/1", nil)
	if code != http.StatusOK {
		t.Fatalf("GET /sector/1 = %d: %s", code, body)
	}
	if !bytes.Equal(body, first) {
		t.Error("sector 1 overwritten")
	}
}
