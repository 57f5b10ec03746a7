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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/xelalexv/sdspi/pkg/blockdev"
	"github.com/xelalexv/sdspi/pkg/daemon"
	"github.com/xelalexv/sdspi/pkg/sdcard"
)

// upper limit for data transferred in a single request
const maxDataLength = 1048576

//
type APIServer interface {
	Serve() error
	Stop() error
}

//
func NewAPIServer(addr string, d *daemon.Daemon) APIServer {
	return newAPI(addr, d)
}

//
func newAPI(addr string, d *daemon.Daemon) *api {
	return &api{address: addr, daemon: d, disk: blockdev.New(d)}
}

//
type api struct {
	address string
	daemon  *daemon.Daemon
	disk    *blockdev.Disk
	server  *http.Server
}

//
func (a *api) router() *mux.Router {

	router := mux.NewRouter().StrictSlash(true)

	addRoute(router, "status", "GET", "/status", a.status)
	addRoute(router, "init", "PUT", "/init", a.initCard)
	addRoute(router, "deinit", "PUT", "/deinit", a.deinitCard)
	addRoute(router, "read", "GET", "/sector/{index:[0-9]+}", a.readSector)
	addRoute(router, "write", "PUT", "/sector/{index:[0-9]+}", a.writeSector)
	addRoute(router, "readdata", "GET", "/data", a.readData)
	addRoute(router, "writedata", "PUT", "/data", a.writeData)

	return router
}

//
func (a *api) Serve() error {

	addr := a.address
	if len(strings.Split(addr, ":")) < 2 {
		addr = fmt.Sprintf("%s:8888", a.address)
	}

	log.Infof("SDSPI API starts listening on %s", addr)
	a.server = &http.Server{Addr: addr, Handler: a.router()}

	err := a.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

//
func (a *api) Stop() error {
	if a.server != nil {
		log.Info("API server stopping...")
		err := a.server.Shutdown(context.Background())
		a.server = nil
		return err
	}
	return nil
}

//
func addRoute(r *mux.Router, name, method, pattern string,
	handler http.HandlerFunc) {
	r.Methods(method).
		Path(pattern).
		Name(name).
		Handler(requestLogger(handler, name))
}

//
func requestLogger(inner http.Handler, name string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {

		log.WithFields(log.Fields{
			"remote": r.RemoteAddr,
			"method": r.Method,
			"path":   r.RequestURI,
		}).Debugf("API BEGIN | %s", name)

		start := time.Now()
		inner.ServeHTTP(w, r)

		log.WithFields(log.Fields{
			"remote":   r.RemoteAddr,
			"method":   r.Method,
			"path":     r.RequestURI,
			"duration": time.Since(start),
		}).Debugf("API END   | %s", name)
	})
}

// statusFor maps errors from the card to HTTP status codes. Anything not
// caused by card state or request is a failure talking to the card.
func statusFor(err error) int {
	switch {
	case errors.Is(err, sdcard.ErrNotReady), errors.Is(err, daemon.ErrNoCard),
		errors.Is(err, daemon.ErrDaemonStopped):
		return http.StatusConflict
	case errors.Is(err, sdcard.ErrBufferSize),
		errors.Is(err, sdcard.ErrAddressRange),
		errors.Is(err, blockdev.ErrOutOfRange):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}

//
func isFlagSet(req *http.Request, flag string) bool {
	arg, _ := getArg(req, flag)
	return arg == "true"
}

//
func getArg(req *http.Request, arg string) (string, error) {
	ret := req.URL.Query().Get(arg)
	if ret != "" {
		return url.QueryUnescape(ret)
	}
	return ret, nil
}

//
func getInt64Arg(req *http.Request, arg string, def int64) (int64, error) {
	val, err := getArg(req, arg)
	if err != nil {
		return -1, err
	}
	if val == "" {
		return def, nil
	}
	ret, err := strconv.ParseInt(val, 0, 64)
	if err != nil {
		return -1, fmt.Errorf("invalid value for '%s': %s", arg, val)
	}
	if ret < 0 {
		return -1, fmt.Errorf("'%s' must not be negative", arg)
	}
	return ret, nil
}

//
func setHeaders(h http.Header, contentType string) {
	h.Set("Content-Type", contentType)
}

//
func handleError(e error, statusCode int, w http.ResponseWriter) bool {

	if e == nil {
		return false
	}

	log.Errorf("%v", e)

	setHeaders(w.Header(), "text/plain; charset=UTF-8")
	w.WriteHeader(statusCode)
	if _, err := w.Write([]byte(fmt.Sprintf("%v\n", e))); err != nil {
		log.Errorf("problem writing error: %v", err)
	}

	return true
}

//
func sendReply(body []byte, statusCode int, w http.ResponseWriter) {
	setHeaders(w.Header(), "text/plain; charset=UTF-8")
	w.WriteHeader(statusCode)
	if _, err := fmt.Fprintf(w, "%s\n", body); err != nil {
		log.Errorf("problem sending reply: %v", err)
	}
}

//
func sendBinaryReply(body []byte, statusCode int, w http.ResponseWriter) {
	setHeaders(w.Header(), "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(statusCode)
	if _, err := w.Write(body); err != nil {
		log.Errorf("problem sending reply: %v", err)
	}
}

//
func sendJSONReply(obj interface{}, statusCode int, w http.ResponseWriter) {
	setHeaders(w.Header(), "application/json; charset=UTF-8")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(obj); err != nil {
		log.Errorf("problem writing error: %v", err)
	}
}

//
func wantsJSON(req *http.Request) bool {
	return strings.HasPrefix(req.Header.Get("Accept"), "application/json") ||
		req.Header.Get("Content-Type") == "application/json"
}

//
func readBody(req *http.Request) ([]byte, error) {
	defer req.Body.Close()
	data, err := io.ReadAll(io.LimitReader(req.Body, maxDataLength+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxDataLength {
		return nil, fmt.Errorf("request body exceeds %d bytes", maxDataLength)
	}
	return data, nil
}
