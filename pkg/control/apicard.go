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
	"net/http"
)

//
func (a *api) status(w http.ResponseWriter, req *http.Request) {
	stat := &Status{Status: *a.daemon.Status()}
	if wantsJSON(req) {
		sendJSONReply(stat, http.StatusOK, w)
	} else {
		sendReply([]byte(stat.String()), http.StatusOK, w)
	}
}

//
func (a *api) initCard(w http.ResponseWriter, req *http.Request) {
	if err := a.daemon.Reinit(); err != nil {
		handleError(err, statusFor(err), w)
		return
	}
	sendReply([]byte("card initialized"), http.StatusOK, w)
}

//
func (a *api) deinitCard(w http.ResponseWriter, req *http.Request) {
	if err := a.daemon.Deinit(); err != nil {
		handleError(err, statusFor(err), w)
		return
	}
	sendReply([]byte("card deinitialized"), http.StatusOK, w)
}
