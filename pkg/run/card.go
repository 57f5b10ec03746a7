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
	"fmt"
	"net/http"
)

//
func NewInit() *Card {
	return newCard("init", "(re-)initialize card",
		`Use the init command for initializing the card, e.g. after it was swapped.
This resets any faults recorded for the card.`, "/init")
}

//
func NewDeinit() *Card {
	return newCard("deinit", "deinitialize card",
		`Use the deinit command for putting the card into idle state, e.g. before
removing it. The card is not accessible again until the next init.`,
		"/deinit")
}

//
func newCard(use, short, long, path string) *Card {

	c := &Card{path: path}
	c.Runner = *NewRunner(
		use+" [-s|--server {host}] [-p|--port {port}]", short, long,
		"", runnerHelpEpilogue, c.Run)

	c.AddBaseSettings()
	c.AddServerSetting()

	return c
}

// Card is a command that changes the card's state on the daemon.
type Card struct {
	//
	Runner
	//
	path string
}

//
func (c *Card) Run() error {

	if err := c.ParseSettings(); err != nil {
		return err
	}

	msg, err := c.apiRequest(http.MethodPut, c.path, nil)
	if err != nil {
		return err
	}
	fmt.Println(msg)
	return nil
}
