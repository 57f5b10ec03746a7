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
	"os"
	"strings"

	"github.com/mattn/go-tty"
	log "github.com/sirupsen/logrus"
)

/*
	GetUserConfirmation asks the user on the controlling terminal rather than
	standard input. Without a terminal, the answer is no.
*/
func GetUserConfirmation(prompt string) bool {

	t, err := tty.Open()
	if err != nil {
		log.Warnf("cannot ask for confirmation: %v", err)
		return false
	}
	defer t.Close()

	fmt.Fprintf(os.Stderr, "%s [y/N] ", prompt)
	res, err := t.ReadString()
	if err != nil {
		log.Warnf("cannot read confirmation: %v", err)
		return false
	}
	return isYes(res)
}

//
func isYes(answer string) bool {
	a := strings.ToLower(strings.TrimSpace(answer))
	return a == "y" || a == "yes"
}
