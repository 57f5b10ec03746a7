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

package main

import (
	"fmt"
	"os"

	"github.com/xelalexv/sdspi/pkg/run"
)

//
var SDSPIVersion string

//
func synopsis() {
	fmt.Print(`
synopsis: sdctl {serve|status|read|write|init|deinit|ports|version} ...

run 'sdctl {action} -h|--help' to see detailed info

`)
}

//
func version() {
	fmt.Printf("\nSDSPI %s\n\n", SDSPIVersion)
}

//
func main() {

	var action string
	var args []string

	if len(os.Args) > 1 {
		action = os.Args[1]
	}

	if len(os.Args) > 2 {
		args = os.Args[2:]
	}

	switch action {

	case "serve":
		version()
		run.DieOnError(run.NewServe().Execute(args))

	case "status":
		run.DieOnError(run.NewStatus().Execute(args))

	case "read":
		run.DieOnError(run.NewRead().Execute(args))

	case "write":
		run.DieOnError(run.NewWrite().Execute(args))

	case "init":
		run.DieOnError(run.NewInit().Execute(args))

	case "deinit":
		run.DieOnError(run.NewDeinit().Execute(args))

	case "ports":
		run.DieOnError(run.NewPorts().Execute(args))

	case "version":
		version()

	case "":
		fallthrough
	case "-h":
		fallthrough
	case "--help":
		synopsis()

	default:
		run.Die("unknown action: %s", action)
	}
}
