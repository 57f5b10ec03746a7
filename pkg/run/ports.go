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
	"encoding/json"
	"fmt"
	"os"

	"github.com/xelalexv/sdspi/pkg/hal/bridge"
)

//
func NewPorts() *Ports {

	p := &Ports{}
	p.Command = *NewCommand(
		"ports [-a|--all] [-j|--json]",
		"list serial ports for bridge adapter",
		`Use the ports command to find the serial port of an SPI bridge adapter. This
lists USB serial ports on the local host, and does not talk to the daemon.`,
		"", "", p.Run)

	p.AddSetting(&p.All, "all", "a", "", false,
		"list all serial ports, not just USB", false)
	p.AddSetting(&p.JSON, "json", "j", "", false,
		"list as JSON", false)

	return p
}

//
type Ports struct {
	//
	Command
	//
	All  bool
	JSON bool
}

//
func (p *Ports) Run() error {

	if err := p.ParseSettings(); err != nil {
		return err
	}

	ports, err := bridge.Ports(!p.All)
	if err != nil {
		return err
	}

	if p.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(ports)
	}

	if len(ports) == 0 {
		fmt.Println("no serial ports found")
		return nil
	}
	for _, port := range ports {
		fmt.Println(port)
	}
	return nil
}
