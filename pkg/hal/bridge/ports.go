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

package bridge

import (
	"fmt"

	"go.bug.st/serial/enumerator"
)

// PortInfo describes a serial port an adapter may be attached to.
type PortInfo struct {
	Name    string `json:"name"`
	USB     bool   `json:"usb"`
	VID     string `json:"vid,omitempty"`
	PID     string `json:"pid,omitempty"`
	Serial  string `json:"serial,omitempty"`
	Product string `json:"product,omitempty"`
}

//
func (p PortInfo) String() string {
	if !p.USB {
		return p.Name
	}
	ret := fmt.Sprintf("%s  [%s:%s]", p.Name, p.VID, p.PID)
	if p.Product != "" {
		ret = fmt.Sprintf("%s %s", ret, p.Product)
	}
	if p.Serial != "" {
		ret = fmt.Sprintf("%s, serial %s", ret, p.Serial)
	}
	return ret
}

// Ports lists the serial ports present on this system. With usbOnly set,
// only USB serial ports are included, which is where adapters show up.
func Ports(usbOnly bool) ([]PortInfo, error) {

	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("cannot list serial ports: %w", err)
	}

	var ret []PortInfo
	for _, d := range details {
		if usbOnly && !d.IsUSB {
			continue
		}
		ret = append(ret, PortInfo{
			Name:    d.Name,
			USB:     d.IsUSB,
			VID:     d.VID,
			PID:     d.PID,
			Serial:  d.SerialNumber,
			Product: d.Product,
		})
	}

	return ret, nil
}
