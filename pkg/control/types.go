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
	"fmt"
	"strings"

	"github.com/xelalexv/sdspi/pkg/daemon"
	"github.com/xelalexv/sdspi/pkg/sdcard"
)

//
type Status struct {
	daemon.Status
}

//
func (s *Status) String() string {

	var b strings.Builder

	line := func(key, format string, args ...interface{}) {
		fmt.Fprintf(&b, "%-12s %s\n", key+":", fmt.Sprintf(format, args...))
	}

	b.WriteString("\n")
	line("bus", "%s", s.Bus)

	if !s.Open {
		line("card", "<bus not open>")
	} else {
		line("state", "%s", s.State)
		line("faults", "%s", s.Faults)
		if s.Version > 0 {
			line("version", "%d", s.Version)
		}
		if s.Sectors > 0 {
			line("capacity", "%d sectors, %s", s.Sectors,
				humanSize(s.Sectors*sdcard.SectorSize))
			line("csd", "%s", s.CSD)
		}
	}

	if s.LastError != "" {
		line("last error", "%s", s.LastError)
	}

	return b.String()
}

//
func humanSize(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
