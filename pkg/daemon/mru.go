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

package daemon

import (
	log "github.com/sirupsen/logrus"

	"github.com/xelalexv/sdspi/pkg/sdcard"
)

//
type entry struct {
	index uint32
	data  []byte
}

// mru keeps the most recently used sectors, most recent first
type mru struct {
	size    int
	entries []*entry
}

//
func newMRU(size int) *mru {
	return &mru{size: size}
}

//
func (m *mru) reset() {
	log.Trace("MRU reset")
	m.entries = nil
}

//
func (m *mru) find(index uint32) int {
	for ix, e := range m.entries {
		if e.index == index {
			return ix
		}
	}
	return -1
}

// touch moves entry at ix to the front
func (m *mru) touch(ix int) *entry {
	e := m.entries[ix]
	copy(m.entries[1:ix+1], m.entries[:ix])
	m.entries[0] = e
	return e
}

//
func (m *mru) get(index uint32, buf []byte) bool {
	ix := m.find(index)
	if ix < 0 {
		return false
	}
	copy(buf, m.touch(ix).data)
	log.WithField("sector", index).Trace("MRU hit")
	return true
}

//
func (m *mru) put(index uint32, buf []byte) {

	if m.size <= 0 {
		return
	}

	if ix := m.find(index); ix >= 0 {
		copy(m.touch(ix).data, buf)
		return
	}

	var e *entry
	if len(m.entries) < m.size {
		e = &entry{data: make([]byte, sdcard.SectorSize)}
		m.entries = append(m.entries, e)
	} else {
		e = m.entries[len(m.entries)-1] // evict least recently used
	}

	e.index = index
	copy(e.data, buf)
	m.touch(len(m.entries) - 1)
}

//
func (m *mru) drop(index uint32) {
	if ix := m.find(index); ix >= 0 {
		log.WithField("sector", index).Trace("MRU drop")
		m.entries = append(m.entries[:ix], m.entries[ix+1:]...)
	}
}
