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
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/xelalexv/sdspi/pkg/sdcard"
)

//
var ErrDaemonStopped = errors.New("daemon stopped")
var ErrNoCard = errors.New("no card bus open")

// Bus is a card bus the daemon can close again.
type Bus interface {
	sdcard.Bus
	io.Closer
}

// Opener opens the bus the card is attached to.
type Opener func() (Bus, error)

//
const defaultCacheSize = 16

//
const (
	initialBackoff = time.Second
	maxBackoff     = 15 * time.Second
)

/*
	Daemon is the single owner of the card. It opens the bus and brings up the
	card. All access to the card goes through the daemon's lock.
*/
type Daemon struct {
	//
	name    string
	open    Opener
	options []sdcard.Option
	//
	mutex  sync.Mutex
	bus    Bus
	device *sdcard.Device
	cache  *mru
	//
	lastErr error
	//
	stop     chan struct{}
	stopOnce sync.Once
	//
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewDaemon creates a daemon for the card on the bus named name, which is
// opened with open. options are passed on to the card's device.
func NewDaemon(name string, open Opener, options ...sdcard.Option) *Daemon {
	return &Daemon{
		name:           name,
		open:           open,
		options:        options,
		cache:          newMRU(defaultCacheSize),
		stop:           make(chan struct{}),
		initialBackoff: initialBackoff,
		maxBackoff:     maxBackoff,
	}
}

/*
	Serve brings up the card, retrying with exponential backoff until it
	succeeds, and then keeps the daemon alive until Stop is called. It always
	returns ErrDaemonStopped.
*/
func (d *Daemon) Serve() error {

	for backoff := d.initialBackoff; ; {

		err := d.Reinit()
		if err == nil {
			break
		}
		log.Errorf("cannot bring up card, retrying in %v: %v", backoff, err)

		select {
		case <-d.stop:
			return ErrDaemonStopped
		case <-time.After(backoff):
		}

		if backoff *= 2; backoff > d.maxBackoff {
			backoff = d.maxBackoff
		}
	}

	<-d.stop
	return ErrDaemonStopped
}

// Stop deinitializes the card, closes the bus, and makes Serve return.
func (d *Daemon) Stop() {
	d.stopOnce.Do(func() {
		close(d.stop)
		d.mutex.Lock()
		defer d.mutex.Unlock()
		if d.device != nil {
			d.device.Deinit()
		}
		d.closeBus()
		log.Info("daemon stopped")
	})
}

//
func (d *Daemon) stopped() bool {
	select {
	case <-d.stop:
		return true
	default:
		return false
	}
}

// openBus opens the bus if not already open; caller needs to hold the lock
func (d *Daemon) openBus() error {

	if d.bus != nil {
		return nil
	}

	log.Infof("opening card bus %s", d.name)
	bus, err := d.open()
	if err != nil {
		return fmt.Errorf("cannot open card bus %s: %w", d.name, err)
	}

	d.bus = bus
	d.device = sdcard.New(bus, d.options...)
	return nil
}

// closeBus closes the bus if open; caller needs to hold the lock
func (d *Daemon) closeBus() {
	if d.bus == nil {
		return
	}
	log.Infof("closing card bus %s", d.name)
	if err := d.bus.Close(); err != nil {
		log.Errorf("error closing card bus: %v", err)
	}
	d.bus = nil
	d.device = nil
	d.cache.reset()
}

/*
	Reinit initializes the card, opening the bus first if needed. When
	initialization fails with an error of the bus itself rather than of the
	card, the bus is closed so that it gets opened again on the next attempt.
*/
func (d *Daemon) Reinit() error {

	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.stopped() {
		return ErrDaemonStopped
	}

	d.cache.reset()

	if err := d.openBus(); err != nil {
		d.lastErr = err
		return err
	}

	err := d.device.Init()
	d.lastErr = err

	var se *sdcard.StageError
	if err != nil && !errors.As(err, &se) {
		d.closeBus()
	}

	return err
}

// Deinit returns the card to idle state. I/O fails until the next Reinit.
func (d *Daemon) Deinit() error {

	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.device == nil {
		return ErrNoCard
	}

	d.cache.reset()
	d.device.Deinit()
	return nil
}

// ReadSector reads a sector, either from the cache or from the card.
func (d *Daemon) ReadSector(buf []byte, index uint32) error {

	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.device == nil {
		return ErrNoCard
	}

	if len(buf) == sdcard.SectorSize && d.cache.get(index, buf) {
		return nil
	}

	if err := d.device.ReadSector(buf, index); err != nil {
		d.lastErr = err
		return err
	}

	d.cache.put(index, buf)
	return nil
}

// WriteSector writes a sector to the card, keeping the cache up to date.
func (d *Daemon) WriteSector(buf []byte, index uint32) error {

	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.device == nil {
		return ErrNoCard
	}

	if err := d.device.WriteSector(buf, index); err != nil {
		// card content of this sector is unknown now
		d.cache.drop(index)
		d.lastErr = err
		return err
	}

	d.cache.put(index, buf)
	return nil
}

// SectorCount returns the card's capacity in sectors, 0 if not known.
func (d *Daemon) SectorCount() uint64 {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.device == nil {
		return 0
	}
	return d.device.SectorCount()
}

// Status is a snapshot of the daemon's and the card's state.
type Status struct {
	Bus          string `json:"bus"`
	Open         bool   `json:"open"`
	Initialized  bool   `json:"initialized"`
	HighCapacity bool   `json:"highCapacity"`
	State        string `json:"state"`
	Faults       string `json:"faults"`
	Version      int    `json:"version,omitempty"`
	Sectors      uint64 `json:"sectors"`
	CSD          string `json:"csd,omitempty"`
	LastError    string `json:"lastError,omitempty"`
}

//
func (d *Daemon) Status() *Status {

	d.mutex.Lock()
	defer d.mutex.Unlock()

	ret := &Status{
		Bus:    d.name,
		Open:   d.device != nil,
		State:  sdcard.State(0).String(),
		Faults: sdcard.Fault(0).String(),
	}

	if d.device != nil {
		st := d.device.State()
		ret.Initialized = st.Has(sdcard.Initialized)
		ret.HighCapacity = st.Has(sdcard.HighCapacity)
		ret.State = st.String()
		ret.Faults = d.device.Faults().String()
		ret.Version = d.device.Version()
		if ret.Sectors = d.device.SectorCount(); ret.Sectors > 0 {
			csd := d.device.CSD()
			ret.CSD = fmt.Sprintf("%x", csd[:])
		}
	}

	if d.lastErr != nil {
		ret.LastError = d.lastErr.Error()
	}

	return ret
}
