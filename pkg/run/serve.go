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
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/xelalexv/sdspi/pkg/control"
	"github.com/xelalexv/sdspi/pkg/daemon"
	"github.com/xelalexv/sdspi/pkg/hal/bridge"
	"github.com/xelalexv/sdspi/pkg/hal/periph"
	"github.com/xelalexv/sdspi/pkg/hal/sim"
	"github.com/xelalexv/sdspi/pkg/sdcard"
)

//
func NewServe() *Serve {

	s := &Serve{}
	s.Runner = *NewRunner(
		`serve {-b|--bridge {serial port} | --spi {SPI port} --cs {pin} | -i|--image {file}}
      [-a|--address {address}] [-p|--port {port}] [--init-rate {Hz}] [--rate {Hz}]`,
		"daemon & API server command",
		`Use the serve command for running the card daemon and API server. The card is
reached through exactly one of these buses:

  --bridge	a USB-serial SPI bridge adapter on the given serial port
  --spi/--cs	a native SPI port and GPIO chip-select pin of the host
  --image	a simulated card backed by an image file`,
		"", loggingHelp+runnerHelpEpilogue, s.Run)

	s.AddBaseSettings()
	s.AddSetting(&s.Address, "address", "a", "SDSPI_ADDRESS", nil,
		"address to listen on for API server, all interfaces if omitted",
		false)
	s.AddSetting(&s.Bridge, "bridge", "b", "SDSPI_BRIDGE", nil,
		"serial port device of SPI bridge adapter", false)
	s.AddSetting(&s.SPI, "spi", "", "SDSPI_SPI", nil,
		"native SPI port, e.g. /dev/spidev0.0 or SPI0.0", false)
	s.AddSetting(&s.CS, "cs", "", "SDSPI_CS", nil,
		"GPIO pin used as chip-select for native SPI port, e.g. GPIO25", false)
	s.AddSetting(&s.Image, "image", "i", "SDSPI_IMAGE", nil,
		"image file for simulated card", false)
	s.AddSetting(&s.ImageSectors, "image-sectors", "", "", 65536,
		"size in sectors when creating a new image file", false)
	s.AddSetting(&s.SimVersion, "sim-version", "", "", 2,
		"protocol version of simulated card, 1 or 2", false)
	s.AddSetting(&s.SimHighCapacity, "sim-high-capacity", "", "", true,
		"whether simulated version 2 card is high capacity", false)
	s.AddSetting(&s.InitRate, "init-rate", "", "", 0,
		"bus clock rate during card initialization in Hz, 400kHz if omitted",
		false)
	s.AddSetting(&s.Rate, "rate", "", "", 0,
		"bus clock rate for data transfer in Hz, 4MHz if omitted", false)

	return s
}

//
type Serve struct {
	//
	Runner
	//
	Address string
	//
	Bridge          string
	SPI             string
	CS              string
	Image           string
	ImageSectors    int
	SimVersion      int
	SimHighCapacity bool
	//
	InitRate int
	Rate     int
}

// opener selects the card bus from the settings
func (s *Serve) opener() (string, daemon.Opener, error) {

	count := 0
	for _, b := range []string{s.Bridge, s.SPI, s.Image} {
		if b != "" {
			count++
		}
	}
	if count != 1 {
		return "", nil, errors.New(
			"you need to specify exactly one of --bridge, --spi, or --image")
	}

	switch {

	case s.Bridge != "":
		port := s.Bridge
		return port, func() (daemon.Bus, error) {
			return bridge.Open(port)
		}, nil

	case s.SPI != "":
		if s.CS == "" {
			return "", nil, errors.New(
				"native SPI port requires a chip-select pin via --cs")
		}
		port, cs := s.SPI, s.CS
		return fmt.Sprintf("%s/%s", port, cs), func() (daemon.Bus, error) {
			return periph.Open(port, cs)
		}, nil

	default:
		if s.SimVersion != 1 && s.SimVersion != 2 {
			return "", nil, fmt.Errorf(
				"invalid simulated card version: %d", s.SimVersion)
		}
		if s.ImageSectors < 0 {
			return "", nil, fmt.Errorf(
				"invalid image size: %d sectors", s.ImageSectors)
		}
		cfg := sim.Config{
			Version:      s.SimVersion,
			HighCapacity: s.SimVersion == 2 && s.SimHighCapacity,
		}
		path, sectors := s.Image, uint64(s.ImageSectors)
		return "sim:" + path, func() (daemon.Bus, error) {
			img, err := sim.OpenImage(path, sectors)
			if err != nil {
				return nil, err
			}
			return sim.NewCard(cfg, img), nil
		}, nil
	}
}

//
func (s *Serve) options() ([]sdcard.Option, error) {
	if s.InitRate < 0 || s.Rate < 0 {
		return nil, errors.New("bus clock rates cannot be negative")
	}
	if s.InitRate == 0 && s.Rate == 0 {
		return nil, nil
	}
	return []sdcard.Option{
		sdcard.WithRates(uint32(s.InitRate), uint32(s.Rate))}, nil
}

//
func (s *Serve) Run() error {

	if err := s.ParseSettings(); err != nil {
		return err
	}

	name, open, err := s.opener()
	if err != nil {
		return err
	}
	opts, err := s.options()
	if err != nil {
		return err
	}

	wg := &sync.WaitGroup{}
	wg.Add(2)

	d := daemon.NewDaemon(name, open, opts...)
	go func() {
		defer wg.Done()
		err := d.Serve()
		if err != nil && err != daemon.ErrDaemonStopped {
			log.Errorf("daemon closed with error: %v", err)
		} else {
			log.Info("daemon stopped")
		}
	}()

	api := control.NewAPIServer(fmt.Sprintf("%s:%d", s.Address, s.Port), d)
	go func() {
		defer wg.Done()
		if err := api.Serve(); err != nil {
			log.Errorf("API server closed with error: %v", err)
		} else {
			log.Info("API server stopped")
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	sigCount := 0
	done := make(chan bool)

	for {

		select {

		case sig := <-sigs: // interrupt signal
			log.WithField("signal", sig).Info("signal received")
			sigCount++

			switch sigCount {

			case 1:
				go func() {
					log.Info("shutting down, hit Ctrl-C twice to force exit...")
					api.Stop()
					d.Stop()
					wg.Wait()
					log.Info("SDSPI stopped")
					done <- true
				}()

			case 2:
				log.Warn("shutdown in progress, hit Ctrl-C again to force exit")

			default:
				log.Warn("forcing daemon to stop immediately")
				os.Exit(1)
			}

		case <-done: // shutdown sequence complete
			return nil
		}
	}
}
