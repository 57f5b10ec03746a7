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

/*
	Package sim provides a simulated SD card that speaks SPI mode. It plugs in
	as the bus of an sdcard.Device and answers byte by byte like a real card
	would, including CRC checks, the idle and busy states, data tokens and data
	CRCs. Behavior that is hard to provoke with real hardware, such as corrupted
	transfers, write protection or a card that never answers, can be switched on
	through the Config.
*/
package sim

import (
	"encoding/binary"

	log "github.com/sirupsen/logrus"

	"github.com/xelalexv/sdspi/pkg/sdcard"
)

// command codes the card understands
const (
	cmdGoIdleState     = 0
	cmdSendIfCond      = 8
	cmdSendCSD         = 9
	cmdSetBlockLen     = 16
	cmdReadSingleBlock = 17
	cmdWriteBlock      = 24
	cmdSendOpCond      = 41
	cmdAppCmd          = 55
	cmdReadOCR         = 58
	cmdCRCOnOff        = 59
)

// R1 bits
const (
	r1Ready          = 0x00
	r1Idle           = 0x01
	r1IllegalCommand = 0x04
	r1CRCError       = 0x08
	r1AddressError   = 0x20
	r1ParameterError = 0x40
)

// data response tokens
const (
	dataAccepted   = 0x05
	dataCRCError   = 0x0B
	dataWriteError = 0x0D
)

//
const idleByte = 0xFF
const tokenStartBlock = 0xFE

// Config describes the simulated card.
type Config struct {
	// Version is the SD protocol version, 1 or 2; defaults to 2
	Version int
	// HighCapacity makes a version 2 card block addressed
	HighCapacity bool
	// WriteProtect sets the write protection bits in the CSD register
	WriteProtect bool
	// Latency is the number of filler bytes sent ahead of each response
	Latency int
	// OpCondDelay is the number of ACMD41 the card answers with idle state,
	// before it finishes initialization
	OpCondDelay int
	// BusyBytes is the number of busy bytes after a block write
	BusyBytes int
	// CorruptReadCRC makes the card send a wrong CRC with every data block
	CorruptReadCRC bool
	// Dead makes the card ignore everything
	Dead bool
}

// Stats are counters of what happened on the simulated bus.
type Stats struct {
	Selects     int
	Transfers   int
	Bytes       int
	Commands    map[byte]int
	LastCommand byte
	LastArg     uint32
	Rate        uint32
}

//
type parseState int

const (
	stateCommand parseState = iota
	stateWriteToken
	stateWriteData
)

// Card is a simulated SD card. It implements sdcard.Bus.
type Card struct {
	cfg   Config
	image *Image
	//
	selected bool
	state    parseState
	cmd      []byte
	out      []byte
	//
	idle        bool
	crcOn       bool
	appCmd      bool
	opCondTries int
	//
	writeBlock uint64
	writeBuf   []byte
	//
	stats Stats
}

// NewCard creates a simulated card with the given configuration, backed by
// image.
func NewCard(cfg Config, image *Image) *Card {
	if cfg.Version != 1 {
		cfg.Version = 2
	}
	if cfg.Version == 1 {
		cfg.HighCapacity = false
	}
	return &Card{
		cfg:   cfg,
		image: image,
		cmd:   make([]byte, 0, 6),
		idle:  true,
		stats: Stats{Commands: map[byte]int{}},
	}
}

// Stats returns a snapshot of the bus counters.
func (c *Card) Stats() Stats {
	ret := c.stats
	ret.Commands = make(map[byte]int, len(c.stats.Commands))
	for k, v := range c.stats.Commands {
		ret.Commands[k] = v
	}
	return ret
}

// Image returns the storage behind the card.
func (c *Card) Image() *Image {
	return c.image
}

// Close closes the card's image.
func (c *Card) Close() error {
	return c.image.Close()
}

// Select implements sdcard.Bus. Releasing chip-select drops any response the
// card still had pending, and aborts a partially received command.
func (c *Card) Select(active bool) error {
	if active && !c.selected {
		c.stats.Selects++
	}
	if !active {
		c.out = c.out[:0]
		c.cmd = c.cmd[:0]
		if c.state == stateWriteData {
			log.Warn("simulated card: chip-select released during data phase")
		}
		c.state = stateCommand
	}
	c.selected = active
	return nil
}

// SetRate implements sdcard.Bus.
func (c *Card) SetRate(hz uint32) error {
	c.stats.Rate = hz
	return nil
}

// Transfer implements sdcard.Bus. Each byte sent is exchanged against the
// next byte the card has queued for output, or idle filler if there is none.
func (c *Card) Transfer(data []byte, receive bool) error {

	c.stats.Transfers++
	c.stats.Bytes += len(data)

	for ix, tx := range data {
		var rx byte = idleByte
		if c.selected && !c.cfg.Dead {
			rx = c.next()
			c.feed(tx)
		}
		if receive {
			data[ix] = rx
		}
	}

	return nil
}

//
func (c *Card) next() byte {
	if len(c.out) == 0 {
		return idleByte
	}
	ret := c.out[0]
	c.out = c.out[1:]
	return ret
}

//
func (c *Card) queue(data ...byte) {
	c.out = append(c.out, data...)
}

//
func (c *Card) respond(data ...byte) {
	for ix := 0; ix < c.cfg.Latency; ix++ {
		c.queue(idleByte)
	}
	c.queue(data...)
}

//
func (c *Card) feed(tx byte) {

	switch c.state {

	case stateCommand:
		if len(c.cmd) == 0 && tx&0xc0 != 0x40 {
			return // filler, or stray bits
		}
		c.cmd = append(c.cmd, tx)
		if len(c.cmd) == cap(c.cmd) {
			c.execute()
			c.cmd = c.cmd[:0]
		}

	case stateWriteToken:
		if tx == tokenStartBlock {
			c.writeBuf = c.writeBuf[:0]
			c.state = stateWriteData
		}

	case stateWriteData:
		c.writeBuf = append(c.writeBuf, tx)
		if len(c.writeBuf) == sdcard.SectorSize+2 {
			c.finishWrite()
			c.state = stateCommand
		}
	}
}

//
func (c *Card) r1() byte {
	if c.idle {
		return r1Idle
	}
	return r1Ready
}

//
func (c *Card) execute() {

	cmd := c.cmd[0] & 0x3f
	arg := binary.BigEndian.Uint32(c.cmd[1:5])

	c.stats.Commands[cmd]++
	c.stats.LastCommand = cmd
	c.stats.LastArg = arg

	log.WithFields(log.Fields{
		"cmd": cmd, "arg": arg}).Trace("simulated card: command")

	if (c.crcOn || cmd == cmdGoIdleState || cmd == cmdSendIfCond) &&
		sdcard.CRC7(c.cmd[:5]) != c.cmd[5] {
		c.appCmd = false
		c.respond(c.r1() | r1CRCError)
		return
	}

	app := c.appCmd
	c.appCmd = false

	switch {

	case cmd == cmdGoIdleState:
		c.idle = true
		c.crcOn = false
		c.opCondTries = 0
		c.respond(r1Idle)

	case cmd == cmdSendIfCond:
		if c.cfg.Version == 1 {
			c.respond(r1Idle | r1IllegalCommand)
		} else {
			c.respond(c.r1(), 0, 0, byte(arg>>8)&0x0f, byte(arg))
		}

	case cmd == cmdCRCOnOff:
		c.crcOn = arg&1 != 0
		c.respond(c.r1())

	case cmd == cmdReadOCR:
		c.respond(append([]byte{c.r1()}, c.ocr()...)...)

	case cmd == cmdAppCmd:
		c.appCmd = true
		c.respond(c.r1())

	case cmd == cmdSendOpCond && app:
		c.opCondTries++
		if c.opCondTries > c.cfg.OpCondDelay {
			c.idle = false
		}
		c.respond(c.r1())

	case cmd == cmdSetBlockLen:
		if arg != sdcard.SectorSize {
			c.respond(c.r1() | r1ParameterError)
		} else {
			c.respond(c.r1())
		}

	case cmd == cmdSendCSD:
		c.respond(c.r1())
		c.sendDataPacket(c.csd())

	case cmd == cmdReadSingleBlock:
		block, ok := c.block(arg)
		if !ok || c.idle {
			c.respond(c.r1() | r1AddressError)
			return
		}
		buf := make([]byte, sdcard.SectorSize)
		if err := c.image.readSector(block, buf); err != nil {
			log.Errorf("simulated card: %v", err)
			c.respond(c.r1() | r1AddressError)
			return
		}
		c.respond(c.r1())
		c.sendDataPacket(buf)

	case cmd == cmdWriteBlock:
		block, ok := c.block(arg)
		if !ok || c.idle {
			c.respond(c.r1() | r1AddressError)
			return
		}
		c.writeBlock = block
		c.state = stateWriteToken
		c.respond(c.r1())

	default:
		c.respond(c.r1() | r1IllegalCommand)
	}
}

// block translates a protocol address into a block index
func (c *Card) block(arg uint32) (uint64, bool) {
	var ret uint64
	if c.cfg.HighCapacity {
		ret = uint64(arg)
	} else {
		if arg%sdcard.SectorSize != 0 {
			return 0, false
		}
		ret = uint64(arg / sdcard.SectorSize)
	}
	return ret, ret < c.image.Sectors()
}

//
func (c *Card) sendDataPacket(data []byte) {
	crc := sdcard.CRC16(data)
	if c.cfg.CorruptReadCRC {
		crc ^= 0x0001
	}
	for ix := 0; ix < c.cfg.Latency; ix++ {
		c.queue(idleByte)
	}
	c.queue(tokenStartBlock)
	c.queue(data...)
	c.queue(byte(crc>>8), byte(crc))
}

//
func (c *Card) finishWrite() {

	data := c.writeBuf[:sdcard.SectorSize]
	crc := binary.BigEndian.Uint16(c.writeBuf[sdcard.SectorSize:])

	if c.crcOn && sdcard.CRC16(data) != crc {
		c.queue(dataCRCError)
		return
	}

	if c.cfg.WriteProtect {
		c.queue(dataWriteError)
		return
	}

	if err := c.image.writeSector(c.writeBlock, data); err != nil {
		log.Errorf("simulated card: %v", err)
		c.queue(dataWriteError)
		return
	}

	c.queue(dataAccepted)
	for ix := 0; ix < c.cfg.BusyBytes; ix++ {
		c.queue(0x00)
	}
}

// ocr returns the 4 bytes of the operation conditions register
func (c *Card) ocr() []byte {
	ret := []byte{0x00, 0xff, 0x80, 0x00} // 2.7-3.6V
	if !c.idle {
		ret[0] |= 0x80 // power up complete
		if c.cfg.HighCapacity {
			ret[0] |= 0x40
		}
	}
	return ret
}

// csd returns the card specific data register, matching the image size
func (c *Card) csd() []byte {

	csd := make([]byte, 16)
	sectors := c.image.Sectors()

	if c.cfg.HighCapacity {
		size := sectors/1024 - 1
		if sectors < 1024 {
			size = 0
		}
		csd[0] = 0x40
		csd[5] = 0x59 // READ_BL_LEN 512
		csd[7] = byte(size>>16) & 0x3f
		csd[8] = byte(size >> 8)
		csd[9] = byte(size)

	} else {
		// READ_BL_LEN 512, each C_SIZE unit is 2^(C_SIZE_MULT+2) sectors
		var mult uint
		for mult < 7 && sectors>>(mult+2) > 0x1000 {
			mult++
		}
		size := sectors >> (mult + 2)
		if size > 0 {
			size--
		}
		if size > 0x0fff {
			size = 0x0fff
		}
		csd[5] = 0x59
		csd[6] = byte(size>>10) & 0x03
		csd[7] = byte(size >> 2)
		csd[8] = byte(size&0x03) << 6
		csd[9] = byte(mult>>1) & 0x03
		csd[10] = byte(mult&0x01) << 7
	}

	if c.cfg.WriteProtect {
		csd[14] |= 0x30
	}
	csd[15] = sdcard.CRC7(csd[:15])

	return csd
}
