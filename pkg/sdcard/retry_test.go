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

package sdcard

import (
	"testing"
)

func TestCheckCommand(t *testing.T) {
	tests := []struct {
		name       string
		replies    []byte // one reply per attempt, filler when exhausted
		ok         match
		attempts   int
		expected   bool
		wantFrames int
		wantSleeps int
	}{
		{
			name:       "never matches",
			replies:    []byte{0x05, 0x05, 0x05, 0x05, 0x05, 0x05, 0x05},
			ok:         equals(r1Idle),
			attempts:   7,
			expected:   false,
			wantFrames: 7,
			wantSleeps: 6,
		},
		{
			name:       "matches on third attempt",
			replies:    []byte{0x05, 0x05, 0x01},
			ok:         equals(r1Idle),
			attempts:   7,
			expected:   true,
			wantFrames: 3,
			wantSleeps: 2,
		},
		{
			name:       "first attempt, no delay",
			replies:    []byte{0x01},
			ok:         equals(r1Idle),
			attempts:   50,
			expected:   true,
			wantFrames: 1,
			wantSleeps: 0,
		},
		{
			name:       "differs accepts any non-filler response",
			replies:    []byte{0xFF, 0x05},
			ok:         differs(idleByte),
			attempts:   3,
			expected:   true,
			wantFrames: 2,
			wantSleeps: 1,
		},
		{
			name:       "differs rejects filler throughout",
			ok:         differs(idleByte),
			attempts:   3,
			expected:   false,
			wantFrames: 3,
			wantSleeps: 2,
		},
		{
			name:       "single attempt",
			replies:    []byte{0x00},
			ok:         equals(r1Idle),
			attempts:   1,
			expected:   false,
			wantFrames: 1,
			wantSleeps: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			replies := tt.replies
			bus := newFakeBus(func(data []byte) []byte {
				if len(data) != frameLength || len(replies) == 0 {
					return nil
				}
				r := replies[0]
				replies = replies[1:]
				return []byte{r}
			})
			d, clock := newTestDevice(bus)

			got, err := d.checkCommand(cmdGoIdleState, 0, make([]byte, respLength),
				0, tt.ok, tt.attempts)
			if err != nil {
				t.Fatalf("checkCommand() error = %v", err)
			}
			if got != tt.expected {
				t.Errorf("checkCommand() = %v, want %v", got, tt.expected)
			}
			if len(bus.frames) != tt.wantFrames {
				t.Errorf("attempts = %d, want %d", len(bus.frames), tt.wantFrames)
			}
			if len(clock.sleeps) != tt.wantSleeps {
				t.Errorf("delays = %d, want %d", len(clock.sleeps), tt.wantSleeps)
			}
			for _, s := range clock.sleeps {
				if s != retryDelay {
					t.Errorf("delay = %v, want %v", s, retryDelay)
				}
			}
			if bus.selects != bus.releases {
				t.Errorf("selects/releases = %d/%d", bus.selects, bus.releases)
			}
		})
	}
}
