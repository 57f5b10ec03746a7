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
	"reflect"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

//
type settings struct {
	Name  string
	Count int
	Flag  bool
	List  []string
}

//
func newTestCommand(t *testing.T, s *settings, required bool) *Command {
	t.Helper()
	c := NewCommand("test", "", "", "", "", func() error { return nil })
	for _, err := range []error{
		c.addSetting(&s.Name, "name", "n", "TEST_NAME", nil, "name", required),
		c.addSetting(&s.Count, "count", "c", "TEST_COUNT", 3, "count", false),
		c.addSetting(&s.Flag, "flag", "f", "", false, "flag", false),
		c.addSetting(&s.List, "list", "l", "TEST_LIST", nil, "list", false),
	} {
		if err != nil {
			t.Fatalf("addSetting() error = %v", err)
		}
	}
	return c
}

func TestSettings(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		env      map[string]string
		expected settings
	}{
		{
			name:     "defaults",
			expected: settings{Count: 3},
		},
		{
			name: "flags",
			args: []string{"--name", "card", "-c", "7", "-f",
				"-l", "a,b", "rest"},
			expected: settings{Name: "card", Count: 7, Flag: true,
				List: []string{"a", "b"}},
		},
		{
			name: "environment",
			env: map[string]string{"TEST_NAME": "env", "TEST_COUNT": "11",
				"TEST_LIST": "x,y"},
			expected: settings{Name: "env", Count: 11, List: []string{"x", "y"}},
		},
		{
			name:     "flag overrides environment",
			args:     []string{"-n", "flag"},
			env:      map[string]string{"TEST_NAME": "env"},
			expected: settings{Name: "flag", Count: 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			var s settings
			c := newTestCommand(t, &s, false)
			c.cmd.RunE = func(*cobra.Command, []string) error {
				return c.ParseSettings()
			}
			if err := c.Execute(tt.args); err != nil {
				t.Fatalf("Execute() error = %v", err)
			}
			if !reflect.DeepEqual(s, tt.expected) {
				t.Errorf("settings = %+v, want %+v", s, tt.expected)
			}
		})
	}
}

func TestRequiredSetting(t *testing.T) {
	var s settings
	c := newTestCommand(t, &s, true)
	var parseErr error
	c.cmd.RunE = func(*cobra.Command, []string) error {
		parseErr = c.ParseSettings()
		return nil
	}

	if err := c.Execute(nil); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if parseErr == nil {
		t.Fatal("ParseSettings() without required setting succeeded")
	}
	for _, want := range []string{"--name", "TEST_NAME"} {
		if !strings.Contains(parseErr.Error(), want) {
			t.Errorf("error %q does not mention %s", parseErr, want)
		}
	}
}

func TestAddSettingErrors(t *testing.T) {
	var (
		str  string
		num  int
		ints []int
	)

	tests := []struct {
		name     string
		target   interface{}
		env      string
		def      interface{}
		required bool
	}{
		{name: "not a pointer", target: str},
		{name: "default for required", target: &str, def: "x", required: true},
		{name: "default of wrong type", target: &num, def: "x"},
		{name: "env on int slice", target: &ints, env: "TEST_INTS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCommand("test", "", "", "", "", func() error { return nil })
			if err := c.addSetting(tt.target, "setting", "", tt.env, tt.def,
				"", tt.required); err == nil {
				t.Error("addSetting() succeeded")
			}
		})
	}
}

func TestGetSettingUndefined(t *testing.T) {
	c := NewCommand("test", "", "", "", "", func() error { return nil })
	if _, err := c.GetSetting("nope"); err == nil {
		t.Error("GetSetting() for undefined setting succeeded")
	}
}

func TestIsYes(t *testing.T) {
	for answer, expected := range map[string]bool{
		"y": true, " Y\n": true, "yes": true, "YES\r\n": true,
		"": false, "n": false, "no": false, "yep": false,
	} {
		if got := isYes(answer); got != expected {
			t.Errorf("isYes(%q) = %v, want %v", answer, got, expected)
		}
	}
}
