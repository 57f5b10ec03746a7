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
	"fmt"
	"os"
	"reflect"
	"strings"
	"unicode"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

//
const (
	prologueHeader = ""
	epilogueHeader = `
Notes:

`
)

/*
	NewCommand creates a base command instance, wrapping a new Cobra command.
	The exec function is invoked when the command's Execute method is called.
	Each command binds its settings to its own Viper instance.
*/
func NewCommand(use, short, long, helpPrologue, helpEpilogue string,
	exec func() error) *Command {

	ret := Command{
		cmd: &cobra.Command{
			Use:   use,
			Short: short,
			Long:  long,
			RunE: func(*cobra.Command, []string) error {
				return exec()
			},
			SilenceErrors:         true,
			SilenceUsage:          true,
			DisableFlagsInUseLine: true,
		},
		viper:        viper.New(),
		settings:     map[string]*setting{},
		helpPrologue: helpPrologue,
		helpEpilogue: helpEpilogue,
	}
	ret.helpFunc = ret.cmd.HelpFunc()
	ret.cmd.SetHelpFunc(ret.help)
	return &ret
}

/*
	Command wraps Cobra & Viper. A setting added to a command can come from a
	command line flag or an environment variable, with the flag taking
	precedence. Settings can be marked as required, in which case a missing
	value produces an error that names both the flag and the variable.
*/
type Command struct {
	//
	cmd   *cobra.Command
	viper *viper.Viper
	//
	settings map[string]*setting
	// positional arguments left after parsing flags
	Args []string
	//
	helpPrologue string
	helpEpilogue string
	helpFunc     func(*cobra.Command, []string)
}

//
func (c *Command) help(cmd *cobra.Command, args []string) {
	out := cmd.OutOrStdout()
	if c.helpPrologue != "" {
		fmt.Fprintln(out, prologueHeader+c.helpPrologue)
	}
	if c.helpFunc != nil {
		c.helpFunc(cmd, args)
	}
	if c.helpEpilogue != "" {
		fmt.Fprintln(out, epilogueHeader+c.helpEpilogue)
	} else {
		fmt.Fprintln(out)
	}
}

/*
	Execute invokes the exec function that was set on this command when it was
	created, with args as the command line arguments following the action.
*/
func (c *Command) Execute(args []string) error {
	if args == nil {
		args = []string{}
	}
	c.cmd.SetArgs(args)
	return c.cmd.Execute()
}

/*
	AddSetting adds a setting to this command. target points to the variable
	the setting is bound to. flag is the long command line flag, short its
	single letter version, and env the environment variable that may carry
	the setting. def is the default value, nil meaning the zero value of the
	target's type. Required settings cannot have a default.
*/
func (c *Command) AddSetting(target interface{}, flag, short, env string,
	def interface{}, help string, required bool) {
	DieOnError(c.addSetting(target, flag, short, env, def, help, required))
}

//
func (c *Command) addSetting(target interface{}, flag, short, env string,
	def interface{}, help string, required bool) error {

	s := &setting{flag: flag, env: env, required: required, target: target,
		viper: c.viper}

	t, n, err := s.typeAndName()
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"flag": flag, "env": env, "type": t}).Trace("add setting")

	if strings.HasSuffix(n, "Slice") && n != "StringSlice" && env != "" {
		return fmt.Errorf(
			"setting '%s': environment variable on non-string slice", flag)
	}

	// pflag supports more types than Viper has getters for
	if _, err := s.getter(n); err != nil {
		return fmt.Errorf("setting '%s' is of unsupported type: %v", flag, err)
	}

	defVal := reflect.Zero(t)
	if required {
		if def != nil {
			return fmt.Errorf(
				"required setting '%s' does not take a default value", flag)
		}
	} else if def != nil {
		if !reflect.TypeOf(def).ConvertibleTo(t) {
			return fmt.Errorf(
				"default value for setting '%s' has incorrect type", flag)
		}
		defVal = reflect.ValueOf(def).Convert(t)
	}

	flags := c.cmd.Flags()
	method, err := pflagMethodForTypeName(n, flags)
	if err != nil {
		return fmt.Errorf("setting '%s' is of unsupported type: %v", flag, err)
	}

	if env != "" {
		help = fmt.Sprintf("%s (%s)", help, env)
	}

	method.Call([]reflect.Value{
		reflect.ValueOf(target),
		reflect.ValueOf(flag),
		reflect.ValueOf(short),
		defVal,
		reflect.ValueOf(help),
	})

	if err := c.viper.BindPFlag(flag, flags.Lookup(flag)); err != nil {
		return err
	}
	if env != "" {
		if err := c.viper.BindEnv(flag, env); err != nil {
			return err
		}
	}

	c.settings[flag] = s
	return nil
}

/*
	GetSetting retrieves the setting for the provided flag and places the value
	in the variable bound to it.
*/
func (c *Command) GetSetting(flag string) (interface{}, error) {
	s, ok := c.settings[flag]
	if !ok {
		return nil, fmt.Errorf("undefined setting: %s", flag)
	}
	return s.get()
}

/*
	ParseSettings resolves all settings added so far, and places their values
	in the bound variables. Call it from the exec function, before using any
	of those variables.
*/
func (c *Command) ParseSettings() error {
	for _, s := range c.settings {
		if _, err := s.get(); err != nil {
			return err
		}
	}
	c.Args = c.cmd.Flags().Args()
	return nil
}

//
type setting struct {
	flag     string
	env      string
	required bool
	target   interface{}
	viper    *viper.Viper
}

// typeAndName returns the target's element type, and the name pflag and
// Viper use for it in their method names, e.g. Int or StringSlice
func (s *setting) typeAndName() (reflect.Type, string, error) {

	typ := reflect.TypeOf(s.target)
	if typ == nil || typ.Kind() != reflect.Ptr {
		return nil, "", fmt.Errorf(
			"target for setting '%s' is not a pointer", s.flag)
	}

	elem := typ.Elem()
	if elem.Kind() == reflect.Slice {
		return elem, capitalize(elem.Elem().Name()) + "Slice", nil
	}
	return elem, capitalize(elem.Name()), nil
}

//
func (s *setting) getter(n string) (reflect.Value, error) {
	method := "Get" + n
	ret := reflect.ValueOf(s.viper).MethodByName(method)
	if ret.Kind() != reflect.Func {
		return ret, fmt.Errorf("no Viper getter %s", method)
	}
	return ret, nil
}

//
func (s *setting) get() (interface{}, error) {

	t, n, err := s.typeAndName()
	if err != nil {
		return nil, err
	}

	method, err := s.getter(n)
	if err != nil {
		return nil, err
	}

	val := method.Call([]reflect.Value{reflect.ValueOf(s.flag)})[0]
	log.WithFields(log.Fields{
		"flag":    s.flag,
		"value":   val,
		"default": !s.viper.IsSet(s.flag),
	}).Trace("get setting")

	if s.required {
		var missing bool
		if val.Kind() == reflect.Slice {
			missing = val.Len() == 0
		} else {
			missing = val.Interface() == reflect.Zero(t).Interface()
		}
		if missing {
			msg := fmt.Sprintf(
				"you need to specify the --%s command line flag", s.flag)
			if s.env != "" {
				msg = fmt.Sprintf(
					"%s or the %s environment variable", msg, s.env)
			}
			return nil, fmt.Errorf("%s", msg)
		}
	}

	// Viper does not write env values through to the bound variable, so that
	// is done here; a value from an explicit flag stays unchanged by this
	if s.env != "" {
		elem := reflect.ValueOf(s.target).Elem()
		if val.Kind() == reflect.Slice {
			if elem.Len() == 0 && val.Len() > 0 {
				elem.Set(reflect.ValueOf(stringSliceFromValue(val)))
			}
		} else {
			elem.Set(val.Convert(t))
		}
	}

	return val, nil
}

//
func pflagMethodForTypeName(n string, f *pflag.FlagSet) (reflect.Value, error) {
	method := n + "VarP"
	ret := reflect.ValueOf(f).MethodByName(method)
	if ret.Kind() != reflect.Func {
		return ret, fmt.Errorf("no pflag method %s", method)
	}
	return ret, nil
}

//
func stringSliceFromValue(v reflect.Value) []string {
	ret := make([]string, 0, 16)
	if v.Kind() == reflect.Slice {
		for ix := 0; ix < v.Len(); ix++ {
			ret = append(ret, strings.Split(v.Index(ix).String(), ",")...)
		}
	}
	return ret
}

//
func capitalize(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

//
var (
	UnderTest bool
)

// DieOnError exits the running process if e is not nil. The error gets logged.
func DieOnError(e error) {
	if e != nil {
		fmt.Fprintf(os.Stderr, "%v\n", e)
		if UnderTest {
			panic(e.Error())
		}
		os.Exit(1)
	}
}

// Die exits the running process, while logging the given message.
func Die(msg string, params ...interface{}) {
	DieOnError(fmt.Errorf(msg, params...))
}
