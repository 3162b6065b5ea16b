package config

import (
	"flag"
	"fmt"
)

// Config is a set of named, typed configuration variables. A variable can
// be set by a command line flag or by a config file; flags win over the
// file, which wins over the default.
type Config struct {
	fs   *flag.FlagSet
	vars map[string]*cvar
}

type setBy int

const (
	byDefault setBy = iota
	byConfig
	byFlag
)

type cvar struct {
	name     string
	val      Value
	usage    string
	by       setBy
	noConfig bool
	hidden   bool
}

func NewConfig(fs *flag.FlagSet) *Config {
	return &Config{
		fs:   fs,
		vars: map[string]*cvar{},
	}
}

// Var starts the declaration of a configuration variable stored at p; one
// of the typed finalizers (Bool, Int, Uint64, String, Float64) sets the
// default and registers the variable.
func (c *Config) Var(p interface{}, name string) *VarSpec {
	if _, ok := c.vars[name]; ok {
		panic(fmt.Sprintf("config: variable redeclared: %s", name))
	}
	return &VarSpec{cfg: c, p: p, name: name}
}

type VarSpec struct {
	cfg      *Config
	p        interface{}
	name     string
	usage    string
	noConfig bool
	hidden   bool
}

func (vs *VarSpec) Usage(s string) *VarSpec {
	vs.usage = s
	return vs
}

// NoConfigFile marks the variable settable from the command line only.
func (vs *VarSpec) NoConfigFile() *VarSpec {
	vs.noConfig = true
	return vs
}

// Hide keeps the variable off the command line; it can still be set from a
// config file.
func (vs *VarSpec) Hide() *VarSpec {
	vs.hidden = true
	return vs
}

func (vs *VarSpec) register(val Value) {
	cv := &cvar{
		name:     vs.name,
		val:      val,
		usage:    vs.usage,
		noConfig: vs.noConfig,
		hidden:   vs.hidden,
	}
	vs.cfg.vars[vs.name] = cv
	if !vs.hidden && vs.cfg.fs != nil {
		vs.cfg.fs.Var(flagValue{cv}, vs.name, vs.usage)
	}
}

func (vs *VarSpec) Bool(def bool) *bool {
	p := vs.p.(*bool)
	*p = def
	vs.register((*boolValue)(p))
	return p
}

func (vs *VarSpec) Int(def int) *int {
	p := vs.p.(*int)
	*p = def
	vs.register((*intValue)(p))
	return p
}

func (vs *VarSpec) Uint64(def uint64) *uint64 {
	p := vs.p.(*uint64)
	*p = def
	vs.register((*uint64Value)(p))
	return p
}

func (vs *VarSpec) String(def string) *string {
	p := vs.p.(*string)
	*p = def
	vs.register((*stringValue)(p))
	return p
}

func (vs *VarSpec) Float64(def float64) *float64 {
	p := vs.p.(*float64)
	*p = def
	vs.register((*float64Value)(p))
	return p
}

// flagValue adapts a cvar to flag.Value, recording that the variable was
// set from the command line.
type flagValue struct {
	cv *cvar
}

func (fv flagValue) Set(s string) error {
	err := fv.cv.val.Set(s)
	if err != nil {
		return err
	}
	fv.cv.by = byFlag
	return nil
}

func (fv flagValue) String() string {
	if fv.cv == nil {
		return ""
	}
	return fv.cv.val.String()
}

// Set sets a variable by name, as a flag would.
func (c *Config) Set(name, val string) error {
	cv, ok := c.vars[name]
	if !ok {
		return fmt.Errorf("config: %s is not a config variable", name)
	}
	err := cv.val.Set(val)
	if err != nil {
		return fmt.Errorf("config: %s: %s", name, err)
	}
	cv.by = byFlag
	return nil
}
