package config

import (
	"fmt"
	"os"

	"github.com/hashicorp/hcl"
)

// Load decodes an HCL config and sets every named variable that was not
// already set from the command line.
func (c *Config) Load(b []byte) error {
	var cfg map[string]interface{}

	err := hcl.Decode(&cfg, string(b))
	if err != nil {
		return err
	}
	for name, val := range cfg {
		cv, ok := c.vars[name]
		if !ok {
			return fmt.Errorf("config: %s is not a config variable", name)
		}
		if cv.noConfig {
			return fmt.Errorf("config: %s can't be set in a config file", name)
		}

		if cv.by == byDefault {
			err := cv.val.SetValue(val)
			if err != nil {
				return fmt.Errorf("config: %s: %s", cv.name, err)
			}
			cv.by = byConfig
		}
	}

	return nil
}

// LoadFile loads an HCL config file.
func (c *Config) LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return c.Load(b)
}
