package registryapi

import (
	"fmt"
	"reflect"

	"github.com/c360studio/semstreams/component"
)

// registryAPISchema holds the configuration schema generated from Config.
var registryAPISchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// Config holds configuration for the registry-api component.
type Config struct {
	// ListLimit caps GET /processors responses.
	ListLimit int `json:"list_limit" schema:"type:int,description:Maximum processors returned per list call,category:basic,default:100"`

	// Development exposes error causes in HTTP responses.
	Development bool `json:"development" schema:"type:bool,description:Include error causes in responses,category:advanced,default:false"`

	// Ports declares optional HTTP port configuration.
	Ports *component.PortConfig `json:"ports,omitempty" schema:"type:ports,description:Port configuration,category:basic"`
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{ListLimit: 100}
}

// Validate verifies the configuration is consistent.
func (c *Config) Validate() error {
	if c.ListLimit < 0 {
		return fmt.Errorf("list_limit cannot be negative")
	}
	return nil
}
