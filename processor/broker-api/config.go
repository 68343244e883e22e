package brokerapi

import (
	"reflect"

	"github.com/c360studio/semstreams/component"
)

// brokerAPISchema holds the configuration schema generated from Config.
var brokerAPISchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// Config holds configuration for the broker-api component.
type Config struct {
	// Development exposes error causes in HTTP responses.
	Development bool `json:"development" schema:"type:bool,description:Include error causes in responses,category:advanced,default:false"`

	// Ports declares optional HTTP port configuration.
	Ports *component.PortConfig `json:"ports,omitempty" schema:"type:ports,description:Port configuration,category:basic"`
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{}
}

// Validate verifies the configuration is consistent.
func (c *Config) Validate() error {
	return nil
}
