package taskapi

import (
	"fmt"
	"reflect"

	"github.com/c360studio/semstreams/component"
)

// taskAPISchema holds the configuration schema generated from Config.
var taskAPISchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// Config holds configuration for the task-api component.
type Config struct {
	// DispatchTimeoutSeconds bounds one webhook-triggered matching run.
	DispatchTimeoutSeconds int `json:"dispatch_timeout_seconds" schema:"type:int,description:Webhook matching dispatch timeout in seconds,category:advanced,default:120"`

	// Development exposes error causes in HTTP responses.
	Development bool `json:"development" schema:"type:bool,description:Include error causes in responses,category:advanced,default:false"`

	// Ports declares optional HTTP port configuration.
	Ports *component.PortConfig `json:"ports,omitempty" schema:"type:ports,description:Port configuration,category:basic"`
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{DispatchTimeoutSeconds: 120}
}

// Validate verifies the configuration is consistent.
func (c *Config) Validate() error {
	if c.DispatchTimeoutSeconds < 0 {
		return fmt.Errorf("dispatch_timeout_seconds cannot be negative")
	}
	return nil
}
