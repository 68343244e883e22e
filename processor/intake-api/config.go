package intakeapi

import (
	"fmt"
	"reflect"

	"github.com/c360studio/semstreams/component"
)

// intakeAPISchema holds the configuration schema generated from Config.
var intakeAPISchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// Config holds configuration for the intake-api component.
type Config struct {
	// MaxTurns caps the number of user turns a dialogue accepts before
	// it is failed. Zero means the engine default.
	MaxTurns int `json:"max_turns" schema:"type:int,description:Maximum user turns per dialogue,category:basic,default:10"`

	// FinalizeTimeoutSeconds bounds one background finalisation run.
	FinalizeTimeoutSeconds int `json:"finalize_timeout_seconds" schema:"type:int,description:Background finalisation timeout in seconds,category:advanced,default:60"`

	// Development exposes error causes in HTTP responses.
	Development bool `json:"development" schema:"type:bool,description:Include error causes in responses,category:advanced,default:false"`

	// Ports declares optional HTTP port configuration.
	Ports *component.PortConfig `json:"ports,omitempty" schema:"type:ports,description:Port configuration,category:basic"`
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		MaxTurns:               10,
		FinalizeTimeoutSeconds: 60,
	}
}

// Validate verifies the configuration is consistent.
func (c *Config) Validate() error {
	if c.MaxTurns < 0 {
		return fmt.Errorf("max_turns cannot be negative")
	}
	if c.FinalizeTimeoutSeconds < 0 {
		return fmt.Errorf("finalize_timeout_seconds cannot be negative")
	}
	return nil
}
