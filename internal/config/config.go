// Package config loads the daemon configuration from YAML.
// Every field defaults to the constants the signaler was designed around.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/threshold-signaler/internal/console"
	"github.com/sweeney/threshold-signaler/internal/gpio"
	"github.com/sweeney/threshold-signaler/internal/logic"
)

// Config represents the application configuration.
type Config struct {
	Variant logic.Variant `yaml:"variant"`
	GPIO    GPIOConfig    `yaml:"gpio"`
	Analog  AnalogConfig  `yaml:"analog"`
	Digital DigitalConfig `yaml:"digital"`
	Serial  SerialConfig  `yaml:"serial"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	HTTP    HTTPConfig    `yaml:"http"`
	Log     LogConfig     `yaml:"log"`
}

// GPIOConfig selects the chip and lines.
type GPIOConfig struct {
	Chip      string `yaml:"chip"`
	OutputPin int    `yaml:"output_pin"`
	InputPin  int    `yaml:"input_pin"`
}

// AnalogConfig contains the voltage-triggered loop parameters and converter wiring.
type AnalogConfig struct {
	I2CBus         string        `yaml:"i2c_bus"`
	I2CAddress     uint16        `yaml:"i2c_address"`
	Channel        int           `yaml:"channel"`
	Threshold      float64       `yaml:"threshold"`
	Reference      float64       `yaml:"reference"`
	FullScale      int           `yaml:"full_scale"`
	LoopDelay      time.Duration `yaml:"loop_delay"`
	SignalDuration time.Duration `yaml:"signal_duration"`
	ResetDelay     time.Duration `yaml:"reset_delay"`
}

// DigitalConfig contains the input-triggered loop parameters.
type DigitalConfig struct {
	OnDuration  time.Duration `yaml:"on_duration"`
	OffDuration time.Duration `yaml:"off_duration"`
	CheckDelay  time.Duration `yaml:"check_delay"`
}

// SerialConfig selects where console lines go. Empty port means stdout.
type SerialConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

// MQTTConfig contains optional telemetry settings. Empty broker disables MQTT.
type MQTTConfig struct {
	Broker    string        `yaml:"broker"`
	ClientID  string        `yaml:"client_id"`
	Heartbeat time.Duration `yaml:"heartbeat"`
}

// HTTPConfig contains the status server address. Empty disables it.
//
// WSBroker is the websocket broker the status page subscribes to for live
// updates: "off" disables them, "=broker" derives ws://<broker host>:9001.
type HTTPConfig struct {
	Addr     string `yaml:"addr"`
	WSBroker string `yaml:"ws_broker"`
}

// LogConfig controls log output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "console", "json", or "" for auto
}

// Default returns a configuration with the signaler's design constants.
func Default() *Config {
	return &Config{
		Variant: logic.VariantAnalog,
		GPIO: GPIOConfig{
			Chip:      gpio.DefaultChip,
			OutputPin: gpio.DefaultPinOut,
			InputPin:  gpio.DefaultPinInput,
		},
		Analog: AnalogConfig{
			I2CAddress:     0x48,
			Channel:        0,
			Threshold:      logic.DefaultThreshold,
			Reference:      logic.DefaultReference,
			FullScale:      logic.DefaultFullScale,
			LoopDelay:      logic.DefaultLoopDelay,
			SignalDuration: logic.DefaultSignalDuration,
			ResetDelay:     logic.DefaultResetDelay,
		},
		Digital: DigitalConfig{
			OnDuration:  logic.DefaultOnDuration,
			OffDuration: logic.DefaultOffDuration,
			CheckDelay:  logic.DefaultCheckDelay,
		},
		Serial: SerialConfig{
			Baud: console.DefaultBaudRate,
		},
		MQTT: MQTTConfig{
			ClientID:  "threshold-signaler",
			Heartbeat: 15 * time.Minute,
		},
		HTTP: HTTPConfig{
			WSBroker: "=broker",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file. An empty filename or a missing
// file yields the defaults; fields absent from the file keep their defaults.
func Load(filename string) (*Config, error) {
	cfg := Default()
	if filename == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// AnalogLoop returns the loop constants of the analog variant.
func (c *Config) AnalogLoop() logic.AnalogConfig {
	return logic.AnalogConfig{
		Threshold:      c.Analog.Threshold,
		Reference:      c.Analog.Reference,
		FullScale:      c.Analog.FullScale,
		LoopDelay:      c.Analog.LoopDelay,
		SignalDuration: c.Analog.SignalDuration,
		ResetDelay:     c.Analog.ResetDelay,
	}
}

// DigitalLoop returns the loop constants of the digital variant.
func (c *Config) DigitalLoop() logic.DigitalConfig {
	return logic.DigitalConfig{
		OutputPin:   c.GPIO.OutputPin,
		OnDuration:  c.Digital.OnDuration,
		OffDuration: c.Digital.OffDuration,
		CheckDelay:  c.Digital.CheckDelay,
	}
}

// Validate reports every problem with the configuration at once.
func (c *Config) Validate() error {
	var errs []error
	if !c.Variant.Valid() {
		errs = append(errs, fmt.Errorf("variant must be %q or %q, got %q", logic.VariantAnalog, logic.VariantDigital, c.Variant))
	}
	if c.GPIO.Chip == "" {
		errs = append(errs, errors.New("gpio.chip is required"))
	}
	if c.GPIO.OutputPin < 0 {
		errs = append(errs, fmt.Errorf("gpio.output_pin must not be negative, got %d", c.GPIO.OutputPin))
	}
	switch c.Variant {
	case logic.VariantAnalog:
		if c.Analog.Channel < 0 || c.Analog.Channel > 3 {
			errs = append(errs, fmt.Errorf("analog.channel must be 0-3, got %d", c.Analog.Channel))
		}
		if err := c.AnalogLoop().Validate(); err != nil {
			errs = append(errs, fmt.Errorf("analog: %w", err))
		}
	case logic.VariantDigital:
		if c.GPIO.InputPin < 0 {
			errs = append(errs, fmt.Errorf("gpio.input_pin must not be negative, got %d", c.GPIO.InputPin))
		}
		if c.GPIO.InputPin == c.GPIO.OutputPin {
			errs = append(errs, fmt.Errorf("gpio.input_pin and gpio.output_pin are both %d", c.GPIO.InputPin))
		}
		if err := c.DigitalLoop().Validate(); err != nil {
			errs = append(errs, fmt.Errorf("digital: %w", err))
		}
	}
	if c.Serial.Baud <= 0 {
		errs = append(errs, fmt.Errorf("serial.baud must be positive, got %d", c.Serial.Baud))
	}
	if c.MQTT.Heartbeat < 0 {
		errs = append(errs, errors.New("mqtt.heartbeat must not be negative"))
	}
	return errors.Join(errs...)
}
