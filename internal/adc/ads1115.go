package adc

import (
	"errors"
	"fmt"

	"periph.io/x/conn/v3/analog"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/ads1x15"
	"periph.io/x/host/v3"
)

// ADS1115Config selects the I2C converter and channel.
type ADS1115Config struct {
	Bus       string  // I2C bus name, empty for the first bus
	Address   uint16  // I2C address, 0x48 by default
	Channel   int     // single-ended channel 0-3
	Reference float64 // volts mapped to FullScale
	FullScale int     // count reported at Reference volts
}

var channels = [...]ads1x15.Channel{
	ads1x15.Channel0,
	ads1x15.Channel1,
	ads1x15.Channel2,
	ads1x15.Channel3,
}

// ADS1115 reads a single-ended channel of a TI ADS1115 over I2C.
type ADS1115 struct {
	bus       i2c.BusCloser
	pin       ads1x15.PinADC
	reference float64
	fullScale int
}

// NewADS1115 initializes the host drivers, opens the bus and binds the channel.
func NewADS1115(cfg ADS1115Config) (*ADS1115, error) {
	if cfg.Channel < 0 || cfg.Channel >= len(channels) {
		return nil, fmt.Errorf("ads1115: channel %d out of range 0-3", cfg.Channel)
	}
	if cfg.FullScale <= 0 || cfg.Reference <= 0 {
		return nil, errors.New("ads1115: reference and full scale must be positive")
	}

	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init periph host: %w", err)
	}

	bus, err := i2creg.Open(cfg.Bus)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %q: %w", cfg.Bus, err)
	}

	opts := ads1x15.DefaultOpts
	if cfg.Address != 0 {
		opts.I2cAddress = cfg.Address
	}
	dev, err := ads1x15.NewADS1115(bus, &opts)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("open ads1115 at %#x: %w", opts.I2cAddress, err)
	}

	maxV := physic.ElectricPotential(cfg.Reference * float64(physic.Volt))
	pin, err := dev.PinForChannel(channels[cfg.Channel], maxV, 10*physic.Hertz, ads1x15.BestQuality)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("bind ads1115 channel %d: %w", cfg.Channel, err)
	}

	return &ADS1115{
		bus:       bus,
		pin:       pin,
		reference: cfg.Reference,
		fullScale: cfg.FullScale,
	}, nil
}

// Read samples the channel and returns it as a count on the configured scale.
func (a *ADS1115) Read() (int, error) {
	s, err := a.pin.Read()
	if err != nil {
		return 0, fmt.Errorf("read ads1115: %w", err)
	}
	return Quantize(volts(s), a.reference, a.fullScale), nil
}

// Close halts the channel and releases the bus.
func (a *ADS1115) Close() error {
	var errs []error
	if a.pin != nil {
		if err := a.pin.Halt(); err != nil {
			errs = append(errs, fmt.Errorf("halt channel: %w", err))
		}
	}
	if a.bus != nil {
		if err := a.bus.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close bus: %w", err))
		}
	}
	return errors.Join(errs...)
}

func volts(s analog.Sample) float64 {
	return float64(s.V) / float64(physic.Volt)
}
