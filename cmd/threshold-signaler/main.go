// Command threshold-signaler polls one input channel, compares it to a fixed
// threshold and drives a GPIO output with fixed delays.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sweeney/threshold-signaler/internal/adc"
	"github.com/sweeney/threshold-signaler/internal/config"
	"github.com/sweeney/threshold-signaler/internal/console"
	"github.com/sweeney/threshold-signaler/internal/gpio"
	"github.com/sweeney/threshold-signaler/internal/logic"
	"github.com/sweeney/threshold-signaler/internal/mqtt"
	"github.com/sweeney/threshold-signaler/internal/signaler"
	"github.com/sweeney/threshold-signaler/internal/status"
	"github.com/sweeney/threshold-signaler/internal/web"
)

func main() {
	if err := newRootCmd(&flagValues{}).Execute(); err != nil {
		log.Fatal().Err(err).Msg("fatal")
	}
}

// flagValues holds raw flag values; only flags the user set override the config file.
type flagValues struct {
	configPath string
	logLevel   string
	logFormat  string

	chip       string
	outPin     int
	inPin      int
	serialPort string
	baud       int
	broker     string
	httpAddr   string
	heartbeat  time.Duration

	threshold  float64
	adcChannel int
	i2cBus     string
	i2cAddr    uint16
	wsBroker   string

	variant string
}

func newRootCmd(v *flagValues) *cobra.Command {
	def := config.Default()

	root := &cobra.Command{
		Use:           "threshold-signaler",
		Short:         "Drive a GPIO output from a thresholded input",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&v.configPath, "config", "c", "/etc/threshold-signaler.yaml", "YAML config file (missing file means defaults)")
	pf.StringVar(&v.logLevel, "log-level", def.Log.Level, "Log level (debug, info, warn, error)")
	pf.StringVar(&v.logFormat, "log-format", def.Log.Format, `Log format ("console", "json", empty for auto)`)
	pf.StringVar(&v.chip, "chip", def.GPIO.Chip, "GPIO chip")
	pf.IntVar(&v.outPin, "out-pin", def.GPIO.OutputPin, "Output line offset")
	pf.StringVar(&v.serialPort, "serial-port", def.Serial.Port, "Serial port for console lines (empty for stdout)")
	pf.IntVar(&v.baud, "baud", def.Serial.Baud, "Serial baud rate")
	pf.StringVar(&v.broker, "broker", def.MQTT.Broker, "MQTT broker address (empty to disable)")
	pf.StringVar(&v.httpAddr, "http", def.HTTP.Addr, "HTTP status address (empty to disable)")
	pf.StringVar(&v.wsBroker, "ws-broker", def.HTTP.WSBroker, `MQTT websocket URL for the live status page ("=broker" derives from --broker, "off" disables)`)
	pf.DurationVar(&v.heartbeat, "heartbeat", def.MQTT.Heartbeat, "Heartbeat interval (0 to disable)")

	analogCmd := &cobra.Command{
		Use:   "analog",
		Short: "Raise the output while the input voltage exceeds the threshold",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, v, logic.VariantAnalog)
			if err != nil {
				return err
			}
			return run(cfg)
		},
	}
	addAnalogFlags(analogCmd, v, def)

	digitalCmd := &cobra.Command{
		Use:   "digital",
		Short: "Hold the output high and drop it when the input reads high",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, v, logic.VariantDigital)
			if err != nil {
				return err
			}
			return run(cfg)
		},
	}
	addDigitalFlags(digitalCmd, v, def)

	printCmd := &cobra.Command{
		Use:   "print-state",
		Short: "Read the input once, print it and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, v, "")
			if err != nil {
				return err
			}
			return printState(cmd.OutOrStdout(), cfg)
		},
	}
	printCmd.Flags().StringVar(&v.variant, "variant", "", "Variant to read (defaults to the config file's)")
	addAnalogFlags(printCmd, v, def)
	addDigitalFlags(printCmd, v, def)

	portsCmd := &cobra.Command{
		Use:   "ports",
		Short: "List serial ports",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ports, err := console.Ports()
			if err != nil {
				return err
			}
			for _, p := range ports {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}

	writeCmd := &cobra.Command{
		Use:   "write-config [path]",
		Short: "Write the effective configuration as YAML",
		Long:  "Merge the config file and flags, validate, and save the result to path (default: --config).",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, v, "")
			if err != nil {
				return err
			}
			path := v.configPath
			if len(args) == 1 {
				path = args[0]
			}
			if err := cfg.Save(path); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	writeCmd.Flags().StringVar(&v.variant, "variant", "", "Variant to store (defaults to the config file's)")
	addAnalogFlags(writeCmd, v, def)
	addDigitalFlags(writeCmd, v, def)

	root.AddCommand(analogCmd, digitalCmd, printCmd, portsCmd, writeCmd)
	return root
}

func addAnalogFlags(cmd *cobra.Command, v *flagValues, def *config.Config) {
	f := cmd.Flags()
	f.Float64Var(&v.threshold, "threshold", def.Analog.Threshold, "Trigger voltage (strictly exceeded)")
	f.IntVar(&v.adcChannel, "adc-channel", def.Analog.Channel, "ADS1115 single-ended channel 0-3")
	f.StringVar(&v.i2cBus, "i2c-bus", def.Analog.I2CBus, "I2C bus (empty for the first bus)")
	f.Uint16Var(&v.i2cAddr, "i2c-addr", def.Analog.I2CAddress, "ADS1115 I2C address")
}

func addDigitalFlags(cmd *cobra.Command, v *flagValues, def *config.Config) {
	cmd.Flags().IntVar(&v.inPin, "in-pin", def.GPIO.InputPin, "Input line offset")
}

// loadConfig reads the config file, applies the flags the user set, selects
// the variant (empty keeps the file's) and sets up logging.
func loadConfig(cmd *cobra.Command, v *flagValues, variant logic.Variant) (*config.Config, error) {
	cfg, err := config.Load(v.configPath)
	if err != nil {
		return nil, err
	}
	applyFlags(cmd, v, cfg)
	if variant != "" {
		cfg.Variant = variant
	}
	if err := setupLogging(os.Stderr, cfg.Log); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func applyFlags(cmd *cobra.Command, v *flagValues, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("log-level") {
		cfg.Log.Level = v.logLevel
	}
	if changed("log-format") {
		cfg.Log.Format = v.logFormat
	}
	if changed("chip") {
		cfg.GPIO.Chip = v.chip
	}
	if changed("out-pin") {
		cfg.GPIO.OutputPin = v.outPin
	}
	if changed("in-pin") {
		cfg.GPIO.InputPin = v.inPin
	}
	if changed("serial-port") {
		cfg.Serial.Port = v.serialPort
	}
	if changed("baud") {
		cfg.Serial.Baud = v.baud
	}
	if changed("broker") {
		cfg.MQTT.Broker = v.broker
	}
	if changed("http") {
		cfg.HTTP.Addr = v.httpAddr
	}
	if changed("ws-broker") {
		cfg.HTTP.WSBroker = v.wsBroker
	}
	if changed("heartbeat") {
		cfg.MQTT.Heartbeat = v.heartbeat
	}
	if changed("threshold") {
		cfg.Analog.Threshold = v.threshold
	}
	if changed("adc-channel") {
		cfg.Analog.Channel = v.adcChannel
	}
	if changed("i2c-bus") {
		cfg.Analog.I2CBus = v.i2cBus
	}
	if changed("i2c-addr") {
		cfg.Analog.I2CAddress = v.i2cAddr
	}
	if changed("variant") {
		cfg.Variant = logic.Variant(v.variant)
	}
}

func setupLogging(w io.Writer, lc config.LogConfig) error {
	level, err := zerolog.ParseLevel(lc.Level)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	zerolog.SetGlobalLevel(level)

	useConsole := lc.Format == "console"
	if lc.Format == "" {
		if f, ok := w.(*os.File); ok {
			useConsole = isatty.IsTerminal(f.Fd())
		}
	}
	if useConsole {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: w}).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(w).With().Timestamp().Logger()
	}
	return nil
}

// hardware is everything the loop owns; close releases it in reverse order.
type hardware struct {
	output  gpio.Output
	analog  adc.Reader
	digital gpio.Input
	console console.Console
}

func openHardware(cfg *config.Config) (*hardware, error) {
	hw := &hardware{}

	out, err := gpio.NewRealOutput(cfg.GPIO.Chip, cfg.GPIO.OutputPin)
	if err != nil {
		return nil, fmt.Errorf("init gpio: %w", err)
	}
	hw.output = out

	if err := openInput(hw, cfg); err != nil {
		hw.close()
		return nil, err
	}

	if cfg.Serial.Port == "" {
		hw.console = console.NewWriter(os.Stdout)
	} else {
		c, err := console.Open(cfg.Serial.Port, cfg.Serial.Baud)
		if err != nil {
			hw.close()
			return nil, fmt.Errorf("init serial: %w", err)
		}
		hw.console = c
	}
	return hw, nil
}

func openInput(hw *hardware, cfg *config.Config) error {
	switch cfg.Variant {
	case logic.VariantAnalog:
		a, err := adc.NewADS1115(adc.ADS1115Config{
			Bus:       cfg.Analog.I2CBus,
			Address:   cfg.Analog.I2CAddress,
			Channel:   cfg.Analog.Channel,
			Reference: cfg.Analog.Reference,
			FullScale: cfg.Analog.FullScale,
		})
		if err != nil {
			return fmt.Errorf("init adc: %w", err)
		}
		hw.analog = a
	case logic.VariantDigital:
		in, err := gpio.NewRealInput(cfg.GPIO.Chip, cfg.GPIO.InputPin)
		if err != nil {
			return fmt.Errorf("init gpio input: %w", err)
		}
		hw.digital = in
	}
	return nil
}

func (hw *hardware) close() {
	var errs []error
	if hw.console != nil {
		errs = append(errs, hw.console.Close())
	}
	if hw.digital != nil {
		errs = append(errs, hw.digital.Close())
	}
	if hw.analog != nil {
		errs = append(errs, hw.analog.Close())
	}
	if hw.output != nil {
		errs = append(errs, hw.output.Close())
	}
	if err := errors.Join(errs...); err != nil {
		log.Warn().Err(err).Msg("release hardware")
	}
}

func run(cfg *config.Config) error {
	hw, err := openHardware(cfg)
	if err != nil {
		return err
	}
	defer hw.close()

	tracker := status.NewTracker(time.Now(), statusConfig(cfg))
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	opts := signaler.Options{
		Variant:      cfg.Variant,
		Analog:       cfg.AnalogLoop(),
		Digital:      cfg.DigitalLoop(),
		Output:       hw.output,
		AnalogInput:  hw.analog,
		DigitalInput: hw.digital,
		Console:      hw.console,
		Tracker:      tracker,
		Network:      readNetworkInfo,
		Heartbeat:    cfg.MQTT.Heartbeat,
	}

	var publisher mqtt.Publisher
	var mqttStatus mqtt.ConnectionStatus
	if cfg.MQTT.Broker != "" {
		p := mqtt.NewRealPublisher(cfg.MQTT.Broker, cfg.MQTT.ClientID)
		defer p.Close()
		publisher, mqttStatus = p, p
		opts.Publisher, opts.MQTTStatus = p, p

		// Published (or buffered until connected) with a full status snapshot.
		snap := tracker.Snapshot()
		startup := mqtt.SystemEvent{
			Timestamp:  snap.Now,
			Event:      "STARTUP",
			Retained:   true,
			RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
		}
		if err := publisher.PublishSystem(startup); err != nil {
			log.Warn().Err(err).Msg("failed to publish startup event")
		} else {
			log.Info().Str("broker", cfg.MQTT.Broker).Msg("published startup event")
		}
	}

	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("http server error")
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Info().Str("addr", cfg.HTTP.Addr).Msg("http status server listening")
	}

	runner, err := signaler.New(opts)
	if err != nil {
		return err
	}

	log.Info().
		Str("variant", string(cfg.Variant)).
		Int("out_pin", cfg.GPIO.OutputPin).
		Str("serial", cfg.Serial.Port).
		Str("broker", cfg.MQTT.Broker).
		Msg("started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	return runLoop(runner, publisher, mqttStatus, tracker, sigCh)
}

// loop is the part of signaler.Runner that runLoop needs.
type loop interface {
	Run(ctx context.Context) error
}

// runLoop runs the signaler until a signal arrives, then publishes SHUTDOWN.
// publisher, mqttStatus and tracker may be nil.
func runLoop(runner loop, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, sig <-chan os.Signal) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	var s os.Signal
	select {
	case err := <-done:
		return err
	case s = <-sig:
	}

	log.Info().Str("signal", s.String()).Msg("shutting down")
	cancel()
	err := <-done

	if publisher == nil {
		return err
	}
	signalName := signalName(s)
	event := mqtt.SystemEvent{
		Timestamp: time.Now(),
		Event:     "SHUTDOWN",
		Reason:    signalName,
		Retained:  true,
	}
	if tracker != nil {
		if mqttStatus != nil {
			tracker.SetMQTTConnected(mqttStatus.IsConnected())
		}
		snap := tracker.Snapshot()
		event.RawPayload = status.FormatStatusEvent(snap, "SHUTDOWN", signalName)
	}
	if perr := publisher.PublishSystem(event); perr != nil {
		log.Warn().Err(perr).Msg("failed to publish shutdown event")
	} else {
		log.Info().Msg("published shutdown event")
	}
	return err
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

func statusConfig(cfg *config.Config) status.Config {
	sc := status.Config{
		Variant:     cfg.Variant,
		OutputPin:   cfg.GPIO.OutputPin,
		HeartbeatMs: cfg.MQTT.Heartbeat.Milliseconds(),
		Broker:      cfg.MQTT.Broker,
		HTTPAddr:    cfg.HTTP.Addr,
		SerialPort:  cfg.Serial.Port,
		WSBroker:    resolveWSBroker(cfg.HTTP.WSBroker, cfg.MQTT.Broker),
	}
	switch cfg.Variant {
	case logic.VariantAnalog:
		sc.ADCChannel = cfg.Analog.Channel
		sc.Threshold = cfg.Analog.Threshold
		sc.TimingsMs = []status.TimingMs{
			{Name: "loop_delay", Ms: cfg.Analog.LoopDelay.Milliseconds()},
			{Name: "signal_duration", Ms: cfg.Analog.SignalDuration.Milliseconds()},
			{Name: "reset_delay", Ms: cfg.Analog.ResetDelay.Milliseconds()},
		}
	case logic.VariantDigital:
		sc.InputPin = cfg.GPIO.InputPin
		sc.TimingsMs = []status.TimingMs{
			{Name: "on_duration", Ms: cfg.Digital.OnDuration.Milliseconds()},
			{Name: "off_duration", Ms: cfg.Digital.OffDuration.Milliseconds()},
			{Name: "check_delay", Ms: cfg.Digital.CheckDelay.Milliseconds()},
		}
	}
	return sc
}

// resolveWSBroker turns the ws_broker setting into the URL the status page
// connects to. Without a broker there is nothing to subscribe to.
func resolveWSBroker(ws, broker string) string {
	if ws == "off" || ws == "" || broker == "" {
		return ""
	}
	if ws != "=broker" {
		return ws
	}
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}
	u, err := url.Parse(broker)
	if err != nil || u.Hostname() == "" {
		log.Warn().Str("broker", broker).Msg("ws-broker: cannot derive websocket URL from broker")
		return ""
	}
	return (&url.URL{Scheme: "ws", Host: u.Hostname() + ":9001"}).String()
}

// printState reads the configured input once without touching the output.
func printState(w io.Writer, cfg *config.Config) error {
	hw := &hardware{}
	if err := openInput(hw, cfg); err != nil {
		return err
	}
	defer hw.close()
	return describeInput(w, cfg, hw.analog, hw.digital)
}

func describeInput(w io.Writer, cfg *config.Config, a adc.Reader, d gpio.Input) error {
	switch cfg.Variant {
	case logic.VariantAnalog:
		raw, err := a.Read()
		if err != nil {
			return fmt.Errorf("read adc: %w", err)
		}
		loop := cfg.AnalogLoop()
		v := loop.Voltage(raw)
		fmt.Fprintf(w, "raw: %d, voltage: %s, triggered: %t\n", raw, logic.FormatVoltage(v), loop.Triggered(v))
	case logic.VariantDigital:
		high, err := d.Read()
		if err != nil {
			return fmt.Errorf("read gpio: %w", err)
		}
		level := logic.Low
		if high {
			level = logic.High
		}
		fmt.Fprintf(w, "pin %d: %s\n", cfg.GPIO.InputPin, level)
	}
	return nil
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
