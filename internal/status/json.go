package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/threshold-signaler/internal/logic"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Variant       string       `json:"variant"`
	Output        string       `json:"output"`
	Reading       *ReadingJSON `json:"reading,omitempty"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"event_counts"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// ReadingJSON is the JSON representation of the last input sample.
type ReadingJSON struct {
	Raw       int     `json:"raw"`
	Voltage   float64 `json:"voltage,omitempty"`
	Timestamp string  `json:"timestamp"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Buffered  int    `json:"buffered"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	Cycles   int64 `json:"cycles"`
	Triggers int64 `json:"triggers"`
	High     int64 `json:"output_high"`
	Low      int64 `json:"output_low"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	OutputPin   int              `json:"output_pin"`
	InputPin    int              `json:"input_pin,omitempty"`
	ADCChannel  *int             `json:"adc_channel,omitempty"`
	Threshold   float64          `json:"threshold,omitempty"`
	TimingsMs   map[string]int64 `json:"timings_ms"`
	HeartbeatMs int64            `json:"heartbeat_ms"`
	Broker      string           `json:"broker"`
	HTTPAddr    string           `json:"http_addr"`
	SerialPort  string           `json:"serial_port,omitempty"`
	WSBroker    string           `json:"ws_broker,omitempty"`
}

func buildInner(snap Snapshot) StatusInner {
	timings := make(map[string]int64, len(snap.Config.TimingsMs))
	for _, t := range snap.Config.TimingsMs {
		timings[t.Name] = t.Ms
	}

	cfg := ConfigJSON{
		OutputPin:   snap.Config.OutputPin,
		TimingsMs:   timings,
		HeartbeatMs: snap.Config.HeartbeatMs,
		Broker:      snap.Config.Broker,
		HTTPAddr:    snap.Config.HTTPAddr,
		SerialPort:  snap.Config.SerialPort,
		WSBroker:    snap.Config.WSBroker,
	}
	if snap.Config.Variant == logic.VariantAnalog {
		ch := snap.Config.ADCChannel
		cfg.ADCChannel = &ch
		cfg.Threshold = snap.Config.Threshold
	} else {
		cfg.InputPin = snap.Config.InputPin
	}

	inner := StatusInner{
		Variant:       string(snap.Config.Variant),
		Output:        snap.OutputString(),
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Buffered: snap.MQTTBuffered, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Cycles:   snap.Counts.Cycles,
			Triggers: snap.Counts.Triggers,
			High:     snap.Counts.High,
			Low:      snap.Counts.Low,
		},
		Config: cfg,
	}
	if snap.Reading.Valid {
		inner.Reading = &ReadingJSON{
			Raw:       snap.Reading.Raw,
			Voltage:   snap.Reading.Voltage,
			Timestamp: snap.Reading.Time.UTC().Format(time.RFC3339),
		}
	}
	return inner
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
