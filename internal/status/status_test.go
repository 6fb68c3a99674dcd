package status

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/threshold-signaler/internal/logic"
)

func analogConfig() Config {
	return Config{
		Variant:    logic.VariantAnalog,
		OutputPin:  12,
		ADCChannel: 0,
		Threshold:  3.0,
		TimingsMs: []TimingMs{
			{Name: "loop_delay", Ms: 1000},
			{Name: "signal_duration", Ms: 5000},
			{Name: "reset_delay", Ms: 4000},
		},
		HeartbeatMs: 900000,
		Broker:      "tcp://localhost:1883",
		HTTPAddr:    ":8080",
	}
}

func fixedTracker(start, now time.Time, cfg Config) *Tracker {
	tr := NewTracker(start, cfg)
	tr.now = func() time.Time { return now }
	return tr
}

func TestNewTracker(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := NewTracker(start, analogConfig())

	snap := tr.Snapshot()
	assert.True(t, snap.StartTime.Equal(start))
	assert.Equal(t, ":8080", snap.Config.HTTPAddr)
	assert.False(t, snap.OutputKnown)
	assert.Equal(t, "UNKNOWN", snap.OutputString())
	assert.False(t, snap.MQTTConnected)
	assert.False(t, snap.Reading.Valid)
}

func TestUpdateAndSnapshot(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	reading := Reading{Valid: true, Raw: 800, Voltage: 3.91, Time: time.Now()}

	tr.Update(logic.High, true, reading, logic.EventCounts{Cycles: 3, Triggers: 1, High: 1, Low: 1})

	snap := tr.Snapshot()
	assert.Equal(t, logic.High, snap.Output)
	assert.Equal(t, "HIGH", snap.OutputString())
	assert.Equal(t, 800, snap.Reading.Raw)
	assert.Equal(t, int64(3), snap.Counts.Cycles)
	assert.Equal(t, int64(1), snap.Counts.Triggers)
}

func TestSetOutput(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	tr.SetOutput(logic.Low)

	snap := tr.Snapshot()
	assert.True(t, snap.OutputKnown)
	assert.Equal(t, "LOW", snap.OutputString())
}

func TestSetMQTTConnectedAndNetwork(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	tr.SetMQTTConnected(true)
	tr.SetMQTTBuffered(3)
	tr.SetNetwork(&NetworkInfo{Type: "wifi", IP: "192.168.1.50", Status: "connected"})

	snap := tr.Snapshot()
	assert.True(t, snap.MQTTConnected)
	assert.Equal(t, 3, snap.MQTTBuffered)
	require.NotNil(t, snap.Network)
	assert.Equal(t, "192.168.1.50", snap.Network.IP)
}

func TestSnapshotUptime(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := fixedTracker(start, start.Add(90*time.Second), Config{})
	assert.Equal(t, 90*time.Second, tr.Snapshot().Uptime())
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			tr.Update(logic.Level(i%2), true, Reading{Valid: true, Raw: i}, logic.EventCounts{Cycles: int64(i)})
			tr.SetMQTTConnected(i%2 == 0)
		}(i)
		go func() {
			defer wg.Done()
			_ = tr.Snapshot()
		}()
	}
	wg.Wait()
}

func TestFormatJSONAnalog(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start.Add(time.Hour)
	tr := fixedTracker(start, now, analogConfig())
	tr.Update(logic.High, true, Reading{Valid: true, Raw: 800, Voltage: 3.91, Time: now}, logic.EventCounts{Cycles: 10, Triggers: 2, High: 2, Low: 3})
	tr.SetMQTTConnected(true)
	tr.SetMQTTBuffered(2)

	var sj StatusJSON
	require.NoError(t, json.Unmarshal(FormatJSON(tr.Snapshot()), &sj))

	assert.Equal(t, "analog", sj.Status.Variant)
	assert.Equal(t, "HIGH", sj.Status.Output)
	assert.Equal(t, int64(3600), sj.Status.UptimeSeconds)
	assert.Equal(t, "2026-01-01T00:00:00Z", sj.Status.StartTime)
	assert.Equal(t, "2026-01-01T01:00:00Z", sj.Status.Timestamp)
	require.NotNil(t, sj.Status.Reading)
	assert.Equal(t, 800, sj.Status.Reading.Raw)
	assert.InDelta(t, 3.91, sj.Status.Reading.Voltage, 1e-9)
	assert.True(t, sj.Status.MQTT.Connected)
	assert.Equal(t, 2, sj.Status.MQTT.Buffered)
	assert.Empty(t, sj.Status.Config.WSBroker)
	assert.Equal(t, int64(10), sj.Status.Counts.Cycles)
	assert.Equal(t, int64(2), sj.Status.Counts.Triggers)
	require.NotNil(t, sj.Status.Config.ADCChannel)
	assert.Equal(t, 0, *sj.Status.Config.ADCChannel)
	assert.Equal(t, 3.0, sj.Status.Config.Threshold)
	assert.Equal(t, int64(5000), sj.Status.Config.TimingsMs["signal_duration"])
	assert.Empty(t, sj.Status.Event)
	assert.Nil(t, sj.Status.Network)
}

func TestFormatJSONDigitalOmitsAnalogFields(t *testing.T) {
	cfg := Config{Variant: logic.VariantDigital, OutputPin: 12, InputPin: 25}
	tr := NewTracker(time.Now(), cfg)

	var raw map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal(FormatJSON(tr.Snapshot()), &raw))

	config := raw["status"]["config"].(map[string]interface{})
	assert.NotContains(t, config, "adc_channel")
	assert.NotContains(t, config, "threshold")
	assert.Equal(t, float64(25), config["input_pin"])
	assert.NotContains(t, config, "ws_broker")
	assert.NotContains(t, raw["status"], "reading", "no reading before the first cycle")
	assert.Equal(t, "UNKNOWN", raw["status"]["output"])
}

func TestFormatStatusEvent(t *testing.T) {
	tr := NewTracker(time.Now(), analogConfig())
	tr.SetNetwork(&NetworkInfo{Type: "ethernet", IP: "10.0.0.2", Status: "connected"})

	data := FormatStatusEvent(tr.Snapshot(), "SHUTDOWN", "SIGTERM")

	var sj StatusJSON
	require.NoError(t, json.Unmarshal(data, &sj))
	assert.Equal(t, "SHUTDOWN", sj.Status.Event)
	assert.Equal(t, "SIGTERM", sj.Status.Reason)
	require.NotNil(t, sj.Status.Network)
	assert.Equal(t, "ethernet", sj.Status.Network.Type)
	assert.NotContains(t, string(data), "\n", "MQTT payload is compact")
}
