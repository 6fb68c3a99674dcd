package web

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/threshold-signaler/internal/logic"
	"github.com/sweeney/threshold-signaler/internal/status"
)

func newTestServer(t *testing.T, variant logic.Variant) (*httptest.Server, *status.Tracker) {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := status.Config{
		Variant:   variant,
		OutputPin: 12,
		InputPin:  25,
		Threshold: 3.0,
		TimingsMs: []status.TimingMs{
			{Name: "loop_delay", Ms: 1000},
			{Name: "signal_duration", Ms: 5000},
			{Name: "reset_delay", Ms: 4000},
		},
		HeartbeatMs: 900000,
		Broker:      "tcp://192.168.1.200:1883",
		HTTPAddr:    ":8080",
	}
	tr := status.NewTracker(start, cfg)
	srv := New(":0", tr)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, tr
}

func getJSON(t *testing.T, url string) status.StatusJSON {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var sj status.StatusJSON
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sj))
	return sj
}

func getBody(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestJSONEndpoint(t *testing.T) {
	ts, tr := newTestServer(t, logic.VariantAnalog)
	tr.Update(logic.High, true, status.Reading{Valid: true, Raw: 900, Voltage: 4.4}, logic.EventCounts{Cycles: 5, Triggers: 2})
	tr.SetMQTTConnected(true)

	sj := getJSON(t, ts.URL+"/index.json")

	assert.Equal(t, "analog", sj.Status.Variant)
	assert.Equal(t, "HIGH", sj.Status.Output)
	require.NotNil(t, sj.Status.Reading)
	assert.Equal(t, 900, sj.Status.Reading.Raw)
	assert.True(t, sj.Status.MQTT.Connected)
	assert.Equal(t, "tcp://192.168.1.200:1883", sj.Status.MQTT.Broker)
	assert.Equal(t, int64(5), sj.Status.Counts.Cycles)
	assert.Equal(t, int64(2), sj.Status.Counts.Triggers)
	assert.Equal(t, int64(1000), sj.Status.Config.TimingsMs["loop_delay"])
}

func TestJSONUnknownOutputBeforeFirstCycle(t *testing.T) {
	ts, _ := newTestServer(t, logic.VariantDigital)

	sj := getJSON(t, ts.URL+"/index.json")
	assert.Equal(t, "UNKNOWN", sj.Status.Output)
	assert.Nil(t, sj.Status.Reading)
}

func TestJSONNetworkInfo(t *testing.T) {
	ts, tr := newTestServer(t, logic.VariantAnalog)
	tr.SetNetwork(&status.NetworkInfo{
		Type:   "wifi",
		IP:     "192.168.1.42",
		Status: "connected",
		SSID:   "MyNet",
	})

	sj := getJSON(t, ts.URL+"/index.json")
	require.NotNil(t, sj.Status.Network)
	assert.Equal(t, "192.168.1.42", sj.Status.Network.IP)
}

func TestHTMLEndpointRoot(t *testing.T) {
	ts, tr := newTestServer(t, logic.VariantAnalog)
	tr.Update(logic.Low, true, status.Reading{Valid: true, Raw: 100, Voltage: 0.49}, logic.EventCounts{Cycles: 1})

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html"))

	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "Threshold Signaler (analog)")
	assert.Contains(t, string(body), `class="low">LOW`)
	assert.Contains(t, string(body), "0.49 V")
	assert.Contains(t, string(body), "3.00 V")
	assert.Contains(t, string(body), "signal_duration")
}

func TestHTMLDigitalShowsInputPin(t *testing.T) {
	ts, tr := newTestServer(t, logic.VariantDigital)
	tr.SetOutput(logic.High)

	code, body := getBody(t, ts.URL+"/index.html")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "Input pin")
	assert.Contains(t, body, `class="high">HIGH`)
	assert.NotContains(t, body, "Threshold</th>")
}

func TestNotFoundForUnknownPath(t *testing.T) {
	ts, _ := newTestServer(t, logic.VariantAnalog)

	code, _ := getBody(t, ts.URL+"/nonexistent")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestStateChangesReflectedInResponse(t *testing.T) {
	ts, tr := newTestServer(t, logic.VariantDigital)

	sj := getJSON(t, ts.URL+"/index.json")
	assert.False(t, sj.Status.MQTT.Connected)

	tr.Update(logic.Low, true, status.Reading{Valid: true, Raw: 1}, logic.EventCounts{Cycles: 1, Triggers: 1, High: 1, Low: 1})
	tr.SetMQTTConnected(true)

	sj = getJSON(t, ts.URL+"/index.json")
	assert.Equal(t, "LOW", sj.Status.Output)
	assert.Equal(t, int64(1), sj.Status.Counts.Triggers)
	assert.True(t, sj.Status.MQTT.Connected)
}

func TestUptimeFormatting(t *testing.T) {
	var buf bytes.Buffer
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	renderHTML(&buf, status.Snapshot{
		StartTime: start,
		Now:       start.Add(26*time.Hour + 3*time.Minute + 4*time.Second),
	})
	assert.Contains(t, buf.String(), "1d 2h 3m 4s")
}

func newLiveServer(t *testing.T, wsBroker string) *httptest.Server {
	t.Helper()
	tr := status.NewTracker(time.Now(), status.Config{
		Variant:  logic.VariantAnalog,
		Broker:   "tcp://192.168.1.200:1883",
		WSBroker: wsBroker,
	})
	ts := httptest.NewServer(New(":0", tr).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestLivePageSubscribesWhenWSBrokerSet(t *testing.T) {
	ts := newLiveServer(t, "ws://192.168.1.200:9001")

	code, body := getBody(t, ts.URL+"/")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `id="live-dot"`)
	assert.Contains(t, body, `<script src="/mqtt.min.js"></script>`)
	assert.Contains(t, body, `ws:\/\/192.168.1.200:9001`)
	assert.Contains(t, body, `gpio\/threshold-signaler\/events`)
	assert.Contains(t, body, "var analog = true;")
}

func TestLivePageOmittedWithoutWSBroker(t *testing.T) {
	ts := newLiveServer(t, "")

	_, body := getBody(t, ts.URL+"/")
	assert.NotContains(t, body, "live-dot\"")
	assert.NotContains(t, body, "<script")

	code, _ := getBody(t, ts.URL+"/mqtt.min.js")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestMQTTJSRedirect(t *testing.T) {
	ts := newLiveServer(t, "ws://broker:9001")

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	resp, err := client.Get(ts.URL + "/mqtt.min.js")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, MQTTJSURL, resp.Header.Get("Location"))
}

func TestWriteMethodsRejected(t *testing.T) {
	ts, _ := newTestServer(t, logic.VariantAnalog)

	resp, err := http.Post(ts.URL+"/index.json", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, "GET, HEAD", resp.Header.Get("Allow"))
}

func TestUnsentMessagesShown(t *testing.T) {
	ts, tr := newTestServer(t, logic.VariantDigital)
	tr.SetMQTTBuffered(7)

	sj := getJSON(t, ts.URL+"/index.json")
	assert.Equal(t, 7, sj.Status.MQTT.Buffered)

	_, body := getBody(t, ts.URL+"/")
	assert.Contains(t, body, "<tr><th>Unsent messages</th><td>7</td></tr>")
}
