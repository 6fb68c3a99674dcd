package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sweeney/threshold-signaler/internal/mqtt"
	"github.com/sweeney/threshold-signaler/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"volts": func(v float64) string {
		return fmt.Sprintf("%.2f V", v)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Threshold Signaler</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.high { color: green; font-weight: bold; }
.low { color: #888; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
.live-dot.pending { background: orange; }
</style>
</head>
<body>
<h1>Threshold Signaler ({{.Config.Variant}}){{if .Config.WSBroker}}<span id="live-dot" class="live-dot pending" title="connecting"></span>{{end}}</h1>

<h2>Signal</h2>
<table>
<tr><th>Output (pin {{.Config.OutputPin}})</th><td id="output" class="{{if eq .Output "HIGH"}}high{{else if eq .Output "LOW"}}low{{else}}unknown{{end}}">{{.Output}}</td></tr>
{{if .Snapshot.Reading.Valid}}<tr><th>Last reading</th><td id="reading">{{.Snapshot.Reading.Raw}}{{if eq (printf "%s" .Config.Variant) "analog"}} ({{volts .Snapshot.Reading.Voltage}}){{end}}</td></tr>{{else}}<tr><th>Last reading</th><td id="reading" class="unknown">none yet</td></tr>{{end}}
{{if eq (printf "%s" .Config.Variant) "analog"}}<tr><th>Threshold</th><td>{{volts .Config.Threshold}}</td></tr>{{else}}<tr><th>Input pin</th><td>{{.Config.InputPin}}</td></tr>{{end}}
</table>

<h2>Counts</h2>
<table>
<tr><th>Cycles</th><td>{{.Counts.Cycles}}</td></tr>
<tr><th>Triggers</th><td>{{.Counts.Triggers}}</td></tr>
<tr><th>Output HIGH</th><td>{{.Counts.High}}</td></tr>
<tr><th>Output LOW</th><td>{{.Counts.Low}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
{{if .Config.Broker}}<tr><th>Unsent messages</th><td>{{.MQTTBuffered}}</td></tr>
{{end}}<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}disabled{{end}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
{{range .Config.TimingsMs}}<tr><th>{{.Name}}</th><td>{{.Ms}}ms</td></tr>
{{end}}<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>Serial</th><td>{{if .Config.SerialPort}}{{.Config.SerialPort}}{{else}}stdout{{end}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
{{if .Config.WSBroker}}
<script src="/mqtt.min.js"></script>
<script>
(function() {
  var broker = "{{.Config.WSBroker}}";
  var topic = "{{.Topic}}";
  var analog = {{if eq (printf "%s" .Config.Variant) "analog"}}true{{else}}false{{end}};
  var dot = document.getElementById("live-dot");
  var outEl = document.getElementById("output");
  var readingEl = document.getElementById("reading");

  function setDot(cls, title) {
    dot.className = "live-dot " + cls;
    dot.title = title;
  }

  var client = mqtt.connect(broker, { reconnectPeriod: 5000 });

  client.on("connect", function() {
    setDot("ok", "live");
    client.subscribe(topic);
  });
  client.on("reconnect", function() { setDot("pending", "reconnecting"); });
  client.on("offline", function() { setDot("err", "offline"); });
  client.on("error", function() { setDot("err", "error"); });

  client.on("message", function(t, payload) {
    try {
      var msg = JSON.parse(payload.toString());
      if (!msg.signal) return;
      outEl.textContent = msg.signal.output;
      outEl.className = msg.signal.output === "HIGH" ? "high" : "low";
      readingEl.className = "";
      readingEl.textContent = analog
        ? msg.signal.raw + " (" + (msg.signal.voltage || 0).toFixed(2) + " V)"
        : String(msg.signal.raw);
    } catch (e) {}
  });
})();
</script>
{{end}}
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has methods but the template needs plain fields.
	data := struct {
		status.Snapshot
		Uptime time.Duration
		Output string
		Topic  string
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Output:   snap.OutputString(),
		Topic:    mqtt.Topic,
	}
	if err := indexTmpl.Execute(w, data); err != nil {
		log.Error().Err(err).Msg("render status page")
	}
}
