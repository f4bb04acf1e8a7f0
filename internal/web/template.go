package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/incubator/internal/status"
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
	"onOff": func(b bool) string {
		if b {
			return "ON"
		}
		return "OFF"
	},
	"rfc3339": func(t time.Time) string {
		return t.UTC().Format(time.RFC3339)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="5">
<title>Egg Incubator</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.alarm { color: red; font-weight: bold; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Egg Incubator</h1>

<h2>Chamber</h2>
<table>
{{if .Reading.Valid}}<tr><th>Temperature</th><td id="temperature">{{printf "%.1f" .Reading.TemperatureC}} &deg;C</td></tr>
<tr><th>Humidity</th><td id="humidity">{{printf "%.1f" .Reading.HumidityPct}} %</td></tr>
<tr><th>Read at</th><td>{{rfc3339 .Reading.Time}}{{if not .LastSampleValid}} <span class="alarm">sensor fault</span>{{end}}</td></tr>
{{else}}<tr><th>Reading</th><td class="off">waiting for sensor</td></tr>{{end}}
</table>

<h2>Outputs</h2>
<table>
<tr><th>Heater</th><td id="heater" class="{{if .State.HeaterOn}}on{{else}}off{{end}}">{{onOff .State.HeaterOn}}</td></tr>
<tr><th>Humidity indicator</th><td id="humidity-indicator" class="{{if .State.HumidityIndicatorOn}}on{{else}}off{{end}}">{{onOff .State.HumidityIndicatorOn}}</td></tr>
<tr><th>Condition</th><td id="condition" class="{{if .State.Abnormal}}alarm{{else}}off{{end}}">{{if .State.Abnormal}}ABNORMAL{{else}}normal{{end}}</td></tr>
<tr><th>Simulated high temp</th><td>{{if .Simulating}}<span class="alarm">active</span>{{else}}off{{end}}</td></tr>
<tr><th>Phase</th><td>{{.Phase}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>Topic root</th><td>{{.Config.TopicRoot}}</td></tr>
</table>

<h2>Recent Alerts</h2>
{{if .RecentAlerts}}<table>
<tr><th>Time</th><th>Temperature</th><th>Humidity</th></tr>
{{range .RecentAlerts}}<tr><td>{{rfc3339 .Time}}</td><td>{{printf "%.1f" .TemperatureC}} &deg;C</td><td>{{printf "%.1f" .HumidityPct}} %</td></tr>
{{end}}</table>{{else}}<p class="off">none</p>{{end}}

<h2>Counts</h2>
<table>
<tr><th>Samples</th><td>{{.Counts.Samples}}</td></tr>
<tr><th>Sensor faults</th><td>{{.Counts.Faults}}</td></tr>
<tr><th>Alerts</th><td>{{.Counts.Alerts}}</td></tr>
<tr><th>Publishes</th><td>{{.Counts.Publishes}} ({{.Counts.PublishesSkipped}} skipped, {{.Counts.PublishErrors}} failed)</td></tr>
<tr><th>Commands</th><td>{{.Counts.Commands}} ({{.Counts.CommandsMalformed}} malformed)</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{rfc3339 .StartTime}}</td></tr>
<tr><th>Sample</th><td>{{.Config.SampleMs}}ms</td></tr>
<tr><th>Publish</th><td>{{.Config.PublishMs}}ms</td></tr>
<tr><th>Temperature band</th><td>{{.Config.Thresholds.TempMin}} &ndash; {{.Config.Thresholds.TempMax}} &deg;C</td></tr>
<tr><th>Humidity band</th><td>{{.Config.Thresholds.HumMin}} &ndash; {{.Config.Thresholds.HumMax}} %</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> &middot; <a href="/alerts.json">Alerts</a> &middot; <a href="/metrics">Metrics</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime       time.Duration
		RecentAlerts []status.AlertRecord
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	for i := len(snap.Alerts) - 1; i >= 0; i-- {
		data.RecentAlerts = append(data.RecentAlerts, snap.Alerts[i])
	}
	indexTmpl.Execute(w, data)
}
