package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Temperature       *float64   `json:"temperature"`
	Humidity          *float64   `json:"humidity"`
	ReadingTime       string     `json:"reading_time,omitempty"`
	LastSampleValid   bool       `json:"last_sample_valid"`
	Heater            bool       `json:"heater"`
	HumidityIndicator bool       `json:"humidity_indicator"`
	Abnormal          bool       `json:"abnormal"`
	Phase             string     `json:"phase"`
	SimulateHighTemp  bool       `json:"simulate_high_temp"`
	UptimeSeconds     int64      `json:"uptime_seconds"`
	StartTime         string     `json:"start_time"`
	Timestamp         string     `json:"timestamp"`
	MQTT              MQTTStatus `json:"mqtt"`
	Counts            CountsJSON `json:"counts"`
	Config            ConfigJSON `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
	TopicRoot string `json:"topic_root"`
}

// CountsJSON is the JSON representation of loop counters.
type CountsJSON struct {
	Samples           int `json:"samples"`
	Faults            int `json:"faults"`
	Alerts            int `json:"alerts"`
	Publishes         int `json:"publishes"`
	PublishesSkipped  int `json:"publishes_skipped"`
	PublishErrors     int `json:"publish_errors"`
	Commands          int `json:"commands"`
	CommandsMalformed int `json:"commands_malformed"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	SampleMs   int64          `json:"sample_ms"`
	PublishMs  int64          `json:"publish_ms"`
	HTTPAddr   string         `json:"http_addr"`
	Thresholds ThresholdsJSON `json:"thresholds"`
}

// ThresholdsJSON is the JSON representation of the control thresholds.
type ThresholdsJSON struct {
	TempMin            float64 `json:"temp_min"`
	TempMax            float64 `json:"temp_max"`
	HumMin             float64 `json:"hum_min"`
	HumMax             float64 `json:"hum_max"`
	TempAbnormalMargin float64 `json:"temp_abnormal_margin"`
	HumAbnormalMargin  float64 `json:"hum_abnormal_margin"`
}

// AlertsJSON is the envelope for the recent alerts endpoint.
type AlertsJSON struct {
	Alerts []AlertJSON `json:"alerts"`
}

// AlertJSON is one alert record.
type AlertJSON struct {
	Time        string  `json:"time"`
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
}

func buildInner(snap Snapshot) StatusInner {
	th := snap.Config.Thresholds
	inner := StatusInner{
		LastSampleValid:   snap.LastSampleValid,
		Heater:            snap.State.HeaterOn,
		HumidityIndicator: snap.State.HumidityIndicatorOn,
		Abnormal:          snap.State.Abnormal,
		Phase:             snap.Phase,
		SimulateHighTemp:  snap.Simulating,
		UptimeSeconds:     int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:         snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:         snap.Now.UTC().Format(time.RFC3339),
		MQTT: MQTTStatus{
			Connected: snap.MQTTConnected,
			Broker:    snap.Config.Broker,
			TopicRoot: snap.Config.TopicRoot,
		},
		Counts: CountsJSON(snap.Counts),
		Config: ConfigJSON{
			SampleMs:  snap.Config.SampleMs,
			PublishMs: snap.Config.PublishMs,
			HTTPAddr:  snap.Config.HTTPAddr,
			Thresholds: ThresholdsJSON{
				TempMin:            th.TempMin,
				TempMax:            th.TempMax,
				HumMin:             th.HumMin,
				HumMax:             th.HumMax,
				TempAbnormalMargin: th.TempAbnormalMargin,
				HumAbnormalMargin:  th.HumAbnormalMargin,
			},
		},
	}
	if snap.Reading.Valid {
		temp, hum := snap.Reading.TemperatureC, snap.Reading.HumidityPct
		inner.Temperature = &temp
		inner.Humidity = &hum
		inner.ReadingTime = snap.Reading.Time.UTC().Format(time.RFC3339)
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint.
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatAlertsJSON returns the recent alerts, newest first.
func FormatAlertsJSON(snap Snapshot) []byte {
	out := AlertsJSON{Alerts: make([]AlertJSON, 0, len(snap.Alerts))}
	for i := len(snap.Alerts) - 1; i >= 0; i-- {
		a := snap.Alerts[i]
		out.Alerts = append(out.Alerts, AlertJSON{
			Time:        a.Time.UTC().Format(time.RFC3339),
			Temperature: a.TemperatureC,
			Humidity:    a.HumidityPct,
		})
	}
	data, _ := json.MarshalIndent(out, "", "  ")
	return data
}
