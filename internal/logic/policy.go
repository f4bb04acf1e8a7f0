package logic

// Evaluate applies the control policy to a valid reading.
//
// Temperature is only acted on outside [TempMin, TempMax]; inside the band the
// heater and TempAbnormal are carried over from prev. Humidity drives the
// indicator and contributes to Abnormal for this evaluation only.
// At most one AlertEvent is returned, even when both branches escalate.
//
// Callers must not pass invalid readings.
func Evaluate(r Reading, prev ActuatorState, th Thresholds) (ActuatorState, *AlertEvent) {
	next := prev
	alert := false

	switch {
	case r.TemperatureC < th.TempMin:
		next.HeaterOn = true
		next.TempAbnormal = false
	case r.TemperatureC > th.TempMax:
		next.HeaterOn = false
		next.TempAbnormal = r.TemperatureC > th.TempMax+th.TempAbnormalMargin
		alert = next.TempAbnormal
	}

	humAbnormal := false
	if r.HumidityPct < th.HumMin || r.HumidityPct > th.HumMax {
		next.HumidityIndicatorOn = true
		if r.HumidityPct < th.HumMin-th.HumAbnormalMargin || r.HumidityPct > th.HumMax+th.HumAbnormalMargin {
			humAbnormal = true
			alert = true
		}
	} else {
		next.HumidityIndicatorOn = false
	}

	next.Abnormal = next.TempAbnormal || humAbnormal

	if !alert {
		return next, nil
	}
	return next, &AlertEvent{
		TemperatureC: r.TemperatureC,
		HumidityPct:  r.HumidityPct,
	}
}
