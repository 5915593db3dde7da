package output

import (
	"strings"
	"time"

	"huawei-solar/internal/inverter"
	"huawei-solar/internal/registers"
)

const prettyHeader = "---Inverter status---"

type label struct {
	text      string
	unit      string
	timestamp bool
}

// labels lists what the pretty report knows how to print. Keys missing here,
// such as grid_current and time_zone, are left out of the report.
var labels = map[string]label{
	"model_name":               {text: "Model name"},
	"serial_number":            {text: "Serial number"},
	"input_power":              {text: "Input power", unit: "W"},
	"grid_voltage":             {text: "Grid voltage", unit: "V"},
	"line_voltage_a_b":         {text: "Line voltage A-B", unit: "V"},
	"line_voltage_b_c":         {text: "Line voltage B-C", unit: "V"},
	"line_voltage_c_a":         {text: "Line voltage C-A", unit: "V"},
	"phase_a_voltage":          {text: "Phase A voltage", unit: "V"},
	"phase_b_voltage":          {text: "Phase B voltage", unit: "V"},
	"phase_c_voltage":          {text: "Phase C voltage", unit: "V"},
	"phase_a_current":          {text: "Phase A current", unit: "A"},
	"phase_b_current":          {text: "Phase B current", unit: "A"},
	"phase_c_current":          {text: "Phase C current", unit: "A"},
	"day_active_power_peak":    {text: "Day active power peak", unit: "W"},
	"active_power":             {text: "Active power", unit: "W"},
	"reactive_power":           {text: "Reactive power", unit: "VA"},
	"power_factor":             {text: "Power factor"},
	"grid_frequency":           {text: "Grid frequency", unit: "Hz"},
	"efficiency":               {text: "Efficiency", unit: "%"},
	"internal_temperature":     {text: "Internal temperature", unit: "°C"},
	"insulation_resistance":    {text: "Insulation resistance", unit: "MΩ"},
	"device_status":            {text: "Device status"},
	"startup_time":             {text: "Startup time", unit: "(inverter's time)", timestamp: true},
	"shutdown_time":            {text: "Shutdown time", unit: "(inverter's time)", timestamp: true},
	"accumulated_yield_energy": {text: "Accumulated yield energy", unit: "kWh"},
	"daily_yield_energy":       {text: "Daily yield energy", unit: "kWh"},
}

// Pretty renders res as the plain text status report, one line per known key
// in key order.
func Pretty(res inverter.Result) string {
	var b strings.Builder
	b.WriteString(prettyHeader)
	b.WriteByte('\n')

	for _, key := range res.Keys() {
		l, ok := labels[key]
		if !ok {
			continue
		}
		b.WriteString(l.text)
		b.WriteString(": ")
		b.WriteString(formatValue(res[key], l.timestamp))
		if l.unit != "" {
			b.WriteByte(' ')
			b.WriteString(l.unit)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func formatValue(v registers.Value, timestamp bool) string {
	if !timestamp || v.IsText() {
		return v.String()
	}
	return FormatTimestamp(v.Number())
}

// FormatTimestamp prints epoch seconds as "YYYY-MM-DD HH:MM:SS" in UTC.
func FormatTimestamp(seconds float64) string {
	return time.Unix(int64(seconds), 0).UTC().Format(time.DateTime)
}
