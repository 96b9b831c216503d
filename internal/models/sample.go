package models

// Sample is one control cycle as seen by the loop.
type Sample struct {
	Index    int     `json:"index"`
	T        float64 `json:"t"`          // seconds since run start
	Measured float64 `json:"measured_c"` // °C
	Setpoint float64 `json:"setpoint_c"` // °C
	Output   float64 `json:"output_pct"` // heater power, 0..100
}
