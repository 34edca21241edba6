package models

import "strings"

// WeatherData is the normalized current-conditions report from the
// provider chain. Conditions feeds the storm check during an alert pass.
type WeatherData struct {
	ZipCode     string   `json:"zip_code"`
	TempF       int      `json:"temp_f"`
	Humidity    int      `json:"humidity"`
	Conditions  []string `json:"conditions"`
	Description string   `json:"description"`
}

// Stormy reports whether the conditions warrant the storm variant of the
// alert message.
func (w WeatherData) Stormy() bool {
	for _, c := range w.Conditions {
		lc := strings.ToLower(c)
		if strings.Contains(lc, "thunderstorm") || strings.Contains(lc, "tornado") {
			return true
		}
	}
	return false
}
