package tools

import "context"

// Temperature units.
const (
	UnitCelsius    = "C"
	UnitFahrenheit = "F"
)

// WeatherRequest asks for the current weather at a location.
type WeatherRequest struct {
	Location string `json:"location" description:"City name, e.g. San Francisco"`
	Unit     string `json:"unit,omitempty" description:"Temperature unit" enum:"C|F"`
}

// WeatherResponse carries the reported temperature.
type WeatherResponse struct {
	Temp float64 `json:"temp"`
	Unit string  `json:"unit" enum:"C|F"`
}

// CurrentWeather is a stand-in weather service: it reports 30 degrees
// Celsius for every location.
func CurrentWeather(ctx context.Context, req WeatherRequest) (WeatherResponse, error) {
	return WeatherResponse{Temp: 30.0, Unit: UnitCelsius}, nil
}

// NewWeatherTool registers CurrentWeather as "CurrentWeatherService".
func NewWeatherTool() Tool {
	return NewFunction("CurrentWeatherService", "Get the current weather for a location", CurrentWeather)
}
