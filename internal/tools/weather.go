package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const (
	geocodeEndpoint  = "https://geocoding-api.open-meteo.com/v1/search"
	forecastEndpoint = "https://api.open-meteo.com/v1/forecast"
	weatherTimeout   = 15 * time.Second
)

// WeatherTool answers weather questions via the Open-Meteo public API.
type WeatherTool struct {
	client *http.Client
}

func NewWeatherTool() *WeatherTool {
	return &WeatherTool{client: &http.Client{Timeout: weatherTimeout}}
}

func (t *WeatherTool) Name() string { return "get_weather" }

func (t *WeatherTool) Description() string {
	return "Get the current weather and today's forecast for a city."
}

func (t *WeatherTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"city": map[string]interface{}{
				"type":        "string",
				"description": "City name, optionally with country (e.g. 'Lisbon' or 'Springfield, US').",
			},
		},
		"required": []string{"city"},
	}
}

func (t *WeatherTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	city, _ := args["city"].(string)
	if city == "" {
		return ErrorResult("city is required")
	}

	lat, lon, name, err := t.geocode(ctx, city)
	if err != nil {
		return ErrorResult(fmt.Sprintf("could not locate %q: %v", city, err))
	}

	forecast, err := t.forecast(ctx, lat, lon)
	if err != nil {
		return ErrorResult(fmt.Sprintf("forecast for %s failed: %v", name, err))
	}

	return NewResult(fmt.Sprintf("Weather in %s: %s, %.1f°C (feels like %.1f°C), wind %.0f km/h. Today: %.1f°C to %.1f°C.",
		name,
		describeWeatherCode(forecast.Current.WeatherCode),
		forecast.Current.Temperature,
		forecast.Current.ApparentTemperature,
		forecast.Current.WindSpeed,
		forecast.Daily.TemperatureMin[0],
		forecast.Daily.TemperatureMax[0]))
}

func (t *WeatherTool) geocode(ctx context.Context, city string) (lat, lon float64, name string, err error) {
	q := url.Values{"name": {city}, "count": {"1"}}
	req, err := http.NewRequestWithContext(ctx, "GET", geocodeEndpoint+"?"+q.Encode(), nil)
	if err != nil {
		return 0, 0, "", err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return 0, 0, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, 0, "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	var parsed struct {
		Results []struct {
			Name      string  `json:"name"`
			Country   string  `json:"country"`
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return 0, 0, "", err
	}
	if len(parsed.Results) == 0 {
		return 0, 0, "", fmt.Errorf("no match")
	}

	r := parsed.Results[0]
	display := r.Name
	if r.Country != "" {
		display += ", " + r.Country
	}
	return r.Latitude, r.Longitude, display, nil
}

type forecastResponse struct {
	Current struct {
		Temperature         float64 `json:"temperature_2m"`
		ApparentTemperature float64 `json:"apparent_temperature"`
		WindSpeed           float64 `json:"wind_speed_10m"`
		WeatherCode         int     `json:"weather_code"`
	} `json:"current"`
	Daily struct {
		TemperatureMax []float64 `json:"temperature_2m_max"`
		TemperatureMin []float64 `json:"temperature_2m_min"`
	} `json:"daily"`
}

func (t *WeatherTool) forecast(ctx context.Context, lat, lon float64) (*forecastResponse, error) {
	q := url.Values{
		"latitude":      {fmt.Sprintf("%.4f", lat)},
		"longitude":     {fmt.Sprintf("%.4f", lon)},
		"current":       {"temperature_2m,apparent_temperature,wind_speed_10m,weather_code"},
		"daily":         {"temperature_2m_max,temperature_2m_min"},
		"forecast_days": {"1"},
		"timezone":      {"auto"},
	}
	req, err := http.NewRequestWithContext(ctx, "GET", forecastEndpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	var parsed forecastResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	if len(parsed.Daily.TemperatureMax) == 0 || len(parsed.Daily.TemperatureMin) == 0 {
		return nil, fmt.Errorf("empty forecast")
	}
	return &parsed, nil
}

// describeWeatherCode maps WMO weather interpretation codes to short phrases.
func describeWeatherCode(code int) string {
	switch {
	case code == 0:
		return "clear sky"
	case code <= 2:
		return "partly cloudy"
	case code == 3:
		return "overcast"
	case code == 45 || code == 48:
		return "fog"
	case code >= 51 && code <= 57:
		return "drizzle"
	case code >= 61 && code <= 67:
		return "rain"
	case code >= 71 && code <= 77:
		return "snow"
	case code >= 80 && code <= 82:
		return "rain showers"
	case code == 85 || code == 86:
		return "snow showers"
	case code >= 95:
		return "thunderstorm"
	default:
		return "unknown conditions"
	}
}
