package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/abhishekraut01/Gen-AI/internal/core/domain"
)

// WeatherConfig configures fetchWeather. Without an API key the tool answers
// with a fixed reading.
type WeatherConfig struct {
	APIKey  string
	BaseURL string
	Client  *http.Client
}

type weatherResponse struct {
	Location struct {
		Name    string `json:"name"`
		Country string `json:"country"`
	} `json:"location"`
	Current struct {
		TempC     float64 `json:"temp_c"`
		Condition struct {
			Text string `json:"text"`
		} `json:"condition"`
	} `json:"current"`
}

// NewWeatherTool creates fetchWeather. It only reads and is safe to retry.
func NewWeatherTool(cfg WeatherConfig) *domain.Tool {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.weatherapi.com/v1"
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 15 * time.Second}
	}

	schema := openapi3.NewStringSchema().WithMinLength(1)
	schema.Description = "City name, e.g. nagpur"

	return &domain.Tool{
		Name:          "fetchWeather",
		Description:   "Returns the current weather for a city.",
		InputSchema:   schema,
		ExecutionType: domain.ExecNative,
		RetrySafe:     true,
		Execute: func(ctx context.Context, input any) (string, error) {
			city := strings.TrimSpace(fmt.Sprint(input))
			if city == "" {
				return "", fmt.Errorf("city is required")
			}
			if cfg.APIKey == "" {
				return fmt.Sprintf("weather for %s is 69 degree", city), nil
			}
			return fetchCurrentWeather(ctx, cfg, city)
		},
	}
}

func fetchCurrentWeather(ctx context.Context, cfg WeatherConfig, city string) (string, error) {
	q := url.Values{}
	q.Set("key", cfg.APIKey)
	q.Set("q", city)
	q.Set("aqi", "no")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(cfg.BaseURL, "/")+"/current.json?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("build weather request: %w", err)
	}

	resp, err := cfg.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("weather request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("weather api returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var wr weatherResponse
	if err := json.NewDecoder(resp.Body).Decode(&wr); err != nil {
		return "", fmt.Errorf("decode weather response: %w", err)
	}

	name := wr.Location.Name
	if name == "" {
		name = city
	}
	out := fmt.Sprintf("weather for %s is %.1f°C", name, wr.Current.TempC)
	if wr.Current.Condition.Text != "" {
		out += ", " + strings.ToLower(wr.Current.Condition.Text)
	}
	return out, nil
}
