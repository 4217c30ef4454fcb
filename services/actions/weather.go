package actions

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/upb/action-gate/services/gating"
	"go.uber.org/zap"
)

// GetWeatherName is the action name weather rules are registered under
const GetWeatherName = "get_weather"

// DefaultWeatherURL is the wttr.in endpoint queried with format=3
const DefaultWeatherURL = "https://wttr.in"

// GetWeather reports the current weather for a city. It is ungated unless
// rules are authored for it.
type GetWeather struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewGetWeather creates the get_weather action. An empty baseURL uses DefaultWeatherURL.
func NewGetWeather(baseURL string, timeout time.Duration, logger *zap.Logger) *GetWeather {
	if baseURL == "" {
		baseURL = DefaultWeatherURL
	}
	return &GetWeather{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Name implements Action
func (a *GetWeather) Name() string {
	return GetWeatherName
}

// Parameters implements Action
func (a *GetWeather) Parameters() string {
	return `{
  "type": "object",
  "properties": {
    "city": {
      "description": "City to report the weather for",
      "type": "string",
      "minLength": 1,
      "maxLength": 100
    }
  },
  "required": ["city"],
  "additionalProperties": false
}`
}

// Prepare resolves the city. Arguments: city.
func (a *GetWeather) Prepare(ctx context.Context, inv Invocation) (*Target, error) {
	city, err := stringArgument(inv.Arguments, "city")
	if err != nil {
		return nil, err
	}

	return &Target{
		ContextKey: "city_" + strings.ToLower(city),
		Context: gating.GatingContext{
			"city": city,
			"user": inv.User.GatingView(),
		},
		state: city,
	}, nil
}

// Perform fetches a one-line report. Upstream failures become a user-facing
// message rather than an error.
func (a *GetWeather) Perform(ctx context.Context, inv Invocation, target *Target) (string, error) {
	city := target.state.(string)

	line, err := a.fetch(ctx, city)
	if err != nil {
		a.logger.Warn("weather lookup failed", zap.String("city", city), zap.Error(err))
		return fmt.Sprintf("Could not fetch weather for '%s'.", city), nil
	}

	place, report, ok := strings.Cut(line, ":")
	if !ok || strings.TrimSpace(report) == "" {
		return fmt.Sprintf("Could not parse weather data for '%s'.", city), nil
	}
	return fmt.Sprintf("Current weather in %s is %s", strings.TrimSpace(place), strings.TrimSpace(report)), nil
}

func (a *GetWeather) fetch(ctx context.Context, city string) (string, error) {
	endpoint := fmt.Sprintf("%s/%s?format=3", a.baseURL, url.PathEscape(city))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	return strings.TrimSpace(string(body)), nil
}
