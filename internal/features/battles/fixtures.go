// Package battles — fixtures.go: клиент внешнего фида матчей.
// Фид отдаёт JSON {"fixtures": [...]}; у завершённых матчей заполнено поле result.
package battles

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// FixtureSource — откуда берутся матчи и их итоги.
type FixtureSource interface {
	Fixtures(ctx context.Context) ([]Fixture, error)
}

// FeedClient читает фид по HTTP.
type FeedClient struct {
	httpClient *http.Client
	url        string
}

func NewFeedClient(url string, timeout time.Duration) *FeedClient {
	return &FeedClient{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 90 * time.Second,
			},
		},
		url: url,
	}
}

type feedResponse struct {
	Fixtures []Fixture `json:"fixtures"`
}

// Тело фида больше 8 МБ считаем ошибкой.
const maxFeedBytes = 8 << 20

func (c *FeedClient) Fixtures(ctx context.Context) ([]Fixture, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания запроса к фиду: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("фид недоступен: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("фид ответил %d", resp.StatusCode)
	}

	var body feedResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxFeedBytes)).Decode(&body); err != nil {
		return nil, fmt.Errorf("ошибка разбора фида: %w", err)
	}
	return body.Fixtures, nil
}

// resultsByExternalID — итоги завершённых матчей.
func resultsByExternalID(fixtures []Fixture) map[string]Result {
	out := make(map[string]Result)
	for _, f := range fixtures {
		if f.ExternalID != "" && f.Result != nil && f.Result.Valid() {
			out[f.ExternalID] = *f.Result
		}
	}
	return out
}
