package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"coinwatch/internal/errs"
)

const fearGreedOp = "fear_greed"

// FearGreedOptions parameterise the alternative.me sentiment source.
type FearGreedOptions struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// FearGreed reads the Crypto Fear & Greed index.
type FearGreed struct {
	logger zerolog.Logger
	client *resty.Client
}

// NewFearGreed constructs the sentiment source.
func NewFearGreed(opts FearGreedOptions, logger zerolog.Logger) *FearGreed {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = "https://api.alternative.me"
	}
	return &FearGreed{
		logger: logger.With().Str("component", "fear_greed").Logger(),
		client: newRESTClient(baseURL, opts.Timeout, opts.UserAgent),
	}
}

type fearGreedResponse struct {
	Data []struct {
		Value          string `json:"value"`
		Classification string `json:"value_classification"`
		Timestamp      string `json:"timestamp"`
	} `json:"data"`
}

// FetchSentiment returns the latest index value.
func (f *FearGreed) FetchSentiment(ctx context.Context) (SentimentReading, error) {
	resp, err := f.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"limit": "1", "format": "json"}).
		Get("/fng/")
	if err != nil {
		return SentimentReading{}, errs.Transient(fearGreedOp, err)
	}
	if resp.IsError() {
		return SentimentReading{}, errs.Transient(fearGreedOp, httpStatusError(resp))
	}

	var payload fearGreedResponse
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return SentimentReading{}, errs.Transient(fearGreedOp, fmt.Errorf("decode response: %w", err))
	}
	if len(payload.Data) == 0 {
		return SentimentReading{}, errs.NotFound(fearGreedOp, "no index data")
	}

	latest := payload.Data[0]
	value, err := strconv.Atoi(strings.TrimSpace(latest.Value))
	if err != nil || value < 0 || value > 100 {
		return SentimentReading{}, errs.Transient(fearGreedOp, fmt.Errorf("invalid index value %q", latest.Value))
	}

	reading := SentimentReading{Value: value, Classification: latest.Classification}
	if ts, err := strconv.ParseInt(strings.TrimSpace(latest.Timestamp), 10, 64); err == nil {
		reading.AsOf = time.Unix(ts, 0).UTC()
	}
	return reading, nil
}

var _ SentimentSource = (*FearGreed)(nil)
