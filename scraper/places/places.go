package places

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"inspection-reviews/config"
	"inspection-reviews/metrics"
	"inspection-reviews/models"
	"inspection-reviews/utils"
)

const (
	endpointSearch  = "textsearch"
	endpointDetails = "details"

	// MaxReviews is the upstream cap on reviews returned per place.
	MaxReviews = 5
)

// ErrUpstream is returned when the API answers with a non-success status.
var ErrUpstream = errors.New("places: upstream error")

// Options configures a Client.
type Options struct {
	BaseURL        string
	RadiusM        int
	Timeout        time.Duration
	MaxRetries     int
	RetryBaseDelay time.Duration
	UserAgent      string
}

// Client talks to the place text-search and place-details endpoints.
type Client struct {
	baseURL   string
	radiusM   int
	userAgent string
	client    *http.Client
	retry     *utils.RetryConfig
	logger    *utils.Logger
	metrics   *metrics.Pipeline
}

// New creates a Client. m may be nil.
func New(opts Options, logger *utils.Logger, m *metrics.Pipeline) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://maps.googleapis.com/maps/api/place"
	}
	if opts.RadiusM <= 0 {
		opts.RadiusM = 1000
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 60 * time.Second}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 32,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	return &Client{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		radiusM:   opts.RadiusM,
		userAgent: opts.UserAgent,
		client:    &http.Client{Timeout: opts.Timeout, Transport: tr},
		retry: &utils.RetryConfig{
			MaxAttempts: opts.MaxRetries,
			BaseDelay:   opts.RetryBaseDelay,
			Logger:      logger,
		},
		logger:  logger,
		metrics: m,
	}
}

// NewFromConfig creates a Client from application config.
func NewFromConfig(cfg *config.Config, logger *utils.Logger, m *metrics.Pipeline) *Client {
	return New(Options{
		BaseURL:        cfg.PlacesBaseURL,
		RadiusM:        cfg.SearchRadiusM,
		Timeout:        time.Duration(cfg.RequestTimeoutMs) * time.Millisecond,
		MaxRetries:     cfg.MaxRetries,
		RetryBaseDelay: time.Duration(cfg.RetryBaseDelayMs) * time.Millisecond,
		UserAgent:      "inspection-reviews/1.0",
	}, logger, m)
}

type upstreamStatus interface {
	status() (string, string)
}

type searchResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		PlaceID string `json:"place_id"`
	} `json:"results"`
}

func (r *searchResponse) status() (string, string) { return r.Status, r.ErrorMessage }

type detailsResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Result       *struct {
		Rating               *float64          `json:"rating"`
		Website              *string           `json:"website"`
		FormattedPhoneNumber *string           `json:"formatted_phone_number"`
		UserRatingsTotal     *int              `json:"user_ratings_total"`
		Photos               []json.RawMessage `json:"photos"`
		Reviews              []struct {
			Rating float64 `json:"rating"`
			Text   string  `json:"text"`
			Time   *int64  `json:"time"`
		} `json:"reviews"`
	} `json:"result"`
}

func (r *detailsResponse) status() (string, string) { return r.Status, r.ErrorMessage }

// Resolve runs a text search for name within the configured radius of
// (lat, lng) and returns the first candidate's place id. An empty id with a
// nil error means the search found no candidate.
func (c *Client) Resolve(ctx context.Context, apiKey, name, lat, lng string) (string, error) {
	q := url.Values{}
	q.Set("query", name)
	if lat != "" && lng != "" {
		q.Set("location", lat+","+lng)
		q.Set("radius", strconv.Itoa(c.radiusM))
	}
	q.Set("key", apiKey)

	var resp searchResponse
	if err := c.call(ctx, endpointSearch, q, &resp); err != nil {
		return "", err
	}
	if len(resp.Results) == 0 {
		return "", nil
	}
	return resp.Results[0].PlaceID, nil
}

// Details fetches the place-details record for placeID. Fields the upstream
// omits stay nil; PhotoCount defaults to 0.
func (c *Client) Details(ctx context.Context, apiKey, placeID string) (*models.Enrichment, error) {
	q := url.Values{}
	q.Set("placeid", placeID)
	q.Set("key", apiKey)

	var resp detailsResponse
	if err := c.call(ctx, endpointDetails, q, &resp); err != nil {
		return nil, err
	}
	if resp.Result == nil {
		return nil, fmt.Errorf("%w: details for %s missing result", ErrUpstream, placeID)
	}

	res := resp.Result
	out := &models.Enrichment{
		PlaceID:          placeID,
		Rating:           res.Rating,
		Website:          res.Website,
		Phone:            res.FormattedPhoneNumber,
		UserRatingsTotal: res.UserRatingsTotal,
		PhotoCount:       len(res.Photos),
	}
	for i, r := range res.Reviews {
		if i == MaxReviews {
			break
		}
		out.Reviews = append(out.Reviews, models.Review{Rating: r.Rating, Text: r.Text, Time: r.Time})
	}
	return out, nil
}

// call performs a GET against endpoint with retries and decodes the body into out.
func (c *Client) call(ctx context.Context, endpoint string, q url.Values, out upstreamStatus) error {
	u := fmt.Sprintf("%s/%s/json?%s", c.baseURL, endpoint, q.Encode())

	return c.retry.Do(ctx, "places-"+endpoint, func() error {
		start := time.Now()
		err := c.do(ctx, u, out)
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		c.metrics.ObserveRequest(endpoint, outcome, time.Since(start))
		return err
	})
}

func (c *Client) do(ctx context.Context, u string, out upstreamStatus) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return utils.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return redactKey(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%w: http %d", ErrUpstream, resp.StatusCode)
	}
	if resp.StatusCode/100 != 2 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return utils.Permanent(fmt.Errorf("%w: http %d", ErrUpstream, resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return utils.Permanent(fmt.Errorf("places: decode response: %w", err))
	}

	status, msg := out.status()
	switch status {
	case "", "OK", "ZERO_RESULTS":
		return nil
	case "OVER_QUERY_LIMIT", "UNKNOWN_ERROR":
		return fmt.Errorf("%w: status %s %s", ErrUpstream, status, msg)
	default:
		return utils.Permanent(fmt.Errorf("%w: status %s %s", ErrUpstream, status, msg))
	}
}

// redactKey strips the key query parameter from url errors so credentials never reach the logs.
func redactKey(err error) error {
	var uerr *url.Error
	if !errors.As(err, &uerr) {
		return err
	}
	parsed, perr := url.Parse(uerr.URL)
	if perr != nil {
		return err
	}
	q := parsed.Query()
	if q.Has("key") {
		q.Set("key", "REDACTED")
		parsed.RawQuery = q.Encode()
	}
	return &url.Error{Op: uerr.Op, URL: parsed.String(), Err: uerr.Err}
}
