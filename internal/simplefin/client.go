// Package simplefin is an ingest.Source backed by a SimpleFIN Bridge access URL.
package simplefin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/autobudgeter/internal/common"
	"github.com/Veraticus/autobudgeter/internal/ingest"
	"github.com/Veraticus/autobudgeter/internal/service"
)

const providerName = "simplefin"

// Config holds SimpleFIN credentials. A setup token is claimed once and the resulting
// access URL is saved to StatePath.
type Config struct {
	Token        string
	AccessURL    string
	StatePath    string
	LookbackDays int
}

// Validate ensures an access URL or a setup token is present.
func (c *Config) Validate() error {
	if c.AccessURL == "" && c.Token == "" {
		return common.NewConfigurationError("simplefin.token", nil)
	}
	return nil
}

type accountSet struct {
	Errors   []string  `json:"errors"`
	Accounts []account `json:"accounts"`
}

type account struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Currency     string        `json:"currency"`
	Balance      string        `json:"balance"`
	Transactions []transaction `json:"transactions"`
}

type transaction struct {
	ID          string `json:"id"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
	Payee       string `json:"payee"`
	Posted      int64  `json:"posted"`
	Pending     bool   `json:"pending"`
}

// Client fetches accounts and transactions from a SimpleFIN Bridge.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
	loc        *time.Location
	endpoint   *url.URL
	retryOpts  service.RetryOptions
	lookback   int
}

var _ ingest.Source = (*Client)(nil)

// NewClient creates a client, claiming cfg.Token when no access URL is known yet.
func NewClient(ctx context.Context, cfg Config, loc *time.Location, logger *slog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	httpClient := &http.Client{Timeout: 30 * time.Second}

	accessURL := cfg.AccessURL
	if accessURL == "" {
		auth, err := LoadOrClaim(ctx, httpClient, cfg.Token, cfg.StatePath, logger)
		if err != nil {
			return nil, err
		}
		accessURL = auth.AccessURL
	}
	return newClient(httpClient, accessURL, cfg.LookbackDays, loc, logger)
}

func newClient(httpClient *http.Client, accessURL string, lookback int, loc *time.Location, logger *slog.Logger) (*Client, error) {
	endpoint, err := url.Parse(strings.TrimSuffix(accessURL, "/") + "/accounts")
	if err != nil || (endpoint.Scheme != "http" && endpoint.Scheme != "https") {
		return nil, common.NewConfigurationError("simplefin.access_url",
			fmt.Errorf("%w: not a valid URL", common.ErrInvalidConfig))
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	if lookback <= 0 {
		lookback = 90
	}
	return &Client{
		httpClient: httpClient,
		endpoint:   endpoint,
		loc:        loc,
		lookback:   lookback,
		now:        time.Now,
		logger:     logger.With("component", providerName),
		retryOpts: service.RetryOptions{
			MaxAttempts:  3,
			InitialDelay: time.Second,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
		},
	}, nil
}

// Name implements ingest.Source.
func (c *Client) Name() string {
	return providerName
}

// Fetch returns balances and every transaction posted from since through today,
// pending ones included. The batch is complete only when the bridge reports no
// per-institution errors.
func (c *Client) Fetch(ctx context.Context, since time.Time) (ingest.Batch, error) {
	today := c.now().In(c.loc)
	end := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, c.loc)
	start := end.AddDate(0, 0, -c.lookback)
	if !since.IsZero() {
		s := since.In(c.loc)
		start = time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, c.loc)
	}
	if start.After(end) {
		start = end
	}

	var set accountSet
	err := common.WithRetry(ctx, func() error {
		var err error
		set, err = c.get(ctx, start, end.AddDate(0, 0, 1))
		return err
	}, c.retryOpts)
	if err != nil {
		return ingest.Batch{}, fmt.Errorf("failed to fetch accounts: %w", err)
	}

	for _, msg := range set.Errors {
		c.logger.Warn("SimpleFIN reported an institution error", "message", msg)
	}

	batch := ingest.Batch{
		Start:      start,
		End:        end,
		Convention: ingest.NegativeIsSpend,
		Complete:   len(set.Errors) == 0,
	}
	for _, a := range set.Accounts {
		balance, err := decimal.NewFromString(a.Balance)
		if err != nil {
			c.logger.Warn("Skipping unparseable balance", "account_id", a.ID, "balance", a.Balance)
			balance = decimal.Zero
		}
		batch.Accounts = append(batch.Accounts, ingest.RawAccount{
			ID:             a.ID,
			Name:           a.Name,
			Type:           "depository",
			BalanceCurrent: balance,
		})

		for _, t := range a.Transactions {
			amount, err := decimal.NewFromString(t.Amount)
			if err != nil {
				c.logger.Warn("Skipping transaction with unparseable amount", "transaction_id", t.ID, "amount", t.Amount)
				continue
			}
			// Transaction ids are only unique per account.
			batch.Transactions = append(batch.Transactions, ingest.RawTransaction{
				ExternalID: a.ID + "_" + t.ID,
				AccountID:  a.ID,
				Posted:     time.Unix(t.Posted, 0),
				Merchant:   t.Payee,
				Name:       t.Description,
				Amount:     amount,
				Pending:    t.Pending,
			})
		}
	}

	c.logger.Info("Fetched from SimpleFIN",
		"accounts", len(batch.Accounts),
		"transactions", len(batch.Transactions),
		"complete", batch.Complete)
	return batch, nil
}

// get requests [start, end) where end is exclusive.
func (c *Client) get(ctx context.Context, start, end time.Time) (accountSet, error) {
	u := *c.endpoint
	user := u.User
	u.User = nil

	q := u.Query()
	q.Set("start-date", strconv.FormatInt(start.Unix(), 10))
	q.Set("end-date", strconv.FormatInt(end.Unix(), 10))
	q.Set("pending", "1")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return accountSet{}, &common.RetryableError{Err: fmt.Errorf("failed to create request: %w", err)}
	}
	if user != nil {
		password, _ := user.Password()
		req.SetBasicAuth(user.Username(), password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return accountSet{}, &common.RetryableError{Err: ctx.Err()}
		}
		return accountSet{}, &common.RetryableError{Err: common.NewUpstreamError(providerName, 0, err), Retryable: true}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		upstream := common.NewUpstreamError(providerName, resp.StatusCode,
			fmt.Errorf("SimpleFIN API error: %s", strings.TrimSpace(string(body))))
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return accountSet{}, &common.RetryableError{Err: upstream, Retryable: retryable}
	}

	var set accountSet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return accountSet{}, &common.RetryableError{
			Err: common.NewUpstreamError(providerName, resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)),
		}
	}
	return set, nil
}
