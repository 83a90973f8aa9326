// Package plaid fetches balances and transactions from the Plaid API.
package plaid

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/plaid/plaid-go/v20/plaid"
	"github.com/shopspring/decimal"

	"github.com/Veraticus/autobudgeter/internal/common"
	"github.com/Veraticus/autobudgeter/internal/ingest"
	"github.com/Veraticus/autobudgeter/internal/service"
)

const (
	providerName = "plaid"
	pageSize     = int32(500) // Plaid's max page size
	dateLayout   = "2006-01-02"
)

// Config holds Plaid API configuration.
type Config struct {
	ClientID     string
	Secret       string
	Environment  string // sandbox or production
	AccessToken  string
	BaseURL      string // overrides Environment when set
	LookbackDays int
}

// Validate ensures all required fields are present.
func (c *Config) Validate() error {
	if c.ClientID == "" {
		return common.NewConfigurationError("plaid.client_id", nil)
	}
	if c.Secret == "" {
		return common.NewConfigurationError("plaid.secret", nil)
	}
	if c.AccessToken == "" {
		return common.NewConfigurationError("plaid.access_token", nil)
	}
	if c.BaseURL != "" {
		return nil
	}
	switch c.Environment {
	case "sandbox", "production":
		return nil
	case "":
		return common.NewConfigurationError("plaid.environment", nil)
	default:
		return common.NewConfigurationError("plaid.environment",
			fmt.Errorf("%w: must be sandbox or production, got %q", common.ErrInvalidConfig, c.Environment))
	}
}

// api is the subset of Plaid the client calls.
type api interface {
	balances(ctx context.Context, accessToken string) ([]plaid.AccountBase, error)
	transactions(ctx context.Context, accessToken, start, end string, offset int32) ([]plaid.Transaction, int32, error)
}

// Client is an ingest.Source backed by Plaid.
type Client struct {
	api         api
	logger      *slog.Logger
	now         func() time.Time
	loc         *time.Location
	retryOpts   service.RetryOptions
	accessToken string
	lookback    int
}

var _ ingest.Source = (*Client)(nil)

// NewClient creates a new Plaid client. Dates sent to Plaid are calendar days in loc.
func NewClient(cfg Config, loc *time.Location, logger *slog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	configuration := plaid.NewConfiguration()
	configuration.AddDefaultHeader("PLAID-CLIENT-ID", cfg.ClientID)
	configuration.AddDefaultHeader("PLAID-SECRET", cfg.Secret)

	switch {
	case cfg.BaseURL != "":
		configuration.UseEnvironment(plaid.Environment(cfg.BaseURL))
	case cfg.Environment == "production":
		configuration.UseEnvironment(plaid.Production)
	default:
		configuration.UseEnvironment(plaid.Sandbox)
	}

	return newClient(&sdkAPI{client: plaid.NewAPIClient(configuration)}, cfg, loc, logger), nil
}

func newClient(a api, cfg Config, loc *time.Location, logger *slog.Logger) *Client {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	lookback := cfg.LookbackDays
	if lookback <= 0 {
		lookback = 90
	}
	return &Client{
		api:         a,
		accessToken: cfg.AccessToken,
		loc:         loc,
		lookback:    lookback,
		now:         time.Now,
		logger:      logger.With("component", "plaid"),
		retryOpts: service.RetryOptions{
			MaxAttempts:  3,
			InitialDelay: 1 * time.Second,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
		},
	}
}

// Name implements ingest.Source.
func (c *Client) Name() string {
	return providerName
}

// Fetch returns current balances and every transaction dated from since through today.
// A zero since falls back to the configured lookback window.
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

	accounts, err := c.fetchAccounts(ctx)
	if err != nil {
		return ingest.Batch{}, err
	}

	txns, err := c.fetchTransactions(ctx, start.Format(dateLayout), end.Format(dateLayout))
	if err != nil {
		return ingest.Batch{}, err
	}

	return ingest.Batch{
		Start:        start,
		End:          end,
		Accounts:     accounts,
		Transactions: txns,
		Convention:   ingest.PositiveIsSpend,
		Complete:     true,
	}, nil
}

func (c *Client) fetchAccounts(ctx context.Context) ([]ingest.RawAccount, error) {
	var accounts []plaid.AccountBase
	err := common.WithRetry(ctx, func() error {
		var err error
		accounts, err = c.api.balances(ctx, c.accessToken)
		return c.classify(err)
	}, c.retryOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch account balances: %w", err)
	}

	c.logger.Info("Fetched accounts", "count", len(accounts))

	raw := make([]ingest.RawAccount, 0, len(accounts))
	for _, a := range accounts {
		raw = append(raw, mapAccount(a))
	}
	return raw, nil
}

func (c *Client) fetchTransactions(ctx context.Context, start, end string) ([]ingest.RawTransaction, error) {
	c.logger.Info("Fetching transactions from Plaid", "start_date", start, "end_date", end)

	var all []plaid.Transaction
	offset := int32(0)

	for {
		var (
			page  []plaid.Transaction
			total int32
		)
		err := common.WithRetry(ctx, func() error {
			var err error
			page, total, err = c.api.transactions(ctx, c.accessToken, start, end, offset)
			return c.classify(err)
		}, c.retryOpts)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch transactions: %w", err)
		}

		all = append(all, page...)
		c.logger.Debug("Fetched transaction batch", "count", len(page), "offset", offset, "total", total)

		if len(page) == 0 || int32(len(all)) >= total {
			break
		}
		offset += int32(len(page))
	}

	c.logger.Info("Fetched all transactions", "count", len(all))

	raw := make([]ingest.RawTransaction, 0, len(all))
	for _, t := range all {
		raw = append(raw, mapTransaction(t))
	}
	return raw, nil
}

func mapAccount(a plaid.AccountBase) ingest.RawAccount {
	balances := a.GetBalances()
	return ingest.RawAccount{
		ID:             a.GetAccountId(),
		Name:           a.GetName(),
		Mask:           a.GetMask(),
		Type:           string(a.GetType()),
		BalanceCurrent: decimal.NewFromFloat(balances.GetCurrent()),
	}
}

// mapTransaction keeps Plaid's sign: positive amounts are money out.
func mapTransaction(t plaid.Transaction) ingest.RawTransaction {
	return ingest.RawTransaction{
		ExternalID: t.GetTransactionId(),
		AccountID:  t.GetAccountId(),
		Date:       t.GetDate(),
		Merchant:   t.GetMerchantName(),
		Name:       t.GetName(),
		Amount:     decimal.NewFromFloat(t.GetAmount()),
		Pending:    t.GetPending(),
	}
}

// classify maps Plaid failures to typed errors. Rate limits are retried; other API
// errors are not.
func (c *Client) classify(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *apiError
	if !errors.As(err, &apiErr) {
		return common.NewUpstreamError(providerName, 0, fmt.Errorf("%w: %w", common.ErrPlaidConnection, err))
	}

	upstream := common.NewUpstreamError(providerName, apiErr.status, apiErr)
	if apiErr.code == "RATE_LIMIT_EXCEEDED" {
		c.logger.Warn("Rate limit hit, will retry", "error", apiErr.message)
		return &common.RetryableError{Err: fmt.Errorf("%w: %w", common.ErrPlaidRateLimit, upstream), Retryable: true}
	}
	return &common.RetryableError{Err: upstream, Retryable: false}
}
