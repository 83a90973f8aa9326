package plaid

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/plaid/plaid-go/v20/plaid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/autobudgeter/internal/common"
	"github.com/Veraticus/autobudgeter/internal/ingest"
	"github.com/Veraticus/autobudgeter/internal/service"
)

type transactionsCall struct {
	start  string
	end    string
	offset int32
}

type fakeAPI struct {
	balancesErr []error
	txnErr      []error
	accounts    []plaid.AccountBase
	pages       [][]plaid.Transaction
	calls       []transactionsCall
	served      int
	total       int32
}

func (f *fakeAPI) balances(context.Context, string) ([]plaid.AccountBase, error) {
	if len(f.balancesErr) > 0 {
		err := f.balancesErr[0]
		f.balancesErr = f.balancesErr[1:]
		return nil, err
	}
	return f.accounts, nil
}

func (f *fakeAPI) transactions(_ context.Context, _, start, end string, offset int32) ([]plaid.Transaction, int32, error) {
	f.calls = append(f.calls, transactionsCall{start: start, end: end, offset: offset})
	if len(f.txnErr) > 0 {
		err := f.txnErr[0]
		f.txnErr = f.txnErr[1:]
		return nil, 0, err
	}
	if f.served >= len(f.pages) {
		return nil, f.total, nil
	}
	page := f.pages[f.served]
	f.served++
	return page, f.total, nil
}

func account(id, name string, current float64) plaid.AccountBase {
	var a plaid.AccountBase
	a.SetAccountId(id)
	a.SetName(name)
	a.SetMask("0001")
	a.SetType(plaid.ACCOUNTTYPE_DEPOSITORY)
	var b plaid.AccountBalance
	b.SetCurrent(current)
	a.SetBalances(b)
	return a
}

func transaction(id, date, merchant string, amount float64, pending bool) plaid.Transaction {
	var t plaid.Transaction
	t.SetTransactionId(id)
	t.SetAccountId("acc-1")
	t.SetDate(date)
	t.SetName("UPI " + merchant)
	t.SetMerchantName(merchant)
	t.SetAmount(amount)
	t.SetPending(pending)
	return t
}

func testClient(t *testing.T, a api) *Client {
	t.Helper()
	kolkata, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)

	c := newClient(a, Config{AccessToken: "access", LookbackDays: 30}, kolkata, nil)
	c.now = func() time.Time { return time.Date(2026, time.February, 10, 20, 0, 0, 0, time.UTC) }
	c.retryOpts = service.RetryOptions{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}
	return c
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		setting string
	}{
		{name: "valid", config: Config{ClientID: "id", Secret: "s", AccessToken: "a", Environment: "sandbox"}},
		{name: "base url replaces environment", config: Config{ClientID: "id", Secret: "s", AccessToken: "a", BaseURL: "http://localhost"}},
		{name: "missing client id", config: Config{Secret: "s", AccessToken: "a", Environment: "sandbox"}, setting: "plaid.client_id"},
		{name: "missing secret", config: Config{ClientID: "id", AccessToken: "a", Environment: "sandbox"}, setting: "plaid.secret"},
		{name: "missing access token", config: Config{ClientID: "id", Secret: "s", Environment: "sandbox"}, setting: "plaid.access_token"},
		{name: "missing environment", config: Config{ClientID: "id", Secret: "s", AccessToken: "a"}, setting: "plaid.environment"},
		{name: "invalid environment", config: Config{ClientID: "id", Secret: "s", AccessToken: "a", Environment: "development"}, setting: "plaid.environment"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.setting == "" {
				require.NoError(t, err)
				return
			}
			var cfgErr *common.ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.setting, cfgErr.Setting)
		})
	}
}

func TestFetch(t *testing.T) {
	f := &fakeAPI{
		accounts: []plaid.AccountBase{account("acc-1", "Checking", 1200.5)},
		pages: [][]plaid.Transaction{
			{transaction("t1", "2026-02-01", "Swiggy", 250.5, false), transaction("t2", "2026-02-02", "Employer", -5000, false)},
			{transaction("t3", "2026-02-09", "Zomato", 99, true)},
		},
		total: 3,
	}
	c := testClient(t, f)

	since := time.Date(2026, time.January, 25, 0, 0, 0, 0, time.UTC)
	batch, err := c.Fetch(context.Background(), since)
	require.NoError(t, err)

	assert.Equal(t, ingest.PositiveIsSpend, batch.Convention)
	assert.True(t, batch.Complete)

	require.Len(t, batch.Accounts, 1)
	assert.Equal(t, "acc-1", batch.Accounts[0].ID)
	assert.Equal(t, "depository", batch.Accounts[0].Type)
	assert.True(t, batch.Accounts[0].BalanceCurrent.Equal(decimal.RequireFromString("1200.5")))

	require.Len(t, batch.Transactions, 3)
	assert.Equal(t, "Swiggy", batch.Transactions[0].Merchant)
	assert.True(t, batch.Transactions[0].Amount.Equal(decimal.RequireFromString("250.5")))
	assert.True(t, batch.Transactions[2].Pending)

	require.Len(t, f.calls, 2)
	// "Today" is already Feb 11 in Kolkata.
	assert.Equal(t, transactionsCall{start: "2026-01-25", end: "2026-02-11", offset: 0}, f.calls[0])
	assert.Equal(t, int32(2), f.calls[1].offset)
}

func TestFetch_DefaultLookback(t *testing.T) {
	f := &fakeAPI{}
	c := testClient(t, f)

	_, err := c.Fetch(context.Background(), time.Time{})
	require.NoError(t, err)
	require.Len(t, f.calls, 1)
	assert.Equal(t, "2026-01-12", f.calls[0].start)
}

func TestFetch_RetriesRateLimit(t *testing.T) {
	f := &fakeAPI{
		txnErr: []error{&apiError{code: "RATE_LIMIT_EXCEEDED", message: "slow down", status: 429}},
		pages:  [][]plaid.Transaction{{transaction("t1", "2026-02-01", "Swiggy", 10, false)}},
		total:  1,
	}
	c := testClient(t, f)

	batch, err := c.Fetch(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.Len(t, batch.Transactions, 1)
}

func TestFetch_Errors(t *testing.T) {
	t.Run("api error is not retried", func(t *testing.T) {
		f := &fakeAPI{balancesErr: []error{&apiError{code: "ITEM_LOGIN_REQUIRED", message: "relink", status: 400}}}
		_, err := testClient(t, f).Fetch(context.Background(), time.Time{})

		var upstream *common.UpstreamError
		require.ErrorAs(t, err, &upstream)
		assert.Equal(t, 400, upstream.StatusCode)
		assert.Contains(t, err.Error(), "ITEM_LOGIN_REQUIRED")
		assert.Empty(t, f.calls)
	})

	t.Run("connection failure is retried then surfaced", func(t *testing.T) {
		boom := errors.New("connection reset")
		f := &fakeAPI{txnErr: []error{boom, boom, boom}}
		_, err := testClient(t, f).Fetch(context.Background(), time.Time{})

		require.Error(t, err)
		assert.ErrorIs(t, err, common.ErrPlaidConnection)
		assert.ErrorIs(t, err, common.ErrMaxRetries)
		assert.Equal(t, "upstream", common.Kind(err))
		assert.Len(t, f.calls, 3)
	})
}
