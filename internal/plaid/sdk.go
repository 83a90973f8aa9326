package plaid

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/plaid/plaid-go/v20/plaid"
)

// apiError is a Plaid error response.
type apiError struct {
	code    string
	message string
	status  int
}

func (e *apiError) Error() string {
	return fmt.Sprintf("plaid API error: %s - %s", e.code, e.message)
}

// sdkAPI calls Plaid through the official SDK.
type sdkAPI struct {
	client *plaid.APIClient
}

func (s *sdkAPI) balances(ctx context.Context, accessToken string) ([]plaid.AccountBase, error) {
	request := plaid.NewAccountsBalanceGetRequest(accessToken)
	resp, httpResp, err := s.client.PlaidApi.AccountsBalanceGet(ctx).AccountsBalanceGetRequest(*request).Execute()
	if err != nil {
		return nil, convertError(err, httpResp)
	}
	return resp.GetAccounts(), nil
}

func (s *sdkAPI) transactions(ctx context.Context, accessToken, start, end string, offset int32) ([]plaid.Transaction, int32, error) {
	request := plaid.NewTransactionsGetRequest(accessToken, start, end)
	options := plaid.TransactionsGetRequestOptions{
		Count:  plaid.PtrInt32(pageSize),
		Offset: plaid.PtrInt32(offset),
	}
	request.SetOptions(options)

	resp, httpResp, err := s.client.PlaidApi.TransactionsGet(ctx).TransactionsGetRequest(*request).Execute()
	if err != nil {
		return nil, 0, convertError(err, httpResp)
	}
	return resp.GetTransactions(), resp.GetTotalTransactions(), nil
}

// convertError extracts the Plaid error body when there is one.
func convertError(err error, resp *http.Response) error {
	plaidErr, convErr := plaid.ToPlaidError(err)
	if convErr != nil {
		return err
	}
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	return &apiError{code: plaidErr.ErrorCode, message: plaidErr.ErrorMessage, status: status}
}

// LinkClient creates Link tokens and exchanges public tokens so an access token can
// be obtained for Config.AccessToken.
type LinkClient struct {
	client *plaid.APIClient
}

// NewLinkClient creates a client for the Link flow. No access token is required.
func NewLinkClient(cfg Config) (*LinkClient, error) {
	linkCfg := cfg
	linkCfg.AccessToken = "unused"
	if err := linkCfg.Validate(); err != nil {
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
	return &LinkClient{client: plaid.NewAPIClient(configuration)}, nil
}

// CreateLinkToken creates a Link token for Plaid Link initialization.
func (l *LinkClient) CreateLinkToken(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		userID = "autobudget-user-" + time.Now().Format("20060102150405")
	}
	user := plaid.LinkTokenCreateRequestUser{ClientUserId: userID}

	request := plaid.NewLinkTokenCreateRequest(
		"AutoBudgeter",
		"en",
		[]plaid.CountryCode{plaid.COUNTRYCODE_US},
		user,
	)
	request.SetProducts([]plaid.Products{plaid.PRODUCTS_TRANSACTIONS})

	resp, httpResp, err := l.client.PlaidApi.LinkTokenCreate(ctx).LinkTokenCreateRequest(*request).Execute()
	if err != nil {
		return "", fmt.Errorf("failed to create link token: %w", convertError(err, httpResp))
	}
	return resp.GetLinkToken(), nil
}

// ExchangePublicToken exchanges a public token from Link for an access token and item id.
func (l *LinkClient) ExchangePublicToken(ctx context.Context, publicToken string) (string, string, error) {
	request := plaid.NewItemPublicTokenExchangeRequest(publicToken)
	resp, httpResp, err := l.client.PlaidApi.ItemPublicTokenExchange(ctx).ItemPublicTokenExchangeRequest(*request).Execute()
	if err != nil {
		return "", "", fmt.Errorf("failed to exchange public token: %w", convertError(err, httpResp))
	}
	return resp.GetAccessToken(), resp.GetItemId(), nil
}
