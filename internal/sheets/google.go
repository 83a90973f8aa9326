package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/Veraticus/autobudgeter/internal/common"
	"github.com/Veraticus/autobudgeter/internal/service"
)

const providerName = "google_sheets"

// GoogleSink implements Sink over the Google Sheets v4 API.
type GoogleSink struct {
	service *sheets.Service
	logger  *slog.Logger
	retry   service.RetryOptions
}

var _ Sink = (*GoogleSink)(nil)

// NewGoogleSink authenticates with either a refresh token or a service account key.
func NewGoogleSink(ctx context.Context, config Config, logger *slog.Logger) (*GoogleSink, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	srv, err := createSheetsService(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}
	return newGoogleSink(srv, config, logger), nil
}

// NewGoogleSinkWithOptions builds a sink from explicit client options, e.g. a custom
// endpoint.
func NewGoogleSinkWithOptions(ctx context.Context, config Config, logger *slog.Logger, opts ...option.ClientOption) (*GoogleSink, error) {
	srv, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create sheets service: %w", err)
	}
	return newGoogleSink(srv, config, logger), nil
}

func newGoogleSink(srv *sheets.Service, config Config, logger *slog.Logger) *GoogleSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &GoogleSink{
		service: srv,
		logger:  logger.With("component", "sheets"),
		retry: service.RetryOptions{
			MaxAttempts:  max(config.RetryAttempts, 1),
			InitialDelay: config.RetryDelay,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
		},
	}
}

// createSheetsService creates a Google Sheets API service.
func createSheetsService(ctx context.Context, config Config) (*sheets.Service, error) {
	var tokenSource oauth2.TokenSource

	if config.ServiceAccountPath != "" {
		jsonKey, err := os.ReadFile(config.ServiceAccountPath)
		if err != nil {
			return nil, fmt.Errorf("unable to read service account key file: %w", err)
		}

		jwtConfig, err := google.JWTConfigFromJSON(jsonKey, sheets.SpreadsheetsScope)
		if err != nil {
			return nil, fmt.Errorf("unable to parse service account key: %w", err)
		}

		tokenSource = jwtConfig.TokenSource(ctx)
	} else {
		client := oauthConfig(config.ClientID, config.ClientSecret, "")
		token := &oauth2.Token{
			RefreshToken: config.RefreshToken,
			TokenType:    "Bearer",
		}
		tokenSource = client.TokenSource(ctx, token)
	}

	httpClient := oauth2.NewClient(ctx, tokenSource)
	srv, err := sheets.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("unable to create sheets service: %w", err)
	}
	return srv, nil
}

// BatchWrite writes every range in a single values.batchUpdate call.
func (g *GoogleSink) BatchWrite(ctx context.Context, spreadsheetID string, input ValueInput, data []ValueRange) error {
	if len(data) == 0 {
		return nil
	}

	req := &sheets.BatchUpdateValuesRequest{
		ValueInputOption: string(input),
		Data:             make([]*sheets.ValueRange, 0, len(data)),
	}
	for _, vr := range data {
		req.Data = append(req.Data, &sheets.ValueRange{Range: vr.Range, Values: vr.Values})
	}

	err := common.WithRetry(ctx, func() error {
		_, err := g.service.Spreadsheets.Values.BatchUpdate(spreadsheetID, req).Context(ctx).Do()
		return classify(err)
	}, g.retry)
	if err != nil {
		return fmt.Errorf("failed to write %d ranges: %w", len(data), err)
	}

	g.logger.Debug("Wrote ranges", "spreadsheet_id", spreadsheetID, "ranges", len(data), "input", input)
	return nil
}

// ReadRange returns the formatted values of rng.
func (g *GoogleSink) ReadRange(ctx context.Context, spreadsheetID, rng string) ([][]any, error) {
	var resp *sheets.ValueRange
	err := common.WithRetry(ctx, func() error {
		var err error
		resp, err = g.service.Spreadsheets.Values.Get(spreadsheetID, rng).Context(ctx).Do()
		return classify(err)
	}, g.retry)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", rng, err)
	}
	return resp.Values, nil
}

// AddSheet appends a new tab.
func (g *GoogleSink) AddSheet(ctx context.Context, spreadsheetID, title string) error {
	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			AddSheet: &sheets.AddSheetRequest{
				Properties: &sheets.SheetProperties{Title: title},
			},
		}},
	}

	attempts := 0
	err := common.WithRetry(ctx, func() error {
		attempts++
		_, err := g.service.Spreadsheets.BatchUpdate(spreadsheetID, req).Context(ctx).Do()
		// A retry that finds the tab means an earlier attempt created it.
		if attempts > 1 && sheetExists(err) {
			g.logger.Debug("Sheet created by an earlier attempt", "title", title)
			return nil
		}
		return classify(err)
	}, g.retry)
	if err != nil {
		return fmt.Errorf("failed to add sheet %q: %w", title, err)
	}

	g.logger.Info("Created sheet", "spreadsheet_id", spreadsheetID, "title", title)
	return nil
}

// SheetTitles lists the tab titles of the spreadsheet.
func (g *GoogleSink) SheetTitles(ctx context.Context, spreadsheetID string) ([]string, error) {
	var resp *sheets.Spreadsheet
	err := common.WithRetry(ctx, func() error {
		var err error
		resp, err = g.service.Spreadsheets.Get(spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
		return classify(err)
	}, g.retry)
	if err != nil {
		return nil, fmt.Errorf("unable to access spreadsheet %s: %w", spreadsheetID, err)
	}

	titles := make([]string, 0, len(resp.Sheets))
	for _, s := range resp.Sheets {
		if s.Properties != nil {
			titles = append(titles, s.Properties.Title)
		}
	}
	return titles, nil
}

func sheetExists(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusBadRequest &&
		strings.Contains(strings.ToLower(apiErr.Message), "already exists")
}

// classify converts API failures into UpstreamErrors. Client errors other than 429
// are not retried.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return common.NewUpstreamError(providerName, 0, err)
	}

	upstream := common.NewUpstreamError(providerName, apiErr.Code, err)
	switch {
	case apiErr.Code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", common.ErrRateLimit, upstream)
	case apiErr.Code >= 400 && apiErr.Code < 500:
		return &common.RetryableError{Err: upstream, Retryable: false}
	default:
		return upstream
	}
}
