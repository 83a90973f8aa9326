// Package ingest defines the upstream transaction source contract and normalizes raw
// upstream records into canonical transactions and accounts.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/autobudgeter/internal/model"
)

// SignConvention says which sign of an upstream amount means money spent.
type SignConvention int

// Sign conventions.
const (
	// PositiveIsSpend is Plaid's convention.
	PositiveIsSpend SignConvention = iota
	// NegativeIsSpend is the OFX convention.
	NegativeIsSpend
)

// RawAccount is an account as reported upstream.
type RawAccount struct {
	ID             string
	Name           string
	Mask           string
	Type           string
	BalanceCurrent decimal.Decimal
}

// RawTransaction is a transaction as reported upstream. Date is a calendar date
// ("2006-01-02"); Posted is used when Date is empty.
type RawTransaction struct {
	Posted     time.Time
	ExternalID string
	AccountID  string
	Date       string
	Merchant   string
	Name       string
	Amount     decimal.Decimal
	Pending    bool
}

// Batch is one fetch from a source.
type Batch struct {
	Start        time.Time // first day covered by the fetch
	End          time.Time // last day covered by the fetch
	Accounts     []RawAccount
	Transactions []RawTransaction
	Convention   SignConvention
	// Complete means every transaction in [Start, End] was returned, so stored
	// pending transactions in that window that are missing here have been dropped.
	Complete bool
}

// Source fetches raw records from an upstream provider.
type Source interface {
	Name() string
	Fetch(ctx context.Context, since time.Time) (Batch, error)
}

// Normalized is a batch converted to the canonical model.
type Normalized struct {
	Accounts     []model.Account
	Transactions []model.Transaction
	Skipped      int
}

// Normalize converts a batch. Calendar dates are anchored at midnight in loc.
// Records without an id or with an unparseable date are skipped and logged. Within a
// batch the last record for an id wins.
func Normalize(b Batch, loc *time.Location, logger *slog.Logger) Normalized {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "ingest")

	var out Normalized

	for _, a := range b.Accounts {
		if strings.TrimSpace(a.ID) == "" {
			out.Skipped++
			logger.Warn("Skipping account without id", "name", a.Name)
			continue
		}
		out.Accounts = append(out.Accounts, model.Account{
			ID:             a.ID,
			Name:           strings.TrimSpace(a.Name),
			Mask:           a.Mask,
			Type:           a.Type,
			BalanceCurrent: a.BalanceCurrent,
		})
	}

	index := make(map[string]int, len(b.Transactions))
	for _, raw := range b.Transactions {
		txn, err := normalizeTransaction(raw, b.Convention, loc)
		if err != nil {
			out.Skipped++
			logger.Warn("Skipping transaction", "external_id", raw.ExternalID, "error", err)
			continue
		}
		if i, seen := index[txn.ExternalID]; seen {
			out.Transactions[i] = txn
			continue
		}
		index[txn.ExternalID] = len(out.Transactions)
		out.Transactions = append(out.Transactions, txn)
	}

	return out
}

func normalizeTransaction(raw RawTransaction, convention SignConvention, loc *time.Location) (model.Transaction, error) {
	if strings.TrimSpace(raw.ExternalID) == "" {
		return model.Transaction{}, fmt.Errorf("missing external id")
	}

	date, err := ParseDate(raw.Date, raw.Posted, loc)
	if err != nil {
		return model.Transaction{}, err
	}

	amount := raw.Amount
	if convention == NegativeIsSpend {
		amount = amount.Neg()
	}

	return model.Transaction{
		ExternalID:  raw.ExternalID,
		AccountID:   raw.AccountID,
		Date:        date,
		Merchant:    strings.TrimSpace(raw.Merchant),
		Description: strings.TrimSpace(raw.Name),
		AmountSpend: amount,
		Pending:     raw.Pending,
		Status:      model.StatusUncategorized,
		Source:      model.SourceNone,
	}, nil
}

// ParseDate anchors a calendar date at midnight in loc. When date is empty the posted
// timestamp's calendar day in loc is used.
func ParseDate(date string, posted time.Time, loc *time.Location) (time.Time, error) {
	if strings.TrimSpace(date) != "" {
		t, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(date), loc)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid date %q: %w", date, err)
		}
		return t, nil
	}
	if posted.IsZero() {
		return time.Time{}, fmt.Errorf("missing date")
	}
	local := posted.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc), nil
}

// StalePending returns the ids of stored pending transactions inside the batch window
// that the batch no longer reports. Only complete batches can prove absence.
func StalePending(b Batch, stored []model.Transaction, fresh []model.Transaction) []string {
	if !b.Complete {
		return nil
	}

	seen := make(map[string]bool, len(fresh))
	for _, t := range fresh {
		seen[t.ExternalID] = true
	}

	var stale []string
	for _, t := range stored {
		if !t.Pending || t.Status == model.StatusRemoved || seen[t.ExternalID] {
			continue
		}
		if t.Date.Before(b.Start) || t.Date.After(b.End) {
			continue
		}
		stale = append(stale, t.ExternalID)
	}
	return stale
}
