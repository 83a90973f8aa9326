// Package ofx imports OFX/QFX statement files as an ingestion source.
package ofx

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"

	"github.com/Veraticus/autobudgeter/internal/ingest"
)

var (
	severityRegex = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	tagFixRegex   = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
)

// Parser implements OFX/QFX file parsing.
type Parser struct {
	logger *slog.Logger
}

// NewParser creates a new OFX parser.
func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{logger: logger.With("component", "ofx")}
}

// preprocessOFX fixes common formatting issues in OFX files.
func preprocessOFX(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")

	// SEVERITY must be upper case.
	content = severityRegex.ReplaceAllStringFunc(content, strings.ToUpper)

	// Some SGML exporters drop the closing bracket of a bare opening tag.
	return tagFixRegex.ReplaceAllString(content, "$1>")
}

// Parse reads a statement file into a batch. OFX amounts are negative for money out.
func (p *Parser) Parse(reader io.Reader) (ingest.Batch, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return ingest.Batch{}, fmt.Errorf("failed to read OFX file: %w", err)
	}

	resp, err := ofxgo.ParseResponse(strings.NewReader(preprocessOFX(string(content))))
	if err != nil {
		return ingest.Batch{}, fmt.Errorf("failed to parse OFX file: %w", err)
	}

	batch := ingest.Batch{Convention: ingest.NegativeIsSpend}
	var bankStmts, ccStmts int

	for _, msg := range resp.Bank {
		stmt, ok := msg.(*ofxgo.StatementResponse)
		if !ok {
			continue
		}
		bankStmts++
		accountID := string(stmt.BankAcctFrom.AcctID)
		balance := amount(stmt.BalAmt)
		batch.Accounts = append(batch.Accounts, ingest.RawAccount{
			ID:             accountID,
			Name:           strings.TrimSpace(stmt.BankAcctFrom.AcctType.String()),
			Mask:           mask(accountID),
			Type:           "depository",
			BalanceCurrent: balance,
		})
		p.appendTransactions(&batch, stmt.BankTranList, accountID)
	}

	for _, msg := range resp.CreditCard {
		stmt, ok := msg.(*ofxgo.CCStatementResponse)
		if !ok {
			continue
		}
		ccStmts++
		accountID := string(stmt.CCAcctFrom.AcctID)
		// A card's ledger balance is negative when money is owed; store it as owed.
		batch.Accounts = append(batch.Accounts, ingest.RawAccount{
			ID:             accountID,
			Name:           "Credit Card",
			Mask:           mask(accountID),
			Type:           "credit",
			BalanceCurrent: amount(stmt.BalAmt).Neg(),
		})
		p.appendTransactions(&batch, stmt.BankTranList, accountID)
	}

	p.logger.Info("Parsed OFX file",
		"total_transactions", len(batch.Transactions),
		"bank_statements", bankStmts,
		"cc_statements", ccStmts)

	return batch, nil
}

func (p *Parser) appendTransactions(batch *ingest.Batch, list *ofxgo.TransactionList, accountID string) {
	if list == nil {
		return
	}

	if start := list.DtStart.Time; !start.IsZero() && (batch.Start.IsZero() || start.Before(batch.Start)) {
		batch.Start = start
	}
	if end := list.DtEnd.Time; end.After(batch.End) {
		batch.End = end
	}

	for _, tx := range list.Transactions {
		batch.Transactions = append(batch.Transactions, ingest.RawTransaction{
			ExternalID: string(tx.FiTID),
			AccountID:  accountID,
			Posted:     tx.DtPosted.Time,
			Merchant:   extractMerchantName(tx),
			Name:       strings.TrimSpace(string(tx.Name)),
			Amount:     amount(tx.TrnAmt),
		})
	}
}

func amount(a ofxgo.Amount) decimal.Decimal {
	d, err := decimal.NewFromString(a.Rat.FloatString(4))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func mask(accountID string) string {
	if len(accountID) <= 4 {
		return accountID
	}
	return accountID[len(accountID)-4:]
}

// extractMerchantName tries to get a clean merchant name from OFX data.
func extractMerchantName(tx ofxgo.Transaction) string {
	if tx.Payee != nil && tx.Payee.Name != "" {
		return strings.TrimSpace(string(tx.Payee.Name))
	}

	name := string(tx.Name)
	if tx.Memo != "" && isGenericDescription(name) {
		name = string(tx.Memo)
	}
	name = strings.TrimSpace(name)

	prefixes := []string{
		"POS PURCHASE ",
		"PURCHASE AUTHORIZED ON ",
		"DEBIT CARD PURCHASE ",
		"ACH DEBIT ",
		"CHECK CARD ",
		"VISA PURCHASE ",
		"MC PURCHASE ",
		"DEBIT PURCHASE ",
		"UPI/",
	}
	for _, prefix := range prefixes {
		if strings.HasPrefix(strings.ToUpper(name), prefix) {
			name = name[len(prefix):]
			break
		}
	}

	// Leading "MM/DD " dates.
	if len(name) > 5 && name[2] == '/' && name[5] == ' ' {
		name = strings.TrimSpace(name[6:])
	}
	return name
}

func isGenericDescription(name string) bool {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBIT", "CREDIT", "PURCHASE", "PAYMENT", "POS TRANSACTION", "CARD PURCHASE":
		return true
	}
	return false
}

// FileSource is an ingest.Source over one statement file.
type FileSource struct {
	parser  *Parser
	path    string
	keepAll bool
}

var _ ingest.Source = (*FileSource)(nil)

// NewFileSource creates a source that reads path on every fetch.
func NewFileSource(path string, logger *slog.Logger) *FileSource {
	return &FileSource{path: path, parser: NewParser(logger)}
}

// KeepAll makes Fetch ignore since, so statements older than the stored history can
// be backfilled.
func (f *FileSource) KeepAll() *FileSource {
	f.keepAll = true
	return f
}

// Name implements ingest.Source.
func (f *FileSource) Name() string {
	return "ofx"
}

// Fetch parses the file and drops transactions posted before since. Statement files
// are partial, so the batch never proves a transaction was removed.
func (f *FileSource) Fetch(ctx context.Context, since time.Time) (ingest.Batch, error) {
	if err := ctx.Err(); err != nil {
		return ingest.Batch{}, err
	}

	file, err := os.Open(f.path) // #nosec G304
	if err != nil {
		return ingest.Batch{}, fmt.Errorf("error opening OFX file: %w", err)
	}
	defer func() { _ = file.Close() }()

	batch, err := f.parser.Parse(file)
	if err != nil {
		return ingest.Batch{}, err
	}

	if !since.IsZero() && !f.keepAll {
		kept := batch.Transactions[:0]
		for _, t := range batch.Transactions {
			if !t.Posted.Before(since) {
				kept = append(kept, t)
			}
		}
		batch.Transactions = kept
	}
	batch.Complete = false
	return batch, nil
}
