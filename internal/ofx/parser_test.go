package ofx

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/autobudgeter/internal/ingest"
)

// Sample OFX data for testing.
const sampleBankOFX = `OFXHEADER:100
DATA:OFXSGML
VERSION:102
SECURITY:NONE
ENCODING:USASCII
CHARSET:1252
COMPRESSION:NONE
OLDFILEUID:NONE
NEWFILEUID:NONE

<OFX>
<SIGNONMSGSRSV1>
<SONRS>
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<DTSERVER>20240315120000[0:GMT]
<LANGUAGE>ENG
</SONRS>
</SIGNONMSGSRSV1>
<BANKMSGSRSV1>
<STMTTRNRS>
<TRNUID>1
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<STMTRS>
<CURDEF>USD
<BANKACCTFROM>
<BANKID>123456789
<ACCTID>1234567890
<ACCTTYPE>CHECKING
</BANKACCTFROM>
<BANKTRANLIST>
<DTSTART>20240101120000[0:GMT]
<DTEND>20240131120000[0:GMT]
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240115120000[0:GMT]
<TRNAMT>-25.50
<FITID>2024011501
<NAME>STARBUCKS STORE #1234
</STMTTRN>
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240120120000[0:GMT]
<TRNAMT>-125.00
<FITID>2024012001
<NAME>Whole Foods Market
</STMTTRN>
<STMTTRN>
<TRNTYPE>CHECK
<DTPOSTED>20240125120000[0:GMT]
<TRNAMT>-500.00
<FITID>2024012501
<CHECKNUM>1234
<NAME>CHECK #1234
</STMTTRN>
</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>1000.00
<DTASOF>20240131120000[0:GMT]
</LEDGERBAL>
</STMTRS>
</STMTTRNRS>
</BANKMSGSRSV1>
</OFX>`

const sampleCreditCardOFX = `OFXHEADER:100
DATA:OFXSGML
VERSION:102
SECURITY:NONE
ENCODING:USASCII
CHARSET:1252
COMPRESSION:NONE
OLDFILEUID:NONE
NEWFILEUID:NONE

<OFX>
<SIGNONMSGSRSV1>
<SONRS>
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<DTSERVER>20240315120000[0:GMT]
<LANGUAGE>ENG
</SONRS>
</SIGNONMSGSRSV1>
<CREDITCARDMSGSRSV1>
<CCSTMTTRNRS>
<TRNUID>1
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<CCSTMTRS>
<CURDEF>USD
<CCACCTFROM>
<ACCTID>4111111111111111
</CCACCTFROM>
<BANKTRANLIST>
<DTSTART>20240101120000[0:GMT]
<DTEND>20240131120000[0:GMT]
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240110120000[0:GMT]
<TRNAMT>-45.99
<FITID>CC2024011001
<NAME>AMAZON.COM*RT4Y7HG2
</STMTTRN>
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240115120000[0:GMT]
<TRNAMT>-15.00
<FITID>CC2024011501
<NAME>NETFLIX.COM
</STMTTRN>
</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>-500.00
<DTASOF>20240131120000[0:GMT]
</LEDGERBAL>
</CCSTMTRS>
</CCSTMTTRNRS>
</CREDITCARDMSGSRSV1>
</OFX>`

func TestParse(t *testing.T) {
	tests := []struct {
		name          string
		ofxData       string
		expectedCount int
		expectedError bool
	}{
		{
			name:          "valid bank statement",
			ofxData:       sampleBankOFX,
			expectedCount: 3,
		},
		{
			name:          "valid credit card statement",
			ofxData:       sampleCreditCardOFX,
			expectedCount: 2,
		},
		{
			name:          "invalid OFX data",
			ofxData:       "not valid OFX",
			expectedError: true,
		},
		{
			name:          "empty OFX",
			ofxData:       "",
			expectedError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batch, err := NewParser(nil).Parse(strings.NewReader(tt.ofxData))

			if tt.expectedError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, batch.Transactions, tt.expectedCount)
			assert.Equal(t, ingest.NegativeIsSpend, batch.Convention)
			assert.False(t, batch.Complete)
		})
	}
}

func TestParseBankStatement(t *testing.T) {
	batch, err := NewParser(nil).Parse(strings.NewReader(sampleBankOFX))
	require.NoError(t, err)
	require.Len(t, batch.Transactions, 3)

	tx1 := batch.Transactions[0]
	assert.Equal(t, "2024011501", tx1.ExternalID)
	assert.Equal(t, "STARBUCKS STORE #1234", tx1.Name)
	assert.Equal(t, "STARBUCKS STORE #1234", tx1.Merchant)
	assert.True(t, decimal.RequireFromString("-25.50").Equal(tx1.Amount))
	assert.Equal(t, "1234567890", tx1.AccountID)
	assert.Equal(t, time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC), tx1.Posted.UTC())

	assert.Equal(t, "Whole Foods Market", batch.Transactions[1].Merchant)
	assert.True(t, decimal.RequireFromString("-500").Equal(batch.Transactions[2].Amount))

	assert.Equal(t, time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC), batch.Start.UTC())
	assert.Equal(t, time.Date(2024, 1, 31, 12, 0, 0, 0, time.UTC), batch.End.UTC())

	require.Len(t, batch.Accounts, 1)
	account := batch.Accounts[0]
	assert.Equal(t, "1234567890", account.ID)
	assert.Equal(t, "7890", account.Mask)
	assert.Equal(t, "depository", account.Type)
	assert.Equal(t, "CHECKING", account.Name)
	assert.True(t, decimal.NewFromInt(1000).Equal(account.BalanceCurrent))
}

func TestParseCreditCardStatement(t *testing.T) {
	batch, err := NewParser(nil).Parse(strings.NewReader(sampleCreditCardOFX))
	require.NoError(t, err)
	require.Len(t, batch.Transactions, 2)

	assert.Equal(t, "CC2024011001", batch.Transactions[0].ExternalID)
	assert.Equal(t, "AMAZON.COM*RT4Y7HG2", batch.Transactions[0].Name)
	assert.True(t, decimal.RequireFromString("-45.99").Equal(batch.Transactions[0].Amount))
	assert.Equal(t, "4111111111111111", batch.Transactions[0].AccountID)

	require.Len(t, batch.Accounts, 1)
	assert.Equal(t, "credit", batch.Accounts[0].Type)
	assert.Equal(t, "1111", batch.Accounts[0].Mask)
	assert.True(t, decimal.NewFromInt(500).Equal(batch.Accounts[0].BalanceCurrent), "owed balance is positive")
}

func TestParseNormalizesAsSpend(t *testing.T) {
	batch, err := NewParser(nil).Parse(strings.NewReader(sampleBankOFX))
	require.NoError(t, err)

	normalized := ingest.Normalize(batch, time.UTC, nil)
	require.Len(t, normalized.Transactions, 3)
	for _, txn := range normalized.Transactions {
		assert.True(t, txn.AmountSpend.IsPositive(), "debits become positive spend")
	}
}

func TestPreprocessOFX(t *testing.T) {
	in := "\n\n<STATUS>\n<CODE>0\n<SEVERITY>Info</SEVERITY>\n<BANKACCTFROM\n"
	out := preprocessOFX(in)

	assert.True(t, strings.HasPrefix(out, "<STATUS>"))
	assert.Contains(t, out, "<SEVERITY>INFO</SEVERITY>")
	assert.Contains(t, out, "<BANKACCTFROM>")
}

func TestExtractMerchantName(t *testing.T) {
	tests := []struct {
		name     string
		tx       ofxgo.Transaction
		expected string
	}{
		{
			name:     "remove POS prefix",
			tx:       ofxgo.Transaction{Name: "POS PURCHASE STARBUCKS"},
			expected: "STARBUCKS",
		},
		{
			name:     "remove DEBIT CARD prefix",
			tx:       ofxgo.Transaction{Name: "DEBIT CARD PURCHASE WHOLE FOODS"},
			expected: "WHOLE FOODS",
		},
		{
			name:     "strip leading date",
			tx:       ofxgo.Transaction{Name: "PURCHASE AUTHORIZED ON 01/15 SHELL OIL"},
			expected: "SHELL OIL",
		},
		{
			name:     "keep clean name",
			tx:       ofxgo.Transaction{Name: "NETFLIX.COM"},
			expected: "NETFLIX.COM",
		},
		{
			name:     "trim whitespace",
			tx:       ofxgo.Transaction{Name: "  AMAZON.COM  "},
			expected: "AMAZON.COM",
		},
		{
			name:     "generic name falls back to memo",
			tx:       ofxgo.Transaction{Name: "DEBIT", Memo: "SWIGGY BANGALORE"},
			expected: "SWIGGY BANGALORE",
		},
		{
			name:     "payee wins",
			tx:       ofxgo.Transaction{Name: "POS 1234", Payee: &ofxgo.Payee{Name: "Corner Cafe"}},
			expected: "Corner Cafe",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, extractMerchantName(tt.tx))
		})
	}
}

func TestFileSource_Fetch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "statement.ofx")
	require.NoError(t, os.WriteFile(path, []byte(sampleBankOFX), 0o600))

	source := NewFileSource(path, nil)
	assert.Equal(t, "ofx", source.Name())

	batch, err := source.Fetch(context.Background(), time.Date(2024, 1, 18, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, batch.Transactions, 2)
	assert.Equal(t, "2024012001", batch.Transactions[0].ExternalID)
	assert.Len(t, batch.Accounts, 1)

	all, err := source.Fetch(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.Len(t, all.Transactions, 3)

	backfill, err := NewFileSource(path, nil).KeepAll().Fetch(context.Background(), time.Date(2024, 1, 18, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Len(t, backfill.Transactions, 3, "KeepAll ignores since")
}

func TestFileSource_Errors(t *testing.T) {
	_, err := NewFileSource(filepath.Join(t.TempDir(), "missing.ofx"), nil).Fetch(context.Background(), time.Time{})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewFileSource("unused", nil).Fetch(ctx, time.Time{})
	assert.ErrorIs(t, err, context.Canceled)
}
