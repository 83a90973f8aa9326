package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/Veraticus/autobudgeter/internal/model"
)

// ErrInputCancelled is returned when input is canceled by context.
var ErrInputCancelled = errors.New("input canceled")

// ReviewAction is what the user chose for a transaction under review.
type ReviewAction int

// Review actions.
const (
	ActionSkip ReviewAction = iota
	ActionCategorize
	ActionTransfer
	ActionIgnore
	ActionQuit
)

// ReviewAnswer is one answer from the review prompt.
type ReviewAnswer struct {
	Category   string
	Action     ReviewAction
	CreateRule bool
}

// ReviewPrompter walks the user through transactions that need review.
type ReviewPrompter struct {
	writer     io.Writer
	lines      chan lineResult
	reader     *bufio.Reader
	categories []string
}

type lineResult struct {
	err  error
	line string
}

// NewReviewPrompter creates a prompter offering categories in order.
func NewReviewPrompter(reader io.Reader, writer io.Writer, categories []string) *ReviewPrompter {
	if reader == nil {
		reader = os.Stdin
	}
	if writer == nil {
		writer = os.Stdout
	}
	return &ReviewPrompter{
		reader:     bufio.NewReader(reader),
		writer:     writer,
		categories: categories,
	}
}

// Prompt shows txn and reads an answer. Answers are a category number (suffix "+" to
// also create a rule), "t" for transfer, "i" to ignore, "s" or empty to skip and "q" to quit.
// Unrecognized input re-prompts.
func (p *ReviewPrompter) Prompt(ctx context.Context, txn model.Transaction) (ReviewAnswer, error) {
	p.printTransaction(txn)

	for {
		if _, err := fmt.Fprint(p.writer, FormatPrompt("Category # (+ to add rule), t, i, s, q")); err != nil {
			return ReviewAnswer{}, fmt.Errorf("failed to write prompt: %w", err)
		}

		line, err := p.readLine(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return ReviewAnswer{Action: ActionQuit}, nil
			}
			return ReviewAnswer{}, err
		}

		answer, ok := p.parse(line)
		if ok {
			return answer, nil
		}
		if _, err := fmt.Fprintln(p.writer, FormatWarning("Unrecognized answer "+strconv.Quote(line))); err != nil {
			return ReviewAnswer{}, fmt.Errorf("failed to write warning: %w", err)
		}
	}
}

func (p *ReviewPrompter) parse(line string) (ReviewAnswer, bool) {
	switch strings.ToLower(line) {
	case "", "s":
		return ReviewAnswer{Action: ActionSkip}, true
	case "t":
		return ReviewAnswer{Action: ActionTransfer}, true
	case "i":
		return ReviewAnswer{Action: ActionIgnore}, true
	case "q":
		return ReviewAnswer{Action: ActionQuit}, true
	}

	createRule := strings.HasSuffix(line, "+")
	n, err := strconv.Atoi(strings.TrimSuffix(line, "+"))
	if err != nil || n < 1 || n > len(p.categories) {
		return ReviewAnswer{}, false
	}
	return ReviewAnswer{Action: ActionCategorize, Category: p.categories[n-1], CreateRule: createRule}, true
}

func (p *ReviewPrompter) printTransaction(txn model.Transaction) {
	var b strings.Builder
	b.WriteString(BoldStyle.Render(txn.Merchant))
	if txn.Description != "" && txn.Description != txn.Merchant {
		b.WriteString("\n" + SubtleStyle.Render(txn.Description))
	}
	fmt.Fprintf(&b, "\n%s  %s", txn.Date.Format("2006-01-02"), txn.AmountSpend.StringFixed(2))
	if txn.Category != "" {
		b.WriteString("\n" + InfoStyle.Render("Best guess: "+txn.Category))
	}
	b.WriteString("\n")
	for i, c := range p.categories {
		fmt.Fprintf(&b, "\n%3d. %s", i+1, c)
	}

	_, _ = fmt.Fprintln(p.writer, RenderBox("Needs review "+txn.ExternalID, b.String()))
}

// readLine reads one line, returning early when ctx ends. The pending read keeps
// running and its line is delivered to the next call.
func (p *ReviewPrompter) readLine(ctx context.Context) (string, error) {
	if p.lines == nil {
		p.lines = make(chan lineResult, 1)
		go p.read()
	}

	select {
	case <-ctx.Done():
		return "", ErrInputCancelled
	case res := <-p.lines:
		if res.err == nil {
			go p.read()
		}
		return strings.TrimSpace(res.line), res.err
	}
}

func (p *ReviewPrompter) read() {
	line, err := p.reader.ReadString('\n')
	if err != nil && line != "" && errors.Is(err, io.EOF) {
		err = nil
	}
	p.lines <- lineResult{line: line, err: err}
}
