package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Veraticus/autobudgeter/internal/model"
)

// BatchStats summarizes one CategorizeBatch run.
type BatchStats struct {
	Total        int
	Categorized  int
	ByRule       int
	ByLLM        int
	Transfers    int
	NeedsReview  int
	RulesCreated int
	Failed       int
	Skipped      int
}

func (s *BatchStats) add(d model.Decision) {
	switch d.Status {
	case model.StatusCategorized:
		s.Categorized++
		if d.Source == model.SourceRule {
			s.ByRule++
		} else {
			s.ByLLM++
		}
	case model.StatusTransfer:
		s.Transfers++
	case model.StatusNeedsReview:
		s.NeedsReview++
	}
}

// CategorizeBatch categorizes transactions with bounded parallelism. A failure on one
// transaction forces it to needs_review and the batch continues. Once ctx ends no new
// transactions are started and in-flight ones are left uncategorized. The returned
// error is the context error when the run was cut short, or a rule loading failure.
func (e *Engine) CategorizeBatch(ctx context.Context, txns []model.Transaction) (BatchStats, error) {
	stats := BatchStats{Total: len(txns)}
	if len(txns) == 0 {
		return stats, nil
	}

	rules, err := e.store.GetEnabledRules(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to load rules: %w", err)
	}
	rs := newRuleSet(rules)
	initialRules := len(rules)

	e.logger.Info("Starting categorization batch",
		"transactions", len(txns),
		"rules", initialRules,
		"concurrency", e.settings.Concurrency)

	var (
		mu   sync.Mutex
		done int
	)
	finish := func(apply func(*BatchStats)) {
		mu.Lock()
		apply(&stats)
		done++
		n := done
		mu.Unlock()
		if e.progress != nil {
			e.progress(n, len(txns))
		}
	}

	var g errgroup.Group
	g.SetLimit(e.settings.Concurrency)

	for i, txn := range txns {
		if ctx.Err() != nil {
			mu.Lock()
			stats.Skipped += len(txns) - i
			mu.Unlock()
			break
		}

		g.Go(func() error {
			decision, err := e.categorizeOne(ctx, rs, txn)
			switch {
			case err == nil:
				finish(func(s *BatchStats) { s.add(decision) })
			case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
				finish(func(s *BatchStats) { s.Skipped++ })
			default:
				e.forceReview(ctx, txn, err)
				finish(func(s *BatchStats) {
					s.Failed++
					s.NeedsReview++
				})
			}
			return nil
		})
	}

	_ = g.Wait()

	rs.mu.RLock()
	stats.RulesCreated = len(rs.rules) - initialRules
	rs.mu.RUnlock()

	e.logger.Info("Categorization batch complete",
		"total", stats.Total,
		"categorized", stats.Categorized,
		"by_rule", stats.ByRule,
		"by_llm", stats.ByLLM,
		"transfers", stats.Transfers,
		"needs_review", stats.NeedsReview,
		"rules_created", stats.RulesCreated,
		"failed", stats.Failed,
		"skipped", stats.Skipped)

	return stats, ctx.Err()
}

// forceReview parks a transaction whose decision could not be committed.
func (e *Engine) forceReview(ctx context.Context, txn model.Transaction, cause error) {
	e.logger.Error("Failed to categorize transaction",
		"transaction_id", txn.ExternalID,
		"error", cause)

	decision := needsReview(ReasonCommitFailed)
	if err := e.store.UpdateDecision(context.WithoutCancel(ctx), txn.ExternalID, decision); err != nil {
		e.logger.Error("Failed to mark transaction for review",
			"transaction_id", txn.ExternalID,
			"error", err)
		return
	}

	e.record(ctx, model.EventNeedsReview, map[string]any{
		"transaction_id": txn.ExternalID,
		"status":         string(decision.Status),
		"source":         string(decision.Source),
		"reason":         ReasonCommitFailed,
		"error":          cause.Error(),
	})
}
