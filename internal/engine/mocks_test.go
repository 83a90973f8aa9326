package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/Veraticus/autobudgeter/internal/common"
	"github.com/Veraticus/autobudgeter/internal/llm"
	"github.com/Veraticus/autobudgeter/internal/model"
)

type mockStore struct {
	txns          map[string]*model.Transaction
	updateErr     map[string]error
	createRuleErr error
	rulesErr      error
	rules         []model.Rule
	created       []model.Rule
	mu            sync.Mutex
}

func newMockStore(txns ...model.Transaction) *mockStore {
	s := &mockStore{
		txns:      make(map[string]*model.Transaction),
		updateErr: make(map[string]error),
	}
	for i := range txns {
		t := txns[i]
		s.txns[t.ExternalID] = &t
	}
	return s
}

func (s *mockStore) GetTransaction(_ context.Context, id string) (*model.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.txns[id]
	if !ok {
		return nil, fmt.Errorf("transaction %s: %w", id, common.ErrNotFound)
	}
	cp := *t
	return &cp, nil
}

func (s *mockStore) GetEnabledRules(_ context.Context) ([]model.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rulesErr != nil {
		return nil, s.rulesErr
	}
	return append([]model.Rule(nil), s.rules...), nil
}

func (s *mockStore) CreateRule(_ context.Context, rule *model.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createRuleErr != nil {
		return s.createRuleErr
	}
	rule.ID = fmt.Sprintf("rule-%d", len(s.created)+1)
	s.created = append(s.created, *rule)
	s.rules = append(s.rules, *rule)
	return nil
}

func (s *mockStore) UpdateDecision(_ context.Context, id string, d model.Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.updateErr[id]; err != nil {
		delete(s.updateErr, id)
		return err
	}
	t, ok := s.txns[id]
	if !ok {
		return fmt.Errorf("transaction %s: %w", id, common.ErrNotFound)
	}
	t.Category = d.Category
	t.Status = d.Status
	t.Source = d.Source
	t.Confidence = d.Confidence
	return nil
}

func (s *mockStore) get(id string) model.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.txns[id]
}

type mockCategorizer struct {
	categorizeFn func(ctx context.Context, provider string, input llm.Input) (llm.Result, error)
	calls        int
	mu           sync.Mutex
}

func (m *mockCategorizer) Categorize(ctx context.Context, provider string, input llm.Input) (llm.Result, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	return m.categorizeFn(ctx, provider, input)
}

func (m *mockCategorizer) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type recordedEvent struct {
	payload   map[string]any
	eventType string
}

type mockSink struct {
	events []recordedEvent
	mu     sync.Mutex
}

func (m *mockSink) Append(_ context.Context, eventType string, payload map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, recordedEvent{eventType: eventType, payload: payload})
	return nil
}

func (m *mockSink) ofType(eventType string) []recordedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []recordedEvent
	for _, e := range m.events {
		if e.eventType == eventType {
			out = append(out, e)
		}
	}
	return out
}
