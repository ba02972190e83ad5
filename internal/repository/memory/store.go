// Package memory keeps the action outbox and receipt log in process. It backs
// single-node deployments and worker tests; claims are a compare-and-set
// under the store mutex.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jmehdipour/actionflow/internal/model"
	"github.com/jmehdipour/actionflow/internal/repository"
	"github.com/jmehdipour/actionflow/internal/util"
)

type Store struct {
	mu       sync.Mutex
	actions  map[string]*model.Action
	receipts []model.Receipt
}

func New() *Store {
	return &Store{actions: make(map[string]*model.Action)}
}

func (s *Store) Enqueue(_ context.Context, a model.Action) (model.Action, error) {
	a.Type = model.ActionType(strings.TrimSpace(a.Type.String()))
	if a.Type == "" || strings.TrimSpace(a.ConversationID) == "" {
		return model.Action{}, fmt.Errorf("%w: action_type and conversation_id are required", repository.ErrInvalidAction)
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	if a.ID == "" {
		a.ID = util.NewAt(a.CreatedAt)
	}
	if a.Payload == nil {
		a.Payload = model.Payload{}
	}
	a.Status = model.ActionPending
	a.Attempts = 0
	a.ClaimedAt = nil
	a.ExecutedAt = nil

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.actions[a.ID]; dup {
		return model.Action{}, fmt.Errorf("%w: duplicate id %s", repository.ErrInvalidAction, a.ID)
	}
	stored := a
	s.actions[a.ID] = &stored
	return copyAction(stored), nil
}

func (s *Store) Get(_ context.Context, id string) (model.Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.actions[id]
	if !ok {
		return model.Action{}, repository.ErrNotFound
	}
	return copyAction(*a), nil
}

func (s *Store) FetchPending(_ context.Context, q model.PendingQuery) ([]model.Action, error) {
	if q.Limit <= 0 {
		q.Limit = 10
	}
	if q.MaxAttempts <= 0 {
		q.MaxAttempts = model.DefaultMaxAttempts
	}
	allowed := make(map[model.ActionType]bool, len(q.Types))
	for _, t := range q.Types {
		allowed[t] = true
	}

	s.mu.Lock()
	out := make([]model.Action, 0, q.Limit)
	for _, a := range s.actions {
		if a.Status != model.ActionPending || a.Attempts >= q.MaxAttempts {
			continue
		}
		if len(allowed) > 0 && !allowed[a.Type] {
			continue
		}
		out = append(out, copyAction(*a))
	}
	s.mu.Unlock()

	sortFIFO(out)
	if len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *Store) Claim(_ context.Context, id string, at time.Time) (*model.Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.actions[id]
	if !ok || a.Status != model.ActionPending {
		return nil, nil
	}
	claimedAt := at
	a.Status = model.ActionProcessing
	a.ClaimedAt = &claimedAt
	c := copyAction(*a)
	return &c, nil
}

func (s *Store) Settle(_ context.Context, st model.Settlement) (model.Action, error) {
	if st.MaxAttempts <= 0 {
		st.MaxAttempts = model.DefaultMaxAttempts
	}
	if st.At.IsZero() {
		st.At = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.actions[st.ActionID]
	if !ok || a.Status != model.ActionProcessing {
		return model.Action{}, fmt.Errorf("settle action %s: %w", st.ActionID, repository.ErrNotProcessing)
	}
	if st.ClaimedAt != nil && (a.ClaimedAt == nil || !a.ClaimedAt.Equal(*st.ClaimedAt)) {
		return model.Action{}, fmt.Errorf("settle action %s: %w", st.ActionID, repository.ErrNotProcessing)
	}

	if st.Success {
		at := st.At
		a.Status = model.ActionExecuted
		a.ExecutedAt = &at
	} else {
		a.Attempts++
		a.ClaimedAt = nil
		if a.Attempts >= st.MaxAttempts {
			a.Status = model.ActionFailed
		} else {
			a.Status = model.ActionPending
		}
	}

	rc := st.Receipt
	if rc.SourceID == "" {
		rc.SourceID = st.ActionID
	}
	if rc.CreatedAt.IsZero() {
		rc.CreatedAt = st.At
	}
	if rc.ID == "" {
		rc.ID = util.NewAt(rc.CreatedAt)
	}
	s.receipts = append(s.receipts, rc)

	return copyAction(*a), nil
}

func (s *Store) ListStale(_ context.Context, claimedBefore time.Time, limit int) ([]model.Action, error) {
	if limit <= 0 {
		limit = 100
	}
	s.mu.Lock()
	var out []model.Action
	for _, a := range s.actions {
		if a.Status == model.ActionProcessing && a.ClaimedAt != nil && a.ClaimedAt.Before(claimedBefore) {
			out = append(out, copyAction(*a))
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].ClaimedAt.Equal(*out[j].ClaimedAt) {
			return out[i].ClaimedAt.Before(*out[j].ClaimedAt)
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListBySource returns the receipts written for one action, in write order.
func (s *Store) ListBySource(_ context.Context, actionID string) ([]model.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Receipt
	for _, rc := range s.receipts {
		if rc.SourceID == actionID {
			out = append(out, rc)
		}
	}
	return out, nil
}

func sortFIFO(as []model.Action) {
	sort.Slice(as, func(i, j int) bool {
		if !as[i].CreatedAt.Equal(as[j].CreatedAt) {
			return as[i].CreatedAt.Before(as[j].CreatedAt)
		}
		return as[i].ID < as[j].ID
	})
}

func copyAction(a model.Action) model.Action {
	a.Payload = a.Payload.Clone()
	if a.ClaimedAt != nil {
		t := *a.ClaimedAt
		a.ClaimedAt = &t
	}
	if a.ExecutedAt != nil {
		t := *a.ExecutedAt
		a.ExecutedAt = &t
	}
	return a
}
