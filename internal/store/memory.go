package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"erp-rules/internal/metadata"
)

// MemoryRuleStore keeps rules in process. Used by rulectl and tests.
type MemoryRuleStore struct {
	mu    sync.Mutex
	rules map[string]*metadata.Rule
	seq   int64
	now   func() time.Time
}

func NewMemoryRuleStore() *MemoryRuleStore {
	return &MemoryRuleStore{rules: make(map[string]*metadata.Rule), now: nowMicro}
}

// Seed inserts rules as-is, keeping their ids, stats and timestamps.
// A zero createdAt is stamped so ordering stays deterministic.
func (m *MemoryRuleStore) Seed(rules ...*metadata.Rule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rules {
		c := r.Clone()
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		c.Normalize()
		if c.CreatedAt.IsZero() {
			c.CreatedAt = m.stamp()
			c.UpdatedAt = c.CreatedAt
		}
		m.rules[c.ID] = c
	}
}

// stamp returns strictly increasing times so rules created in the same
// instant still sort newest first.
func (m *MemoryRuleStore) stamp() time.Time {
	m.seq++
	return m.now().Add(time.Duration(m.seq) * time.Microsecond)
}

func (m *MemoryRuleStore) Create(_ context.Context, r *metadata.Rule) (*metadata.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rule := r.Clone()
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if _, exists := m.rules[rule.ID]; exists {
		return nil, ErrUniqueViolation
	}
	rule.Normalize()
	rule.RuleStats = metadata.RuleStats{}
	rule.CreatedAt = m.stamp()
	rule.UpdatedAt = rule.CreatedAt
	m.rules[rule.ID] = rule
	return rule.Clone(), nil
}

func (m *MemoryRuleStore) Update(_ context.Context, r *metadata.Rule) (*metadata.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.rules[r.ID]
	if !ok {
		return nil, ErrNotFound
	}
	rule := r.Clone()
	rule.Normalize()
	rule.RuleStats = current.RuleStats
	rule.CreatedAt = current.CreatedAt
	rule.CreatedBy = current.CreatedBy
	rule.UpdatedAt = m.stamp()
	m.rules[rule.ID] = rule
	return rule.Clone(), nil
}

func (m *MemoryRuleStore) Get(_ context.Context, id string) (*metadata.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r.Clone(), nil
}

func (m *MemoryRuleStore) List(_ context.Context, f RuleFilter) ([]*metadata.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*metadata.Rule, 0, len(m.rules))
	for _, r := range m.rules {
		if f.HookPoint != "" && !r.HasHookPoint(f.HookPoint) {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		if f.DataObject != "" && !r.MatchesDataObject(f.DataObject) {
			continue
		}
		out = append(out, r.Clone())
	}
	metadata.SortForExecution(out)
	return out, nil
}

func (m *MemoryRuleStore) AllRules(ctx context.Context) ([]*metadata.Rule, error) {
	return m.List(ctx, RuleFilter{})
}

func (m *MemoryRuleStore) SetStatus(_ context.Context, id, status string) (*metadata.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[id]
	if !ok {
		return nil, ErrNotFound
	}
	r.Status = status
	r.UpdatedAt = m.stamp()
	return r.Clone(), nil
}

func (m *MemoryRuleStore) IncrementStats(_ context.Context, id string, d metadata.StatsDelta) (metadata.RuleStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[id]
	if !ok {
		return metadata.RuleStats{}, ErrNotFound
	}
	r.UsageCount += d.Usage
	r.ExecutionCount += d.Executions
	r.SuccessCount += d.Successes
	r.FailureCount += d.Failures
	at := d.ExecutedAt.UTC()
	r.LastExecutedAt = &at
	out := r.RuleStats
	last := at
	out.LastExecutedAt = &last
	return out, nil
}
