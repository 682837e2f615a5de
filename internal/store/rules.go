package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"erp-rules/internal/metadata"
)

// RuleFilter narrows List. Empty fields do not filter.
type RuleFilter struct {
	HookPoint  string
	Status     string
	DataObject string
}

// RuleStore persists rule definitions and their execution statistics.
type RuleStore interface {
	Create(ctx context.Context, r *metadata.Rule) (*metadata.Rule, error)
	Update(ctx context.Context, r *metadata.Rule) (*metadata.Rule, error)
	Get(ctx context.Context, id string) (*metadata.Rule, error)
	List(ctx context.Context, f RuleFilter) ([]*metadata.Rule, error)
	AllRules(ctx context.Context) ([]*metadata.Rule, error)
	SetStatus(ctx context.Context, id, status string) (*metadata.Rule, error)
	IncrementStats(ctx context.Context, id string, d metadata.StatsDelta) (metadata.RuleStats, error)
}

// ruleDefinition is the logic half of a rule, stored as one JSON document.
type ruleDefinition struct {
	Conditions    []metadata.Condition   `json:"conditions"`
	Actions       []metadata.Action      `json:"actions"`
	DecisionTable []metadata.DecisionRow `json:"decisionTable,omitempty"`
	CheckTable    []metadata.CheckRow    `json:"checkTable,omitempty"`
	Expression    string                 `json:"expression,omitempty"`
	RegexPattern  string                 `json:"regexPattern,omitempty"`
	RegexField    string                 `json:"regexField,omitempty"`
}

const ruleColumns = "id, name, description, type, data_object, data_objects, scope, category, tags, " +
	"status, enabled, is_active, priority, hook_points, request_types, definition, " +
	"condition_count, action_count, usage_count, execution_count, success_count, failure_count, " +
	"last_executed_at, created_by, created_at, updated_at"

const ruleOrder = " ORDER BY priority ASC, created_at DESC, id ASC"

// SQLRuleStore is the database/sql implementation of RuleStore.
type SQLRuleStore struct {
	store *Store
	now   func() time.Time
}

func NewSQLRuleStore(s *Store) *SQLRuleStore {
	return &SQLRuleStore{store: s, now: nowMicro}
}

// nowMicro truncates to the precision PostgreSQL keeps so stored and
// returned timestamps compare equal.
func nowMicro() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func (s *SQLRuleStore) Create(ctx context.Context, r *metadata.Rule) (*metadata.Rule, error) {
	rule := r.Clone()
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	rule.Normalize()
	rule.RuleStats = metadata.RuleStats{}
	now := s.now()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	def, err := encodeDefinition(rule)
	if err != nil {
		return nil, err
	}

	d := s.store.Dialect
	pb := d.NewParamBuilder()
	values := []string{
		pb.Add(rule.ID), pb.Add(rule.Name), pb.Add(rule.Description), pb.Add(rule.Type),
		pb.Add(rule.DataObject), pb.Add(d.ArrayParam(rule.DataObjects)), pb.Add(rule.Scope),
		pb.Add(rule.Category), pb.Add(d.ArrayParam(rule.Tags)), pb.Add(rule.Status),
		pb.Add(rule.Enabled), pb.Add(rule.IsActive), pb.Add(rule.Priority),
		pb.Add(d.ArrayParam(rule.HookPoints)), pb.Add(d.ArrayParam(rule.RequestTypes)), pb.Add(def),
		pb.Add(rule.ConditionCount), pb.Add(rule.ActionCount),
		"0", "0", "0", "0", "NULL",
		pb.Add(rule.CreatedBy), pb.Add(d.TimeParam(now)), pb.Add(d.TimeParam(now)),
	}
	sqlStr := fmt.Sprintf("INSERT INTO _rules (%s) VALUES (%s)", ruleColumns, strings.Join(values, ", "))
	if _, err := Exec(ctx, s.store.DB, sqlStr, pb.Params()...); err != nil {
		return nil, MapError(d, err)
	}
	return rule, nil
}

// Update replaces every admin-owned field. Statistics, createdAt and
// createdBy are preserved.
func (s *SQLRuleStore) Update(ctx context.Context, r *metadata.Rule) (*metadata.Rule, error) {
	current, err := s.Get(ctx, r.ID)
	if err != nil {
		return nil, err
	}

	rule := r.Clone()
	rule.Normalize()
	rule.RuleStats = current.RuleStats
	rule.CreatedAt = current.CreatedAt
	rule.CreatedBy = current.CreatedBy
	rule.UpdatedAt = s.now()

	def, err := encodeDefinition(rule)
	if err != nil {
		return nil, err
	}

	d := s.store.Dialect
	pb := d.NewParamBuilder()
	sets := []string{
		"name = " + pb.Add(rule.Name),
		"description = " + pb.Add(rule.Description),
		"type = " + pb.Add(rule.Type),
		"data_object = " + pb.Add(rule.DataObject),
		"data_objects = " + pb.Add(d.ArrayParam(rule.DataObjects)),
		"scope = " + pb.Add(rule.Scope),
		"category = " + pb.Add(rule.Category),
		"tags = " + pb.Add(d.ArrayParam(rule.Tags)),
		"status = " + pb.Add(rule.Status),
		"enabled = " + pb.Add(rule.Enabled),
		"is_active = " + pb.Add(rule.IsActive),
		"priority = " + pb.Add(rule.Priority),
		"hook_points = " + pb.Add(d.ArrayParam(rule.HookPoints)),
		"request_types = " + pb.Add(d.ArrayParam(rule.RequestTypes)),
		"definition = " + pb.Add(def),
		"condition_count = " + pb.Add(rule.ConditionCount),
		"action_count = " + pb.Add(rule.ActionCount),
		"updated_at = " + pb.Add(d.TimeParam(rule.UpdatedAt)),
	}
	sqlStr := fmt.Sprintf("UPDATE _rules SET %s WHERE id = %s", strings.Join(sets, ", "), pb.Add(rule.ID))
	n, err := Exec(ctx, s.store.DB, sqlStr, pb.Params()...)
	if err != nil {
		return nil, MapError(d, err)
	}
	if n == 0 {
		return nil, ErrNotFound
	}
	return rule, nil
}

func (s *SQLRuleStore) Get(ctx context.Context, id string) (*metadata.Rule, error) {
	pb := s.store.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf("SELECT %s FROM _rules WHERE id = %s", ruleColumns, pb.Add(id))
	row, err := QueryRow(ctx, s.store.DB, sqlStr, pb.Params()...)
	if err != nil {
		return nil, err
	}
	return s.scanRule(row)
}

func (s *SQLRuleStore) List(ctx context.Context, f RuleFilter) ([]*metadata.Rule, error) {
	d := s.store.Dialect
	pb := d.NewParamBuilder()
	var where []string
	if f.HookPoint != "" {
		where = append(where, d.ArrayContainsExpr("hook_points", pb, f.HookPoint))
	}
	if f.Status != "" {
		where = append(where, "status = "+pb.Add(f.Status))
	}
	if f.DataObject != "" {
		ph := pb.Add(f.DataObject)
		where = append(where, fmt.Sprintf("(data_object = %s OR %s)", ph, d.ArrayContainsExpr("data_objects", pb, f.DataObject)))
	}

	sqlStr := "SELECT " + ruleColumns + " FROM _rules"
	if len(where) > 0 {
		sqlStr += " WHERE " + strings.Join(where, " AND ")
	}
	sqlStr += ruleOrder

	rows, err := QueryRows(ctx, s.store.DB, sqlStr, pb.Params()...)
	if err != nil {
		return nil, err
	}
	rules := make([]*metadata.Rule, 0, len(rows))
	for _, row := range rows {
		r, err := s.scanRule(row)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, nil
}

func (s *SQLRuleStore) AllRules(ctx context.Context) ([]*metadata.Rule, error) {
	return s.List(ctx, RuleFilter{})
}

func (s *SQLRuleStore) SetStatus(ctx context.Context, id, status string) (*metadata.Rule, error) {
	d := s.store.Dialect
	pb := d.NewParamBuilder()
	sqlStr := fmt.Sprintf("UPDATE _rules SET status = %s, updated_at = %s WHERE id = %s",
		pb.Add(status), pb.Add(d.TimeParam(s.now())), pb.Add(id))
	n, err := Exec(ctx, s.store.DB, sqlStr, pb.Params()...)
	if err != nil {
		return nil, MapError(d, err)
	}
	if n == 0 {
		return nil, ErrNotFound
	}
	return s.Get(ctx, id)
}

// IncrementStats applies a delta in one statement so concurrent executions
// never lose an increment. updated_at is left alone: stats are not edits.
func (s *SQLRuleStore) IncrementStats(ctx context.Context, id string, delta metadata.StatsDelta) (metadata.RuleStats, error) {
	d := s.store.Dialect
	pb := d.NewParamBuilder()
	sqlStr := fmt.Sprintf(`UPDATE _rules SET
		usage_count = usage_count + %s,
		execution_count = execution_count + %s,
		success_count = success_count + %s,
		failure_count = failure_count + %s,
		last_executed_at = %s
		WHERE id = %s
		RETURNING usage_count, execution_count, success_count, failure_count, last_executed_at`,
		pb.Add(delta.Usage), pb.Add(delta.Executions), pb.Add(delta.Successes), pb.Add(delta.Failures),
		pb.Add(d.TimeParam(delta.ExecutedAt.UTC().Truncate(time.Microsecond))), pb.Add(id))

	row, err := QueryRow(ctx, s.store.DB, sqlStr, pb.Params()...)
	if err != nil {
		return metadata.RuleStats{}, err
	}
	return scanStats(row), nil
}

func encodeDefinition(r *metadata.Rule) (string, error) {
	b, err := json.Marshal(ruleDefinition{
		Conditions:    r.Conditions,
		Actions:       r.Actions,
		DecisionTable: r.DecisionTable,
		CheckTable:    r.CheckTable,
		Expression:    r.Expression,
		RegexPattern:  r.RegexPattern,
		RegexField:    r.RegexField,
	})
	if err != nil {
		return "", fmt.Errorf("encode rule definition: %w", err)
	}
	return string(b), nil
}

func (s *SQLRuleStore) scanRule(row map[string]any) (*metadata.Rule, error) {
	d := s.store.Dialect
	r := &metadata.Rule{
		ID:             asString(row["id"]),
		Name:           asString(row["name"]),
		Description:    asString(row["description"]),
		Type:           asString(row["type"]),
		DataObject:     asString(row["data_object"]),
		Scope:          asString(row["scope"]),
		Category:       asString(row["category"]),
		Status:         asString(row["status"]),
		Enabled:        asBool(row["enabled"]),
		IsActive:       asBool(row["is_active"]),
		Priority:       int(asInt64(row["priority"])),
		ConditionCount: int(asInt64(row["condition_count"])),
		ActionCount:    int(asInt64(row["action_count"])),
		RuleStats:      scanStats(row),
		CreatedBy:      asString(row["created_by"]),
	}
	r.CreatedAt, _ = parseTime(row["created_at"])
	r.UpdatedAt, _ = parseTime(row["updated_at"])

	var err error
	arrays := []struct {
		col string
		dst *[]string
	}{
		{"data_objects", &r.DataObjects},
		{"tags", &r.Tags},
		{"hook_points", &r.HookPoints},
		{"request_types", &r.RequestTypes},
	}
	for _, a := range arrays {
		if *a.dst, err = d.ScanArray(row[a.col]); err != nil {
			return nil, fmt.Errorf("rule %s: %s: %w", r.ID, a.col, err)
		}
	}

	var def ruleDefinition
	if raw := asJSON(row["definition"]); len(raw) > 0 {
		if err := json.Unmarshal(raw, &def); err != nil {
			return nil, fmt.Errorf("rule %s: decode definition: %w", r.ID, err)
		}
	}
	r.Conditions = def.Conditions
	r.Actions = def.Actions
	r.DecisionTable = def.DecisionTable
	r.CheckTable = def.CheckTable
	r.Expression = def.Expression
	r.RegexPattern = def.RegexPattern
	r.RegexField = def.RegexField
	if r.Conditions == nil {
		r.Conditions = []metadata.Condition{}
	}
	if r.Actions == nil {
		r.Actions = []metadata.Action{}
	}
	return r, nil
}

func scanStats(row map[string]any) metadata.RuleStats {
	st := metadata.RuleStats{
		UsageCount:     asInt64(row["usage_count"]),
		ExecutionCount: asInt64(row["execution_count"]),
		SuccessCount:   asInt64(row["success_count"]),
		FailureCount:   asInt64(row["failure_count"]),
	}
	if t, ok := parseTime(row["last_executed_at"]); ok {
		st.LastExecutedAt = &t
	}
	return st
}

// asJSON returns the raw document for a JSON/JSONB column whatever shape
// the driver decoded it into.
func asJSON(v any) []byte {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		return []byte(val)
	case []byte:
		return val
	default:
		b, _ := json.Marshal(val)
		return b
	}
}
