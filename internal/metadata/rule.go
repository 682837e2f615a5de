package metadata

import (
	"encoding/json"
	"math"
	"slices"
	"time"
)

// Rule types.
const (
	RuleTypeValidation   = "validation"
	RuleTypeCalculation  = "calculation"
	RuleTypeWorkflow     = "workflow"
	RuleTypeNotification = "notification"
	RuleTypeIntegration  = "integration"
	RuleTypeSecurity     = "security"
	RuleTypeBusiness     = "business"
	RuleTypeData         = "data"
	RuleTypeUI           = "ui"
	RuleTypeAPI          = "api"
)

// Rule scopes.
const (
	ScopeGlobal     = "global"
	ScopeDataObject = "dataObject"
	ScopeField      = "field"
	ScopeUser       = "user"
	ScopeRole       = "role"
	ScopeGeneric    = "generic"
)

// Rule lifecycle statuses.
const (
	StatusDraft      = "draft"
	StatusActive     = "active"
	StatusInactive   = "inactive"
	StatusArchived   = "archived"
	StatusDeprecated = "deprecated"
)

var (
	ruleTypes = setOf(RuleTypeValidation, RuleTypeCalculation, RuleTypeWorkflow, RuleTypeNotification,
		RuleTypeIntegration, RuleTypeSecurity, RuleTypeBusiness, RuleTypeData, RuleTypeUI, RuleTypeAPI)
	ruleScopes   = setOf(ScopeGlobal, ScopeDataObject, ScopeField, ScopeUser, ScopeRole, ScopeGeneric)
	ruleStatuses = setOf(StatusDraft, StatusActive, StatusInactive, StatusArchived, StatusDeprecated)
)

// Condition is one test of a context field. LogicalOperator joins this
// condition's result onto the chain accumulated so far; it is ignored on the
// first condition.
type Condition struct {
	ID              int    `json:"id"`
	Field           string `json:"field"`
	Operator        string `json:"operator"`
	Value           any    `json:"value"`
	LogicalOperator string `json:"logicalOperator,omitempty"`
}

// Action mutates the evaluation context or reports a UI hint.
type Action struct {
	ID         int            `json:"id"`
	Type       string         `json:"type"`
	Field      string         `json:"field,omitempty"`
	Value      any            `json:"value,omitempty"`
	Message    string         `json:"message,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// DecisionRow writes Outputs into the context when its conditions hold.
// Rows are scanned in order and the first match wins.
type DecisionRow struct {
	ID         int            `json:"id"`
	Conditions []Condition    `json:"conditions"`
	Outputs    map[string]any `json:"outputs"`
}

// CheckRow is a CEL assertion over the context, exposed as variable "data".
type CheckRow struct {
	ID         int    `json:"id"`
	Expression string `json:"expression"`
	Message    string `json:"message,omitempty"`
}

// RuleStats holds the counters owned by the engine.
type RuleStats struct {
	UsageCount     int64      `json:"usageCount"`
	ExecutionCount int64      `json:"executionCount"`
	SuccessCount   int64      `json:"successCount"`
	FailureCount   int64      `json:"failureCount"`
	LastExecutedAt *time.Time `json:"lastExecutedAt,omitempty"`
}

// SuccessRate returns the rounded success percentage, 0 when never executed.
func (s RuleStats) SuccessRate() int {
	if s.ExecutionCount == 0 {
		return 0
	}
	return int(math.Round(float64(s.SuccessCount) / float64(s.ExecutionCount) * 100))
}

// IsEffective reports whether the rule has run and succeeds at least 80% of the time.
func (s RuleStats) IsEffective() bool {
	return s.ExecutionCount > 0 && s.SuccessRate() >= 80
}

// StatsDelta is an increment applied atomically to a rule's counters.
type StatsDelta struct {
	Usage      int64
	Executions int64
	Successes  int64
	Failures   int64
	ExecutedAt time.Time
}

// Rule is a named, versioned policy unit evaluated by the engine.
type Rule struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Type        string   `json:"type"`
	DataObject  string   `json:"dataObject,omitempty"`
	DataObjects []string `json:"dataObjects,omitempty"`
	Scope       string   `json:"scope,omitempty"`
	Category    string   `json:"category,omitempty"`
	Tags        []string `json:"tags,omitempty"`

	Status   string `json:"status"`
	Enabled  bool   `json:"enabled"`
	IsActive bool   `json:"isActive"`

	Conditions    []Condition   `json:"conditions"`
	Actions       []Action      `json:"actions"`
	DecisionTable []DecisionRow `json:"decisionTable,omitempty"`
	CheckTable    []CheckRow    `json:"checkTable,omitempty"`
	Expression    string        `json:"expression,omitempty"`
	RegexPattern  string        `json:"regexPattern,omitempty"`
	RegexField    string        `json:"regexField,omitempty"`

	Priority     int      `json:"priority"`
	HookPoints   []string `json:"hookPoints"`
	RequestTypes []string `json:"requestTypes,omitempty"`

	ConditionCount int `json:"conditionCount"`
	ActionCount    int `json:"actionCount"`

	RuleStats

	CreatedBy string    `json:"createdBy,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Eligible reports whether the rule may run in a hook-point batch.
func (r *Rule) Eligible() bool {
	return r.Enabled && r.IsActive && r.Status == StatusActive
}

// Executable reports whether the rule may be executed directly.
func (r *Rule) Executable() bool {
	return r.Enabled && r.IsActive
}

// HasHookPoint reports whether the rule participates in the named hook point.
func (r *Rule) HasHookPoint(hookPoint string) bool {
	return contains(r.HookPoints, hookPoint)
}

// MatchesDataObject reports whether the rule targets the given entity, either
// as its primary data object or through its multi-entity set.
func (r *Rule) MatchesDataObject(dataObject string) bool {
	return r.DataObject == dataObject || contains(r.DataObjects, dataObject)
}

// MatchesRequestType reports whether the rule applies to the request type.
// An empty requestTypes set is unrestricted.
func (r *Rule) MatchesRequestType(requestType string) bool {
	return len(r.RequestTypes) == 0 || contains(r.RequestTypes, requestType)
}

// ComplexityScore weighs each logic element of the rule.
func (r *Rule) ComplexityScore() int {
	score := 2*len(r.Conditions) + len(r.Actions) + 3*len(r.DecisionTable) + len(r.CheckTable)
	if r.Expression != "" {
		score += 5
	}
	if r.RegexPattern != "" {
		score += 3
	}
	return score
}

// Normalize recomputes the stored counts and fills defaults. Called on every persist.
func (r *Rule) Normalize() {
	if r.Conditions == nil {
		r.Conditions = []Condition{}
	}
	if r.Actions == nil {
		r.Actions = []Action{}
	}
	if r.HookPoints == nil {
		r.HookPoints = []string{}
	}
	r.ConditionCount = len(r.Conditions)
	r.ActionCount = len(r.Actions)
	if r.Status == "" {
		r.Status = StatusDraft
	}
	if r.Scope == "" {
		r.Scope = ScopeGeneric
	}
	if r.Priority == 0 {
		r.Priority = 1
	}
}

// Clone returns a deep-enough copy for callers that hand rules across goroutines.
// Condition and action values are shared; the engine never writes to them.
func (r *Rule) Clone() *Rule {
	c := *r
	c.DataObjects = slices.Clone(r.DataObjects)
	c.Tags = slices.Clone(r.Tags)
	c.Conditions = slices.Clone(r.Conditions)
	c.Actions = slices.Clone(r.Actions)
	c.DecisionTable = slices.Clone(r.DecisionTable)
	c.CheckTable = slices.Clone(r.CheckTable)
	c.HookPoints = slices.Clone(r.HookPoints)
	c.RequestTypes = slices.Clone(r.RequestTypes)
	if r.LastExecutedAt != nil {
		t := *r.LastExecutedAt
		c.LastExecutedAt = &t
	}
	return &c
}

// ValidStatus reports whether s is one of the lifecycle statuses.
func ValidStatus(s string) bool {
	return ruleStatuses[s]
}

type ruleJSON Rule

// MarshalJSON adds the read-side derived fields. They are never stored.
func (r Rule) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ruleJSON
		SuccessRate     int  `json:"successRate"`
		IsEffective     bool `json:"isEffective"`
		ComplexityScore int  `json:"complexityScore"`
	}{
		ruleJSON:        ruleJSON(r),
		SuccessRate:     r.SuccessRate(),
		IsEffective:     r.IsEffective(),
		ComplexityScore: r.ComplexityScore(),
	})
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}

func setOf(values ...string) map[string]bool {
	m := make(map[string]bool, len(values))
	for _, v := range values {
		m[v] = true
	}
	return m
}
