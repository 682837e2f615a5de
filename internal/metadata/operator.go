package metadata

// Operator is the closed set of condition operators. Unknown names parse to
// OpUnknown, which the evaluator treats as a safe false.
type Operator uint8

const (
	OpUnknown Operator = iota
	OpEquals
	OpNotEquals
	OpGreaterThan
	OpGreaterThanOrEqual
	OpLessThan
	OpLessThanOrEqual
	OpContains
	OpNotContains
	OpStartsWith
	OpEndsWith
	OpIsEmpty
	OpIsNotEmpty
	OpIsNull
	OpIsNotNull
	OpIn
	OpNotIn
	OpRegex
)

var operatorNames = map[Operator]string{
	OpEquals:             "equals",
	OpNotEquals:          "notEquals",
	OpGreaterThan:        "greaterThan",
	OpGreaterThanOrEqual: "greaterThanOrEqual",
	OpLessThan:           "lessThan",
	OpLessThanOrEqual:    "lessThanOrEqual",
	OpContains:           "contains",
	OpNotContains:        "notContains",
	OpStartsWith:         "startsWith",
	OpEndsWith:           "endsWith",
	OpIsEmpty:            "isEmpty",
	OpIsNotEmpty:         "isNotEmpty",
	OpIsNull:             "isNull",
	OpIsNotNull:          "isNotNull",
	OpIn:                 "in",
	OpNotIn:              "notIn",
	OpRegex:              "regex",
}

var operatorsByName = invert(operatorNames)

// ParseOperator maps a stored operator name to its variant.
func ParseOperator(name string) Operator {
	return operatorsByName[name]
}

func (o Operator) String() string {
	if s, ok := operatorNames[o]; ok {
		return s
	}
	return "unknown"
}

// ActionType is the closed set of action kinds.
type ActionType uint8

const (
	ActionUnknown ActionType = iota
	ActionSetField
	ActionSetValue
	ActionClearField
	ActionShowField
	ActionHideField
	ActionEnableField
	ActionDisableField
	ActionSetRequired
	ActionSetOptional
	ActionSetReadonly
	ActionSetEditable
	ActionShowMessage
	ActionHideMessage
	ActionCalculate
	ActionValidate
	ActionSendEmail
	ActionSendNotification
	ActionCallAPI
	ActionTriggerWorkflow
	ActionRedirect
)

var actionTypeNames = map[ActionType]string{
	ActionSetField:         "setField",
	ActionSetValue:         "setValue",
	ActionClearField:       "clearField",
	ActionShowField:        "showField",
	ActionHideField:        "hideField",
	ActionEnableField:      "enableField",
	ActionDisableField:     "disableField",
	ActionSetRequired:      "setRequired",
	ActionSetOptional:      "setOptional",
	ActionSetReadonly:      "setReadonly",
	ActionSetEditable:      "setEditable",
	ActionShowMessage:      "showMessage",
	ActionHideMessage:      "hideMessage",
	ActionCalculate:        "calculate",
	ActionValidate:         "validate",
	ActionSendEmail:        "sendEmail",
	ActionSendNotification: "sendNotification",
	ActionCallAPI:          "callApi",
	ActionTriggerWorkflow:  "triggerWorkflow",
	ActionRedirect:         "redirect",
}

var actionTypesByName = invert(actionTypeNames)

// ParseActionType maps a stored action type name to its variant.
func ParseActionType(name string) ActionType {
	return actionTypesByName[name]
}

func (a ActionType) String() string {
	if s, ok := actionTypeNames[a]; ok {
		return s
	}
	return "unknown"
}

// Mutates reports whether the action writes into the evaluation context.
func (a ActionType) Mutates() bool {
	switch a {
	case ActionSetField, ActionSetValue, ActionClearField, ActionCalculate:
		return true
	}
	return false
}

// IsUIHint reports whether the action only signals a UI state change.
func (a ActionType) IsUIHint() bool {
	switch a {
	case ActionShowField, ActionHideField, ActionEnableField, ActionDisableField,
		ActionSetRequired, ActionSetOptional, ActionSetReadonly, ActionSetEditable:
		return true
	}
	return false
}

// Logical combinators on a condition.
const (
	LogicalAnd = "AND"
	LogicalOr  = "OR"
	LogicalNot = "NOT"
)

func invert[K comparable](m map[K]string) map[string]K {
	out := make(map[string]K, len(m))
	for k, v := range m {
		out[v] = k
	}
	return out
}
