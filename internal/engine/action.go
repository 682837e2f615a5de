package engine

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"erp-rules/internal/metadata"
)

// ActionResult records the outcome of one action.
type ActionResult struct {
	ActionID int    `json:"actionId"`
	Type     string `json:"type"`
	Success  bool   `json:"success"`
	Message  string `json:"message"`

	writes []fieldWrite
}

type fieldWrite struct {
	field string
	value any
}

var uiHintMessages = map[metadata.ActionType]string{
	metadata.ActionShowField:    "Field %s shown",
	metadata.ActionHideField:    "Field %s hidden",
	metadata.ActionEnableField:  "Field %s enabled",
	metadata.ActionDisableField: "Field %s disabled",
	metadata.ActionSetRequired:  "Field %s marked as required",
	metadata.ActionSetOptional:  "Field %s marked as optional",
	metadata.ActionSetReadonly:  "Field %s set to readonly",
	metadata.ActionSetEditable:  "Field %s set to editable",
}

// ExecuteAction applies one action to the context. A failure inside the
// action, including a panic, is returned as a failed result and never
// escapes to the caller.
func ExecuteAction(action metadata.Action, data map[string]any) ActionResult {
	return executeAction(action, data, log.NewEntry(log.StandardLogger()))
}

func executeAction(action metadata.Action, data map[string]any, logger *log.Entry) (res ActionResult) {
	res = ActionResult{ActionID: action.ID, Type: action.Type}
	defer func() {
		if p := recover(); p != nil {
			res.Success = false
			res.Message = fmt.Sprint(p)
			res.writes = nil
		}
	}()

	at := metadata.ParseActionType(action.Type)
	switch {
	case at == metadata.ActionSetField || at == metadata.ActionSetValue:
		data[action.Field] = action.Value
		res.writes = []fieldWrite{{action.Field, action.Value}}
		res.Success = true
		res.Message = fmt.Sprintf("Field %s set to %s", action.Field, Stringify(action.Value))

	case at == metadata.ActionClearField:
		data[action.Field] = nil
		res.writes = []fieldWrite{{action.Field, nil}}
		res.Success = true
		res.Message = fmt.Sprintf("Field %s cleared", action.Field)

	case at.IsUIHint():
		res.Success = true
		res.Message = fmt.Sprintf(uiHintMessages[at], action.Field)

	case at == metadata.ActionShowMessage:
		res.Success = true
		res.Message = action.Message

	case at == metadata.ActionHideMessage:
		res.Success = true
		res.Message = action.Message
		if res.Message == "" {
			res.Message = "Message hidden"
		}

	case at == metadata.ActionCalculate:
		src, _ := action.Parameters["expression"].(string)
		val, err := EvaluateValueExpression(src, data)
		if err != nil {
			res.Message = err.Error()
			return res
		}
		data[action.Field] = val
		res.writes = []fieldWrite{{action.Field, val}}
		res.Success = true
		res.Message = fmt.Sprintf("Field %s calculated as %s", action.Field, Stringify(val))

	case at == metadata.ActionValidate:
		src, _ := action.Parameters["expression"].(string)
		ok, err := EvaluateExpression(src, data)
		if err != nil {
			res.Message = err.Error()
			return res
		}
		res.Success = ok
		switch {
		case ok:
			res.Message = "Validation passed"
		case action.Message != "":
			res.Message = action.Message
		default:
			res.Message = fmt.Sprintf("Validation failed: %s", src)
		}

	default:
		if at == metadata.ActionUnknown {
			logger.WithField("action_type", action.Type).Warn("unknown action type")
		}
		res.Message = fmt.Sprintf("Action type %s not implemented", action.Type)
	}
	return res
}
