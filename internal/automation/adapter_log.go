package automation

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"opsflow/internal/models"
)

// ActionKeyInternalLog writes the invocation payload to the structured log,
// with sensitive values masked. Always succeeds.
const ActionKeyInternalLog = "internal_log"

// Substrings that mark a payload key as sensitive, matched case-insensitively.
var sensitiveKeyParts = []string{"password", "jwt", "csrf", "token", "secret"}

const maskedValue = "***"

// LogAction is the internal log adapter.
type LogAction struct {
	logger *logrus.Logger
}

func NewLogAction(logger *logrus.Logger) *LogAction {
	if logger == nil {
		logger = logrus.New()
	}
	return &LogAction{logger: logger}
}

func (a *LogAction) Execute(_ context.Context, payload map[string]interface{}, actx models.ActionContext) (ActionOutcome, error) {
	masked, _ := MaskSensitive(payload).(map[string]interface{})
	a.logger.WithFields(logrus.Fields{
		"execution_id":    actx.ExecutionID,
		"company_id":      actx.CompanyID,
		"idempotency_key": actx.IdempotencyKey,
		"payload":         masked,
	}).Info("automation: internal log action")
	return ActionOutcome{Status: models.ActionStatusSuccess}, nil
}

// MaskSensitive returns a deep copy of v with every value under a sensitive
// key replaced. It recurses through nested maps and arrays and never mutates
// its input.
func MaskSensitive(v interface{}) interface{} {
	switch node := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(node))
		for key, val := range node {
			if isSensitiveKey(key) {
				out[key] = maskedValue
				continue
			}
			out[key] = MaskSensitive(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(node))
		for i, item := range node {
			out[i] = MaskSensitive(item)
		}
		return out
	default:
		return v
	}
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, part := range sensitiveKeyParts {
		if strings.Contains(lower, part) {
			return true
		}
	}
	return false
}
