package audit

// Audience identifies the consumer class a projected view is rendered for.
type Audience string

const (
	AudienceInternal Audience = "INTERNAL"
	AudienceAdmin    Audience = "ADMIN"
	AudiencePartner  Audience = "PARTNER"
	AudienceEndUser  Audience = "END_USER"
	AudienceAI       Audience = "AI"
)

// RedactionMarker replaces field values rather than removing them, so the
// document shape survives redaction.
const RedactionMarker = "[REDACTED]"

// Policy whitelists fields for one audience. RedactFields are redacted even
// when listed in AllowFields.
type Policy struct {
	Audience     Audience `json:"audience"`
	AllowFields  []string `json:"allowFields"`
	RedactFields []string `json:"redactFields,omitempty"`
}

// Redactor applies audience policies to projected documents. When no policy
// matches the requested audience it falls back to default-deny: every field
// redacted.
type Redactor struct {
	policies map[Audience]Policy
}

func NewRedactor(policies ...Policy) *Redactor {
	byAudience := make(map[Audience]Policy, len(policies))
	for _, p := range policies {
		byAudience[p.Audience] = p
	}
	return &Redactor{policies: byAudience}
}

// DefaultRedactor covers the platform's standard audiences: internal and
// admin consumers see everything, partners lose tenant identifiers, end
// users and AI consumers see only the decision surface.
func DefaultRedactor() *Redactor {
	return NewRedactor(
		Policy{Audience: AudienceInternal, AllowFields: []string{"*"}},
		Policy{Audience: AudienceAdmin, AllowFields: []string{"*"}},
		Policy{
			Audience: AudiencePartner,
			AllowFields: []string{
				"runId", "eventType", "status", "decision", "rulesEvaluated",
				"rulesMatched", "actionsExecuted", "actionsFailed", "actionsSkipped",
				"reasonCodes", "rules", "ruleId", "ruleName", "matched", "reasons",
				"results", "actionKey",
			},
			RedactFields: []string{"companyId", "idempotencyKey", "error"},
		},
		Policy{
			Audience:    AudienceEndUser,
			AllowFields: []string{"eventType", "status", "decision"},
		},
		Policy{
			Audience:    AudienceAI,
			AllowFields: []string{"eventType", "status", "decision", "reasonCodes", "rulesEvaluated", "rulesMatched"},
		},
	)
}

// Redact walks the document and replaces every field the audience may not
// see with the redaction marker. Nested maps and arrays keep their shape;
// field visibility is decided by key name wherever the key appears.
func (r *Redactor) Redact(audience Audience, doc map[string]interface{}) map[string]interface{} {
	policy, ok := r.policies[audience]
	if !ok {
		// Default-deny: no matching rule means nothing is visible.
		policy = Policy{Audience: audience}
	}

	allowAll := false
	allowed := make(map[string]bool, len(policy.AllowFields))
	for _, f := range policy.AllowFields {
		if f == "*" {
			allowAll = true
			continue
		}
		allowed[f] = true
	}
	denied := make(map[string]bool, len(policy.RedactFields))
	for _, f := range policy.RedactFields {
		denied[f] = true
	}

	redacted, _ := redactValue(doc, allowAll, allowed, denied).(map[string]interface{})
	return redacted
}

func redactValue(v interface{}, allowAll bool, allowed, denied map[string]bool) interface{} {
	switch node := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(node))
		for key, val := range node {
			if denied[key] || (!allowAll && !allowed[key]) {
				out[key] = RedactionMarker
				continue
			}
			out[key] = redactValue(val, allowAll, allowed, denied)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(node))
		for i, item := range node {
			out[i] = redactValue(item, allowAll, allowed, denied)
		}
		return out
	default:
		return v
	}
}
