package automation

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
)

// IdempotencyKey derives a deterministic key for an event occurrence when the
// publisher did not supply one: an FNV-1a hash over the event type, tenant
// and a stable JSON form of the payload, prefixed "auto_". Re-deliveries of
// the same logical event always map to the same key.
func IdempotencyKey(eventType, companyID string, payload map[string]interface{}) string {
	h := fnv.New64a()
	h.Write([]byte(eventType))
	h.Write([]byte(companyID))
	h.Write([]byte(stableJSON(payload)))
	return fmt.Sprintf("auto_%016x", h.Sum64())
}

// stableJSON renders a payload deterministically. encoding/json sorts map
// keys at every nesting level, which is exactly the stability needed here.
func stableJSON(payload map[string]interface{}) string {
	if payload == nil {
		return "{}"
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf("%v", payload)
	}
	return string(encoded)
}
