package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultAuditStream is the Redis stream audit envelopes are appended to
// when no stream name is configured.
const DefaultAuditStream = "automation:audit"

// RedisSink appends audit envelopes to a capped Redis stream, for
// deployments that ship audit trails through Redis instead of the database.
type RedisSink struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewRedisSink(client *redis.Client, stream string, maxLen int64) *RedisSink {
	if stream == "" {
		stream = DefaultAuditStream
	}
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &RedisSink{client: client, stream: stream, maxLen: maxLen}
}

func (s *RedisSink) Capture(ctx context.Context, env Envelope) error {
	encoded, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode audit envelope: %w", err)
	}
	err = s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"schema_version": env.SchemaVersion,
			"tenant_id":      env.Record.TenantID,
			"kind":           string(env.Record.Kind),
			"envelope":       string(encoded),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("append audit envelope: %w", err)
	}
	return nil
}
