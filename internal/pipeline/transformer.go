// Package pipeline turns Pub/Sub dispatch requests into channel sends.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
)

// DispatchRequestTransformer decodes and validates a message payload. A
// payload that fails is skipped so the subscription's dead-letter policy
// takes it.
func DispatchRequestTransformer(
	_ context.Context,
	msg *messagepipeline.Message,
) (*DispatchRequest, bool, error) {
	var req DispatchRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		return nil, true, fmt.Errorf("failed to unmarshal dispatch request from message %s: %w", msg.ID, err)
	}
	return &req, false, nil
}
