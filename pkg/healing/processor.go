package healing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/stratoci/healer/pkg/queue"
)

// HealFunc performs the actual healing action for one run. The heavy lifting
// lives outside this package; the dispatcher only needs the contract.
type HealFunc func(ctx context.Context, runID string) error

// NewProcessor adapts a HealFunc into a queue.Handler that decodes the
// healing payload and invokes the action.
func NewProcessor(heal HealFunc) (queue.Handler, error) {
	if heal == nil {
		return nil, errors.New("heal function is required")
	}

	return func(ctx context.Context, job *queue.Job) error {
		if job == nil {
			return errors.New("job is required")
		}

		var payload Payload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("decode healing payload: %w", err)
		}
		if strings.TrimSpace(payload.RunID) == "" {
			return errors.New("healing payload has no run id")
		}

		return heal(ctx, payload.RunID)
	}, nil
}
