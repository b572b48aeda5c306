package guardrail

import (
	"errors"
	"fmt"

	"github.com/yourusername/event-cardinality/internal/config"
)

var (
	ErrTooDeep       = errors.New("event exceeds maximum nesting depth")
	ErrTooManyFields = errors.New("event exceeds maximum field count")
)

// EventGuardrail rejects decoded events that are too large to be worth
// extracting from.
type EventGuardrail struct {
	config config.GuardrailConfig
}

func NewEventGuardrail(cfg config.GuardrailConfig) *EventGuardrail {
	return &EventGuardrail{
		config: cfg,
	}
}

func (g *EventGuardrail) Enabled() bool {
	return g != nil && (g.config.MaxDepth > 0 || g.config.MaxFieldCount > 0)
}

// Validate checks a decoded JSON event against the configured limits.
// Zero limits are disabled.
func (g *EventGuardrail) Validate(event interface{}) error {
	if !g.Enabled() {
		return nil
	}

	fieldCount, err := g.checkRecursive(event, 1)
	if err != nil {
		return err
	}

	if g.config.MaxFieldCount > 0 && fieldCount > g.config.MaxFieldCount {
		return fmt.Errorf("%w: %d > %d", ErrTooManyFields, fieldCount, g.config.MaxFieldCount)
	}

	return nil
}

func (g *EventGuardrail) checkRecursive(data interface{}, currentDepth int) (int, error) {
	if g.config.MaxDepth > 0 && currentDepth > g.config.MaxDepth {
		return 0, fmt.Errorf("%w: %d", ErrTooDeep, g.config.MaxDepth)
	}

	switch v := data.(type) {
	case map[string]interface{}:
		count := 0
		for _, child := range v {
			count++
			sub, err := g.checkRecursive(child, currentDepth+1)
			if err != nil {
				return 0, err
			}
			count += sub
		}
		return count, nil

	case []interface{}:
		// Array elements sit at the depth of the array itself.
		total := 0
		for _, item := range v {
			c, err := g.checkRecursive(item, currentDepth)
			if err != nil {
				return 0, err
			}
			total += c
		}
		return total, nil
	}

	return 0, nil
}
