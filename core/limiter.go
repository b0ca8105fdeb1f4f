package core

import (
	"context"
	"fmt"
	"sync"
)

// CallBudget caps the number of model calls made during one flow execution.
// A single budget is shared by every agent loop the flow creates, so it must
// be safe for concurrent use. A max of 0 disables the limit.
type CallBudget struct {
	mu    sync.Mutex
	max   int
	count int
}

// NewCallBudget creates a budget allowing max calls (0 = unlimited).
func NewCallBudget(max int) *CallBudget {
	return &CallBudget{max: max}
}

// Charge records one call and fails once the budget is exceeded.
// A nil budget never fails.
func (b *CallBudget) Charge() error {
	if b == nil {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.max > 0 && b.count >= b.max {
		return fmt.Errorf("%w: limit %d", ErrBudgetExhausted, b.max)
	}
	b.count++

	return nil
}

// Used returns how many calls were charged.
func (b *CallBudget) Used() int {
	if b == nil {
		return 0
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	return b.count
}

// Remaining returns the calls left, or -1 when unlimited.
func (b *CallBudget) Remaining() int {
	if b == nil {
		return -1
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.max == 0 {
		return -1
	}

	return b.max - b.count
}

type budgetKey struct{}

// WithCallBudget attaches b to ctx so every model call made under ctx is
// charged against it.
func WithCallBudget(ctx context.Context, b *CallBudget) context.Context {
	return context.WithValue(ctx, budgetKey{}, b)
}

// CallBudgetFrom returns the budget attached to ctx, or nil.
func CallBudgetFrom(ctx context.Context) *CallBudget {
	b, _ := ctx.Value(budgetKey{}).(*CallBudget)
	return b
}
