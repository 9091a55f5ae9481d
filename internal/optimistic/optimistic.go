// Package optimistic runs state changes that show up locally before the
// server has confirmed them.
//
// A Command has three phases. Apply changes local state and returns whatever
// is needed to undo it. Commit sends the change to the server. If Commit
// fails, Rollback receives Apply's return value and the error is returned.
package optimistic

import (
	"context"
	"errors"
	"fmt"
)

// Command is one optimistic change. Apply and Commit are required.
type Command[T any] struct {
	// Name appears in the returned error.
	Name string

	Apply    func() T
	Commit   func(ctx context.Context) error
	Rollback func(previous T)

	// OnError, when set, is told about a failed commit after rollback.
	OnError func(err error)
}

// Run applies, commits and, on failure, rolls back.
func (c Command[T]) Run(ctx context.Context) error {
	if c.Apply == nil || c.Commit == nil {
		return errors.New("optimistic: command needs Apply and Commit")
	}

	previous := c.Apply()
	err := c.Commit(ctx)
	if err == nil {
		return nil
	}

	if c.Rollback != nil {
		c.Rollback(previous)
	}
	if c.Name != "" {
		err = fmt.Errorf("%s: %w", c.Name, err)
	}
	if c.OnError != nil {
		c.OnError(err)
	}
	return err
}

// Set builds the common command that replaces one value: Apply stores next
// through set and remembers get's old value, Rollback puts it back, and
// commit sends next.
func Set[T any](name string, get func() T, set func(T), next T, commit func(ctx context.Context, next T) error) Command[T] {
	return Command[T]{
		Name: name,
		Apply: func() T {
			prev := get()
			set(next)
			return prev
		},
		Commit: func(ctx context.Context) error {
			return commit(ctx, next)
		},
		Rollback: set,
	}
}
