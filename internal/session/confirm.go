// CLAUDE:SUMMARY Operator confirmation sources for the interactive login step.
package session

import (
	"bufio"
	"context"
	"fmt"
	"io"
)

// Confirmer blocks until the operator signals that login is complete.
type Confirmer interface {
	Confirm(ctx context.Context) error
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context) error

func (f ConfirmFunc) Confirm(ctx context.Context) error { return f(ctx) }

// LineConfirmer prints a prompt and waits for one line of input.
type LineConfirmer struct {
	In     io.Reader
	Out    io.Writer
	Prompt string
}

// Confirm returns once a line is read, the reader fails, or ctx ends.
// The reading goroutine is abandoned on cancellation; stdin cannot be
// interrupted.
func (c *LineConfirmer) Confirm(ctx context.Context) error {
	if c.Out != nil && c.Prompt != "" {
		fmt.Fprintln(c.Out, c.Prompt)
	}

	done := make(chan error, 1)
	go func() {
		r := bufio.NewReader(c.In)
		line, err := r.ReadString('\n')
		if err == io.EOF && line != "" {
			err = nil
		}
		if err == io.EOF {
			err = fmt.Errorf("session: confirmation input closed")
		}
		done <- err
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
