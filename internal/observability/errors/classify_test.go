package errors

import (
	"context"
	goerrors "errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

type kindErr struct{ kind string }

func (e kindErr) Error() string      { return "callback failed: " + e.kind }
func (e kindErr) ErrorClass() string { return e.kind }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "plain", err: goerrors.New("boom"), want: "errors_errorstring"},
		{name: "innermost type", err: fmt.Errorf("verify: %w", &net.OpError{Op: "dial"}), want: "net_operror"},
		{name: "self classed", err: fmt.Errorf("run: %w", kindErr{kind: "session_timeout"}), want: "session_timeout"},
		{name: "empty class falls back", err: kindErr{}, want: "errors_kinderr"},
		{name: "context", err: context.DeadlineExceeded, want: "context_deadlineexceedederror"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}
