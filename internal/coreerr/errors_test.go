package coreerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTaskFailureErrorUnwraps(t *testing.T) {
	inner := errors.New("boom")
	err := &TaskFailureError{TaskID: "T01", Reason: "exited nonzero", Err: inner}

	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "T01")
	assert.Contains(t, err.Error(), "boom")
}

func TestDependencyMergeErrorUnwraps(t *testing.T) {
	inner := errors.New("conflict")
	err := &DependencyMergeError{TaskID: "T02", DepID: "T01", Reason: "residual markers", Err: inner}
	assert.ErrorIs(t, err, inner)
}

func TestIntegrationErrorUnwraps(t *testing.T) {
	inner := errors.New("merge failed")
	err := &IntegrationError{Branch: "acdx/run/T01", Reason: "x", Err: inner}
	assert.ErrorIs(t, err, inner)
}

func TestDeadlockErrorMessageListsPending(t *testing.T) {
	err := &DeadlockError{Pending: []string{"T02", "T03"}}
	assert.Contains(t, err.Error(), "T02")
	assert.Contains(t, err.Error(), "T03")
}

func TestErrorsAsDiscriminatesKinds(t *testing.T) {
	var err error = &QualityGateError{Gate: "placeholder", Reason: "found TODO"}

	var qg *QualityGateError
	assert.True(t, errors.As(err, &qg))

	var pre *PreconditionError
	assert.False(t, errors.As(err, &pre))

	wrapped := fmt.Errorf("context: %w", err)
	assert.True(t, errors.As(wrapped, &qg))
}
