package procrun

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCaptureReturnsNonZeroWithoutError(t *testing.T) {
	stdout, _, code, err := RunCapture(context.Background(), []string{"sh", "-c", "echo hi; exit 3"}, Options{Policy: ReturnNonZero})
	require.NoError(t, err)
	assert.Equal(t, 3, code)
	assert.Equal(t, "hi\n", stdout)
}

func TestRunCaptureRaisesOnFailure(t *testing.T) {
	_, _, _, err := RunCapture(context.Background(), []string{"sh", "-c", "exit 2"}, Options{Policy: RaiseOnFailure})
	require.Error(t, err)
	var execErr *ExecError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, 2, execErr.ExitCode)
}

func TestRunCaptureTimesOut(t *testing.T) {
	_, _, _, err := RunCapture(context.Background(), []string{"sleep", "5"}, Options{
		Timeout: 20 * time.Millisecond,
		Policy:  RaiseOnFailure,
	})
	require.Error(t, err)
	var execErr *ExecError
	require.ErrorAs(t, err, &execErr)
	assert.True(t, execErr.TimedOut)
}

func TestRunStreamToLogMirrorsOutput(t *testing.T) {
	var buf bytes.Buffer
	code, err := RunStreamToLog(context.Background(), []string{"sh", "-c", "echo streamed"}, Options{Policy: ReturnNonZero}, &buf, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Contains(t, buf.String(), "streamed")
}
