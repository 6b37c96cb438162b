package jobqueue

import (
	"testing"
)

func TestErrAlreadyRunning_IsDistinctSentinel(t *testing.T) {
	if ErrAlreadyRunning == nil {
		t.Fatal("ErrAlreadyRunning must be a non-nil sentinel")
	}
	if ErrAlreadyRunning.Error() == "" {
		t.Fatal("ErrAlreadyRunning must have a message")
	}
}
