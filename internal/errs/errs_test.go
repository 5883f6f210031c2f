package errs

import (
	"errors"
	"strings"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	cause := errors.New("boom")
	err := New(CodeRuntimeFactory,
		WithMessage("process failed"),
		WithFactory("ClusterFactory", "calib", "plugins/cluster.so"),
		WithEvent(3, 22),
		WithWorker(2, "reconstruct"),
		WithCause(cause),
	)

	msg := err.Error()
	for _, want := range []string{
		"code=runtime_factory_failure",
		`message="process failed"`,
		`factory="ClusterFactory"`,
		`tag="calib"`,
		"event=3",
		"run=22",
		"worker=2",
		`cause="boom"`,
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("error message %q missing %q", msg, want)
		}
	}

	if !errors.Is(err, cause) {
		t.Error("expected Unwrap to expose the cause")
	}
}

func TestNilErrorString(t *testing.T) {
	var e *E
	if e.Error() != "<nil>" {
		t.Errorf("expected <nil>, got %q", e.Error())
	}
}

func TestIsTimeout(t *testing.T) {
	timeout := New(CodeWorkerTimeout)
	if !timeout.IsTimeout() {
		t.Error("expected IsTimeout true")
	}
	other := New(CodeInvalid)
	if other.IsTimeout() {
		t.Error("expected IsTimeout false")
	}
}
