package errs

import (
	"errors"
	"log/slog"
	"strings"
	"testing"
)

var errRoot = errors.New("root cause")

func TestWrapPreservesChain(t *testing.T) {
	err := Wrapf(Wrap(errRoot, "load reviewable"), "perform %s", "approve")
	if !errors.Is(err, errRoot) {
		t.Fatalf("errors.Is(root) = false, err=%v", err)
	}
	if err.Error() != "perform approve: load reviewable: root cause" {
		t.Fatalf("message = %q", err.Error())
	}
	if Wrap(nil, "x") != nil || Wrapf(nil, "x %d", 1) != nil {
		t.Fatal("wrapping nil should return nil")
	}
}

func TestWithStackCapturesOnce(t *testing.T) {
	first := WithStack(errRoot)
	second := WithStack(Wrap(first, "outer"))

	var se *StackError
	if !errors.As(second, &se) {
		t.Fatal("stack error missing from chain")
	}
	if se != first {
		t.Fatal("stack captured twice")
	}
	frames := se.Frames()
	if len(frames) == 0 {
		t.Fatal("empty stack")
	}
	if !strings.Contains(frames[0], "TestWithStackCapturesOnce") {
		t.Fatalf("innermost frame = %q, want the caller", frames[0])
	}
}

func TestRoot(t *testing.T) {
	err := Wrap(WithStack(Wrap(errRoot, "query")), "perform")
	if got := Root(err); got != errRoot {
		t.Fatalf("Root() = %v, want root cause", got)
	}
	if Root(nil) != nil {
		t.Fatal("Root(nil) should be nil")
	}
}

func TestIsAny(t *testing.T) {
	other := errors.New("other")
	if !IsAny(Wrap(errRoot, "x"), other, errRoot) {
		t.Fatal("IsAny() = false, want true")
	}
	if IsAny(errRoot, other) {
		t.Fatal("IsAny() = true, want false")
	}
}

func TestLoggableIncludesChain(t *testing.T) {
	value := Loggable(Wrap(errRoot, "outer")).LogValue()
	if value.Kind() != slog.KindGroup {
		t.Fatalf("kind = %v", value.Kind())
	}

	var chain []string
	for _, attr := range value.Group() {
		if attr.Key == "chain" {
			chain, _ = attr.Value.Any().([]string)
		}
	}
	if len(chain) != 2 || !strings.HasPrefix(chain[0], "outer") || chain[1] != "root cause" {
		t.Fatalf("chain = %v", chain)
	}
}

func TestLoggableIncludesStackFrames(t *testing.T) {
	value := Loggable(WithStack(errRoot)).LogValue()

	var stack []string
	for _, attr := range value.Group() {
		if attr.Key == "stack" {
			stack, _ = attr.Value.Any().([]string)
		}
	}
	if len(stack) == 0 {
		t.Fatal("stack attr missing")
	}
}
