package errors

import (
	"context"
	stdErrors "errors"
	"fmt"
	"testing"
	"time"
)

// fakeTimeoutErr simulates a net.Error with Timeout semantics (we don't need full net.Error here).
type fakeTimeoutErr struct{}

func (fakeTimeoutErr) Error() string { return "fake timeout" }
func (fakeTimeoutErr) Timeout() bool { return true }

func TestIsProtocolErrorClassification(t *testing.T) {
	root := stdErrors.New("root")
	wrapped := fmt.Errorf("adding context: %w", root)
	fe := NewFragmentError("decode.sequence", wrapped)
	if !IsProtocolError(fe) {
		t.Fatalf("expected IsProtocolError=true for fragment error")
	}
	if !stdErrors.Is(fe, root) {
		t.Fatalf("expected errors.Is to find root cause")
	}
	var fErr *FragmentError
	if !stdErrors.As(fe, &fErr) {
		t.Fatalf("expected errors.As to *FragmentError")
	}
	if fErr.Op != "decode.sequence" {
		t.Fatalf("unexpected op: %s", fErr.Op)
	}

	p := NewProtocolError("state.transition", stdErrors.New("invalid state"))
	if !IsProtocolError(p) {
		t.Fatalf("expected protocol error classified")
	}
}

func TestIsTerminalClassification(t *testing.T) {
	te := NewTransportError("srt.send", stdErrors.New("short write"))
	if !IsTerminal(te) {
		t.Fatalf("expected transport error to be terminal")
	}
	if IsProtocolError(te) {
		t.Fatalf("transport error should not be protocol error")
	}

	ce := NewCodecError("decoder.reject", nil)
	if !IsTerminal(ce) {
		t.Fatalf("expected codec error to be terminal")
	}

	re := NewResourceError("port.alloc", nil)
	if !IsTerminal(re) {
		t.Fatalf("expected resource error to be terminal")
	}
}

func TestIsTimeout(t *testing.T) {
	root := fakeTimeoutErr{}
	to := NewTimeoutError("srt.send", 5*time.Second, root)
	if !IsTimeout(to) {
		t.Fatalf("expected TimeoutError recognized")
	}
	if IsProtocolError(to) {
		t.Fatalf("timeout should NOT be protocol error")
	}
	if !IsTimeout(context.DeadlineExceeded) {
		t.Fatalf("expected context deadline recognized")
	}
	var ne error = root
	if !IsTimeout(ne) {
		t.Fatalf("expected net-like timeout recognized")
	}
}

func TestUnwrapChains(t *testing.T) {
	base := stdErrors.New("io EOF")
	l1 := fmt.Errorf("read: %w", base)
	l2 := NewFragmentError("decode", l1)
	if !stdErrors.Is(l2, base) {
		t.Fatalf("errors.Is should reach base cause")
	}
	var pm protocolMarker
	if !stdErrors.As(l2, &pm) {
		t.Fatalf("expected to match protocolMarker via As")
	}
}

func TestNilSafety(t *testing.T) {
	if IsProtocolError(nil) {
		t.Fatalf("nil should not be protocol error")
	}
	if IsTimeout(nil) {
		t.Fatalf("nil should not be timeout")
	}
	if IsTerminal(nil) {
		t.Fatalf("nil should not be terminal")
	}
}

func TestConstructorWithoutCause(t *testing.T) {
	fe := NewFragmentError("parse.header", nil)
	if fe == nil {
		t.Fatalf("constructor returned nil")
	}
	if errStr := fe.Error(); errStr == "" {
		t.Fatalf("expected non-empty error string")
	}
}

func TestNilErrBranchesAndStrings(t *testing.T) {
	p := NewProtocolError("op1", nil)
	if p == nil {
		t.Fatalf("nil protocol error")
	}
	if !IsProtocolError(p) {
		t.Fatalf("expected protocol classification")
	}
	if s := p.Error(); s == "" || s == "protocol error:" {
		t.Fatalf("unexpected protocol error string: %q", s)
	}

	te := NewTransportError("op2", nil)
	if s := te.Error(); s == "" || s == "transport error:" {
		t.Fatalf("bad transport error string: %q", s)
	}

	fe := NewFragmentError("op3", nil)
	if s := fe.Error(); s == "" {
		t.Fatalf("empty fragment error string")
	}

	ce := NewConfigError("op4", nil)
	if s := ce.Error(); s == "" {
		t.Fatalf("empty config error string")
	}

	to := NewTimeoutError("op5", 100*time.Millisecond, nil)
	if !IsTimeout(to) {
		t.Fatalf("timeout classification failed")
	}
	if IsProtocolError(to) {
		t.Fatalf("timeout misclassified as protocol")
	}
	if s := to.Error(); s == "" {
		t.Fatalf("empty timeout error string")
	}
}

func TestNegativePredicates(t *testing.T) {
	if IsProtocolError(stdErrors.New("plain")) {
		t.Fatalf("plain error shouldn't be protocol")
	}
	if IsTimeout(stdErrors.New("plain")) {
		t.Fatalf("plain error shouldn't be timeout")
	}
	if IsTerminal(stdErrors.New("plain")) {
		t.Fatalf("plain error shouldn't be terminal")
	}
}
