package shockerr

import (
	"errors"
	"strings"
	"testing"
)

var errBoom = errors.New("boom")

func TestErrorUnwrapAndIs(t *testing.T) {
	e := New(CodeNetwork, "client.Do", errBoom)

	if !errors.Is(e, errBoom) {
		t.Error("expected errors.Is to match wrapped sentinel")
	}
	if CodeOf(e) != CodeNetwork {
		t.Errorf("expected CodeNetwork, got %v", CodeOf(e))
	}
}

func TestErrorIsMatchesSameCode(t *testing.T) {
	a := New(CodeParse, "http11.ParseRequest", errBoom)
	b := New(CodeParse, "http11.ParseResponse", errors.New("different cause"))

	if !errors.Is(a, b) {
		t.Error("expected two *Error values with the same Code to match via Is")
	}

	c := New(CodeTLS, "tls.Build", errBoom)
	if errors.Is(a, c) {
		t.Error("expected different Codes not to match")
	}
}

func TestCodeOfDefaultsToGeneric(t *testing.T) {
	if CodeOf(errBoom) != CodeGeneric {
		t.Error("expected plain error to classify as CodeGeneric")
	}
}

func TestErrorMessageIncludesOp(t *testing.T) {
	e := New(CodeServer, "server.Serve", errBoom)
	msg := e.Error()
	if !strings.Contains(msg, "server.Serve") {
		t.Fatalf("expected error message to include op, got %q", msg)
	}
}
