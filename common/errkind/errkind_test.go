package errkind_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/bdobrica/Kotoba/common/errkind"
)

func TestE_NilPassthrough(t *testing.T) {
	if err := errkind.E(errkind.Adapter, "op", nil); err != nil {
		t.Fatalf("E(nil) = %v, want nil", err)
	}
}

func TestIs_WalksWrappedChain(t *testing.T) {
	inner := errkind.E(errkind.Gateway, "llm.generate", &errkind.UpstreamError{Service: "openrouter", Status: 500})
	wrapped := fmt.Errorf("process message: %w", inner)

	if !errkind.Is(wrapped, errkind.Gateway) {
		t.Error("expected Gateway kind through fmt wrapping")
	}
	if errkind.Is(wrapped, errkind.Adapter) {
		t.Error("did not expect Adapter kind")
	}
	if got := errkind.KindOf(wrapped); got != errkind.Gateway {
		t.Errorf("KindOf = %q, want gateway", got)
	}
	if got := errkind.StatusOf(wrapped); got != 500 {
		t.Errorf("StatusOf = %d, want 500", got)
	}
}

func TestIs_NestedKinds(t *testing.T) {
	cfg := errkind.E(errkind.Config, "telegram.send", &errkind.AuthError{Service: "telegram"})
	outer := errkind.E(errkind.Adapter, "dispatch", cfg)

	if !errkind.Is(outer, errkind.Adapter) || !errkind.Is(outer, errkind.Config) {
		t.Error("expected both Adapter and Config in chain")
	}
	var auth *errkind.AuthError
	if !errors.As(outer, &auth) || auth.Service != "telegram" {
		t.Errorf("errors.As AuthError = %v", auth)
	}
}

func TestError_Message(t *testing.T) {
	err := errkind.Errorf(errkind.Validation, "telegram.convert", "missing %s", "chat")
	want := "telegram.convert: validation error: missing chat"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if errkind.KindOf(errors.New("plain")) != "" {
		t.Error("plain error should have no kind")
	}
}
