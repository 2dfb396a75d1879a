package env

import "testing"

func TestGetFallsBackWhenBlank(t *testing.T) {
	t.Setenv("LEDGER_TEST_VALUE", "   ")
	if got := Get("LEDGER_TEST_VALUE", "fallback"); got != "fallback" {
		t.Fatalf("expected fallback, got %q", got)
	}
	t.Setenv("LEDGER_TEST_VALUE", " value ")
	if got := Get("LEDGER_TEST_VALUE", "fallback"); got != "value" {
		t.Fatalf("expected trimmed value, got %q", got)
	}
}

func TestFirstPrefersEarlierKeys(t *testing.T) {
	t.Setenv("LEDGER_TEST_A", "")
	t.Setenv("LEDGER_TEST_B", "b")
	t.Setenv("LEDGER_TEST_C", "c")
	if got := First("none", "LEDGER_TEST_A", "LEDGER_TEST_B", "LEDGER_TEST_C"); got != "b" {
		t.Fatalf("expected b, got %q", got)
	}
	if got := First("none", "LEDGER_TEST_MISSING"); got != "none" {
		t.Fatalf("expected fallback, got %q", got)
	}
}
