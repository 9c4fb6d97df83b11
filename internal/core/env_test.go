package core

import (
	"errors"
	"os"
	"testing"
)

// clearJobserverEnv unsets all recognized variables, restoring them after
// the test through t.Setenv's cleanup.
func clearJobserverEnv(t *testing.T) {
	t.Helper()
	for _, name := range envVars {
		t.Setenv(name, "")
		os.Unsetenv(name)
	}
}

// TestFromEnvExtNoEnvVar verifies the empty-environment outcome reports no
// variable at all.
func TestFromEnvExtNoEnvVar(t *testing.T) {
	clearJobserverEnv(t)

	res := FromEnvExt(false)
	if !errors.Is(res.Err, ErrNoEnvVar) {
		t.Fatalf("Err = %v, want ErrNoEnvVar", res.Err)
	}
	if res.VarName != "" || res.VarValue != "" {
		t.Errorf("Var = %q=%q, want empty", res.VarName, res.VarValue)
	}
	if res.Client != nil {
		t.Error("Client non-nil on failure")
	}
}

// TestFromEnvExtPrecedence verifies CARGO_MAKEFLAGS is consulted before
// MAKEFLAGS and MFLAGS, and that the consulted variable is reported even
// when its value then fails.
func TestFromEnvExtPrecedence(t *testing.T) {
	clearJobserverEnv(t)
	t.Setenv("MFLAGS", "--jobserver-auth=1,2")
	t.Setenv("MAKEFLAGS", "-j2")
	t.Setenv("CARGO_MAKEFLAGS", "-j4")

	res := FromEnvExt(false)
	if res.VarName != "CARGO_MAKEFLAGS" || res.VarValue != "-j4" {
		t.Errorf("consulted %q=%q, want CARGO_MAKEFLAGS=-j4", res.VarName, res.VarValue)
	}
	if !errors.Is(res.Err, ErrNoJobserver) {
		t.Errorf("Err = %v, want ErrNoJobserver (first variable wins, no fallback)", res.Err)
	}
}

// TestFromEnvExtEmptyValueIsPresent verifies a present-but-empty variable
// still wins the precedence race.
func TestFromEnvExtEmptyValueIsPresent(t *testing.T) {
	clearJobserverEnv(t)
	t.Setenv("MAKEFLAGS", "--jobserver-auth=1,2")
	t.Setenv("CARGO_MAKEFLAGS", "")

	res := FromEnvExt(false)
	if res.VarName != "CARGO_MAKEFLAGS" {
		t.Errorf("consulted %q, want CARGO_MAKEFLAGS", res.VarName)
	}
	if !errors.Is(res.Err, ErrNoJobserver) {
		t.Errorf("Err = %v, want ErrNoJobserver", res.Err)
	}
}

// TestFromEnvExtNotUTF8 verifies a value with invalid UTF-8 reports
// ErrCannotParse while still carrying the raw value for diagnosis.
func TestFromEnvExtNotUTF8(t *testing.T) {
	clearJobserverEnv(t)
	t.Setenv("MAKEFLAGS", "--jobserver-auth=\xff\xfe")

	res := FromEnvExt(false)
	if !errors.Is(res.Err, ErrCannotParse) {
		t.Fatalf("Err = %v, want ErrCannotParse", res.Err)
	}
	if res.VarName != "MAKEFLAGS" || res.VarValue == "" {
		t.Errorf("Var = %q=%q, want MAKEFLAGS with raw value", res.VarName, res.VarValue)
	}
}
