package env

import (
	"testing"
	"time"
)

func TestString_Default(t *testing.T) {
	got := String("SKY_ENV_STRING_DOES_NOT_EXIST", "fallback")
	if got != "fallback" {
		t.Fatalf("String()=%q, want fallback", got)
	}
}

func TestString_Override(t *testing.T) {
	t.Setenv("SKY_ENV_STRING_KEY", "value")
	got := String("SKY_ENV_STRING_KEY", "fallback")
	if got != "value" {
		t.Fatalf("String()=%q, want value", got)
	}
}

func TestDuration_Override(t *testing.T) {
	t.Setenv("SKY_ENV_DURATION_KEY", "250ms")
	got, err := Duration("SKY_ENV_DURATION_KEY", 5*time.Second)
	if err != nil {
		t.Fatalf("Duration() err=%v", err)
	}
	if got != 250*time.Millisecond {
		t.Fatalf("Duration()=%v, want 250ms", got)
	}
}

func TestDuration_Invalid(t *testing.T) {
	t.Setenv("SKY_ENV_DURATION_KEY_INVALID", "not-a-duration")
	if _, err := Duration("SKY_ENV_DURATION_KEY_INVALID", 5*time.Second); err == nil {
		t.Fatalf("Duration() expected error")
	}
}

func TestInt_Override(t *testing.T) {
	t.Setenv("SKY_ENV_INT_KEY", "8")
	got, err := Int("SKY_ENV_INT_KEY", 4)
	if err != nil {
		t.Fatalf("Int() err=%v", err)
	}
	if got != 8 {
		t.Fatalf("Int()=%d, want 8", got)
	}
}

func TestBool_Invalid(t *testing.T) {
	t.Setenv("SKY_ENV_BOOL_KEY_INVALID", "maybe")
	if _, err := Bool("SKY_ENV_BOOL_KEY_INVALID", false); err == nil {
		t.Fatalf("Bool() expected error")
	}
}

func TestFloat_Default(t *testing.T) {
	got, err := Float("SKY_ENV_FLOAT_DOES_NOT_EXIST", 2.0)
	if err != nil {
		t.Fatalf("Float() err=%v", err)
	}
	if got != 2.0 {
		t.Fatalf("Float()=%v, want 2", got)
	}
}

func TestFloat_Override(t *testing.T) {
	t.Setenv("SKY_ENV_FLOAT_KEY", " 0.25 ")
	got, err := Float("SKY_ENV_FLOAT_KEY", 2.0)
	if err != nil {
		t.Fatalf("Float() err=%v", err)
	}
	if got != 0.25 {
		t.Fatalf("Float()=%v, want 0.25", got)
	}
}

func TestFloat_RejectsNonFinite(t *testing.T) {
	t.Setenv("SKY_ENV_FLOAT_NAN", "NaN")
	if _, err := Float("SKY_ENV_FLOAT_NAN", 1); err == nil {
		t.Fatalf("Float() expected error for NaN")
	}
	t.Setenv("SKY_ENV_FLOAT_INF", "+Inf")
	if _, err := Float("SKY_ENV_FLOAT_INF", 1); err == nil {
		t.Fatalf("Float() expected error for Inf")
	}
}

func TestInt_BlankUsesDefault(t *testing.T) {
	t.Setenv("SKY_ENV_INT_BLANK", "  ")
	got, err := Int("SKY_ENV_INT_BLANK", 4)
	if err != nil {
		t.Fatalf("Int() err=%v", err)
	}
	if got != 4 {
		t.Fatalf("Int()=%d, want 4", got)
	}
}
