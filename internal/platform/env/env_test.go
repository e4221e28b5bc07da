package env

import (
	"testing"
	"time"
)

func TestString(t *testing.T) {
	t.Setenv("CANARY_TEST_STRING", "value")
	if got := String("CANARY_TEST_STRING", "def"); got != "value" {
		t.Fatalf("String()=%q, want value", got)
	}
	if got := String("CANARY_TEST_STRING_MISSING", "def"); got != "def" {
		t.Fatalf("String() default=%q, want def", got)
	}
}

func TestDuration(t *testing.T) {
	t.Setenv("CANARY_TEST_DURATION", "90s")
	got, err := Duration("CANARY_TEST_DURATION", time.Second)
	if err != nil {
		t.Fatalf("Duration() err=%v", err)
	}
	if got != 90*time.Second {
		t.Fatalf("Duration()=%v, want 90s", got)
	}

	got, err = Duration("CANARY_TEST_DURATION_MISSING", 5*time.Minute)
	if err != nil {
		t.Fatalf("Duration() default err=%v", err)
	}
	if got != 5*time.Minute {
		t.Fatalf("Duration() default=%v, want 5m", got)
	}

	t.Setenv("CANARY_TEST_DURATION_BAD", "ninety")
	if _, err := Duration("CANARY_TEST_DURATION_BAD", time.Second); err == nil {
		t.Fatalf("Duration() accepted malformed value")
	}
}

func TestBool(t *testing.T) {
	t.Setenv("CANARY_TEST_BOOL", "true")
	got, err := Bool("CANARY_TEST_BOOL", false)
	if err != nil {
		t.Fatalf("Bool() err=%v", err)
	}
	if !got {
		t.Fatalf("Bool()=false, want true")
	}

	t.Setenv("CANARY_TEST_BOOL_BAD", "yep")
	if _, err := Bool("CANARY_TEST_BOOL_BAD", false); err == nil {
		t.Fatalf("Bool() accepted malformed value")
	}
}

func TestInt(t *testing.T) {
	t.Setenv("CANARY_TEST_INT", "15")
	got, err := Int("CANARY_TEST_INT", 3)
	if err != nil {
		t.Fatalf("Int() err=%v", err)
	}
	if got != 15 {
		t.Fatalf("Int()=%d, want 15", got)
	}

	t.Setenv("CANARY_TEST_INT_BAD", "many")
	if _, err := Int("CANARY_TEST_INT_BAD", 3); err == nil {
		t.Fatalf("Int() accepted malformed value")
	}
}

func TestFloat64(t *testing.T) {
	t.Setenv("CANARY_TEST_FLOAT", "1.5")
	got, err := Float64("CANARY_TEST_FLOAT", 0.2)
	if err != nil {
		t.Fatalf("Float64() err=%v", err)
	}
	if got != 1.5 {
		t.Fatalf("Float64()=%v, want 1.5", got)
	}

	got, err = Float64("CANARY_TEST_FLOAT_MISSING", 0.2)
	if err != nil {
		t.Fatalf("Float64() default err=%v", err)
	}
	if got != 0.2 {
		t.Fatalf("Float64() default=%v, want 0.2", got)
	}

	t.Setenv("CANARY_TEST_FLOAT_BAD", "half")
	if _, err := Float64("CANARY_TEST_FLOAT_BAD", 0.2); err == nil {
		t.Fatalf("Float64() accepted malformed value")
	}
}
