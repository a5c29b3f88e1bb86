package config

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
)

func TestLoadErrorClass(t *testing.T) {
	parse := &LoadError{Stage: stageParse, Key: "ACTION_LOCK_GRACE", Err: errors.New("bad duration")}
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "none", err: nil, want: "none"},
		{name: "parse", err: parse, want: "parse"},
		{name: "wrapped parse", err: fmt.Errorf("bootstrap: %w", parse), want: "parse"},
		{name: "validation", err: &LoadError{Stage: stageValidate, Err: errors.New("DATABASE_URL is required")}, want: "validation"},
		{name: "plain error mentioning parse", err: errors.New("parse JWT_ACCESS_TTL: nope"), want: "load"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := loadErrorClass(tc.err); got != tc.want {
				t.Fatalf("loadErrorClass()=%q want %q", got, tc.want)
			}
		})
	}
}

func TestLoadErrorMessageAndUnwrap(t *testing.T) {
	inner := errors.New("time: invalid duration")
	err := &LoadError{Stage: stageParse, Key: "SESSION_LIFETIME", Err: inner}
	if err.Error() != "parse SESSION_LIFETIME: time: invalid duration" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if !errors.Is(err, inner) {
		t.Fatal("expected LoadError to unwrap to its cause")
	}
	v := &LoadError{Stage: stageValidate, Err: errors.New("WS_SEND_BUFFER must be > 0")}
	if !strings.HasPrefix(v.Error(), "validate config: ") {
		t.Fatalf("unexpected message %q", v.Error())
	}
}

func TestLoadOutcomeAttributes(t *testing.T) {
	attrs := attrMap(loadOutcome{profile: "Dev", redis: true, oauth: true, sessionPolicy: 3}.attributes())
	want := map[string]string{
		"profile":          "development",
		"outcome":          "success",
		"realtime_backend": "redis",
		"google_oauth":     "true",
		"session_limit":    "3",
	}
	for k, v := range want {
		if attrs[k] != v {
			t.Fatalf("attribute %s=%q want %q (all=%v)", k, attrs[k], v, attrs)
		}
	}

	failed := attrMap(loadOutcome{profile: "", err: &LoadError{Stage: stageValidate, Err: errors.New("x")}}.attributes())
	if failed["outcome"] != "error" || failed["error_class"] != "validation" || failed["profile"] != "unknown" {
		t.Fatalf("unexpected error attributes %v", failed)
	}
	if _, ok := failed["realtime_backend"]; ok {
		t.Fatal("backend attribute must not be reported for a failed load")
	}

	memory := attrMap(loadOutcome{profile: "test"}.attributes())
	if memory["realtime_backend"] != "memory" {
		t.Fatalf("expected memory backend, got %v", memory)
	}
}

func attrMap(kvs []attribute.KeyValue) map[string]string {
	out := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		out[string(kv.Key)] = kv.Value.Emit()
	}
	return out
}

func FuzzProfileLabel(f *testing.F) {
	for _, seed := range []string{" PROD ", "dev", "", "staging", strings.Repeat("x", 2048)} {
		f.Add(seed)
	}
	f.Fuzz(func(t *testing.T, raw string) {
		got := profileLabel(raw)
		if got == "" {
			t.Fatal("label must not be empty")
		}
		if !utf8.ValidString(raw) {
			return
		}
		if got != strings.ToLower(got) {
			t.Fatalf("label must be lower case: %q", got)
		}
		if profileLabel(got) != got {
			t.Fatalf("label must be stable: %q -> %q", got, profileLabel(got))
		}
	})
}
