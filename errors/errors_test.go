package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestErrorClass_String(t *testing.T) {
	tests := []struct {
		class    ErrorClass
		expected string
	}{
		{ErrorTransient, "transient"},
		{ErrorInvalid, "invalid"},
		{ErrorFatal, "fatal"},
		{ErrorClass(999), "unknown"},
	}

	for _, test := range tests {
		t.Run(test.expected, func(t *testing.T) {
			result := test.class.String()
			if result != test.expected {
				t.Errorf("expected %s, got %s", test.expected, result)
			}
		})
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"connection timeout", ErrConnectionTimeout, true},
		{"storage unavailable", ErrStorageUnavailable, true},
		{"no connection", ErrNoConnection, true},
		{"context deadline exceeded", context.DeadlineExceeded, true},
		{"context canceled", context.Canceled, true},
		{"query not found", ErrQueryNotFound, false},
		{"timeout in message", fmt.Errorf("operation timeout occurred"), true},
		{"classified transient", &ClassifiedError{Class: ErrorTransient, Err: fmt.Errorf("test")}, true},
		{"classified fatal", &ClassifiedError{Class: ErrorFatal, Err: fmt.Errorf("test")}, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := IsTransient(test.err)
			if result != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, result, test.err)
			}
		})
	}
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"query not found", ErrQueryNotFound, true},
		{"structural", ErrStructural, true},
		{"node not found", ErrNodeNotFound, true},
		{"not an end node", ErrNotEndNode, true},
		{"invalid config", ErrInvalidConfig, true},
		{"wrapped structural", fmt.Errorf("walk: %w", ErrStructural), true},
		{"connection timeout", ErrConnectionTimeout, false},
		{"invalid data", ErrInvalidData, false},
		{"classified fatal", &ClassifiedError{Class: ErrorFatal, Err: fmt.Errorf("test")}, true},
		{"classified transient", &ClassifiedError{Class: ErrorTransient, Err: ErrStructural}, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := IsFatal(test.err)
			if result != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, result, test.err)
			}
		})
	}
}

func TestIsInvalid(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"invalid data", ErrInvalidData, true},
		{"parsing failed", ErrParsingFailed, true},
		{"query not found", ErrQueryNotFound, false},
		{"classified invalid", &ClassifiedError{Class: ErrorInvalid, Err: fmt.Errorf("test")}, true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := IsInvalid(test.err)
			if result != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, result, test.err)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorClass
	}{
		{"nil error", nil, ErrorTransient},
		{"connection timeout", ErrConnectionTimeout, ErrorTransient},
		{"query not found", ErrQueryNotFound, ErrorFatal},
		{"invalid data", ErrInvalidData, ErrorInvalid},
		{"unknown error", fmt.Errorf("unknown error"), ErrorFatal},
		{"classified error", &ClassifiedError{Class: ErrorInvalid, Err: fmt.Errorf("test")}, ErrorInvalid},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := Classify(test.err)
			if result != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, result, test.err)
			}
		})
	}
}

func TestClassifiedError(t *testing.T) {
	baseErr := fmt.Errorf("base error")
	ce := newClassified(ErrorFatal, baseErr, "Instance", "GetOrCreateSegment", "custom message")

	if ce.Class != ErrorFatal {
		t.Errorf("expected ErrorFatal, got %v", ce.Class)
	}
	if ce.Component != "Instance" {
		t.Errorf("expected Instance, got %s", ce.Component)
	}
	if ce.Error() != "custom message" {
		t.Errorf("expected 'custom message', got %s", ce.Error())
	}
	if !errors.Is(ce, baseErr) {
		t.Error("classified error should unwrap to base error")
	}

	ce = newClassified(ErrorFatal, baseErr, "Instance", "GetOrCreateSegment", "")
	if ce.Error() != "base error" {
		t.Errorf("expected 'base error', got %s", ce.Error())
	}
}

func TestWrapHelpers(t *testing.T) {
	if Wrap(nil, "c", "m", "a") != nil {
		t.Error("wrapping nil must return nil")
	}
	if WrapFatal(nil, "c", "m", "a") != nil {
		t.Error("WrapFatal(nil) must return nil")
	}

	err := WrapFatal(ErrQueryNotFound, "Instance", "GetQuerySegment", `resolve query "q1"`)
	expected := `Instance.GetQuerySegment: resolve query "q1" failed: query not found in network`
	if err.Error() != expected {
		t.Errorf("expected %q, got %q", expected, err.Error())
	}
	if !Is(err, ErrQueryNotFound) {
		t.Error("sentinel must stay reachable through the chain")
	}
	if Classify(err) != ErrorFatal {
		t.Errorf("expected fatal, got %v", Classify(err))
	}

	if !IsInvalid(WrapInvalid(fmt.Errorf("bad"), "network", "LoadYAML", "decode")) {
		t.Error("WrapInvalid must classify as invalid")
	}
	if !IsTransient(WrapTransient(fmt.Errorf("bad"), "kvstore", "Lookup", "get")) {
		t.Error("WrapTransient must classify as transient")
	}

	var ce *ClassifiedError
	if !As(err, &ce) || ce.Operation != "GetQuerySegment" {
		t.Error("As must find the classified error")
	}
}
