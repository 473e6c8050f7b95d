package config

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateVersion(t *testing.T) {
	tests := []struct {
		name    string
		version int
		reason  string
	}{
		{"current", CurrentVersion, ""},
		{"zero", 0, "invalid"},
		{"negative", -1, "invalid"},
		{"newer than build", CurrentVersion + 1, "newer than this build"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateVersion(tt.version)
			if tt.reason == "" {
				if err != nil {
					t.Fatalf("expected nil error, got %v", err)
				}
				return
			}
			var ve *VersionError
			if !errors.As(err, &ve) {
				t.Fatalf("expected *VersionError, got %T", err)
			}
			if ve.Reason != tt.reason {
				t.Fatalf("expected reason %q, got %q", tt.reason, ve.Reason)
			}
		})
	}
}

func TestVersionError_Messages(t *testing.T) {
	var nilErr *VersionError
	if got := nilErr.Error(); got != "" {
		t.Fatalf("expected empty string from nil VersionError, got %q", got)
	}

	newer := &VersionError{Version: 9, Current: 1, Reason: "newer than this build"}
	if !strings.Contains(newer.Error(), "upgrade textgen") {
		t.Errorf("message = %q", newer.Error())
	}

	if msg := (&VersionError{Version: 0, Current: 1}).Error(); !strings.Contains(msg, "unsupported") {
		t.Errorf("message = %q", msg)
	}
}
