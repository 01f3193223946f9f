package app

import (
	"os"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestGetenv(t *testing.T) {
	tests := []struct {
		name     string
		envKey   string
		envValue string
		defValue string
		want     string
	}{
		{name: "env set", envKey: "TEST_ENV_VAR", envValue: "custom_value", defValue: "default", want: "custom_value"},
		{name: "env not set", envKey: "TEST_ENV_VAR_NOTSET", envValue: "", defValue: "default", want: "default"},
		{name: "empty default", envKey: "TEST_ENV_VAR_EMPTY", envValue: "", defValue: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.envKey, tt.envValue)
				defer os.Unsetenv(tt.envKey)
			}

			if got := getenv(tt.envKey, tt.defValue); got != tt.want {
				t.Errorf("getenv(%q, %q) = %q, want %q", tt.envKey, tt.defValue, got, tt.want)
			}
		})
	}
}

func TestGetenvIntClamped(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		def      int
		min      int
		max      int
		want     int
	}{
		{name: "within range", envValue: "500", def: 100, min: 0, max: 1000, want: 500},
		{name: "below min clamps", envValue: "-100", def: 100, min: 0, max: 1000, want: 0},
		{name: "above max clamps", envValue: "2000", def: 100, min: 0, max: 1000, want: 1000},
		{name: "not set uses default", envValue: "", def: 100, min: 0, max: 1000, want: 100},
		{name: "invalid uses default", envValue: "not_a_number", def: 100, min: 0, max: 1000, want: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := "TEST_INT_" + strings.ReplaceAll(tt.name, " ", "_")
			if tt.envValue != "" {
				os.Setenv(key, tt.envValue)
				defer os.Unsetenv(key)
			}

			if got := getenvIntClamped(key, tt.def, tt.min, tt.max); got != tt.want {
				t.Errorf("getenvIntClamped(%q) = %d, want %d", tt.envValue, got, tt.want)
			}
		})
	}
}

func TestGetenvDuration(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		def      time.Duration
		want     time.Duration
	}{
		{name: "valid duration", envValue: "30s", def: 25 * time.Second, want: 30 * time.Second},
		{name: "not set", envValue: "", def: 25 * time.Second, want: 25 * time.Second},
		{name: "invalid", envValue: "soon", def: 25 * time.Second, want: 25 * time.Second},
		{name: "negative rejected", envValue: "-5s", def: 25 * time.Second, want: 25 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := "TEST_DUR_" + strings.ReplaceAll(tt.name, " ", "_")
			if tt.envValue != "" {
				os.Setenv(key, tt.envValue)
				defer os.Unsetenv(key)
			}

			if got := getenvDuration(key, tt.def); got != tt.want {
				t.Errorf("getenvDuration(%q) = %v, want %v", tt.envValue, got, tt.want)
			}
		})
	}
}

func TestGetenvBool(t *testing.T) {
	os.Setenv("TEST_BOOL_TRUE", "true")
	defer os.Unsetenv("TEST_BOOL_TRUE")

	if !getenvBool("TEST_BOOL_TRUE", false) {
		t.Error("getenvBool should parse true")
	}
	if getenvBool("TEST_BOOL_UNSET", false) {
		t.Error("getenvBool should use default when unset")
	}
	if !getenvBool("TEST_BOOL_UNSET", true) {
		t.Error("getenvBool should use default when unset")
	}
}

func TestParseOrigins(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{in: "", want: nil},
		{in: "https://a.example", want: []string{"https://a.example"}},
		{in: "https://a.example, https://b.example ,", want: []string{"https://a.example", "https://b.example"}},
	}

	for _, tt := range tests {
		if got := parseOrigins(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("parseOrigins(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{}
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() should fail without GEMINI_API_KEY")
	}

	cfg.GeminiAPIKey = "k"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}
