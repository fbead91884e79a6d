package api

import (
	"testing"
	"time"
)

func TestConfig_Defaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.BaseURL != "http://localhost:44322" {
		t.Errorf("BaseURL = %q, want %q", cfg.BaseURL, "http://localhost:44322")
	}
	if cfg.ConnectTimeout != 10*time.Second {
		t.Errorf("ConnectTimeout = %v, want %v", cfg.ConnectTimeout, 10*time.Second)
	}
	if cfg.RequestTimeout != 30*time.Second {
		t.Errorf("RequestTimeout = %v, want %v", cfg.RequestTimeout, 30*time.Second)
	}
	if cfg.TLSInsecureSkipVerify {
		t.Error("TLSInsecureSkipVerify = true, want false")
	}
}

func TestConfig_DefaultsPreserveExisting(t *testing.T) {
	cfg := Config{
		BaseURL:        "https://pcp.example.com:44323",
		ConnectTimeout: 5 * time.Second,
	}
	cfg.ApplyDefaults()

	if cfg.BaseURL != "https://pcp.example.com:44323" {
		t.Errorf("BaseURL = %q", cfg.BaseURL)
	}
	if cfg.ConnectTimeout != 5*time.Second {
		t.Errorf("ConnectTimeout = %v, want %v", cfg.ConnectTimeout, 5*time.Second)
	}
	if cfg.RequestTimeout != 30*time.Second {
		t.Errorf("RequestTimeout = %v, want %v", cfg.RequestTimeout, 30*time.Second)
	}
}

func TestConfig_ValidateRequiresBaseURL(t *testing.T) {
	cfg := Config{}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() = nil, want error for empty BaseURL")
	}
	if err.Error() != "api: config: BaseURL is required" {
		t.Errorf("Validate() error = %q, want %q", err.Error(), "api: config: BaseURL is required")
	}
}

func TestConfig_ValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"relative url", Config{BaseURL: "localhost:44322"}},
		{"negative timeout", Config{BaseURL: "http://localhost:44322", RequestTimeout: -time.Second}},
		{"username without password", Config{BaseURL: "http://localhost:44322", Username: "pcp"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestConfig_ValidateAcceptsValidURL(t *testing.T) {
	cfg := Config{BaseURL: "https://pcp.example.com"}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}
