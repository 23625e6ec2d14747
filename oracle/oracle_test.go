package oracle_test

import (
	"testing"
	"time"

	"github.com/rapport-labs/rapport/oracle"
)

func TestParseScore(t *testing.T) {
	tests := []struct {
		name   string
		reply  string
		want   int
		wantOK bool
	}{
		{"bare integer", "3", 3, true},
		{"with whitespace", "  2\n", 2, true},
		{"wrapped in prose", "Score: 4.", 4, true},
		{"sentence", "I would rate this a 1 out of 4", 1, true},
		{"negative", "-2", -2, true},
		{"zero", "0", 0, true},
		{"multi-digit", "12", 12, true},
		{"no digits", "warm and friendly", 0, false},
		{"empty", "", 0, false},
		{"runaway digits", "999999999999999999999", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := oracle.ParseScore(tt.reply)
			if ok != tt.wantOK {
				t.Fatalf("ParseScore(%q) ok = %v, want %v", tt.reply, ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("ParseScore(%q) = %d, want %d", tt.reply, got, tt.want)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := oracle.DefaultConfig()

	if cfg.Model == "" || cfg.ScoringModel == "" {
		t.Errorf("defaults missing models: %+v", cfg)
	}
	if cfg.Timeout() != 30*time.Second {
		t.Errorf("got timeout %v, want 30s", cfg.Timeout())
	}
}

func TestConfig_Merge(t *testing.T) {
	cfg := oracle.DefaultConfig()
	cfg.Merge(&oracle.Config{
		BaseURL:        "http://localhost:11434/v1",
		TimeoutSeconds: 5,
	})

	if cfg.BaseURL != "http://localhost:11434/v1" {
		t.Errorf("got base URL %q", cfg.BaseURL)
	}
	if cfg.Timeout() != 5*time.Second {
		t.Errorf("got timeout %v, want 5s", cfg.Timeout())
	}
	if cfg.Model != "gpt-4o" {
		t.Errorf("merge clobbered default model: %q", cfg.Model)
	}
}

func TestConfig_Timeout_Fallback(t *testing.T) {
	cfg := oracle.Config{}
	if cfg.Timeout() != 30*time.Second {
		t.Errorf("zero config timeout = %v, want 30s fallback", cfg.Timeout())
	}
}

func TestDefaultGenParams(t *testing.T) {
	p := oracle.DefaultGenParams()
	if p.Temperature != 0.9 || p.TopP != 0.95 || p.MaxTokens != 1024 {
		t.Errorf("unexpected defaults: %+v", p)
	}
}
