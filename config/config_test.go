package config

import (
	"reflect"
	"testing"

	"github.com/spf13/pflag"
)

func loadFrom(t *testing.T, args []string) *Config {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse: %v", err)
	}
	cfg, err := Load(fs)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return cfg
}

func TestLoadDefaults(t *testing.T) {
	cfg := loadFrom(t, nil)

	if cfg.WebAddr != ":5001" {
		t.Errorf("WebAddr = %q", cfg.WebAddr)
	}
	if cfg.ConfigFile != "watchlist.json" {
		t.Errorf("ConfigFile = %q", cfg.ConfigFile)
	}
	if cfg.ConfigDir != "config" {
		t.Errorf("ConfigDir = %q", cfg.ConfigDir)
	}
	if cfg.MaxMessagesPerGroup != 100 {
		t.Errorf("MaxMessagesPerGroup = %d", cfg.MaxMessagesPerGroup)
	}
	if cfg.UseProxy {
		t.Error("UseProxy = true by default")
	}
	if cfg.DBDsn == "" {
		t.Error("DBDsn must have a default")
	}
}

func TestFlagsOverrideEnv(t *testing.T) {
	t.Setenv("TG_BOT_TOKEN", "env-token")
	t.Setenv("WEB_ADDR", ":9999")
	t.Setenv("MAX_MESSAGES_PER_GROUP", "50")

	cfg := loadFrom(t, []string{"--web-addr", ":8080"})
	if cfg.WebAddr != ":8080" {
		t.Errorf("WebAddr = %q, want flag to win over env", cfg.WebAddr)
	}
	if cfg.BotToken != "env-token" {
		t.Errorf("BotToken = %q, want env fallback", cfg.BotToken)
	}
	if cfg.MaxMessagesPerGroup != 50 {
		t.Errorf("MaxMessagesPerGroup = %d, want env fallback", cfg.MaxMessagesPerGroup)
	}
}

func TestDefaultGroupsFromEnv(t *testing.T) {
	t.Setenv("DEFAULT_GROUPS", "@alpha, beta , ,@gamma")
	cfg := loadFrom(t, nil)
	want := []string{"@alpha", "beta", "@gamma"}
	if !reflect.DeepEqual(cfg.DefaultGroups, want) {
		t.Errorf("DefaultGroups = %v, want %v", cfg.DefaultGroups, want)
	}
}

func TestMaxMessagesClampedToPositive(t *testing.T) {
	cfg := loadFrom(t, []string{"--max-messages-per-group", "-5"})
	if cfg.MaxMessagesPerGroup != 100 {
		t.Errorf("MaxMessagesPerGroup = %d, want fallback for non-positive value", cfg.MaxMessagesPerGroup)
	}
}

func TestValidateTelegramReady(t *testing.T) {
	cfg := &Config{}
	if err := cfg.ValidateTelegramReady(); err == nil {
		t.Fatal("expected error for empty token")
	}
	cfg.BotToken = "123:abc"
	if err := cfg.ValidateTelegramReady(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSplitGroups(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"@a", []string{"@a"}},
		{"@a,@b", []string{"@a", "@b"}},
		{" @a , , @b ", []string{"@a", "@b"}},
	}
	for _, c := range cases {
		if got := SplitGroups(c.in); !reflect.DeepEqual(got, c.want) {
			t.Errorf("SplitGroups(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}
