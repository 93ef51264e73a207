package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"yieldgotchi/internal/guardian"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "YG_API_ADDR", "DATABASE_URL", "YG_MEMORY_STORE", "YG_REFRESH_EVERY",
		"YG_DEFAULT_APY", "YG_UNLOCK_THRESHOLD", "YG_MIN_PRINCIPAL_FOR_MOOD",
		"YG_MOOD_DAILY_GAIN", "YG_WITHDRAW_MOOD_PENALTY", "YG_ACTIVITY_CAP", "YG_CATALOG_PATH",
		"YG_DEPOSIT_MOOD_BOOST", "YG_MINT_MOOD", "YG_REVIVE_MOOD", "YG_MAX_PRINCIPAL", "YG_RULES_PATH",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadAPIFromEnvRequiresDatabase(t *testing.T) {
	clearEnv(t)
	if _, err := LoadAPIFromEnv(); err == nil {
		t.Fatalf("expected error without DATABASE_URL")
	}
	t.Setenv("YG_MEMORY_STORE", "true")
	cfg, err := LoadAPIFromEnv()
	if err != nil {
		t.Fatalf("memory store: %v", err)
	}
	if !cfg.Memory || cfg.Addr != ":8080" || cfg.RefreshEvery != time.Hour {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Rules.DefaultAPY != 0.08 || cfg.Rules.ActivityCap != 50 {
		t.Fatalf("unexpected default rules: %+v", cfg.Rules)
	}
}

func TestLoadAPIFromEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("DATABASE_URL", "postgres://localhost/yg")
	t.Setenv("YG_DEFAULT_APY", "0.12")
	t.Setenv("YG_UNLOCK_THRESHOLD", "10")
	t.Setenv("YG_ACTIVITY_CAP", "20")
	t.Setenv("YG_MOOD_DAILY_GAIN", "not-a-number")
	t.Setenv("YG_CATALOG_PATH", " /etc/yg/catalog.json ")
	t.Setenv("YG_DEPOSIT_MOOD_BOOST", "15")
	t.Setenv("YG_MINT_MOOD", "60")
	t.Setenv("YG_REVIVE_MOOD", "40")
	t.Setenv("YG_MAX_PRINCIPAL", "1e9")

	cfg, err := LoadAPIFromEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9090" {
		t.Fatalf("addr: %q", cfg.Addr)
	}
	if cfg.Rules.DefaultAPY != 0.12 || cfg.Rules.UnlockThreshold != 10 || cfg.Rules.ActivityCap != 20 {
		t.Fatalf("overrides not applied: %+v", cfg.Rules)
	}
	if cfg.Rules.DepositMoodBoost != 15 || cfg.Rules.MintMood != 60 || cfg.Rules.ReviveMood != 40 || cfg.Rules.MaxPrincipal != 1e9 {
		t.Fatalf("mood and cap overrides not applied: %+v", cfg.Rules)
	}
	if cfg.Rules.MoodDailyGain != 5 {
		t.Fatalf("bad int should fall back, got %d", cfg.Rules.MoodDailyGain)
	}
	if cfg.CatalogPath != "/etc/yg/catalog.json" {
		t.Fatalf("catalog path: %q", cfg.CatalogPath)
	}
}

func TestLoadAPIFromEnvRejectsBadRules(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"YG_UNLOCK_THRESHOLD", "0"},
		{"YG_ACTIVITY_CAP", "0"},
		{"YG_DEFAULT_APY", "-0.1"},
		{"YG_WITHDRAW_MOOD_PENALTY", "150"},
		{"YG_REVIVE_MOOD", "-1"},
		{"YG_MAX_PRINCIPAL", "0"},
		{"YG_MAX_PRINCIPAL", "+Inf"},
	}
	for _, tc := range tests {
		t.Run(tc.key+"="+tc.value, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("YG_MEMORY_STORE", "1")
			t.Setenv(tc.key, tc.value)
			if _, err := LoadAPIFromEnv(); err == nil {
				t.Fatalf("%s=%s should be rejected", tc.key, tc.value)
			}
		})
	}
}

func writeRulesFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.json")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write rules file: %v", err)
	}
	return path
}

func TestLoadAPIFromEnvRulesFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("YG_MEMORY_STORE", "true")
	t.Setenv("YG_RULES_PATH", writeRulesFile(t, `{
		"rarity_weights": {"common": 70, "rare": 20, "epic": 9, "legendary": 1},
		"stages": [
			{"stage": "egg", "min": 0, "max": 10},
			{"stage": "baby", "min": 10, "max": 40},
			{"stage": "legendary", "min": 40, "max": null}
		]
	}`))

	cfg, err := LoadAPIFromEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if w := cfg.Rules.RarityWeights; w[guardian.RarityCommon] != 70 || w[guardian.RarityLegendary] != 1 {
		t.Fatalf("weights not applied: %v", w)
	}
	st := cfg.Rules.Stages
	if len(st) != 3 || st[1].Max != 40 || !math.IsInf(st[2].Max, 1) {
		t.Fatalf("stages not applied: %+v", st)
	}
	if got := cfg.Rules.StageFromScore(1e6); got != guardian.StageLegendary {
		t.Fatalf("top stage: got %s", got)
	}
	if cfg.Rules.UnlockThreshold != 5 {
		t.Fatalf("rules file should leave scalars alone: %+v", cfg.Rules)
	}
}

func TestLoadAPIFromEnvRulesFilePartial(t *testing.T) {
	clearEnv(t)
	t.Setenv("YG_MEMORY_STORE", "true")
	t.Setenv("YG_RULES_PATH", writeRulesFile(t, `{"rarity_weights": {"common": 1}}`))
	cfg, err := LoadAPIFromEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Rules.Stages) != len(guardian.DefaultStages()) || len(cfg.Rules.RarityWeights) != 1 {
		t.Fatalf("partial file: %+v", cfg.Rules)
	}
}

func TestLoadAPIFromEnvRejectsBadRulesFile(t *testing.T) {
	tests := map[string]string{
		"missing file":  "",
		"bad json":      `{"stages": [`,
		"unknown key":   `{"apy": 0.1}`,
		"stage gap":     `{"stages": [{"stage": "egg", "min": 0, "max": 5}, {"stage": "baby", "min": 6}]}`,
		"bad rarity":    `{"rarity_weights": {"mythic": 1}}`,
		"huge weight":   `{"rarity_weights": {"common": 1000000}}`,
		"dead in table": `{"stages": [{"stage": "dead", "min": 0}]}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("YG_MEMORY_STORE", "true")
			path := filepath.Join(t.TempDir(), "absent.json")
			if body != "" {
				path = writeRulesFile(t, body)
			}
			t.Setenv("YG_RULES_PATH", path)
			if _, err := LoadAPIFromEnv(); err == nil {
				t.Fatalf("%s should be rejected", name)
			}
		})
	}
}

func TestLoadCLIFromEnv(t *testing.T) {
	t.Setenv("YG_API_BASE_URL", "https://yg.example.com/")
	if got := LoadCLIFromEnv().APIBaseURL; got != "https://yg.example.com" {
		t.Fatalf("got %q", got)
	}
}
