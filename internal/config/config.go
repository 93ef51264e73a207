package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"yieldgotchi/internal/guardian"
)

type APIConfig struct {
	Addr         string
	DatabaseURL  string
	Memory       bool
	RefreshEvery time.Duration
	Rules        guardian.Rules
	RulesPath    string
	CatalogPath  string
}

type CLIConfig struct {
	APIBaseURL string
}

func LoadAPIFromEnv() (APIConfig, error) {
	addr := os.Getenv("PORT")
	if addr != "" {
		if !strings.HasPrefix(addr, ":") {
			addr = ":" + addr
		}
	} else {
		addr = envDefault("YG_API_ADDR", ":8080")
	}

	cfg := APIConfig{
		Addr:         addr,
		DatabaseURL:  strings.TrimSpace(os.Getenv("DATABASE_URL")),
		Memory:       envBoolDefault("YG_MEMORY_STORE", false),
		RefreshEvery: envDurationDefault("YG_REFRESH_EVERY", time.Hour),
		Rules:        LoadRulesFromEnv(),
		RulesPath:    strings.TrimSpace(os.Getenv("YG_RULES_PATH")),
		CatalogPath:  strings.TrimSpace(os.Getenv("YG_CATALOG_PATH")),
	}
	if cfg.DatabaseURL == "" && !cfg.Memory {
		return cfg, fmt.Errorf("DATABASE_URL is required unless YG_MEMORY_STORE=true")
	}
	if cfg.RefreshEvery <= 0 {
		return cfg, fmt.Errorf("YG_REFRESH_EVERY must be positive")
	}
	if cfg.RulesPath != "" {
		rules, err := ApplyRulesFile(cfg.Rules, cfg.RulesPath)
		if err != nil {
			return cfg, err
		}
		cfg.Rules = rules
	}
	if err := cfg.Rules.Validate(); err != nil {
		return cfg, fmt.Errorf("rules: %w", err)
	}
	return cfg, nil
}

// LoadRulesFromEnv overlays YG_* overrides on the default rules.
func LoadRulesFromEnv() guardian.Rules {
	r := guardian.DefaultRules()
	r.DefaultAPY = envFloatDefault("YG_DEFAULT_APY", r.DefaultAPY)
	r.UnlockThreshold = envFloatDefault("YG_UNLOCK_THRESHOLD", r.UnlockThreshold)
	r.MinPrincipalForMood = envFloatDefault("YG_MIN_PRINCIPAL_FOR_MOOD", r.MinPrincipalForMood)
	r.MoodDailyGain = envIntDefault("YG_MOOD_DAILY_GAIN", r.MoodDailyGain)
	r.DepositMoodBoost = envIntDefault("YG_DEPOSIT_MOOD_BOOST", r.DepositMoodBoost)
	r.WithdrawMoodPenalty = envIntDefault("YG_WITHDRAW_MOOD_PENALTY", r.WithdrawMoodPenalty)
	r.MintMood = envIntDefault("YG_MINT_MOOD", r.MintMood)
	r.ReviveMood = envIntDefault("YG_REVIVE_MOOD", r.ReviveMood)
	r.ActivityCap = envIntDefault("YG_ACTIVITY_CAP", r.ActivityCap)
	r.MaxPrincipal = envFloatDefault("YG_MAX_PRINCIPAL", r.MaxPrincipal)
	return r
}

// rulesFile holds the tables that do not fit in a single env var. Omitted
// keys keep the base value.
type rulesFile struct {
	Stages        []guardian.StageThreshold `json:"stages"`
	RarityWeights map[guardian.Rarity]int   `json:"rarity_weights"`
}

// ApplyRulesFile overlays the stage table and rarity weights from a JSON
// file on base. A stage with a null or missing max is unbounded.
func ApplyRulesFile(base guardian.Rules, path string) (guardian.Rules, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("read rules file: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var in rulesFile
	if err := dec.Decode(&in); err != nil {
		return base, fmt.Errorf("parse rules file %s: %w", path, err)
	}
	if in.Stages != nil {
		base.Stages = in.Stages
	}
	if in.RarityWeights != nil {
		base.RarityWeights = in.RarityWeights
	}
	return base, nil
}

func LoadCLIFromEnv() CLIConfig {
	return CLIConfig{
		APIBaseURL: strings.TrimRight(envDefault("YG_API_BASE_URL", "http://localhost:8080"), "/"),
	}
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envDurationDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envFloatDefault(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envIntDefault(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envBoolDefault(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
