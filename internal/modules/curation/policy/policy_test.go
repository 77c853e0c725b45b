package policy

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate: %v", err)
	}
	tiers := cfg.ResolvedTiers()
	if len(tiers) != 4 {
		t.Fatalf("expected 4 tiers, got %d", len(tiers))
	}
	if d := tiers[3]; d.Name != "D" || d.MinConfidence != 0.4 || d.MinAge != 72*time.Hour {
		t.Fatalf("tier D: unexpected %+v", d)
	}
	if cfg.SlotsPerDay() != 6 {
		t.Fatalf("expected 6 slots per day, got %d", cfg.SlotsPerDay())
	}
}

func TestPlatformOverrides(t *testing.T) {
	cfg := Default()
	raw := []byte(`
platforms:
  Reddit:
    near_text_threshold: 0.97
    cooldown_days: 45
  niche:
    balance_floor: 3
approval:
  confidence_floor: 0.45
`)
	if err := cfg.MergeYAML(raw); err != nil {
		t.Fatalf("MergeYAML: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	reddit := cfg.Platform("reddit")
	if reddit.NearTextThreshold != 0.97 || reddit.CooldownDays != 45 || reddit.BalanceFloor != 10 {
		t.Fatalf("reddit policy: unexpected %+v", reddit)
	}
	other := cfg.Platform("tumblr")
	if other.NearTextThreshold != 0.95 || other.CooldownDays != 30 || other.RepostWindow != 30*24*time.Hour {
		t.Fatalf("default policy: unexpected %+v", other)
	}
	if cfg.Platform("niche").BalanceFloor != 3 {
		t.Fatalf("niche balance floor not applied")
	}
	if cfg.MaxCooldownDays() != 45 {
		t.Fatalf("MaxCooldownDays: expected 45, got %d", cfg.MaxCooldownDays())
	}
	if d, _ := cfg.Tier("d"); d.MinConfidence != 0.45 {
		t.Fatalf("tier D floor: expected 0.45, got %v", d.MinConfidence)
	}
	// Untouched sections keep defaults.
	if cfg.Approval.Budget != 100 || len(cfg.Schedule.SlotTimes) != 6 {
		t.Fatalf("defaults lost after merge: budget=%d slots=%d", cfg.Approval.Budget, len(cfg.Schedule.SlotTimes))
	}
}

func TestValidateRejectsBadPolicy(t *testing.T) {
	cases := map[string]func(*Config){
		"threshold":   func(c *Config) { c.Dedup.Thresholds.NearText = 1.5 },
		"weak":        func(c *Config) { c.Dedup.Thresholds.MinWeakSignals = 1 },
		"shares":      func(c *Config) { c.Approval.Tiers[0].Share = 0.9 },
		"slot":        func(c *Config) { c.Schedule.SlotTimes = []string{"25:00"} },
		"dupe slot":   func(c *Config) { c.Schedule.SlotTimes = []string{"09:00", "09:00"} },
		"timezone":    func(c *Config) { c.Schedule.Timezone = "Mars/Olympus" },
		"rule":        func(c *Config) { c.Filter.Rules = []Rule{{Name: "x"}} },
		"tier name":   func(c *Config) { c.Approval.Tiers[1].Name = "A" },
		"no tiers":    func(c *Config) { c.Approval.Tiers = nil },
		"author cap":  func(c *Config) { c.Schedule.AuthorDailyCap = 0 },
		"dominance":   func(c *Config) { c.Health.DominanceThreshold = 0 },
		"floor range": func(c *Config) { c.Approval.ConfidenceFloor = -0.1 },
		"near below weak": func(c *Config) {
			c.Platforms = map[string]PlatformPolicy{"quick": {NearTextThreshold: 0.7}}
		},
		"media below weak": func(c *Config) {
			c.Platforms = map[string]PlatformPolicy{"quick": {MediaThreshold: 0.85}}
		},
		"default near below weak": func(c *Config) { c.Dedup.Thresholds.WeakText = 0.96 },
		"url below weak":          func(c *Config) { c.Dedup.Thresholds.WeakURL = 0.99 },
		"batch size":              func(c *Config) { c.Dedup.BatchSize = 0 },
		"input error retry":       func(c *Config) { c.Dedup.InputErrorRetry = -time.Hour },
	}
	for name, mutate := range cases {
		cfg := Default()
		cfg.Approval.Tiers = append([]Tier(nil), cfg.Approval.Tiers...)
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestLoadFromFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	if err := os.WriteFile(path, []byte("filter:\n  blocked_categories: [ad]\n  rules:\n    - name: too_long\n      expr: len(Text) > 5000\n"), 0o600); err != nil {
		t.Fatalf("write policy: %v", err)
	}
	t.Setenv(PolicyFileEnv, path)
	t.Setenv("CURATION_APPROVAL_BUDGET", "40")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Approval.Budget != 40 {
		t.Fatalf("env override: expected budget 40, got %d", cfg.Approval.Budget)
	}
	if len(cfg.Filter.Rules) != 1 || cfg.Filter.BlockedCategories[0] != "ad" {
		t.Fatalf("filter section: unexpected %+v", cfg.Filter)
	}
}

func TestSlotOffsetsSorted(t *testing.T) {
	cfg := Default()
	cfg.Schedule.SlotTimes = []string{"18:00", "09:30"}
	offs, err := cfg.SlotOffsets()
	if err != nil {
		t.Fatalf("SlotOffsets: %v", err)
	}
	if offs[0] != 9*time.Hour+30*time.Minute || offs[1] != 18*time.Hour {
		t.Fatalf("SlotOffsets: unexpected %v", offs)
	}
}
