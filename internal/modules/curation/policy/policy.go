package policy

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/curator-backend/internal/normalization"
	"github.com/yungbote/curator-backend/internal/platform/envutil"
	"github.com/yungbote/curator-backend/internal/platform/logger"
)

const PolicyFileEnv = "CURATION_POLICY_FILE"

// Config is the full curation policy. Platform-specific behavior lives in
// the Platforms lookup table, never in control flow.
type Config struct {
	Dedup     DedupConfig               `yaml:"dedup"`
	Approval  ApprovalConfig            `yaml:"approval"`
	Balance   BalanceConfig             `yaml:"balance"`
	Schedule  ScheduleConfig            `yaml:"schedule"`
	Health    HealthConfig              `yaml:"health"`
	Filter    FilterConfig              `yaml:"filter"`
	Platforms map[string]PlatformPolicy `yaml:"platforms"`
}

type Thresholds struct {
	NearText       float64 `yaml:"near_text"`
	CanonicalURL   float64 `yaml:"canonical_url"`
	Media          float64 `yaml:"media"`
	WeakText       float64 `yaml:"weak_text"`
	WeakURL        float64 `yaml:"weak_url"`
	WeakMedia      float64 `yaml:"weak_media"`
	MinWeakSignals int     `yaml:"min_weak_signals"`
}

type DedupConfig struct {
	Thresholds    Thresholds    `yaml:"thresholds"`
	HistoryWindow time.Duration `yaml:"history_window"`
	RepostWindow  time.Duration `yaml:"repost_window"`
	MaxTextRunes  int           `yaml:"max_text_runes"`
	Parallelism   int           `yaml:"parallelism"`
	BatchSize     int           `yaml:"batch_size"`
	// InputErrorRetry is how long a malformed discovered item is left out of
	// the detect batch before it is re-validated. Zero waits until the item
	// is changed (for example by the fingerprint backfill).
	InputErrorRetry time.Duration `yaml:"input_error_retry"`
}

// Tier is one approval stage. MaxConfidence is exclusive; zero means
// unbounded. FloorBound tiers take their lower bound from the approval floor.
type Tier struct {
	Name          string        `yaml:"name"`
	MinConfidence float64       `yaml:"min_confidence"`
	MaxConfidence float64       `yaml:"max_confidence"`
	FloorBound    bool          `yaml:"floor_bound"`
	MinAge        time.Duration `yaml:"min_age"`
	Share         float64       `yaml:"share"`
}

type ApprovalConfig struct {
	Budget          int     `yaml:"budget"`
	ConfidenceFloor float64 `yaml:"confidence_floor"`
	Tiers           []Tier  `yaml:"tiers"`
}

type BalanceConfig struct {
	DefaultFloor      int `yaml:"default_floor"`
	PerPlatformBudget int `yaml:"per_platform_budget"`
}

type ScheduleConfig struct {
	SlotTimes        []string      `yaml:"slot_times"`
	SlotValidity     time.Duration `yaml:"slot_validity"`
	PlatformDailyCap int           `yaml:"platform_daily_cap"`
	AuthorDailyCap   int           `yaml:"author_daily_cap"`
	CooldownDays     int           `yaml:"cooldown_days"`
	CategoryTarget   int           `yaml:"category_target"`
	Timezone         string        `yaml:"timezone"`
	PoolLimit        int           `yaml:"pool_limit"`
}

// CategoryTarget is the desired mix for one content type. Optional
// silences the alert raised when the type has no ready content.
type CategoryTarget struct {
	Share    float64 `yaml:"share"`
	Ceiling  float64 `yaml:"ceiling"`
	Optional bool    `yaml:"optional"`
}

type HealthConfig struct {
	RunwayFloorDays    float64                   `yaml:"runway_floor_days"`
	CriticalRunwayDays float64                   `yaml:"critical_runway_days"`
	DominanceThreshold float64                   `yaml:"dominance_threshold"`
	TargetTolerance    float64                   `yaml:"target_tolerance"`
	CategoryTargets    map[string]CategoryTarget `yaml:"category_targets"`
}

type Rule struct {
	Name string `yaml:"name"`
	Expr string `yaml:"expr"`
}

type FilterConfig struct {
	BlockedCategories []string `yaml:"blocked_categories"`
	Rules             []Rule   `yaml:"rules"`
}

// PlatformPolicy overrides the global defaults for one platform. Zero fields
// inherit.
type PlatformPolicy struct {
	NearTextThreshold float64       `yaml:"near_text_threshold"`
	MediaThreshold    float64       `yaml:"media_threshold"`
	RepostWindow      time.Duration `yaml:"repost_window"`
	HistoryWindow     time.Duration `yaml:"history_window"`
	CooldownDays      int           `yaml:"cooldown_days"`
	BalanceFloor      int           `yaml:"balance_floor"`
}

func Default() Config {
	return Config{
		Dedup: DedupConfig{
			Thresholds: Thresholds{
				NearText:       0.95,
				CanonicalURL:   0.98,
				Media:          0.98,
				WeakText:       0.80,
				WeakURL:        0.90,
				WeakMedia:      0.90,
				MinWeakSignals: 2,
			},
			HistoryWindow: 30 * 24 * time.Hour,
			RepostWindow:  30 * 24 * time.Hour,
			MaxTextRunes:  2000,
			Parallelism:   8,
			BatchSize:     500,
			InputErrorRetry: 24 * time.Hour,
		},
		Approval: ApprovalConfig{
			Budget:          100,
			ConfidenceFloor: 0.4,
			Tiers: []Tier{
				{Name: "A", MinConfidence: 0.8, Share: 0.30},
				{Name: "B", MinConfidence: 0.6, MaxConfidence: 0.8, MinAge: 24 * time.Hour, Share: 0.25},
				{Name: "C", MinConfidence: 0.5, MaxConfidence: 0.6, MinAge: 48 * time.Hour, Share: 0.25},
				{Name: "D", FloorBound: true, MaxConfidence: 0.5, MinAge: 72 * time.Hour, Share: 0.20},
			},
		},
		Balance: BalanceConfig{
			DefaultFloor:      10,
			PerPlatformBudget: 5,
		},
		Schedule: ScheduleConfig{
			SlotTimes:        []string{"08:00", "10:30", "13:00", "15:30", "18:00", "20:30"},
			SlotValidity:     2 * time.Hour,
			PlatformDailyCap: 3,
			AuthorDailyCap:   2,
			CooldownDays:     30,
			CategoryTarget:   4,
			Timezone:         "UTC",
			PoolLimit:        2000,
		},
		Health: HealthConfig{
			RunwayFloorDays:    3,
			CriticalRunwayDays: 1,
			DominanceThreshold: 0.60,
			TargetTolerance:    0.15,
			CategoryTargets: map[string]CategoryTarget{
				"video": {Share: 0.25, Ceiling: 0.50},
				"gif":   {Share: 0.25, Ceiling: 0.50},
				"image": {Share: 0.35, Ceiling: 0.60},
				"text":  {Share: 0, Ceiling: 0.15},
			},
		},
		Platforms: map[string]PlatformPolicy{},
	}
}

// Load builds the policy from defaults, the optional YAML file named by
// CURATION_POLICY_FILE, then scalar env overrides.
func Load(log *logger.Logger) (Config, error) {
	cfg := Default()
	if path := envutil.String(PolicyFileEnv, ""); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read policy file %s: %w", path, err)
		}
		if err := cfg.MergeYAML(raw); err != nil {
			return Config{}, fmt.Errorf("parse policy file %s: %w", path, err)
		}
		if log != nil {
			log.Info("Loaded curation policy file", "path", path, "platforms", len(cfg.Platforms), "rules", len(cfg.Filter.Rules))
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// MergeYAML overlays raw onto c. Absent keys keep their current values;
// lists are replaced wholesale.
func (c *Config) MergeYAML(raw []byte) error {
	if err := yaml.Unmarshal(raw, c); err != nil {
		return err
	}
	if len(c.Platforms) > 0 {
		normalized := make(map[string]PlatformPolicy, len(c.Platforms))
		for name, p := range c.Platforms {
			normalized[normalization.ParseInputString(name)] = p
		}
		c.Platforms = normalized
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Approval.Budget = envutil.Int("CURATION_APPROVAL_BUDGET", c.Approval.Budget)
	c.Approval.ConfidenceFloor = envutil.Float("CURATION_CONFIDENCE_FLOOR", c.Approval.ConfidenceFloor)
	c.Balance.PerPlatformBudget = envutil.Int("CURATION_BALANCE_BUDGET", c.Balance.PerPlatformBudget)
	c.Balance.DefaultFloor = envutil.Int("CURATION_BALANCE_FLOOR", c.Balance.DefaultFloor)
	c.Health.RunwayFloorDays = envutil.Float("CURATION_RUNWAY_FLOOR_DAYS", c.Health.RunwayFloorDays)
	c.Schedule.Timezone = envutil.String("CURATION_TIMEZONE", c.Schedule.Timezone)
	c.Dedup.Parallelism = envutil.Int("CURATION_DEDUP_PARALLELISM", c.Dedup.Parallelism)
}

func (c Config) Validate() error {
	t := c.Dedup.Thresholds
	for name, v := range map[string]float64{
		"near_text":     t.NearText,
		"canonical_url": t.CanonicalURL,
		"media":         t.Media,
		"weak_text":     t.WeakText,
		"weak_url":      t.WeakURL,
		"weak_media":    t.WeakMedia,
	} {
		if v <= 0 || v > 1 {
			return fmt.Errorf("dedup threshold %s must be in (0,1], got %v", name, v)
		}
	}
	if t.MinWeakSignals < 2 {
		return fmt.Errorf("dedup min_weak_signals must be >= 2, got %d", t.MinWeakSignals)
	}
	// Scores under a weak floor may be upper bounds, so a confident
	// threshold below its weak floor could match on an estimate.
	if t.CanonicalURL < t.WeakURL {
		return fmt.Errorf("dedup canonical_url threshold %v is below weak_url %v", t.CanonicalURL, t.WeakURL)
	}
	names := make([]string, 0, len(c.Platforms)+1)
	names = append(names, "")
	for name := range c.Platforms {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		p := c.Platform(name)
		label := "default"
		if name != "" {
			label = "platform " + name
		}
		if p.NearTextThreshold > 1 || p.MediaThreshold > 1 {
			return fmt.Errorf("dedup %s thresholds must be <= 1", label)
		}
		if p.NearTextThreshold < t.WeakText {
			return fmt.Errorf("dedup %s near_text threshold %v is below weak_text %v", label, p.NearTextThreshold, t.WeakText)
		}
		if p.MediaThreshold < t.WeakMedia {
			return fmt.Errorf("dedup %s media threshold %v is below weak_media %v", label, p.MediaThreshold, t.WeakMedia)
		}
	}
	if c.Dedup.BatchSize < 1 {
		return fmt.Errorf("dedup batch_size must be >= 1, got %d", c.Dedup.BatchSize)
	}
	if c.Dedup.InputErrorRetry < 0 {
		return fmt.Errorf("dedup input_error_retry must be >= 0, got %v", c.Dedup.InputErrorRetry)
	}
	if c.Approval.ConfidenceFloor < 0 || c.Approval.ConfidenceFloor > 1 {
		return fmt.Errorf("approval confidence_floor must be in [0,1], got %v", c.Approval.ConfidenceFloor)
	}
	if c.Approval.Budget < 0 {
		return fmt.Errorf("approval budget must be >= 0, got %d", c.Approval.Budget)
	}
	if len(c.Approval.Tiers) == 0 {
		return fmt.Errorf("approval tiers must not be empty")
	}
	share := 0.0
	seen := map[string]bool{}
	for _, tier := range c.Approval.Tiers {
		if tier.Name == "" || seen[tier.Name] {
			return fmt.Errorf("approval tier names must be unique and non-empty (%q)", tier.Name)
		}
		seen[tier.Name] = true
		if tier.Share < 0 || tier.Share > 1 {
			return fmt.Errorf("approval tier %s share must be in [0,1], got %v", tier.Name, tier.Share)
		}
		share += tier.Share
	}
	if share > 1.0001 {
		return fmt.Errorf("approval tier shares sum to %v, must be <= 1", share)
	}
	if _, err := c.SlotOffsets(); err != nil {
		return err
	}
	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		return fmt.Errorf("schedule timezone %q: %w", c.Schedule.Timezone, err)
	}
	if c.Schedule.PlatformDailyCap < 1 || c.Schedule.AuthorDailyCap < 1 {
		return fmt.Errorf("schedule daily caps must be >= 1")
	}
	if c.Schedule.CategoryTarget < 1 {
		return fmt.Errorf("schedule category_target must be >= 1")
	}
	if c.Health.DominanceThreshold <= 0 || c.Health.DominanceThreshold > 1 {
		return fmt.Errorf("health dominance_threshold must be in (0,1], got %v", c.Health.DominanceThreshold)
	}
	for _, r := range c.Filter.Rules {
		if strings.TrimSpace(r.Name) == "" || strings.TrimSpace(r.Expr) == "" {
			return fmt.Errorf("filter rules need both name and expr")
		}
	}
	return nil
}

// Platform resolves the effective policy for name.
func (c Config) Platform(name string) PlatformPolicy {
	out := PlatformPolicy{
		NearTextThreshold: c.Dedup.Thresholds.NearText,
		MediaThreshold:    c.Dedup.Thresholds.Media,
		RepostWindow:      c.Dedup.RepostWindow,
		HistoryWindow:     c.Dedup.HistoryWindow,
		CooldownDays:      c.Schedule.CooldownDays,
		BalanceFloor:      c.Balance.DefaultFloor,
	}
	p, ok := c.Platforms[normalization.ParseInputString(name)]
	if !ok {
		return out
	}
	if p.NearTextThreshold > 0 {
		out.NearTextThreshold = p.NearTextThreshold
	}
	if p.MediaThreshold > 0 {
		out.MediaThreshold = p.MediaThreshold
	}
	if p.RepostWindow > 0 {
		out.RepostWindow = p.RepostWindow
	}
	if p.HistoryWindow > 0 {
		out.HistoryWindow = p.HistoryWindow
	}
	if p.CooldownDays > 0 {
		out.CooldownDays = p.CooldownDays
	}
	if p.BalanceFloor > 0 {
		out.BalanceFloor = p.BalanceFloor
	}
	return out
}

// MaxCooldownDays is the widest cooldown any platform uses; history older
// than this never affects scheduling.
func (c Config) MaxCooldownDays() int {
	widest := c.Schedule.CooldownDays
	for _, p := range c.Platforms {
		if p.CooldownDays > widest {
			widest = p.CooldownDays
		}
	}
	return widest
}

// ResolvedTiers returns the tier table with floor-bound lower limits filled in.
func (c Config) ResolvedTiers() []Tier {
	out := make([]Tier, 0, len(c.Approval.Tiers))
	for _, t := range c.Approval.Tiers {
		if t.FloorBound {
			t.MinConfidence = c.Approval.ConfidenceFloor
		}
		out = append(out, t)
	}
	return out
}

func (c Config) Tier(name string) (Tier, bool) {
	for _, t := range c.ResolvedTiers() {
		if strings.EqualFold(t.Name, name) {
			return t, true
		}
	}
	return Tier{}, false
}

// SlotOffsets parses the daily slot times into offsets from midnight, sorted.
func (c Config) SlotOffsets() ([]time.Duration, error) {
	if len(c.Schedule.SlotTimes) == 0 {
		return nil, fmt.Errorf("schedule slot_times must not be empty")
	}
	out := make([]time.Duration, 0, len(c.Schedule.SlotTimes))
	for _, raw := range c.Schedule.SlotTimes {
		t, err := time.Parse("15:04", strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("schedule slot time %q: %w", raw, err)
		}
		out = append(out, time.Duration(t.Hour())*time.Hour+time.Duration(t.Minute())*time.Minute)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	for i := 1; i < len(out); i++ {
		if out[i] == out[i-1] {
			return nil, fmt.Errorf("schedule slot times must be distinct")
		}
	}
	return out, nil
}

func (c Config) SlotsPerDay() int { return len(c.Schedule.SlotTimes) }

func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
