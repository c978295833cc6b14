package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/opportunity-scanner/internal/types"
)

// TierLimits holds the entitlements for a single subscription tier
type TierLimits struct {
	DailyCredits     int      `toml:"daily_credits"`
	MaxOpportunities int      `toml:"max_opportunities"` // Per-scan stored opportunity cap
	MaxNiches        int      `toml:"max_niches"`
	Platforms        []string `toml:"platforms"`
}

// TierTable maps each subscription tier to its limits
type TierTable map[types.UserTier]TierLimits

// DefaultTierTable returns the built-in tier table used when no TOML file is present.
func DefaultTierTable() TierTable {
	return TierTable{
		types.TierFree: {
			DailyCredits:     10,
			MaxOpportunities: 5,
			MaxNiches:        1,
			Platforms:        []string{"twitter", "reddit"},
		},
		types.TierPro: {
			DailyCredits:     50,
			MaxOpportunities: 8,
			MaxNiches:        5,
			Platforms:        []string{"twitter", "reddit", "web3career", "telegram"},
		},
		types.TierPremium: {
			DailyCredits:     200,
			MaxOpportunities: 12,
			MaxNiches:        20,
			Platforms: []string{
				"twitter", "reddit", "web3career", "telegram",
				"pumpfun", "dexscreener", "coinmarketcap", "coingecko",
			},
		},
	}
}

// LoadTierTable loads the tier table from a TOML file. A missing file falls back
// to the built-in defaults; a malformed or incomplete file is an error.
func LoadTierTable(path string) (TierTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultTierTable(), nil
		}
		return nil, fmt.Errorf("failed to read tier table %s: %w", path, err)
	}

	var raw map[string]TierLimits
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse tier table %s: %w", path, err)
	}

	table := make(TierTable, len(raw))
	for name, limits := range raw {
		table[types.UserTier(name)] = limits
	}
	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tier table %s: %w", path, err)
	}
	return table, nil
}

// Validate checks that all known tiers are present with sane limits.
func (t TierTable) Validate() error {
	for _, tier := range []types.UserTier{types.TierFree, types.TierPro, types.TierPremium} {
		limits, ok := t[tier]
		if !ok {
			return fmt.Errorf("missing tier %q", tier)
		}
		if limits.DailyCredits <= 0 {
			return fmt.Errorf("tier %q: daily_credits must be positive", tier)
		}
		if limits.MaxOpportunities <= 0 {
			return fmt.Errorf("tier %q: max_opportunities must be positive", tier)
		}
		if limits.MaxNiches <= 0 {
			return fmt.Errorf("tier %q: max_niches must be positive", tier)
		}
		if len(limits.Platforms) == 0 {
			return fmt.Errorf("tier %q: at least one platform required", tier)
		}
	}
	return nil
}

// Limits returns the limits for the given tier, falling back to free for
// unknown tiers so a bad row never grants elevated access.
func (t TierTable) Limits(tier types.UserTier) TierLimits {
	if limits, ok := t[tier]; ok {
		return limits
	}
	return t[types.TierFree]
}

// PlatformsFor returns the platforms enabled for the given tier, in table order.
func (t TierTable) PlatformsFor(tier types.UserTier) []types.Platform {
	limits := t.Limits(tier)
	platforms := make([]types.Platform, 0, len(limits.Platforms))
	for _, p := range limits.Platforms {
		platforms = append(platforms, types.Platform(p))
	}
	return platforms
}
