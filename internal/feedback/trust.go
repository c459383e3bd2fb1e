package feedback

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/Duinho/SignalWatch/internal/config"
	"github.com/Duinho/SignalWatch/internal/repository"
)

const (
	TrustSourceManual = "manual"
	TrustSourceTier   = "tier"
	TrustSourceSystem = "system"

	TierCore     = "core"
	TierGeneral  = "general"
	TierObserver = "observer"
)

var systemDefaultWeight = decimal.NewFromInt(1)

// TrustResolver resolves a tester's effective vote weight through an
// ordered chain: manual override, tier default, system default. The first
// hit wins.
type TrustResolver struct {
	cfg   config.FeedbackConfig
	store repository.FeedbackStore
}

func NewTrustResolver(cfg config.FeedbackConfig, store repository.FeedbackStore) *TrustResolver {
	return &TrustResolver{cfg: cfg, store: store}
}

func (t *TrustResolver) Resolve(ctx context.Context, userIDHash string) (decimal.Decimal, string, error) {
	profile, err := t.store.GetTrustProfile(ctx, userIDHash)
	if err != nil {
		return systemDefaultWeight, TrustSourceSystem, err
	}
	if profile != nil {
		return profile.Weight, TrustSourceManual, nil
	}

	tier, err := t.store.GetTesterTier(ctx, userIDHash)
	if err != nil {
		return systemDefaultWeight, TrustSourceSystem, err
	}
	if tier != nil {
		if weight, ok := t.cfg.TierWeights[tier.Tier]; ok {
			return decimal.NewFromFloat(weight), TrustSourceTier, nil
		}
	}

	return systemDefaultWeight, TrustSourceSystem, nil
}
