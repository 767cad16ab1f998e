package node

import (
	"time"

	"github.com/scoutgame/scoutd/config"
	"github.com/scoutgame/scoutd/rewards"
)

// Settings read with a fallback, so a daemon built from a bare config still
// behaves.

func (d *Scoutd) getInt(key string, def int) int {
	if d.Config.IsSet(key) {
		if v := d.Config.GetInt(key); v > 0 {
			return v
		}
	}
	return def
}

func (d *Scoutd) getDuration(key string, def time.Duration) time.Duration {
	if v := d.Config.GetDuration(key); v > 0 {
		return v
	}
	return def
}

func (d *Scoutd) retryPeriod() time.Duration {
	return d.getDuration(config.SettlementRetryPeriod, 10*time.Second)
}

func (d *Scoutd) settlementTimeout() time.Duration {
	return d.getDuration(config.SettlementTimeout, 10*time.Minute)
}

func (d *Scoutd) stuckAfter() time.Duration {
	return d.getDuration(config.SettlementStuckAfter, 15*time.Minute)
}

func (d *Scoutd) workers() int     { return d.getInt(config.SettlementWorkers, 4) }
func (d *Scoutd) maxAttempts() int { return d.getInt(config.SettlementMaxAttempts, 10) }
func (d *Scoutd) batchSize() int   { return d.getInt(config.SettlementBatchSize, 100) }
func (d *Scoutd) topBuilders() int { return d.getInt(config.TopBuilders, rewards.DefaultTopBuilders) }

func (d *Scoutd) builderBps() int64 {
	if d.Config.IsSet(config.BuilderBps) {
		return d.Config.GetInt64(config.BuilderBps)
	}
	return rewards.DefaultBuilderBps
}

func (d *Scoutd) rankDecay() float64 {
	if d.Config.IsSet(config.RankDecay) {
		return d.Config.GetFloat64(config.RankDecay)
	}
	return rewards.DefaultRankDecay
}

func (d *Scoutd) nftChainID() uint64 {
	if d.Config.IsSet(config.NFTChainID) {
		return d.Config.GetUint64(config.NFTChainID)
	}
	return config.Base.ID
}
