// Package coordination builds self-stabilising routines on top of the
// exchange primitives: gossip, distance estimation and single-path
// collection. Each routine scopes its internal call points under its
// own trace frame, so two routines called from the same program never
// collide even when they share tags internally.
package coordination

import (
	"math"

	"fieldnet/internal/engine"
	"fieldnet/internal/exchange"
	"fieldnet/internal/field"
	"fieldnet/internal/model"
)

// Gossip spreads a value through repeated neighbourhood merging. Each
// round the device merges its current value with its own previous
// result and everything its neighbours last reported. merge must be
// commutative and idempotent for the network to converge.
func Gossip[T any](r *engine.Round, tag uint64, c exchange.Codec[T], value T, merge func(T, T) T) T {
	return engine.Share(r, tag, c, value, func(f field.Field[T]) T {
		return f.Fold(merge, value)
	})
}

// GossipMin converges every device to the network-wide minimum.
func GossipMin(r *engine.Round, tag uint64, value float64) float64 {
	return Gossip(r, tag, exchange.Float, value, math.Min)
}

// GossipMax converges every device to the network-wide maximum.
func GossipMax(r *engine.Round, tag uint64, value float64) float64 {
	return Gossip(r, tag, exchange.Float, value, math.Max)
}

// ABFDistance estimates hop-count distance to the nearest source by
// adaptive Bellman-Ford: sources report zero, everyone else one more
// than their closest neighbour. The estimate is recomputed from the
// neighbourhood alone each round, so it recovers when sources move or
// disappear.
func ABFDistance(r *engine.Round, tag uint64, source bool) float64 {
	return engine.Nbr(r, tag, exchange.Float, math.Inf(1), func(d field.Field[float64]) float64 {
		if source {
			return 0
		}
		return d.FoldExcl(func(acc, v float64) float64 {
			return math.Min(acc, v+1)
		}, math.Inf(1))
	})
}

// SPCollection accumulates values up a spanning tree induced by a
// potential field (typically an ABFDistance output). Every device
// elects the neighbour with the least potential as its parent, breaking
// ties toward the smaller uid, and folds in the values of exactly the
// neighbours that elected it. The collected total emerges at the
// potential's minimum. acc must be commutative and associative, with
// null as its identity.
func SPCollection[T any](r *engine.Round, tag uint64, c exchange.Codec[T], potential float64, value T, null T, acc func(T, T) T) T {
	var out T
	engine.Aligned(r, tag, func() {
		ranked := engine.NbrField(r, 1, exchange.RankedC, exchange.Ranked{Key: potential, ID: r.UID})
		parent := field.MinHood(ranked, exchange.Ranked.Less).ID

		out = engine.Nbr(r, 2, c, null, func(collected field.Field[T]) T {
			parents := engine.NbrField(r, 3, exchange.Device, parent)
			fromChildren := field.Combine(parents, collected, func(p model.DeviceID, v T) T {
				if p == r.UID {
					return v
				}
				return null
			})
			return fromChildren.FoldExcl(acc, value)
		})
	})
	return out
}
