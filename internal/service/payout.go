package service

import (
	"math"
	"math/bits"

	"github.com/alanyoungcy/darkpool/internal/domain"
)

const bpsDenominator = 10_000

// EstimatePayout previews what a stake returns if the market resolves to
// winnerSide. A losing side gets 0. A winner receives the stake back plus a
// pro-rata share of the losing pool, less the protocol fee on that share:
//
//	reward = stake * losingPool / winningPool   (0 when winningPool is 0)
//	payout = stake + reward - reward*feeBps/10000
//
// All arithmetic is integer with floor division; intermediates use 128 bits.
// The ledger computes the real distribution; this is a preview only.
func EstimatePayout(stake uint64, userSide, winnerSide domain.Side, winningPool, losingPool, feeBps uint64) uint64 {
	if userSide != winnerSide {
		return 0
	}
	var reward uint64
	if winningPool > 0 {
		reward = mulDiv(stake, losingPool, winningPool)
	}
	if feeBps > bpsDenominator {
		feeBps = bpsDenominator
	}
	fee := mulDiv(reward, feeBps, bpsDenominator)

	payout, carry := bits.Add64(stake, reward-fee, 0)
	if carry != 0 {
		return math.MaxUint64
	}
	return payout
}

// PreviewPayout estimates the payout for a position on m. Before resolution
// it assumes side wins; after, it uses the recorded winner.
func PreviewPayout(m domain.Market, side domain.Side, stake, feeBps uint64) uint64 {
	winner := side
	if m.Resolved() {
		winner = m.WinnerSide
	}
	own, other := m.Pools(side)
	return EstimatePayout(stake, side, winner, own, other, feeBps)
}

// mulDiv returns floor(a*b/d), saturating at MaxUint64.
func mulDiv(a, b, d uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	if hi >= d {
		return math.MaxUint64
	}
	q, _ := bits.Div64(hi, lo, d)
	return q
}
