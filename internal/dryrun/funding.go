package dryrun

import "github.com/ndrandal/perpflow/internal/fixedpoint"

func signFp(s Side) fixedpoint.Fp {
	if s == SideShort {
		return fixedpoint.MustToFp(-1)
	}
	return fixedpoint.MustToFp(1)
}

// accrueFunding applies whole-interval funding for every funding
// interval elapsed since the last accrual, looping to cover gaps
// deterministically (spec.md §4.7 step 1). Returns the total signed
// wallet impact applied this call (negative = debited from wallet).
func (e *Engine) accrueFunding(nowMs int64, markPrice fixedpoint.Fp) fixedpoint.Fp {
	if !e.haveFunding {
		e.lastFundingTsMs = nowMs
		e.haveFunding = true
		return 0
	}

	elapsed := nowMs - e.lastFundingTsMs
	if elapsed < e.cfg.FundingIntervalMs {
		return 0
	}
	intervals := elapsed / e.cfg.FundingIntervalMs
	e.lastFundingTsMs += intervals * e.cfg.FundingIntervalMs

	if e.position == nil || intervals == 0 {
		return 0
	}

	perInterval := fixedpoint.Mul(fixedpoint.Mul(e.cfg.FundingRate, e.position.Qty), markPrice)
	perInterval = fixedpoint.Mul(perInterval, signFp(e.position.Side))
	total := fixedpoint.Mul(perInterval, fixedpoint.MustToFp(float64(intervals)))

	e.walletBalance = fixedpoint.Sub(e.walletBalance, total)
	return -total
}
