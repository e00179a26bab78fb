package dryrun

import "github.com/ndrandal/perpflow/internal/fixedpoint"

// workingBook is a mutable per-tick copy of the book snapshot consumed
// as orders match against it in submission order, then again during the
// working-order sweep.
type workingBook struct {
	bids []BookLevel
	asks []BookLevel
}

func newWorkingBook(snap BookSnapshot) *workingBook {
	wb := &workingBook{
		bids: append([]BookLevel{}, snap.Bids...),
		asks: append([]BookLevel{}, snap.Asks...),
	}
	return wb
}

// oppositeSide returns the levels an order on `side` matches against.
func (wb *workingBook) oppositeSide(side Side) *[]BookLevel {
	if side == SideLong {
		return &wb.asks
	}
	return &wb.bids
}

func (wb *workingBook) bestPrice(side Side) (fixedpoint.Fp, bool) {
	levels := *wb.oppositeSide(side)
	if len(levels) == 0 {
		return 0, false
	}
	return levels[0].Price, true
}

// consume walks levels from the front, filling up to qty, honoring an
// optional limit price (matches only while level price is at or better
// than limit for the aggressor). Mutates the level slice in place,
// removing exhausted levels.
func (wb *workingBook) consume(side Side, qty fixedpoint.Fp, limit *fixedpoint.Fp) (filledQty, notional fixedpoint.Fp) {
	levelsPtr := wb.oppositeSide(side)
	levels := *levelsPtr

	remaining := qty
	idx := 0
	for idx < len(levels) && fixedpoint.Sign(remaining) > 0 {
		lvl := levels[idx]
		if limit != nil {
			if side == SideLong && fixedpoint.Cmp(lvl.Price, *limit) > 0 {
				break
			}
			if side == SideShort && fixedpoint.Cmp(lvl.Price, *limit) < 0 {
				break
			}
		}

		take := lvl.Qty
		if fixedpoint.Cmp(take, remaining) > 0 {
			take = remaining
		}

		filledQty = fixedpoint.Add(filledQty, take)
		notional = fixedpoint.Add(notional, fixedpoint.Mul(take, lvl.Price))
		remaining = fixedpoint.Sub(remaining, take)

		levels[idx].Qty = fixedpoint.Sub(levels[idx].Qty, take)
		if fixedpoint.Sign(levels[idx].Qty) <= 0 {
			idx++
		}
	}

	*levelsPtr = levels[idx:]
	return
}

func avgPrice(filledQty, notional fixedpoint.Fp) fixedpoint.Fp {
	if fixedpoint.Sign(filledQty) == 0 {
		return 0
	}
	v, err := fixedpoint.Div(notional, filledQty)
	if err != nil {
		return 0
	}
	return v
}

func wouldCross(wb *workingBook, side Side, price fixedpoint.Fp) bool {
	best, ok := wb.bestPrice(side)
	if !ok {
		return false
	}
	if side == SideLong {
		return fixedpoint.Cmp(price, best) >= 0
	}
	return fixedpoint.Cmp(price, best) <= 0
}
