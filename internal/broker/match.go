package broker

import (
	"math"

	"github.com/bikeshrana/pmbacktest/pkg/market"
)

// matches reports whether a resting order fires against a trade, and if so,
// the base (pre-impact) price it fires at. A resting order only executes
// against a taker on the opposite side of the book: a BUY YES rests on the
// book waiting for a NO taker to cross it, and symmetrically for the other
// three combinations.
func matches(o *market.Order, t market.Trade) (price float64, ok bool) {
	switch {
	case o.Action == market.Buy && o.Side == market.Yes:
		if t.TakerSide == market.No && t.YesPrice <= o.Price {
			return t.YesPrice, true
		}
	case o.Action == market.Sell && o.Side == market.Yes:
		if t.TakerSide == market.Yes && t.YesPrice >= o.Price {
			return t.YesPrice, true
		}
	case o.Action == market.Buy && o.Side == market.No:
		if t.TakerSide == market.Yes && t.NoPrice <= o.Price {
			return t.NoPrice, true
		}
	case o.Action == market.Sell && o.Side == market.No:
		if t.TakerSide == market.No && t.NoPrice >= o.Price {
			return t.NoPrice, true
		}
	}
	return 0, false
}

// priceClampLow and priceClampHigh bound every impact-adjusted fill price
// away from the degenerate 0/1 extremes.
const (
	priceClampLow  = 0.01
	priceClampHigh = 0.99

	// varianceFloor keeps the spread factor from diverging as price
	// approaches 0 or 1.
	varianceFloor = 0.01
	// tradeSizeFloor keeps the size factor finite when no EMA observation
	// is available yet.
	tradeSizeFloor = 0.01
)

// impactPrice applies the market-impact model to a base fill price: a
// spread factor that grows as the price nears the extremes, multiplied by a
// size factor that grows with order size relative to the market's typical
// trade size.
func (b *Broker) impactPrice(basePrice float64, orderQty float64, marketID string, tradeQty float64, action market.OrderAction) float64 {
	if b.cfg.BaseSlippage == 0 {
		return basePrice
	}

	variance := basePrice * (1 - basePrice)
	if variance < varianceFloor {
		variance = varianceFloor
	}
	spreadFactor := 0.25 / variance
	if spreadFactor < 1.0 {
		spreadFactor = 1.0
	}

	avgTradeSize, ok := b.tradeSize[marketID]
	if !ok || avgTradeSize < tradeSizeFloor {
		avgTradeSize = tradeQty
	}
	if avgTradeSize < tradeSizeFloor {
		avgTradeSize = tradeSizeFloor
	}
	sizeFactor := math.Sqrt(orderQty / avgTradeSize)
	if sizeFactor < 1.0 {
		sizeFactor = 1.0
	}

	impact := b.cfg.BaseSlippage * spreadFactor * sizeFactor

	var adjusted float64
	if action == market.Buy {
		adjusted = basePrice + impact
	} else {
		adjusted = basePrice - impact
	}

	if adjusted < priceClampLow {
		adjusted = priceClampLow
	}
	if adjusted > priceClampHigh {
		adjusted = priceClampHigh
	}
	return adjusted
}

// CheckFills matches a trade against the market's resting orders in arrival
// order, sizing each fill to available liquidity and, for buys, to
// availableCash. Fills are returned in the same order the matched orders
// were placed.
func (b *Broker) CheckFills(t market.Trade, availableCash float64) []market.Fill {
	b.mu.Lock()
	defer b.mu.Unlock()

	orders := b.pending[t.MarketID]
	if len(orders) == 0 {
		return nil
	}

	cash := availableCash
	remainingLiq := math.Inf(1)
	if b.cfg.LiquidityCap {
		remainingLiq = t.Quantity
	}

	fills := make([]market.Fill, 0)
	keep := orders[:0:0]

	for _, o := range orders {
		basePrice, ok := matches(o, t)
		if !ok {
			keep = append(keep, o)
			continue
		}

		fillPrice := b.impactPrice(basePrice, o.Quantity, t.MarketID, t.Quantity, o.Action)

		fillQty := o.Quantity
		if fillQty > remainingLiq {
			fillQty = remainingLiq
		}
		if fillQty <= 0 {
			keep = append(keep, o)
			continue
		}

		cost := fillPrice * fillQty
		commission := cost * b.cfg.CommissionRate

		if o.Action == market.Buy && cost+commission > cash {
			if !b.cfg.LiquidityCap {
				keep = append(keep, o)
				continue
			}
			maxQty := cash / (fillPrice * (1 + b.cfg.CommissionRate))
			if maxQty < fillQty {
				fillQty = math.Floor(maxQty)
			}
			if fillQty < 1 {
				keep = append(keep, o)
				continue
			}
			cost = fillPrice * fillQty
			commission = cost * b.cfg.CommissionRate
		}

		if o.Action == market.Buy {
			cash -= cost + commission
		}
		remainingLiq -= fillQty

		filledAt := t.Timestamp
		fp := fillPrice
		o.Status = market.Filled
		o.FilledAt = &filledAt
		o.FillPrice = &fp
		o.FilledQuantity = fillQty

		fills = append(fills, market.Fill{
			OrderID:    o.OrderID,
			MarketID:   o.MarketID,
			Action:     o.Action,
			Side:       o.Side,
			Price:      fillPrice,
			Quantity:   fillQty,
			Timestamp:  t.Timestamp,
			Commission: commission,
		})

		b.logger.Debug().
			Str("order_id", o.OrderID).
			Str("market_id", o.MarketID).
			Float64("price", fillPrice).
			Float64("quantity", fillQty).
			Msg("order filled")
	}

	b.pending[t.MarketID] = keep
	return fills
}
