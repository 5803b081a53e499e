package broker

import (
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/bikeshrana/pmbacktest/internal/metrics"
	"github.com/bikeshrana/pmbacktest/pkg/market"
)

// Config holds the broker's pricing and liquidity parameters.
type Config struct {
	CommissionRate float64
	BaseSlippage   float64
	LiquidityCap   bool
	EMADecay       float64
}

// DefaultConfig returns the zero-friction baseline used by tests and the
// example config file: no commission, no slippage, liquidity cap enabled.
func DefaultConfig() Config {
	return Config{
		CommissionRate: 0,
		BaseSlippage:   0,
		LiquidityCap:   true,
		EMADecay:       0.1,
	}
}

// Broker holds per-market resting order books and matches them against
// incoming trades. Every method holds an internal mutex, so concurrent calls
// are serialized; the replay engine drives it from a single goroutine.
type Broker struct {
	cfg     Config
	logger  zerolog.Logger
	metrics *metrics.ReplayMetrics

	mu        sync.Mutex
	nextID    uint64
	pending   map[string][]*market.Order
	tradeSize map[string]float64
}

// New creates a Broker with the given configuration. m may be nil to
// disable metric observation.
func New(cfg Config, logger zerolog.Logger, m *metrics.ReplayMetrics) *Broker {
	return &Broker{
		cfg:       cfg,
		logger:    logger.With().Str("component", "broker").Logger(),
		metrics:   m,
		nextID:    0,
		pending:   make(map[string][]*market.Order),
		tradeSize: make(map[string]float64),
	}
}

// PlaceOrder creates a new pending limit order and appends it to its
// market's book in arrival order.
func (b *Broker) PlaceOrder(marketID string, action market.OrderAction, side market.Side, price, quantity, timestamp float64) market.Order {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	order := &market.Order{
		OrderID:   strconv.FormatUint(b.nextID, 10),
		MarketID:  marketID,
		Action:    action,
		Side:      side,
		Price:     price,
		Quantity:  quantity,
		Status:    market.Pending,
		CreatedAt: timestamp,
	}
	b.pending[marketID] = append(b.pending[marketID], order)

	if b.metrics != nil {
		b.metrics.OrdersPlacedTotal.WithLabelValues(marketID, action.String(), side.String()).Inc()
	}

	b.logger.Debug().
		Str("order_id", order.OrderID).
		Str("market_id", marketID).
		Str("action", action.String()).
		Str("side", side.String()).
		Float64("price", price).
		Float64("quantity", quantity).
		Msg("order placed")

	return *order
}

// CancelOrder removes the first pending order with the given id. It returns
// false if no such order exists.
func (b *Broker) CancelOrder(orderID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for marketID, orders := range b.pending {
		for i, o := range orders {
			if o.OrderID == orderID {
				b.pending[marketID] = append(orders[:i], orders[i+1:]...)
				return true
			}
		}
	}
	return false
}

// CancelAll removes every pending order for a market, or every pending order
// across all markets if marketID is nil. It returns the number removed.
func (b *Broker) CancelAll(marketID *string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if marketID != nil {
		n := len(b.pending[*marketID])
		delete(b.pending, *marketID)
		return n
	}

	n := 0
	for _, orders := range b.pending {
		n += len(orders)
	}
	b.pending = make(map[string][]*market.Order)
	return n
}

// UpdateTradeSize folds a new observed trade size into the market's
// exponentially-weighted average. The first observation per market seeds
// the average directly rather than decaying in from zero, so the very first
// fill in a market is not penalized by a spurious size factor. Must be
// called before CheckFills for the same trade.
func (b *Broker) UpdateTradeSize(marketID string, quantity float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ema, ok := b.tradeSize[marketID]
	if !ok {
		b.tradeSize[marketID] = quantity
		return
	}
	alpha := b.cfg.EMADecay
	b.tradeSize[marketID] = ema*(1-alpha) + quantity*alpha
}

// AllPending returns a snapshot copy of every pending order across all
// markets.
func (b *Broker) AllPending() []market.Order {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]market.Order, 0)
	for _, orders := range b.pending {
		for _, o := range orders {
			out = append(out, *o)
		}
	}
	return out
}
