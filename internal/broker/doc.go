// Package broker matches resting limit orders against incoming market
// trades for binary (YES/NO) prediction markets.
//
// An earlier revision of this matcher decided a fill purely from the order's
// limit price, without consulting which side of the book the incoming trade
// aggressed. That predicate double-fills both sides of the book on every
// trade and was replaced by the taker-aware rule in match.go before this
// package left the prototype stage.
package broker
