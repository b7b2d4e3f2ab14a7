package backtest

import (
	"meridian/internal/domain"
)

// tryFill attempts to execute a pending order against the current bar.
// It returns true when the order filled. Rejected orders (insufficient
// cash or position) stay pending and are logged; they may fill on a later
// bar if conditions change.
//
// Execution prices are deliberately pessimistic: market buys fill off the
// bar high and market sells off the bar low, both adjusted by slippage.
func (e *Engine) tryFill(order *Order, bar domain.Bar) bool {
	if order.Status != domain.OrderStatusPending {
		return false
	}

	var fillPrice float64
	switch order.Type {
	case domain.OrderTypeMarket:
		if order.Side == domain.OrderSideBuy {
			fillPrice = bar.High * (1 + e.cfg.SlippageRate)
		} else {
			fillPrice = bar.Low * (1 - e.cfg.SlippageRate)
		}

	case domain.OrderTypeLimit:
		switch {
		case order.Side == domain.OrderSideBuy && bar.Close <= order.LimitPrice:
			fillPrice = min(order.LimitPrice, bar.High)
		case order.Side == domain.OrderSideSell && bar.Close >= order.LimitPrice:
			fillPrice = max(order.LimitPrice, bar.Low)
		default:
			return false // limit not reached, stays pending
		}

	default:
		// Stop and stop-limit orders are accepted but never trigger;
		// they stay pending for the whole run.
		return false
	}

	if order.Side == domain.OrderSideBuy {
		required := fillPrice * float64(order.Quantity)
		if required > e.state.cash {
			e.log.Warn("order rejected: insufficient capital",
				"order", order.ID, "required", required, "cash", e.state.cash)
			return false
		}
	} else {
		pos, ok := e.state.ledger.positions[order.Symbol]
		if !ok || pos.Quantity < order.Quantity {
			e.log.Warn("order rejected: insufficient position",
				"order", order.ID, "symbol", order.Symbol, "qty", order.Quantity)
			return false
		}
	}

	order.FilledPrice = fillPrice
	order.FilledQuantity = order.Quantity
	order.Status = domain.OrderStatusFilled
	order.Commission = fillPrice * float64(order.Quantity) * e.cfg.CommissionRate
	order.Slippage = e.cfg.SlippageRate

	if order.Side == domain.OrderSideBuy {
		e.state.cash -= fillPrice*float64(order.Quantity) + order.Commission
		e.state.ledger.ApplyFill(order.Symbol, order.Quantity, fillPrice)
	} else {
		e.state.cash += fillPrice*float64(order.Quantity) - order.Commission
		e.state.ledger.ApplyFill(order.Symbol, -order.Quantity, fillPrice)
	}

	e.log.Debug("order filled",
		"order", order.ID, "side", order.Side, "qty", order.Quantity, "price", fillPrice)
	return true
}
