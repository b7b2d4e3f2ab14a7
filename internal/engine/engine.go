// Package engine coordinates order management, position tracking, and risk
// checking across the trading system.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"meridian/internal/broker"
	"meridian/internal/domain"
	"meridian/internal/store"
)

// Engine orchestrates the trading lifecycle by delegating to a broker for
// execution, stores for persistence, and a risk manager for pre-trade checks.
// The stores may be nil, in which case orders and positions are not persisted.
type Engine struct {
	broker      broker.Broker
	orders      store.OrderStore
	positions   store.PositionStore
	riskChecker *RiskManager
	log         *slog.Logger
}

// NewEngine creates a new Engine wired with the given dependencies.
func NewEngine(
	b broker.Broker,
	orders store.OrderStore,
	positions store.PositionStore,
	riskChecker *RiskManager,
	log *slog.Logger,
) *Engine {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Engine{
		broker:      b,
		orders:      orders,
		positions:   positions,
		riskChecker: riskChecker,
		log:         log.With("component", "engine"),
	}
}

// SubmitOrder runs the pre-trade risk check, forwards the order to the
// broker, and persists the accepted order. The returned order carries the
// broker-assigned ID and status.
func (e *Engine) SubmitOrder(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	if e.riskChecker != nil {
		account, err := e.broker.GetAccount(ctx)
		if err != nil {
			return nil, fmt.Errorf("get account for risk check: %w", err)
		}
		if err := e.riskChecker.CheckOrder(ctx, order, account); err != nil {
			e.log.Warn("order rejected by risk check",
				"symbol", order.Symbol, "side", order.Side, "qty", order.Qty, "reason", err)
			return nil, fmt.Errorf("risk check: %w", err)
		}
	}

	placed, err := e.broker.SubmitOrder(ctx, order)
	if err != nil {
		return nil, fmt.Errorf("submit order: %w", err)
	}
	e.log.Info("order submitted",
		"id", placed.ID, "symbol", placed.Symbol, "side", placed.Side,
		"type", placed.Type, "qty", placed.Qty, "status", placed.Status)

	if e.orders != nil {
		if err := e.orders.SaveOrder(ctx, placed); err != nil {
			e.log.Error("failed to persist order", "id", placed.ID, "error", err)
		}
	}
	if placed.Status == domain.OrderStatusFilled {
		e.syncPosition(ctx, placed.Symbol)
	}
	return placed, nil
}

// CancelOrder requests cancellation at the broker and updates the stored
// order's status.
func (e *Engine) CancelOrder(ctx context.Context, orderID string) error {
	if err := e.broker.CancelOrder(ctx, orderID); err != nil {
		return fmt.Errorf("cancel order %s: %w", orderID, err)
	}
	e.log.Info("order cancelled", "id", orderID)

	if e.orders == nil {
		return nil
	}
	order, err := e.orders.GetOrder(ctx, orderID)
	if err != nil {
		e.log.Warn("cancelled order not found in store", "id", orderID, "error", err)
		return nil
	}
	order.Status = domain.OrderStatusCancelled
	if err := e.orders.UpdateOrder(ctx, order); err != nil {
		e.log.Error("failed to update cancelled order", "id", orderID, "error", err)
	}
	return nil
}

// ListOrders returns persisted orders with the given status.
func (e *Engine) ListOrders(ctx context.Context, status domain.OrderStatus) ([]domain.Order, error) {
	if e.orders == nil {
		return nil, fmt.Errorf("no order store configured")
	}
	return e.orders.ListOrders(ctx, status)
}

// GetPositions returns the broker's current open positions.
func (e *Engine) GetPositions(ctx context.Context) ([]domain.Position, error) {
	positions, err := e.broker.GetPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("get positions: %w", err)
	}
	return positions, nil
}

// GetAccount returns the broker's current account snapshot.
func (e *Engine) GetAccount(ctx context.Context) (*domain.AccountInfo, error) {
	return e.broker.GetAccount(ctx)
}

// RiskReport assesses the current portfolio against the configured limits.
func (e *Engine) RiskReport(ctx context.Context) (*RiskReport, error) {
	if e.riskChecker == nil {
		return nil, fmt.Errorf("no risk manager configured")
	}
	account, err := e.broker.GetAccount(ctx)
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	positions, err := e.broker.GetPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("get positions: %w", err)
	}
	report := e.riskChecker.AssessRisk(positions, account)
	return &report, nil
}

// syncPosition mirrors the broker's position for a symbol into the position
// store. A flat position is deleted.
func (e *Engine) syncPosition(ctx context.Context, symbol string) {
	if e.positions == nil {
		return
	}
	positions, err := e.broker.GetPositions(ctx)
	if err != nil {
		e.log.Error("failed to read positions for sync", "symbol", symbol, "error", err)
		return
	}
	for i := range positions {
		if positions[i].Symbol == symbol {
			if err := e.positions.SavePosition(ctx, &positions[i]); err != nil {
				e.log.Error("failed to persist position", "symbol", symbol, "error", err)
			}
			return
		}
	}
	if err := e.positions.DeletePosition(ctx, symbol); err != nil {
		e.log.Error("failed to delete flat position", "symbol", symbol, "error", err)
	}
}
