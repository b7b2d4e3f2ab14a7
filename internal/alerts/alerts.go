// Package alerts provides condition-based trading alerts with JSON
// persistence and pub/sub delivery of triggers.
package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"meridian/internal/domain"
)

// Type identifies what condition an alert watches.
type Type string

const (
	TypePriceAbove      Type = "price_above"
	TypePriceBelow      Type = "price_below"
	TypeVolumeSpike     Type = "volume_spike"
	TypeRSIOversold     Type = "rsi_oversold"
	TypeRSIOverbought   Type = "rsi_overbought"
	TypePortfolioLoss   Type = "portfolio_loss"
	TypePortfolioGain   Type = "portfolio_gain"
	TypeRiskLimitBreach Type = "risk_limit_breach"
)

// Priority grades how urgent a triggered alert is.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Condition holds the thresholds for an alert. Only the fields relevant to
// the alert's type are read.
type Condition struct {
	Price            float64 `json:"price,omitempty"`
	VolumeMultiplier float64 `json:"volume_multiplier,omitempty"`
	RSIThreshold     float64 `json:"rsi_threshold,omitempty"`
	LossPct          float64 `json:"loss_pct,omitempty"`
	GainPct          float64 `json:"gain_pct,omitempty"`
	Metric           string  `json:"metric,omitempty"`
	Threshold        float64 `json:"threshold,omitempty"`
}

// Alert is a persistent watch on a symbol or the portfolio.
type Alert struct {
	ID            string    `json:"id"`
	Symbol        string    `json:"symbol"`
	Type          Type      `json:"type"`
	Condition     Condition `json:"condition"`
	Priority      Priority  `json:"priority"`
	Enabled       bool      `json:"enabled"`
	CooldownMins  int       `json:"cooldown_mins"`
	CreatedAt     time.Time `json:"created_at"`
	LastTriggered time.Time `json:"last_triggered,omitzero"`
	TriggerCount  int       `json:"trigger_count"`
}

// Trigger records one firing of an alert and is the pub/sub payload.
type Trigger struct {
	AlertID   string             `json:"alert_id"`
	Symbol    string             `json:"symbol"`
	Type      Type               `json:"type"`
	Message   string             `json:"message"`
	Data      map[string]float64 `json:"data"`
	Priority  Priority           `json:"priority"`
	Timestamp time.Time          `json:"timestamp"`
}

const (
	maxBarHistory   = 1000
	defaultCooldown = 15
)

// Manager holds alerts in memory with JSON persistence, evaluates them
// against streamed bars and portfolio metrics, and broadcasts triggers.
type Manager struct {
	mu        sync.RWMutex
	alerts    map[string]*Alert
	history   []Trigger
	bars      map[string][]domain.Bar
	portfolio map[string]float64
	filePath  string
	log       *slog.Logger
	now       func() time.Time

	subsMu    sync.Mutex
	nextSubID int
	subs      map[int]chan Trigger
}

// NewManager creates a Manager, loading persisted alerts from filePath.
func NewManager(filePath string, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	m := &Manager{
		alerts:    make(map[string]*Alert),
		bars:      make(map[string][]domain.Bar),
		portfolio: make(map[string]float64),
		filePath:  filePath,
		log:       log.With("component", "alerts"),
		now:       time.Now,
		subs:      make(map[int]chan Trigger),
	}
	m.load()
	return m
}

// Add registers an alert, assigning an ID if absent, and persists.
func (m *Manager) Add(alert *Alert) *Alert {
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = m.now().UTC()
	}
	if alert.CooldownMins == 0 {
		alert.CooldownMins = defaultCooldown
	}

	m.mu.Lock()
	m.alerts[alert.ID] = alert
	m.flush()
	m.mu.Unlock()

	m.log.Info("alert added", "id", alert.ID, "symbol", alert.Symbol, "type", alert.Type)
	return alert
}

// Remove deletes an alert and persists. Returns false if unknown.
func (m *Manager) Remove(id string) bool {
	m.mu.Lock()
	_, ok := m.alerts[id]
	if ok {
		delete(m.alerts, id)
		m.flush()
	}
	m.mu.Unlock()

	if ok {
		m.log.Info("alert removed", "id", id)
	}
	return ok
}

// SetEnabled toggles an alert and persists. Returns false if unknown.
func (m *Manager) SetEnabled(id string, enabled bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[id]
	if !ok {
		return false
	}
	a.Enabled = enabled
	m.flush()
	return true
}

// Get returns a copy of the alert with the given ID.
func (m *Manager) Get(id string) (Alert, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.alerts[id]
	if !ok {
		return Alert{}, false
	}
	return *a, true
}

// List returns copies of all alerts.
func (m *Manager) List() []Alert {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Alert, 0, len(m.alerts))
	for _, a := range m.alerts {
		out = append(out, *a)
	}
	return out
}

// UpdateBar feeds the latest bar for a symbol. History is bounded.
func (m *Manager) UpdateBar(bar domain.Bar) {
	m.mu.Lock()
	defer m.mu.Unlock()
	series := append(m.bars[bar.Symbol], bar)
	if len(series) > maxBarHistory {
		series = series[len(series)-maxBarHistory:]
	}
	m.bars[bar.Symbol] = series
}

// UpdatePortfolio feeds the latest portfolio metrics, e.g. portfolio_value,
// initial_capital, leverage.
func (m *Manager) UpdatePortfolio(metrics map[string]float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range metrics {
		m.portfolio[k] = v
	}
}

// CheckAlerts evaluates every enabled alert outside its cooldown window and
// returns the triggers fired. Triggers are recorded in history and
// broadcast to subscribers.
func (m *Manager) CheckAlerts() []Trigger {
	now := m.now().UTC()

	m.mu.Lock()
	var fired []Trigger
	for _, a := range m.alerts {
		if !a.Enabled {
			continue
		}
		if !a.LastTriggered.IsZero() &&
			now.Sub(a.LastTriggered) < time.Duration(a.CooldownMins)*time.Minute {
			continue
		}
		msg, data, ok := m.evaluate(a)
		if !ok {
			continue
		}
		a.LastTriggered = now
		a.TriggerCount++
		fired = append(fired, Trigger{
			AlertID:   a.ID,
			Symbol:    a.Symbol,
			Type:      a.Type,
			Message:   msg,
			Data:      data,
			Priority:  a.Priority,
			Timestamp: now,
		})
	}
	if len(fired) > 0 {
		m.history = append(m.history, fired...)
		m.flush()
	}
	m.mu.Unlock()

	for _, t := range fired {
		m.log.Info("alert triggered", "id", t.AlertID, "symbol", t.Symbol, "message", t.Message)
		m.broadcast(t)
	}
	return fired
}

// evaluate reports whether the alert condition holds. Caller holds mu.
func (m *Manager) evaluate(a *Alert) (string, map[string]float64, bool) {
	series := m.bars[a.Symbol]

	switch a.Type {
	case TypePriceAbove, TypePriceBelow:
		if len(series) == 0 {
			return "", nil, false
		}
		price := series[len(series)-1].Close
		target := a.Condition.Price
		if a.Type == TypePriceAbove && price >= target {
			return fmt.Sprintf("%s price %.2f is above %.2f", a.Symbol, price, target),
				map[string]float64{"current_price": price, "target_price": target}, true
		}
		if a.Type == TypePriceBelow && price <= target {
			return fmt.Sprintf("%s price %.2f is below %.2f", a.Symbol, price, target),
				map[string]float64{"current_price": price, "target_price": target}, true
		}

	case TypeVolumeSpike:
		if len(series) < 20 {
			return "", nil, false
		}
		mult := a.Condition.VolumeMultiplier
		if mult == 0 {
			mult = 2.0
		}
		current := float64(series[len(series)-1].Volume)
		total := 0.0
		for _, b := range series[len(series)-20:] {
			total += float64(b.Volume)
		}
		avg := total / 20
		if avg > 0 && current >= avg*mult {
			return fmt.Sprintf("%s volume spike: %.0f vs avg %.0f", a.Symbol, current, avg),
				map[string]float64{"current_volume": current, "average_volume": avg, "multiplier": mult}, true
		}

	case TypeRSIOversold, TypeRSIOverbought:
		if len(series) < 15 {
			return "", nil, false
		}
		closes := make([]float64, 15)
		for i, b := range series[len(series)-15:] {
			closes[i] = b.Close
		}
		rsi := simpleRSI(closes)
		threshold := a.Condition.RSIThreshold
		if a.Type == TypeRSIOversold {
			if threshold == 0 {
				threshold = 30
			}
			if rsi <= threshold {
				return fmt.Sprintf("%s RSI oversold: %.1f", a.Symbol, rsi),
					map[string]float64{"rsi": rsi, "threshold": threshold}, true
			}
		} else {
			if threshold == 0 {
				threshold = 70
			}
			if rsi >= threshold {
				return fmt.Sprintf("%s RSI overbought: %.1f", a.Symbol, rsi),
					map[string]float64{"rsi": rsi, "threshold": threshold}, true
			}
		}

	case TypePortfolioLoss:
		threshold := a.Condition.LossPct
		if threshold == 0 {
			threshold = 5
		}
		value := m.portfolio["portfolio_value"]
		initial := m.portfolio["initial_capital"]
		if value > 0 && initial > 0 {
			lossPct := (initial - value) / initial * 100
			if lossPct >= threshold {
				return fmt.Sprintf("portfolio loss: %.1f%%", lossPct),
					map[string]float64{"loss_pct": lossPct, "portfolio_value": value, "initial_capital": initial}, true
			}
		}

	case TypePortfolioGain:
		threshold := a.Condition.GainPct
		if threshold == 0 {
			threshold = 10
		}
		value := m.portfolio["portfolio_value"]
		initial := m.portfolio["initial_capital"]
		if value > 0 && initial > 0 {
			gainPct := (value - initial) / initial * 100
			if gainPct >= threshold {
				return fmt.Sprintf("portfolio gain: %.1f%%", gainPct),
					map[string]float64{"gain_pct": gainPct, "portfolio_value": value, "initial_capital": initial}, true
			}
		}

	case TypeRiskLimitBreach:
		metric := a.Condition.Metric
		if metric == "" {
			metric = "leverage"
		}
		threshold := a.Condition.Threshold
		if threshold == 0 {
			threshold = 2.0
		}
		if current := m.portfolio[metric]; current >= threshold {
			return fmt.Sprintf("risk limit breached: %s = %.2f", metric, current),
				map[string]float64{"current_value": current, "threshold": threshold}, true
		}
	}
	return "", nil, false
}

// TriggerHistory returns the most recent triggers, up to limit.
func (m *Manager) TriggerHistory(limit int) []Trigger {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 || limit > len(m.history) {
		limit = len(m.history)
	}
	out := make([]Trigger, limit)
	copy(out, m.history[len(m.history)-limit:])
	return out
}

// Run evaluates alerts on the given interval until ctx is cancelled.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	m.log.Info("alert monitoring started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			m.log.Info("alert monitoring stopped")
			return
		case <-ticker.C:
			m.CheckAlerts()
		}
	}
}

// Subscribe returns a channel that receives triggers. Slow consumers have
// triggers dropped.
func (m *Manager) Subscribe(bufSize int) (int, <-chan Trigger) {
	ch := make(chan Trigger, bufSize)
	m.subsMu.Lock()
	id := m.nextSubID
	m.nextSubID++
	m.subs[id] = ch
	m.subsMu.Unlock()
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (m *Manager) Unsubscribe(id int) {
	m.subsMu.Lock()
	if ch, ok := m.subs[id]; ok {
		delete(m.subs, id)
		close(ch)
	}
	m.subsMu.Unlock()
}

// broadcast sends a trigger to all subscribers non-blocking (drop on full).
func (m *Manager) broadcast(t Trigger) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- t:
		default:
			// Slow consumer, drop trigger.
		}
	}
}

// persisted is the on-disk format: alerts plus recent trigger history.
type persisted struct {
	Alerts  []Alert   `json:"alerts"`
	History []Trigger `json:"history"`
}

// load reads the JSON file into memory.
func (m *Manager) load() {
	data, err := os.ReadFile(m.filePath)
	if err != nil {
		return // File doesn't exist yet, start empty.
	}
	var p persisted
	if err := json.Unmarshal(data, &p); err != nil {
		m.log.Warn("loading alerts file", "error", err)
		return
	}
	for i := range p.Alerts {
		a := p.Alerts[i]
		m.alerts[a.ID] = &a
	}
	m.history = p.History
	m.log.Info("loaded alerts", "count", len(m.alerts))
}

// flush writes the in-memory state to disk. Must be called with mu held.
func (m *Manager) flush() {
	p := persisted{Alerts: make([]Alert, 0, len(m.alerts))}
	for _, a := range m.alerts {
		p.Alerts = append(p.Alerts, *a)
	}
	if n := len(m.history); n > 100 {
		p.History = m.history[n-100:]
	} else {
		p.History = m.history
	}
	data, err := json.Marshal(p)
	if err != nil {
		m.log.Error("marshalling alerts", "error", err)
		return
	}
	if err := os.WriteFile(m.filePath, data, 0644); err != nil {
		m.log.Error("writing alerts file", "error", err)
	}
}

// simpleRSI computes an unweighted RSI over the whole window.
func simpleRSI(prices []float64) float64 {
	if len(prices) < 2 {
		return 50
	}
	var gain, loss float64
	for i := 1; i < len(prices); i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			gain += change
		} else {
			loss -= change
		}
	}
	n := float64(len(prices) - 1)
	if loss == 0 {
		return 100
	}
	rs := (gain / n) / (loss / n)
	return 100 - 100/(1+rs)
}
