// Package events provides the in-process publish/subscribe bus that
// wires orchestrator components to the status feed and reporters.
package events

import (
	"sync"
	"time"
)

// EventType names a class of system event.
type EventType string

const (
	EventPriceUpdate     EventType = "PRICE_UPDATE"
	EventPatternDetected EventType = "PATTERN_DETECTED"
	EventAgentDecision   EventType = "AGENT_DECISION"
	EventPositionOpened  EventType = "POSITION_OPENED"
	EventPartialExit     EventType = "PARTIAL_EXIT"
	EventPositionClosed  EventType = "POSITION_CLOSED"
	EventLiquidation     EventType = "LIQUIDATION"
	EventTrapDetected    EventType = "TRAP_DETECTED"
	EventBotStarted      EventType = "BOT_STARTED"
	EventBotStopped      EventType = "BOT_STOPPED"
	EventError           EventType = "ERROR"
)

// Event is one published occurrence.
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber handles published events.
type Subscriber func(Event)

// Bus fans events out to subscribers. Delivery is asynchronous; slow
// subscribers never block a publisher.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[EventType][]Subscriber),
	}
}

// Subscribe registers a subscriber for one event type.
func (b *Bus) Subscribe(eventType EventType, subscriber Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for every event type.
func (b *Bus) SubscribeAll(subscriber Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allSubs = append(b.allSubs, subscriber)
}

// Publish delivers an event to all matching subscribers.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	for _, sub := range b.subscribers[event.Type] {
		go sub(event)
	}
	for _, sub := range b.allSubs {
		go sub(event)
	}
}

// PublishPositionOpened reports a new position.
func (b *Bus) PublishPositionOpened(profile, symbol, direction string, entry, size float64, leverage int) {
	b.Publish(Event{
		Type: EventPositionOpened,
		Data: map[string]interface{}{
			"profile":   profile,
			"symbol":    symbol,
			"direction": direction,
			"entry":     entry,
			"size":      size,
			"leverage":  leverage,
		},
	})
}

// PublishPositionClosed reports a full exit.
func (b *Bus) PublishPositionClosed(profile, symbol, reason string, exitPrice, pnl float64) {
	b.Publish(Event{
		Type: EventPositionClosed,
		Data: map[string]interface{}{
			"profile":    profile,
			"symbol":     symbol,
			"reason":     reason,
			"exit_price": exitPrice,
			"pnl":        pnl,
		},
	})
}

// PublishPartialExit reports one take-profit rung fill.
func (b *Bus) PublishPartialExit(profile, symbol string, price, pnl float64) {
	b.Publish(Event{
		Type: EventPartialExit,
		Data: map[string]interface{}{
			"profile": profile,
			"symbol":  symbol,
			"price":   price,
			"pnl":     pnl,
		},
	})
}

// PublishLiquidation reports a blown position.
func (b *Bus) PublishLiquidation(profile, symbol string, loss float64) {
	b.Publish(Event{
		Type: EventLiquidation,
		Data: map[string]interface{}{
			"profile": profile,
			"symbol":  symbol,
			"loss":    loss,
		},
	})
}

// PublishPatternDetected reports a harmonic pattern completion along with
// the tradeable projection built from it.
func (b *Bus) PublishPatternDetected(patternType, timeframe, trend, signal string, confidence, entry, stop, takeProfit float64) {
	b.Publish(Event{
		Type: EventPatternDetected,
		Data: map[string]interface{}{
			"pattern":     patternType,
			"timeframe":   timeframe,
			"trend":       trend,
			"signal":      signal,
			"confidence":  confidence,
			"entry":       entry,
			"stop":        stop,
			"take_profit": takeProfit,
		},
	})
}

// PublishError reports a component failure that was absorbed.
func (b *Bus) PublishError(component string, err error) {
	if err == nil {
		return
	}
	b.Publish(Event{
		Type: EventError,
		Data: map[string]interface{}{
			"component": component,
			"error":     err.Error(),
		},
	})
}
