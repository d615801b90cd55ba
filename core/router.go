package core

import (
	"strings"
	"sync"

	"github.com/web3guy0/hitwatch/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// ROUTER - Routes recorded hits to notifiers based on subscriptions
// ═══════════════════════════════════════════════════════════════════════════════

// HitNotifier receives recorded hits (Telegram, logs, ...)
type HitNotifier interface {
	NotifyHit(setup types.Setup, hit types.Hit)
}

// ErrorNotifier receives failed passes
type ErrorNotifier interface {
	NotifyError(err error)
}

const allSymbols = "*"

type Router struct {
	mu            sync.RWMutex
	subscriptions map[string][]HitNotifier // symbol -> notifiers
	errorSinks    []ErrorNotifier
}

// NewRouter creates a new hit router
func NewRouter() *Router {
	return &Router{
		subscriptions: make(map[string][]HitNotifier),
	}
}

// Subscribe registers a notifier for one symbol
func (r *Router) Subscribe(symbol string, n HitNotifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := strings.ToUpper(symbol)
	r.subscriptions[key] = append(r.subscriptions[key], n)
}

// SubscribeAll registers a notifier for every symbol
func (r *Router) SubscribeAll(n HitNotifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscriptions[allSymbols] = append(r.subscriptions[allSymbols], n)
}

// Route delivers a hit and returns how many notifiers saw it
func (r *Router) Route(setup types.Setup, hit types.Hit) int {
	r.mu.RLock()
	targets := append([]HitNotifier(nil), r.subscriptions[allSymbols]...)
	targets = append(targets, r.subscriptions[strings.ToUpper(setup.Symbol)]...)
	r.mu.RUnlock()

	for _, n := range targets {
		n.NotifyHit(setup, hit)
	}
	return len(targets)
}

// SubscribeErrors registers a notifier for pass failures
func (r *Router) SubscribeErrors(n ErrorNotifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errorSinks = append(r.errorSinks, n)
}

// RouteError delivers a pass failure
func (r *Router) RouteError(err error) {
	r.mu.RLock()
	targets := append([]ErrorNotifier(nil), r.errorSinks...)
	r.mu.RUnlock()

	for _, n := range targets {
		n.NotifyError(err)
	}
}
