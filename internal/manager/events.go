package manager

import (
	"sync"

	"github.com/example/go-speech-models/internal/model"
)

// Key identifies one model's operation stream. (category, id) partitions
// all mutable state in the manager.
type Key struct {
	Category model.Category
	ID       string
}

// Terminal phases. Exactly one terminal event ends each operation and is
// always the last event delivered for it.
const (
	PhaseDownload = "download"
	PhaseVerify   = "verify"
	PhaseExtract  = "extract"
	PhaseDone     = "done"
	PhaseFailed   = "failed"
	PhaseCanceled = "canceled"
)

func isTerminal(phase string) bool {
	return phase == PhaseDone || phase == PhaseFailed || phase == PhaseCanceled
}

// Bus delivers per-key progress events and registry-updated notifications.
//
// Guarantees enforced here rather than assumed from the caller: progress
// percent for a key is non-decreasing within an operation, events after
// the terminal event are dropped, and handlers for one key never see
// another key's events.
type Bus struct {
	mu       sync.Mutex
	nextID   int
	progress map[Key]map[int]func(model.Progress)
	registry map[int]func(model.Category)

	lastPercent map[Key]float64
	ended       map[Key]bool
}

func NewBus() *Bus {
	return &Bus{
		progress:    make(map[Key]map[int]func(model.Progress)),
		registry:    make(map[int]func(model.Category)),
		lastPercent: make(map[Key]float64),
		ended:       make(map[Key]bool),
	}
}

// SubscribeProgress registers a handler for one model's events and returns
// an unsubscribe func. Handlers are invoked synchronously in publish
// order; they must not block.
func (b *Bus) SubscribeProgress(cat model.Category, id string, fn func(model.Progress)) func() {
	key := Key{Category: cat, ID: id}

	b.mu.Lock()
	b.nextID++
	token := b.nextID
	if b.progress[key] == nil {
		b.progress[key] = make(map[int]func(model.Progress))
	}
	b.progress[key][token] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.progress[key], token)
		if len(b.progress[key]) == 0 {
			delete(b.progress, key)
		}
	}
}

// SubscribeRegistry registers a handler for registry-updated notifications
// and returns an unsubscribe func.
func (b *Bus) SubscribeRegistry(fn func(model.Category)) func() {
	b.mu.Lock()
	b.nextID++
	token := b.nextID
	b.registry[token] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.registry, token)
	}
}

// begin resets the ordering state for a key at the start of an operation.
func (b *Bus) begin(key Key) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastPercent[key] = -1
	b.ended[key] = false
}

// publish delivers an event, enforcing the ordering guarantees. Events
// whose percent would regress are lifted to the high-water mark; events
// after the terminal one are dropped.
func (b *Bus) publish(p model.Progress) {
	key := Key{Category: p.Category, ID: p.ID}

	b.mu.Lock()
	if b.ended[key] {
		b.mu.Unlock()
		return
	}
	if last := b.lastPercent[key]; p.Percent >= 0 && p.Percent < last {
		p.Percent = last
	}
	if p.Percent >= 0 {
		b.lastPercent[key] = p.Percent
	}
	if isTerminal(p.Phase) {
		b.ended[key] = true
	}
	handlers := make([]func(model.Progress), 0, len(b.progress[key]))
	for _, fn := range b.progress[key] {
		handlers = append(handlers, fn)
	}
	b.mu.Unlock()

	for _, fn := range handlers {
		fn(p)
	}
}

func (b *Bus) publishRegistryUpdated(cat model.Category) {
	b.mu.Lock()
	handlers := make([]func(model.Category), 0, len(b.registry))
	for _, fn := range b.registry {
		handlers = append(handlers, fn)
	}
	b.mu.Unlock()

	for _, fn := range handlers {
		fn(cat)
	}
}
