package service

import (
	"context"
	"reflect"
	"sync"

	"github.com/docuforge/docuforge/common/bus"
	"github.com/docuforge/docuforge/common/errdomain"
	"github.com/docuforge/docuforge/common/kvstore"
	"github.com/docuforge/docuforge/common/logger"
	"github.com/docuforge/docuforge/common/models"
)

const settingsKey = "settings"

// Keys mirrored to the key-value plane on change. Everything else is
// session-local.
var persistedStateKeys = map[string]bool{
	"compressionLevel":     true,
	"imageQuality":         true,
	"targetSize":           true,
	"optimizationStrategy": true,
	"serverProcessing":     true,
	"processingMode":       true,
	"theme":                true,
	"language":             true,
	"notifications":        true,
}

// Tiers allowed to switch into bulk processing mode.
var bulkCapableTiers = map[string]bool{
	"pro":     true,
	"premium": true,
}

// StateListener observes one key, or every key when subscribed to "*".
type StateListener func(key string, value, oldValue any)

// AppState is the observable settings and session bag. Reads and writes
// are keyed; writes to an unchanged value are dropped before any listener
// or persistence work happens.
type AppState struct {
	kv  kvstore.Store
	bus *bus.Bus
	log *logger.Logger

	mu        sync.Mutex
	values    map[string]any
	listeners map[string]map[int]StateListener
	nextSub   int
}

// NewAppState creates the state bag with defaults applied.
func NewAppState(kv kvstore.Store, b *bus.Bus, log *logger.Logger) *AppState {
	return &AppState{
		kv:        kv,
		bus:       b,
		log:       log.WithService("AppState"),
		values:    defaultState(),
		listeners: make(map[string]map[int]StateListener),
	}
}

func defaultState() map[string]any {
	return map[string]any{
		"compressionLevel":     "medium",
		"imageQuality":         80,
		"targetSize":           "",
		"optimizationStrategy": "balanced",
		"serverProcessing":     false,
		"processingMode":       "single",
		"theme":                "light",
		"language":             "en",
		"notifications":        true,
		"userTier":             "free",
		"isAuthenticated":      false,
	}
}

// Init loads persisted settings over the defaults.
func (s *AppState) Init(ctx context.Context) error {
	var saved map[string]any
	found, err := s.kv.Get(ctx, settingsKey, &saved)
	if err != nil {
		s.log.Warn("loading persisted settings failed, using defaults", "error", err)
		return nil
	}
	if !found {
		return nil
	}

	s.mu.Lock()
	for k, v := range saved {
		if persistedStateKeys[k] {
			s.values[k] = v
		}
	}
	s.mu.Unlock()

	s.log.Info("persisted settings restored", "keys", len(saved))
	return nil
}

// Get returns the current value for a key, or nil when unset.
func (s *AppState) Get(key string) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[key]
}

// Snapshot returns a copy of the whole bag.
func (s *AppState) Snapshot() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Set writes one key. Equal values are a no-op: no listeners fire and
// nothing is persisted.
func (s *AppState) Set(ctx context.Context, key string, value any) error {
	return s.Update(ctx, map[string]any{key: value})
}

// Update applies several keys at once. Persistence runs once per call
// even when multiple persisted keys changed.
func (s *AppState) Update(ctx context.Context, changes map[string]any) error {
	type change struct {
		key      string
		value    any
		oldValue any
	}

	s.mu.Lock()
	var applied []change
	persist := false
	for key, value := range changes {
		old := s.values[key]
		if reflect.DeepEqual(old, value) {
			continue
		}
		s.values[key] = value
		applied = append(applied, change{key: key, value: value, oldValue: old})
		if persistedStateKeys[key] {
			persist = true
		}
	}
	var snapshot map[string]any
	if persist {
		snapshot = make(map[string]any, len(persistedStateKeys))
		for k := range persistedStateKeys {
			snapshot[k] = s.values[k]
		}
	}
	s.mu.Unlock()

	if len(applied) == 0 {
		return nil
	}

	for _, ch := range applied {
		s.notify(ctx, ch.key, ch.value, ch.oldValue)
	}

	if persist {
		if err := s.kv.Put(ctx, settingsKey, snapshot, nil); err != nil {
			return errdomain.Wrap(errdomain.KindFile, "persist settings", err)
		}
	}
	return nil
}

// SetProcessingMode switches between single and bulk mode. Bulk is gated
// on the user's tier.
func (s *AppState) SetProcessingMode(ctx context.Context, mode string) error {
	switch mode {
	case "single":
	case "bulk":
		tier, _ := s.Get("userTier").(string)
		if !bulkCapableTiers[tier] {
			return errdomain.ErrUpgradeRequired
		}
	default:
		return errdomain.Newf(errdomain.KindValidation, "unknown processing mode %q", mode)
	}
	return s.Set(ctx, "processingMode", mode)
}

// Subscribe registers a listener for one key, or for every change when
// key is "*". The returned function removes the listener.
func (s *AppState) Subscribe(key string, fn StateListener) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	if s.listeners[key] == nil {
		s.listeners[key] = make(map[int]StateListener)
	}
	s.listeners[key][id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners[key], id)
		s.mu.Unlock()
	}
}

// notify fires key-scoped listeners first, then wildcard listeners, then
// mirrors the change onto the bus.
func (s *AppState) notify(ctx context.Context, key string, value, oldValue any) {
	s.mu.Lock()
	var fns []StateListener
	for _, fn := range s.listeners[key] {
		fns = append(fns, fn)
	}
	for _, fn := range s.listeners["*"] {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(key, value, oldValue)
	}

	_ = s.bus.Publish(ctx, models.TopicStateChanged, models.StateChangedEvent{
		Key:       key,
		Value:     value,
		OldValue:  oldValue,
		Timestamp: models.NowMillis(),
	})
}
