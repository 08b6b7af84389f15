package rules

import (
	"reflect"
	"sort"
	"sync"
)

// WatcherScope defines the scope of a watcher's tracking.
type WatcherScope int

const (
	// WatcherScopeGame tracks events for the entire game.
	WatcherScopeGame WatcherScope = iota
	// WatcherScopePlayer tracks events for a specific player.
	WatcherScopePlayer
	// WatcherScopeCard tracks events for a specific permanent.
	WatcherScopeCard
)

func (ws WatcherScope) String() string {
	switch ws {
	case WatcherScopeGame:
		return "GAME"
	case WatcherScopePlayer:
		return "PLAYER"
	case WatcherScopeCard:
		return "CARD"
	default:
		return "UNKNOWN"
	}
}

// Watcher observes events and records facts that later rules decisions query,
// such as which creatures dealt first-strike damage this combat.
type Watcher interface {
	Watch(event Event)

	// Reset clears recorded state. Called at the end of combat.
	Reset()

	ConditionMet() bool
	GetScope() WatcherScope

	// GetKey returns a unique key for this watcher instance. Player and card
	// scoped watchers are prefixed with the owning ID.
	GetKey() string

	Copy() Watcher
}

// BaseWatcher provides the bookkeeping shared by all watchers.
type BaseWatcher struct {
	scope        WatcherScope
	controllerID string
	sourceID     string
	condition    bool
	key          string
}

// NewBaseWatcher creates a new base watcher with the specified scope.
func NewBaseWatcher(scope WatcherScope) *BaseWatcher {
	return &BaseWatcher{scope: scope}
}

func (bw *BaseWatcher) GetScope() WatcherScope { return bw.scope }
func (bw *BaseWatcher) SetControllerID(id string) { bw.controllerID = id }
func (bw *BaseWatcher) GetControllerID() string { return bw.controllerID }
func (bw *BaseWatcher) SetSourceID(id string) { bw.sourceID = id }
func (bw *BaseWatcher) GetSourceID() string { return bw.sourceID }
func (bw *BaseWatcher) ConditionMet() bool { return bw.condition }
func (bw *BaseWatcher) SetCondition(condition bool) { bw.condition = condition }
func (bw *BaseWatcher) Reset() { bw.condition = false }
func (bw *BaseWatcher) GetKey() string { return bw.key }
func (bw *BaseWatcher) SetKey(key string) { bw.key = key }

// Clone copies the base fields into a fresh BaseWatcher.
func (bw *BaseWatcher) Clone() *BaseWatcher {
	c := *bw
	return &c
}

// WatcherRegistry manages the watchers of a single game.
type WatcherRegistry struct {
	mu       sync.RWMutex
	watchers map[string]Watcher
}

// NewWatcherRegistry creates a new watcher registry.
func NewWatcherRegistry() *WatcherRegistry {
	return &WatcherRegistry{
		watchers: make(map[string]Watcher),
	}
}

// AddWatcher adds a watcher to the registry. A watcher without a key gets
// one derived from its type and scope owner. Re-adding a key replaces the
// previous watcher.
func (wr *WatcherRegistry) AddWatcher(watcher Watcher) {
	if watcher == nil {
		return
	}

	wr.mu.Lock()
	defer wr.mu.Unlock()

	key := watcher.GetKey()
	if key == "" {
		key = generateKey(watcher)
		if setter, ok := watcher.(interface{ SetKey(string) }); ok {
			setter.SetKey(key)
		}
	}
	wr.watchers[key] = watcher
}

// RemoveWatcher removes a watcher from the registry.
func (wr *WatcherRegistry) RemoveWatcher(key string) {
	wr.mu.Lock()
	defer wr.mu.Unlock()
	delete(wr.watchers, key)
}

// GetWatcher retrieves a watcher by key, or nil.
func (wr *WatcherRegistry) GetWatcher(key string) Watcher {
	wr.mu.RLock()
	defer wr.mu.RUnlock()
	return wr.watchers[key]
}

// GetWatchersByScope returns all watchers for a given scope, ordered by key.
func (wr *WatcherRegistry) GetWatchersByScope(scope WatcherScope) []Watcher {
	wr.mu.RLock()
	defer wr.mu.RUnlock()
	result := make([]Watcher, 0)
	for _, key := range wr.sortedKeys() {
		if w := wr.watchers[key]; w.GetScope() == scope {
			result = append(result, w)
		}
	}
	return result
}

// ResetWatchers resets all watchers.
func (wr *WatcherRegistry) ResetWatchers() {
	wr.mu.RLock()
	defer wr.mu.RUnlock()
	for _, watcher := range wr.watchers {
		watcher.Reset()
	}
}

// NotifyWatchers delivers an event to every watcher; each filters internally.
func (wr *WatcherRegistry) NotifyWatchers(event Event) {
	wr.mu.RLock()
	defer wr.mu.RUnlock()
	for _, key := range wr.sortedKeys() {
		wr.watchers[key].Watch(event)
	}
}

// Copy returns a registry holding deep copies of every watcher.
func (wr *WatcherRegistry) Copy() *WatcherRegistry {
	wr.mu.RLock()
	defer wr.mu.RUnlock()
	out := NewWatcherRegistry()
	for key, w := range wr.watchers {
		out.watchers[key] = w.Copy()
	}
	return out
}

func (wr *WatcherRegistry) sortedKeys() []string {
	keys := make([]string, 0, len(wr.watchers))
	for key := range wr.watchers {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func generateKey(watcher Watcher) string {
	typeName := watcherTypeName(watcher)
	switch watcher.GetScope() {
	case WatcherScopePlayer:
		if getter, ok := watcher.(interface{ GetControllerID() string }); ok {
			if id := getter.GetControllerID(); id != "" {
				return id + "_" + typeName
			}
		}
	case WatcherScopeCard:
		if getter, ok := watcher.(interface{ GetSourceID() string }); ok {
			if id := getter.GetSourceID(); id != "" {
				return id + "_" + typeName
			}
		}
	}
	return typeName
}

func watcherTypeName(watcher Watcher) string {
	t := reflect.TypeOf(watcher)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name()
}
