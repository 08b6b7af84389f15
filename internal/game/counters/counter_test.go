package counters

import (
	"testing"

	"github.com/magefree/mage-combat-go/internal/game/rules"
	"github.com/magefree/mage-combat-go/internal/game/saturate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAddRemove(t *testing.T) {
	cs := NewCounters()
	cs.Add(CounterTypeLoyalty, 4)
	cs.Add(CounterTypeLoyalty, 2)
	assert.Equal(t, 6, cs.Count(CounterTypeLoyalty))

	assert.Equal(t, 6, cs.RemoveCounter(string(CounterTypeLoyalty), 10), "removal is capped at the count")
	assert.Equal(t, 0, cs.Count(CounterTypeLoyalty))
	assert.Empty(t, cs.Counters, "empty counters are dropped")
	assert.Equal(t, 0, cs.RemoveCounter("missing", 1))
}

func TestCountersBoost(t *testing.T) {
	cs := NewCounters()
	cs.Add(CounterTypeP1P1, 3)
	cs.Add(CounterTypeM1M1, 1)
	cs.Add(CounterTypeP1P0, 2)
	cs.Add(CounterTypeDefense, 5)

	power, toughness := cs.Boost()
	assert.Equal(t, 4, power)
	assert.Equal(t, 2, toughness)
}

func TestCountersBoostSaturates(t *testing.T) {
	cs := NewCounters()
	cs.Counters["+1/+1"] = &Counter{Name: "+1/+1", Count: saturate.MaxInt}
	cs.Add(CounterTypeP2P2, 1)

	power, toughness := cs.Boost()
	assert.Equal(t, saturate.MaxInt, power)
	assert.Equal(t, saturate.MaxInt, toughness)
}

func TestParseBoost(t *testing.T) {
	p, tough, ok := ParseBoost("-2/-2")
	require.True(t, ok)
	assert.Equal(t, -2, p)
	assert.Equal(t, -2, tough)

	_, _, ok = ParseBoost("loyalty")
	assert.False(t, ok)
	_, _, ok = ParseBoost("+x/+1")
	assert.False(t, ok)
}

func TestCountersCopyIsDeep(t *testing.T) {
	cs := NewCounters()
	cs.Add(CounterTypeDefense, 3)

	clone := cs.Copy()
	cs.RemoveCounter(string(CounterTypeDefense), 1)

	assert.Equal(t, 3, clone.Count(CounterTypeDefense))
	assert.Equal(t, []CounterView{{Name: "defense", Count: 3}}, clone.ToView())
}

func TestCounterOperationsPublishEvents(t *testing.T) {
	bus := rules.NewEventBus()
	var events []rules.Event
	bus.Subscribe(func(e rules.Event) { events = append(events, e) })

	ops := NewCounterOperations(bus)
	cs := NewCounters()
	ops.AddCounters(cs, "pw1", CounterTypeLoyalty, 3, "player2")
	removed := ops.RemoveCounters(cs, "pw1", CounterTypeLoyalty, 5, "player2")

	assert.Equal(t, 3, removed)
	require.Len(t, events, 2)
	assert.Equal(t, rules.EventCounterAdded, events[0].Type)
	assert.Equal(t, rules.EventCounterRemoved, events[1].Type)
	assert.Equal(t, 3, events[1].Amount)
	assert.Equal(t, "loyalty", events[1].Data)

	assert.Equal(t, 0, ops.RemoveCounters(cs, "pw1", CounterTypeLoyalty, 1, "player2"))
	assert.Len(t, events, 2, "nothing removed, nothing published")
}
