package counters

import (
	"sort"
	"strconv"
	"strings"

	"github.com/magefree/mage-combat-go/internal/game/saturate"
)

// CounterType names a kind of counter.
type CounterType string

const (
	CounterTypeLoyalty CounterType = "loyalty"
	CounterTypeDefense CounterType = "defense"

	// Power/toughness boost counters
	CounterTypeP1P1 CounterType = "+1/+1"
	CounterTypeM1M1 CounterType = "-1/-1"
	CounterTypeP2P2 CounterType = "+2/+2"
	CounterTypeM2M2 CounterType = "-2/-2"
	CounterTypeP1P0 CounterType = "+1/+0"
	CounterTypeP0P1 CounterType = "+0/+1"
)

func (ct CounterType) String() string {
	return string(ct)
}

// Counter represents a counter on a permanent.
type Counter struct {
	Name  string
	Count int
}

// NewCounter creates a new counter with the given name and count.
func NewCounter(name string, count int) *Counter {
	if count <= 0 {
		count = 1
	}
	return &Counter{
		Name:  name,
		Count: count,
	}
}

// Add adds the specified amount to the counter.
func (c *Counter) Add(amount int) {
	if amount > 0 {
		c.Count = saturate.Add(c.Count, amount)
	}
}

// Remove removes the specified amount from the counter.
// Will not allow count to go below 0.
func (c *Counter) Remove(amount int) {
	if amount > 0 {
		c.Count = max(c.Count-amount, 0)
	}
}

func (c *Counter) Copy() *Counter {
	return &Counter{
		Name:  c.Name,
		Count: c.Count,
	}
}

// Counters manages a collection of counters.
type Counters struct {
	Counters map[string]*Counter
}

// NewCounters creates a new Counters collection.
func NewCounters() *Counters {
	return &Counters{
		Counters: make(map[string]*Counter),
	}
}

// AddCounter adds a counter to the collection.
// If a counter with the same name already exists, adds to its count.
func (cs *Counters) AddCounter(counter *Counter) {
	if counter == nil {
		return
	}
	if existing, ok := cs.Counters[counter.Name]; ok {
		existing.Add(counter.Count)
	} else {
		cs.Counters[counter.Name] = counter.Copy()
	}
}

// Add adds amount counters of the given type.
func (cs *Counters) Add(ct CounterType, amount int) {
	if amount <= 0 {
		return
	}
	cs.AddCounter(NewCounter(string(ct), amount))
}

// RemoveCounter removes up to amount counters of the given name and returns
// how many were actually removed.
func (cs *Counters) RemoveCounter(name string, amount int) int {
	if amount <= 0 {
		return 0
	}
	counter, ok := cs.Counters[name]
	if !ok {
		return 0
	}
	removed := min(amount, counter.Count)
	counter.Remove(amount)
	if counter.Count == 0 {
		delete(cs.Counters, name)
	}
	return removed
}

// GetCount returns the count of counters with the given name.
func (cs *Counters) GetCount(name string) int {
	if counter, ok := cs.Counters[name]; ok {
		return counter.Count
	}
	return 0
}

// Count returns the count of counters of the given type.
func (cs *Counters) Count(ct CounterType) int {
	return cs.GetCount(string(ct))
}

// Boost sums the power/toughness deltas of every boost counter ("+1/+1", "-2/-2", ...).
func (cs *Counters) Boost() (power, toughness int) {
	for _, counter := range cs.Counters {
		p, t, ok := ParseBoost(counter.Name)
		if !ok {
			continue
		}
		power = saturate.Add(power, saturate.Mul(p, counter.Count))
		toughness = saturate.Add(toughness, saturate.Mul(t, counter.Count))
	}
	return power, toughness
}

// ParseBoost parses a boost counter name such as "+1/+1" into its deltas.
func ParseBoost(name string) (power, toughness int, ok bool) {
	p, t, found := strings.Cut(name, "/")
	if !found {
		return 0, 0, false
	}
	power, err := strconv.Atoi(p)
	if err != nil {
		return 0, 0, false
	}
	toughness, err = strconv.Atoi(t)
	if err != nil {
		return 0, 0, false
	}
	return power, toughness, true
}

// Copy creates a deep copy of the Counters collection.
func (cs *Counters) Copy() *Counters {
	out := NewCounters()
	for name, counter := range cs.Counters {
		out.Counters[name] = counter.Copy()
	}
	return out
}

// ToView converts counters to the view format, ordered by name.
func (cs *Counters) ToView() []CounterView {
	views := make([]CounterView, 0, len(cs.Counters))
	for name, counter := range cs.Counters {
		views = append(views, CounterView{Name: name, Count: counter.Count})
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Name < views[j].Name })
	return views
}

// CounterView represents a counter in the view format.
type CounterView struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}
