package sketch

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Well-known counter names.
const (
	DailyUsers  = "daily-users"
	WeeklyRepos = "weekly-repos"
)

var (
	ErrUnknownCounter   = errors.New("unknown counter")
	ErrInvalidCounter   = errors.New("invalid counter definition")
	ErrFrequencyMissing = errors.New("frequency table not configured")
)

// CounterConfig names one cardinality counter and its precision.
type CounterConfig struct {
	Name      string
	Precision int
}

// FrequencyConfig sizes the optional Count-Min frequency table.
// A zero Width disables it.
type FrequencyConfig struct {
	Width int
	Depth int
}

type RegistryConfig struct {
	Counters  []CounterConfig
	Frequency FrequencyConfig
}

// DefaultRegistryConfig tracks users and repositories at p=14.
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		Counters: []CounterConfig{
			{Name: DailyUsers, Precision: 14},
			{Name: WeeklyRepos, Precision: 14},
		},
	}
}

type counter struct {
	mu  sync.RWMutex
	hll *HyperLogLog
}

// Registry owns a fixed set of named, independently sized sketches.
// It is safe for concurrent use; writers to the same counter are serialised.
type Registry struct {
	counters map[string]*counter
	names    []string

	freqMu sync.RWMutex
	freq   *CountMinSketch
}

// NewRegistry builds every counter up front. Any invalid definition fails the
// whole registry.
func NewRegistry(cfg RegistryConfig) (*Registry, error) {
	r := &Registry{
		counters: make(map[string]*counter, len(cfg.Counters)),
	}

	for _, c := range cfg.Counters {
		if c.Name == "" {
			return nil, fmt.Errorf("%w: empty counter name", ErrInvalidCounter)
		}
		if _, dup := r.counters[c.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate counter %q", ErrInvalidCounter, c.Name)
		}

		hll, err := NewHyperLogLog(c.Precision)
		if err != nil {
			return nil, fmt.Errorf("counter %q: %w", c.Name, err)
		}
		r.counters[c.Name] = &counter{hll: hll}
		r.names = append(r.names, c.Name)
	}
	sort.Strings(r.names)

	if cfg.Frequency.Width > 0 {
		cms, err := NewCountMinSketch(cfg.Frequency.Width, cfg.Frequency.Depth)
		if err != nil {
			return nil, fmt.Errorf("frequency table: %w", err)
		}
		r.freq = cms
	}

	return r, nil
}

// Track adds value to the named counter. Empty values are ignored.
func (r *Registry) Track(name, value string) error {
	c, ok := r.counters[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCounter, name)
	}
	if value == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.hll.Add(value)
	return nil
}

func (r *Registry) TrackUser(login string) error {
	return r.Track(DailyUsers, login)
}

func (r *Registry) TrackRepo(name string) error {
	return r.Track(WeeklyRepos, name)
}

func (r *Registry) Estimate(name string) (float64, error) {
	c, ok := r.counters[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownCounter, name)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hll.Estimate(), nil
}

// MemoryUsageBytes sums the register memory of every cardinality counter.
// The frequency table is not included.
func (r *Registry) MemoryUsageBytes() int64 {
	var total int64
	for _, c := range r.counters {
		total += c.hll.MemoryUsageBytes()
	}
	return total
}

// Counters returns the counter names in sorted order.
func (r *Registry) Counters() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

func (r *Registry) Has(name string) bool {
	_, ok := r.counters[name]
	return ok
}

// AddFrequency counts one occurrence of key in the frequency table.
// It is a no-op when the table is not configured or key is empty.
func (r *Registry) AddFrequency(key string) {
	if r.freq == nil || key == "" {
		return
	}

	r.freqMu.Lock()
	defer r.freqMu.Unlock()
	r.freq.Add(key, 1)
}

func (r *Registry) Frequency(key string) (int64, error) {
	if r.freq == nil {
		return 0, ErrFrequencyMissing
	}

	r.freqMu.RLock()
	defer r.freqMu.RUnlock()
	return r.freq.Query(key), nil
}

// Estimate is a point-in-time reading of one counter.
type Estimate struct {
	Counter     string
	Value       float64
	Precision   int
	MemoryBytes int64
}

// Snapshot reads every counter, sorted by name.
func (r *Registry) Snapshot() []Estimate {
	out := make([]Estimate, 0, len(r.names))
	for _, name := range r.names {
		c := r.counters[name]
		c.mu.RLock()
		out = append(out, Estimate{
			Counter:     name,
			Value:       c.hll.Estimate(),
			Precision:   c.hll.Precision(),
			MemoryBytes: c.hll.MemoryUsageBytes(),
		})
		c.mu.RUnlock()
	}
	return out
}

// Stats summarises the registry for periodic logging.
type Stats struct {
	Counters    int
	MemoryBytes int64
	TotalEvents int64
}

func (r *Registry) GetStats() Stats {
	s := Stats{
		Counters:    len(r.counters),
		MemoryBytes: r.MemoryUsageBytes(),
	}
	if r.freq != nil {
		r.freqMu.RLock()
		s.TotalEvents = r.freq.TotalCount()
		r.freqMu.RUnlock()
	}
	return s
}
