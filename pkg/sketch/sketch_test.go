package sketch

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestNewRegistryValidation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     RegistryConfig
		wantErr error
	}{
		{"default", DefaultRegistryConfig(), nil},
		{"low precision", RegistryConfig{Counters: []CounterConfig{{Name: "a", Precision: 3}}}, ErrInvalidPrecision},
		{"high precision", RegistryConfig{Counters: []CounterConfig{{Name: "a", Precision: 17}}}, ErrInvalidPrecision},
		{"one bad counter", RegistryConfig{Counters: []CounterConfig{{Name: "a", Precision: 10}, {Name: "b", Precision: 17}}}, ErrInvalidPrecision},
		{"empty name", RegistryConfig{Counters: []CounterConfig{{Precision: 10}}}, ErrInvalidCounter},
		{"duplicate", RegistryConfig{Counters: []CounterConfig{{Name: "a", Precision: 10}, {Name: "a", Precision: 12}}}, ErrInvalidCounter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewRegistry(tt.cfg)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if r != nil {
				t.Fatal("expected no registry on error")
			}
		})
	}
}

func TestRegistryTrackAndEstimate(t *testing.T) {
	r, err := NewRegistry(DefaultRegistryConfig())
	if err != nil {
		t.Fatal(err)
	}

	for _, login := range []string{"alice", "bob", "alice", ""} {
		if err := r.TrackUser(login); err != nil {
			t.Fatalf("TrackUser(%q): %v", login, err)
		}
	}
	if err := r.TrackRepo("octo/repo"); err != nil {
		t.Fatal(err)
	}

	users, err := r.Estimate(DailyUsers)
	if err != nil {
		t.Fatal(err)
	}
	if users != 2 {
		t.Errorf("expected 2 users, got %v", users)
	}

	repos, _ := r.Estimate(WeeklyRepos)
	if repos != 1 {
		t.Errorf("expected 1 repo, got %v", repos)
	}
}

func TestRegistryUnknownCounter(t *testing.T) {
	r, _ := NewRegistry(DefaultRegistryConfig())

	if err := r.Track("monthly-orgs", "x"); !errors.Is(err, ErrUnknownCounter) {
		t.Errorf("Track: expected ErrUnknownCounter, got %v", err)
	}
	if _, err := r.Estimate("monthly-orgs"); !errors.Is(err, ErrUnknownCounter) {
		t.Errorf("Estimate: expected ErrUnknownCounter, got %v", err)
	}
}

func TestRegistryMemoryUsage(t *testing.T) {
	r, err := NewRegistry(RegistryConfig{
		Counters: []CounterConfig{
			{Name: "small", Precision: 10},
			{Name: "large", Precision: 12},
		},
		Frequency: FrequencyConfig{Width: 128, Depth: 4},
	})
	if err != nil {
		t.Fatal(err)
	}

	if got := r.MemoryUsageBytes(); got != 5120 {
		t.Fatalf("expected 5120 bytes, got %d", got)
	}

	for i := 0; i < 10_000; i++ {
		r.Track("small", fmt.Sprintf("s-%d", i))
		r.Track("large", fmt.Sprintf("l-%d", i))
		r.AddFrequency("PushEvent")
	}

	if got := r.MemoryUsageBytes(); got != 5120 {
		t.Errorf("memory changed after tracking: %d", got)
	}
}

func TestRegistryCountersIndependent(t *testing.T) {
	r, _ := NewRegistry(RegistryConfig{Counters: []CounterConfig{
		{Name: "a", Precision: 12},
		{Name: "b", Precision: 12},
	}})

	for i := 0; i < 100; i++ {
		r.Track("a", fmt.Sprintf("v-%d", i))
	}

	if est, _ := r.Estimate("b"); est != 0 {
		t.Errorf("counter b affected by writes to a: %v", est)
	}
	if got := r.Counters(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("unexpected counters %v", got)
	}
}

func TestRegistryFrequency(t *testing.T) {
	r, _ := NewRegistry(DefaultRegistryConfig())
	if _, err := r.Frequency("PushEvent"); !errors.Is(err, ErrFrequencyMissing) {
		t.Fatalf("expected ErrFrequencyMissing, got %v", err)
	}

	r, _ = NewRegistry(RegistryConfig{
		Counters:  []CounterConfig{{Name: "a", Precision: 10}},
		Frequency: FrequencyConfig{Width: 1024, Depth: 4},
	})
	for i := 0; i < 30; i++ {
		r.AddFrequency("PushEvent")
	}
	r.AddFrequency("WatchEvent")
	r.AddFrequency("")

	push, _ := r.Frequency("PushEvent")
	if push < 30 {
		t.Errorf("count-min undercounted PushEvent: %d", push)
	}
	if stats := r.GetStats(); stats.TotalEvents != 31 {
		t.Errorf("expected 31 events, got %d", stats.TotalEvents)
	}
}

func TestRegistryConcurrentWriters(t *testing.T) {
	serial, _ := NewRegistry(DefaultRegistryConfig())
	parallel, _ := NewRegistry(DefaultRegistryConfig())

	const workers, perWorker = 8, 2_000
	for w := 0; w < workers; w++ {
		for i := 0; i < perWorker; i++ {
			serial.TrackUser(fmt.Sprintf("w%d-%d", w, i))
		}
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				parallel.TrackUser(fmt.Sprintf("w%d-%d", w, i))
			}
		}(w)
	}
	wg.Wait()

	a, _ := serial.Estimate(DailyUsers)
	b, _ := parallel.Estimate(DailyUsers)
	if a != b {
		t.Errorf("concurrent writers lost updates: serial=%v parallel=%v", a, b)
	}
}

func TestRegistrySnapshot(t *testing.T) {
	r, _ := NewRegistry(DefaultRegistryConfig())
	r.TrackUser("alice")

	snap := r.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 estimates, got %d", len(snap))
	}
	if snap[0].Counter != DailyUsers || snap[0].Value != 1 || snap[0].MemoryBytes != 1<<14 {
		t.Errorf("unexpected snapshot entry %+v", snap[0])
	}
	if snap[1].Counter != WeeklyRepos || snap[1].Value != 0 {
		t.Errorf("unexpected snapshot entry %+v", snap[1])
	}
}
