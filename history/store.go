package history

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"neurodash-agent/models"
)

// ErrUnknownChannel is returned for a channel that was never registered.
var ErrUnknownChannel = errors.New("unknown history channel")

// Store holds one ring per named scalar channel, all with the same
// capacity. Writers and readers may run on different goroutines; every
// read-out is a copy taken under the read lock.
type Store struct {
	mu       sync.RWMutex
	capacity int
	series   map[string]*Ring[models.Point]
}

// NewStore creates a store with the given per-channel capacity and
// registers the listed channels.
func NewStore(capacity int, channels ...string) (*Store, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("history capacity must be positive, got %d", capacity)
	}
	s := &Store{
		capacity: capacity,
		series:   make(map[string]*Ring[models.Point], len(channels)),
	}
	for _, ch := range channels {
		if err := s.Register(ch); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Register adds an empty channel. Registering an existing channel is a
// no-op.
func (s *Store) Register(channel string) error {
	if channel == "" {
		return errors.New("history channel name must not be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.series[channel]; ok {
		return nil
	}
	ring, err := New[models.Point](s.capacity)
	if err != nil {
		return err
	}
	s.series[channel] = ring
	return nil
}

// Push appends one point to a channel.
func (s *Store) Push(channel string, p models.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ring, ok := s.series[channel]
	if !ok {
		return fmt.Errorf("push %q: %w", channel, ErrUnknownChannel)
	}
	ring.Push(p)
	return nil
}

// Append pushes one point per channel, all stamped with ts, under a
// single lock. Either every value is applied or none is.
func (s *Store) Append(ts time.Time, values map[string]float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range values {
		if _, ok := s.series[ch]; !ok {
			return fmt.Errorf("append %q: %w", ch, ErrUnknownChannel)
		}
	}
	for ch, v := range values {
		s.series[ch].Push(models.Point{Timestamp: ts, Value: v})
	}
	return nil
}

// ReadAll returns the channel's points, oldest first.
func (s *Store) ReadAll(channel string) ([]models.Point, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ring, ok := s.series[channel]
	if !ok {
		return nil, fmt.Errorf("read %q: %w", channel, ErrUnknownChannel)
	}
	return ring.GetAll(), nil
}

// Snapshot copies every channel in one critical section, so all
// read-outs reflect the same set of appends.
func (s *Store) Snapshot() map[string][]models.Point {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]models.Point, len(s.series))
	for ch, ring := range s.series {
		out[ch] = ring.GetAll()
	}
	return out
}

// Channels returns the registered channel names in sorted order.
func (s *Store) Channels() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.series))
	for ch := range s.series {
		names = append(names, ch)
	}
	sort.Strings(names)
	return names
}

func (s *Store) Capacity() int { return s.capacity }
