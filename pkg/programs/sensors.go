// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package programs

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/Thermoquad/hmtlnode/pkg/hmtl"
)

// SensorValue is the latest reading of one sensor type
type SensorValue struct {
	Type  uint8
	Value uint16
	Data  []byte
	At    time.Time
}

// SensorStore keeps the latest reading per sensor type
type SensorStore struct {
	mu       sync.RWMutex
	readings map[uint8]SensorValue
}

// NewSensorStore creates an empty store
func NewSensorStore() *SensorStore {
	return &SensorStore{readings: make(map[uint8]SensorValue)}
}

// Record stores a reading, replacing the previous one of the same type
func (s *SensorStore) Record(r hmtl.SensorReading, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readings[r.Type] = SensorValue{
		Type:  r.Type,
		Value: r.Uint16(),
		Data:  append([]byte(nil), r.Data...),
		At:    at,
	}
}

// Get returns the latest reading of a sensor type
func (s *SensorStore) Get(sensorType uint8) (SensorValue, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.readings[sensorType]
	return v, ok
}

// Level returns the latest level reading
func (s *SensorStore) Level() (uint16, bool) {
	v, ok := s.Get(hmtl.SensorLevel)
	return v.Value, ok
}

// Len returns the number of sensor types seen
func (s *SensorStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.readings)
}

// All returns the latest reading of every sensor type ordered by type
func (s *SensorStore) All() []SensorValue {
	s.mu.RLock()
	defer s.mu.RUnlock()
	values := make([]SensorValue, 0, len(s.readings))
	for _, v := range s.readings {
		values = append(values, v)
	}
	slices.SortFunc(values, func(a, b SensorValue) int {
		return cmp.Compare(a.Type, b.Type)
	})
	return values
}
