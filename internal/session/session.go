/*
 * MIT License
 *
 * Copyright (c) 2026 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

// Package session implements the bonus session store: an opaque id mapped to a
// string-keyed attribute bag, evicted on TTL. The store does no locking of its
// own. The webservd command creates it and calls Sweep from its main loop on a
// one-minute ticker; no request handler reads or writes it.
package session

import (
	"time"

	"github.com/google/uuid"
)

// Bag is a string-keyed attribute bag attached to one session.
type Bag map[string]string

type entry struct {
	bag      Bag
	deadline time.Time
}

// Store is a TTL-evicted map from session id to attribute bag. Zero value is not
// usable; construct with New.
type Store struct {
	ttl     time.Duration
	entries map[string]*entry
}

// New creates a Store whose sessions expire ttl after their last touch.
func New(ttl time.Duration) *Store {
	return &Store{
		ttl:     ttl,
		entries: make(map[string]*entry),
	}
}

// Create allocates a new session id and an empty attribute bag, and returns the id.
func (s *Store) Create() string {
	id := uuid.NewString()
	s.entries[id] = &entry{
		bag:      make(Bag),
		deadline: time.Now().Add(s.ttl),
	}
	return id
}

// Get returns the attribute bag for id, refreshing its TTL, or ok=false if the id
// is unknown or expired.
func (s *Store) Get(id string) (Bag, bool) {
	e, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	if time.Now().After(e.deadline) {
		delete(s.entries, id)
		return nil, false
	}
	e.deadline = time.Now().Add(s.ttl)
	return e.bag, true
}

// Touch refreshes id's TTL without returning its bag. No-op if id is unknown.
func (s *Store) Touch(id string) {
	if e, ok := s.entries[id]; ok {
		e.deadline = time.Now().Add(s.ttl)
	}
}

// Delete removes a session immediately, regardless of TTL.
func (s *Store) Delete(id string) {
	delete(s.entries, id)
}

// Len reports the number of sessions currently held, expired or not.
func (s *Store) Len() int {
	return len(s.entries)
}

// Sweep removes every session whose TTL has elapsed, so expired sessions don't
// linger until the next Get. The webservd command calls it on its own ticker,
// separate from the reactor's idle-connection reap.
func (s *Store) Sweep(now time.Time) (evicted int) {
	for id, e := range s.entries {
		if now.After(e.deadline) {
			delete(s.entries, id)
			evicted++
		}
	}
	return evicted
}
