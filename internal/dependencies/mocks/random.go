package mocks

import (
	"fmt"
	"sync"

	"github.com/apexfest/checkin/internal/dependencies/random"
)

// MockRandom is a mock implementation of Random for testing.
// Queued values are returned first; afterwards UUID falls back to a
// deterministic sequence whose 4- and 8-character prefixes are all distinct.
type MockRandom struct {
	mu sync.Mutex

	// UUIDResults is a queue of results to return from UUID
	UUIDResults []string
	uuidIndex   int
	generated   int

	nonces int

	// NonceResults is a queue of results to return from Nonce
	NonceResults []string
	nonceIndex   int
}

// Ensure MockRandom implements Random
var _ random.Random = (*MockRandom)(nil)

// NewMockRandom creates a new MockRandom
func NewMockRandom() *MockRandom {
	return &MockRandom{}
}

// UUID returns the next queued result, or the next value of the fallback sequence
func (r *MockRandom) UUID() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.uuidIndex < len(r.UUIDResults) {
		result := r.UUIDResults[r.uuidIndex]
		r.uuidIndex++
		return result
	}
	r.generated++
	return fmt.Sprintf("%04x%04x-0000-4000-8000-%012x", r.generated, r.generated, r.generated)
}

// Nonce returns the next queued result, or a distinct counter-based value of the right length
func (r *MockRandom) Nonce(n int) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.nonceIndex < len(r.NonceResults) {
		result := r.NonceResults[r.nonceIndex]
		r.nonceIndex++
		return result
	}
	r.nonces++
	return fmt.Sprintf("%0*x", n*2, r.nonces)
}

// QueueUUID adds values to the UUID result queue
func (r *MockRandom) QueueUUID(values ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.UUIDResults = append(r.UUIDResults, values...)
}

// QueueNonce adds values to the Nonce result queue
func (r *MockRandom) QueueNonce(values ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.NonceResults = append(r.NonceResults, values...)
}

// Reset clears all queued results
func (r *MockRandom) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.UUIDResults = nil
	r.uuidIndex = 0
	r.generated = 0
	r.NonceResults = nil
	r.nonceIndex = 0
	r.nonces = 0
}
