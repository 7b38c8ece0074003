package sqlite

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sakif/snuffspec/internal/auth"
	"github.com/sakif/snuffspec/internal/model"
)

// testClock is a settable clock. Each call advances it by step so rows
// created back to back still sort by created_at.
type testClock struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.t
	c.t = c.t.Add(c.step)
	return now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// captureDelivery records the last code sent to each email.
type captureDelivery struct {
	mu    sync.Mutex
	codes map[string]string
	sends int
}

func (d *captureDelivery) DeliverCode(_ context.Context, email, code string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.codes == nil {
		d.codes = make(map[string]string)
	}
	d.codes[email] = code
	d.sends++
	return nil
}

func (d *captureDelivery) code(email string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.codes[email]
}

// newTestDB returns a fresh in-memory database. Each test gets its own.
func newTestDB(t *testing.T, opts ...Option) *DB {
	t.Helper()
	opts = append([]Option{WithCodeHasher(auth.NewCodeHasherForTest(4))}, opts...)
	db, err := New(":memory:", opts...)
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// createTestIdentity creates an identity and fails the test if it errors.
func createTestIdentity(t *testing.T, db *DB, email string) *model.Identity {
	t.Helper()
	identity, err := db.CreateIdentity(context.Background(), email, "")
	if err != nil {
		t.Fatalf("failed to create test identity: %v", err)
	}
	return identity
}
