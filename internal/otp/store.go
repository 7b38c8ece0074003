package otp

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/sakif/snuffspec/internal/apperror"
)

// FlowTTL is how long an idle sign-in flow is kept.
const FlowTTL = 15 * time.Minute

// Flow is what the server keeps for one browser between sign-in requests.
type Flow struct {
	Snapshot Snapshot `json:"snapshot"`

	// ReturnTo is where to send the browser once signed in.
	ReturnTo string `json:"returnTo,omitempty"`
}

// FlowStore persists flows under an opaque id held in a cookie.
// Load returns apperror.ErrNotFound for unknown or expired ids.
type FlowStore interface {
	Load(ctx context.Context, id string) (*Flow, error)
	Save(ctx context.Context, id string, flow *Flow) error
	Delete(ctx context.Context, id string) error
}

// MemoryStore keeps flows in process. Flows are lost on restart and are
// not shared between instances; use RedisStore for that.
type MemoryStore struct {
	flows *expirable.LRU[string, Flow]
}

var _ FlowStore = (*MemoryStore)(nil)

// NewMemoryStore holds up to size flows, each for ttl after its last save.
func NewMemoryStore(size int, ttl time.Duration) *MemoryStore {
	return &MemoryStore{flows: expirable.NewLRU[string, Flow](size, nil, ttl)}
}

func (s *MemoryStore) Load(_ context.Context, id string) (*Flow, error) {
	flow, ok := s.flows.Get(id)
	if !ok {
		return nil, apperror.NotFound("sign-in flow", id)
	}
	return &flow, nil
}

func (s *MemoryStore) Save(_ context.Context, id string, flow *Flow) error {
	s.flows.Add(id, *flow)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.flows.Remove(id)
	return nil
}
