package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sakif/snuffspec/internal/apperror"
	"github.com/sakif/snuffspec/internal/gateway"
	"github.com/sakif/snuffspec/internal/model"
	"github.com/sakif/snuffspec/internal/repository"
)

// =========================================================================
// FAKES
// =========================================================================
//
// Hand-written in-memory implementations of the repository and gateway
// interfaces. Each has error fields to simulate a failing backend.

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeProfiles implements repository.ProfileRepository.
type fakeProfiles struct {
	mu        sync.Mutex
	profiles  map[string]model.UserProfile
	createErr error
	getErr    error
	countErr  error
}

func newFakeProfiles(profiles ...model.UserProfile) *fakeProfiles {
	f := &fakeProfiles{profiles: make(map[string]model.UserProfile)}
	for _, p := range profiles {
		f.profiles[p.ID] = p
	}
	return f
}

func (f *fakeProfiles) CreateProfile(_ context.Context, p *model.UserProfile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if _, ok := f.profiles[p.ID]; ok {
		return apperror.Conflict("user profile", p.ID)
	}
	f.profiles[p.ID] = *p
	return nil
}

func (f *fakeProfiles) GetProfile(_ context.Context, id string) (*model.UserProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	p, ok := f.profiles[id]
	if !ok {
		return nil, apperror.NotFound("user profile", id)
	}
	return &p, nil
}

func (f *fakeProfiles) ListProfiles(context.Context) ([]model.UserProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.UserProfile, 0, len(f.profiles))
	for _, p := range f.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeProfiles) UpdateRole(_ context.Context, id string, role model.Role) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[id]
	if !ok {
		return apperror.NotFound("user profile", id)
	}
	p.Role = role
	f.profiles[id] = p
	return nil
}

func (f *fakeProfiles) DeleteProfile(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.profiles[id]; !ok {
		return apperror.NotFound("user profile", id)
	}
	delete(f.profiles, id)
	return nil
}

func (f *fakeProfiles) CountProfiles(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.profiles), f.countErr
}

// fakeIdentities implements gateway.IdentityAdmin.
type fakeIdentities struct {
	mu        sync.Mutex
	byID      map[string]model.Identity
	nextID    int
	createErr error
	deleted   []string
	deleteErr error
}

func newFakeIdentities(identities ...model.Identity) *fakeIdentities {
	f := &fakeIdentities{byID: make(map[string]model.Identity)}
	for _, id := range identities {
		f.byID[id.ID] = id
	}
	return f
}

func (f *fakeIdentities) CreateIdentity(_ context.Context, email, _ string) (*model.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextID++
	id := model.Identity{ID: fmt.Sprintf("id-%d", f.nextID), Email: email}
	f.byID[id.ID] = id
	return &id, nil
}

func (f *fakeIdentities) DeleteIdentity(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.byID[id]; !ok {
		return apperror.NotFound("user", id)
	}
	delete(f.byID, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeIdentities) FindIdentityByEmail(_ context.Context, email string) (*model.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range f.byID {
		if strings.EqualFold(id.Email, email) {
			return &id, nil
		}
	}
	return nil, apperror.NotFound("user", email)
}

func (f *fakeIdentities) ListIdentities(context.Context) ([]model.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Identity, 0, len(f.byID))
	for _, id := range f.byID {
		out = append(out, id)
	}
	return out, nil
}

// fakeSpecs implements repository.SpecificationRepository, including the
// id AND user_id filter on Update and Delete.
type fakeSpecs struct {
	mu      sync.Mutex
	records map[string]model.SpecificationRecord
	nextID  int
	listErr error

	// stealOnWrite reassigns the record to another user between the
	// service's ownership check and the write.
	stealOnWrite bool
}

func newFakeSpecs() *fakeSpecs {
	return &fakeSpecs{records: make(map[string]model.SpecificationRecord)}
}

func (f *fakeSpecs) Create(_ context.Context, rec *model.SpecificationRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	rec.ID = fmt.Sprintf("spec-%d", f.nextID)
	rec.CreatedAt = time.Now()
	rec.UpdatedAt = rec.CreatedAt
	f.records[rec.ID] = *rec
	return nil
}

func (f *fakeSpecs) GetByID(_ context.Context, id string) (*model.SpecificationRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return nil, apperror.NotFound("specification", id)
	}
	return &rec, nil
}

func (f *fakeSpecs) List(_ context.Context, opts repository.ListOptions) ([]model.SpecificationRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := f.filter(func(model.SpecificationRecord) bool { return true })
	if opts.Offset >= len(out) {
		return []model.SpecificationRecord{}, nil
	}
	out = out[opts.Offset:]
	if opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (f *fakeSpecs) ListByProduct(_ context.Context, productID int64) ([]model.SpecificationRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.filter(func(r model.SpecificationRecord) bool { return r.ProductID == productID }), nil
}

func (f *fakeSpecs) ListByUser(_ context.Context, userID string) ([]model.SpecificationRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.filter(func(r model.SpecificationRecord) bool { return r.UserID == userID }), nil
}

func (f *fakeSpecs) filter(keep func(model.SpecificationRecord) bool) []model.SpecificationRecord {
	out := []model.SpecificationRecord{}
	for _, r := range f.records {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (f *fakeSpecs) owned(id, userID string) (model.SpecificationRecord, error) {
	if f.stealOnWrite {
		if rec, ok := f.records[id]; ok {
			rec.UserID = "someone-else"
			f.records[id] = rec
		}
	}
	rec, ok := f.records[id]
	if !ok || rec.UserID != userID {
		return rec, &apperror.AppError{Err: apperror.ErrNotFound, Message: "not found or not owned"}
	}
	return rec, nil
}

func (f *fakeSpecs) Update(_ context.Context, id, userID string, patch repository.SpecificationPatch) (*model.SpecificationRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, err := f.owned(id, userID)
	if err != nil {
		return nil, err
	}
	if patch.ProductTitle != nil {
		rec.ProductTitle = *patch.ProductTitle
	}
	if patch.EaseOfUse != nil {
		rec.EaseOfUse = *patch.EaseOfUse
	}
	if patch.NicotineContent != nil {
		rec.NicotineContent = *patch.NicotineContent
	}
	f.records[id] = rec
	return &rec, nil
}

func (f *fakeSpecs) Delete(_ context.Context, id, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.owned(id, userID); err != nil {
		return err
	}
	delete(f.records, id)
	return nil
}

// fakeAuthenticator implements gateway.Authenticator.
type fakeAuthenticator struct {
	mu        sync.Mutex
	sendErr   error
	verifyErr error
	sends     int
}

func (f *fakeAuthenticator) SendCode(context.Context, string, gateway.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends++
	return f.sendErr
}

func (f *fakeAuthenticator) VerifyCode(_ context.Context, email, _ string) (*model.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	return &model.Identity{ID: "u-" + email, Email: email}, nil
}
