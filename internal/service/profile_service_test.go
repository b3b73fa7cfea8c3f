package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"app/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type fakeIdentityRepo struct {
	mu      sync.Mutex
	byPhone map[string]*model.ContractorIdentity
}

func newFakeIdentityRepo() *fakeIdentityRepo {
	return &fakeIdentityRepo{byPhone: make(map[string]*model.ContractorIdentity)}
}

func (r *fakeIdentityRepo) FindOrCreate(_ context.Context, id, phone string) (*model.ContractorIdentity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byPhone[phone]; ok {
		cp := *existing
		return &cp, nil
	}
	ident := &model.ContractorIdentity{ID: id, Phone: phone, CreatedAt: time.Now().UTC()}
	r.byPhone[phone] = ident
	cp := *ident
	return &cp, nil
}

func (r *fakeIdentityRepo) GetByID(_ context.Context, id string) (*model.ContractorIdentity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ident := range r.byPhone {
		if ident.ID == id {
			cp := *ident
			return &cp, nil
		}
	}
	return nil, nil
}

type fakeProfileRepo struct {
	mu         sync.Mutex
	byIdentity map[string]*model.ContractorProfile
}

func newFakeProfileRepo() *fakeProfileRepo {
	return &fakeProfileRepo{byIdentity: make(map[string]*model.ContractorProfile)}
}

func (r *fakeProfileRepo) CreateIfAbsent(_ context.Context, p *model.ContractorProfile) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byIdentity[p.IdentityID]; ok {
		return false, nil
	}
	cp := *p
	cp.CreatedAt = time.Now().UTC()
	cp.UpdatedAt = cp.CreatedAt
	r.byIdentity[p.IdentityID] = &cp
	return true, nil
}

func (r *fakeProfileRepo) GetByID(_ context.Context, id string) (*model.ContractorProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.byIdentity {
		if p.ID == id {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeProfileRepo) GetByIdentityID(_ context.Context, identityID string) (*model.ContractorProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byIdentity[identityID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r *fakeProfileRepo) GetByStripeCustomerID(_ context.Context, customerID string) (*model.ContractorProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.byIdentity {
		if p.StripeCustomerID != nil && *p.StripeCustomerID == customerID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeProfileRepo) UpdateStripeCustomerID(_ context.Context, profileID, customerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.byIdentity {
		if p.ID == profileID {
			p.StripeCustomerID = &customerID
			return nil
		}
	}
	return errors.New("profile not found")
}

func (r *fakeProfileRepo) UpdateTier(_ context.Context, profileID, tier string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.byIdentity {
		if p.ID == profileID {
			p.Tier = tier
			return nil
		}
	}
	return errors.New("profile not found")
}

func (r *fakeProfileRepo) CompleteOnboarding(_ context.Context, profileID, companyName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.byIdentity {
		if p.ID == profileID {
			p.CompanyName = companyName
			p.OnboardingCompleted = true
			return nil
		}
	}
	return errors.New("profile not found")
}

func TestEnsureIdentityStableAcrossLogins(t *testing.T) {
	svc := NewProfileService(newFakeIdentityRepo(), newFakeProfileRepo(), zerolog.Nop())

	first, err := svc.EnsureIdentity(context.Background(), testPhone)
	if err != nil {
		t.Fatalf("EnsureIdentity returned error: %v", err)
	}
	second, err := svc.EnsureIdentity(context.Background(), testPhone)
	if err != nil {
		t.Fatalf("second EnsureIdentity returned error: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("identity not stable: %s vs %s", first.ID, second.ID)
	}
}

func TestEnsureProfileIdempotent(t *testing.T) {
	identityRepo := newFakeIdentityRepo()
	svc := NewProfileService(identityRepo, newFakeProfileRepo(), zerolog.Nop())

	ident, err := svc.EnsureIdentity(context.Background(), testPhone)
	if err != nil {
		t.Fatal(err)
	}
	first, err := svc.EnsureProfile(context.Background(), ident.ID, testPhone)
	if err != nil {
		t.Fatalf("EnsureProfile returned error: %v", err)
	}
	if first.Tier != model.TierBase {
		t.Errorf("new profile tier = %q, want %q", first.Tier, model.TierBase)
	}
	second, err := svc.EnsureProfile(context.Background(), ident.ID, testPhone)
	if err != nil {
		t.Fatalf("second EnsureProfile returned error: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("expected one profile per identity, got %s and %s", first.ID, second.ID)
	}
}

func TestEnsureProfileConcurrent(t *testing.T) {
	identityRepo := newFakeIdentityRepo()
	profileRepo := newFakeProfileRepo()
	svc := NewProfileService(identityRepo, profileRepo, zerolog.Nop())

	ident, err := svc.EnsureIdentity(context.Background(), testPhone)
	if err != nil {
		t.Fatal(err)
	}

	const workers = 8
	results := make([]*model.ContractorProfile, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.EnsureProfile(context.Background(), ident.ID, testPhone)
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("worker %d returned error: %v", i, errs[i])
		}
		if results[i].ID != results[0].ID {
			t.Fatalf("workers received different profiles: %s vs %s", results[i].ID, results[0].ID)
		}
	}
	if n := len(profileRepo.byIdentity); n != 1 {
		t.Errorf("expected exactly one profile row, got %d", n)
	}
}

func TestEnsureProfileUnknownIdentity(t *testing.T) {
	svc := NewProfileService(newFakeIdentityRepo(), newFakeProfileRepo(), zerolog.Nop())
	if _, err := svc.EnsureProfile(context.Background(), uuid.NewString(), testPhone); !errors.Is(err, ErrIdentityNotFound) {
		t.Fatalf("expected ErrIdentityNotFound, got %v", err)
	}
}

func TestGetUnknownProfile(t *testing.T) {
	svc := NewProfileService(newFakeIdentityRepo(), newFakeProfileRepo(), zerolog.Nop())
	if _, err := svc.Get(context.Background(), uuid.NewString()); !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("expected ErrProfileNotFound, got %v", err)
	}
}

func TestCompleteOnboarding(t *testing.T) {
	identityRepo := newFakeIdentityRepo()
	profileRepo := newFakeProfileRepo()
	svc := NewProfileService(identityRepo, profileRepo, zerolog.Nop())

	ident, err := svc.EnsureIdentity(context.Background(), testPhone)
	if err != nil {
		t.Fatal(err)
	}
	profile, err := svc.EnsureProfile(context.Background(), ident.ID, testPhone)
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.CompleteOnboarding(context.Background(), profile.ID, "Acme Plumbing"); err != nil {
		t.Fatalf("CompleteOnboarding returned error: %v", err)
	}
	updated, err := svc.Get(context.Background(), profile.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !updated.OnboardingCompleted || updated.CompanyName != "Acme Plumbing" {
		t.Errorf("onboarding not recorded: %+v", updated)
	}
}
