package allergy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/allergy/internal/platform/auth"
	"github.com/ehr/allergy/internal/platform/clock"
	"github.com/ehr/allergy/internal/platform/events"
	"github.com/ehr/allergy/internal/platform/kv"
	"github.com/ehr/allergy/internal/platform/metrics"
)

var testStart = time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)

var errDenied = errors.New("denied")

// fakeAuthz allows callers listed in allowed and admins listed in admins.
// A nil map allows everyone.
type fakeAuthz struct {
	allowed map[string]bool
	admins  map[string]bool
}

func (f *fakeAuthz) Require(_ context.Context, p string) error {
	if f.allowed != nil && !f.allowed[p] {
		return errDenied
	}
	return nil
}

func (f *fakeAuthz) RequireAdmin(_ context.Context, p string) error {
	if f.admins != nil && !f.admins[p] {
		return errDenied
	}
	return nil
}

// flakyStore fails Apply while fail is set.
type flakyStore struct {
	*kv.Memory
	fail bool
}

func (f *flakyStore) Apply(ctx context.Context, w []kv.Write) error {
	if f.fail {
		return errors.New("disk full")
	}
	return f.Memory.Apply(ctx, w)
}

type testEnv struct {
	svc    *Service
	store  *kv.Memory
	events *events.Memory
	clock  *clock.Manual
	authz  *fakeAuthz
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWith(t, kv.NewMemory(), ActiveOnRecord)
}

func newTestEnvWith(t *testing.T, store kv.Store, policy StatusPolicy) *testEnv {
	t.Helper()
	env := &testEnv{
		events: events.NewMemory(),
		clock:  clock.NewManual(testStart),
		authz:  &fakeAuthz{},
	}
	if m, ok := store.(*kv.Memory); ok {
		env.store = m
	}
	env.svc = NewService(store, env.authz, Options{
		Logger:       zerolog.Nop(),
		Metrics:      metrics.New(),
		Events:       env.events,
		Clock:        env.clock,
		StatusPolicy: policy,
	})
	return env
}

func penicillin(patient string) NewAllergy {
	return NewAllergy{
		PatientID:     patient,
		ProviderID:    "dr-a",
		Allergen:      "Penicillin",
		AllergenType:  "med",
		ReactionTypes: []string{"hives", "rash"},
		Severity:      "moderate",
		Verified:      true,
	}
}

func mustRecord(t *testing.T, svc *Service, in NewAllergy) uint64 {
	t.Helper()
	ctx := auth.WithPrincipal(context.Background(), in.ProviderID)
	id, err := svc.RecordAllergy(ctx, in)
	if err != nil {
		t.Fatalf("record %s: %v", in.Allergen, err)
	}
	return id
}
