package allergy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/allergy/internal/platform/clock"
	"github.com/ehr/allergy/internal/platform/events"
	"github.com/ehr/allergy/internal/platform/kv"
	"github.com/ehr/allergy/internal/platform/metrics"
)

const (
	EventRecorded        = "allergy.recorded"
	EventSeverityChanged = "allergy.severity_changed"
	EventResolved        = "allergy.resolved"
)

// Authorizer confirms that the current call is made on behalf of a
// principal. Any error it returns is reported as ErrUnauthorized.
type Authorizer interface {
	Require(ctx context.Context, principal string) error
	RequireAdmin(ctx context.Context, principal string) error
}

type Options struct {
	Logger       zerolog.Logger
	Metrics      *metrics.Metrics
	Events       events.Sink
	Clock        clock.Clock
	Sequence     Sequence
	StatusPolicy StatusPolicy
}

// Service is the public surface of the allergy core. Calls are serialized:
// each one commits or discards its writes before the next starts. Events
// are published after the lock is released, so sinks must be safe for
// concurrent use.
type Service struct {
	mu sync.Mutex

	store    kv.Store
	authz    Authorizer
	records  *RecordStore
	ledger   *HistoryLedger
	registry *CrossSensitivityRegistry
	engine   *InteractionEngine

	clock   clock.Clock
	events  events.Sink
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

func NewService(store kv.Store, authz Authorizer, opts Options) *Service {
	if opts.Clock == nil {
		opts.Clock = clock.NewSystem()
	}
	if opts.Sequence == nil {
		opts.Sequence = NewKVSequence(store)
	}
	if opts.Events == nil {
		opts.Events = events.Discard{}
	}
	records := NewRecordStore(store, opts.Sequence, opts.Clock, opts.StatusPolicy)
	registry := NewCrossSensitivityRegistry(store)
	return &Service{
		store:    store,
		authz:    authz,
		records:  records,
		ledger:   NewHistoryLedger(store),
		registry: registry,
		engine:   NewInteractionEngine(records, registry),
		clock:    opts.Clock,
		events:   opts.Events,
		metrics:  opts.Metrics,
		logger:   opts.Logger.With().Str("component", "allergy").Logger(),
	}
}

// RecordAllergy stores a new allergy on behalf of in.ProviderID and returns
// its id.
func (s *Service) RecordAllergy(ctx context.Context, in NewAllergy) (id uint64, err error) {
	defer func() { s.metrics.Observe("record", err) }()

	var rec *AllergyRecord
	err = s.locked(func() error {
		if err := s.require(ctx, in.ProviderID); err != nil {
			return err
		}
		return s.write(ctx, func(ctx context.Context) error {
			var err error
			rec, err = s.records.Create(ctx, in)
			return err
		})
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info().Uint64("allergy_id", rec.ID).Str("patient_id", rec.PatientID).
		Str("status", rec.Status.String()).Msg("allergy recorded")
	e := events.New(EventRecorded, rec.ID, rec.PatientID, rec.RecordedDate)
	e.Data["allergen"] = rec.Allergen
	e.Data["severity"] = rec.Severity.String()
	e.Data["status"] = rec.Status.String()
	s.publish(ctx, e)
	return rec.ID, nil
}

func (s *Service) UpdateAllergySeverity(ctx context.Context, id uint64, provider, severity, reason string) (err error) {
	defer func() { s.metrics.Observe("update_severity", err) }()

	var upd SeverityUpdate
	err = s.locked(func() error {
		if err := s.require(ctx, provider); err != nil {
			return err
		}
		return s.write(ctx, func(ctx context.Context) error {
			var err error
			if upd, err = s.records.UpdateSeverity(ctx, id, provider, severity, reason); err != nil {
				return err
			}
			return s.ledger.Append(ctx, upd)
		})
	})
	if err != nil {
		return err
	}

	s.logger.Info().Uint64("allergy_id", id).Str("old_severity", upd.OldSeverity.String()).
		Str("new_severity", upd.NewSeverity.String()).Msg("allergy severity updated")
	e := events.New(EventSeverityChanged, id, "", upd.Timestamp)
	e.Data["old_severity"] = upd.OldSeverity.String()
	e.Data["new_severity"] = upd.NewSeverity.String()
	s.publish(ctx, e)
	return nil
}

func (s *Service) ResolveAllergy(ctx context.Context, id uint64, provider string, resolvedAt time.Time, reason string) (err error) {
	defer func() { s.metrics.Observe("resolve", err) }()

	var rec *AllergyRecord
	err = s.locked(func() error {
		if err := s.require(ctx, provider); err != nil {
			return err
		}
		return s.write(ctx, func(ctx context.Context) error {
			var err error
			rec, err = s.records.Resolve(ctx, id, resolvedAt, reason)
			return err
		})
	})
	if err != nil {
		return err
	}

	s.logger.Info().Uint64("allergy_id", id).Str("patient_id", rec.PatientID).Msg("allergy resolved")
	e := events.New(EventResolved, id, rec.PatientID, rec.LastUpdated)
	e.Data["reason"] = reason
	s.publish(ctx, e)
	return nil
}

// CheckDrugAllergyInteraction needs no requester: it is a safety check, not
// a disclosure of the patient's record.
func (s *Service) CheckDrugAllergyInteraction(ctx context.Context, patient, drug string) (warnings []InteractionWarning, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() { s.metrics.Observe("check_interaction", err) }()

	warnings, err = s.engine.Check(ctx, patient, drug)
	if err != nil {
		return nil, err
	}
	s.metrics.Warnings(len(warnings))
	return warnings, nil
}

func (s *Service) GetActiveAllergies(ctx context.Context, patient, requester string) (recs []*AllergyRecord, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() { s.metrics.Observe("get_active", err) }()

	if err := s.require(ctx, requester); err != nil {
		return nil, err
	}
	return s.records.Active(ctx, patient)
}

func (s *Service) GetAllergy(ctx context.Context, id uint64) (rec *AllergyRecord, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() { s.metrics.Observe("get", err) }()

	return s.records.Get(ctx, id)
}

func (s *Service) GetSeverityHistory(ctx context.Context, id uint64) (history []SeverityUpdate, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() { s.metrics.Observe("history", err) }()

	return s.ledger.History(ctx, id)
}

func (s *Service) RegisterCrossSensitivity(ctx context.Context, admin, drugA, drugB string) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() { s.metrics.Observe("register_cross_sensitivity", err) }()

	if err := s.authz.RequireAdmin(ctx, admin); err != nil {
		return fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	err = s.write(ctx, func(ctx context.Context) error {
		return s.registry.Register(ctx, drugA, drugB)
	})
	if err != nil {
		return err
	}
	s.logger.Info().Str("drug_a", drugA).Str("drug_b", drugB).Str("admin", admin).
		Msg("cross-sensitivity registered")
	return nil
}

func (s *Service) RelatedDrugs(ctx context.Context, drug string) (related []string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() { s.metrics.Observe("related", err) }()

	return s.registry.Related(ctx, drug)
}

func (s *Service) require(ctx context.Context, principal string) error {
	if err := s.authz.Require(ctx, principal); err != nil {
		return fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	return nil
}

// locked runs fn while holding the service lock. Events are published
// after it returns.
func (s *Service) locked(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

// write runs fn inside a unit of work and commits its writes in one batch.
// On error nothing reaches the store.
func (s *Service) write(ctx context.Context, fn func(ctx context.Context) error) error {
	txn := kv.Begin(s.store)
	defer txn.Discard()
	if err := fn(kv.WithTxn(ctx, txn)); err != nil {
		return err
	}
	return txn.Commit(ctx)
}

// publish runs after commit. The write already happened, so a failed
// delivery is logged and not returned.
func (s *Service) publish(ctx context.Context, e events.Event) {
	if err := s.events.Publish(ctx, e); err != nil {
		s.logger.Error().Err(err).Str("event_type", e.Type).
			Uint64("allergy_id", e.AllergyID).Msg("failed to publish event")
	}
}
