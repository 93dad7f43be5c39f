// Package session owns the active organization session: which organizations
// the caller belongs to, which one is current, and the role and permissions
// that govern visibility right now. It is the single source of truth the
// access gates read from.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"org-service/internal/orgapi"
	"org-service/internal/storage"
	"org-service/prometheus"
)

// ErrNilClient and ErrNilKV are constructor precondition failures. Using a
// store without its collaborators is programmer error, caught up front.
var (
	ErrNilClient = errors.New("session: organization client is required")
	ErrNilKV     = errors.New("session: key-value storage is required")
)

const defaultResolveTimeout = 10 * time.Second

// Snapshot is a read-only view of the session at one instant. Slices and the
// current organization are copies; holding a snapshot never observes later
// mutations.
type Snapshot struct {
	State              State
	Organizations      []orgapi.Organization
	Current            *orgapi.Organization
	Role               string
	Permissions        []string
	MembershipResolved bool
	// IsLoading is true from the start of LoadOrganizations until both the
	// organization list and the initial membership have resolved.
	IsLoading bool
}

// Store holds and mutates the session. All methods are safe for concurrent
// use; membership resolution runs asynchronously and applies last-writer-wins
// by activation, so a stale resolution never overwrites a newer activation.
type Store struct {
	client         orgapi.Client
	kv             storage.KV
	log            *zap.Logger
	resolveTimeout time.Duration

	mu         sync.Mutex
	state      State
	orgs       []orgapi.Organization
	current    *orgapi.Organization
	role       string
	perms      []string
	resolved   bool
	loading    bool
	activation uint64

	subMu  sync.Mutex
	subSeq int
	subs   map[int]func(Snapshot)
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Store) { s.log = log }
}

// WithResolveTimeout bounds each membership resolution call.
func WithResolveTimeout(d time.Duration) Option {
	return func(s *Store) { s.resolveTimeout = d }
}

// New creates a session store. The client and kv collaborators are required;
// a nil collaborator is a contract violation and fails construction.
func New(client orgapi.Client, kv storage.KV, opts ...Option) (*Store, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	if kv == nil {
		return nil, ErrNilKV
	}
	s := &Store{
		client:         client,
		kv:             kv,
		log:            zap.NewNop(),
		resolveTimeout: defaultResolveTimeout,
		state:          StateUninitialized,
		subs:           map[int]func(Snapshot){},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Subscribe registers fn to run after every observable session change. The
// returned function unsubscribes.
func (s *Store) Subscribe(fn func(Snapshot)) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.subSeq++
	id := s.subSeq
	s.subs[id] = fn
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

// Snapshot returns a copy of the current session view.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:              s.state,
		Role:               s.role,
		MembershipResolved: s.resolved,
		IsLoading:          s.loading || s.state == StateLoading,
	}
	snap.Organizations = make([]orgapi.Organization, len(s.orgs))
	copy(snap.Organizations, s.orgs)
	if s.current != nil {
		cur := *s.current
		cur.Permissions = append([]string(nil), s.current.Permissions...)
		snap.Current = &cur
	}
	snap.Permissions = append([]string(nil), s.perms...)
	return snap
}

func (s *Store) notify() {
	snap := s.Snapshot()
	s.subMu.Lock()
	fns := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()
	for _, fn := range fns {
		fn(snap)
	}
}

// LoadOrganizations fetches the caller's organizations and activates the
// persisted selection, or the first listed organization when nothing is
// persisted. On failure the list stays empty, the state moves to LoadFailed
// and the error is returned; the store never retries on its own.
func (s *Store) LoadOrganizations(ctx context.Context) error {
	s.mu.Lock()
	s.state = StateLoading
	s.loading = true
	s.mu.Unlock()
	s.notify()

	orgs, err := s.client.ListUserOrganizations(ctx)
	if err != nil {
		s.log.Warn("failed to load organizations", zap.Error(err))
		prometheus.RecordFetchError("list_organizations")
		s.mu.Lock()
		s.state = StateLoadFailed
		s.loading = false
		s.mu.Unlock()
		s.notify()
		return err
	}

	persisted, havePersisted, kvErr := s.kv.Get(storage.CurrentOrganizationKey)
	if kvErr != nil {
		s.log.Warn("failed to read persisted organization", zap.Error(kvErr))
		havePersisted = false
	}

	var pick *orgapi.Organization
	s.mu.Lock()
	s.orgs = orgs
	if havePersisted {
		for i := range orgs {
			if orgs[i].ID == persisted {
				pick = &orgs[i]
				break
			}
		}
	}
	if pick == nil && len(orgs) > 0 {
		pick = &orgs[0]
	}
	if pick == nil {
		s.state = StateReadyNoOrg
		s.loading = false
		s.mu.Unlock()
		s.notify()
		return nil
	}
	org := *pick
	s.mu.Unlock()

	s.Activate(ctx, org)
	return nil
}

// Activate makes org the current organization. The assignment is optimistic:
// the organization becomes current immediately with no role or permissions,
// and the membership is resolved asynchronously. Until resolution completes
// every access check treats the session as having no access. The selection
// is persisted so later mounts restore it.
func (s *Store) Activate(ctx context.Context, org orgapi.Organization) {
	s.mu.Lock()
	wasInactive := s.current == nil
	cur := org
	cur.Role = ""
	cur.Permissions = nil
	s.current = &cur
	s.role = ""
	s.perms = nil
	s.resolved = false
	s.state = StateReadyWithOrg
	s.activation++
	seq := s.activation
	s.mu.Unlock()

	if wasInactive {
		prometheus.ActiveSessionsGauge.Inc()
	}
	if err := s.kv.Set(storage.CurrentOrganizationKey, org.ID); err != nil {
		s.log.Warn("failed to persist organization selection",
			zap.String("organization_id", org.ID), zap.Error(err))
	}
	s.notify()

	go s.resolveMembership(org.ID, seq)
}

// resolveMembership fetches the role and permissions for one activation.
// The result applies only while that activation is still current; a stale
// result arriving after a newer Activate is discarded.
func (s *Store) resolveMembership(orgID string, seq uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), s.resolveTimeout)
	defer cancel()

	done := prometheus.TrackMembershipResolution()
	m, err := s.client.GetMembership(ctx, orgID)
	done()

	s.mu.Lock()
	if s.activation != seq || s.current == nil || s.current.ID != orgID {
		s.mu.Unlock()
		s.log.Debug("discarding stale membership resolution",
			zap.String("organization_id", orgID))
		return
	}
	if err != nil {
		// Role and permissions stay absent; gates deny until a later
		// activation resolves.
		s.loading = false
		s.mu.Unlock()
		prometheus.RecordFetchError("get_membership")
		s.log.Warn("membership resolution failed",
			zap.String("organization_id", orgID), zap.Error(err))
		s.notify()
		return
	}
	s.role = m.Role
	s.perms = append([]string(nil), m.Permissions...)
	s.current.Role = m.Role
	s.current.Permissions = append([]string(nil), m.Permissions...)
	s.resolved = true
	s.loading = false
	s.mu.Unlock()

	s.log.Info("membership resolved",
		zap.String("organization_id", orgID),
		zap.String("role", m.Role))
	s.notify()
}

// SwitchOrganization changes the current organization to orgID. The switch
// is two-phase: the server must confirm the change before local state flips.
// Returns false, leaving the prior organization untouched, when orgID is not
// in the session's organization list or the server rejects the change.
func (s *Store) SwitchOrganization(ctx context.Context, orgID string) bool {
	s.mu.Lock()
	var target *orgapi.Organization
	for i := range s.orgs {
		if s.orgs[i].ID == orgID {
			org := s.orgs[i]
			target = &org
			break
		}
	}
	s.mu.Unlock()

	if target == nil {
		s.log.Warn("switch to unknown organization",
			zap.String("organization_id", orgID))
		prometheus.RecordSessionSwitch("not_found")
		return false
	}

	if err := s.client.SetCurrentOrganization(ctx, orgID); err != nil {
		s.log.Warn("server rejected organization switch",
			zap.String("organization_id", orgID), zap.Error(err))
		prometheus.RecordFetchError("set_current_organization")
		prometheus.RecordSessionSwitch("rejected")
		return false
	}

	s.Activate(ctx, *target)
	prometheus.RecordSessionSwitch("ok")
	s.log.Info("switched organization", zap.String("organization_id", orgID))
	return true
}

// Refresh re-fetches the organization list. The current organization is kept
// unless it is no longer listed, in which case the session is cleared to
// ReadyNoOrg and the caller decides what to activate next. A failed refresh
// leaves all prior state intact.
func (s *Store) Refresh(ctx context.Context) error {
	orgs, err := s.client.ListUserOrganizations(ctx)
	if err != nil {
		s.log.Warn("refresh failed", zap.Error(err))
		prometheus.RecordFetchError("list_organizations")
		return err
	}

	s.mu.Lock()
	s.orgs = orgs
	s.loading = false
	if s.current != nil {
		found := false
		for i := range orgs {
			if orgs[i].ID == s.current.ID {
				found = true
				break
			}
		}
		if !found {
			s.log.Info("active organization no longer listed, clearing session",
				zap.String("organization_id", s.current.ID))
			s.clearCurrentLocked()
		} else {
			s.state = StateReadyWithOrg
		}
	} else {
		s.state = StateReadyNoOrg
	}
	s.mu.Unlock()
	s.notify()
	return nil
}

// Reset tears the session down to its default empty state, e.g. on sign-out.
func (s *Store) Reset() {
	s.mu.Lock()
	s.orgs = nil
	s.clearCurrentLocked()
	s.state = StateUninitialized
	s.loading = false
	s.mu.Unlock()
	s.notify()
}

func (s *Store) clearCurrentLocked() {
	if s.current != nil {
		prometheus.ActiveSessionsGauge.Dec()
	}
	s.current = nil
	s.role = ""
	s.perms = nil
	s.resolved = false
	s.activation++
	s.state = StateReadyNoOrg
}
