package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"org-service/internal/access"
	"org-service/internal/orgapi"
	"org-service/internal/storage"
)

// fakeClient is a controllable orgapi.Client. Membership calls can be gated
// on a channel to exercise resolution ordering.
type fakeClient struct {
	mu              sync.Mutex
	orgs            []orgapi.Organization
	listErr         error
	memberships     map[string]orgapi.Membership
	membershipErr   map[string]error
	membershipGate  map[string]chan struct{}
	membershipDone  map[string]int
	setCurrentErr   error
	setCurrentCalls []string
}

func newFakeClient(orgs ...orgapi.Organization) *fakeClient {
	return &fakeClient{
		orgs:           orgs,
		memberships:    map[string]orgapi.Membership{},
		membershipErr:  map[string]error{},
		membershipGate: map[string]chan struct{}{},
		membershipDone: map[string]int{},
	}
}

func (f *fakeClient) ListUserOrganizations(ctx context.Context) ([]orgapi.Organization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]orgapi.Organization, len(f.orgs))
	copy(out, f.orgs)
	return out, nil
}

func (f *fakeClient) GetMembership(ctx context.Context, orgID string) (orgapi.Membership, error) {
	f.mu.Lock()
	gate := f.membershipGate[orgID]
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.membershipDone[orgID]++
	if err := f.membershipErr[orgID]; err != nil {
		return orgapi.Membership{}, err
	}
	return f.memberships[orgID], nil
}

func (f *fakeClient) SetCurrentOrganization(ctx context.Context, orgID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setCurrentCalls = append(f.setCurrentCalls, orgID)
	return f.setCurrentErr
}

func (f *fakeClient) doneCount(orgID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.membershipDone[orgID]
}

func org(id, name string) orgapi.Organization {
	return orgapi.Organization{ID: id, Name: name, Type: orgapi.TypeBrokerage}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func newStore(t *testing.T, client *fakeClient, kv storage.KV) *Store {
	t.Helper()
	if kv == nil {
		kv = storage.NewMemoryKV()
	}
	s, err := New(client, kv)
	require.NoError(t, err)
	return s
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(nil, storage.NewMemoryKV())
	assert.ErrorIs(t, err, ErrNilClient)

	_, err = New(newFakeClient(), nil)
	assert.ErrorIs(t, err, ErrNilKV)
}

func TestLoadActivatesFirstOrganization(t *testing.T) {
	client := newFakeClient(org("org-a", "Acme"), org("org-b", "Beta"))
	client.memberships["org-a"] = orgapi.Membership{
		Role:        access.RoleDispatcher,
		Permissions: []string{"view_loads"},
	}
	kv := storage.NewMemoryKV()
	s := newStore(t, client, kv)

	require.NoError(t, s.LoadOrganizations(context.Background()))

	snap := s.Snapshot()
	require.NotNil(t, snap.Current)
	assert.Equal(t, "org-a", snap.Current.ID)
	assert.Equal(t, StateReadyWithOrg, snap.State)
	assert.Len(t, snap.Organizations, 2)

	waitFor(t, func() bool { return s.Snapshot().MembershipResolved })
	snap = s.Snapshot()
	assert.Equal(t, access.RoleDispatcher, snap.Role)
	assert.Equal(t, []string{"view_loads"}, snap.Permissions)
	assert.Equal(t, access.RoleDispatcher, snap.Current.Role)
	assert.False(t, snap.IsLoading)

	// The selection is persisted for the next mount
	v, ok, err := kv.Get(storage.CurrentOrganizationKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "org-a", v)
}

func TestLoadRestoresPersistedSelection(t *testing.T) {
	client := newFakeClient(org("org-a", "Acme"), org("org-b", "Beta"))
	client.memberships["org-b"] = orgapi.Membership{Role: access.RoleAdmin}
	kv := storage.NewMemoryKV()
	require.NoError(t, kv.Set(storage.CurrentOrganizationKey, "org-b"))
	s := newStore(t, client, kv)

	require.NoError(t, s.LoadOrganizations(context.Background()))

	snap := s.Snapshot()
	require.NotNil(t, snap.Current)
	assert.Equal(t, "org-b", snap.Current.ID)
}

func TestLoadFallsBackWhenPersistedSelectionUnknown(t *testing.T) {
	client := newFakeClient(org("org-a", "Acme"))
	client.memberships["org-a"] = orgapi.Membership{Role: access.RoleStaff}
	kv := storage.NewMemoryKV()
	require.NoError(t, kv.Set(storage.CurrentOrganizationKey, "org-gone"))
	s := newStore(t, client, kv)

	require.NoError(t, s.LoadOrganizations(context.Background()))

	snap := s.Snapshot()
	require.NotNil(t, snap.Current)
	assert.Equal(t, "org-a", snap.Current.ID)
}

func TestLoadNoOrganizations(t *testing.T) {
	s := newStore(t, newFakeClient(), nil)

	require.NoError(t, s.LoadOrganizations(context.Background()))

	snap := s.Snapshot()
	assert.Equal(t, StateReadyNoOrg, snap.State)
	assert.Nil(t, snap.Current)
	assert.False(t, snap.IsLoading)
}

func TestLoadFailure(t *testing.T) {
	client := newFakeClient(org("org-a", "Acme"))
	client.listErr = &orgapi.FetchError{Op: "list_organizations", StatusCode: 502}
	s := newStore(t, client, nil)

	err := s.LoadOrganizations(context.Background())
	require.Error(t, err)
	assert.True(t, orgapi.IsFetchError(err))

	snap := s.Snapshot()
	assert.Equal(t, StateLoadFailed, snap.State)
	assert.Empty(t, snap.Organizations)
	assert.Nil(t, snap.Current)
	assert.False(t, snap.IsLoading)

	// Refresh is the only way out of the failed state
	client.mu.Lock()
	client.listErr = nil
	client.mu.Unlock()
	require.NoError(t, s.Refresh(context.Background()))
	snap = s.Snapshot()
	assert.Equal(t, StateReadyNoOrg, snap.State)
	assert.Len(t, snap.Organizations, 1)
}

func TestSwitchUnknownOrganization(t *testing.T) {
	client := newFakeClient(org("org-a", "Acme"))
	client.memberships["org-a"] = orgapi.Membership{Role: access.RoleStaff}
	s := newStore(t, client, nil)
	require.NoError(t, s.LoadOrganizations(context.Background()))
	waitFor(t, func() bool { return s.Snapshot().MembershipResolved })

	before := s.Snapshot()
	ok := s.SwitchOrganization(context.Background(), "org-unknown")
	after := s.Snapshot()

	assert.False(t, ok)
	assert.Equal(t, before.Current.ID, after.Current.ID)
	assert.Equal(t, before.Role, after.Role)
	assert.Empty(t, client.setCurrentCalls, "server is not consulted for unknown organizations")
}

func TestSwitchRejectedByServer(t *testing.T) {
	client := newFakeClient(org("org-a", "Acme"), org("org-b", "Beta"))
	client.memberships["org-a"] = orgapi.Membership{Role: access.RoleStaff}
	client.setCurrentErr = &orgapi.FetchError{Op: "set_current_organization", StatusCode: 403}
	s := newStore(t, client, nil)
	require.NoError(t, s.LoadOrganizations(context.Background()))
	waitFor(t, func() bool { return s.Snapshot().MembershipResolved })

	ok := s.SwitchOrganization(context.Background(), "org-b")

	assert.False(t, ok)
	snap := s.Snapshot()
	assert.Equal(t, "org-a", snap.Current.ID, "no optimistic commit survives a failed confirmation")
	assert.Equal(t, access.RoleStaff, snap.Role)
}

func TestSwitchTwoPhase(t *testing.T) {
	client := newFakeClient(org("org-a", "Acme"), org("org-b", "Beta"))
	client.memberships["org-a"] = orgapi.Membership{Role: access.RoleStaff}
	client.memberships["org-b"] = orgapi.Membership{
		Role:        access.RoleAdmin,
		Permissions: []string{"manage_users"},
	}
	kv := storage.NewMemoryKV()
	s := newStore(t, client, kv)
	require.NoError(t, s.LoadOrganizations(context.Background()))
	waitFor(t, func() bool { return s.Snapshot().MembershipResolved })

	ok := s.SwitchOrganization(context.Background(), "org-b")
	require.True(t, ok)

	// Server confirmed before the local flip
	assert.Equal(t, []string{"org-b"}, client.setCurrentCalls)

	snap := s.Snapshot()
	assert.Equal(t, "org-b", snap.Current.ID)

	waitFor(t, func() bool { return s.Snapshot().MembershipResolved })
	snap = s.Snapshot()
	assert.Equal(t, access.RoleAdmin, snap.Role)
	assert.Equal(t, []string{"manage_users"}, snap.Permissions)

	v, _, _ := kv.Get(storage.CurrentOrganizationKey)
	assert.Equal(t, "org-b", v)
}

// Two back-to-back activations where the first membership resolves after the
// second: the stale result must be discarded.
func TestActivateLastWriterWins(t *testing.T) {
	client := newFakeClient(org("org-a", "Acme"), org("org-b", "Beta"))
	client.memberships["org-a"] = orgapi.Membership{Role: access.RoleOwner, Permissions: []string{"*"}}
	client.memberships["org-b"] = orgapi.Membership{Role: access.RoleDispatcher, Permissions: []string{"view_loads"}}

	gateA := make(chan struct{})
	client.membershipGate["org-a"] = gateA

	s := newStore(t, client, nil)
	ctx := context.Background()

	s.Activate(ctx, org("org-a", "Acme"))
	s.Activate(ctx, org("org-b", "Beta"))

	// B resolves first
	waitFor(t, func() bool { return s.Snapshot().MembershipResolved })
	snap := s.Snapshot()
	assert.Equal(t, "org-b", snap.Current.ID)
	assert.Equal(t, access.RoleDispatcher, snap.Role)

	// Now let A's stale resolution land
	close(gateA)
	waitFor(t, func() bool { return client.doneCount("org-a") == 1 })

	snap = s.Snapshot()
	assert.Equal(t, "org-b", snap.Current.ID)
	assert.Equal(t, access.RoleDispatcher, snap.Role, "stale resolution must not overwrite the newer activation")
	assert.Equal(t, []string{"view_loads"}, snap.Permissions)
}

func TestUnresolvedMembershipDeniesAccess(t *testing.T) {
	client := newFakeClient(org("org-a", "Acme"))
	client.memberships["org-a"] = orgapi.Membership{Role: access.RoleOwner, Permissions: []string{"*"}}
	gate := make(chan struct{})
	client.membershipGate["org-a"] = gate
	defer close(gate)

	s := newStore(t, client, nil)
	s.Activate(context.Background(), org("org-a", "Acme"))

	snap := s.Snapshot()
	require.NotNil(t, snap.Current)
	assert.False(t, snap.MembershipResolved)
	assert.Empty(t, snap.Role)

	// No access while the membership is pending, and no panic either
	a := s.Access()
	assert.False(t, a.HasPermission("view_loads"))
	assert.False(t, a.IsOwner())
}

func TestMembershipResolutionFailure(t *testing.T) {
	client := newFakeClient(org("org-a", "Acme"))
	client.membershipErr["org-a"] = &orgapi.FetchError{Op: "get_membership", StatusCode: 500}

	s := newStore(t, client, nil)
	require.NoError(t, s.LoadOrganizations(context.Background()))
	waitFor(t, func() bool { return client.doneCount("org-a") == 1 && !s.Snapshot().IsLoading })

	snap := s.Snapshot()
	require.NotNil(t, snap.Current)
	assert.False(t, snap.MembershipResolved)
	assert.Empty(t, snap.Role)
	assert.False(t, s.Access().HasPermission("view_loads"))
}

func TestRefreshKeepsCurrentOrganization(t *testing.T) {
	client := newFakeClient(org("org-a", "Acme"), org("org-b", "Beta"))
	client.memberships["org-a"] = orgapi.Membership{Role: access.RoleAgent}
	s := newStore(t, client, nil)
	require.NoError(t, s.LoadOrganizations(context.Background()))
	waitFor(t, func() bool { return s.Snapshot().MembershipResolved })

	require.NoError(t, s.Refresh(context.Background()))

	snap := s.Snapshot()
	require.NotNil(t, snap.Current)
	assert.Equal(t, "org-a", snap.Current.ID)
	assert.Equal(t, access.RoleAgent, snap.Role)
}

func TestRefreshClearsVanishedOrganization(t *testing.T) {
	client := newFakeClient(org("org-a", "Acme"), org("org-b", "Beta"))
	client.memberships["org-a"] = orgapi.Membership{Role: access.RoleAgent}
	s := newStore(t, client, nil)
	require.NoError(t, s.LoadOrganizations(context.Background()))
	waitFor(t, func() bool { return s.Snapshot().MembershipResolved })

	// The active organization disappears from the refreshed list
	client.mu.Lock()
	client.orgs = []orgapi.Organization{org("org-b", "Beta")}
	client.mu.Unlock()

	require.NoError(t, s.Refresh(context.Background()))

	snap := s.Snapshot()
	assert.Nil(t, snap.Current)
	assert.Equal(t, StateReadyNoOrg, snap.State)
	assert.Empty(t, snap.Role)
	assert.Empty(t, snap.Permissions)
}

func TestRefreshFailureLeavesStateIntact(t *testing.T) {
	client := newFakeClient(org("org-a", "Acme"))
	client.memberships["org-a"] = orgapi.Membership{Role: access.RoleAgent}
	s := newStore(t, client, nil)
	require.NoError(t, s.LoadOrganizations(context.Background()))
	waitFor(t, func() bool { return s.Snapshot().MembershipResolved })

	client.mu.Lock()
	client.listErr = &orgapi.FetchError{Op: "list_organizations", StatusCode: 503}
	client.mu.Unlock()

	err := s.Refresh(context.Background())
	require.Error(t, err)

	snap := s.Snapshot()
	require.NotNil(t, snap.Current)
	assert.Equal(t, "org-a", snap.Current.ID)
	assert.Equal(t, access.RoleAgent, snap.Role)
}

func TestSubscribeNotifiesOnChange(t *testing.T) {
	client := newFakeClient(org("org-a", "Acme"))
	client.memberships["org-a"] = orgapi.Membership{Role: access.RoleStaff}
	s := newStore(t, client, nil)

	var mu sync.Mutex
	var states []State
	unsubscribe := s.Subscribe(func(snap Snapshot) {
		mu.Lock()
		states = append(states, snap.State)
		mu.Unlock()
	})
	defer unsubscribe()

	require.NoError(t, s.LoadOrganizations(context.Background()))
	waitFor(t, func() bool { return s.Snapshot().MembershipResolved })

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, states, StateLoading)
	assert.Contains(t, states, StateReadyWithOrg)
}

func TestReset(t *testing.T) {
	client := newFakeClient(org("org-a", "Acme"))
	client.memberships["org-a"] = orgapi.Membership{Role: access.RoleStaff}
	s := newStore(t, client, nil)
	require.NoError(t, s.LoadOrganizations(context.Background()))
	waitFor(t, func() bool { return s.Snapshot().MembershipResolved })

	s.Reset()

	snap := s.Snapshot()
	assert.Equal(t, StateUninitialized, snap.State)
	assert.Nil(t, snap.Current)
	assert.Empty(t, snap.Organizations)
	assert.Empty(t, snap.Role)
}

func TestAccessor(t *testing.T) {
	client := newFakeClient(org("org-a", "Acme"))
	client.memberships["org-a"] = orgapi.Membership{
		Role:        access.RoleDispatcher,
		Permissions: []string{"view_loads", "manage_dispatch"},
	}
	s := newStore(t, client, nil)
	require.NoError(t, s.LoadOrganizations(context.Background()))
	waitFor(t, func() bool { return s.Snapshot().MembershipResolved })

	a := s.Access()
	assert.Equal(t, access.RoleDispatcher, a.Role())
	assert.True(t, a.IsDispatcher())
	assert.False(t, a.IsOwner())
	assert.True(t, a.HasPermission("view_loads"))
	assert.True(t, a.HasAnyPermission("view_financials", "manage_dispatch"))
	assert.True(t, a.HasAllPermissions("view_loads", "manage_dispatch"))
	assert.False(t, a.HasAllPermissions("view_loads", "view_financials"))
	assert.True(t, a.HasAllPermissions(), "empty requirement is vacuously true")
}
