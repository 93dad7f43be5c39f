// Package gate combines authentication state, organization presence and
// access requirements into a single allow/deny/pending decision that the
// presentation layer renders. The evaluation order is fixed; every input
// change recomputes the decision from scratch.
package gate

import (
	"sync"

	"go.uber.org/zap"

	"org-service/internal/access"
	"org-service/internal/session"
	"org-service/prometheus"
)

// Decision is the ternary gate outcome.
type Decision int

const (
	Pending Decision = iota
	Granted
	Denied
)

func (d Decision) String() string {
	switch d {
	case Granted:
		return "granted"
	case Denied:
		return "denied"
	default:
		return "pending"
	}
}

// AuthStatus is the caller's authentication state.
type AuthStatus int

const (
	AuthLoading AuthStatus = iota
	Authenticated
	Unauthenticated
)

// Requirements describes what a protected surface demands. Zero-value fields
// impose nothing. When both RequiredRole and RequiredRoles are set, both must
// pass independently; the same holds for RequiredPermission and
// RequiredAction.
type Requirements struct {
	RequireOrganization bool
	RequiredRole        string
	RequiredRoles       []string
	RequiredPermission  *access.Requirement
	RequiredAction      *access.Requirement
	// RedirectTo, when non-empty, is the navigation target issued once per
	// transition into Denied.
	RedirectTo string
}

// Inputs is the snapshot a decision is computed from.
type Inputs struct {
	Auth    AuthStatus
	Session session.Snapshot
}

// Evaluate computes the gate decision. Steps short-circuit in a fixed order:
//
//  1. auth loading or session loading        -> Pending
//  2. unauthenticated                        -> Denied
//  3. organization required but none active  -> Denied
//  4. required role unmet                    -> Denied
//  5. required role list unmet               -> Denied
//  6. required permission unmet              -> Denied
//  7. required action unmet                  -> Denied
//  8. otherwise                              -> Granted
//
// An unresolved membership carries an empty role and permission set, so
// every role or permission requirement denies rather than failing.
func Evaluate(in Inputs, req Requirements) Decision {
	if in.Auth == AuthLoading || in.Session.IsLoading {
		return Pending
	}
	if in.Auth == Unauthenticated {
		return Denied
	}
	if req.RequireOrganization && in.Session.Current == nil {
		return Denied
	}
	if req.RequiredRole != "" &&
		!access.RoleSatisfies(in.Session.Role, []string{req.RequiredRole}) {
		return Denied
	}
	if req.RequiredRoles != nil &&
		!access.RoleSatisfies(in.Session.Role, req.RequiredRoles) {
		return Denied
	}
	if req.RequiredPermission != nil &&
		!req.RequiredPermission.SatisfiedBy(in.Session.Permissions) {
		return Denied
	}
	if req.RequiredAction != nil &&
		!req.RequiredAction.SatisfiedBy(in.Session.Permissions) {
		return Denied
	}
	return Granted
}

// Gate wraps Evaluate with the one-shot redirect side effect and change-driven
// recomputation. The redirect fires at most once per transition into Denied
// and re-arms when the decision leaves Denied.
type Gate struct {
	req      Requirements
	redirect func(target string)
	log      *zap.Logger

	mu   sync.Mutex
	last Decision
	// fired tracks whether the redirect ran for the current Denied stretch.
	fired bool
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithRedirect sets the navigation side effect invoked on Denied.
func WithRedirect(fn func(target string)) GateOption {
	return func(g *Gate) { g.redirect = fn }
}

// WithGateLogger sets the gate logger.
func WithGateLogger(log *zap.Logger) GateOption {
	return func(g *Gate) { g.log = log }
}

// New creates a gate for one requirement set.
func New(req Requirements, opts ...GateOption) *Gate {
	g := &Gate{
		req:  req,
		log:  zap.NewNop(),
		last: Pending,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Decide evaluates the gate against inputs, recording the decision and firing
// the redirect when the decision transitions into Denied.
func (g *Gate) Decide(in Inputs) Decision {
	d := Evaluate(in, g.req)
	prometheus.RecordGateDecision(d.String())

	g.mu.Lock()
	transitioned := d == Denied && g.last != Denied
	if d != Denied {
		g.fired = false
	}
	shouldRedirect := transitioned && !g.fired && g.req.RedirectTo != "" && g.redirect != nil
	if shouldRedirect {
		g.fired = true
	}
	g.last = d
	redirect := g.redirect
	target := g.req.RedirectTo
	g.mu.Unlock()

	if shouldRedirect {
		g.log.Info("gate denied, redirecting", zap.String("target", target))
		redirect(target)
	}
	return d
}

// Bind subscribes the gate to a session store so the decision is recomputed
// on every session change. authFn supplies the authentication status at
// recompute time. The returned function unsubscribes.
func (g *Gate) Bind(store *session.Store, authFn func() AuthStatus) func() {
	return store.Subscribe(func(snap session.Snapshot) {
		g.Decide(Inputs{Auth: authFn(), Session: snap})
	})
}
