package session

// State is the lifecycle state of a session store.
//
//	Uninitialized -> Loading -> {ReadyWithOrg, ReadyNoOrg}
//	Loading -> LoadFailed (exited only by Refresh)
//
// ReadyWithOrg carries a sub-state for whether the membership has resolved
// yet, exposed as Snapshot.MembershipResolved.
type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateReadyNoOrg
	StateReadyWithOrg
	StateLoadFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateReadyNoOrg:
		return "ready_no_org"
	case StateReadyWithOrg:
		return "ready_with_org"
	case StateLoadFailed:
		return "load_failed"
	default:
		return "unknown"
	}
}
