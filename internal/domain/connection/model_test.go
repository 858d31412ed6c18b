package connection

import "testing"

func TestCanTransitionAllowsUserRevokeFromPendingAuth(t *testing.T) {
	if !CanTransition(StatePendingAuth, StateRevoked) {
		t.Error("CanTransition(PendingAuth, Revoked) = false, want true: a connection must be revocable before OAuth completes")
	}
}

func TestCanTransitionRejectsEdgesNotListed(t *testing.T) {
	if CanTransition(StateRevoked, StateActive) {
		t.Error("CanTransition(Revoked, Active) = true, want false: revoked is terminal")
	}
}

func TestCanTransitionAllowsDegradedRecovery(t *testing.T) {
	if !CanTransition(StateDegraded, StateActive) {
		t.Error("CanTransition(Degraded, Active) = false, want true")
	}
}
