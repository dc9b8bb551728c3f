package readiness

import (
	"context"
	"testing"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

func TestCheckerPendingWhileResourceInvisible(t *testing.T) {
	checker := NewChecker(newFakeClient(t))
	obs, err := checker.Check(context.Background(), claim(""), []Predicate{{Type: PredicateClaimBound}})
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if obs.Ready || obs.Failed {
		t.Errorf("Observation = {Ready:%v Failed:%v}, want pending", obs.Ready, obs.Failed)
	}
}

func TestCheckerFetchesLatestStatus(t *testing.T) {
	// The manifest copy carries no status; only the live object does.
	live := &corev1.PersistentVolumeClaim{
		ObjectMeta: metav1.ObjectMeta{Name: "data", Namespace: "default"},
		Status:     corev1.PersistentVolumeClaimStatus{Phase: corev1.ClaimBound},
	}
	checker := NewChecker(newFakeClient(t, live))

	obs, err := checker.Check(context.Background(), claim(""), []Predicate{{Type: PredicateClaimBound}})
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if !obs.Ready {
		t.Errorf("bound claim not reported ready: %s", obs.Message)
	}
}

func TestCheckerFailureShortCircuits(t *testing.T) {
	live := &corev1.PersistentVolumeClaim{
		ObjectMeta: metav1.ObjectMeta{Name: "data", Namespace: "default"},
		Status:     corev1.PersistentVolumeClaimStatus{Phase: corev1.ClaimLost},
	}
	checker := NewChecker(newFakeClient(t, live))

	obs, err := checker.Check(context.Background(), claim(""), []Predicate{
		{Type: PredicateClaimBound},
		{Type: PredicateExists},
	})
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if !obs.Failed {
		t.Error("lost claim not reported failed")
	}
}

func TestCheckerNoPredicatesIsReady(t *testing.T) {
	checker := NewChecker(newFakeClient(t))
	obs, err := checker.Check(context.Background(), claim(""), nil)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if !obs.Ready {
		t.Error("resource without predicates not reported ready")
	}
}
