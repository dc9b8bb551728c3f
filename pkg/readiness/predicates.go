package readiness

import (
	"context"
	"fmt"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// PredicateType selects a readiness predicate implementation.
type PredicateType string

const (
	// PredicateExists is satisfied once the resource exists.
	PredicateExists PredicateType = "Exists"

	// PredicateClaimBound is satisfied once a PersistentVolumeClaim is
	// bound to a volume.
	PredicateClaimBound PredicateType = "ClaimBound"

	// PredicateWorkloadAvailable is satisfied once a workload's
	// minimum-available replica condition holds.
	PredicateWorkloadAvailable PredicateType = "WorkloadAvailable"

	// PredicateServiceHasEndpoints is satisfied once a Service has at
	// least one ready backing endpoint.
	PredicateServiceHasEndpoints PredicateType = "ServiceHasEndpoints"

	// PredicateConditionMatch is satisfied once a named status
	// condition has the expected status.
	PredicateConditionMatch PredicateType = "ConditionMatch"
)

// Predicate is a declarative readiness condition for one resource.
type Predicate struct {
	Type PredicateType `json:"type"`

	// ConditionType is the condition to check (ConditionMatch only).
	ConditionType string `json:"conditionType,omitempty"`

	// ConditionStatus is the expected status (ConditionMatch only).
	ConditionStatus string `json:"conditionStatus,omitempty"`
}

// Validate checks predicate parameters.
func (p *Predicate) Validate() error {
	switch p.Type {
	case PredicateConditionMatch:
		if p.ConditionType == "" {
			return fmt.Errorf("conditionType is required for ConditionMatch predicate")
		}
		if p.ConditionStatus == "" {
			return fmt.Errorf("conditionStatus is required for ConditionMatch predicate")
		}
	case PredicateExists, PredicateClaimBound, PredicateWorkloadAvailable, PredicateServiceHasEndpoints:
	default:
		return fmt.Errorf("unknown predicate type: %s", p.Type)
	}
	return nil
}

// Observation is a single readiness evaluation result. Failed marks a
// terminal condition (the platform reported the resource broken, e.g.
// a replica failure), distinct from merely not ready yet.
type Observation struct {
	Ready   bool
	Failed  bool
	Message string
}

// Evaluator evaluates one predicate against the live object.
type Evaluator interface {
	Evaluate(ctx context.Context, c client.Client, obj *unstructured.Unstructured) (Observation, error)
}

// NewEvaluator builds the Evaluator for a predicate.
func NewEvaluator(p Predicate) (Evaluator, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	switch p.Type {
	case PredicateExists:
		return &existsEvaluator{}, nil
	case PredicateClaimBound:
		return &claimBoundEvaluator{}, nil
	case PredicateWorkloadAvailable:
		return &workloadAvailableEvaluator{}, nil
	case PredicateServiceHasEndpoints:
		return &serviceEndpointsEvaluator{}, nil
	case PredicateConditionMatch:
		return &conditionMatchEvaluator{
			conditionType:   p.ConditionType,
			conditionStatus: p.ConditionStatus,
		}, nil
	}
	return nil, fmt.Errorf("unknown predicate type: %s", p.Type)
}

type existsEvaluator struct{}

func (e *existsEvaluator) Evaluate(ctx context.Context, c client.Client, obj *unstructured.Unstructured) (Observation, error) {
	key := client.ObjectKeyFromObject(obj)
	probe := &unstructured.Unstructured{}
	probe.SetGroupVersionKind(obj.GroupVersionKind())
	if err := c.Get(ctx, key, probe); err != nil {
		if apierrors.IsNotFound(err) {
			return Observation{Message: "resource does not exist"}, nil
		}
		return Observation{}, err
	}
	return Observation{Ready: true, Message: "resource exists"}, nil
}

type claimBoundEvaluator struct{}

func (e *claimBoundEvaluator) Evaluate(ctx context.Context, c client.Client, obj *unstructured.Unstructured) (Observation, error) {
	phase, _, err := unstructured.NestedString(obj.Object, "status", "phase")
	if err != nil {
		return Observation{}, fmt.Errorf("failed to read claim phase: %w", err)
	}
	switch corev1.PersistentVolumeClaimPhase(phase) {
	case corev1.ClaimBound:
		return Observation{Ready: true, Message: "claim is bound"}, nil
	case corev1.ClaimLost:
		return Observation{Failed: true, Message: "claim lost its bound volume"}, nil
	default:
		return Observation{Message: fmt.Sprintf("claim phase is %q", phase)}, nil
	}
}

type workloadAvailableEvaluator struct{}

func (e *workloadAvailableEvaluator) Evaluate(ctx context.Context, c client.Client, obj *unstructured.Unstructured) (Observation, error) {
	if obj.GetKind() == "Deployment" {
		return e.evaluateDeployment(obj)
	}
	return e.evaluateReplicas(obj)
}

func (e *workloadAvailableEvaluator) evaluateDeployment(obj *unstructured.Unstructured) (Observation, error) {
	var deployment appsv1.Deployment
	if err := runtime.DefaultUnstructuredConverter.FromUnstructured(obj.Object, &deployment); err != nil {
		return Observation{}, fmt.Errorf("failed to convert to Deployment: %w", err)
	}

	// Terminal failure signals take precedence over availability.
	for _, cond := range deployment.Status.Conditions {
		switch cond.Type {
		case appsv1.DeploymentReplicaFailure:
			if cond.Status == corev1.ConditionTrue {
				return Observation{Failed: true, Message: cond.Message}, nil
			}
		case appsv1.DeploymentProgressing:
			if cond.Status == corev1.ConditionFalse && cond.Reason == "ProgressDeadlineExceeded" {
				return Observation{Failed: true, Message: cond.Message}, nil
			}
		}
	}
	for _, cond := range deployment.Status.Conditions {
		if cond.Type == appsv1.DeploymentAvailable {
			if cond.Status == corev1.ConditionTrue {
				return Observation{Ready: true, Message: cond.Message}, nil
			}
			return Observation{Message: cond.Message}, nil
		}
	}
	return Observation{Message: "deployment has no Available condition yet"}, nil
}

// evaluateReplicas covers pod-template kinds without an Available
// condition: ready replicas must meet the desired count.
func (e *workloadAvailableEvaluator) evaluateReplicas(obj *unstructured.Unstructured) (Observation, error) {
	desired, found, err := unstructured.NestedInt64(obj.Object, "spec", "replicas")
	if err != nil {
		return Observation{}, fmt.Errorf("failed to read desired replicas: %w", err)
	}
	if !found {
		desired = 1
	}
	ready, _, err := unstructured.NestedInt64(obj.Object, "status", "readyReplicas")
	if err != nil {
		return Observation{}, fmt.Errorf("failed to read ready replicas: %w", err)
	}
	if ready >= desired {
		return Observation{Ready: true, Message: fmt.Sprintf("%d/%d replicas ready", ready, desired)}, nil
	}
	return Observation{Message: fmt.Sprintf("%d/%d replicas ready", ready, desired)}, nil
}

type serviceEndpointsEvaluator struct{}

func (e *serviceEndpointsEvaluator) Evaluate(ctx context.Context, c client.Client, obj *unstructured.Unstructured) (Observation, error) {
	endpoints := &corev1.Endpoints{}
	key := client.ObjectKey{Namespace: obj.GetNamespace(), Name: obj.GetName()}
	if err := c.Get(ctx, key, endpoints); err != nil {
		if apierrors.IsNotFound(err) {
			return Observation{Message: "service has no endpoints object yet"}, nil
		}
		return Observation{}, err
	}

	for _, subset := range endpoints.Subsets {
		if len(subset.Addresses) > 0 {
			return Observation{
				Ready:   true,
				Message: fmt.Sprintf("service has %d ready endpoint(s)", len(subset.Addresses)),
			}, nil
		}
	}
	return Observation{Message: "service has no ready endpoints"}, nil
}

type conditionMatchEvaluator struct {
	conditionType   string
	conditionStatus string
}

func (e *conditionMatchEvaluator) Evaluate(ctx context.Context, c client.Client, obj *unstructured.Unstructured) (Observation, error) {
	conditions, found, err := unstructured.NestedSlice(obj.Object, "status", "conditions")
	if err != nil {
		return Observation{}, fmt.Errorf("failed to read conditions: %w", err)
	}
	if !found {
		return Observation{Message: "resource has no conditions yet"}, nil
	}

	for _, raw := range conditions {
		condMap, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		condType, _, _ := unstructured.NestedString(condMap, "type")
		if condType != e.conditionType {
			continue
		}
		condStatus, _, _ := unstructured.NestedString(condMap, "status")
		message, _, _ := unstructured.NestedString(condMap, "message")
		if message == "" {
			message = fmt.Sprintf("condition %s is %s", condType, condStatus)
		}
		if condStatus == e.conditionStatus {
			return Observation{Ready: true, Message: message}, nil
		}
		return Observation{Message: message}, nil
	}
	return Observation{Message: fmt.Sprintf("condition %s not reported yet", e.conditionType)}, nil
}
