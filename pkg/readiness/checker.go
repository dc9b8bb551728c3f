package readiness

import (
	"context"
	"fmt"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// Checker evaluates readiness predicates against the live cluster
// state of a resource.
type Checker struct {
	client client.Client
}

// NewChecker creates a new readiness checker.
func NewChecker(c client.Client) *Checker {
	return &Checker{client: c}
}

// Check fetches the latest version of the resource and evaluates all
// predicates. The aggregate is failed if any predicate observed a
// terminal failure, ready only when every predicate is satisfied, and
// pending otherwise. A resource that does not exist yet is pending,
// not an error: status may lag the apply.
func (c *Checker) Check(ctx context.Context, obj *unstructured.Unstructured, predicates []Predicate) (Observation, error) {
	if obj == nil {
		return Observation{}, fmt.Errorf("object cannot be nil")
	}
	if len(predicates) == 0 {
		return Observation{Ready: true}, nil
	}

	key := client.ObjectKeyFromObject(obj)
	latest := &unstructured.Unstructured{}
	latest.SetGroupVersionKind(obj.GroupVersionKind())
	if err := c.client.Get(ctx, key, latest); err != nil {
		if apierrors.IsNotFound(err) {
			return Observation{Message: "resource not visible yet"}, nil
		}
		return Observation{}, fmt.Errorf("failed to get resource: %w", err)
	}

	aggregate := Observation{Ready: true}
	for _, pred := range predicates {
		evaluator, err := NewEvaluator(pred)
		if err != nil {
			return Observation{}, err
		}
		obs, err := evaluator.Evaluate(ctx, c.client, latest)
		if err != nil {
			return Observation{}, fmt.Errorf("predicate %s: %w", pred.Type, err)
		}
		if obs.Failed {
			return obs, nil
		}
		if !obs.Ready {
			aggregate.Ready = false
			if aggregate.Message == "" {
				aggregate.Message = obs.Message
			}
		} else if aggregate.Ready {
			aggregate.Message = obs.Message
		}
	}
	return aggregate, nil
}
