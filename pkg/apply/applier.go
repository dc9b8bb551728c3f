package apply

import (
	"context"
	"fmt"
	"time"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/slipway-sh/slipway/pkg/manifest"
	"github.com/slipway-sh/slipway/pkg/metrics"
)

// DefaultFieldManager is the field manager name used for server-side
// apply submissions.
const DefaultFieldManager = "slipway"

// Outcome classifies a single apply submission.
type Outcome string

const (
	// OutcomeCreated means the resource did not exist and was created.
	OutcomeCreated Outcome = "Created"

	// OutcomeConfigured means the resource existed with a different
	// spec and was patched.
	OutcomeConfigured Outcome = "Configured"

	// OutcomeUnchanged means the resource already existed with an
	// identical spec; nothing was written.
	OutcomeUnchanged Outcome = "Unchanged"

	// OutcomeFailed means the submission failed.
	OutcomeFailed Outcome = "Failed"
)

// Result is the per-resource outcome of an apply, including the
// cluster-assigned identifiers the readiness watcher polls with.
type Result struct {
	Resource        string    `json:"resource"`
	Outcome         Outcome   `json:"outcome"`
	UID             types.UID `json:"uid,omitempty"`
	ResourceVersion string    `json:"resourceVersion,omitempty"`
	Error           string    `json:"error,omitempty"`
}

// Applier submits resources to the cluster with server-side apply.
type Applier struct {
	client       client.Client
	fieldManager string
	force        bool
	dryRun       bool
}

// NewApplier creates an applier with the default field manager.
func NewApplier(c client.Client) *Applier {
	return &Applier{client: c, fieldManager: DefaultFieldManager}
}

// WithFieldManager returns an applier using the given field manager.
func (a *Applier) WithFieldManager(name string) *Applier {
	copied := *a
	copied.fieldManager = name
	return &copied
}

// WithForceConflicts returns an applier that takes ownership of
// conflicting fields instead of surfacing a ConflictError.
func (a *Applier) WithForceConflicts(force bool) *Applier {
	copied := *a
	copied.force = force
	return &copied
}

// WithDryRun returns an applier that submits every request with
// DryRunAll.
func (a *Applier) WithDryRun(dryRun bool) *Applier {
	copied := *a
	copied.dryRun = dryRun
	return &copied
}

// Apply submits a resource. Applying an identical manifest twice is
// reported as Unchanged on the second call, never as a conflict: the
// previous apply stamped a content hash annotation and a matching live
// hash short-circuits before any write.
func (a *Applier) Apply(ctx context.Context, res *manifest.Resource) (Result, error) {
	if res == nil {
		return Result{}, fmt.Errorf("resource cannot be nil")
	}

	id := res.ID()
	result := Result{Resource: id.String()}
	start := time.Now()

	desired := res.Object.DeepCopy()
	hash := res.Hash()

	annotations := desired.GetAnnotations()
	if annotations == nil {
		annotations = map[string]string{}
	}
	annotations[manifest.AnnotationSpecHash] = hash
	desired.SetAnnotations(annotations)

	outcome, err := a.submit(ctx, desired, hash)
	result.Outcome = outcome
	if err != nil {
		result.Outcome = OutcomeFailed
		result.Error = err.Error()
		metrics.RecordApply("failure", id.Kind, time.Since(start).Seconds())
		return result, err
	}

	result.UID = desired.GetUID()
	result.ResourceVersion = desired.GetResourceVersion()
	metrics.RecordApply(string(outcome), id.Kind, time.Since(start).Seconds())
	return result, nil
}

func (a *Applier) submit(ctx context.Context, desired *unstructured.Unstructured, hash string) (Outcome, error) {
	key := client.ObjectKeyFromObject(desired)
	existing := &unstructured.Unstructured{}
	existing.SetGroupVersionKind(desired.GroupVersionKind())

	err := a.client.Get(ctx, key, existing)
	switch {
	case apierrors.IsNotFound(err):
		if createErr := a.client.Create(ctx, desired, a.createOptions()...); createErr != nil {
			if apierrors.IsAlreadyExists(createErr) {
				// Lost a race with another writer; fall through to patch.
				return a.patch(ctx, desired)
			}
			return OutcomeFailed, fmt.Errorf("failed to create %s/%s: %w", desired.GetNamespace(), desired.GetName(), createErr)
		}
		return OutcomeCreated, nil

	case err != nil:
		return OutcomeFailed, fmt.Errorf("failed to get %s/%s: %w", desired.GetNamespace(), desired.GetName(), err)
	}

	if existing.GetAnnotations()[manifest.AnnotationSpecHash] == hash {
		desired.SetUID(existing.GetUID())
		desired.SetResourceVersion(existing.GetResourceVersion())
		return OutcomeUnchanged, nil
	}

	return a.patch(ctx, desired)
}

func (a *Applier) patch(ctx context.Context, desired *unstructured.Unstructured) (Outcome, error) {
	patchOpts := []client.PatchOption{client.FieldOwner(a.fieldManager)}
	if a.force {
		patchOpts = append(patchOpts, client.ForceOwnership)
	}
	if a.dryRun {
		patchOpts = append(patchOpts, client.DryRunAll)
	}

	if err := a.client.Patch(ctx, desired, client.Apply, patchOpts...); err != nil {
		if apierrors.IsConflict(err) {
			return OutcomeFailed, &ConflictError{
				Resource:     fmt.Sprintf("%s/%s", desired.GetNamespace(), desired.GetName()),
				FieldManager: a.fieldManager,
				Err:          err,
			}
		}
		return OutcomeFailed, fmt.Errorf("failed to apply %s/%s: %w", desired.GetNamespace(), desired.GetName(), err)
	}
	return OutcomeConfigured, nil
}

func (a *Applier) createOptions() []client.CreateOption {
	if a.dryRun {
		return []client.CreateOption{client.DryRunAll}
	}
	return nil
}

// ConflictError represents an apply-time spec mismatch on an existing
// resource owned by another field manager.
type ConflictError struct {
	Resource     string
	FieldManager string
	Err          error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("field manager conflict for %s (field manager: %s): %v", e.Resource, e.FieldManager, e.Err)
}

func (e *ConflictError) Unwrap() error {
	return e.Err
}
