package manifest

import (
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// validateResource checks the declaration for required fields. Storage
// resources must declare access modes; workloads must not reference
// secrets by empty name.
func validateResource(r *Resource) error {
	schemaErr := func(field, reason string) error {
		return &SchemaError{
			Source:   r.Source,
			Resource: r.ID().String(),
			Field:    field,
			Reason:   reason,
		}
	}

	if r.Object.GetAPIVersion() == "" {
		return schemaErr("apiVersion", "required")
	}
	if r.Object.GetKind() == "" {
		return schemaErr("kind", "required")
	}
	if r.Object.GetName() == "" {
		return schemaErr("metadata.name", "required")
	}

	switch r.Object.GetKind() {
	case "PersistentVolume", "PersistentVolumeClaim":
		modes, found, err := unstructured.NestedStringSlice(r.Object.Object, "spec", "accessModes")
		if err != nil {
			return schemaErr("spec.accessModes", err.Error())
		}
		if !found || len(modes) == 0 {
			return schemaErr("spec.accessModes", "required for storage resources")
		}
	}

	if IsWorkload(r.Object.GetKind()) {
		for _, name := range SecretRefs(&r.Object) {
			if name == "" {
				return schemaErr("secret reference", "secret name must not be empty")
			}
		}
	}

	return nil
}

// IsWorkload reports whether the kind carries a pod template (or is a
// bare Pod) and therefore participates in workload dependency rules.
func IsWorkload(kind string) bool {
	switch kind {
	case "Deployment", "StatefulSet", "DaemonSet", "Job", "ReplicaSet", "Pod":
		return true
	}
	return false
}

// PodSpec extracts the pod spec of a workload, whichever kind wraps it.
func PodSpec(obj *unstructured.Unstructured) (map[string]interface{}, bool) {
	var path []string
	if obj.GetKind() == "Pod" {
		path = []string{"spec"}
	} else {
		path = []string{"spec", "template", "spec"}
	}
	spec, found, err := unstructured.NestedMap(obj.Object, path...)
	if err != nil || !found {
		return nil, false
	}
	return spec, true
}

// ClaimRefs returns the persistent volume claim names a workload mounts.
func ClaimRefs(obj *unstructured.Unstructured) []string {
	spec, ok := PodSpec(obj)
	if !ok {
		return nil
	}
	volumes, found, _ := unstructured.NestedSlice(spec, "volumes")
	if !found {
		return nil
	}

	var claims []string
	for _, v := range volumes {
		vol, ok := v.(map[string]interface{})
		if !ok {
			continue
		}
		name, found, _ := unstructured.NestedString(vol, "persistentVolumeClaim", "claimName")
		if found {
			claims = append(claims, name)
		}
	}
	return claims
}

// SecretRefs returns every secret name a workload references through
// env vars, envFrom, volumes, or image pull secrets. Empty names are
// preserved so validation can reject them.
func SecretRefs(obj *unstructured.Unstructured) []string {
	spec, ok := PodSpec(obj)
	if !ok {
		return nil
	}

	seen := map[string]bool{}
	var refs []string
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			refs = append(refs, name)
		}
	}

	containers, _, _ := unstructured.NestedSlice(spec, "containers")
	initContainers, _, _ := unstructured.NestedSlice(spec, "initContainers")
	for _, c := range append(containers, initContainers...) {
		container, ok := c.(map[string]interface{})
		if !ok {
			continue
		}

		envs, _, _ := unstructured.NestedSlice(container, "env")
		for _, e := range envs {
			env, ok := e.(map[string]interface{})
			if !ok {
				continue
			}
			if name, found, _ := unstructured.NestedString(env, "valueFrom", "secretKeyRef", "name"); found {
				add(name)
			}
		}

		envFroms, _, _ := unstructured.NestedSlice(container, "envFrom")
		for _, e := range envFroms {
			envFrom, ok := e.(map[string]interface{})
			if !ok {
				continue
			}
			if name, found, _ := unstructured.NestedString(envFrom, "secretRef", "name"); found {
				add(name)
			}
		}
	}

	volumes, _, _ := unstructured.NestedSlice(spec, "volumes")
	for _, v := range volumes {
		vol, ok := v.(map[string]interface{})
		if !ok {
			continue
		}
		if name, found, _ := unstructured.NestedString(vol, "secret", "secretName"); found {
			add(name)
		}
	}

	pullSecrets, _, _ := unstructured.NestedSlice(spec, "imagePullSecrets")
	for _, p := range pullSecrets {
		ref, ok := p.(map[string]interface{})
		if !ok {
			continue
		}
		if name, found, _ := unstructured.NestedString(ref, "name"); found {
			add(name)
		}
	}

	return refs
}

// Selector returns a Service's pod selector labels.
func Selector(obj *unstructured.Unstructured) map[string]string {
	selector, _, _ := unstructured.NestedStringMap(obj.Object, "spec", "selector")
	return selector
}

// PodLabels returns the labels a workload stamps on its pods: the pod
// template labels, or the object's own labels for a bare Pod.
func PodLabels(obj *unstructured.Unstructured) map[string]string {
	if obj.GetKind() == "Pod" {
		return obj.GetLabels()
	}
	labels, _, _ := unstructured.NestedStringMap(obj.Object, "spec", "template", "metadata", "labels")
	return labels
}

// AccessModes returns the declared access modes of a storage resource.
func AccessModes(obj *unstructured.Unstructured) []string {
	modes, _, _ := unstructured.NestedStringSlice(obj.Object, "spec", "accessModes")
	return modes
}
