package plan

import (
	"fmt"
	"strings"

	"github.com/slipway-sh/slipway/pkg/manifest"
)

// CycleError indicates the dependency set contains a cycle. Members
// are listed in traversal order, closing with the first member again.
type CycleError struct {
	Members []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle: %s", strings.Join(e.Members, " -> "))
}

// MissingDependencyError indicates a resource depends on an identity
// that is not part of the manifest set.
type MissingDependencyError struct {
	Resource manifest.ID
	Missing  manifest.ID
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("resource %s depends on %s, which is not in the manifest set",
		e.Resource, e.Missing)
}

// SharedVolumeError indicates two workloads in the same stage mount
// the same ReadWriteOnce claim; applying them concurrently would race
// for the volume.
type SharedVolumeError struct {
	Claim     manifest.ID
	Workloads []string
	Stage     int
}

func (e *SharedVolumeError) Error() string {
	return fmt.Sprintf("workloads %s in stage %d both mount ReadWriteOnce claim %s",
		strings.Join(e.Workloads, " and "), e.Stage, e.Claim)
}
