package cluster

import (
	"errors"
	"fmt"
	"net"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/tools/clientcmd"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

var scheme = runtime.NewScheme()

func init() {
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
}

// NewClient builds a cluster client from a kubeconfig path. An empty
// path falls back to the standard loading rules (KUBECONFIG, then the
// default home location).
func NewClient(kubeconfig string) (client.Client, error) {
	loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
	if kubeconfig != "" {
		loadingRules.ExplicitPath = kubeconfig
	}
	config, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
		loadingRules, &clientcmd.ConfigOverrides{},
	).ClientConfig()
	if err != nil {
		return nil, &FatalError{Op: "load kubeconfig", Err: err}
	}

	c, err := client.New(config, client.Options{Scheme: scheme})
	if err != nil {
		return nil, &FatalError{Op: "create client", Err: err}
	}
	return c, nil
}

// FatalError marks a cluster-level failure (unreachable API,
// unauthorized) that aborts the whole run, as opposed to a
// per-resource failure that only blocks dependents.
type FatalError struct {
	Op  string
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal cluster error during %s: %v", e.Op, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err should abort the run: authentication and
// authorization rejections, and transport-level failures that make
// every subsequent request pointless.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var fatal *FatalError
	if errors.As(err, &fatal) {
		return true
	}
	if apierrors.IsUnauthorized(err) || apierrors.IsForbidden(err) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
