package engine

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	"github.com/slipway-sh/slipway/pkg/manifest"
	"github.com/slipway-sh/slipway/pkg/plan"
	"github.com/slipway-sh/slipway/pkg/report"
)

// End-to-end deployment flow against the fake client, with the real
// applier, checker, and watcher wired in. Only kinds whose readiness
// the fake client can satisfy appear here; nothing reconciles a
// Deployment to Available without a controller behind it.
var _ = Describe("deployment flow", func() {
	var (
		c   client.Client
		cfg Config
	)

	newResources := func(objs ...map[string]interface{}) *plan.Plan {
		resources := make([]*manifest.Resource, 0, len(objs))
		for _, obj := range objs {
			r, err := manifest.NewResource(obj, "flow-test")
			Expect(err).NotTo(HaveOccurred())
			resources = append(resources, r)
		}
		set, err := manifest.NewSet(resources...)
		Expect(err).NotTo(HaveOccurred())
		p, err := plan.Build(set)
		Expect(err).NotTo(HaveOccurred())
		return p
	}

	BeforeEach(func() {
		scheme := runtime.NewScheme()
		Expect(clientgoscheme.AddToScheme(scheme)).To(Succeed())
		c = fake.NewClientBuilder().WithScheme(scheme).Build()

		cfg = DefaultConfig()
		cfg.MaxConcurrency = 4
		cfg.PollInterval = time.Millisecond
		cfg.QueryBackoffMax = 5 * time.Millisecond
		cfg.WorkloadTimeout = 50 * time.Millisecond
		cfg.DefaultTimeout = 50 * time.Millisecond
	})

	It("deploys an annotated chain in dependency order and reports success", func() {
		p := newResources(
			map[string]interface{}{
				"apiVersion": "v1",
				"kind":       "Secret",
				"metadata":   map[string]interface{}{"name": "db-creds", "namespace": "default"},
			},
			map[string]interface{}{
				"apiVersion": "v1",
				"kind":       "ConfigMap",
				"metadata": map[string]interface{}{
					"name": "app-config", "namespace": "default",
					"annotations": map[string]interface{}{
						manifest.AnnotationDependsOn: "Secret/default/db-creds",
					},
				},
			},
		)

		eng := New(c, cfg, logr.Discard())
		rep, err := eng.Run(context.Background(), p)
		Expect(err).NotTo(HaveOccurred())
		Expect(rep.Verdict).To(Equal(report.VerdictSuccess))

		for _, name := range []struct{ kind, name string }{
			{"Secret", "db-creds"},
			{"ConfigMap", "app-config"},
		} {
			live := &unstructured.Unstructured{}
			live.SetGroupVersionKind(schema.GroupVersionKind{Version: "v1", Kind: name.kind})
			Expect(c.Get(context.Background(),
				client.ObjectKey{Namespace: "default", Name: name.name}, live)).To(Succeed())
			Expect(live.GetAnnotations()).To(HaveKey(manifest.AnnotationSpecHash))
		}
	})

	It("reports Unchanged outcomes on an identical second run", func() {
		objs := []map[string]interface{}{
			{
				"apiVersion": "v1",
				"kind":       "Secret",
				"metadata":   map[string]interface{}{"name": "db-creds", "namespace": "default"},
			},
		}

		eng := New(c, cfg, logr.Discard())
		_, err := eng.Run(context.Background(), newResources(objs...))
		Expect(err).NotTo(HaveOccurred())

		rep, err := eng.Run(context.Background(), newResources(objs...))
		Expect(err).NotTo(HaveOccurred())
		Expect(rep.Verdict).To(Equal(report.VerdictSuccess))
		Expect(rep.Resources).To(HaveLen(1))
		Expect(rep.Resources[0].Outcome).To(Equal("Unchanged"))
	})

	It("times out on a claim that never binds and skips its dependents", func() {
		p := newResources(
			map[string]interface{}{
				"apiVersion": "v1",
				"kind":       "PersistentVolumeClaim",
				"metadata":   map[string]interface{}{"name": "data", "namespace": "default"},
				"spec": map[string]interface{}{
					"accessModes": []interface{}{"ReadWriteOnce"},
				},
			},
			map[string]interface{}{
				"apiVersion": "v1",
				"kind":       "ConfigMap",
				"metadata": map[string]interface{}{
					"name": "app-config", "namespace": "default",
					"annotations": map[string]interface{}{
						manifest.AnnotationDependsOn: "PersistentVolumeClaim/default/data",
					},
				},
			},
		)

		eng := New(c, cfg, logr.Discard())
		rep, err := eng.Run(context.Background(), p)
		Expect(err).NotTo(HaveOccurred())
		Expect(rep.Verdict).To(Equal(report.VerdictFailed))

		byResource := map[string]report.ResourceReport{}
		for _, r := range rep.Resources {
			byResource[r.Resource] = r
		}
		Expect(byResource["PersistentVolumeClaim/default/data"].State).To(Equal(report.StateTimedOut))
		Expect(byResource["ConfigMap/default/app-config"].State).To(Equal(report.StateSkipped))
	})

	It("persists nothing in dry run mode", func() {
		p := newResources(map[string]interface{}{
			"apiVersion": "v1",
			"kind":       "Secret",
			"metadata":   map[string]interface{}{"name": "db-creds", "namespace": "default"},
		})

		dryCfg := cfg
		dryCfg.DryRun = true
		rep, err := New(c, dryCfg, logr.Discard()).Run(context.Background(), p)
		Expect(err).NotTo(HaveOccurred())
		Expect(rep.DryRun).To(BeTrue())
		Expect(rep.Verdict).To(Equal(report.VerdictSuccess))
	})
})
