package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const mysqlManifests = `apiVersion: v1
kind: PersistentVolume
metadata:
  name: mysql-pv
spec:
  accessModes: ["ReadWriteOnce"]
  capacity:
    storage: 1Gi
  hostPath:
    path: /data/mysql
---
apiVersion: v1
kind: PersistentVolumeClaim
metadata:
  name: mysql-pvc
  namespace: default
spec:
  accessModes: ["ReadWriteOnce"]
  volumeName: mysql-pv
  resources:
    requests:
      storage: 1Gi
---
apiVersion: v1
kind: Secret
metadata:
  name: mysql-credentials
  namespace: default
stringData:
  password: hunter2
`

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "mysql.yaml", mysqlManifests)

	set, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, set.Len())

	pv, ok := set.Get(ID{Kind: "PersistentVolume", Name: "mysql-pv"})
	require.True(t, ok)
	assert.Equal(t, "mysql-pv", pv.Object.GetName())

	_, ok = set.Get(ID{Kind: "PersistentVolumeClaim", Namespace: "default", Name: "mysql-pvc"})
	assert.True(t, ok)
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "storage.yaml", mysqlManifests)
	writeFile(t, dir, "notes.txt", "not a manifest")

	sub := filepath.Join(dir, "app")
	require.NoError(t, os.Mkdir(sub, 0o755))
	writeFile(t, sub, "svc.yml", `apiVersion: v1
kind: Service
metadata:
  name: mysql
  namespace: default
spec:
  selector:
    app: mysql
  ports:
    - port: 3306
`)

	set, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 4, set.Len())
}

func TestLoadDuplicateResource(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", `apiVersion: v1
kind: Secret
metadata:
  name: creds
  namespace: default
`)
	writeFile(t, dir, "b.yaml", `apiVersion: v1
kind: Secret
metadata:
  name: creds
  namespace: default
`)

	_, err := Load(dir)
	require.Error(t, err)
	var dup *DuplicateResourceError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, ID{Kind: "Secret", Namespace: "default", Name: "creds"}, dup.ID)
	assert.True(t, IsValidation(err))
}

func TestLoadSchemaErrors(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
		field    string
	}{
		{
			name: "missing name",
			manifest: `apiVersion: v1
kind: Secret
metadata:
  namespace: default
`,
			field: "metadata.name",
		},
		{
			name: "missing kind",
			manifest: `apiVersion: v1
metadata:
  name: thing
`,
			field: "kind",
		},
		{
			name: "claim without access modes",
			manifest: `apiVersion: v1
kind: PersistentVolumeClaim
metadata:
  name: data
  namespace: default
spec:
  resources:
    requests:
      storage: 1Gi
`,
			field: "spec.accessModes",
		},
		{
			name: "workload with empty secret name",
			manifest: `apiVersion: apps/v1
kind: Deployment
metadata:
  name: app
  namespace: default
spec:
  template:
    spec:
      containers:
        - name: app
          image: app:1
          env:
            - name: PASSWORD
              valueFrom:
                secretKeyRef:
                  name: ""
                  key: password
`,
			field: "secret reference",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := writeFile(t, dir, "bad.yaml", tt.manifest)

			_, err := Load(path)
			require.Error(t, err)
			var schemaErr *SchemaError
			require.ErrorAs(t, err, &schemaErr)
			assert.Equal(t, tt.field, schemaErr.Field)
		})
	}
}

func TestLoadDependsOnAnnotation(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "wp.yaml", `apiVersion: apps/v1
kind: Deployment
metadata:
  name: wordpress
  namespace: default
  annotations:
    slipway.sh/depends-on: "Service/default/mysql, Secret/mysql-credentials"
spec:
  template:
    spec:
      containers:
        - name: wordpress
          image: wordpress:6
`)

	set, err := Load(path)
	require.NoError(t, err)
	r := set.Resources[0]
	require.Len(t, r.DependsOn, 2)
	assert.Equal(t, ID{Kind: "Service", Namespace: "default", Name: "mysql"}, r.DependsOn[0])
	assert.Equal(t, ID{Kind: "Secret", Name: "mysql-credentials"}, r.DependsOn[1])
}

func TestLoadMalformedDependsOn(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bad.yaml", `apiVersion: v1
kind: Service
metadata:
  name: web
  namespace: default
  annotations:
    slipway.sh/depends-on: "not-a-reference"
`)

	_, err := Load(path)
	require.Error(t, err)
	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
}

func TestSetHashIsStable(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "mysql.yaml", mysqlManifests)

	first, err := Load(path)
	require.NoError(t, err)
	second, err := Load(path)
	require.NoError(t, err)

	assert.NotEmpty(t, first.Hash())
	assert.Equal(t, first.Hash(), second.Hash())
}

func TestParseID(t *testing.T) {
	id, err := ParseID("Service/default/mysql")
	require.NoError(t, err)
	assert.Equal(t, ID{Kind: "Service", Namespace: "default", Name: "mysql"}, id)

	id, err = ParseID("PersistentVolume/mysql-pv")
	require.NoError(t, err)
	assert.Equal(t, ID{Kind: "PersistentVolume", Name: "mysql-pv"}, id)

	_, err = ParseID("just-a-name")
	assert.Error(t, err)
}
