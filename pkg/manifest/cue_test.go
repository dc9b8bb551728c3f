package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCUEPackage(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "stack.cue", `package stack

_namespace: "default"

resources: [
	{
		apiVersion: "v1"
		kind:       "Secret"
		metadata: {
			name:      "mysql-credentials"
			namespace: _namespace
		}
		stringData: password: "hunter2"
	},
	{
		apiVersion: "v1"
		kind:       "Service"
		metadata: {
			name:      "mysql"
			namespace: _namespace
		}
		spec: {
			selector: app: "mysql"
			ports: [{port: 3306}]
		}
	},
]
`)

	set, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, set.Len())

	secret, ok := set.Get(ID{Kind: "Secret", Namespace: "default", Name: "mysql-credentials"})
	require.True(t, ok)
	assert.Equal(t, dir, secret.Source)

	_, ok = set.Get(ID{Kind: "Service", Namespace: "default", Name: "mysql"})
	assert.True(t, ok)
}

func TestLoadCUEWithoutResourcesList(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "broken.cue", `package stack

something: else: true
`)

	_, err := Load(dir)
	require.Error(t, err)
	var parseErr *ParseError
	assert.ErrorAs(t, err, &parseErr)
}
