package project

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeAppName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"simple", "MyApp", "myapp"},
		{"spaces and slashes", "my app/v2", "my-app-v2"},
		{"collapses repeats", "a---b___c", "a-b-c"},
		{"strips leading dots", "../../etc", "etc"},
		{"empty falls back", "####", "default"},
		{"already safe", "checkout-service", "checkout-service"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeAppName(tt.input))
		})
	}
}

func TestEnsureProjectDirIdempotent(t *testing.T) {
	root := t.TempDir()
	r := NewRegistry(root)

	_, err := r.EnsureGlobalDir()
	require.NoError(t, err)

	cfg1, err := r.EnsureProjectDir("demo")
	require.NoError(t, err)
	assert.Equal(t, "demo", cfg1.Name)

	cfg2, err := r.EnsureProjectDir("demo")
	require.NoError(t, err)
	assert.Equal(t, cfg1.CreatedAt, cfg2.CreatedAt, "second call must not reseed config")

	assert.DirExists(t, filepath.Join(root, "projects", "demo", "sessions"))
}

func TestListProjects(t *testing.T) {
	root := t.TempDir()
	r := NewRegistry(root)
	_, err := r.EnsureGlobalDir()
	require.NoError(t, err)

	_, err = r.EnsureProjectDir("alpha")
	require.NoError(t, err)
	_, err = r.EnsureProjectDir("beta")
	require.NoError(t, err)

	names, err := r.ListProjects()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alpha", "beta"}, names)
}
