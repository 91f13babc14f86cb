package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandTree(t *testing.T) {
	root := rootCmd()

	for _, path := range [][]string{
		{"import"},
		{"finalize"},
		{"backup", "export"},
		{"backup", "restore"},
		{"export"},
		{"trace"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}

func TestImportRequiresFile(t *testing.T) {
	root := rootCmd()
	root.SetArgs([]string{"import", "--entity", "modalities"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"file"`)
}

func TestActorName(t *testing.T) {
	t.Setenv("USER", "curator")
	assert.Equal(t, "pipelinectl:curator", actorName())

	t.Setenv("USER", "")
	assert.Equal(t, "pipelinectl", actorName())
}
