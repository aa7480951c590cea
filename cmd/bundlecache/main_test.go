package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bundlex/bundlecache/internal/cli"
)

func TestRootCommand(t *testing.T) {
	root := cli.NewRootCmd(version)
	require.NotNil(t, root)
	assert.Equal(t, "bundlecache", root.Use)
	assert.NotEmpty(t, root.Version)

	names := make([]string, 0, 4)
	for _, sub := range root.Commands() {
		names = append(names, sub.Name())
	}
	assert.Contains(t, names, "stats")
	assert.Contains(t, names, "prune")
	assert.Contains(t, names, "get")
	assert.Contains(t, names, "clear")
}
