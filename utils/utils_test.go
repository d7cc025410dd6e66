package utils

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fileConfig struct {
	Name  string `json:"name" validate:"required"`
	Limit int    `json:"limit" validate:"gte=1"`
}

func TestUnmarshalFile(t *testing.T) {
	dir := t.TempDir()

	yamlFile := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(yamlFile, []byte("name: stripe\nlimit: 3\n"), 0o600))
	cfg := &fileConfig{}
	require.NoError(t, UnmarshalFile(yamlFile, cfg, true))
	assert.Equal(t, "stripe", cfg.Name)
	assert.Equal(t, 3, cfg.Limit)

	jsonFile := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(jsonFile, []byte(`{"limit": 0}`), 0o600))
	err := UnmarshalFile(jsonFile, &fileConfig{}, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name")

	txtFile := filepath.Join(dir, "config.txt")
	require.NoError(t, os.WriteFile(txtFile, []byte("name: x"), 0o600))
	assert.Error(t, UnmarshalFile(txtFile, &fileConfig{}, false))
	assert.Error(t, UnmarshalFile(filepath.Join(dir, "missing.json"), &fileConfig{}, false))
}

func TestHelpers(t *testing.T) {
	idx, found := ArrayContains([]string{"a", "b"}, func(elem string) bool { return elem == "b" })
	assert.True(t, found)
	assert.Equal(t, 1, idx)

	assert.Equal(t, "x", Ternary(true, "x", "y").(string))

	first, second := ULID(), ULID()
	assert.NotEqual(t, first, second)
	assert.Len(t, first, 26)

	cmds := []*cobra.Command{{Use: "sync"}, {Use: "check"}}
	assert.True(t, IsValidSubcommand(cmds, "check"))
	assert.False(t, IsValidSubcommand(cmds, "clear"))
}

func TestErrorHelpers(t *testing.T) {
	first, second := errors.New("first"), errors.New("second")

	err := ErrExecSequential(
		func() error { return first },
		func() error { return nil },
		ErrExecFormat("closing: %w", func() error { return second }),
	)
	require.Error(t, err)
	parts := ErrList(err)
	require.Len(t, parts, 2)
	assert.ErrorIs(t, parts[1], second)

	assert.Nil(t, ErrAppend(nil, nil, nil))
	assert.Len(t, ErrList(ErrAppend(nil, first, nil, second)), 2)
	assert.Nil(t, ErrList(nil))
}
