package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig(t *testing.T) {
	dir := t.TempDir()

	c1, err := ReadOrCreate(dir)
	require.NoError(t, err)
	assert.Equal(t, Default(), c1)

	c1.Model.Path = "gs://bucket/final_model.onnx"
	c1.Reference.Table = "train_fe"
	c1.Server.Port = 9090

	require.NoError(t, Save(dir, c1))

	c2, err := ReadOrCreate(dir)
	require.NoError(t, err)
	assert.Equal(t, c1, c2)
}

func TestRead_FillsDefaults(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, configFileName)
	require.NoError(t, os.WriteFile(p, []byte("model:\n  path: m.json\n"), fileMode))

	c, err := Read(p)
	require.NoError(t, err)
	assert.Equal(t, "m.json", c.Model.Path)
	assert.Equal(t, DefaultReferencePath, c.Reference.Path)
	assert.Equal(t, DefaultLabel, c.Reference.Label)
	assert.Equal(t, DefaultPort, c.Server.Port)
}

func TestRead_Invalid(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, configFileName)
	require.NoError(t, os.WriteFile(p, []byte("model: [\n"), fileMode))

	_, err := Read(p)
	assert.Error(t, err)

	_, err = Read(filepath.Join(dir, "nope.yaml"))
	assert.Error(t, err)
}

func TestSave_Errors(t *testing.T) {
	assert.Error(t, Save("", Default()))
	assert.Error(t, Save(t.TempDir(), nil))

	_, err := ReadOrCreate("")
	assert.Error(t, err)
}

func TestGetOrCreateHomeDir(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	dir, created, err := GetOrCreateHomeDir("credscore")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, ".credscore", filepath.Base(dir))

	_, created, err = GetOrCreateHomeDir(".credscore")
	require.NoError(t, err)
	assert.False(t, created)

	_, _, err = GetOrCreateHomeDir("")
	assert.Error(t, err)
}
