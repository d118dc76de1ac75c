package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "lot", c.GroupBy)
	assert.Equal(t, "utf-8", c.Encoding)
	assert.Equal(t, 64, c.MaxFileMB)
	assert.Equal(t, []string{"markdown"}, c.Formats)
	assert.Equal(t, 3.5, c.OutlierThreshold)
	assert.Empty(t, c.Params)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("group_by: wafer\nparams: [BVDSS1, IDSS1]\nworkers: 4\n"), 0o644))
	t.Setenv("CPLOG_WORKERS", "2")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "wafer", c.GroupBy)
	assert.Equal(t, []string{"BVDSS1", "IDSS1"}, c.Params)
	assert.Equal(t, 2, c.Workers, "env beats file")
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("group_by: die\n"), 0o644))
	_, err := Load(path)
	assert.ErrorContains(t, err, "invalid config")
}

func TestLoadMissingExplicitFile(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "lot", c.GroupBy)
}

func TestSetSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	c, err := Load(path)
	require.NoError(t, err)

	require.NoError(t, c.Set("params", "BVDSS1, IDSS1"))
	require.NoError(t, c.Set("group_by", "LOT_WAFER"))
	require.NoError(t, c.Set("formats", "markdown,xlsx"))
	require.NoError(t, c.Set("sniff", "true"))
	assert.Error(t, c.Set("workers", "many"))
	assert.Error(t, c.Set("group_by", "die"))
	assert.Equal(t, "lot_wafer", c.GroupBy, "failed Set leaves config unchanged")
	assert.Error(t, c.Set("formats", "pdf"))
	assert.Error(t, c.Set("nope", "1"))

	require.NoError(t, Save(c, path))
	back, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"BVDSS1", "IDSS1"}, back.Params)
	assert.Equal(t, "lot_wafer", back.GroupBy)
	assert.Equal(t, []string{"markdown", "xlsx"}, back.Formats)
	assert.True(t, back.Sniff)

	for _, k := range Keys {
		_, err := back.Get(k)
		assert.NoError(t, err, k)
	}
}
