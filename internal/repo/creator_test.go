package repo

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alitto/pond/v2"
	"github.com/aptly-dev/aptly/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/debrepod/debrepod/internal/config"
)

func testCreator(t *testing.T, cfg *config.Config, cache *Cache) *Creator {
	t.Helper()
	pool := pond.NewPool(2, pond.WithoutPanicRecovery())
	t.Cleanup(func() { pool.StopAndWait() })

	c, err := NewCreator(cfg, cache, pool, 2)
	require.NoError(t, err)
	return c
}

func TestCreator_Architectures_IncludesAll(t *testing.T) {
	cfg := &config.Config{Architectures: []string{"amd64", "arm64"}}
	c := testCreator(t, cfg, NewCache())

	assert.Equal(t, []string{"all", "amd64", "arm64"}, c.architectures())
}

func TestCreator_Architectures_Dedupes(t *testing.T) {
	cfg := &config.Config{Architectures: []string{"all", "amd64"}}
	c := testCreator(t, cfg, NewCache())

	assert.Equal(t, []string{"all", "amd64"}, c.architectures())
}

func TestCreator_Initialize_CreatesPoolSymlink(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		Repo:    filepath.Join(dir, "repo"),
		Pkgroot: filepath.Join(dir, "pool"),
	}
	c := testCreator(t, cfg, NewCache())

	require.NoError(t, c.Initialize())

	target, err := os.Readlink(filepath.Join(cfg.Repo, "pool"))
	require.NoError(t, err)
	assert.Equal(t, cfg.Pkgroot, target)

	info, err := os.Stat(cfg.Pkgroot)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestCreator_Initialize_ReplacesExistingPoolEntry(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		Repo:    filepath.Join(dir, "repo"),
		Pkgroot: filepath.Join(dir, "pool"),
	}
	require.NoError(t, os.MkdirAll(cfg.Repo, 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(cfg.Repo, "pool"), 0755))

	c := testCreator(t, cfg, NewCache())
	require.NoError(t, c.Initialize())

	info, err := os.Lstat(filepath.Join(cfg.Repo, "pool"))
	require.NoError(t, err)
	assert.Equal(t, os.ModeSymlink, info.Mode()&os.ModeSymlink)
}

func TestCreator_GenerateRelease_WritesAndCachesManifest(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		Components:  []string{"main", "contrib"},
		Application: config.AppConfig{Name: "debrepod", Version: "1.0"},
	}
	cache := NewCache()
	c := testCreator(t, cfg, cache)

	cache.Lock("stable")
	files := map[string]utils.ChecksumInfo{
		"main/binary-amd64/Packages": {MD5: "aaa", SHA1: "bbb", SHA256: "ccc", Size: 10},
	}
	err := c.generateRelease(dir, "stable", []string{"all", "amd64"}, files)
	require.NoError(t, err)
	cache.Clear("stable")

	releasePath := filepath.Join(dir, "dists", "stable", "Release")
	data, err := os.ReadFile(releasePath)
	require.NoError(t, err)

	text := string(data)
	assert.Contains(t, text, "Codename: stable")
	assert.Contains(t, text, "Architectures: all amd64")
	assert.Contains(t, text, "Components: contrib main")
	assert.Contains(t, text, " aaa       10 main/binary-amd64/Packages")
	assert.Contains(t, text, " ccc       10 main/binary-amd64/Packages")

	cached, ok := cache.Load("stable", releasePath)
	require.True(t, ok)
	assert.True(t, strings.Contains(string(cached), "Codename: stable"))
}
