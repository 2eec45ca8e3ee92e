package repo

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"text/template"
	"time"

	"github.com/Masterminds/sprig/v3"
	"github.com/alitto/pond/v2"
	"github.com/aptly-dev/aptly/utils"

	"github.com/debrepod/debrepod/internal/config"
)

// publishedFormats lists every compressed Packages sibling this repository
// publishes, in addition to the always-written uncompressed Packages file.
var publishedFormats = []compressionFormat{formatGzip, formatBzip2, formatXZ}

//go:embed templates/release.tmpl
var releaseTemplateSource string

// allArchitecture is the always-present pseudo-architecture for
// architecture-independent packages.
const allArchitecture = "all"

// Creator regenerates the on-disk repository layout for a single
// distribution: the per-architecture Packages indexes and the Release
// manifest. It invokes dpkg-scanpackages as a subprocess with an explicit
// working directory, never mutating the process-wide cwd, which allows
// architectures (and distributions) to be generated concurrently.
type Creator struct {
	cfg        *config.Config
	cache      *Cache
	pool       pond.Pool
	compressor *compressor

	releaseTmpl *template.Template
	log         *slog.Logger
}

// NewCreator builds a Creator. pool bounds the concurrency of
// dpkg-scanpackages invocations across one Create call; compressWorkers
// bounds the concurrency of compressing each Packages index into its
// published sibling formats, on a pool owned internally by the Creator.
func NewCreator(cfg *config.Config, cache *Cache, pool pond.Pool, compressWorkers int) (*Creator, error) {
	tmpl, err := template.New("release").Funcs(sprig.TxtFuncMap()).Parse(releaseTemplateSource)
	if err != nil {
		return nil, fmt.Errorf("parse release template: %w", err)
	}

	compressPool := pond.NewResultPool[*compressedFile](compressWorkers, pond.WithoutPanicRecovery())

	return &Creator{
		cfg:         cfg,
		cache:       cache,
		pool:        pool,
		compressor:  newCompressor(compressPool),
		releaseTmpl: tmpl,
		log:         slog.With("component", "creator"),
	}, nil
}

// Initialize ensures <repo> and <pkgroot> exist and that <repo>/pool is a
// symlink pointing at <pkgroot>. Called once at startup.
func (c *Creator) Initialize() error {
	repoPath := c.cfg.GetRepoPath()
	pkgrootPath := c.cfg.GetPkgrootPath()

	if err := os.MkdirAll(repoPath, 0755); err != nil {
		return fmt.Errorf("create repo directory: %w", err)
	}
	if err := os.MkdirAll(pkgrootPath, 0755); err != nil {
		return fmt.Errorf("create pkgroot directory: %w", err)
	}

	poolLink := filepath.Join(repoPath, "pool")
	if _, err := os.Lstat(poolLink); err == nil {
		if err := os.RemoveAll(poolLink); err != nil {
			return fmt.Errorf("remove existing pool entry: %w", err)
		}
	}
	if err := os.Symlink(pkgrootPath, poolLink); err != nil {
		return fmt.Errorf("create pool symlink: %w", err)
	}

	return nil
}

// architectures returns the sorted {all} ∪ config.architectures set.
func (c *Creator) architectures() []string {
	set := map[string]struct{}{allArchitecture: {}}
	for _, a := range c.cfg.Architectures {
		set[a] = struct{}{}
	}
	archs := make([]string, 0, len(set))
	for a := range set {
		archs = append(archs, a)
	}
	slices.Sort(archs)
	return archs
}

type indexResult struct {
	relpath string
	info    utils.ChecksumInfo
}

// Create regenerates dists/<d> into the cache's write-side for d. The
// caller must hold cache.Lock(d) across this call.
func (c *Creator) Create(ctx context.Context, d string) error {
	repoPath := c.cfg.GetRepoPath()
	archs := c.architectures()

	group := c.pool.NewGroupContext(ctx)
	for _, comp := range c.cfg.Components {
		for _, arch := range archs {
			comp, arch := comp, arch
			group.SubmitErr(func() (indexResult, error) {
				return c.generateIndex(ctx, repoPath, d, comp, arch)
			})
		}
	}

	results, err := group.Wait()
	if err != nil {
		return fmt.Errorf("generate package indexes for %s: %w", d, err)
	}

	files := make(map[string]utils.ChecksumInfo, len(results))
	for _, r := range results {
		files[r.relpath] = r.info
	}

	if err := c.generateRelease(repoPath, d, archs, files); err != nil {
		return fmt.Errorf("generate release manifest for %s: %w", d, err)
	}

	return nil
}

// generateIndex runs dpkg-scanpackages for one component/architecture pair,
// writes Packages (+ compressed siblings) to disk and the cache write-side,
// and returns the checksums of the uncompressed Packages file only; the
// compressed siblings get no checksum entry of their own.
func (c *Creator) generateIndex(ctx context.Context, repoPath, dist, comp, arch string) (indexResult, error) {
	archDir := filepath.Join("dists", dist, comp, "binary-"+arch)
	absArchDir := filepath.Join(repoPath, archDir)
	if err := os.MkdirAll(absArchDir, 0755); err != nil {
		return indexResult{}, err
	}

	poolArg := filepath.Join("pool", dist, comp)

	cmd := exec.Command("dpkg-scanpackages", "--multiversion", "--arch", arch, poolArg)
	cmd.Dir = repoPath
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	data, err := cmd.Output()
	if err != nil {
		return indexResult{}, fmt.Errorf("dpkg-scanpackages %s/%s: %w: %s", dist, arch, err, stderr.String())
	}

	packagesPath := filepath.Join(absArchDir, "Packages")
	if err := os.WriteFile(packagesPath, data, 0644); err != nil {
		return indexResult{}, err
	}
	c.cache.Store(dist, packagesPath, data)

	compressed, err := c.compressor.CompressAll(ctx, data, publishedFormats)
	if err != nil {
		return indexResult{}, fmt.Errorf("compress package index %s: %w", packagesPath, err)
	}
	for _, cf := range compressed {
		path := packagesPath + cf.Format.extension()
		if err := os.WriteFile(path, cf.Data, 0644); err != nil {
			return indexResult{}, err
		}
		c.cache.Store(dist, path, cf.Data)
	}

	info, err := utils.ChecksumsForFile(packagesPath)
	if err != nil {
		return indexResult{}, err
	}

	relpath := filepath.Join(comp, "binary-"+arch, "Packages")
	return indexResult{relpath: relpath, info: info}, nil
}

// releaseContext is the Release template's rendering context.
type releaseContext struct {
	Origin          string
	Label           string
	Version         string
	Codename        string
	Date            time.Time
	Architectures   string
	Components      string
	MD5Checksums    string
	SHA1Checksums   string
	SHA256Checksums string
}

func (c *Creator) generateRelease(repoPath, dist string, archs []string, files map[string]utils.ChecksumInfo) error {
	relpaths := make([]string, 0, len(files))
	for p := range files {
		relpaths = append(relpaths, p)
	}
	slices.Sort(relpaths)

	var md5Lines, sha1Lines, sha256Lines []string
	for _, p := range relpaths {
		info := files[p]
		md5Lines = append(md5Lines, fmt.Sprintf(" %s %8d %s", info.MD5, info.Size, p))
		sha1Lines = append(sha1Lines, fmt.Sprintf(" %s %8d %s", info.SHA1, info.Size, p))
		sha256Lines = append(sha256Lines, fmt.Sprintf(" %s %8d %s", info.SHA256, info.Size, p))
	}

	components := append([]string(nil), c.cfg.Components...)
	slices.Sort(components)

	ctx := releaseContext{
		Origin:          c.cfg.Application.Name,
		Label:           c.cfg.Application.Name,
		Version:         c.cfg.Application.Version,
		Codename:        dist,
		Date:            time.Now().UTC(),
		Architectures:   strings.Join(archs, " "),
		Components:      strings.Join(components, " "),
		MD5Checksums:    strings.Join(md5Lines, "\n"),
		SHA1Checksums:   strings.Join(sha1Lines, "\n"),
		SHA256Checksums: strings.Join(sha256Lines, "\n"),
	}

	var buf bytes.Buffer
	if err := c.releaseTmpl.Execute(&buf, ctx); err != nil {
		return fmt.Errorf("render release template: %w", err)
	}

	releasePath := filepath.Join(repoPath, "dists", dist, "Release")
	if err := os.MkdirAll(filepath.Dir(releasePath), 0755); err != nil {
		return err
	}
	if err := os.WriteFile(releasePath, buf.Bytes(), 0644); err != nil {
		return err
	}
	c.cache.Store(dist, releasePath, buf.Bytes())

	return nil
}
