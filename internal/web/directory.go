// Package web serves a generated APT repository tree over HTTP: static
// files (with a cache-aware fast path under dists/<dist>/...) and an HTML
// directory listing for everything else.
package web

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"html/template"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Masterminds/sprig/v3"
	"github.com/zeebo/blake3"

	"github.com/debrepod/debrepod/internal/config"
	"github.com/debrepod/debrepod/internal/repo"
)

//go:embed templates/listing.html.tmpl
var listingTemplateSource string

// DirectoryService answers GET requests against the generated repository
// tree, reading file bytes through the cache when the request falls under
// dists/<dist>/... and directly from disk otherwise.
type DirectoryService struct {
	cfg   *config.Config
	cache *repo.Cache
	tmpl  *template.Template
	log   *slog.Logger

	server *http.Server
}

// NewDirectoryService builds a DirectoryService. Call Start to bring up the
// HTTP transport.
func NewDirectoryService(cfg *config.Config, cache *repo.Cache) (*DirectoryService, error) {
	tmpl, err := template.New("listing").Funcs(sprig.FuncMap()).Parse(listingTemplateSource)
	if err != nil {
		return nil, fmt.Errorf("parse listing template: %w", err)
	}

	return &DirectoryService{
		cfg:   cfg,
		cache: cache,
		tmpl:  tmpl,
		log:   slog.With("component", "directory"),
	}, nil
}

// Start brings up the HTTP transport on the configured listen address(es).
// Only the first configured address is used; additional addresses are a
// documented limitation of the single net/http.Server model.
func (d *DirectoryService) Start() error {
	addr := "0.0.0.0:8080"
	if len(d.cfg.HTTP.ListenAddrs) > 0 {
		addr = d.cfg.HTTP.ListenAddrs[0]
	}

	d.server = &http.Server{
		Addr:           addr,
		Handler:        d,
		ReadTimeout:    time.Duration(d.cfg.HTTP.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(d.cfg.HTTP.WriteTimeout) * time.Second,
		IdleTimeout:    time.Duration(d.cfg.HTTP.IdleTimeout) * time.Second,
		MaxHeaderBytes: d.cfg.HTTP.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		d.log.Info("starting HTTP server", "addr", addr)
		if err := d.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-time.After(200 * time.Millisecond):
		return nil
	}
}

// Stop gracefully shuts the HTTP transport down within the configured
// shutdown timeout.
func (d *DirectoryService) Stop(ctx context.Context) error {
	if d.server == nil {
		return nil
	}
	timeout := time.Duration(d.cfg.HTTP.ShutdownTimeoutS) * time.Second
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return d.server.Shutdown(shutdownCtx)
}

func (d *DirectoryService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqPath := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
	full := filepath.Join(d.cfg.GetRepoPath(), filepath.FromSlash(reqPath))

	if d.isPrivate(reqPath) && !d.authorized(r) {
		w.Header().Set("WWW-Authenticate", `Basic realm="Private Area"`)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	info, err := os.Stat(full)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	if info.IsDir() {
		d.serveListing(w, r, reqPath, full)
		return
	}

	d.serveFile(w, reqPath, full)
}

// isPrivate reports whether reqPath falls under any configured private
// directory prefix, matched on path segment boundaries.
func (d *DirectoryService) isPrivate(reqPath string) bool {
	for _, prefix := range d.cfg.Auth.PrivateDirs {
		prefix = strings.Trim(prefix, "/")
		if prefix == "" {
			continue
		}
		if reqPath == prefix || strings.HasPrefix(reqPath, prefix+"/") {
			return true
		}
	}
	return false
}

func (d *DirectoryService) authorized(r *http.Request) bool {
	user, pass, ok := r.BasicAuth()
	if !ok {
		return false
	}
	return user == d.cfg.Auth.BasicUser && pass == d.cfg.Auth.BasicPassword
}

// serveFile serves a single file, routing through the cache for anything
// under dists/<dist>/... and straight from disk otherwise.
func (d *DirectoryService) serveFile(w http.ResponseWriter, reqPath, full string) {
	segments := strings.Split(reqPath, "/")

	if len(segments) >= 2 && segments[0] == "dists" {
		dist := segments[1]
		data, ok := d.cache.Load(dist, full)
		if !ok {
			http.NotFound(w, nil)
			return
		}
		d.writeBytes(w, full, data)
		return
	}

	data, err := os.ReadFile(full)
	if err != nil {
		http.NotFound(w, nil)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.Header().Set("ETag", etag(data))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}

func (d *DirectoryService) writeBytes(w http.ResponseWriter, full string, data []byte) {
	ct := mime.TypeByExtension(filepath.Ext(full))
	if ct == "" {
		ct = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ct)
	if strings.HasSuffix(full, ".gz") {
		w.Header().Set("Content-Encoding", "gzip")
	}
	w.Header().Set("ETag", etag(data))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}

func etag(data []byte) string {
	sum := blake3.Sum256(data)
	return `"` + fmt.Sprintf("%x", sum) + `"`
}

// formatSize renders n thousands-grouped with a "bytes" suffix, e.g.
// "12,345 bytes", matching the directory listing's size column.
func formatSize(n int64) string {
	digits := strconv.FormatInt(n, 10)

	var groups []string
	for len(digits) > 3 {
		groups = append([]string{digits[len(digits)-3:]}, groups...)
		digits = digits[:len(digits)-3]
	}
	groups = append([]string{digits}, groups...)

	return strings.Join(groups, ",") + " bytes"
}

type listingEntry struct {
	Name    string
	Href    string
	IsDir   bool
	ModTime time.Time
	Size    string
	size    int64
}

func (d *DirectoryService) serveListing(w http.ResponseWriter, r *http.Request, reqPath, full string) {
	entries, err := os.ReadDir(full)
	if err != nil {
		http.Error(w, "cannot list directory", http.StatusInternalServerError)
		return
	}

	listing := make([]listingEntry, 0, len(entries)+1)
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}

		href := e.Name()
		if e.IsDir() {
			href += "/"
		}

		size := "-"
		if !e.IsDir() {
			size = formatSize(info.Size())
		}

		listing = append(listing, listingEntry{
			Name:    e.Name(),
			Href:    href,
			IsDir:   e.IsDir(),
			ModTime: info.ModTime().Local(),
			Size:    size,
			size:    info.Size(),
		})
	}

	sortBy := r.URL.Query().Get("sort")
	desc := r.URL.Query().Get("desc") != ""
	sortListing(listing, sortBy, desc)

	if reqPath != "" {
		listing = append([]listingEntry{{Name: "..", Href: "../", IsDir: true}}, listing...)
	}

	var buf bytes.Buffer
	data := struct {
		Path    string
		Entries []listingEntry
	}{
		Path:    "/" + reqPath,
		Entries: listing,
	}
	if err := d.tmpl.Execute(&buf, data); err != nil {
		http.Error(w, "render listing", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// sortListing orders entries by the fixed (is_file, name_lower, date, size)
// tuple; name always outranks date/size, so the "sort" query parameter (kept
// in the table header links for round-tripping, and accepted here as sortBy)
// does not change the key, only desc reverses the comparison. This mirrors
// the ground truth directory listing, whose sort_key tuple never consults
// its own sort_by parameter either.
func sortListing(entries []listingEntry, sortBy string, desc bool) {
	_ = sortBy

	less := func(i, j int) bool {
		a, b := entries[i], entries[j]

		if a.IsDir != b.IsDir {
			return a.IsDir
		}
		if an, bn := strings.ToLower(a.Name), strings.ToLower(b.Name); an != bn {
			return an < bn
		}
		if !a.ModTime.Equal(b.ModTime) {
			return a.ModTime.Before(b.ModTime)
		}
		return a.size < b.size
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if desc {
			return less(j, i)
		}
		return less(i, j)
	})
}
