// Package build turns model classes into installed kernels.
//
// A Driver owns a base directory. Each model gets <base>/<prefix><name> with
// src, compile and install subdirectories. Generated kernels are cached in
// an LRU keyed by model and options, and every run is recorded in the build
// history when a store is attached.
package build

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/roach88/dyngen/internal/ir"
	"github.com/roach88/dyngen/internal/kernel"
	"github.com/roach88/dyngen/internal/store"
)

// DefaultCacheSize bounds the generated-kernel cache.
const DefaultCacheSize = 64

// Request asks for one model to be built.
type Request struct {
	Model  *ir.ModelClass
	Mode   Mode
	Kernel kernel.Options
	// Prefix overrides the directory prefix derived from Model.URL.
	Prefix string
}

// Result describes a finished build.
type Result struct {
	Build      store.Build    `json:"build"`
	Dirs       Dirs           `json:"dirs"`
	Kernel     *kernel.Kernel `json:"kernel,omitempty"`
	KernelPath string         `json:"kernel_path,omitempty"`
	Generated  bool           `json:"generated"`
	Cached     bool           `json:"cached"`
}

// Driver builds kernels under one base directory.
//
// Thread-safety: the kernel cache is safe for concurrent use, but two
// concurrent builds of the same model race on its directory.
type Driver struct {
	base  string
	store *store.Store
	ids   RunIDGenerator
	clock Clock
	size  int
	cache *lru.Cache[string, *kernel.Kernel]
}

// DriverOption configures a Driver.
type DriverOption func(*Driver)

// WithStore records every build in s.
func WithStore(s *store.Store) DriverOption {
	return func(d *Driver) {
		d.store = s
	}
}

// WithIDs sets the run ID generator. Defaults to UUIDv7Generator.
func WithIDs(ids RunIDGenerator) DriverOption {
	return func(d *Driver) {
		d.ids = ids
	}
}

// WithClock sets the clock stamping build records.
func WithClock(c Clock) DriverOption {
	return func(d *Driver) {
		d.clock = c
	}
}

// WithCacheSize bounds the kernel cache. Sizes below one fall back to
// DefaultCacheSize.
func WithCacheSize(n int) DriverOption {
	return func(d *Driver) {
		d.size = n
	}
}

// New creates a driver rooted at base.
func New(base string, opts ...DriverOption) (*Driver, error) {
	if base == "" {
		return nil, &Error{Op: "init", Message: "no base directory"}
	}
	d := &Driver{
		base:  base,
		ids:   UUIDv7Generator{},
		clock: SystemClock{},
		size:  DefaultCacheSize,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.size < 1 {
		d.size = DefaultCacheSize
	}
	cache, err := lru.New[string, *kernel.Kernel](d.size)
	if err != nil {
		return nil, fmt.Errorf("create kernel cache: %w", err)
	}
	d.cache = cache
	return d, nil
}

// Base returns the directory builds are placed under.
func (d *Driver) Base() string {
	return d.base
}

// Build runs one request. Generation failures are recorded as failed
// builds and returned; no files are written for them.
func (d *Driver) Build(ctx context.Context, req Request) (*Result, error) {
	if req.Model == nil {
		return nil, &Error{Op: "build", Message: "no model"}
	}
	if req.Mode == "" {
		req.Mode = ModeLazy
	}
	if _, err := ParseMode(string(req.Mode)); err != nil {
		return nil, err
	}

	m := req.Model
	dirs := NewDirs(d.base, m.Name, m.URL, req.Prefix)
	snapshot, err := ir.MarshalCanonical(m)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", m.Name, err)
	}
	modelHash, err := ir.ModelHash(m)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Dirs: dirs,
		Build: store.Build{
			ID:               d.ids.Generate(),
			Model:            m.Name,
			ModelURL:         m.URL,
			Dir:              dirs.Root,
			Mode:             string(req.Mode),
			ModelHash:        modelHash,
			GeneratorVersion: ir.GeneratorVersion,
			IRVersion:        ir.IRVersion,
			CreatedAt:        d.clock.Now(),
		},
	}

	slog.Debug("build starting",
		"model", m.Name,
		"mode", req.Mode,
		"dir", dirs.Root)

	if !req.Mode.generates() {
		path := filepath.Join(dirs.Install, m.Name+".cpp")
		if _, err := os.Stat(path); err != nil {
			return nil, &Error{
				Op:      "require",
				Dir:     dirs.Install,
				Message: "prebuilt kernel required but not present",
				Err:     err,
			}
		}
		res.KernelPath = path
		res.Build.Status = store.StatusReused
		if err := d.installedHash(ctx, res); err != nil {
			return nil, err
		}
		return res, d.record(ctx, res, nil)
	}

	if req.Mode == ModePurge {
		if err := d.purge(ctx, dirs); err != nil {
			return nil, err
		}
	}

	k, cached, err := d.generate(req)
	if err != nil {
		res.Build.Status = store.StatusFailed
		res.Build.Error = err.Error()
		slog.Warn("build failed", "model", m.Name, "error", err)
		if rerr := d.record(ctx, res, nil); rerr != nil {
			return nil, errors.Join(err, rerr)
		}
		return res, err
	}
	res.Kernel = k
	res.Cached = cached
	res.Build.KernelHash = k.Hash

	if req.Mode == ModeLazy && upToDate(dirs, k, snapshot) {
		res.KernelPath = filepath.Join(dirs.Install, k.FileName)
		res.Build.Status = store.StatusReused
		slog.Info("kernel up to date", "model", m.Name, "dir", dirs.Root)
		return res, d.record(ctx, res, k.Scopes)
	}

	if err := d.write(dirs, k, snapshot); err != nil {
		return nil, err
	}
	res.Generated = true
	res.KernelPath = filepath.Join(dirs.Src, k.FileName)
	res.Build.Status = store.StatusGenerated

	if req.Mode.installs() {
		path, err := k.Write(dirs.Install)
		if err != nil {
			return nil, &Error{Op: "install", Dir: dirs.Install, Message: "cannot install kernel", Err: err}
		}
		res.KernelPath = path
		res.Build.Status = store.StatusInstalled
	}

	slog.Info("kernel built",
		"model", m.Name,
		"status", res.Build.Status,
		"path", res.KernelPath,
		"cached", cached)

	return res, d.record(ctx, res, k.Scopes)
}

// generate returns the kernel for req, from the cache when possible.
// Requests with a custom annotator are never cached.
func (d *Driver) generate(req Request) (*kernel.Kernel, bool, error) {
	key, cacheable := cacheKey(req)
	if cacheable {
		if k, ok := d.cache.Get(key); ok {
			return k, true, nil
		}
	}
	k, err := kernel.Generate(req.Model, req.Kernel)
	if err != nil {
		return nil, false, err
	}
	if cacheable {
		d.cache.Add(key, k)
	}
	return k, false, nil
}

// cacheKey identifies a generated kernel by model content and options.
func cacheKey(req Request) (string, bool) {
	if req.Kernel.Annotator != nil {
		return "", false
	}
	hash, err := ir.ModelHash(req.Model)
	if err != nil {
		return "", false
	}
	exclude := make([]string, len(req.Kernel.Exclude))
	for i, k := range req.Kernel.Exclude {
		exclude[i] = k.String()
	}
	s := req.Kernel.Solver.WithDefaults()
	return fmt.Sprintf("%s|%s|%s|debug=%t|exclude=%s|%g|%g|%d",
		req.Model.Name, req.Model.URL, hash, req.Kernel.Debug,
		strings.Join(exclude, ","), s.AbsTol, s.RelTol, s.MaxSteps), true
}

// CacheLen reports how many kernels are cached.
func (d *Driver) CacheLen() int {
	return d.cache.Len()
}

// upToDate reports whether the last build of dirs came from the same model
// and the installed kernel is byte-identical to k. Kernel options (debug,
// exclusions, solver settings) change the source, so they force a rebuild.
func upToDate(dirs Dirs, k *kernel.Kernel, snapshot []byte) bool {
	built, err := os.ReadFile(dirs.snapshot())
	if err != nil || !bytes.Equal(built, snapshot) {
		return false
	}
	installed, err := os.ReadFile(filepath.Join(dirs.Install, k.FileName))
	return err == nil && string(installed) == k.Source
}

func (d *Driver) write(dirs Dirs, k *kernel.Kernel, snapshot []byte) error {
	for _, dir := range []string{dirs.Src, dirs.Compile} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return &Error{Op: "mkdir", Dir: dir, Message: "cannot create build directory", Err: err}
		}
	}
	if _, err := k.Write(dirs.Src); err != nil {
		return &Error{Op: "write", Dir: dirs.Src, Message: "cannot write kernel source", Err: err}
	}
	if err := os.WriteFile(dirs.snapshot(), snapshot, 0o644); err != nil {
		return &Error{Op: "write", Dir: dirs.Src, Message: "cannot write model snapshot", Err: err}
	}
	return nil
}

func (d *Driver) purge(ctx context.Context, dirs Dirs) error {
	if err := os.RemoveAll(dirs.Root); err != nil {
		return &Error{Op: "purge", Dir: dirs.Root, Message: "cannot remove build directory", Err: err}
	}
	if d.store == nil {
		return nil
	}
	n, err := d.store.DeleteBuilds(ctx, dirs.Root)
	if err != nil {
		return err
	}
	slog.Debug("build history purged", "dir", dirs.Root, "builds", n)
	return nil
}

// installedHash copies the kernel hash of the build that produced the
// installed kernel into res, when the history knows it.
func (d *Driver) installedHash(ctx context.Context, res *Result) error {
	if d.store == nil {
		return nil
	}
	prev, ok, err := d.store.LatestBuild(ctx, res.Dirs.Root)
	if err != nil || !ok {
		return err
	}
	res.Build.KernelHash = prev.KernelHash
	return nil
}

// record writes res to the store, if any, and fills in its sequence number.
func (d *Driver) record(ctx context.Context, res *Result, scopes []kernel.Scope) error {
	if d.store == nil {
		return nil
	}
	emissions := make([]store.Emission, len(scopes))
	for i, s := range scopes {
		emissions[i] = store.Emission{
			Ordinal:   i,
			Scope:     s.Path,
			ScopeHash: s.Hash,
			Declared:  s.Declared,
		}
	}
	seq, err := d.store.WriteBuild(ctx, res.Build, emissions)
	if err != nil {
		return fmt.Errorf("record build %s: %w", res.Build.ID, err)
	}
	res.Build.Seq = seq
	return nil
}
