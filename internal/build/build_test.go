package build

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dyngen/internal/kernel"
	"github.com/roach88/dyngen/internal/store"
	"github.com/roach88/dyngen/internal/testutil"
	"github.com/roach88/dyngen/internal/units"
)

func newTestDriver(t *testing.T) (*Driver, *store.Store) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	d, err := New(t.TempDir(),
		WithStore(s),
		WithIDs(testutil.NewFixedIDGenerator("run")),
		WithClock(testutil.NewDeterministicClock()),
	)
	require.NoError(t, err)
	return d, s
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestParseMode(t *testing.T) {
	for _, m := range Modes {
		got, err := ParseMode(string(m))
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}

	_, err := ParseMode("eager")
	var be *Error
	require.True(t, errors.As(err, &be))
	assert.Contains(t, be.Error(), "unrecognised build mode 'eager'")
	assert.Contains(t, be.Error(), "'generate_only'")
}

func TestPrefix(t *testing.T) {
	assert.Equal(t, "GEN-", Prefix(""))
	assert.Equal(t, "URL-example_org__models__izh_cue", Prefix("http://example.org/models/izh.cue"))

	dir := t.TempDir()
	real, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	path := filepath.Join(dir, "izh.cue")
	require.NoError(t, os.WriteFile(path, []byte("model: {}"), 0o644))
	want := sanitize("FILE-" + filepath.Join(real, "izh.cue"))
	assert.Equal(t, want, Prefix(path))
	assert.NotContains(t, Prefix(path), "/")
}

func TestNewDirs(t *testing.T) {
	dirs := NewDirs("/base", "Izhikevich", "", "")
	assert.Equal(t, "/base/GEN-Izhikevich", dirs.Root)
	assert.Equal(t, "/base/GEN-Izhikevich/src", dirs.Src)
	assert.Equal(t, "/base/GEN-Izhikevich/compile", dirs.Compile)
	assert.Equal(t, "/base/GEN-Izhikevich/install", dirs.Install)

	custom := NewDirs("/base", "Izhikevich", "http://example.org/x", "custom-")
	assert.Equal(t, "/base/custom-Izhikevich", custom.Root)
}

func TestNewRequiresBase(t *testing.T) {
	_, err := New("")
	var be *Error
	assert.True(t, errors.As(err, &be))
}

func TestBuild_ForceInstalls(t *testing.T) {
	d, s := newTestDriver(t)
	ctx := context.Background()

	res, err := d.Build(ctx, Request{Model: testutil.Izhikevich(), Mode: ModeForce})
	require.NoError(t, err)

	assert.True(t, res.Generated)
	assert.False(t, res.Cached)
	assert.Equal(t, store.StatusInstalled, res.Build.Status)
	assert.Equal(t, "run-0001", res.Build.ID)
	assert.Equal(t, int64(1), res.Build.Seq)
	assert.Equal(t, testutil.Epoch, res.Build.CreatedAt)
	assert.Equal(t, filepath.Join(res.Dirs.Install, "Izhikevich.cpp"), res.KernelPath)

	assert.True(t, exists(filepath.Join(res.Dirs.Src, "Izhikevich.cpp")))
	assert.True(t, exists(filepath.Join(res.Dirs.Src, snapshotName)))
	assert.True(t, exists(res.Dirs.Compile))

	installed, err := os.ReadFile(res.KernelPath)
	require.NoError(t, err)
	assert.Equal(t, res.Kernel.Source, string(installed))

	got, err := s.ReadBuild(ctx, "run-0001")
	require.NoError(t, err)
	assert.Equal(t, res.Build, got)

	emissions, err := s.ReadEmissions(ctx, "run-0001")
	require.NoError(t, err)
	require.Len(t, emissions, len(res.Kernel.Scopes))
	assert.Equal(t, "Izhikevich_dynamics", emissions[0].Scope)
	assert.Equal(t, res.Kernel.Scopes[0].Hash, emissions[0].ScopeHash)
}

func TestBuild_LazyReusesUnchangedModel(t *testing.T) {
	d, _ := newTestDriver(t)
	ctx := context.Background()

	first, err := d.Build(ctx, Request{Model: testutil.Izhikevich(), Mode: ModeLazy})
	require.NoError(t, err)
	assert.True(t, first.Generated)

	second, err := d.Build(ctx, Request{Model: testutil.Izhikevich(), Mode: ModeLazy})
	require.NoError(t, err)
	assert.False(t, second.Generated)
	assert.True(t, second.Cached)
	assert.Equal(t, store.StatusReused, second.Build.Status)
	assert.Equal(t, first.KernelPath, second.KernelPath)
	assert.Equal(t, first.Build.KernelHash, second.Build.KernelHash)

	// A different snapshot on disk means the directory holds another model.
	require.NoError(t, os.WriteFile(filepath.Join(first.Dirs.Src, snapshotName), []byte("{}"), 0o644))
	third, err := d.Build(ctx, Request{Model: testutil.Izhikevich(), Mode: ModeLazy})
	require.NoError(t, err)
	assert.True(t, third.Generated)
	assert.Equal(t, store.StatusInstalled, third.Build.Status)
}

func TestBuild_LazyRegeneratesOnOptionChange(t *testing.T) {
	d, s := newTestDriver(t)
	ctx := context.Background()

	first, err := d.Build(ctx, Request{Model: testutil.Izhikevich(), Mode: ModeForce})
	require.NoError(t, err)

	second, err := d.Build(ctx, Request{
		Model:  testutil.Izhikevich(),
		Mode:   ModeLazy,
		Kernel: kernel.Options{Debug: true},
	})
	require.NoError(t, err)
	assert.True(t, second.Generated)
	assert.Equal(t, store.StatusInstalled, second.Build.Status)
	assert.NotEqual(t, first.Build.KernelHash, second.Build.KernelHash)

	installed, err := os.ReadFile(second.KernelPath)
	require.NoError(t, err)
	assert.Equal(t, second.Kernel.Source, string(installed))
	assert.Contains(t, string(installed), "std::cerr")

	got, err := s.ReadBuild(ctx, second.Build.ID)
	require.NoError(t, err)
	assert.Equal(t, second.Kernel.Hash, got.KernelHash)

	third, err := d.Build(ctx, Request{
		Model:  testutil.Izhikevich(),
		Mode:   ModeLazy,
		Kernel: kernel.Options{Debug: true},
	})
	require.NoError(t, err)
	assert.Equal(t, store.StatusReused, third.Build.Status, "same options reuse the installed kernel")
}

func TestBuild_BuildOnlyRegenerates(t *testing.T) {
	d, _ := newTestDriver(t)
	ctx := context.Background()

	_, err := d.Build(ctx, Request{Model: testutil.Izhikevich(), Mode: ModeBuildOnly})
	require.NoError(t, err)
	res, err := d.Build(ctx, Request{Model: testutil.Izhikevich(), Mode: ModeBuildOnly})
	require.NoError(t, err)
	assert.True(t, res.Generated)
	assert.Equal(t, store.StatusInstalled, res.Build.Status)
	assert.True(t, exists(res.KernelPath))
}

func TestBuild_LazyRegeneratesMissingInstall(t *testing.T) {
	d, _ := newTestDriver(t)
	ctx := context.Background()

	first, err := d.Build(ctx, Request{Model: testutil.Izhikevich()})
	require.NoError(t, err)
	require.NoError(t, os.Remove(first.KernelPath))

	second, err := d.Build(ctx, Request{Model: testutil.Izhikevich()})
	require.NoError(t, err)
	assert.True(t, second.Generated)
	assert.True(t, exists(second.KernelPath))
}

func TestBuild_GenerateOnly(t *testing.T) {
	d, _ := newTestDriver(t)

	res, err := d.Build(context.Background(), Request{Model: testutil.Izhikevich(), Mode: ModeGenerateOnly})
	require.NoError(t, err)

	assert.Equal(t, store.StatusGenerated, res.Build.Status)
	assert.Equal(t, filepath.Join(res.Dirs.Src, "Izhikevich.cpp"), res.KernelPath)
	assert.False(t, exists(res.Dirs.Install))
}

func TestBuild_Require(t *testing.T) {
	d, _ := newTestDriver(t)
	ctx := context.Background()

	_, err := d.Build(ctx, Request{Model: testutil.Izhikevich(), Mode: ModeRequire})
	var be *Error
	require.True(t, errors.As(err, &be))
	assert.Equal(t, "require", be.Op)

	forced, err := d.Build(ctx, Request{Model: testutil.Izhikevich(), Mode: ModeForce})
	require.NoError(t, err)

	res, err := d.Build(ctx, Request{Model: testutil.Izhikevich(), Mode: ModeRequire})
	require.NoError(t, err)
	assert.Equal(t, store.StatusReused, res.Build.Status)
	assert.False(t, res.Generated)
	assert.Nil(t, res.Kernel)
	assert.True(t, exists(res.KernelPath))
	assert.Equal(t, forced.Build.KernelHash, res.Build.KernelHash, "hash of the installed kernel")
}

func TestBuild_PurgeClearsDirectoryAndHistory(t *testing.T) {
	d, s := newTestDriver(t)
	ctx := context.Background()

	first, err := d.Build(ctx, Request{Model: testutil.Izhikevich(), Mode: ModeForce})
	require.NoError(t, err)
	stray := filepath.Join(first.Dirs.Compile, "stale.o")
	require.NoError(t, os.WriteFile(stray, []byte("x"), 0o644))

	res, err := d.Build(ctx, Request{Model: testutil.Izhikevich(), Mode: ModePurge})
	require.NoError(t, err)
	assert.Equal(t, store.StatusInstalled, res.Build.Status)
	assert.False(t, exists(stray))
	assert.True(t, exists(res.KernelPath))

	builds, err := s.ListBuilds(ctx, "Izhikevich", 0)
	require.NoError(t, err)
	require.Len(t, builds, 1)
	assert.Equal(t, "run-0002", builds[0].ID)
}

func TestBuild_FailureRecordedWithoutFiles(t *testing.T) {
	d, s := newTestDriver(t)
	ctx := context.Background()

	m := testutil.AliasChain([]string{"x"}, map[string]string{"x": "p + q"})
	res, err := d.Build(ctx, Request{Model: m, Mode: ModeForce})
	require.Error(t, err)
	require.NotNil(t, res)

	assert.Equal(t, store.StatusFailed, res.Build.Status)
	assert.Contains(t, res.Build.Error, "no regimes")
	assert.False(t, exists(res.Dirs.Root))

	got, err := s.ReadBuild(ctx, res.Build.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, got.Status)

	_, ok, err := s.LatestBuild(ctx, res.Dirs.Root)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBuild_CacheKeyedByOptions(t *testing.T) {
	d, _ := newTestDriver(t)
	ctx := context.Background()

	_, err := d.Build(ctx, Request{Model: testutil.Izhikevich(), Mode: ModeGenerateOnly})
	require.NoError(t, err)
	debug, err := d.Build(ctx, Request{
		Model:  testutil.Izhikevich(),
		Mode:   ModeGenerateOnly,
		Kernel: kernel.Options{Debug: true},
	})
	require.NoError(t, err)
	assert.False(t, debug.Cached)
	assert.Equal(t, 2, d.CacheLen())

	m := testutil.Izhikevich()
	custom, err := d.Build(ctx, Request{
		Model:  m,
		Mode:   ModeGenerateOnly,
		Kernel: kernel.Options{Annotator: units.NewDeclared(m)},
	})
	require.NoError(t, err)
	assert.False(t, custom.Cached)
	assert.Equal(t, 2, d.CacheLen())
}

func TestBuild_WithoutStore(t *testing.T) {
	d, err := New(t.TempDir(), WithCacheSize(0))
	require.NoError(t, err)

	res, err := d.Build(context.Background(), Request{Model: testutil.Izhikevich(), Mode: ModeForce})
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Build.Seq)
	assert.NotEmpty(t, res.Build.ID)
}

func TestBuild_InvalidMode(t *testing.T) {
	d, _ := newTestDriver(t)

	_, err := d.Build(context.Background(), Request{Model: testutil.Izhikevich(), Mode: "eager"})
	var be *Error
	assert.True(t, errors.As(err, &be))
}
