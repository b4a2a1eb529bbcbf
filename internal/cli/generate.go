package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/dyngen/internal/build"
	"github.com/roach88/dyngen/internal/harness"
	"github.com/roach88/dyngen/internal/kernel"
	"github.com/roach88/dyngen/internal/store"
)

// GenerateOptions holds flags for the generate command.
type GenerateOptions struct {
	*RootOptions
	OutDir    string
	Mode      string
	Class     string
	Prefix    string
	Store     string
	NoHistory bool
	Debug     bool
	Exclude   []string
}

// GenerateResult is the output of a generate run.
type GenerateResult struct {
	Model      string `json:"model"`
	BuildID    string `json:"build_id"`
	Status     string `json:"status"`
	Mode       string `json:"mode"`
	BuildDir   string `json:"build_dir"`
	KernelPath string `json:"kernel_path,omitempty"`
	ModelHash  string `json:"model_hash"`
	KernelHash string `json:"kernel_hash,omitempty"`
	Scopes     int    `json:"scopes"`
	Cached     bool   `json:"cached,omitempty"`
}

func (r GenerateResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "✓ %s %s (%s)\n", r.Model, r.Status, r.Mode)
	fmt.Fprintf(&b, "  build:  %s\n", r.BuildID)
	fmt.Fprintf(&b, "  dir:    %s\n", r.BuildDir)
	if r.KernelPath != "" {
		fmt.Fprintf(&b, "  kernel: %s\n", r.KernelPath)
	}
	fmt.Fprintf(&b, "  scopes: %d", r.Scopes)
	return b.String()
}

// NewGenerateCommand creates the generate command.
func NewGenerateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GenerateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "generate <model.cue>",
		Short: "Generate and install a model kernel",
		Long: `Compile a model class and generate its C++ kernel.

The kernel is written under <out>/<prefix><Model>/ following the build
mode:
  lazy          - reuse the installed kernel when model and options are unchanged
  force         - always regenerate and install
  build_only    - same as force
  require       - never generate; fail unless a kernel is installed
  generate_only - write the kernel into src/ without installing it
  purge         - delete the build directory, then regenerate

Every run is recorded in the build history.

Examples:
  dyngen generate models/izhikevich.cue
  dyngen generate models/ --class Izhikevich --mode force
  dyngen generate models/izhikevich.cue --exclude parameter:a --debug`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.OutDir, "out", "o", "", "build directory root (default from config)")
	cmd.Flags().StringVar(&opts.Mode, "mode", "", "build mode (default from config)")
	cmd.Flags().StringVar(&opts.Class, "class", "", "model class to build when the source declares several")
	cmd.Flags().StringVar(&opts.Prefix, "prefix", "", "override the build directory prefix")
	cmd.Flags().StringVar(&opts.Store, "store", "", "build history database (default from config)")
	cmd.Flags().BoolVar(&opts.NoHistory, "no-history", false, "do not record the build")
	cmd.Flags().BoolVar(&opts.Debug, "debug", false, "emit trace output after every declaration block")
	cmd.Flags().StringArrayVar(&opts.Exclude, "exclude", nil, "symbol provided by the host, as category:name (repeatable)")

	return cmd
}

func runGenerate(ctx context.Context, opts *GenerateOptions, path string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := opts.formatter(cmd)
	cfg := opts.cfg()

	modeName := firstNonEmpty(opts.Mode, cfg.BuildMode)
	mode, err := build.ParseMode(modeName)
	if err != nil {
		return formatter.Fail(ExitCommandError, "invalid build mode", err)
	}
	exclude, err := harness.ParseKeys(opts.Exclude)
	if err != nil {
		formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid --exclude", err)
	}

	m, err := LoadModel(path, opts.Class)
	if err != nil {
		return formatter.Fail(ExitCommandError, "failed to load model", err)
	}
	formatter.VerboseLog("Loaded model %s from %s", m.Name, path)

	driverOpts := []build.DriverOption{build.WithCacheSize(cfg.CacheSize)}
	if !opts.NoHistory {
		st, err := openStore(firstNonEmpty(opts.Store, cfg.Store))
		if err != nil {
			formatter.Error(ErrCodeStore, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to open build history", err)
		}
		defer st.Close()
		driverOpts = append(driverOpts, build.WithStore(st))
	}

	drv, err := build.New(firstNonEmpty(opts.OutDir, cfg.BuildDir), driverOpts...)
	if err != nil {
		return formatter.Fail(ExitCommandError, "invalid build directory", err)
	}

	res, err := drv.Build(ctx, build.Request{
		Model:  m,
		Mode:   mode,
		Prefix: opts.Prefix,
		Kernel: kernel.Options{
			Debug:   opts.Debug || cfg.Debug,
			Exclude: exclude,
			Solver:  cfg.Solver,
		},
	})
	if err != nil {
		return formatter.Fail(ExitFailure, fmt.Sprintf("failed to build %s", m.Name), err)
	}

	out := GenerateResult{
		Model:      m.Name,
		BuildID:    res.Build.ID,
		Status:     res.Build.Status,
		Mode:       string(mode),
		BuildDir:   res.Dirs.Root,
		KernelPath: res.KernelPath,
		ModelHash:  res.Build.ModelHash,
		KernelHash: res.Build.KernelHash,
		Cached:     res.Cached,
	}
	if res.Kernel != nil {
		out.Scopes = len(res.Kernel.Scopes)
	}
	return formatter.Success(out)
}

// openStore opens the build history at path, creating its directory.
func openStore(path string) (*store.Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}
	return store.Open(path)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
