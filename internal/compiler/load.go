package compiler

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/dyngen/internal/ir"
)

// ErrNoModels is returned when a CUE source declares no model.
var ErrNoModels = errors.New("no models found")

// LoadValue builds the CUE value of a model source. path may be a single .cue
// file or a directory holding one CUE package.
func LoadValue(path string) (cue.Value, error) {
	info, err := os.Stat(path)
	if err != nil {
		return cue.Value{}, fmt.Errorf("model source: %w", err)
	}

	cfg := &load.Config{Dir: path}
	args := []string{"."}
	if !info.IsDir() {
		cfg.Dir = filepath.Dir(path)
		args = []string{filepath.Base(path)}
	}

	instances := load.Instances(args, cfg)
	if len(instances) == 0 {
		return cue.Value{}, fmt.Errorf("no CUE instances loaded from %s", path)
	}
	inst := instances[0]
	if inst.Err != nil {
		return cue.Value{}, formatCUEError(inst.Err)
	}

	ctx := cuecontext.New()
	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return cue.Value{}, formatCUEError(err)
	}
	return value, nil
}

// CompileModels compiles every entry under the top-level "model" struct.
// Errors are collected per model; successfully compiled models are still
// returned.
func CompileModels(value cue.Value) ([]*ir.ModelClass, []error) {
	modelsVal := value.LookupPath(cue.ParsePath("model"))
	if !modelsVal.Exists() {
		return nil, []error{ErrNoModels}
	}

	iter, err := modelsVal.Fields()
	if err != nil {
		return nil, []error{formatCUEError(err)}
	}

	var (
		models []*ir.ModelClass
		errs   []error
	)
	for iter.Next() {
		m, err := CompileModel(iter.Value())
		if err != nil {
			errs = append(errs, fmt.Errorf("model %s: %w", iter.Selector().Unquoted(), err))
			continue
		}
		models = append(models, m)
	}
	if len(models) == 0 && len(errs) == 0 {
		errs = append(errs, ErrNoModels)
	}
	return models, errs
}

// LoadModel loads the named model from path. An empty name selects the only
// model in the source.
func LoadModel(path, name string) (*ir.ModelClass, error) {
	value, err := LoadValue(path)
	if err != nil {
		return nil, err
	}
	models, errs := CompileModels(value)
	if len(errs) > 0 {
		return nil, errs[0]
	}

	if name == "" {
		if len(models) != 1 {
			return nil, fmt.Errorf("%s declares %d models, select one by name", path, len(models))
		}
		return models[0], nil
	}
	for _, m := range models {
		if m.Name == name {
			return m, nil
		}
	}
	return nil, fmt.Errorf("model %q not found in %s", name, path)
}
