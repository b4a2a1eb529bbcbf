package build

import "strings"

// Mode selects when a kernel is regenerated.
type Mode string

const (
	// ModeLazy regenerates only when the model differs from the snapshot of
	// the last successful build in the same directory.
	ModeLazy Mode = "lazy"
	// ModeForce always regenerates and reinstalls.
	ModeForce Mode = "force"
	// ModeBuildOnly regenerates and installs like ModeForce. The caller
	// loads nothing afterwards.
	ModeBuildOnly Mode = "build_only"
	// ModeRequire never generates; an installed kernel must already exist.
	ModeRequire Mode = "require"
	// ModeGenerateOnly writes sources but does not install them.
	ModeGenerateOnly Mode = "generate_only"
	// ModePurge removes the whole build directory, then regenerates.
	ModePurge Mode = "purge"
)

// Modes lists every mode in documentation order.
var Modes = []Mode{ModeLazy, ModeForce, ModeBuildOnly, ModeRequire, ModeGenerateOnly, ModePurge}

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	for _, m := range Modes {
		if string(m) == s {
			return m, nil
		}
	}
	names := make([]string, len(Modes))
	for i, m := range Modes {
		names[i] = string(m)
	}
	return "", &Error{
		Op:      "mode",
		Message: "unrecognised build mode '" + s + "', must be one of ('" + strings.Join(names, "', '") + "')",
	}
}

func (m Mode) generates() bool {
	return m != ModeRequire
}

func (m Mode) installs() bool {
	return m != ModeGenerateOnly
}
