package solver

// Settings are the integration tolerances baked into a generated kernel.
type Settings struct {
	AbsTol   float64 `yaml:"abstol" json:"abstol"`
	RelTol   float64 `yaml:"reltol" json:"reltol"`
	MaxSteps int     `yaml:"max_steps" json:"max_steps"`
}

// DefaultSettings returns the tolerances used when none are configured.
func DefaultSettings() Settings {
	return Settings{AbsTol: 1e-9, RelTol: 1e-6, MaxSteps: 5000}
}

// WithDefaults fills every unset field from DefaultSettings.
func (s Settings) WithDefaults() Settings {
	d := DefaultSettings()
	if s.AbsTol <= 0 {
		s.AbsTol = d.AbsTol
	}
	if s.RelTol <= 0 {
		s.RelTol = d.RelTol
	}
	if s.MaxSteps <= 0 {
		s.MaxSteps = d.MaxSteps
	}
	return s
}
