package camera

// Preset names for common configurations
const (
	PresetDefault = "default"
	Preset480p    = "480p"
	Preset720p    = "720p"
	PresetLowCPU  = "low-cpu"
)

// Presets returns all available preset configurations.
func Presets() map[string]Config {
	return map[string]Config{
		PresetDefault: DefaultConfig(),
		Preset480p:    DefaultConfig(),
		Preset720p:    HD720Config(),
		PresetLowCPU:  LowCPUConfig(),
	}
}

// PresetNames returns the list of available preset names.
func PresetNames() []string {
	return []string{PresetDefault, Preset480p, Preset720p, PresetLowCPU}
}

// GetPreset returns a preset config by name, or nil if not found.
func GetPreset(name string) *Config {
	if cfg, ok := Presets()[name]; ok {
		return &cfg
	}
	return nil
}

// HD720Config returns 720p. Larger stills help the service on distant faces.
func HD720Config() Config {
	cfg := DefaultConfig()
	cfg.Width = 1280
	cfg.Height = 720
	return cfg
}

// LowCPUConfig trades resolution and framerate for CPU on small boards.
func LowCPUConfig() Config {
	cfg := DefaultConfig()
	cfg.Width = 320
	cfg.Height = 240
	cfg.Framerate = 5
	cfg.Quality = 80
	return cfg
}
