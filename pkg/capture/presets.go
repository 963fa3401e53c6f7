package capture

import "sort"

// Preset names for common capture modes
const (
	PresetDefault = "default"
	PresetQVGA    = "qvga"
	PresetVGA     = "vga"
	Preset720p    = "720p"
	Preset1080p   = "1080p"
	Preset4K      = "4k"
)

// Preset is a requested capture mode. Zero fields accept the backend default.
type Preset struct {
	Width  int `json:"width"`
	Height int `json:"height"`
	FPS    int `json:"fps"`
}

// Presets returns all available presets.
func Presets() map[string]Preset {
	return map[string]Preset{
		PresetDefault: {},
		PresetQVGA:    {Width: 320, Height: 240, FPS: 30},
		PresetVGA:     {Width: 640, Height: 480, FPS: 30},
		Preset720p:    {Width: 1280, Height: 720, FPS: 30},
		Preset1080p:   {Width: 1920, Height: 1080, FPS: 30},
		// 4K USB cameras rarely sustain more than 15 FPS
		Preset4K: {Width: 3840, Height: 2160, FPS: 15},
	}
}

// PresetNames returns the sorted list of preset names.
func PresetNames() []string {
	presets := Presets()
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetPreset returns a preset by name, or nil if not found.
func GetPreset(name string) *Preset {
	if p, ok := Presets()[name]; ok {
		return &p
	}
	return nil
}
