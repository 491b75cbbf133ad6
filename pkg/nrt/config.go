package nrt

import (
	"sync"

	"github.com/fidato13/nrtsearch/pkg/validation"
)

// IndexSettings are the per-index settings. The coordinator reads
// MaxMergePreCopyDurationSec at the start of each merge pre-copy, so a live
// change applies to the next merge; the refresh path does not read settings.
type IndexSettings struct {
	// MaxMergePreCopyDurationSec bounds how long a merge pre-copy may wait for
	// replicas. Zero or negative means no deadline.
	MaxMergePreCopyDurationSec int `yaml:"maxMergePreCopyDurationSec"`

	// RAMBufferSizeMB is passed through to the writer.
	RAMBufferSizeMB float64 `yaml:"ramBufferSizeMB"`
}

// DefaultIndexSettings returns the settings used when none are configured.
func DefaultIndexSettings() IndexSettings {
	return IndexSettings{
		MaxMergePreCopyDurationSec: 0,
		RAMBufferSizeMB:            16,
	}
}

// Validate validates the index settings.
func (s IndexSettings) Validate() error {
	v := validation.NewConfigValidator("IndexSettings")
	v.NonNegative("MaxMergePreCopyDurationSec", s.MaxMergePreCopyDurationSec).
		PositiveFloat("RAMBufferSizeMB", s.RAMBufferSizeMB)
	return v.Validate()
}

// SettingsSource yields the current settings for an index.
type SettingsSource interface {
	Current() IndexSettings
}

// SettingsHolder is a mutable SettingsSource safe for concurrent use.
type SettingsHolder struct {
	mu       sync.RWMutex
	settings IndexSettings
}

// NewSettingsHolder creates a holder seeded with the given settings.
func NewSettingsHolder(settings IndexSettings) *SettingsHolder {
	return &SettingsHolder{settings: settings}
}

// Current returns the settings as of now.
func (h *SettingsHolder) Current() IndexSettings {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.settings
}

// Set replaces the settings. The next merge pre-copy observes the change.
func (h *SettingsHolder) Set(settings IndexSettings) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.settings = settings
}

var _ SettingsSource = (*SettingsHolder)(nil)
