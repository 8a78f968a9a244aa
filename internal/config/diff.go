package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// PhrasesChanged is true if any of the wake/sleep/resume/goodbye phrase
	// sets or the phonetic matching flag changed.
	PhrasesChanged bool

	// AudioChanged is true if the energy threshold or minimum utterance
	// duration changed.
	AudioChanged bool

	// ColorsChanged is true if any indicator color changed.
	ColorsChanged bool

	// AnnouncementChanged is true if the announcement schedule or text changed.
	AnnouncementChanged bool
}

// Any reports whether the diff contains at least one change.
func (d ConfigDiff) Any() bool {
	return d.LogLevelChanged || d.PhrasesChanged || d.AudioChanged ||
		d.ColorsChanged || d.AnnouncementChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart; Discord
// identity, connection tuning, and provider selection require a restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.LogLevel != new.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.LogLevel
	}

	if !slices.Equal(old.Commands.WakePhrases, new.Commands.WakePhrases) ||
		!slices.Equal(old.Commands.SleepPhrases, new.Commands.SleepPhrases) ||
		!slices.Equal(old.Commands.ResumePhrases, new.Commands.ResumePhrases) ||
		!slices.Equal(old.Commands.GoodbyePhrases, new.Commands.GoodbyePhrases) ||
		old.Commands.PhoneticMatching != new.Commands.PhoneticMatching {
		d.PhrasesChanged = true
	}

	if old.Audio != new.Audio {
		d.AudioChanged = true
	}

	if !colorsEqual(old.Indicator.Colors, new.Indicator.Colors) {
		d.ColorsChanged = true
	}

	if old.Announcement != new.Announcement {
		d.AnnouncementChanged = true
	}

	return d
}

func colorsEqual(a, b map[string]RGB) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}
