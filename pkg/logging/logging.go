package logging

import (
	"sync"

	"atomicgo.dev/keyboard"
	"atomicgo.dev/keyboard/keys"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func SetLogLevel(verbose bool) {
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Debug().Msg("Verbose log output enabled")
	}
}

type ShortcutStatusFN func() *zerolog.Event

var (
	statusHookMutex sync.RWMutex
	statusHook      ShortcutStatusFN
)

// RegisterStatusHook sets the function printing the scan status when "s" is pressed.
func RegisterStatusHook(hook ShortcutStatusFN) {
	statusHookMutex.Lock()
	defer statusHookMutex.Unlock()
	statusHook = hook
}

// GetStatusHook returns the registered status hook or a default one
func GetStatusHook() ShortcutStatusFN {
	statusHookMutex.RLock()
	defer statusHookMutex.RUnlock()
	if statusHook != nil {
		return statusHook
	}
	return defaultStatusHook
}

func defaultStatusHook() *zerolog.Event {
	return log.Info().Str("status", "no scan running")
}

var shortcutLevels = map[string]zerolog.Level{
	"t": zerolog.TraceLevel,
	"d": zerolog.DebugLevel,
	"i": zerolog.InfoLevel,
	"w": zerolog.WarnLevel,
	"e": zerolog.ErrorLevel,
}

// HandleShortcut applies a single key press and reports whether listening should stop.
func HandleShortcut(key keys.Key) bool {
	switch key.Code {
	case keys.CtrlC, keys.Escape:
		return true
	case keys.RuneKey:
		if level, ok := shortcutLevels[key.String()]; ok {
			zerolog.SetGlobalLevel(level)
			log.Info().Str("logLevel", level.String()).Msg("New Log level")
			return false
		}
		if key.String() == "s" {
			GetStatusHook()().Msg("Status")
		}
	}
	return false
}

// ShortcutListeners blocks reading key presses: t/d/i/w/e switch the log level
// and s prints the registered status.
func ShortcutListeners(status ShortcutStatusFN) {
	if status != nil {
		RegisterStatusHook(status)
	}

	err := keyboard.Listen(func(key keys.Key) (stop bool, err error) {
		return HandleShortcut(key), nil
	})

	if err != nil {
		log.Error().Err(err).Msg("Failed hooking keyboard bindings")
	}
}
