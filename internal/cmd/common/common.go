// Package common provides the logging setup and startup sequence shared by the jsleek commands.
package common

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/CompassSecurity/jsleek/pkg/format"
	"github.com/CompassSecurity/jsleek/pkg/httpclient"
	"github.com/CompassSecurity/jsleek/pkg/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// Version information - set via ldflags during build
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// LogOptions holds the global output flags.
type LogOptions struct {
	JSON        bool
	File        string
	Color       bool
	Verbose     bool
	Level       string
	IgnoreProxy bool
}

var (
	Options           = LogOptions{Color: true}
	originalTermState *term.State
)

// ShortcutsAnnotation set to "off" on a command keeps stdin free of the
// keyboard shortcut listener.
const ShortcutsAnnotation = "jsleek/shortcuts"

// TerminalRestorer is called before fatal logs exit the process
var TerminalRestorer func()

// LineWriter terminates every log line with the platform newline.
type LineWriter struct {
	Writer io.Writer
}

func (lw *LineWriter) Write(p []byte) (n int, err error) {
	originalLen := len(p)

	// zerolog always appends "\n", see https://github.com/rs/zerolog/blob/master/log.go#L474
	line := bytes.TrimSuffix(p, []byte("\n"))
	newline := []byte("\n")
	if runtime.GOOS == "windows" {
		newline = []byte("\n\r")
	}
	line = append(line[:len(line):len(line)], newline...)

	written, err := lw.Writer.Write(line)
	if err != nil {
		return 0, err
	}
	if written != len(line) {
		return 0, io.ErrShortWrite
	}
	return originalLen, nil
}

// FatalHook restores the terminal state before fatal logs exit.
type FatalHook struct{}

func (h FatalHook) Run(e *zerolog.Event, level zerolog.Level, msg string) {
	if level == zerolog.FatalLevel && TerminalRestorer != nil {
		TerminalRestorer()
	}
}

func SaveTerminalState() {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		state, err := term.GetState(int(os.Stdin.Fd()))
		if err == nil {
			originalTermState = state
		}
	}
}

func RestoreTerminalState() {
	if originalTermState != nil {
		_ = term.Restore(int(os.Stdin.Fd()), originalTermState)
	}
}

// NewLogger builds the global logger writing to out. Hits are rendered with
// their own level in both JSON and console output.
func NewLogger(out io.Writer, json bool, color bool) zerolog.Logger {
	hitWriter := &logging.HitLevelWriter{}
	if json {
		hitWriter.SetOutput(out)
	} else {
		hitWriter.SetOutput(&zerolog.ConsoleWriter{
			Out:         out,
			TimeFormat:  time.RFC3339,
			NoColor:     !color,
			FormatLevel: formatLevel(color),
		})
	}
	logging.SetGlobalHitWriter(hitWriter)
	return zerolog.New(hitWriter).With().Timestamp().Logger().Hook(FatalHook{})
}

// InitLogger installs the global logger configured by the log flags
func InitLogger(cmd *cobra.Command) error {
	var out io.Writer = &LineWriter{Writer: os.Stdout}
	color := Options.Color

	if Options.File != "" {
		// #nosec G304 - log file path is chosen by the user running the tool
		logFile, err := os.OpenFile(Options.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, format.FileUserReadWrite)
		if err != nil {
			return fmt.Errorf("failed opening log file: %w", err)
		}
		out = &LineWriter{Writer: logFile}

		if !cmd.Root().PersistentFlags().Changed("color") {
			color = false
		}
	}

	log.Logger = NewLogger(out, Options.JSON, color)
	return nil
}

var levelColors = map[string]string{
	"trace": "\x1b[90m",
	"info":  "\x1b[32m",
	"warn":  "\x1b[33m",
	"error": "\x1b[31m",
	"fatal": "\x1b[31m",
	"panic": "\x1b[31m",
	// hits stand out in bright magenta
	"hit": "\x1b[35m",
}

func formatLevel(color bool) zerolog.Formatter {
	return func(i any) string {
		level, ok := i.(string)
		if !ok {
			return ""
		}
		if code, found := levelColors[level]; color && found {
			return code + level + "\x1b[0m"
		}
		return level
	}
}

// SetGlobalLogLevel applies --log-level, then -v, then the info default.
func SetGlobalLogLevel() {
	if Options.Level != "" {
		level, err := logging.ParseLevel(Options.Level)
		if err != nil || Options.Level == "hit" || level > zerolog.ErrorLevel {
			zerolog.SetGlobalLevel(zerolog.InfoLevel)
			log.Warn().Str("logLevelSpecified", Options.Level).Msg("Invalid log level, defaulting to info")
			return
		}
		zerolog.SetGlobalLevel(level)
		log.WithLevel(level).Str("logLevel", level.String()).Msg("Log level set (explicit)")
		return
	}

	if Options.Verbose {
		logging.SetLogLevel(true)
		return
	}

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

// AddCommonFlags adds the logging and proxy flags to a cobra command
func AddCommonFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.BoolVar(&Options.JSON, "json", false, "Use JSON as log output format")
	flags.StringVarP(&Options.File, "logfile", "l", "", "Log output to a file")
	flags.BoolVarP(&Options.Verbose, "verbose", "v", false, "Enable debug logging (shortcut for --log-level=debug)")
	flags.StringVar(&Options.Level, "log-level", "", "Set log level globally (trace, debug, info, warn, error). Example: --log-level=warn")
	flags.BoolVar(&Options.Color, "color", true, "Enable colored log output (auto-disabled when using --logfile)")
	flags.BoolVar(&Options.IgnoreProxy, "ignore-proxy", false, "Ignore HTTP_PROXY environment variable")
}

// SetupPersistentPreRun initializes logging, proxy handling and the keyboard
// shortcuts before any subcommand runs.
func SetupPersistentPreRun(cmd *cobra.Command) {
	cmd.PersistentPreRunE = func(c *cobra.Command, args []string) error {
		if err := InitLogger(c); err != nil {
			return err
		}
		SetGlobalLogLevel()
		httpclient.SetIgnoreProxy(Options.IgnoreProxy)
		if c.Annotations[ShortcutsAnnotation] != "off" && term.IsTerminal(int(os.Stdin.Fd())) {
			go logging.ShortcutListeners(nil)
		}
		return nil
	}
}

// Run executes the startup sequence and the root command
func Run(rootCmd *cobra.Command) {
	SaveTerminalState()
	defer RestoreTerminalState()

	TerminalRestorer = RestoreTerminalState

	if err := rootCmd.Execute(); err != nil {
		RestoreTerminalState()
		os.Exit(1)
	}
}
