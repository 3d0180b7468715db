package explain

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/CompassSecurity/jsleek/internal/cmd/common"
	"github.com/CompassSecurity/jsleek/pkg/assist"
	"github.com/CompassSecurity/jsleek/pkg/config"
	"github.com/CompassSecurity/jsleek/pkg/httpclient"
	"github.com/CompassSecurity/jsleek/pkg/system"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

type ExplainOptions struct {
	File      string
	Attack    bool
	Selection string
}

var options ExplainOptions

// SettingsStore is replaced in tests.
var SettingsStore = func() (config.SettingsStore, error) {
	path, err := config.DefaultAssistSettingsPath()
	if err != nil {
		return config.SettingsStore{}, err
	}
	return config.FileSettingsStore(path), nil
}

func NewExplainCmd() *cobra.Command {
	explainCmd := &cobra.Command{
		Use:   "explain",
		Short: "Explain a raw HTTP request with AI",
		Long: `Explain a raw HTTP request, e.g. one built from a discovered endpoint, using the Anthropic Messages API.
The answer is streamed to stdout while it is generated.

The request is read from --file or stdin. Configure the API key first with "jsleek explain configure"
or set the ANTHROPIC_API_KEY environment variable.
		`,
		Example: `
# Explain a request stored in a file
jsleek explain --file login.http

# Get a checklist of attack vectors to test
cat login.http | jsleek explain --attack

# Explain a single parameter
jsleek explain --selection "X-Debug-Token: 1"
		`,
		Annotations: map[string]string{common.ShortcutsAnnotation: "off"},
		Run:         Explain,
	}

	explainCmd.Flags().StringVarP(&options.File, "file", "f", "", "File containing the raw HTTP request, - or empty for stdin")
	explainCmd.Flags().BoolVar(&options.Attack, "attack", false, "Suggest a prioritized checklist of attack vectors instead of an explanation")
	explainCmd.Flags().StringVar(&options.Selection, "selection", "", "Explain only this part of a request or response")
	explainCmd.MarkFlagsMutuallyExclusive("attack", "selection")
	explainCmd.MarkFlagsMutuallyExclusive("file", "selection")

	explainCmd.AddCommand(NewConfigureCmd())
	return explainCmd
}

func Explain(cmd *cobra.Command, args []string) {
	store, err := SettingsStore()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed locating assist settings")
	}
	settings, err := store.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed loading assist settings")
	}
	settings = settings.WithEnv(os.LookupEnv)

	mode, content, err := input(options, cmd.InOrStdin())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed reading request")
	}

	ctx, stop := system.GracefulContext(cmd.Context())
	defer stop()

	if err := Run(ctx, settings, mode, content, cmd.OutOrStdout()); err != nil {
		log.Fatal().Err(err).Msg("Explanation failed")
	}
}

func input(opts ExplainOptions, stdin io.Reader) (assist.Mode, string, error) {
	if opts.Selection != "" {
		return assist.ModeSelection, opts.Selection, nil
	}

	mode := assist.ModeExplain
	if opts.Attack {
		mode = assist.ModeAttack
	}

	var r io.Reader = stdin
	if opts.File != "" && opts.File != "-" {
		// #nosec G304 - request file is chosen by the user running the tool
		f, err := os.Open(opts.File)
		if err != nil {
			return mode, "", err
		}
		defer func() { _ = f.Close() }()
		r = f
	}

	data, err := io.ReadAll(io.LimitReader(r, 1<<20))
	if err != nil {
		return mode, "", err
	}
	return mode, string(data), nil
}

// Run streams the explanation of content to out.
func Run(ctx context.Context, settings config.AssistSettings, mode assist.Mode, content string, out io.Writer) error {
	explainer := assist.NewExplainer(settings, httpclient.New(httpclient.Options{RetryMax: 2}))

	printed := 0
	text, err := explainer.Explain(ctx, mode, content, func(full string) {
		_, _ = io.WriteString(out, full[printed:])
		printed = len(full)
	})
	if printed > 0 {
		_, _ = io.WriteString(out, "\n")
	}
	if err != nil {
		return err
	}
	if text == "" {
		return errors.New("received an empty explanation")
	}
	return nil
}

func NewConfigureCmd() *cobra.Command {
	var apiKey, model, baseURL string

	configureCmd := &cobra.Command{
		Use:   "configure",
		Short: "Store the Anthropic API key and model",
		Long:  "Store the Anthropic API key and model in the user config directory, readable by the current user only. Without --api-key the key is read from stdin.",
		Example: `
# Store key and model
jsleek explain configure --model claude-3-5-sonnet-20241022
		`,
		Annotations: map[string]string{common.ShortcutsAnnotation: "off"},
		Run: func(cmd *cobra.Command, args []string) {
			if apiKey == "" {
				key, err := readSecret(cmd.InOrStdin(), cmd.ErrOrStderr())
				if err != nil {
					log.Fatal().Err(err).Msg("Failed reading API key")
				}
				apiKey = key
			}

			store, err := SettingsStore()
			if err != nil {
				log.Fatal().Err(err).Msg("Failed locating assist settings")
			}
			if err := Configure(store, apiKey, model, baseURL); err != nil {
				log.Fatal().Err(err).Msg("Failed saving assist settings")
			}
			log.Info().Str("model", model).Msg("Saved assist settings")
		},
	}

	configureCmd.Flags().StringVar(&apiKey, "api-key", "", "Anthropic API key, read from stdin when omitted")
	configureCmd.Flags().StringVar(&model, "model", config.DefaultAssistModel, "Model used for explanations")
	configureCmd.Flags().StringVar(&baseURL, "base-url", "", "Alternative API base URL, e.g. a proxy")

	return configureCmd
}

// Configure validates and stores the settings. An empty key keeps the stored one.
func Configure(store config.SettingsStore, apiKey string, model string, baseURL string) error {
	settings, err := store.Load()
	if err != nil {
		return err
	}
	if key := strings.TrimSpace(apiKey); key != "" {
		settings.APIKey = key
	}
	settings.Model = model
	settings.BaseURL = baseURL

	if err := settings.Validate(); err != nil {
		return err
	}
	return store.Save(settings)
}

func readSecret(in io.Reader, prompt io.Writer) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		_, _ = fmt.Fprint(prompt, "Anthropic API key: ")
		key, err := term.ReadPassword(int(f.Fd()))
		_, _ = fmt.Fprintln(prompt)
		return strings.TrimSpace(string(key)), err
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
