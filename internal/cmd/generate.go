package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/plansmith/plansmith/internal/buildplan"
	"github.com/plansmith/plansmith/internal/errors"
	"github.com/plansmith/plansmith/internal/orchestrator"
	"github.com/plansmith/plansmith/internal/ux"
)

var generateCmd = &cobra.Command{
	Use:   "generate [prompt]",
	Short: "Generate a build plan from a product prompt",
	Long: `Generate a structured build plan from a natural language product prompt.

Backends are tried in chain order: local inference servers first, then
the simplified-prompt retry, then the paid cloud fallback when
--allow-paid is set. Pass --provider to pin a single backend instead of
walking the chain.

Examples:
  # Local-first generation
  plansmith generate "Build a todo app with user accounts"

  # Read the prompt from a file, keep packet ids from a previous plan
  plansmith generate --prompt-file prompt.txt --existing plan.json

  # Pin a cloud provider and model
  plansmith generate --provider anthropic --model claude-sonnet-4-5 "..."

  # Allow the paid fallback when every local server is down
  plansmith generate --allow-paid "Build a todo app"`,
	Args: cobra.ArbitraryArgs,
	RunE: runGenerate,
}

var (
	generatePromptFile string
	generateSystem     string
	generateSimplified string
	generateModel      string
	generateProvider   string
	generateAPIKey     string
	generateExisting   string
	generateOut        string
	generateTemp       float64
	generateMaxTokens  int
	generateAllowPaid  bool
	generateRetry      bool
	generateTrace      bool
)

func init() {
	generateCmd.Flags().StringVar(&generatePromptFile, "prompt-file", "", "read the prompt from a file (- for stdin)")
	generateCmd.Flags().StringVar(&generateSystem, "system", "", "system prompt override")
	generateCmd.Flags().StringVar(&generateSimplified, "simplified-prompt", "", "reduced prompt for the retry step")
	generateCmd.Flags().StringVar(&generateModel, "model", "", "model to request (default per backend)")
	generateCmd.Flags().StringVar(&generateProvider, "provider", "", "pin a backend id or cloud provider instead of the chain")
	generateCmd.Flags().StringVar(&generateAPIKey, "api-key", "", "API key for the pinned provider (prefer the credential store)")
	generateCmd.Flags().StringVar(&generateExisting, "existing", "", "plan JSON whose work packet ids must survive the merge")
	generateCmd.Flags().StringVar(&generateOut, "out", "", "write the generated plan JSON to a file")
	generateCmd.Flags().Float64Var(&generateTemp, "temperature", 0, "sampling temperature (0 uses the backend default)")
	generateCmd.Flags().IntVar(&generateMaxTokens, "max-tokens", 0, "response token cap (0 uses the backend default)")
	generateCmd.Flags().BoolVar(&generateAllowPaid, "allow-paid", false, "permit the paid cloud fallback step")
	generateCmd.Flags().BoolVar(&generateRetry, "retry", true, "permit the simplified-prompt retry step")
	generateCmd.Flags().BoolVar(&generateTrace, "trace", false, "print the attempt trace to stderr")

	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	prompt, err := resolvePrompt(args, cmd.InOrStdin())
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return ux.EnhanceError(err)
	}
	logger := newLogger(cfg)

	req, err := buildGenerateRequest(prompt)
	if err != nil {
		return err
	}

	svc, _ := newService(cfg, logger)
	resp, err := svc.Generate(cmd.Context(), req)
	if err != nil {
		if generateTrace && resp != nil {
			fmt.Fprint(cmd.ErrOrStderr(), ux.NewRenderer(noColor).Trace(resp.Trace))
		}
		return ux.EnhanceError(err)
	}

	formatter, err := newFormatter(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	if err := formatter.Format(resp); err != nil {
		return err
	}
	// JSON and YAML responses embed the trace already.
	if generateTrace && outputFormat == "text" {
		fmt.Fprint(cmd.ErrOrStderr(), ux.NewRenderer(noColor).Trace(resp.Trace))
	}

	if generateOut != "" {
		if err := writePlanFile(generateOut, resp.Plan); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "plan written to %s\n", generateOut)
	}
	return nil
}

// resolvePrompt picks the prompt source: arguments, --prompt-file, then
// piped stdin.
func resolvePrompt(args []string, stdin io.Reader) (string, error) {
	if p := strings.TrimSpace(strings.Join(args, " ")); p != "" {
		return p, nil
	}
	if generatePromptFile != "" {
		if generatePromptFile == "-" {
			return readTrimmed(stdin)
		}
		data, err := os.ReadFile(generatePromptFile)
		if err != nil {
			if os.IsNotExist(err) {
				return "", errors.NewFileNotFoundError(generatePromptFile)
			}
			return "", errors.Wrap(errors.ErrCodeFileReadFailed, "read prompt file: "+generatePromptFile, err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	if stdinPiped() {
		return readTrimmed(stdin)
	}
	return "", errors.New(errors.ErrCodeInvalidRequest, "no prompt given").
		WithSuggestions(
			`Pass the prompt as an argument: plansmith generate "Build a todo app"`,
			"Or pipe one in: cat prompt.txt | plansmith generate",
		)
}

func readTrimmed(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeFileReadFailed, "read prompt from stdin", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// stdinPiped reports whether stdin carries piped data rather than a
// terminal.
func stdinPiped() bool {
	fi, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice == 0
}

// buildGenerateRequest maps the generate flags onto an orchestration
// request.
func buildGenerateRequest(prompt string) (*orchestrator.Request, error) {
	req := &orchestrator.Request{
		UserPrompt:        prompt,
		SystemPrompt:      generateSystem,
		SimplifiedPrompt:  generateSimplified,
		Model:             generateModel,
		Temperature:       generateTemp,
		MaxTokens:         generateMaxTokens,
		PreferredProvider: generateProvider,
		APIKey:            generateAPIKey,
		AllowPaidFallback: generateAllowPaid,
		UseRetry:          generateRetry,
	}
	if generateExisting != "" {
		packets, err := loadExistingPackets(generateExisting)
		if err != nil {
			return nil, err
		}
		req.ExistingPackets = packets
	}
	return req, req.Validate()
}

// loadExistingPackets reads a plan JSON file (the format --out writes) and
// returns its work packets as the merge snapshot. A bare packet array is
// accepted too.
func loadExistingPackets(path string) ([]buildplan.ExistingPacket, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewFileNotFoundError(path)
		}
		return nil, errors.Wrap(errors.ErrCodeFileReadFailed, "read existing plan: "+path, err)
	}

	var plan buildplan.BuildPlan
	if err := json.Unmarshal(data, &plan); err == nil && len(plan.Packets) > 0 {
		packets := make([]buildplan.ExistingPacket, 0, len(plan.Packets))
		for _, p := range plan.Packets {
			packets = append(packets, buildplan.ExistingPacket{
				ID:          p.ID,
				Title:       p.Title,
				Status:      p.Status,
				Priority:    p.Priority,
				PhaseID:     p.PhaseID,
				Description: p.Description,
				Tasks:       p.Tasks,
			})
		}
		return packets, nil
	}

	var packets []buildplan.ExistingPacket
	if err := json.Unmarshal(data, &packets); err == nil && len(packets) > 0 {
		return packets, nil
	}

	return nil, errors.New(errors.ErrCodeFileUnmarshal, "no work packets found in "+path).
		WithSuggestion("Pass a plan JSON file as written by 'plansmith generate --out'")
}

// writePlanFile writes the plan as indented JSON, the same document
// --existing accepts.
func writePlanFile(path string, plan *buildplan.BuildPlan) error {
	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return errors.Wrap(errors.ErrCodeFileMarshal, "marshal plan", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return errors.Wrap(errors.ErrCodeFileWriteFailed, "write plan file: "+path, err)
	}
	return nil
}
