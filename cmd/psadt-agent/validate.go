package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"psadtagent/internal/app"
	"psadtagent/internal/lint"
	"psadtagent/internal/llm"
	"psadtagent/internal/prompt"
)

var (
	good    = color.New(color.FgGreen, color.Bold).SprintFunc()
	bad     = color.New(color.FgRed, color.Bold).SprintFunc()
	warn    = color.New(color.FgYellow).SprintFunc()
	heading = color.New(color.FgCyan, color.Bold).SprintFunc()
)

var errScriptInvalid = errors.New("script failed validation")

var (
	validateJSON bool
	validateLLM  bool
)

var validateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Lint a PSADT script",
	Long: `Scores a script against the PSADT compliance rules (LINT_RULES_FILE
or the built-in table). Reads stdin when file is "-". Exits non-zero when
the score is below the validity threshold.

With --llm the script is also sent to the configured model for review and
its verdict is printed after the lint report.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().BoolVar(&validateJSON, "json", false, "Print the lint result as JSON")
	validateCmd.Flags().BoolVar(&validateLLM, "llm", false, "Also ask the LLM to review the script")
}

func runValidate(cmd *cobra.Command, args []string) error {
	text, err := readScript(cmd.InOrStdin(), args[0])
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return errors.New("script is empty")
	}

	linter, err := app.NewLinter(cfg.LintRulesFile)
	if err != nil {
		return err
	}
	res := linter.Validate(text)

	out := cmd.OutOrStdout()
	if validateJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	} else {
		printLintReport(out, res)
	}

	if validateLLM {
		verdict, err := reviewWithLLM(cmd, text)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, heading("LLM review:"))
		fmt.Fprintln(out, verdict)
	}

	if !res.Valid {
		return errScriptInvalid
	}
	return nil
}

func readScript(stdin io.Reader, path string) (string, error) {
	var (
		raw []byte
		err error
	)
	if path == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read script: %w", err)
	}
	return string(raw), nil
}

func reviewWithLLM(cmd *cobra.Command, text string) (string, error) {
	ctx := commandContext(cmd)
	client, err := app.NewLLM(ctx, cfg.LLM, logger)
	if err != nil {
		return "", err
	}
	defer client.Close()

	resp, err := client.Generate(ctx, llm.Request{
		Messages:    prompt.BuildValidationPrompt(text),
		MaxTokens:   2048,
		Temperature: 0,
	})
	if err != nil {
		return "", fmt.Errorf("llm review: %w", err)
	}
	return resp.Content, nil
}

func printLintReport(w io.Writer, res lint.Result) {
	status := good("VALID")
	if !res.Valid {
		status = bad("INVALID")
	}
	fmt.Fprintf(w, "%s score %s/%d (threshold %d)\n", status, heading(fmt.Sprint(res.Score)), lint.StartScore, lint.ValidThreshold)
	printFindings(w, res.Issues, res.Suggestions)
}

func printFindings(w io.Writer, issues, suggestions []string) {
	for _, s := range issues {
		fmt.Fprintf(w, "  %s %s\n", bad("issue:"), s)
	}
	for _, s := range suggestions {
		fmt.Fprintf(w, "  %s %s\n", warn("suggestion:"), s)
	}
}
