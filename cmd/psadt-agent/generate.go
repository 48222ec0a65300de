package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"psadtagent/internal/app"
	"psadtagent/internal/generator"
	"psadtagent/internal/installer"
)

var (
	genMeta          installer.Metadata
	genInstallerFile string
	genNotes         string
	genOut           string
	genMaxRetries    int
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a PSADT script for one installer",
	Long: `Generates a Deploy-Application.ps1 for an installer. Metadata can be
given with flags, read from an installer file with --installer, or both
(flags win over extracted values).

Example:
  psadt-agent generate --name 7-Zip --version 23.01 --vendor "Igor Pavlov" --type exe --silent-args /S
  psadt-agent generate --installer ./7z2301-x64.msi --notes "no desktop shortcut" --out Deploy-Application.ps1`,
	Args: cobra.NoArgs,
	RunE: runGenerate,
}

func init() {
	f := generateCmd.Flags()
	f.StringVar(&genMeta.Name, "name", "", "Application name")
	f.StringVar(&genMeta.Version, "version", "", "Application version")
	f.StringVar(&genMeta.Vendor, "vendor", "", "Application vendor")
	f.StringVar(&genMeta.InstallerType, "type", "", "Installer type (exe, msi)")
	f.StringVar(&genMeta.SilentArgs, "silent-args", "", "Silent install arguments")
	f.StringVar(&genMeta.UninstallArgs, "uninstall-args", "", "Silent uninstall arguments")
	f.StringVar(&genMeta.Architecture, "arch", "", "Target architecture (default x64)")
	f.StringVar(&genMeta.Language, "lang", "", "Target language (default EN)")
	f.StringVar(&genInstallerFile, "installer", "", "Installer file to extract metadata from")
	f.StringVar(&genNotes, "notes", "", "Free-form packaging requirements")
	f.StringVarP(&genOut, "out", "o", "", "Write the script to this file instead of stdout")
	f.IntVar(&genMaxRetries, "max-retries", generator.DefaultMaxRetries, "Regeneration attempts after the first")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	meta, err := resolveMetadata(genMeta, genInstallerFile)
	if err != nil {
		return err
	}
	if err := meta.Validate(); err != nil {
		return err
	}

	core, err := app.NewCore(ctx, cfg, logger, generator.WithMaxRetries(genMaxRetries))
	if err != nil {
		return err
	}
	defer core.Close()

	if core.Switches != nil && genMeta.SilentArgs == "" {
		exe := ""
		if meta.InstallerPath != "" {
			exe = filepath.Base(meta.InstallerPath)
		}
		if recs := core.Switches.FindSwitches(meta.Name, exe, 1); len(recs) > 0 {
			logger.Info("using catalog switches", zap.String("record", recs[0].ID))
			meta.SilentArgs = recs[0].InstallSwitches
			if recs[0].UninstallSwitches != "" {
				meta.UninstallArgs = recs[0].UninstallSwitches
			}
		}
	}

	res, err := core.Generator.Generate(ctx, meta, genNotes)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if genOut != "" {
		if err := os.WriteFile(genOut, []byte(res.ScriptContent), 0o644); err != nil {
			return fmt.Errorf("write script: %w", err)
		}
	} else {
		fmt.Fprintln(out, res.ScriptContent)
	}
	printGenerateReport(cmd.ErrOrStderr(), res)
	return nil
}

// resolveMetadata overlays flag values on metadata extracted from path.
func resolveMetadata(flags installer.Metadata, path string) (installer.Metadata, error) {
	if path == "" {
		return flags.WithDefaults(), nil
	}
	meta, err := installer.Extract(path)
	if err != nil {
		return installer.Metadata{}, err
	}
	meta.InstallerPath = path
	overlay := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	overlay(&meta.Name, flags.Name)
	overlay(&meta.Version, flags.Version)
	overlay(&meta.Vendor, flags.Vendor)
	overlay(&meta.InstallerType, flags.InstallerType)
	overlay(&meta.SilentArgs, flags.SilentArgs)
	overlay(&meta.UninstallArgs, flags.UninstallArgs)
	overlay(&meta.Architecture, flags.Architecture)
	overlay(&meta.Language, flags.Language)
	return meta.WithDefaults(), nil
}

func printGenerateReport(w io.Writer, res *generator.Result) {
	status := good("PASS")
	if !res.Valid {
		status = bad("BEST EFFORT")
	}
	fmt.Fprintf(w, "%s score %s (attempt %d, model %s)\n", status, heading(fmt.Sprint(res.Score)), res.Metadata.Attempt, res.Metadata.LLMModel)
	for _, s := range res.RAGSources {
		fmt.Fprintf(w, "  source: %s\n", s)
	}
	printFindings(w, res.Issues, res.Suggestions)
}
