package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ZebulonRouseFrantzich/usedotnet/internal/pathenv"
	"github.com/ZebulonRouseFrantzich/usedotnet/internal/tool"
	"github.com/ZebulonRouseFrantzich/usedotnet/internal/toolcache"
)

func newEnvCmd() *cobra.Command {
	var shellName string

	cmd := &cobra.Command{
		Use:   "env",
		Short: "Print the shell command that puts a cached tool on PATH",
		Long: `Print the command that prepends an already cached tool to PATH in your
shell. Nothing is downloaded; install the tool first.`,
		Example: `  eval "$(usedotnet env --package-type sdk --version 8.0.100)"
  usedotnet env --version 8.0.0 --shell fish | source`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}

			shell := pathenv.DetectShell(os.Getenv)
			if shellName != "" {
				shell = pathenv.ParseShell(shellName)
			}
			if err := pathenv.ValidateShell(shell); err != nil {
				return fmt.Errorf("%w (use --shell)", err)
			}

			kind, err := tool.ParsePackageKind(a.cfg.PackageType)
			if err != nil {
				return err
			}
			req, err := tool.NewRequest(kind, a.cfg.Version, a.cfg.Architecture)
			if err != nil {
				return err
			}

			cache, err := toolcache.New(a.cfg.ToolsDir)
			if err != nil {
				return err
			}

			dir, ok := cache.Lookup(req.ToolID(), req.Version.String(), req.Arch)
			if !ok {
				return fmt.Errorf("%s (%s) is not installed in %s", req, req.Arch, cache.Root())
			}

			line, err := pathenv.ExportCommand(shell, dir)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(a.stdout, line)
			return err
		},
	}

	cmd.Flags().StringVar(&shellName, "shell", "", "shell to print for: bash, zsh, fish or powershell (default: detected)")

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the usedotnet version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "usedotnet %s\n", Version)
			return err
		},
	}
}
