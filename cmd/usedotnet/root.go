package main

import (
	"github.com/spf13/cobra"

	"github.com/ZebulonRouseFrantzich/usedotnet/internal/config"
	"github.com/ZebulonRouseFrantzich/usedotnet/internal/pathenv"
	"github.com/ZebulonRouseFrantzich/usedotnet/internal/provision"
	"github.com/ZebulonRouseFrantzich/usedotnet/internal/resolver"
	"github.com/ZebulonRouseFrantzich/usedotnet/internal/toolcache"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "usedotnet",
		Short: "Install a pinned .NET SDK or runtime and put it on PATH",
		Long: `usedotnet installs an exact version of the .NET SDK or runtime into the
build agent's tool cache and prepends it to PATH for the following steps.

A cached version is reused without network access. Otherwise the download
URLs are obtained from the resolver script, the archive is downloaded
(falling back to the legacy URL when the primary one does not exist),
extracted and committed to the cache.

Every flag can also be given as an INPUT_<NAME> environment variable,
e.g. INPUT_VERSION or INPUT_PACKAGETYPE.`,
		Example: `  usedotnet --package-type sdk --version 8.0.100 --resolver-script ./get-urls.sh
  INPUT_VERSION=8.0.0 usedotnet --resolver-script ./resolver.lua`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runInstall,
	}

	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(newEnvCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func runInstall(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}

	cache, err := toolcache.New(a.cfg.ToolsDir)
	if err != nil {
		return err
	}

	verifier, err := a.newVerifier()
	if err != nil {
		return err
	}

	p, err := provision.New(provision.Config{
		Cache:      cache,
		Resolver:   lazyResolver{build: a.newResolver},
		Downloader: a.newDownloader(),
		Verifier:   verifier,
		Publisher:  pathenv.Default(a.flavor, nil, a.stdout),
		Flavor:     a.flavor,
		Reporter:   a.reporter,
		TempDir:    a.cfg.TempDir,
		OnState: func(s provision.State) {
			a.logger.Debug("state", "state", s)
		},
	})
	if err != nil {
		return err
	}

	result, err := p.Run(ctx, provision.Spec{
		PackageType: a.cfg.PackageType,
		Version:     a.cfg.Version,
		Arch:        a.cfg.Architecture,
		Transport:   a.cfg.TransportInputs(),
	})
	if err != nil {
		return err
	}

	a.logger.Debug("done", "dir", result.Dir, "cached", result.FromCache, "url", result.URL)
	return nil
}

var _ resolver.Resolver = lazyResolver{}
