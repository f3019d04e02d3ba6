package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/ZebulonRouseFrantzich/usedotnet/internal/config"
	"github.com/ZebulonRouseFrantzich/usedotnet/internal/download"
	"github.com/ZebulonRouseFrantzich/usedotnet/internal/event"
	"github.com/ZebulonRouseFrantzich/usedotnet/internal/platform"
	"github.com/ZebulonRouseFrantzich/usedotnet/internal/resolver"
	"github.com/ZebulonRouseFrantzich/usedotnet/internal/tool"
	"github.com/ZebulonRouseFrantzich/usedotnet/internal/transport"
)

// app holds what every subcommand needs: configuration, logger and host.
type app struct {
	cfg      *config.Config
	logger   *log.Logger
	reporter event.Reporter
	info     *platform.Info
	flavor   platform.Flavor
	stdout   io.Writer
}

func newApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	v, err := config.NewViper(cmd.Flags())
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(v)
	if err != nil {
		return nil, err
	}

	logger := log.NewWithOptions(cmd.ErrOrStderr(), log.Options{
		Prefix: config.AppName,
		Level:  cfg.LogLevel,
	})

	info, err := platform.NewDetector().Detect(ctx)
	if err != nil {
		return nil, fmt.Errorf("platform detection failed: %w", err)
	}
	flavor := platform.FlavorFor(info)

	if cfg.Architecture == "" {
		cfg.Architecture = info.Arch
	}

	logger.Debug("host detected",
		"os", info.OS,
		"arch", info.Arch,
		"distro", info.Distro,
		"libc", info.Libc,
		"family", flavor.Name(),
	)

	return &app{
		cfg:      cfg,
		logger:   logger,
		reporter: event.NewLogReporter(logger),
		info:     info,
		flavor:   flavor,
		stdout:   cmd.OutOrStdout(),
	}, nil
}

// newResolver builds the configured URL resolver. Scripts ending in .lua run in
// the embedded interpreter; anything else is executed.
func (a *app) newResolver() (resolver.Resolver, error) {
	script := a.cfg.ResolverScript
	if script == "" {
		return nil, fmt.Errorf("%s is required to download a tool that is not cached", config.KeyResolverScript)
	}

	abs, err := filepath.Abs(script)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", script, err)
	}

	if strings.EqualFold(filepath.Ext(abs), ".lua") {
		lr, err := resolver.LoadLuaResolver(abs, a.info, a.flavor,
			resolver.WithLuaTimeout(a.cfg.ResolverTimeout),
		)
		if err != nil {
			return nil, err
		}
		return lr, nil
	}

	return resolver.NewScriptResolver(abs, a.flavor,
		resolver.WithTimeout(a.cfg.ResolverTimeout),
		resolver.WithReporter(a.reporter),
	), nil
}

// newVerifier loads the configured keyring, if any.
func (a *app) newVerifier() (*download.Verifier, error) {
	if a.cfg.Keyring == "" {
		return nil, nil
	}
	v, err := download.LoadVerifier(a.cfg.Keyring)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", config.KeyKeyring, err)
	}
	return v, nil
}

func (a *app) newDownloader() *download.Downloader {
	return download.New(
		download.WithTimeout(a.cfg.DownloadTimeout),
		download.WithUserAgent(config.AppName+"/"+strings.TrimPrefix(Version, "v")),
		download.WithReporter(a.reporter),
	)
}

// lazyResolver defers building the resolver until a cache miss needs it,
// so cached tools can be published without a resolver script.
type lazyResolver struct {
	build func() (resolver.Resolver, error)
}

func (l lazyResolver) Resolve(ctx context.Context, req tool.Request, platformName string, tc transport.Config) (resolver.URLSet, error) {
	r, err := l.build()
	if err != nil {
		return resolver.URLSet{}, fmt.Errorf("%w: %w", resolver.ErrResolutionFailed, err)
	}
	return r.Resolve(ctx, req, platformName, tc)
}

