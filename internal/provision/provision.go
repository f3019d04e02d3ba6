// Package provision sequences the steps that make a requested tool version
// available on a build host.
//
// A Run validates the request, looks it up in the tool cache and, on a miss,
// resolves download URLs, downloads the archive (with legacy fallback),
// optionally verifies its signature, extracts it and commits it to the cache.
// The cache entry is then published to PATH. Each step is a State; the first
// failure ends the run with an *Error naming the failed State.
package provision

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ZebulonRouseFrantzich/usedotnet/internal/archive"
	"github.com/ZebulonRouseFrantzich/usedotnet/internal/download"
	"github.com/ZebulonRouseFrantzich/usedotnet/internal/event"
	"github.com/ZebulonRouseFrantzich/usedotnet/internal/pathenv"
	"github.com/ZebulonRouseFrantzich/usedotnet/internal/platform"
	"github.com/ZebulonRouseFrantzich/usedotnet/internal/resolver"
	"github.com/ZebulonRouseFrantzich/usedotnet/internal/tool"
	"github.com/ZebulonRouseFrantzich/usedotnet/internal/toolcache"
	"github.com/ZebulonRouseFrantzich/usedotnet/internal/transport"
)

// Provisioner runs the provisioning pipeline.
type Provisioner struct {
	cache      *toolcache.Cache
	resolver   resolver.Resolver
	downloader *download.Downloader
	verifier   *download.Verifier
	extractor  archive.Extractor
	publisher  pathenv.Publisher
	flavor     platform.Flavor
	reporter   event.Reporter
	tempDir    string
	onState    func(State)
}

// Config holds the collaborators of a Provisioner.
type Config struct {
	Cache      *toolcache.Cache
	Resolver   resolver.Resolver
	Downloader *download.Downloader
	// Verifier is optional; when set, archives must carry a valid detached
	// signature at <url>.sig.
	Verifier  *download.Verifier
	Extractor archive.Extractor
	Publisher pathenv.Publisher
	Flavor    platform.Flavor
	Reporter  event.Reporter
	// TempDir is where per-run working directories are created.
	// Defaults to os.TempDir().
	TempDir string
	// OnState, if set, is called on every state transition.
	OnState func(State)
}

// New creates a Provisioner.
func New(config Config) (*Provisioner, error) {
	if config.Cache == nil {
		return nil, fmt.Errorf("Cache is required")
	}
	if config.Resolver == nil {
		return nil, fmt.Errorf("Resolver is required")
	}
	if config.Publisher == nil {
		return nil, fmt.Errorf("Publisher is required")
	}
	if config.Flavor == nil {
		return nil, fmt.Errorf("Flavor is required")
	}

	p := &Provisioner{
		cache:      config.Cache,
		resolver:   config.Resolver,
		downloader: config.Downloader,
		verifier:   config.Verifier,
		extractor:  config.Extractor,
		publisher:  config.Publisher,
		flavor:     config.Flavor,
		reporter:   config.Reporter,
		tempDir:    config.TempDir,
		onState:    config.OnState,
	}

	if p.reporter == nil {
		p.reporter = event.Discard
	}
	if p.downloader == nil {
		p.downloader = download.New(download.WithReporter(p.reporter))
	}
	if p.extractor == nil {
		p.extractor = archive.ForFlavor(p.flavor)
	}
	if p.tempDir == "" {
		p.tempDir = os.TempDir()
	}

	return p, nil
}

// run carries the state of one Run.
type run struct {
	p     *Provisioner
	spec  Spec
	req   tool.Request
	state State
}

func (r *run) enter(s State) {
	r.state = s
	if r.p.onState != nil {
		r.p.onState(s)
	}
}

func (r *run) fail(kind ErrorKind, url string, err error) error {
	failed := r.state
	r.enter(Failed)

	e := &Error{
		State:   failed,
		Kind:    kind,
		Tool:    r.req.Kind.String(),
		Version: r.spec.Version,
		URL:     url,
		Err:     err,
	}
	if e.Tool == "" {
		e.Tool = r.spec.PackageType
	}
	return e
}

// Run provisions spec and publishes the resulting directory.
func (p *Provisioner) Run(ctx context.Context, spec Spec) (*Result, error) {
	r := &run{p: p, spec: spec}

	r.enter(Validating)
	kind, err := tool.ParsePackageKind(spec.PackageType)
	if err != nil {
		return nil, r.fail(InputError, "", err)
	}
	p.reporter.Report(event.Event{Kind: event.ToolToInstall, Tool: kind.String(), Version: spec.Version})

	r.req, err = tool.NewRequest(kind, spec.Version, spec.Arch)
	if err != nil {
		r.req.Kind = kind
		return nil, r.fail(InputError, "", err)
	}

	req := r.req
	toolID := req.ToolID()
	ver := req.Version.String()

	r.enter(CacheCheck)
	p.reporter.Report(event.Event{Kind: event.CacheCheck, Tool: toolID, Version: ver})

	if dir, ok := p.cache.Lookup(toolID, ver, req.Arch); ok {
		p.reporter.Report(event.Event{Kind: event.UsingCachedTool, Path: dir})
		if err := r.publish(dir); err != nil {
			return nil, err
		}
		r.enter(Done)
		return &Result{State: Done, ToolID: toolID, Version: ver, Dir: dir, FromCache: true}, nil
	}
	p.reporter.Report(event.Event{Kind: event.InstallingAfresh})

	result, err := r.install(ctx)
	if err != nil {
		return nil, err
	}

	if err := r.publish(result.Dir); err != nil {
		return nil, err
	}

	r.enter(Done)
	result.State = Done
	return result, nil
}

// install handles a cache miss and returns the committed cache entry.
func (r *run) install(ctx context.Context) (*Result, error) {
	p := r.p
	req := r.req
	toolID := req.ToolID()
	ver := req.Version.String()

	r.enter(Resolving)
	tc := transport.Build(r.spec.Transport, p.reporter)
	if err := tc.Validate(); err != nil {
		return nil, r.fail(InputError, "", err)
	}

	p.reporter.Report(event.Event{Kind: event.GettingDownloadURLs, Tool: req.Kind.String(), Version: ver})
	urls, err := p.resolver.Resolve(ctx, req, p.flavor.ResolverOS(), tc)
	if err != nil {
		return nil, r.fail(ScriptError, "", err)
	}

	workDir, err := os.MkdirTemp(p.tempDir, "usedotnet-*")
	if err != nil {
		return nil, r.fail(DownloadError, "", fmt.Errorf("create working directory: %w", err))
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	r.enter(Downloading)
	name := fmt.Sprintf("%s-%s-%s%s", toolID, ver, req.Arch, p.flavor.ArchiveExtension())
	fetched, err := p.downloader.Fetch(ctx, urls, tc, workDir, name)
	if err != nil {
		return nil, r.fail(DownloadError, failedURL(err, urls), err)
	}

	if p.verifier != nil {
		r.enter(Verifying)
		p.reporter.Report(event.Event{Kind: event.VerifyingSignature, Path: fetched.Path, URL: fetched.URL})

		sigPath := fetched.Path + download.SignatureSuffix
		if err := p.downloader.DownloadToFile(ctx, fetched.URL+download.SignatureSuffix, tc, sigPath); err != nil {
			return nil, r.fail(DownloadError, fetched.URL+download.SignatureSuffix, err)
		}
		if err := p.verifier.Verify(fetched.Path, sigPath); err != nil {
			return nil, r.fail(DownloadError, fetched.URL, err)
		}
	}

	r.enter(Extracting)
	p.reporter.Report(event.Event{Kind: event.Extracting, Format: p.extractor.Format(), Path: fetched.Path})
	extracted, err := p.extractor.Extract(fetched.Path, filepath.Join(workDir, "extracted"))
	if err != nil {
		return nil, r.fail(ExtractionError, fetched.URL, err)
	}

	r.enter(Committing)
	p.reporter.Report(event.Event{Kind: event.Caching, Path: extracted, Tool: toolID, Version: ver})
	dir, err := p.cache.Commit(toolID, ver, req.Arch, extracted)
	if err != nil {
		return nil, r.fail(CacheError, "", err)
	}
	p.reporter.Report(event.Event{Kind: event.SuccessfullyInstalled, Tool: req.Kind.String(), Version: ver})

	return &Result{
		ToolID:  toolID,
		Version: ver,
		Dir:     dir,
		URL:     fetched.URL,
		Legacy:  fetched.Legacy,
	}, nil
}

func (r *run) publish(dir string) error {
	r.enter(Publishing)
	r.p.reporter.Report(event.Event{Kind: event.PrependingPath, Path: dir})
	if err := r.p.publisher.Publish(dir); err != nil {
		return r.fail(PublishError, "", err)
	}
	return nil
}

// failedURL names the URL a download error refers to, preferring the legacy
// URL when the primary was not found.
func failedURL(err error, urls resolver.URLSet) string {
	var dlErr *download.Error
	if errors.As(err, &dlErr) && dlErr.URL != "" {
		return dlErr.URL
	}
	return urls.Primary
}
