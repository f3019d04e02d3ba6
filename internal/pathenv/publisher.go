package pathenv

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ZebulonRouseFrantzich/usedotnet/internal/platform"
)

// Environment variables consulted by Default.
const (
	// EnvTFBuild is set to "True" by the build agent for every job.
	EnvTFBuild = "TF_BUILD"
	// EnvGitHubPath names the file GitHub Actions reads PATH additions from.
	EnvGitHubPath = "GITHUB_PATH"
)

// Publisher prepends a directory to PATH for some audience.
type Publisher interface {
	Publish(dir string) error
}

// ProcessPublisher prepends to the PATH of the current process.
type ProcessPublisher struct {
	Separator string
}

// Publish prepends dir unless it already is the first PATH entry.
func (p ProcessPublisher) Publish(dir string) error {
	if dir == "" {
		return &PublishError{Target: "process PATH", Message: "empty directory"}
	}

	sep := p.Separator
	if sep == "" {
		sep = string(os.PathListSeparator)
	}

	current := os.Getenv("PATH")
	if current == "" {
		return setPath(dir)
	}

	first, _, _ := strings.Cut(current, sep)
	if first == dir {
		return nil
	}
	return setPath(dir + sep + current)
}

func setPath(value string) error {
	if err := os.Setenv("PATH", value); err != nil {
		return &PublishError{Target: "process PATH", Message: "set PATH", Cause: err}
	}
	return nil
}

// AgentPublisher emits the build agent's prepend-path logging command.
type AgentPublisher struct {
	W io.Writer
}

// Publish writes "##vso[task.prependpath]<dir>".
func (p AgentPublisher) Publish(dir string) error {
	if strings.ContainsAny(dir, "\r\n") {
		return &PublishError{Target: "agent", Dir: dir, Message: "directory contains a line break"}
	}
	if _, err := fmt.Fprintf(p.W, "##vso[task.prependpath]%s\n", dir); err != nil {
		return &PublishError{Target: "agent", Dir: dir, Message: "write logging command", Cause: err}
	}
	return nil
}

// GitHubPublisher appends dir to the GitHub Actions PATH file.
type GitHubPublisher struct {
	File string
}

// Publish appends "<dir>\n" to the PATH file.
func (p GitHubPublisher) Publish(dir string) (err error) {
	if strings.ContainsAny(dir, "\r\n") {
		return &PublishError{Target: p.File, Dir: dir, Message: "directory contains a line break"}
	}

	f, err := os.OpenFile(p.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return &PublishError{Target: p.File, Dir: dir, Message: "open path file", Cause: err}
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = &PublishError{Target: p.File, Dir: dir, Message: "close path file", Cause: closeErr}
		}
	}()

	if _, err := fmt.Fprintln(f, dir); err != nil {
		return &PublishError{Target: p.File, Dir: dir, Message: "write path file", Cause: err}
	}
	return nil
}

// Multi publishes to every publisher in order and joins their errors.
type Multi []Publisher

// Publish calls every publisher, even after a failure.
func (m Multi) Publish(dir string) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(dir); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Default returns the publishers for the current environment: the process
// PATH always, the agent logging command when running under the build agent,
// and the GitHub PATH file when $GITHUB_PATH is set.
func Default(flavor platform.Flavor, getenv func(string) string, stdout io.Writer) Publisher {
	if getenv == nil {
		getenv = os.Getenv
	}

	publishers := Multi{ProcessPublisher{Separator: flavor.ListSeparator()}}

	if strings.EqualFold(getenv(EnvTFBuild), "true") {
		publishers = append(publishers, AgentPublisher{W: stdout})
	}
	if file := getenv(EnvGitHubPath); file != "" {
		publishers = append(publishers, GitHubPublisher{File: file})
	}

	return publishers
}
