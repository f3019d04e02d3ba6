// Package pathenv makes an installed tool directory visible to later steps.
//
// A Publisher prepends a directory to PATH for some audience:
//
//   - ProcessPublisher changes the PATH of the running process, so child
//     processes started afterwards see the tool.
//   - AgentPublisher writes the "##vso[task.prependpath]" logging command the
//     build agent reads from stdout, so later pipeline steps see it.
//   - GitHubPublisher appends the directory to the file named by $GITHUB_PATH.
//
// Default composes the publishers that apply to the current environment.
//
// For interactive use, ExportCommand renders the equivalent line for a
// shell (bash, zsh, fish or PowerShell) to be evaluated by the user, e.g.
//
//	eval "$(usedotnet env --version 8.0.100 --shell bash)"
package pathenv
