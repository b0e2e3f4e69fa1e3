package core

import (
	"errors"
	"fmt"
	"strings"
)

// CloneErrorKind classifies why cloning a custom module failed.
type CloneErrorKind int

const (
	CloneErrUnknown CloneErrorKind = iota
	CloneErrAuth
	CloneErrRepoNotFound
	CloneErrNetwork
	CloneErrSSHKey
	CloneErrHostKey
	CloneErrTimeout
)

var cloneKindLabels = map[CloneErrorKind]string{
	CloneErrAuth:         "authentication failed",
	CloneErrRepoNotFound: "repository not found",
	CloneErrNetwork:      "network error",
	CloneErrSSHKey:       "SSH key rejected",
	CloneErrHostKey:      "SSH host key not trusted",
	CloneErrTimeout:      "timed out",
}

func (k CloneErrorKind) String() string {
	if label, ok := cloneKindLabels[k]; ok {
		return label
	}
	return "unknown error"
}

// cloneRules are checked in order against lowercased git output. SSH rules
// come first because their messages also mention permissions.
var cloneRules = []struct {
	kind     CloneErrorKind
	patterns []string
}{
	{CloneErrSSHKey, []string{"permission denied (publickey)", "no such identity", "load key", "identity file"}},
	{CloneErrHostKey, []string{"host key verification failed", "known_hosts"}},
	{CloneErrAuth, []string{"could not read username", "could not read password", "invalid credentials",
		"authentication failed", "401", "403", "logon failed"}},
	{CloneErrRepoNotFound, []string{"repository not found", "does not appear to be a git repository",
		"project not found", "not found"}},
	{CloneErrNetwork, []string{"could not resolve host", "connection refused", "connection timed out",
		"network is unreachable", "no route to host", "name or service not known"}},
}

// CloneError is returned by FetchCustom when git cannot clone a module
// source.
type CloneError struct {
	Kind    CloneErrorKind
	URL     string
	Command string // git command line, for display
	Output  string // trimmed git output
	Hints   []string
}

func (e *CloneError) Error() string {
	return fmt.Sprintf("cloning %s: %s: %s", e.URL, e.Kind, e.summary())
}

// summary is the first meaningful line of git output.
func (e *CloneError) summary() string {
	for _, line := range strings.Split(e.Output, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "Cloning into") {
			return line
		}
	}
	return "git clone failed"
}

// IsCloneError reports whether err wraps a *CloneError and returns it.
func IsCloneError(err error) (*CloneError, bool) {
	var ce *CloneError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

func newCloneError(url, ref, output string, timedOut bool) *CloneError {
	e := &CloneError{
		Kind:    classifyCloneOutput(output),
		URL:     url,
		Command: "git " + strings.Join(cloneArgs(url, ref), " "),
		Output:  strings.TrimSpace(output),
	}
	if timedOut {
		e.Kind = CloneErrTimeout
	}
	e.Hints = cloneHints(e)
	return e
}

func classifyCloneOutput(output string) CloneErrorKind {
	lower := strings.ToLower(output)
	for _, rule := range cloneRules {
		for _, p := range rule.patterns {
			if strings.Contains(lower, p) {
				return rule.kind
			}
		}
	}
	return CloneErrUnknown
}

// cloneArgs returns the git arguments for a shallow clone of url.
func cloneArgs(url, ref string) []string {
	args := []string{"clone", "--depth", "1"}
	if ref != "" {
		args = append(args, "--branch", ref)
	}
	return append(args, url)
}

func cloneHints(e *CloneError) []string {
	var hints []string
	switch e.Kind {
	case CloneErrAuth:
		hints = []string{
			"Authenticate with the git host (for GitHub: `gh auth login`)",
			"Or configure a credential helper: `git config --global credential.helper store`",
		}
	case CloneErrSSHKey:
		hints = []string{
			"Check that your SSH key is loaded: `ssh-add -l`",
			"Check `~/.ssh/config` if you use a Host alias for this account",
		}
	case CloneErrHostKey:
		return []string{"Connect once with `ssh -T git@<host>` and accept the host key"}
	case CloneErrRepoNotFound:
		return []string{
			"Check the module source: owner/repo, owner/repo/path@ref or a full git URL",
			"Private repositories need credentials for this host",
		}
	case CloneErrNetwork:
		return []string{"Check your connection and the host name in the URL"}
	case CloneErrTimeout:
		return []string{fmt.Sprintf("The clone did not finish within %s; retry or install from a local checkout with --custom ./path", cloneTimeout)}
	default:
		return []string{fmt.Sprintf("Run `%s` yourself to see the full error", e.Command)}
	}
	if alt := swapProtocol(e.URL); alt != "" {
		hints = append(hints, "Or try "+alt)
	}
	return hints
}

// swapProtocol turns a GitHub or GitLab HTTPS URL into its SSH form and the
// other way round. Other hosts return "".
func swapProtocol(url string) string {
	for _, host := range []string{"github.com", "gitlab.com"} {
		if path, ok := strings.CutPrefix(url, "https://"+host+"/"); ok {
			if !strings.HasSuffix(path, ".git") {
				path += ".git"
			}
			return "git@" + host + ":" + path
		}
		if path, ok := strings.CutPrefix(url, "git@"+host+":"); ok {
			return "https://" + host + "/" + path
		}
	}
	return ""
}
