package core

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyCloneOutput(t *testing.T) {
	tests := []struct {
		output string
		want   CloneErrorKind
	}{
		{"git@github.com: Permission denied (publickey).", CloneErrSSHKey},
		{"Host key verification failed.", CloneErrHostKey},
		{"fatal: could not read Username for 'https://github.com': terminal prompts disabled", CloneErrAuth},
		{"remote: HTTP Basic: Access denied\nfatal: Authentication failed for 'https://gitlab.com/a/b.git/'", CloneErrAuth},
		{"ERROR: Repository not found.", CloneErrRepoNotFound},
		{"fatal: 'x' does not appear to be a git repository", CloneErrRepoNotFound},
		{"ssh: Could not resolve hostname github.com: nodename nor servname provided", CloneErrNetwork},
		{"fatal: unable to access: Could not resolve host: github.com", CloneErrNetwork},
		{"fatal: Remote branch v9 not in upstream origin", CloneErrUnknown},
		{"", CloneErrUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, classifyCloneOutput(tt.output), tt.output)
		})
	}
}

func TestNewCloneError(t *testing.T) {
	e := newCloneError("https://github.com/acme/fin.git", "v1.2",
		"Cloning into '/tmp/x'...\nremote: Repository not found.\nfatal: repository 'https://github.com/acme/fin.git/' not found\n", false)

	assert.Equal(t, CloneErrRepoNotFound, e.Kind)
	assert.Equal(t, "git clone --depth 1 --branch v1.2 https://github.com/acme/fin.git", e.Command)
	assert.Equal(t, "cloning https://github.com/acme/fin.git: repository not found: remote: Repository not found.", e.Error())
	assert.NotEmpty(t, e.Hints)
}

func TestNewCloneError_Timeout(t *testing.T) {
	e := newCloneError("https://example.com/fin.git", "", "Cloning into '/tmp/x'...", true)
	assert.Equal(t, CloneErrTimeout, e.Kind)
	assert.Equal(t, "git clone failed", e.summary())
	require.Len(t, e.Hints, 1)
	assert.Contains(t, e.Hints[0], "--custom ./path")
}

func TestCloneHints_SuggestOtherProtocol(t *testing.T) {
	auth := newCloneError("https://github.com/acme/fin", "", "fatal: Authentication failed", false)
	assert.Contains(t, auth.Hints, "Or try git@github.com:acme/fin.git")

	key := newCloneError("git@gitlab.com:acme/fin.git", "", "Permission denied (publickey)", false)
	assert.Contains(t, key.Hints, "Or try https://gitlab.com/acme/fin.git")

	other := newCloneError("https://git.example.com/fin.git", "", "weird failure", false)
	assert.Equal(t, []string{"Run `git clone --depth 1 https://git.example.com/fin.git` yourself to see the full error"}, other.Hints)
}

func TestSwapProtocol(t *testing.T) {
	assert.Equal(t, "git@github.com:a/b.git", swapProtocol("https://github.com/a/b"))
	assert.Equal(t, "git@gitlab.com:a/b.git", swapProtocol("https://gitlab.com/a/b.git"))
	assert.Equal(t, "https://github.com/a/b.git", swapProtocol("git@github.com:a/b.git"))
	assert.Empty(t, swapProtocol("https://bitbucket.org/a/b"))
}

func TestIsCloneError(t *testing.T) {
	ce := newCloneError("https://github.com/a/b", "", "Repository not found", false)
	wrapped := fmt.Errorf("fetching fin: %w", ce)

	got, ok := IsCloneError(wrapped)
	require.True(t, ok)
	assert.Same(t, ce, got)

	_, ok = IsCloneError(fmt.Errorf("plain"))
	assert.False(t, ok)
}
