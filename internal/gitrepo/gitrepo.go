// Package gitrepo manages the per-run repository clone: clone, branch,
// commit, push, and cleanup, all through the git CLI.
package gitrepo

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/google/uuid"

	"github.com/tobyh/sonarfix/internal/config"
	"github.com/tobyh/sonarfix/internal/retry"
)

// Manager owns one repository clone for the lifetime of a run.
type Manager struct {
	cfg      config.GitConfig
	tempDir  string
	policy   retry.Policy
	repoPath string
}

// NewManager creates a manager; nothing touches disk until Clone.
func NewManager(cfg config.GitConfig, tempDir string, policy retry.Policy) (*Manager, error) {
	if cfg.RepoURL == "" {
		return nil, fmt.Errorf("git repository URL is required")
	}
	if _, err := exec.LookPath("git"); err != nil {
		return nil, fmt.Errorf("git not found in PATH: %w", err)
	}
	return &Manager{cfg: cfg, tempDir: tempDir, policy: policy}, nil
}

// RepoPath returns the clone location, empty before Clone.
func (m *Manager) RepoPath() string {
	return m.repoPath
}

// git runs a git command inside the clone.
func (m *Manager) git(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", m.repoPath}, args...)...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return strings.TrimSpace(string(out)), fmt.Errorf("git %s: %s: %w",
			strings.Join(args, " "), strings.TrimSpace(string(out)), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Clone clones the configured repository into a unique directory under
// the temp root and sets the committer identity. Credentials, when
// configured, are injected into the clone URL.
func (m *Manager) Clone(ctx context.Context) (string, error) {
	if err := os.MkdirAll(m.tempDir, 0o755); err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	m.repoPath = fmt.Sprintf("%s/run-%s", m.tempDir, uuid.NewString())

	cloneURL := m.cfg.RepoURL
	if m.cfg.Username != "" && m.cfg.Password != "" {
		if proto, rest, ok := strings.Cut(m.cfg.RepoURL, "://"); ok {
			cloneURL = fmt.Sprintf("%s://%s:%s@%s", proto, m.cfg.Username, m.cfg.Password, rest)
		}
	}

	slog.Info("cloning repository", "path", m.repoPath)
	cmd := exec.CommandContext(ctx, "git", "clone", cloneURL, m.repoPath)
	if out, err := cmd.CombinedOutput(); err != nil {
		m.Cleanup()
		return "", fmt.Errorf("git clone: %s: %w", sanitize(string(out), m.cfg.Password), err)
	}

	if _, err := m.git(ctx, "config", "user.email", m.cfg.Email); err != nil {
		return "", err
	}
	if _, err := m.git(ctx, "config", "user.name", m.cfg.Name); err != nil {
		return "", err
	}

	return m.repoPath, nil
}

// CreateBranch checks out the master branch and creates branchName from it.
func (m *Manager) CreateBranch(ctx context.Context, branchName string) error {
	if m.repoPath == "" {
		return fmt.Errorf("repository not cloned yet")
	}
	if _, err := m.git(ctx, "checkout", m.cfg.MasterBranch); err != nil {
		return fmt.Errorf("checkout %s: %w", m.cfg.MasterBranch, err)
	}
	if _, err := m.git(ctx, "checkout", "-b", branchName); err != nil {
		return fmt.Errorf("create branch %s: %w", branchName, err)
	}
	slog.Info("created branch", "branch", branchName)
	return nil
}

// Commit stages filePath and commits it with message.
func (m *Manager) Commit(ctx context.Context, filePath, message string) error {
	if m.repoPath == "" {
		return fmt.Errorf("repository not cloned yet")
	}
	if _, err := m.git(ctx, "add", filePath); err != nil {
		return err
	}
	if _, err := m.git(ctx, "commit", "-m", message); err != nil {
		return err
	}
	slog.Info("committed change", "file", filePath)
	return nil
}

// Push pushes branchName to origin, retried under the manager's policy.
func (m *Manager) Push(ctx context.Context, branchName string) error {
	if m.repoPath == "" {
		return fmt.Errorf("repository not cloned yet")
	}
	return retry.Do(ctx, m.policy, "git push", func(ctx context.Context) error {
		_, err := m.git(ctx, "push", "--set-upstream", "origin", branchName)
		return err
	})
}

// Cleanup removes the clone. Best effort: errors are logged, not returned.
func (m *Manager) Cleanup() {
	if m.repoPath == "" {
		return
	}
	slog.Info("cleaning up repository clone", "path", m.repoPath)
	if err := os.RemoveAll(m.repoPath); err != nil {
		slog.Warn("could not remove clone", "path", m.repoPath, "error", err)
	}
}

// sanitize strips the configured password from git output before it can
// reach logs or error chains.
func sanitize(out, password string) string {
	out = strings.TrimSpace(out)
	if password != "" {
		out = strings.ReplaceAll(out, password, "***")
	}
	return out
}
