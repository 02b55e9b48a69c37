// Package gitprep prepares a local working copy for an agent run:
// clone if absent, check out the requested branch, pull. Preparation is
// best-effort: a failure degrades the run (the agent is told to prepare
// the repo itself) rather than failing the session.
package gitprep

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/TRob9/claude-github-buddy/internal/common/config"
	"github.com/TRob9/claude-github-buddy/internal/common/logger"
)

// Result reports what preparation managed to do. Prepared false means
// the caller should warn the agent to self-prepare, never abort.
type Result struct {
	Path       string
	Prepared   bool
	Cloned     bool
	CheckedOut bool
	Pulled     bool
	Error      string
}

// Preparator builds working copies under a fixed root directory.
type Preparator struct {
	root          string
	defaultBranch string
	remoteBase    string
	logger        *logger.Logger
}

// New creates a preparator from git configuration. A leading ~ in the
// workspace root is expanded against the current user's home.
func New(cfg config.GitConfig, log *logger.Logger) *Preparator {
	root := cfg.WorkspaceRoot
	if strings.HasPrefix(root, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			root = filepath.Join(home, strings.TrimPrefix(root, "~"))
		}
	}
	return &Preparator{
		root:          root,
		defaultBranch: cfg.DefaultBranch,
		remoteBase:    cfg.RemoteBase,
		logger:        log.WithFields(zap.String("component", "gitprep")),
	}
}

// Prepare ensures a working copy of repo exists with branch checked out
// and up to date. Errors are captured in the result, not returned.
func (p *Preparator) Prepare(ctx context.Context, repo, branch string) Result {
	if branch == "" {
		branch = p.defaultBranch
	}
	res := Result{Path: p.workspacePath(repo)}

	log := p.logger.WithFields(
		zap.String("repo", repo),
		zap.String("branch", branch),
		zap.String("path", res.Path))

	if err := os.MkdirAll(filepath.Dir(res.Path), 0o755); err != nil {
		res.Error = fmt.Sprintf("create workspace root: %v", err)
		log.Warn("preparation failed", zap.String("error", res.Error))
		return res
	}

	if _, err := os.Stat(filepath.Join(res.Path, ".git")); err != nil {
		out, err := p.git(ctx, "", "clone", p.cloneURL(repo), res.Path)
		if err != nil {
			res.Error = fmt.Sprintf("clone: %v: %s", err, out)
			log.Warn("preparation failed", zap.String("error", res.Error))
			return res
		}
		res.Cloned = true
	}

	if out, err := p.git(ctx, res.Path, "checkout", branch); err != nil {
		res.Error = fmt.Sprintf("checkout %s: %v: %s", branch, err, out)
		log.Warn("preparation failed", zap.String("error", res.Error))
		return res
	}
	res.CheckedOut = true

	if out, err := p.git(ctx, res.Path, "pull", "--ff-only"); err != nil {
		// A stale working copy is still usable; report but continue.
		res.Error = fmt.Sprintf("pull: %v: %s", err, out)
		log.Warn("pull failed, continuing with local copy", zap.String("error", res.Error))
	} else {
		res.Pulled = true
	}

	res.Prepared = true
	log.Info("workspace prepared",
		zap.Bool("cloned", res.Cloned),
		zap.Bool("pulled", res.Pulled))
	return res
}

// workspacePath maps a repo identifier to a directory, flattening path
// separators so "owner/name" stays inside the root.
func (p *Preparator) workspacePath(repo string) string {
	safe := strings.NewReplacer("/", "__", ":", "_", "..", "_").Replace(repo)
	return filepath.Join(p.root, safe)
}

// cloneURL resolves a bare "owner/name" identifier against the
// configured remote base; full URLs pass through untouched.
func (p *Preparator) cloneURL(repo string) string {
	if strings.Contains(repo, "://") || strings.HasPrefix(repo, "git@") || filepath.IsAbs(repo) {
		return repo
	}
	if p.remoteBase != "" {
		return p.remoteBase + repo
	}
	return "https://github.com/" + repo + ".git"
}

func (p *Preparator) git(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	out, err := cmd.CombinedOutput()
	return strings.TrimSpace(string(out)), err
}
