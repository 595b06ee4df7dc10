package agent

import (
	"context"
	"os"
	"path/filepath"
)

// RepoScopeChecker treats a scope as a repository path on local disk.
type RepoScopeChecker struct {
	// RequireGit additionally requires a .git entry in the directory.
	RequireGit bool
}

// IsScopeAccessible implements ScopeChecker.
func (c RepoScopeChecker) IsScopeAccessible(_ context.Context, scope string) bool {
	info, err := os.Stat(scope)
	if err != nil || !info.IsDir() {
		return false
	}
	if !c.RequireGit {
		return true
	}
	_, err = os.Stat(filepath.Join(scope, ".git"))
	return err == nil
}

var _ ScopeChecker = RepoScopeChecker{}
