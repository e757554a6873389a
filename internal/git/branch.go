// Package git reads repository state needed by workflow commands.
package git

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-git/go-git/v5"
)

var (
	ErrDetachedHead = errors.New("HEAD is not on a branch")
	ErrNoTicketKey  = errors.New("no ticket key in branch name")

	ticketKeyPattern = regexp.MustCompile(`(?i)([a-z][a-z0-9]+-[0-9]+)`)
)

// CurrentBranch returns the short name of the branch checked out in the
// repository containing dir.
func CurrentBranch(dir string) (string, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return "", fmt.Errorf("failed to open repository: %w", err)
	}

	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	if !head.Name().IsBranch() {
		return "", ErrDetachedHead
	}
	return head.Name().Short(), nil
}

// TicketFromBranch extracts the first ticket key, e.g. "feature/proj-123-fix"
// yields "PROJ-123".
func TicketFromBranch(branch string) (string, error) {
	m := ticketKeyPattern.FindStringSubmatch(branch)
	if m == nil {
		return "", fmt.Errorf("%w: %q", ErrNoTicketKey, branch)
	}
	return strings.ToUpper(m[1]), nil
}

// TicketFromRepo combines CurrentBranch and TicketFromBranch.
func TicketFromRepo(dir string) (string, error) {
	branch, err := CurrentBranch(dir)
	if err != nil {
		return "", err
	}
	return TicketFromBranch(branch)
}
