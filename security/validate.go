// Package security gates a CreateJob request against a small set of sanity and policy
// checks before it ever reaches the planner: empty inputs, path traversal, and an
// optional denylist of destination extensions / maximum source size.
package security

import (
	"path/filepath"
	"strings"

	"github.com/copyd/copyd/common"
	"github.com/pkg/errors"
)

// Policy bounds what a CreateJob request is allowed to do. A zero-value Policy accepts
// anything that passes the structural checks (non-empty paths, no traversal).
type Policy struct {
	DeniedExtensions []string // e.g. ".exe", compared case-insensitively against the destination basename
	MaxSourceBytes   int64    // 0 means unlimited
}

// ValidationError carries the classification callers need to map onto common.ErrorKind.
type ValidationError struct {
	Kind common.ErrorKind
	msg  string
}

func (e *ValidationError) Error() string { return e.msg }

func invalid(msg string) error {
	return &ValidationError{Kind: common.EErrorKind.Invalid(), msg: msg}
}

// Validate checks structural and policy constraints on a requested copy. It does not
// touch the filesystem beyond what's needed to reject obviously bad input early;
// existence and permission checks belong to the planner and copy engine.
func Validate(sources []string, destination string, policy Policy) error {
	if len(sources) == 0 {
		return invalid("at least one source path is required")
	}
	if destination == "" {
		return invalid("destination path is required")
	}
	if !filepath.IsAbs(destination) {
		return invalid("destination must be an absolute path")
	}
	for _, src := range sources {
		if src == "" {
			return invalid("source path must not be empty")
		}
		if !filepath.IsAbs(src) {
			return invalid("source must be an absolute path: " + src)
		}
		if containsTraversal(src) {
			return invalid("source path contains traversal segments: " + src)
		}
		if filepath.Clean(src) == filepath.Clean(destination) {
			return invalid("source and destination must differ: " + src)
		}
	}
	if containsTraversal(destination) {
		return invalid("destination path contains traversal segments: " + destination)
	}
	if len(policy.DeniedExtensions) > 0 {
		ext := strings.ToLower(filepath.Ext(destination))
		for _, denied := range policy.DeniedExtensions {
			if strings.ToLower(denied) == ext {
				return invalid("destination extension is denied by policy: " + ext)
			}
		}
	}
	return nil
}

// CheckSourceSize enforces MaxSourceBytes against an already-stat'd size; split out from
// Validate because the planner is what knows individual file sizes, not the dispatcher.
func CheckSourceSize(size int64, policy Policy) error {
	if policy.MaxSourceBytes > 0 && size > policy.MaxSourceBytes {
		return errors.Errorf("source size %d exceeds policy maximum %d", size, policy.MaxSourceBytes)
	}
	return nil
}

func containsTraversal(p string) bool {
	for _, part := range strings.Split(p, string(filepath.Separator)) {
		if part == ".." {
			return true
		}
	}
	return false
}
