// Package fsutil creates result files and directories with an optional
// owner, so results written as root stay readable by the operator.
package fsutil

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Owner is a numeric UID/GID pair.
type Owner struct {
	UID int
	GID int
}

// ParseOwner parses "UID:GID". An empty string yields a nil owner.
func ParseOwner(owner string) (*Owner, error) {
	if owner == "" {
		return nil, nil
	}

	uidStr, gidStr, ok := strings.Cut(owner, ":")
	if !ok || strings.Contains(gidStr, ":") {
		return nil, fmt.Errorf("invalid format %q, expected UID:GID", owner)
	}

	uid, err := strconv.Atoi(uidStr)
	if err != nil {
		return nil, fmt.Errorf("invalid UID %q: %w", uidStr, err)
	}

	gid, err := strconv.Atoi(gidStr)
	if err != nil {
		return nil, fmt.Errorf("invalid GID %q: %w", gidStr, err)
	}

	return &Owner{UID: uid, GID: gid}, nil
}

// String renders the owner in UID:GID form.
func (o *Owner) String() string {
	if o == nil {
		return ""
	}

	return fmt.Sprintf("%d:%d", o.UID, o.GID)
}

// chown is best-effort; a nil owner leaves the path untouched.
func (o *Owner) chown(path string) {
	if o == nil {
		return
	}

	_ = os.Chown(path, o.UID, o.GID)
}

// MkdirAll creates the directory and hands it to owner.
func MkdirAll(path string, perm os.FileMode, owner *Owner) error {
	if err := os.MkdirAll(path, perm); err != nil {
		return err
	}

	owner.chown(path)

	return nil
}

// OpenAppend opens path for appending, creating it if needed, and hands it
// to owner.
func OpenAppend(path string, owner *Owner) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}

	owner.chown(path)

	return f, nil
}
