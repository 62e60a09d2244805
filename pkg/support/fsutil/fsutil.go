// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package fsutil reads the input files of the command line tools.
package fsutil

import (
	"io"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Stdin is the path that ReadInput reads from the standard input.
const Stdin = "-"

// ExpandHome replaces a leading "~" or "~user" in path by the home directory of the user.
// Other paths are returned unchanged.
func ExpandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	userName, rest, _ := strings.Cut(path[1:], "/")
	var usr *user.User
	var err error
	if userName == "" {
		usr, err = user.Current()
	} else {
		usr, err = user.Lookup(userName)
	}
	if err != nil {
		return "", errors.Wrapf(err, "failed to find the home directory in path %q", path)
	}
	return filepath.Join(usr.HomeDir, rest), nil
}

// ReadInput returns the contents of the file at path (after ExpandHome), or of stdin if path is Stdin.
func ReadInput(path string, stdin io.Reader) ([]byte, error) {
	if path == Stdin {
		contents, err := io.ReadAll(stdin)
		return contents, errors.Wrap(err, "failed to read stdin")
	}
	expanded, err := ExpandHome(path)
	if err != nil {
		return nil, err
	}
	contents, err := os.ReadFile(expanded)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %q", expanded)
	}
	return contents, nil
}
