// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package indexing

import "github.com/pkg/errors"

var (
	// ErrUnimplemented is wrapped by the errors returned for operations (or configurations of operations) with no
	// indexing rule. Test for it with errors.Is.
	ErrUnimplemented = errors.New("unimplemented")

	// ErrInvalidArgument is wrapped by the errors returned for inconsistent requests: out of range output or input
	// ids, maps whose arity doesn't match their domain, shapes that don't match the operation attributes.
	ErrInvalidArgument = errors.New("invalid argument")
)

func unimplementedf(format string, args ...any) error {
	return errors.Wrapf(ErrUnimplemented, format, args...)
}

func invalidArgumentf(format string, args ...any) error {
	return errors.Wrapf(ErrInvalidArgument, format, args...)
}
