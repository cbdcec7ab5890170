// Copyright 2025-2026 Hookscope Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// included in the LICENSE file of this repository.

package hook

import "errors"

var (
	// ErrAlreadyInstalled is returned by Install when the calling
	// thread already has an active installation and the registry uses
	// the Reject nesting policy. Registry state is unchanged.
	ErrAlreadyInstalled = errors.New("hook already installed on this thread")

	// ErrMismatchedHandle is returned by Uninstall when the handle does
	// not identify the thread's most recent active installation: a
	// stale handle, a handle from another thread, or a double
	// uninstall. Registry state is unchanged.
	ErrMismatchedHandle = errors.New("handle does not match current installation")
)
