// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package bus

import "fmt"

// HandlerError reports a worker handler that returned an error or panicked.
// It is only ever logged; senders never see it.
type HandlerError struct {
	Receiver string
	Err      error
	Panic    any
}

func (e *HandlerError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("handler %s panicked: %v", e.Receiver, e.Panic)
	}
	return fmt.Sprintf("handler %s failed: %v", e.Receiver, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

// UnroutableError reports an envelope addressed to an unregistered identity.
type UnroutableError struct {
	Receiver string
}

func (e *UnroutableError) Error() string {
	return fmt.Sprintf("receiver %q not registered", e.Receiver)
}
