package ipc

import (
	"errors"
	"fmt"
)

var (
	// ErrCertificateInstall wraps every failure of the install_ca command.
	ErrCertificateInstall = errors.New("installing root certificate")

	// ErrChannelClosed is returned by Listen on a channel that was already closed.
	ErrChannelClosed = errors.New("push channel is closed")
)

// CommandError is returned when the backend answers a command with a non-2xx status.
type CommandError struct {
	Command string // Command name, e.g. start_proxy
	Status  int    // HTTP status of the answer
	Message string // Error message reported by the backend
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s : %s", e.Command, e.Message)
}
