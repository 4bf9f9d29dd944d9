// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

// Error kinds reported per recipient or per run.
const (
	KindRender         = "RENDER_ERROR"
	KindInvalidAddress = "INVALID_ADDRESS"
	KindTransient      = "TRANSIENT_SEND_ERROR"
	KindPermanent      = "PERMANENT_SEND_ERROR"
	KindFatal          = "FATAL_ERROR"
)

// ErrCampaignNotFound is returned when a campaign has no send records.
type ErrCampaignNotFound struct {
	CampaignID string
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign %q not found", e.CampaignID)
}

// NewCampaignNotFound builds an ErrCampaignNotFound.
func NewCampaignNotFound(id string) error {
	return &ErrCampaignNotFound{CampaignID: id}
}

// RenderError names the first placeholder a template could not resolve.
type RenderError struct {
	Token string
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("unresolved placeholder {%s}", e.Token)
}

// InvalidAddressError is returned for recipients whose address is not a plausible email.
type InvalidAddressError struct {
	Address string
}

func (e *InvalidAddressError) Error() string {
	if e.Address == "" {
		return "recipient address is empty"
	}
	return fmt.Sprintf("invalid recipient address %q", e.Address)
}

// SendError is a transport failure classified as transient or permanent.
type SendError struct {
	Kind string
	Err  error
}

func (e *SendError) Error() string {
	if e.Kind == KindPermanent {
		return "permanent send failure: " + e.Err.Error()
	}
	return "transient send failure: " + e.Err.Error()
}

func (e *SendError) Unwrap() error { return e.Err }

// Transient marks err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &SendError{Kind: KindTransient, Err: err}
}

// Permanent marks err as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &SendError{Kind: KindPermanent, Err: err}
}

// FatalError aborts a whole run.
type FatalError struct {
	Op  string
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal: %s: %v", e.Op, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// NewFatal wraps err as a FatalError for the given operation.
func NewFatal(op string, err error) error {
	return &FatalError{Op: op, Err: err}
}

// IsFatal reports whether err aborts the run.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// KindOf classifies err. Transport errors that were never classified
// count as transient so they get the bounded retry.
func KindOf(err error) string {
	var (
		re *RenderError
		ae *InvalidAddressError
		se *SendError
		fe *FatalError
	)
	switch {
	case errors.As(err, &fe):
		return KindFatal
	case errors.As(err, &re):
		return KindRender
	case errors.As(err, &ae):
		return KindInvalidAddress
	case errors.As(err, &se):
		return se.Kind
	default:
		return KindTransient
	}
}
