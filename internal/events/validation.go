package events

import (
	"errors"
	"fmt"

	"github.com/sheetsmith/sheetsmith/internal/model"
)

const (
	maxInstallIDLength = 128
	maxVersionLength   = 32
	maxDomainLength    = 253
)

// ErrInvalidEvent marks a payload the worker must not persist.
var ErrInvalidEvent = errors.New("invalid installation event")

// Validate checks an installation event payload.
func Validate(p Payload) error {
	if p.InstallID == "" {
		return fmt.Errorf("%w: install_id is required", ErrInvalidEvent)
	}
	if len(p.InstallID) > maxInstallIDLength {
		return fmt.Errorf("%w: install_id too long", ErrInvalidEvent)
	}
	if !validEvent(p.Event) {
		return fmt.Errorf("%w: unknown event %q", ErrInvalidEvent, p.Event)
	}
	if len(p.AddonVersion) > maxVersionLength {
		return fmt.Errorf("%w: addon_version too long", ErrInvalidEvent)
	}
	if len(p.Domain) > maxDomainLength {
		return fmt.Errorf("%w: domain too long", ErrInvalidEvent)
	}
	if p.OccurredAt <= 0 {
		return fmt.Errorf("%w: occurred_at must be set", ErrInvalidEvent)
	}
	return nil
}

func validEvent(ev string) bool {
	for _, v := range model.ValidInstallEvents {
		if v == ev {
			return true
		}
	}
	return false
}
