package model

import (
	"strings"
	"time"

	"sri-invoice-subscription/internal/domain"
)

// MaxDevices bounds the fingerprints remembered per account.
const MaxDevices = 3

// Device is an opaque client fingerprint. It approximates seat-limiting; it is
// not an authorization boundary on its own.
type Device struct {
	Fingerprint string    `json:"fingerprint"`
	FirstSeen   time.Time `json:"firstSeen"`
	LastSeen    time.Time `json:"lastSeen"`
}

// RegisterDevice records fp. A known fingerprint is refreshed; a new one is
// refused with domain.ErrDeviceLimitReached once MaxDevices are stored.
// An empty fingerprint is ignored.
func (u *User) RegisterDevice(fp string, now time.Time) error {
	fp = strings.TrimSpace(fp)
	if fp == "" {
		return nil
	}
	for i := range u.Devices {
		if u.Devices[i].Fingerprint == fp {
			u.Devices[i].LastSeen = now
			return nil
		}
	}
	if len(u.Devices) >= MaxDevices {
		return domain.ErrDeviceLimitReached
	}
	u.Devices = append(u.Devices, Device{Fingerprint: fp, FirstSeen: now, LastSeen: now})
	return nil
}
