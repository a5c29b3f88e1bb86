package domain

import (
	"fmt"
	"strings"
	"time"
)

const SessionLifetime = 7 * 24 * time.Hour

type DeviceType string

const (
	DeviceDesktop DeviceType = "desktop"
	DeviceMobile  DeviceType = "mobile"
	DeviceTablet  DeviceType = "tablet"
	DeviceUnknown DeviceType = "unknown"
)

func ParseDeviceType(raw string) (DeviceType, error) {
	switch DeviceType(strings.ToLower(strings.TrimSpace(raw))) {
	case DeviceDesktop:
		return DeviceDesktop, nil
	case DeviceMobile:
		return DeviceMobile, nil
	case DeviceTablet:
		return DeviceTablet, nil
	case DeviceUnknown:
		return DeviceUnknown, nil
	default:
		return "", fmt.Errorf("unknown device type %q", raw)
	}
}

type DeviceInfo struct {
	UserAgentRaw string     `json:"user_agent"`
	SourceIP     string     `json:"ip"`
	DeviceType   DeviceType `json:"device_type"`
	Browser      string     `json:"browser"`
	OS           string     `json:"os"`
}

type Location struct {
	Country  string `json:"country"`
	City     string `json:"city"`
	Timezone string `json:"timezone"`
}

func DefaultLocation() Location {
	return Location{Country: "Unknown", City: "Unknown", Timezone: "UTC"}
}

// Session is embedded in its owning User and never addressed on its own.
type Session struct {
	SessionID    string     `json:"session_id"`
	DeviceInfo   DeviceInfo `json:"device_info"`
	Location     Location   `json:"location"`
	IsActive     bool       `json:"is_active"`
	LastActivity time.Time  `json:"last_activity"`
	CreatedAt    time.Time  `json:"created_at"`
	ExpiresAt    time.Time  `json:"expires_at"`
}

func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// Live reports whether the session counts against the concurrency cap.
func (s Session) Live(now time.Time) bool {
	return s.IsActive && !s.Expired(now)
}

type SessionState string

const (
	SessionStateActive   SessionState = "active"
	SessionStateRevoked  SessionState = "revoked"
	SessionStateExpired  SessionState = "expired"
	SessionStateTimedOut SessionState = "timed_out"
)

// State classifies a session for reporting. A revoked and expired session reports expired.
func (s Session) State(now time.Time, timeout time.Duration) SessionState {
	switch {
	case s.Expired(now):
		return SessionStateExpired
	case !s.IsActive:
		return SessionStateRevoked
	case timeout > 0 && now.Sub(s.LastActivity) > timeout:
		return SessionStateTimedOut
	default:
		return SessionStateActive
	}
}

// SessionList is the per-user session record store. Mutators never flip
// IsActive back to true and never touch SessionID or ExpiresAt.
type SessionList []Session

func (l SessionList) PruneExpired(now time.Time) SessionList {
	out := make(SessionList, 0, len(l))
	for _, s := range l {
		if !s.Expired(now) {
			out = append(out, s)
		}
	}
	return out
}

// RemoveExpired drops expired records and reports how many were removed.
func (l SessionList) RemoveExpired(now time.Time) (SessionList, int) {
	kept := l.PruneExpired(now)
	return kept, len(l) - len(kept)
}

func (l SessionList) ActiveCount(now time.Time) int {
	n := 0
	for _, s := range l {
		if s.Live(now) {
			n++
		}
	}
	return n
}

func (l SessionList) Live(now time.Time) SessionList {
	out := make(SessionList, 0, len(l))
	for _, s := range l {
		if s.Live(now) {
			out = append(out, s)
		}
	}
	return out
}

// LeastRecentlyActive returns the index of the live session with the
// smallest LastActivity, or -1 when none is live.
func (l SessionList) LeastRecentlyActive(now time.Time) int {
	idx := -1
	for i, s := range l {
		if !s.Live(now) {
			continue
		}
		if idx == -1 || s.LastActivity.Before(l[idx].LastActivity) {
			idx = i
		}
	}
	return idx
}

func (l SessionList) FindByID(sessionID string) int {
	for i, s := range l {
		if s.SessionID == sessionID {
			return i
		}
	}
	return -1
}

// FindByDevice returns the index of the live session whose raw user agent and
// source IP both equal the given values, or -1.
func (l SessionList) FindByDevice(userAgent, ip string, now time.Time) int {
	for i, s := range l {
		if s.Live(now) && s.DeviceInfo.UserAgentRaw == userAgent && s.DeviceInfo.SourceIP == ip {
			return i
		}
	}
	return -1
}

// Deactivate marks the session inactive and reports whether it changed.
func (l SessionList) Deactivate(sessionID string) bool {
	i := l.FindByID(sessionID)
	if i < 0 || !l[i].IsActive {
		return false
	}
	l[i].IsActive = false
	return true
}

func (l SessionList) DeactivateAll() int {
	n := 0
	for i := range l {
		if l[i].IsActive {
			l[i].IsActive = false
			n++
		}
	}
	return n
}

func (l SessionList) Touch(sessionID string, now time.Time) bool {
	i := l.FindByID(sessionID)
	if i < 0 {
		return false
	}
	l[i].LastActivity = now
	return true
}

func (l SessionList) Append(s Session) SessionList {
	return append(l, s)
}

func (l SessionList) Clone() SessionList {
	if l == nil {
		return nil
	}
	return append(SessionList(nil), l...)
}
