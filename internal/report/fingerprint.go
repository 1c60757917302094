package report

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Reporter fingerprints are salted one-way hashes of a reporter identifier
// (an IP, an account id). The salt is a pure function of the UTC calendar
// day, with nothing secret stored or rotated, so fingerprints from
// different days cannot be linked to each other or back to the reporter.

const saltPrefix = "daily-salt-"

func sha256hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// DailySalt derives the fingerprint salt for the UTC day containing t.
func DailySalt(t time.Time) string {
	return sha256hex(saltPrefix + t.UTC().Format("2006-01-02"))
}

// Fingerprint hashes a reporter identifier with the salt for t's UTC day.
func Fingerprint(identifier string, t time.Time) string {
	return sha256hex(identifier + ":" + DailySalt(t))
}

// DedupFingerprints returns the fingerprints to match against for the
// sliding 24h dedup window: today's and yesterday's. Checking both keeps
// the window intact across the UTC-midnight salt rotation (a reporter
// submitting at 23:59 and again at 00:01 still matches) while fingerprints
// stay unlinkable beyond 48 hours.
func DedupFingerprints(identifier string, now time.Time) []string {
	return []string{
		Fingerprint(identifier, now),
		Fingerprint(identifier, now.Add(-24*time.Hour)),
	}
}
