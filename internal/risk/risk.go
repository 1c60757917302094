// Package risk computes the 0-100 risk score for a reported address.
//
// The score is a pure function of the address's aggregate signals: total
// report count, 7-day report velocity, cumulative reported losses, recency
// of the last report, and external threat-intelligence matches. It keeps no
// state of its own, so ingestion and the threat-intel sync engine can both
// re-invoke it wholesale without coordination.
package risk

import "time"

// Score bands, used to present a coarse threat level alongside the number.
type Level string

const (
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

// Scoring weights. Base saturates at 4 reports; a confirmed sanctions
// listing outweighs any number of tentative intel matches.
const (
	perReportPoints    = 15
	baseCap            = 60
	frequencyBonus     = 20
	frequencyThreshold = 3
	amountBonusHigh    = 20
	amountBonusMid     = 10
	amountHighUSD      = 100_000
	amountMidUSD       = 10_000
	recencyBonus       = 10
	recencyWindow      = 24 * time.Hour
	sanctionBonus      = 40
	perIntelPoints     = 10
	intelCap           = 25
	maxScore           = 100
)

// Inputs carries the aggregate signals the scorer evaluates.
type Inputs struct {
	ReportCount          int
	RecentReportCount7d  int
	TotalLostUSD         float64
	LastReportedAt       *time.Time
	ThreatIntelCount     int
	HasConfirmedSanction bool
}

// Score returns the risk score for the given signals, always in [0,100].
// An address with no reports and no threat intel scores 0.
func Score(in Inputs) int {
	return ScoreAt(in, time.Now())
}

// ScoreAt is Score with an explicit evaluation time for the recency check.
func ScoreAt(in Inputs, now time.Time) int {
	base := in.ReportCount * perReportPoints
	if base > baseCap {
		base = baseCap
	}

	frequency := 0
	if in.RecentReportCount7d >= frequencyThreshold {
		frequency = frequencyBonus
	}

	// Strict > at both tiers: exactly 10k or 100k earns the lower bonus.
	amount := 0
	switch {
	case in.TotalLostUSD > amountHighUSD:
		amount = amountBonusHigh
	case in.TotalLostUSD > amountMidUSD:
		amount = amountBonusMid
	}

	recency := 0
	if in.LastReportedAt != nil && now.Sub(*in.LastReportedAt) <= recencyWindow {
		recency = recencyBonus
	}

	external := 0
	if in.HasConfirmedSanction {
		external = sanctionBonus
	} else if in.ThreatIntelCount > 0 {
		external = in.ThreatIntelCount * perIntelPoints
		if external > intelCap {
			external = intelCap
		}
	}

	total := base + frequency + amount + recency + external
	if total > maxScore {
		total = maxScore
	}
	return total
}

// LevelFor maps a numeric score to its display band.
func LevelFor(score int) Level {
	switch {
	case score <= 25:
		return LevelLow
	case score <= 50:
		return LevelMedium
	case score <= 75:
		return LevelHigh
	default:
		return LevelCritical
	}
}
