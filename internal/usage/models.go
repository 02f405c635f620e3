package usage

import (
	"fmt"
	"math"
)

// Thresholds are the one-time monthly alert levels, in percent of the limit.
var Thresholds = []int{80, 90, 100}

// OverageRate is quoted in the 100% alert.
const OverageRate = "£0.08/min"

// Record is one business's minutes for one calendar month.
type Record struct {
	BusinessID   string  `json:"business_id"`
	Month        string  `json:"month"`
	MinutesUsed  float64 `json:"minutes_used"`
	MinutesLimit int     `json:"minutes_limit"`
	Alert80Sent  bool    `json:"alert_80_sent"`
	Alert90Sent  bool    `json:"alert_90_sent"`
	Alert100Sent bool    `json:"alert_100_sent"`
}

// Percent of the monthly limit used. A zero limit reads as 0.
func (r Record) Percent() float64 {
	if r.MinutesLimit <= 0 {
		return 0
	}
	return r.MinutesUsed / float64(r.MinutesLimit) * 100
}

// AlertSent reports the stored flag for a threshold.
func (r Record) AlertSent(threshold int) bool {
	switch threshold {
	case 80:
		return r.Alert80Sent
	case 90:
		return r.Alert90Sent
	case 100:
		return r.Alert100Sent
	default:
		return false
	}
}

// RoundMinutes converts a call duration to billable minutes, rounded to two
// decimals: 125s is 2.08.
func RoundMinutes(seconds int) float64 {
	if seconds <= 0 {
		return 0
	}
	return math.Round(float64(seconds)/60*100) / 100
}

// RoundTotal rounds an accumulated minute total to two decimals.
func RoundTotal(minutes float64) float64 {
	return math.Round(minutes*100) / 100
}

// Reached returns the thresholds at or below the current percentage.
func Reached(r Record) []int {
	pct := r.Percent()
	var out []int
	for _, t := range Thresholds {
		if pct >= float64(t) {
			out = append(out, t)
		}
	}
	return out
}

// AlertText is the SMS sent to the business owner for a crossed threshold.
func AlertText(businessName string, threshold int) string {
	msg := fmt.Sprintf("VoiceBot Alert: You've used %d%% of your monthly minutes for %s.", threshold, businessName)
	if threshold >= 100 {
		msg += " Additional minutes will be charged at " + OverageRate + "."
	}
	return msg
}

func alertColumn(threshold int) (string, bool) {
	switch threshold {
	case 80:
		return "alert_80_sent", true
	case 90:
		return "alert_90_sent", true
	case 100:
		return "alert_100_sent", true
	default:
		return "", false
	}
}
