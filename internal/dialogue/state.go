// Package dialogue drives one live call from answer to hangup. Every handler
// maps (stored state, provider event) to a complete channel response; the
// state that must survive between callbacks lives in the session store and
// the durable call record, never in process memory.
package dialogue

import "voicebot/internal/telephony"

type State string

const (
	StateRinging        State = "ringing"
	StateGreeting       State = "greeting"
	StateAwaitingSpeech State = "awaiting_speech"
	StateResponding     State = "responding"
	StateTransferring   State = "transferring"
	StateClosing        State = "closing"
	StateVoicemail      State = "voicemail"
	StateAfterHours     State = "after_hours"
)

// Terminal reports whether the call leaves the engine in this state.
func (s State) Terminal() bool {
	switch s {
	case StateTransferring, StateClosing, StateVoicemail, StateAfterHours:
		return true
	default:
		return false
	}
}

// Outcome is the engine's decision for one event.
type Outcome struct {
	State    State              `json:"state"`
	Response telephony.Response `json:"response"`
	// Turn is the turn index the next speech event will carry.
	Turn int `json:"turn"`
	// Replayed marks a duplicate delivery answered from the stored decision.
	Replayed bool `json:"-"`
}

// Spoken lines.
const (
	lineUnconfigured    = "Sorry, this number is not configured. Goodbye."
	lineLeaveMessage    = "Please leave a message after the beep."
	lineGoodbye         = "Thank you. Goodbye."
	lineRepeat          = "I didn't catch that. Could you please repeat?"
	lineTransfer        = "Let me transfer you now."
	lineNobodyAvailable = "Sorry, nobody is available right now. Please try again later."
	lineNoTransfer      = "Sorry, no one is available. Please try again later."
	lineClosing         = "Thank you for calling. Have a great day!"
	lineTechnical       = "We're experiencing technical difficulties. Please try again later."
	lineBusinessError   = "Sorry, there was an error. Goodbye."

	transcriptTransfer = "Transferring to human."
)
