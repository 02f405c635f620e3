package telephony

import "net/url"

// Verb is one primitive voice instruction.
type Verb string

const (
	VerbSay      Verb = "say"
	VerbGather   Verb = "gather"
	VerbRecord   Verb = "record"
	VerbDial     Verb = "dial"
	VerbRedirect Verb = "redirect"
	VerbPause    Verb = "pause"
	VerbHangup   Verb = "hangup"
)

// Instruction is a single provider-neutral channel command. Only the fields
// relevant to Verb are set.
type Instruction struct {
	Verb     Verb   `json:"verb"`
	Text     string `json:"text,omitempty"`
	Voice    string `json:"voice,omitempty"`
	Language string `json:"language,omitempty"`

	// gather / record
	Action              string `json:"action,omitempty"`
	Timeout             int    `json:"timeout,omitempty"`
	SpeechTimeout       int    `json:"speech_timeout,omitempty"`
	ActionOnEmptyResult bool   `json:"action_on_empty_result,omitempty"`
	MaxLength           int    `json:"max_length,omitempty"`
	PlayBeep            bool   `json:"play_beep,omitempty"`

	// gather prompt, spoken while listening
	Prompt []Instruction `json:"prompt,omitempty"`

	Number string `json:"number,omitempty"`
	URL    string `json:"url,omitempty"`
	Length int    `json:"length,omitempty"`
}

// Response is a complete, self-contained channel response: the provider
// executes the instructions in order against the live call.
type Response struct {
	Instructions []Instruction `json:"instructions"`
}

// First returns the first instruction with the given verb.
func (r Response) First(v Verb) (Instruction, bool) {
	for _, in := range r.Instructions {
		if in.Verb == v {
			return in, true
		}
	}
	return Instruction{}, false
}

// Spoken returns every text the caller will hear, gather prompts included.
func (r Response) Spoken() []string {
	var out []string
	for _, in := range r.Instructions {
		switch in.Verb {
		case VerbSay:
			out = append(out, in.Text)
		case VerbGather:
			for _, p := range in.Prompt {
				out = append(out, p.Text)
			}
		}
	}
	return out
}

// Voice carries the TTS voice and language applied to every spoken line.
type Voice struct {
	Name     string
	Language string
}

// DefaultVoice is used when no voice is configured.
var DefaultVoice = Voice{Name: "Polly.Amy", Language: "en-GB"}

func (v Voice) orDefault() Voice {
	if v.Name == "" {
		v.Name = DefaultVoice.Name
	}
	if v.Language == "" {
		v.Language = DefaultVoice.Language
	}
	return v
}

// GatherOptions bounds a speech-capture window.
type GatherOptions struct {
	Action        string
	Timeout       int
	SpeechTimeout int
	// ActionOnEmpty posts to Action even when nothing was heard.
	ActionOnEmpty bool
}

// Call and onboarding capture windows.
var (
	CallGather       = GatherOptions{Timeout: 5, SpeechTimeout: 3}
	OnboardingGather = GatherOptions{Timeout: 8, SpeechTimeout: 5}
)

const (
	DialTimeoutSeconds  = 30
	VoicemailMaxSeconds = 120
)

// Script builds a Response in the order instructions are added.
type Script struct {
	voice Voice
	resp  Response
}

func NewScript(v Voice) *Script {
	return &Script{voice: v.orDefault()}
}

func (s *Script) say(text string) Instruction {
	return Instruction{Verb: VerbSay, Text: text, Voice: s.voice.Name, Language: s.voice.Language}
}

func (s *Script) Say(text string) *Script {
	s.resp.Instructions = append(s.resp.Instructions, s.say(text))
	return s
}

// Gather speaks prompt while listening for speech.
func (s *Script) Gather(opts GatherOptions, prompt string) *Script {
	in := Instruction{
		Verb:                VerbGather,
		Language:            s.voice.Language,
		Action:              opts.Action,
		Timeout:             opts.Timeout,
		SpeechTimeout:       opts.SpeechTimeout,
		ActionOnEmptyResult: opts.ActionOnEmpty,
	}
	if prompt != "" {
		in.Prompt = []Instruction{s.say(prompt)}
	}
	s.resp.Instructions = append(s.resp.Instructions, in)
	return s
}

func (s *Script) Record(maxLength int, action string) *Script {
	s.resp.Instructions = append(s.resp.Instructions, Instruction{
		Verb: VerbRecord, MaxLength: maxLength, Action: action, PlayBeep: true,
	})
	return s
}

func (s *Script) Dial(number string, timeout int) *Script {
	s.resp.Instructions = append(s.resp.Instructions, Instruction{Verb: VerbDial, Number: number, Timeout: timeout})
	return s
}

func (s *Script) Redirect(url string) *Script {
	s.resp.Instructions = append(s.resp.Instructions, Instruction{Verb: VerbRedirect, URL: url})
	return s
}

func (s *Script) Pause(seconds int) *Script {
	s.resp.Instructions = append(s.resp.Instructions, Instruction{Verb: VerbPause, Length: seconds})
	return s
}

func (s *Script) Hangup() *Script {
	s.resp.Instructions = append(s.resp.Instructions, Instruction{Verb: VerbHangup})
	return s
}

func (s *Script) Response() Response {
	return s.resp
}

// Path builds a relative webhook URL; the provider resolves it against the
// URL of the request that produced the response.
func Path(path string, kv ...string) string {
	if len(kv) < 2 {
		return path
	}
	q := url.Values{}
	for i := 0; i+1 < len(kv); i += 2 {
		q.Set(kv[i], kv[i+1])
	}
	return path + "?" + q.Encode()
}
