package telephony

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
)

// TwiML rendering is hand-built on encoding/xml; only the verbs in Verb are
// supported.

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type twimlSay struct {
	XMLName  xml.Name `xml:"Say"`
	Voice    string   `xml:"voice,attr,omitempty"`
	Language string   `xml:"language,attr,omitempty"`
	Text     string   `xml:",chardata"`
}

type twimlGather struct {
	XMLName             xml.Name   `xml:"Gather"`
	Input               string     `xml:"input,attr"`
	Action              string     `xml:"action,attr,omitempty"`
	Method              string     `xml:"method,attr,omitempty"`
	Timeout             int        `xml:"timeout,attr,omitempty"`
	SpeechTimeout       int        `xml:"speechTimeout,attr,omitempty"`
	Language            string     `xml:"language,attr,omitempty"`
	ActionOnEmptyResult bool       `xml:"actionOnEmptyResult,attr,omitempty"`
	Say                 []twimlSay `xml:"Say"`
}

type twimlRecord struct {
	XMLName    xml.Name `xml:"Record"`
	MaxLength  int      `xml:"maxLength,attr,omitempty"`
	Action     string   `xml:"action,attr,omitempty"`
	Method     string   `xml:"method,attr,omitempty"`
	PlayBeep   bool     `xml:"playBeep,attr"`
	Transcribe bool     `xml:"transcribe,attr"`
}

type twimlDial struct {
	XMLName xml.Name `xml:"Dial"`
	Timeout int      `xml:"timeout,attr,omitempty"`
	Number  string   `xml:",chardata"`
}

type twimlRedirect struct {
	XMLName xml.Name `xml:"Redirect"`
	Method  string   `xml:"method,attr"`
	URL     string   `xml:",chardata"`
}

type twimlPause struct {
	XMLName xml.Name `xml:"Pause"`
	Length  int      `xml:"length,attr,omitempty"`
}

type twimlHangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

// RenderTwiML renders a Response as a Twilio voice document.
func RenderTwiML(res Response) (string, error) {
	var r twimlResponse
	for i, in := range res.Instructions {
		v, err := twimlVerb(in)
		if err != nil {
			return "", fmt.Errorf("telephony: instruction %d: %w", i, err)
		}
		r.Verbs = append(r.Verbs, v)
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func twimlVerb(in Instruction) (any, error) {
	switch in.Verb {
	case VerbSay:
		return twimlSay{Voice: in.Voice, Language: in.Language, Text: in.Text}, nil
	case VerbGather:
		g := twimlGather{
			Input:               "speech",
			Action:              in.Action,
			Method:              "POST",
			Timeout:             in.Timeout,
			SpeechTimeout:       in.SpeechTimeout,
			Language:            in.Language,
			ActionOnEmptyResult: in.ActionOnEmptyResult,
		}
		for _, p := range in.Prompt {
			if p.Verb != VerbSay {
				return nil, fmt.Errorf("gather may only nest say, got %q", p.Verb)
			}
			g.Say = append(g.Say, twimlSay{Voice: p.Voice, Language: p.Language, Text: p.Text})
		}
		return g, nil
	case VerbRecord:
		return twimlRecord{MaxLength: in.MaxLength, Action: in.Action, Method: "POST", PlayBeep: in.PlayBeep}, nil
	case VerbDial:
		if strings.TrimSpace(in.Number) == "" {
			return nil, fmt.Errorf("dial requires a number")
		}
		return twimlDial{Timeout: in.Timeout, Number: in.Number}, nil
	case VerbRedirect:
		if in.URL == "" {
			return nil, fmt.Errorf("redirect requires a url")
		}
		return twimlRedirect{Method: "POST", URL: in.URL}, nil
	case VerbPause:
		return twimlPause{Length: in.Length}, nil
	case VerbHangup:
		return twimlHangup{}, nil
	default:
		return nil, fmt.Errorf("unknown verb %q", in.Verb)
	}
}
