package telephony

import (
	"strings"
	"testing"
)

func TestRenderTwiML_GatherNestsPrompt(t *testing.T) {
	opts := CallGather
	opts.Action = Path("/webhook/gather-response", "business_id", "b1", "call_sid", "CA1", "turn", "0")
	opts.ActionOnEmpty = true
	res := NewScript(DefaultVoice).
		Gather(opts, "Hello, thank you for calling Acme.").
		Say("Thank you for calling. Have a great day!").
		Hangup().
		Response()

	xml, err := RenderTwiML(res)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	for _, want := range []string{
		`<Gather input="speech" action="/webhook/gather-response?business_id=b1&amp;call_sid=CA1&amp;turn=0" method="POST" timeout="5" speechTimeout="3" language="en-GB" actionOnEmptyResult="true">`,
		`<Say voice="Polly.Amy" language="en-GB">Hello, thank you for calling Acme.</Say>`,
		`<Hangup></Hangup>`,
	} {
		if !strings.Contains(xml, want) {
			t.Fatalf("expected %q in xml:\n%s", want, xml)
		}
	}
	if strings.Index(xml, "<Gather") > strings.Index(xml, "Have a great day") {
		t.Fatalf("instructions rendered out of order:\n%s", xml)
	}
}

func TestRenderTwiML_RecordDialRedirectPause(t *testing.T) {
	res := NewScript(Voice{}).
		Pause(1).
		Record(VoicemailMaxSeconds, "/webhook/voicemail-complete").
		Dial("+441234567890", DialTimeoutSeconds).
		Redirect("/webhook/transfer?call_sid=CA1").
		Response()

	xml, err := RenderTwiML(res)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	for _, want := range []string{
		`<Pause length="1"></Pause>`,
		`<Record maxLength="120" action="/webhook/voicemail-complete" method="POST" playBeep="true" transcribe="false"></Record>`,
		`<Dial timeout="30">+441234567890</Dial>`,
		`<Redirect method="POST">/webhook/transfer?call_sid=CA1</Redirect>`,
	} {
		if !strings.Contains(xml, want) {
			t.Fatalf("expected %q in xml:\n%s", want, xml)
		}
	}
}

func TestRenderTwiML_EscapesSpokenText(t *testing.T) {
	res := NewScript(DefaultVoice).Say(`Fish & Chips <today>`).Response()
	xml, err := RenderTwiML(res)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(xml, "Fish &amp; Chips &lt;today&gt;") {
		t.Fatalf("expected escaped text:\n%s", xml)
	}
}

func TestRenderTwiML_DialRequiresNumber(t *testing.T) {
	_, err := RenderTwiML(Response{Instructions: []Instruction{{Verb: VerbDial}}})
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestResponse_Spoken(t *testing.T) {
	res := NewScript(DefaultVoice).Gather(OnboardingGather, "What are your hours?").Say("Goodbye").Response()
	got := res.Spoken()
	if len(got) != 2 || got[0] != "What are your hours?" || got[1] != "Goodbye" {
		t.Fatalf("unexpected spoken lines %v", got)
	}
	g, ok := res.First(VerbGather)
	if !ok || g.Timeout != 8 || g.SpeechTimeout != 5 {
		t.Fatalf("unexpected onboarding gather %+v", g)
	}
}
