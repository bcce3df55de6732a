package telephony

import (
	"github.com/twilio/twilio-go/twiml"
)

// Renderer produces the TwiML documents answered to voice webhooks.
type Renderer struct {
	// ActionURL receives the caller's speech.
	ActionURL string
	Language  string
}

// Gather speaks text and listens for the caller's reply.
func (r Renderer) Gather(text string) (string, error) {
	say := &twiml.VoiceSay{Message: text, Language: r.Language}
	gather := &twiml.VoiceGather{
		Input:         "speech",
		Action:        r.ActionURL,
		Method:        "POST",
		Language:      r.Language,
		SpeechTimeout: "auto",
		Timeout:       "5",
		InnerElements: []twiml.Element{say},
	}
	return twiml.Voice([]twiml.Element{gather})
}

// Say speaks text and hangs up.
func (r Renderer) Say(text string) (string, error) {
	say := &twiml.VoiceSay{Message: text, Language: r.Language}
	return twiml.Voice([]twiml.Element{say, &twiml.VoiceHangup{}})
}
