package voice_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/znerol74/call/internal/handler/voice"
	"github.com/znerol74/call/internal/model/agent"
	model "github.com/znerol74/call/internal/model/conversation"
	"github.com/znerol74/call/internal/service/calls"
	"github.com/znerol74/call/internal/service/conversation"
	"github.com/znerol74/call/internal/service/llm"
	"github.com/znerol74/call/internal/service/llm/llmtest"
	"github.com/znerol74/call/internal/service/registry"
	"github.com/znerol74/call/internal/service/telephony"
	"github.com/znerol74/call/internal/service/tools"
	"github.com/znerol74/call/internal/store"
)

const publicBase = "https://calls.example.com"

type nopControl struct{}

func (nopControl) TransferCall(context.Context, string, string) error { return nil }
func (nopControl) EndCall(context.Context, string) error              { return nil }

type fixture struct {
	router  *chi.Mux
	gen     *llmtest.Generator
	reg     *registry.Registry
	records *store.MemoryStore
}

func newFixture(t *testing.T, validator *telephony.SignatureValidator, steps ...llmtest.Step) *fixture {
	t.Helper()
	gen := llmtest.New(steps...)
	records := store.NewMemoryStore()
	engine := conversation.NewEngine(gen,
		tools.NewFactory(nopControl{}, tools.FactoryConfig{}, zap.NewNop()),
		conversation.WithRecordSink(records),
	)
	reg := registry.New(engine)
	svc := calls.NewService(agent.NewMemoryStore(agent.Seed()), reg, records, 0, zap.NewNop())

	h := voice.New(svc, voice.Config{PublicBaseURL: publicBase + "/", Language: "de-DE", Validator: validator}, zap.NewNop())
	r := chi.NewRouter()
	r.Route("/api/v1", func(api chi.Router) { h.RegisterRoutes(api) })
	return &fixture{router: r, gen: gen, reg: reg, records: records}
}

func (f *fixture) post(path string, form url.Values, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if signature != "" {
		req.Header.Set(telephony.SignatureHeader, signature)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func incoming(callID, to string) url.Values {
	return url.Values{"CallSid": {callID}, "From": {"+4917000"}, "To": {to}}
}

func TestIncomingCallGreetsAndGathers(t *testing.T) {
	f := newFixture(t, nil)
	resp := f.post("/api/v1/twilio/incoming-call", incoming("CA1", "+4930123456"), "")

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "application/xml", resp.Header().Get("Content-Type"))
	body := resp.Body.String()
	assert.Contains(t, body, "<Gather")
	assert.Contains(t, body, `action="https://calls.example.com/api/v1/twilio/process-speech"`)
	assert.Contains(t, body, agent.Seed()[0].Greeting)
	assert.Equal(t, 1, f.reg.Len())
}

func TestIncomingCallUnknownNumberHangsUp(t *testing.T) {
	f := newFixture(t, nil)
	resp := f.post("/api/v1/twilio/incoming-call", incoming("CA1", "+100"), "")

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), calls.UtteranceNoAgent)
	assert.Contains(t, resp.Body.String(), "<Hangup")
	assert.Equal(t, 0, f.reg.Len())
}

func TestIncomingCallRetryKeepsListening(t *testing.T) {
	f := newFixture(t, nil)
	f.post("/api/v1/twilio/incoming-call", incoming("CA1", "+4930123456"), "")
	resp := f.post("/api/v1/twilio/incoming-call", incoming("CA1", "+4930123456"), "")

	assert.Contains(t, resp.Body.String(), "<Gather")
	assert.Equal(t, 1, f.reg.Len())
}

func TestIncomingCallRequiresCallSid(t *testing.T) {
	f := newFixture(t, nil)
	resp := f.post("/api/v1/twilio/incoming-call", url.Values{"To": {"+4930123456"}}, "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestProcessSpeechReplies(t *testing.T) {
	f := newFixture(t, nil, llmtest.Text("Gerne, ", "ich helfe."))
	f.post("/api/v1/twilio/incoming-call", incoming("CA1", "+4930123456"), "")

	resp := f.post("/api/v1/twilio/process-speech", url.Values{"CallSid": {"CA1"}, "SpeechResult": {"Hallo"}}, "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "Gerne, ich helfe.")
	assert.Contains(t, resp.Body.String(), "<Gather")
}

func TestProcessSpeechFallsBackToUnstableResult(t *testing.T) {
	f := newFixture(t, nil, llmtest.Text("Ok."))
	f.post("/api/v1/twilio/incoming-call", incoming("CA1", "+4930123456"), "")

	f.post("/api/v1/twilio/process-speech", url.Values{"CallSid": {"CA1"}, "UnstableSpeechResult": {"Hallo?"}}, "")

	session, err := f.reg.Get("CA1")
	require.NoError(t, err)
	turns := session.Turns()
	require.Len(t, turns, 3)
	assert.Equal(t, "Hallo?", turns[1].Content)
}

func TestProcessSpeechEmptyAsksToRepeat(t *testing.T) {
	f := newFixture(t, nil)
	f.post("/api/v1/twilio/incoming-call", incoming("CA1", "+4930123456"), "")

	resp := f.post("/api/v1/twilio/process-speech", url.Values{"CallSid": {"CA1"}, "SpeechResult": {"  "}}, "")
	assert.Contains(t, resp.Body.String(), "Could you please repeat?")
	assert.Contains(t, resp.Body.String(), "<Gather")
	assert.Equal(t, 0, f.gen.Calls())
}

func TestProcessSpeechUnknownCall(t *testing.T) {
	f := newFixture(t, nil)
	resp := f.post("/api/v1/twilio/process-speech", url.Values{"CallSid": {"CA404"}, "SpeechResult": {"Hallo"}}, "")
	assert.Contains(t, resp.Body.String(), calls.UtteranceTechnicalIssue)
	assert.Contains(t, resp.Body.String(), "<Hangup")
}

func TestProcessSpeechGenerationFailureApologizes(t *testing.T) {
	f := newFixture(t, nil, llmtest.Failure(errors.New("backend secret detail")))
	f.post("/api/v1/twilio/incoming-call", incoming("CA1", "+4930123456"), "")

	resp := f.post("/api/v1/twilio/process-speech", url.Values{"CallSid": {"CA1"}, "SpeechResult": {"Hallo"}}, "")
	body := resp.Body.String()
	assert.Contains(t, body, calls.UtteranceGenericApology)
	assert.NotContains(t, body, "secret detail")
}

func TestProcessSpeechHangsUpAfterEndCall(t *testing.T) {
	f := newFixture(t, nil,
		llmtest.ToolCalls("", llm.ToolCall{ID: "c1", Name: "end_call"}),
		llmtest.Text("Auf Wiederhören!"),
	)
	f.post("/api/v1/twilio/incoming-call", incoming("CA1", "+4930123456"), "")

	resp := f.post("/api/v1/twilio/process-speech", url.Values{"CallSid": {"CA1"}, "SpeechResult": {"Tschüss"}}, "")
	body := resp.Body.String()
	assert.Contains(t, body, "Auf Wiederhören!")
	assert.Contains(t, body, "<Hangup")
	assert.NotContains(t, body, "<Gather")
}

func TestCallStatusEndsSession(t *testing.T) {
	f := newFixture(t, nil, llmtest.Text("Hi!"), llmtest.Text("Short call."))
	f.post("/api/v1/twilio/incoming-call", incoming("CA1", "+4930123456"), "")
	f.post("/api/v1/twilio/process-speech", url.Values{"CallSid": {"CA1"}, "SpeechResult": {"Hallo"}}, "")

	resp := f.post("/api/v1/twilio/call-status", url.Values{"CallSid": {"CA1"}, "CallStatus": {"completed"}}, "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"status":"ok"}`, resp.Body.String())
	assert.Equal(t, 0, f.reg.Len())

	rec, err := f.records.Get(context.Background(), "CA1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, rec.Status)
	assert.Equal(t, "Short call.", rec.Summary)
}

func TestCallStatusIgnoresProgressAndUnknownCalls(t *testing.T) {
	f := newFixture(t, nil)
	f.post("/api/v1/twilio/incoming-call", incoming("CA1", "+4930123456"), "")

	resp := f.post("/api/v1/twilio/call-status", url.Values{"CallSid": {"CA1"}, "CallStatus": {"in-progress"}}, "")
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, 1, f.reg.Len())

	resp = f.post("/api/v1/twilio/call-status", url.Values{"CallSid": {"CA404"}, "CallStatus": {"busy"}}, "")
	assert.Equal(t, http.StatusOK, resp.Code)
}

func sign(token, fullURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(form.Get(k))
	}
	mac := hmac.New(sha1.New, []byte(token))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestSignatureRequiredWhenEnabled(t *testing.T) {
	const token = "auth-token"
	f := newFixture(t, telephony.NewSignatureValidator(token))
	form := incoming("CA1", "+4930123456")

	resp := f.post("/api/v1/twilio/incoming-call", form, "")
	assert.Equal(t, http.StatusForbidden, resp.Code)

	resp = f.post("/api/v1/twilio/incoming-call", form, sign("wrong", publicBase+"/api/v1/twilio/incoming-call", form))
	assert.Equal(t, http.StatusForbidden, resp.Code)
	assert.Equal(t, 0, f.reg.Len())

	resp = f.post("/api/v1/twilio/incoming-call", form, sign(token, publicBase+"/api/v1/twilio/incoming-call", form))
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, 1, f.reg.Len())
}
