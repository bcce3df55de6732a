package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"
)

const responsePreviewRunes = 200

func (e *Executor) transferCall(ctx context.Context, args map[string]any) Result {
	number := stringArg(args, "phone_number")
	if number == "" {
		return failure("Error: phone_number required", nil)
	}
	if e.callID == "" || e.control == nil {
		return failure("Error: No active call to transfer", nil)
	}
	if err := e.control.TransferCall(ctx, e.callID, number); err != nil {
		return failure(fmt.Sprintf("Error transferring call: %v", err), err)
	}
	return Result{Text: "Call transferred to " + number, Outcome: OutcomeTransferred}
}

func (e *Executor) endCall(ctx context.Context) Result {
	if e.callID == "" || e.control == nil {
		return failure("Error: No active call", nil)
	}
	if err := e.control.EndCall(ctx, e.callID); err != nil {
		return failure(fmt.Sprintf("Error ending call: %v", err), err)
	}
	return Result{Text: "Call ended", Outcome: OutcomeEnded}
}

func (e *Executor) apiCall(ctx context.Context, args map[string]any) Result {
	target := stringArg(args, "url")
	if target == "" {
		return failure("Error: url required", nil)
	}
	u, err := url.Parse(target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return failure(fmt.Sprintf("Error: invalid url %s", target), err)
	}

	method := strings.ToUpper(stringArg(args, "method"))
	if method == "" {
		method = http.MethodGet
	}
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return failure("Error: Unsupported HTTP method "+method, nil)
	}

	if !e.limiter.Allow() {
		return failure("Error: API call rate limit exceeded, try again shortly", nil)
	}

	var body io.Reader
	payload, hasBody := args["body"]
	hasBody = hasBody && payload != nil && method != http.MethodGet && method != http.MethodDelete
	if hasBody {
		data, err := json.Marshal(payload)
		if err != nil {
			return failure(fmt.Sprintf("Error making API call: %v", err), err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return failure(fmt.Sprintf("Error making API call: %v", err), err)
	}
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}
	if headers, ok := args["headers"].(map[string]any); ok {
		for k, v := range headers {
			req.Header.Set(k, fmt.Sprint(v))
		}
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return failure(fmt.Sprintf("Error making API call: %v", err), err)
	}
	defer resp.Body.Close()

	// Only the preview is ever used; cap the read.
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4*responsePreviewRunes))
	if err != nil {
		return failure(fmt.Sprintf("Error making API call: %v", err), err)
	}
	return Result{Text: fmt.Sprintf("API call successful. Status: %d. Response: %s", resp.StatusCode, preview(raw))}
}

func preview(raw []byte) string {
	s := string(raw)
	if utf8.RuneCountInString(s) <= responsePreviewRunes {
		return s
	}
	return string([]rune(s)[:responsePreviewRunes])
}

func weather(args map[string]any) Result {
	location := stringArg(args, "location")
	if location == "" {
		return failure("Error: location required", nil)
	}
	return Result{Text: fmt.Sprintf("Das Wetter in %s ist sonnig mit 22°C.", location)}
}
