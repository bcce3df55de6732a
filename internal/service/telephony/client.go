// Package telephony talks to Twilio: it updates live calls, renders TwiML and
// verifies webhook signatures.
package telephony

import (
	"context"
	"errors"
	"fmt"

	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
	"github.com/twilio/twilio-go/twiml"
	"go.uber.org/zap"
)

// ErrNotConfigured is returned by call control when no credentials are set.
var ErrNotConfigured = errors.New("telephony provider not configured")

// CallUpdater is the slice of the Twilio REST API used for call control.
type CallUpdater interface {
	UpdateCall(sid string, params *openapi.UpdateCallParams) (*openapi.ApiV2010Call, error)
}

// Client performs call control against Twilio. It implements
// tools.CallControl.
type Client struct {
	api    CallUpdater
	logger *zap.Logger
}

// NewClient builds a Client from account credentials. Empty credentials give
// a client whose operations fail with ErrNotConfigured.
func NewClient(accountSID, authToken string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{logger: logger.With(zap.String("component", "telephony"))}
	if accountSID != "" && authToken != "" {
		rest := twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: accountSID,
			Password: authToken,
		})
		c.api = rest.Api
	}
	return c
}

// NewClientWithAPI builds a Client on top of an existing API implementation.
func NewClientWithAPI(api CallUpdater, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{api: api, logger: logger.With(zap.String("component", "telephony"))}
}

// TransferCall redirects the live call to number.
func (c *Client) TransferCall(ctx context.Context, callID, number string) error {
	if c.api == nil {
		return ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := twiml.Voice([]twiml.Element{&twiml.VoiceDial{Number: number}})
	if err != nil {
		return fmt.Errorf("render dial twiml: %w", err)
	}

	params := &openapi.UpdateCallParams{}
	params.SetTwiml(body)
	if _, err := c.api.UpdateCall(callID, params); err != nil {
		return fmt.Errorf("update call %s: %w", callID, err)
	}
	c.logger.Info("call transferred", zap.String("call_id", callID), zap.String("to", number))
	return nil
}

// EndCall hangs up the live call.
func (c *Client) EndCall(ctx context.Context, callID string) error {
	if c.api == nil {
		return ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	params := &openapi.UpdateCallParams{}
	params.SetStatus("completed")
	if _, err := c.api.UpdateCall(callID, params); err != nil {
		return fmt.Errorf("update call %s: %w", callID, err)
	}
	c.logger.Info("call ended", zap.String("call_id", callID))
	return nil
}
