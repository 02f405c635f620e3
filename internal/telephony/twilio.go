package telephony

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	twilioAPIBase    = "https://api.twilio.com/2010-04-01/Accounts/%s"
	maxAPIBody       = 1 << 20
	maxRecordingBody = 32 << 20
)

// TwilioConfig holds credentials and the public origin for callbacks.
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string

	// APIBase overrides the REST origin (tests).
	APIBase string
}

// TwilioClient implements Gateway over Twilio's REST API without the SDK.
//
// Thread Safety: TwilioClient is safe for concurrent use.
type TwilioClient struct {
	accountSID string
	authToken  string
	fromNumber string
	baseURL    string

	client *http.Client
}

var _ Gateway = (*TwilioClient)(nil)

func NewTwilioClient(cfg TwilioConfig) (*TwilioClient, error) {
	if cfg.AccountSID == "" {
		return nil, errors.New("twilio: account SID is required")
	}
	if cfg.AuthToken == "" {
		return nil, errors.New("twilio: auth token is required")
	}
	base := fmt.Sprintf(twilioAPIBase, cfg.AccountSID)
	if cfg.APIBase != "" {
		base = strings.TrimRight(cfg.APIBase, "/") + "/Accounts/" + cfg.AccountSID
	}
	return &TwilioClient{
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		fromNumber: cfg.FromNumber,
		baseURL:    base,
		client:     &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (p *TwilioClient) InitiateCall(ctx context.Context, req OutboundCall) (string, error) {
	if req.URL == "" || req.To == "" {
		return "", fmt.Errorf("%w: to and url are required", ErrMissingField)
	}
	from := req.From
	if from == "" {
		from = p.fromNumber
	}
	params := url.Values{
		"To":   {req.To},
		"From": {from},
		"Url":  {req.URL},
	}
	if req.StatusCallback != "" {
		params.Set("StatusCallback", req.StatusCallback)
		params.Set("StatusCallbackMethod", http.MethodPost)
		params["StatusCallbackEvent"] = []string{"completed"}
	}
	if req.Record {
		params.Set("Record", "true")
	}

	body, err := p.apiRequest(ctx, http.MethodPost, "/Calls.json", params)
	if err != nil {
		return "", fmt.Errorf("twilio: initiate call: %w", err)
	}
	var out struct {
		SID string `json:"sid"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("twilio: parse call response: %w", err)
	}
	if out.SID == "" {
		return "", errors.New("twilio: call response missing sid")
	}
	return out.SID, nil
}

func (p *TwilioClient) RegisterStatusCallback(ctx context.Context, callSid, callbackURL string) error {
	params := url.Values{
		"StatusCallback":       {callbackURL},
		"StatusCallbackMethod": {http.MethodPost},
		"StatusCallbackEvent":  TerminalCallbackEvents,
	}
	if _, err := p.apiRequest(ctx, http.MethodPost, "/Calls/"+url.PathEscape(callSid)+".json", params); err != nil {
		return fmt.Errorf("twilio: register status callback: %w", err)
	}
	return nil
}

func (p *TwilioClient) StartRecording(ctx context.Context, callSid, callbackURL string) error {
	params := url.Values{}
	if callbackURL != "" {
		params.Set("RecordingStatusCallback", callbackURL)
		params.Set("RecordingStatusCallbackMethod", http.MethodPost)
	}
	if _, err := p.apiRequest(ctx, http.MethodPost, "/Calls/"+url.PathEscape(callSid)+"/Recordings.json", params); err != nil {
		return fmt.Errorf("twilio: start recording: %w", err)
	}
	return nil
}

func (p *TwilioClient) LatestRecordingURL(ctx context.Context, callSid string) (string, error) {
	params := url.Values{"CallSid": {callSid}, "PageSize": {"1"}}
	body, err := p.apiRequest(ctx, http.MethodGet, "/Recordings.json", params)
	if err != nil {
		return "", fmt.Errorf("twilio: list recordings: %w", err)
	}
	var out struct {
		Recordings []struct {
			SID string `json:"sid"`
		} `json:"recordings"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("twilio: parse recordings: %w", err)
	}
	if len(out.Recordings) == 0 || out.Recordings[0].SID == "" {
		return "", nil
	}
	return p.baseURL + "/Recordings/" + out.Recordings[0].SID + ".mp3", nil
}

// FetchRecording downloads recording audio. Recording URLs posted by
// callbacks have no extension; the mp3 rendition is requested explicitly.
func (p *TwilioClient) FetchRecording(ctx context.Context, recordingURL string) (Recording, error) {
	if recordingURL == "" {
		return Recording{}, fmt.Errorf("%w: recording url", ErrMissingField)
	}
	if !strings.HasSuffix(recordingURL, ".mp3") && !strings.HasSuffix(recordingURL, ".wav") {
		recordingURL += ".mp3"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, recordingURL, nil)
	if err != nil {
		return Recording{}, err
	}
	req.SetBasicAuth(p.accountSID, p.authToken)

	resp, err := p.client.Do(req)
	if err != nil {
		return Recording{}, fmt.Errorf("twilio: fetch recording: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return Recording{}, fmt.Errorf("twilio: fetch recording: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRecordingBody+1))
	if err != nil {
		return Recording{}, err
	}
	if len(data) > maxRecordingBody {
		return Recording{}, fmt.Errorf("twilio: recording too large (%d bytes)", len(data))
	}
	mime := "audio/mpeg"
	if strings.HasSuffix(recordingURL, ".wav") {
		mime = "audio/wav"
	}
	return Recording{Data: data, MIMEType: mime}, nil
}

func (p *TwilioClient) SendSMS(ctx context.Context, to, body string) error {
	if to == "" {
		return fmt.Errorf("%w: sms recipient", ErrMissingField)
	}
	params := url.Values{"To": {to}, "From": {p.fromNumber}, "Body": {body}}
	if _, err := p.apiRequest(ctx, http.MethodPost, "/Messages.json", params); err != nil {
		return fmt.Errorf("twilio: send sms: %w", err)
	}
	return nil
}

// apiRequest makes an authenticated request to the Twilio API.
func (p *TwilioClient) apiRequest(ctx context.Context, method, endpoint string, params url.Values) ([]byte, error) {
	reqURL := p.baseURL + endpoint

	var body io.Reader
	if method == http.MethodGet {
		if len(params) > 0 {
			reqURL += "?" + params.Encode()
		}
	} else {
		body = bytes.NewBufferString(params.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(p.accountSID, p.authToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxAPIBody+1))
	if err != nil {
		return nil, err
	}
	if len(raw) > maxAPIBody {
		return nil, fmt.Errorf("API response too large (%d bytes)", len(raw))
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(raw))
	}
	return raw, nil
}
