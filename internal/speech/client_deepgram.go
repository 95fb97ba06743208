package speech

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"

	"github.com/goccy/go-json"

	"github.com/mymind-ai/backend/internal/apperr"
)

// DeepgramClient is the alternate STT provider, selected with
// STT_PROVIDER=deepgram.
type DeepgramClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewDeepgramClient() *DeepgramClient {
	key := os.Getenv("DEEPGRAM_API_KEY")
	if key == "" {
		panic("DEEPGRAM_API_KEY not set")
	}
	return &DeepgramClient{
		apiKey:  key,
		baseURL: "https://api.deepgram.com",
		client:  &http.Client{},
	}
}

func (c *DeepgramClient) Transcribe(ctx context.Context, filePath, language string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", apperr.Internal("read audio file", err)
	}

	endpoint := fmt.Sprintf("%s/v1/listen?model=nova-2&smart_format=true&language=%s",
		c.baseURL, url.QueryEscape(language))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return "", apperr.Provider("deepgram", err)
	}
	req.Header.Set("Authorization", "Token "+c.apiKey)
	req.Header.Set("Content-Type", "audio/ogg")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", apperr.Provider("deepgram request", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", apperr.Providerf("deepgram", "status=%d body=%s", resp.StatusCode, string(body))
	}

	var parsed struct {
		Results struct {
			Channels []struct {
				Alternatives []struct {
					Transcript string `json:"transcript"`
				} `json:"alternatives"`
			} `json:"channels"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", apperr.Provider("decode deepgram", err)
	}

	if len(parsed.Results.Channels) == 0 ||
		len(parsed.Results.Channels[0].Alternatives) == 0 ||
		parsed.Results.Channels[0].Alternatives[0].Transcript == "" {
		return "", fmt.Errorf("deepgram: %w: empty transcript", apperr.ErrEmptyResult)
	}

	return parsed.Results.Channels[0].Alternatives[0].Transcript, nil
}
