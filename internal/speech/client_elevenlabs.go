package speech

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/mymind-ai/backend/internal/apperr"
)

// ElevenLabsClient is the alternate TTS provider, selected with
// TTS_PROVIDER=elevenlabs. The voice parameter is the ElevenLabs voice id.
type ElevenLabsClient struct {
	apiKey  string
	baseURL string
	httpCli *http.Client
}

func NewElevenLabsClient() *ElevenLabsClient {
	key := os.Getenv("ELEVENLABS_API_KEY")
	if key == "" {
		panic("ELEVENLABS_API_KEY not set")
	}
	return &ElevenLabsClient{
		apiKey:  key,
		baseURL: "https://api.elevenlabs.io",
		httpCli: http.DefaultClient,
	}
}

// TEXT → SPEECH
func (c *ElevenLabsClient) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	url := fmt.Sprintf("%s/v1/text-to-speech/%s", c.baseURL, voice)

	payload := []byte(fmt.Sprintf(`{"text": %q}`, text))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, apperr.Provider("elevenlabs tts", err)
	}
	req.Header.Set("xi-api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := c.httpCli.Do(req)
	if err != nil {
		return nil, apperr.Provider("elevenlabs tts", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return nil, apperr.Providerf("elevenlabs tts", "status=%d body=%s", resp.StatusCode, string(b))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Provider("elevenlabs tts", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("elevenlabs tts: %w: empty audio", apperr.ErrEmptyResult)
	}
	return audio, nil
}
