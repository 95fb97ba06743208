package speech

import (
	"context"
)

// Service bundles the speech-to-text and text-to-speech clients behind one
// facade. Stateless: every call is a pass-through to the provider client.
type Service struct {
	stt STTClient
	tts TTSClient
}

func NewService(stt STTClient, tts TTSClient) *Service {
	return &Service{
		stt: stt,
		tts: tts,
	}
}

func (s *Service) Transcribe(ctx context.Context, filePath, language string) (string, error) {
	return s.stt.Transcribe(ctx, filePath, language)
}

func (s *Service) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	return s.tts.Synthesize(ctx, text, voice)
}
