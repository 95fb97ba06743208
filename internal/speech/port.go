package speech

import "context"

type STTClient interface {
	// Transcribe converts the audio file at filePath to text. language is a
	// hint passed through to the provider. The caller owns the file.
	Transcribe(ctx context.Context, filePath, language string) (string, error)
}

type TTSClient interface {
	// Synthesize converts text to an audio payload (mpeg) in the given
	// voice. Voice validation is left to the provider.
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)
}
