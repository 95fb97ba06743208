package ai

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/mymind-ai/backend/internal/apperr"
	"github.com/mymind-ai/backend/internal/dialogue"
)

// OpenAIClient covers all three provider capabilities used by the pipeline:
// chat completion, Whisper transcription and speech synthesis.
type OpenAIClient struct {
	client          *openai.Client
	chatModel       string
	transcribeModel string
	ttsModel        string
}

func NewOpenAIClient() *OpenAIClient {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		log.Fatal("OPENAI_API_KEY not set")
	}
	return NewOpenAIClientWith(apiKey, os.Getenv("OPENAI_BASE_URL"))
}

// NewOpenAIClientWith builds a client with an explicit key and optional base
// URL override. Tests point baseURL at a local fake server.
func NewOpenAIClientWith(apiKey, baseURL string) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	chatModel := os.Getenv("OPENAI_CHAT_MODEL")
	if chatModel == "" {
		chatModel = openai.GPT4
	}
	transcribeModel := os.Getenv("OPENAI_TRANSCRIBE_MODEL")
	if transcribeModel == "" {
		transcribeModel = openai.Whisper1
	}
	ttsModel := os.Getenv("OPENAI_TTS_MODEL")
	if ttsModel == "" {
		ttsModel = string(openai.TTSModel1)
	}

	return &OpenAIClient{
		client:          openai.NewClientWithConfig(cfg),
		chatModel:       chatModel,
		transcribeModel: transcribeModel,
		ttsModel:        ttsModel,
	}
}

func (c *OpenAIClient) Complete(ctx context.Context, history []dialogue.Message) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history))
	for _, m := range history {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.chatModel,
		Messages: messages,
	})
	if err != nil {
		return "", apperr.Provider("chat completion", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion: %w: no choices", apperr.ErrEmptyResult)
	}

	reply := resp.Choices[0].Message.Content
	if strings.TrimSpace(reply) == "" {
		return "", fmt.Errorf("chat completion: %w: blank reply", apperr.ErrEmptyResult)
	}
	return reply, nil
}

// Transcribe converts the audio file at filePath to text. The caller owns
// the file and removes it once the call returns.
func (c *OpenAIClient) Transcribe(ctx context.Context, filePath, language string) (string, error) {
	resp, err := c.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    c.transcribeModel,
		FilePath: filePath,
		Language: language,
	})
	if err != nil {
		return "", apperr.Provider("transcription", err)
	}
	if strings.TrimSpace(resp.Text) == "" {
		return "", fmt.Errorf("transcription: %w: no text", apperr.ErrEmptyResult)
	}
	return resp.Text, nil
}

// Synthesize renders text to spoken audio (mpeg) with the given voice.
// Unknown voices are rejected upstream, not validated here.
func (c *OpenAIClient) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	resp, err := c.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model: openai.SpeechModel(c.ttsModel),
		Input: text,
		Voice: openai.SpeechVoice(voice),
	})
	if err != nil {
		return nil, apperr.Provider("speech synthesis", err)
	}
	defer resp.Close()

	audio, err := io.ReadAll(resp)
	if err != nil {
		return nil, apperr.Provider("speech synthesis", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("speech synthesis: %w: empty audio", apperr.ErrEmptyResult)
	}
	return audio, nil
}
