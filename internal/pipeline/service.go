package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Vovarama1992/go-utils/logger"
	"github.com/google/uuid"

	"github.com/mymind-ai/backend/internal/ai"
	"github.com/mymind-ai/backend/internal/apperr"
	"github.com/mymind-ai/backend/internal/dialogue"
	"github.com/mymind-ai/backend/internal/ports"
)

// DefaultVoice matches the provider's "shimmer" preset used when the caller
// does not pick one.
const DefaultVoice = "shimmer"

// SpeechService is the slice of speech.Service the orchestrator needs.
type SpeechService interface {
	Transcribe(ctx context.Context, filePath, language string) (string, error)
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)
}

// SpeechResult is a synthesized reply: the payload plus the transient file
// it was written to.
type SpeechResult struct {
	Path        string
	Audio       []byte
	ContentType string
}

type Config struct {
	PrimingPrompt string
	LanguageHint  string
	AudioDir      string

	// RollbackOnReplyFailure removes the just-appended user turn when the
	// completion call fails. Off by default: the user's message stays in
	// history even though no reply was produced.
	RollbackOnReplyFailure bool
}

// Service composes the dialogue store and the three provider adapters into
// the chat, transcribe, speak and listen-and-respond flows.
type Service struct {
	store     *dialogue.Store
	completer ai.Client
	speech    SpeechService
	archive   ports.S3Client // optional, nil disables archiving
	log       *logger.ZapLogger
	cfg       Config
}

func NewService(
	store *dialogue.Store,
	completer ai.Client,
	speech SpeechService,
	archive ports.S3Client,
	log *logger.ZapLogger,
	cfg Config,
) *Service {
	return &Service{
		store:     store,
		completer: completer,
		speech:    speech,
		archive:   archive,
		log:       log,
		cfg:       cfg,
	}
}

func (s *Service) Store() *dialogue.Store { return s.store }

// Transcribe runs the transcribe-only flow: one adapter call, no history
// mutation. An empty provider result is recoverable and comes back as "".
func (s *Service) Transcribe(ctx context.Context, filePath string) (string, error) {
	text, err := s.speech.Transcribe(ctx, filePath, s.cfg.LanguageHint)
	if err != nil {
		if errors.Is(err, apperr.ErrEmptyResult) {
			return "", nil
		}
		s.logError("transcription failed", err)
		return "", err
	}
	return text, nil
}

// Chat appends the user turn, asks the provider for a reply against the full
// history, and appends the assistant turn. The whole exchange holds the
// per-conversation lock so concurrent requests for one user cannot read the
// same history and interleave their appends. Requests for different users
// never contend.
func (s *Service) Chat(ctx context.Context, userID, message string) (string, error) {
	conv := s.store.GetOrCreate(userID)
	conv.Lock()
	defer conv.Unlock()

	conv.EnsurePrimed(s.cfg.PrimingPrompt)
	conv.Append(dialogue.RoleUser, message)

	reply, err := s.completer.Complete(ctx, conv.History())
	if err != nil {
		// The user turn stays in history unless rollback is enabled.
		if s.cfg.RollbackOnReplyFailure {
			conv.RemoveLast(dialogue.RoleUser)
		}
		s.logError("completion failed", err)
		return "", err
	}

	conv.Append(dialogue.RoleAssistant, reply)
	return reply, nil
}

// Speak synthesizes text and writes the payload to a transient file.
func (s *Service) Speak(ctx context.Context, text, voice string) (SpeechResult, error) {
	if voice == "" {
		voice = DefaultVoice
	}

	audio, err := s.speech.Synthesize(ctx, text, voice)
	if err != nil {
		s.logError("synthesis failed", err)
		return SpeechResult{}, err
	}

	name := fmt.Sprintf("reply_%s.mp3", uuid.NewString())
	return s.writeReply(ctx, name, audio)
}

// ListenAndRespond chains transcription, the chat exchange and synthesis.
// Any stage failure aborts the rest; history already committed by the chat
// stage stands.
func (s *Service) ListenAndRespond(ctx context.Context, userID, filePath, voice string) (SpeechResult, error) {
	if voice == "" {
		voice = DefaultVoice
	}

	text, err := s.Transcribe(ctx, filePath)
	if err != nil {
		return SpeechResult{}, err
	}

	reply, err := s.Chat(ctx, userID, text)
	if err != nil {
		return SpeechResult{}, err
	}

	audio, err := s.speech.Synthesize(ctx, reply, voice)
	if err != nil {
		s.logError("synthesis failed", err)
		return SpeechResult{}, err
	}

	name := fmt.Sprintf("reply_%s_%s.mp3", userID, uuid.NewString())
	res, err := s.writeReply(ctx, name, audio)
	if err != nil {
		return SpeechResult{}, err
	}

	if s.archive != nil {
		key := "replies/" + name
		if _, aerr := s.archive.PutObject(ctx, key, bytes.NewReader(audio), int64(len(audio)), "audio/mpeg"); aerr != nil {
			// Best effort: the caller already has the reply.
			s.logError("reply archive failed", aerr)
		}
	}

	return res, nil
}

// writeReply persists the synthesized payload unless the owning request was
// already cancelled; a cancelled request must not leave stray output files.
func (s *Service) writeReply(ctx context.Context, name string, audio []byte) (SpeechResult, error) {
	if err := ctx.Err(); err != nil {
		return SpeechResult{}, err
	}

	if err := os.MkdirAll(s.cfg.AudioDir, 0755); err != nil {
		return SpeechResult{}, apperr.Internal("create audio dir", err)
	}
	path := filepath.Join(s.cfg.AudioDir, name)
	if err := os.WriteFile(path, audio, 0644); err != nil {
		return SpeechResult{}, apperr.Internal("write reply audio", err)
	}

	return SpeechResult{Path: path, Audio: audio, ContentType: "audio/mpeg"}, nil
}

func (s *Service) logError(msg string, err error) {
	if s.log == nil {
		return
	}
	s.log.Log(logger.LogEntry{
		Level:   "error",
		Message: msg,
		Service: "pipeline",
		Error:   err,
	})
}
