package pipeline

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/mymind-ai/backend/internal/apperr"
	"github.com/mymind-ai/backend/internal/dialogue"
)

type fakeCompleter struct {
	mu        sync.Mutex
	err       error
	histories [][]dialogue.Message
}

func (f *fakeCompleter) Complete(_ context.Context, history []dialogue.Message) (string, error) {
	f.mu.Lock()
	snapshot := make([]dialogue.Message, len(history))
	copy(snapshot, history)
	f.histories = append(f.histories, snapshot)
	f.mu.Unlock()

	if f.err != nil {
		return "", f.err
	}
	last := history[len(history)-1]
	return "reply-to:" + last.Content, nil
}

type fakeSpeech struct {
	transcribeFn func(ctx context.Context, filePath, language string) (string, error)
	synthesizeFn func(ctx context.Context, text, voice string) ([]byte, error)
}

func (f *fakeSpeech) Transcribe(ctx context.Context, filePath, language string) (string, error) {
	if f.transcribeFn == nil {
		return "", errors.New("unexpected transcribe call")
	}
	return f.transcribeFn(ctx, filePath, language)
}

func (f *fakeSpeech) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	if f.synthesizeFn == nil {
		return nil, errors.New("unexpected synthesize call")
	}
	return f.synthesizeFn(ctx, text, voice)
}

func newTestService(t *testing.T, completer *fakeCompleter, sp *fakeSpeech, cfg Config) *Service {
	t.Helper()
	if cfg.PrimingPrompt == "" {
		cfg.PrimingPrompt = "stay kind"
	}
	if cfg.AudioDir == "" {
		cfg.AudioDir = t.TempDir()
	}
	if sp == nil {
		sp = &fakeSpeech{}
	}
	return NewService(dialogue.NewStore(0), completer, sp, nil, nil, cfg)
}

func TestChat_OrderedHistory(t *testing.T) {
	svc := newTestService(t, &fakeCompleter{}, nil, Config{})

	reply, err := svc.Chat(context.Background(), "u1", "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != "reply-to:hello" {
		t.Fatalf("unexpected reply %q", reply)
	}

	conv, ok := svc.Store().Get("u1")
	if !ok {
		t.Fatalf("expected conversation created")
	}
	h := conv.History()
	if len(h) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(h))
	}
	if h[0].Role != dialogue.RoleSystem || h[0].Content != "stay kind" {
		t.Fatalf("expected priming first, got %+v", h[0])
	}
	if h[1].Role != dialogue.RoleUser || h[1].Content != "hello" {
		t.Fatalf("expected user turn second, got %+v", h[1])
	}
	if h[2].Role != dialogue.RoleAssistant || h[2].Content != reply {
		t.Fatalf("expected assistant turn third, got %+v", h[2])
	}
}

func TestChat_PrimingSentToProvider(t *testing.T) {
	completer := &fakeCompleter{}
	svc := newTestService(t, completer, nil, Config{PrimingPrompt: "persona"})

	if _, err := svc.Chat(context.Background(), "u1", "hi"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.Chat(context.Background(), "u1", "again"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(completer.histories) != 2 {
		t.Fatalf("expected 2 provider calls, got %d", len(completer.histories))
	}
	for i, h := range completer.histories {
		if h[0].Role != dialogue.RoleSystem || h[0].Content != "persona" {
			t.Fatalf("call %d: expected priming at position zero, got %+v", i, h[0])
		}
	}
	// Second call sees the full prior exchange, oldest first.
	second := completer.histories[1]
	if len(second) != 4 {
		t.Fatalf("expected 4 turns in second call, got %d", len(second))
	}
}

func TestChat_CompletionFailureKeepsUserTurn(t *testing.T) {
	completer := &fakeCompleter{err: apperr.Provider("chat completion", errors.New("quota"))}
	svc := newTestService(t, completer, nil, Config{})

	_, err := svc.Chat(context.Background(), "u1", "hello")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !errors.Is(err, apperr.ErrProvider) {
		t.Fatalf("expected provider error kind, got %v", err)
	}

	conv, _ := svc.Store().Get("u1")
	h := conv.History()
	if len(h) != 2 {
		t.Fatalf("expected user turn kept without assistant turn, got %d turns", len(h))
	}
	if h[1].Role != dialogue.RoleUser || h[1].Content != "hello" {
		t.Fatalf("expected user turn preserved, got %+v", h[1])
	}
}

func TestChat_RollbackSwitchRemovesUserTurn(t *testing.T) {
	completer := &fakeCompleter{err: apperr.Provider("chat completion", errors.New("down"))}
	svc := newTestService(t, completer, nil, Config{RollbackOnReplyFailure: true})

	if _, err := svc.Chat(context.Background(), "u1", "hello"); err == nil {
		t.Fatalf("expected error")
	}

	conv, _ := svc.Store().Get("u1")
	h := conv.History()
	if len(h) != 1 || h[0].Role != dialogue.RoleSystem {
		t.Fatalf("expected only the priming entry after rollback, got %+v", h)
	}
}

func TestChat_ConcurrentSameUserSerialized(t *testing.T) {
	completer := &fakeCompleter{}
	svc := newTestService(t, completer, nil, Config{})

	var wg sync.WaitGroup
	for _, msg := range []string{"first", "second"} {
		wg.Add(1)
		go func(msg string) {
			defer wg.Done()
			if _, err := svc.Chat(context.Background(), "u1", msg); err != nil {
				t.Errorf("chat %q: %v", msg, err)
			}
		}(msg)
	}
	wg.Wait()

	conv, _ := svc.Store().Get("u1")
	h := conv.History()
	if len(h) != 5 {
		t.Fatalf("expected 5 turns (system + 2 exchanges), got %d", len(h))
	}
	if h[0].Role != dialogue.RoleSystem {
		t.Fatalf("expected system entry first")
	}
	// Serialized exchanges alternate strictly: each assistant turn directly
	// answers the user turn before it.
	for i := 1; i < len(h); i += 2 {
		if h[i].Role != dialogue.RoleUser || h[i+1].Role != dialogue.RoleAssistant {
			t.Fatalf("expected user/assistant alternation at %d, got %q/%q", i, h[i].Role, h[i+1].Role)
		}
		if h[i+1].Content != "reply-to:"+h[i].Content {
			t.Fatalf("assistant turn %q does not answer user turn %q", h[i+1].Content, h[i].Content)
		}
	}

	// Each provider call must have seen its own user turn as the last entry.
	for i, hist := range completer.histories {
		if hist[len(hist)-1].Role != dialogue.RoleUser {
			t.Fatalf("call %d: expected own user turn last, got %q", i, hist[len(hist)-1].Role)
		}
	}
}

func TestChat_CrossUserIndependent(t *testing.T) {
	svc := newTestService(t, &fakeCompleter{}, nil, Config{})

	var wg sync.WaitGroup
	for _, user := range []string{"a", "b", "c", "d"} {
		wg.Add(1)
		go func(user string) {
			defer wg.Done()
			if _, err := svc.Chat(context.Background(), user, "hi "+user); err != nil {
				t.Errorf("chat %s: %v", user, err)
			}
		}(user)
	}
	wg.Wait()

	if svc.Store().Len() != 4 {
		t.Fatalf("expected 4 conversations, got %d", svc.Store().Len())
	}
	for _, user := range []string{"a", "b", "c", "d"} {
		conv, _ := svc.Store().Get(user)
		if conv.Len() != 3 {
			t.Fatalf("user %s: expected 3 turns, got %d", user, conv.Len())
		}
	}
}

func TestTranscribe_NoStoreMutation(t *testing.T) {
	sp := &fakeSpeech{
		transcribeFn: func(_ context.Context, _, language string) (string, error) {
			if language != "fr" {
				t.Errorf("expected language hint fr, got %q", language)
			}
			return "bonjour", nil
		},
	}
	svc := newTestService(t, &fakeCompleter{}, sp, Config{LanguageHint: "fr"})

	text, err := svc.Transcribe(context.Background(), "/tmp/in.ogg")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "bonjour" {
		t.Fatalf("expected bonjour, got %q", text)
	}
	if svc.Store().Len() != 0 {
		t.Fatalf("transcribe-only must not touch the store, got %d conversations", svc.Store().Len())
	}
}

func TestTranscribe_EmptyResultIsEmptyString(t *testing.T) {
	sp := &fakeSpeech{
		transcribeFn: func(context.Context, string, string) (string, error) {
			return "", apperr.Providerf("transcription", "upstream down")
		},
	}
	svc := newTestService(t, &fakeCompleter{}, sp, Config{})
	if _, err := svc.Transcribe(context.Background(), "x"); !errors.Is(err, apperr.ErrProvider) {
		t.Fatalf("expected provider error passthrough, got %v", err)
	}

	sp.transcribeFn = func(context.Context, string, string) (string, error) {
		return "", apperr.ErrEmptyResult
	}
	text, err := svc.Transcribe(context.Background(), "x")
	if err != nil {
		t.Fatalf("empty result should be recoverable, got %v", err)
	}
	if text != "" {
		t.Fatalf("expected empty transcription, got %q", text)
	}
}

func TestSpeak_DefaultVoiceAndFile(t *testing.T) {
	var gotVoice string
	sp := &fakeSpeech{
		synthesizeFn: func(_ context.Context, text, voice string) ([]byte, error) {
			gotVoice = voice
			return []byte("mp3-bytes:" + text), nil
		},
	}
	svc := newTestService(t, &fakeCompleter{}, sp, Config{})

	res, err := svc.Speak(context.Background(), "hello there", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotVoice != DefaultVoice {
		t.Fatalf("expected default voice %q, got %q", DefaultVoice, gotVoice)
	}
	if res.ContentType != "audio/mpeg" {
		t.Fatalf("unexpected content type %q", res.ContentType)
	}

	data, err := os.ReadFile(res.Path)
	if err != nil {
		t.Fatalf("expected reply file written: %v", err)
	}
	if string(data) != "mp3-bytes:hello there" {
		t.Fatalf("file content mismatch: %q", data)
	}
}

func TestListenAndRespond_FullFlow(t *testing.T) {
	sp := &fakeSpeech{
		transcribeFn: func(context.Context, string, string) (string, error) {
			return "salut", nil
		},
		synthesizeFn: func(_ context.Context, text, voice string) ([]byte, error) {
			if text == "" {
				t.Errorf("expected non-empty reply text for synthesis")
			}
			return []byte("audio-of:" + text), nil
		},
	}
	svc := newTestService(t, &fakeCompleter{}, sp, Config{})

	res, err := svc.ListenAndRespond(context.Background(), "u9", "/tmp/in.ogg", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Audio) == 0 {
		t.Fatalf("expected synthesized payload")
	}
	if !strings.Contains(res.Path, "reply_u9_") {
		t.Fatalf("expected reply file keyed by user id, got %q", res.Path)
	}

	conv, _ := svc.Store().Get("u9")
	h := conv.History()
	if len(h) != 3 {
		t.Fatalf("expected 3 turns (synthesis adds none), got %d", len(h))
	}
	if h[1].Content != "salut" {
		t.Fatalf("expected transcribed text as user turn, got %+v", h[1])
	}
}

func TestListenAndRespond_SynthesisFailureKeepsHistory(t *testing.T) {
	sp := &fakeSpeech{
		transcribeFn: func(context.Context, string, string) (string, error) {
			return "salut", nil
		},
		synthesizeFn: func(context.Context, string, string) ([]byte, error) {
			return nil, apperr.Providerf("speech synthesis", "voice not found")
		},
	}
	svc := newTestService(t, &fakeCompleter{}, sp, Config{})

	_, err := svc.ListenAndRespond(context.Background(), "u1", "/tmp/in.ogg", "ghost-voice")
	if !errors.Is(err, apperr.ErrProvider) {
		t.Fatalf("expected provider error, got %v", err)
	}

	// The chat stage already committed; its turns stand.
	conv, _ := svc.Store().Get("u1")
	if conv.Len() != 3 {
		t.Fatalf("expected committed history to stand, got %d turns", conv.Len())
	}
}

func TestListenAndRespond_CancelledRequestWritesNoFile(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sp := &fakeSpeech{
		transcribeFn: func(context.Context, string, string) (string, error) {
			return "salut", nil
		},
		synthesizeFn: func(context.Context, string, string) ([]byte, error) {
			// Synthesis completes, but the owning request is gone.
			cancel()
			return []byte("late audio"), nil
		},
	}
	audioDir := t.TempDir()
	svc := newTestService(t, &fakeCompleter{}, sp, Config{AudioDir: audioDir})

	if _, err := svc.ListenAndRespond(ctx, "u1", "/tmp/in.ogg", ""); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	entries, err := os.ReadDir(audioDir)
	if err != nil {
		t.Fatalf("read audio dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no stray output files, found %d", len(entries))
	}
}
