package main

import (
	"log"
	"net/http"
	"os"
	"strconv"

	"github.com/Vovarama1992/go-utils/httputil"
	"github.com/Vovarama1992/go-utils/logger"

	"github.com/mymind-ai/backend/internal/ai"
	"github.com/mymind-ai/backend/internal/delivery"
	"github.com/mymind-ai/backend/internal/dialogue"
	"github.com/mymind-ai/backend/internal/infra"
	"github.com/mymind-ai/backend/internal/pipeline"
	"github.com/mymind-ai/backend/internal/ports"
	"github.com/mymind-ai/backend/internal/speech"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const defaultPrimingPrompt = "You are a kind, respectful and reassuring voice companion. " +
	"You never give dangerous advice or dark answers. You are here to help, " +
	"to listen, and to grow with your user in full confidentiality."

func main() {

	// =========================================================================
	// ENV INIT
	// =========================================================================

	_ = godotenv.Load()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	apiSecret := os.Getenv("API_SECRET_KEY")
	if apiSecret == "" {
		log.Fatal("API_SECRET_KEY is not set")
	}

	primingPrompt := os.Getenv("PRIMING_PROMPT")
	if primingPrompt == "" {
		primingPrompt = defaultPrimingPrompt
	}

	languageHint := os.Getenv("LANGUAGE_HINT")
	if languageHint == "" {
		languageHint = "fr"
	}

	audioDir := os.Getenv("AUDIO_DIR")
	if audioDir == "" {
		audioDir = "audio"
	}

	maxConversations, _ := strconv.Atoi(os.Getenv("MAX_CONVERSATIONS"))

	baseLogger, _ := zap.NewProduction()
	defer baseLogger.Sync()
	zl := logger.NewZapLogger(baseLogger.Sugar())

	// =========================================================================
	// CLIENTS (AI / STT / TTS)
	// =========================================================================

	openAIClient := ai.NewOpenAIClient()

	var sttClient speech.STTClient = openAIClient
	if os.Getenv("STT_PROVIDER") == "deepgram" {
		sttClient = speech.NewDeepgramClient()
	}

	var ttsClient speech.TTSClient = openAIClient
	if os.Getenv("TTS_PROVIDER") == "elevenlabs" {
		ttsClient = speech.NewElevenLabsClient()
	}

	speechService := speech.NewService(sttClient, ttsClient)

	// =========================================================================
	// OPTIONAL S3 ARCHIVE
	// =========================================================================

	var archive ports.S3Client
	if os.Getenv("S3_ENDPOINT") != "" {
		s3Client, err := infra.NewS3Client()
		if err != nil {
			log.Fatalf("failed to init s3: %v", err)
		}
		archive = s3Client
	}

	// =========================================================================
	// STORE + PIPELINE
	// =========================================================================

	store := dialogue.NewStore(maxConversations)

	pipelineService := pipeline.NewService(
		store,
		openAIClient,
		speechService,
		archive,
		zl,
		pipeline.Config{
			PrimingPrompt: primingPrompt,
			LanguageHint:  languageHint,
			AudioDir:      audioDir,
		},
	)

	// =========================================================================
	// HTTP ROUTER
	// =========================================================================

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", delivery.APIKeyHeader},
	}))

	handler := delivery.NewHandler(pipelineService, store, zl)
	delivery.RegisterRoutes(r, handler, apiSecret)

	r.With(httputil.RecoverMiddleware).Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(200)
		w.Write([]byte("pong"))
	})

	// =========================================================================
	// START SERVER
	// =========================================================================

	addr := ":" + port
	zl.Log(logger.LogEntry{
		Level:   "info",
		Message: "listening at " + addr,
		Service: "mymind-backend",
	})

	if err := http.ListenAndServe(addr, r); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
