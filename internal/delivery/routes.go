package delivery

import (
	"time"

	"github.com/Vovarama1992/go-utils/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
)

func RegisterRoutes(r chi.Router, h *Handler, apiSecret string) {
	// --- public ---
	r.With(httputil.RecoverMiddleware).Get("/", h.Welcome)

	// --- protected ---
	r.Group(func(pr chi.Router) {
		pr.Use(
			httputil.RecoverMiddleware,
			httprate.LimitByIP(60, time.Minute),
			AuthMiddleware(apiSecret),
		)

		// --- pipeline flows ---
		pr.Post("/chat", h.Chat)
		pr.Post("/transcribe", h.Transcribe)
		pr.Post("/speak", h.Speak)
		pr.Post("/listen-and-respond", h.ListenAndRespond)

		// --- conversation state ---
		pr.Get("/history/{user_id}", h.GetHistory)
		pr.Delete("/history/{user_id}", h.DeleteHistory)
	})
}
