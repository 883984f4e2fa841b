package webhook

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/okisilev/tg-askeza/internal/gateway"
)

const maxBodySize = 1 << 20

// Observer is the lifecycle entry point the webhook feeds. A webhook
// event and a reconciliation poll result land in the same place.
type Observer interface {
	ObservePaymentSucceeded(ctx context.Context, gatewayID string) error
	ObservePaymentCanceled(ctx context.Context, gatewayID string) error
}

type Server struct {
	observer Observer
	srv      *http.Server
}

func NewServer(addr string, observer Observer) *Server {
	s := &Server{observer: observer}
	mux := http.NewServeMux()
	mux.HandleFunc("/webhook/yookassa", s.handleYookassa)
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
	}
	return s
}

func (s *Server) handleYookassa(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		http.Error(w, "read error", http.StatusBadRequest)
		return
	}

	event, err := gateway.ParseWebhook(body)
	if err != nil {
		if errors.Is(err, gateway.ErrUnknownEvent) {
			// Unknown events are acknowledged so the gateway stops retrying.
			log.Printf("Webhook: ignoring notification: %v", err)
			w.WriteHeader(http.StatusOK)
			return
		}
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 25*time.Second)
	defer cancel()

	switch event.Event {
	case gateway.EventPaymentSucceeded:
		err = s.observer.ObservePaymentSucceeded(ctx, event.Payment.ID)
	case gateway.EventPaymentCanceled:
		err = s.observer.ObservePaymentCanceled(ctx, event.Payment.ID)
	}
	if err != nil {
		// Non-200 makes YooKassa redeliver, which is exactly the retry
		// we want for a failed settle.
		log.Printf("Webhook: processing %s for %s failed: %v", event.Event, event.Payment.ID, err)
		http.Error(w, "processing failed", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (s *Server) Start() {
	go func() {
		log.Printf("Webhook server listening on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Webhook server error: %v", err)
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}
