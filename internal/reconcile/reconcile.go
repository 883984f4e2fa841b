package reconcile

import (
	"context"
	"log"

	"github.com/okisilev/tg-askeza/internal/gateway"
	"github.com/okisilev/tg-askeza/internal/lifecycle"
	"github.com/okisilev/tg-askeza/types"
)

// Reconciler polls the gateway for every payment still pending, covering
// webhooks that never arrived. It drives the same lifecycle transitions
// the webhook path does.
type Reconciler struct {
	store     types.AccessStore
	gateway   lifecycle.PaymentGateway
	lifecycle *lifecycle.Lifecycle
}

func New(store types.AccessStore, gw lifecycle.PaymentGateway, lc *lifecycle.Lifecycle) *Reconciler {
	return &Reconciler{
		store:     store,
		gateway:   gw,
		lifecycle: lc,
	}
}

func (r *Reconciler) Name() string { return "reconciler" }

// Run processes one reconciliation pass. A failing lookup skips that
// payment and moves on; it will be retried next period.
func (r *Reconciler) Run(ctx context.Context) error {
	pending, err := r.store.ListPendingPayments(ctx)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}
	log.Printf("Reconciler: checking %d pending payments", len(pending))

	for _, p := range pending {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		gwPayment, err := r.gateway.GetPayment(ctx, p.GatewayID)
		if err != nil {
			log.Printf("Reconciler: status lookup for %s failed: %v", p.GatewayID, err)
			continue
		}
		switch gwPayment.Status {
		case gateway.StatusSucceeded:
			if err := r.lifecycle.ObservePaymentSucceeded(ctx, p.GatewayID); err != nil {
				log.Printf("Reconciler: settling %s failed: %v", p.GatewayID, err)
			}
		case gateway.StatusCanceled:
			if err := r.lifecycle.ObservePaymentCanceled(ctx, p.GatewayID); err != nil {
				log.Printf("Reconciler: canceling %s failed: %v", p.GatewayID, err)
			}
		default:
			// Still pending at the gateway, nothing to do.
		}
	}
	return nil
}
