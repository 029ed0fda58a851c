package engine

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/zulandar/switchyard/internal/store"
	"github.com/zulandar/switchyard/internal/webhook"
)

// HandleWebhook applies one verified, normalized webhook delivery.
// Deliveries arrive at-least-once: replays are detected by delivery ID
// and acknowledged without reprocessing.
func (e *Engine) HandleWebhook(ctx context.Context, ev *webhook.Event) error {
	rt, err := e.runtimeFor(ctx, ev.Owner, ev.Repo)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("engine: no installation for %s/%s", ev.Owner, ev.Repo)
	}
	if err != nil {
		return err
	}

	// Claiming the delivery first collapses concurrent duplicates; a
	// failure below releases the claim so a redelivery is processed.
	already, err := e.store.MarkDelivery(rt.inst.ID, ev.DeliveryID)
	if err != nil {
		return err
	}
	if already {
		log.Printf("engine: delivery %s replayed, skipping", ev.DeliveryID)
		return nil
	}

	if err := e.applyDelivery(ctx, rt, ev); err != nil {
		if clearErr := e.store.ClearDelivery(rt.inst.ID, ev.DeliveryID); clearErr != nil {
			log.Printf("engine: delivery %s: release claim: %v", ev.DeliveryID, clearErr)
		}
		return err
	}
	return nil
}

// applyDelivery routes one claimed delivery to the pairing or
// reconciliation path. Ping and other non-issue events carry no work.
func (e *Engine) applyDelivery(ctx context.Context, rt *runtime, ev *webhook.Event) error {
	if ev.Issue == nil {
		return nil
	}

	mapping, err := e.store.MappingByRemoteNumber(rt.inst.ID, ev.Issue.Number)
	if errors.Is(err, store.ErrNotFound) {
		return e.pairRemote(ctx, rt, ev.Issue)
	}
	if err != nil {
		return err
	}
	return e.reconcileMapped(ctx, rt, mapping, ev.Issue)
}
