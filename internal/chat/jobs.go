package chat

import (
	"context"
	"errors"
	"fmt"
	"github.com/valyala/fastjson"
	"sessionchat/internal/scheduler"
	"sessionchat/internal/storage"
	"strconv"
)

// TaskAdvanceDeliveryStatus is the kind of the deferred sent -> delivered transition
const TaskAdvanceDeliveryStatus = "advance_delivery_status"

func deliveryPayload(messageID int64) []byte {
	return []byte(`{"message_id":` + strconv.FormatInt(messageID, 10) + `}`)
}

// ReapReport summarizes one ReapStaleState pass
type ReapReport struct {
	Users   int
	Skipped int
	Failed  int
	Typing  int64
}

// AdvanceDeliveryStatus moves the message named by payload from "sent" to "delivered".
// A message already past "sent" or already deleted is left alone.
func (s *Service) AdvanceDeliveryStatus(ctx context.Context, payload []byte) error {
	var p fastjson.Parser
	v, err := p.ParseBytes(payload)
	if err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}
	if !v.Exists("message_id") {
		return errors.New("payload has no message_id")
	}
	id, err := v.Get("message_id").Int64()
	if err != nil {
		return fmt.Errorf("parsing message_id: %w", err)
	}

	advanced, err := s.store.AdvanceStatus(ctx, id, storage.StatusDelivered)
	if err != nil {
		return err
	}
	if !advanced {
		s.logger.Debugf("Message (id: %d) is gone or past delivery, skipping", id)
	}

	return nil
}

// ReapStaleState purges users flagged offline or inactive longer than StaleAfter, then sweeps typing
// indicators. Each user is purged in its own transaction that checks staleness again; a user who
// came back meanwhile is skipped and a failing user is logged.
func (s *Service) ReapStaleState(ctx context.Context) (ReapReport, error) {
	var report ReapReport

	cutoff := s.now().Add(-s.cfg.StaleAfter)
	ids, err := s.store.StaleUserIDs(ctx, cutoff)
	if err != nil {
		return report, err
	}

	for _, id := range ids {
		s.logger.Debugf("Reaping user (id: %d)", id)
		err := s.store.InTx(ctx, func(tx *storage.Tx) error {
			_, err := tx.PurgeStaleUser(ctx, id, cutoff)
			return err
		})
		switch {
		case err == nil:
			report.Users++
		case errors.Is(err, storage.ErrUserNotExist):
			// logged out meanwhile
		case errors.Is(err, storage.ErrUserActive):
			report.Skipped++
		case ctx.Err() != nil:
			return report, ctx.Err()
		default:
			s.logger.Errorf("Reaping user (id: %d): %v", id, err)
			report.Failed++
		}
	}

	if report.Typing, err = s.SweepTypingIndicators(ctx); err != nil {
		return report, err
	}

	if report.Users > 0 || report.Failed > 0 {
		s.logger.Infof("Reaped stale state: %+v", report)
	}

	return report, nil
}

// Reconcile recomputes derived state from source rows
func (s *Service) Reconcile(ctx context.Context) (storage.ReconcileReport, error) {
	return s.store.Reconcile(ctx)
}

// RegisterJobs wires the deferred delivery transition and the periodic sweeps to r
func (s *Service) RegisterJobs(r *scheduler.Runner) {
	r.Handle(TaskAdvanceDeliveryStatus, func(ctx context.Context, t storage.Task) error {
		return s.AdvanceDeliveryStatus(ctx, t.Payload)
	})

	r.Every("reap stale state", s.cfg.ReapInterval, func(ctx context.Context) error {
		_, err := s.ReapStaleState(ctx)
		return err
	})
	r.Every("sweep typing indicators", s.cfg.TypingSweepInterval, func(ctx context.Context) error {
		_, err := s.SweepTypingIndicators(ctx)
		return err
	})
	r.Every("reconcile", s.cfg.ReconcileInterval, func(ctx context.Context) error {
		_, err := s.Reconcile(ctx)
		return err
	})
}
