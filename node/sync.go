package node

import (
	"context"
	"sync"
	"time"

	"github.com/scoutgame/scoutd/node/ledger"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// SettlementSync settles pending transactions until ctx is cancelled. Every
// retry period it returns stuck rows to the queue and handles a batch of
// pending rows concurrently.
func (d *Scoutd) SettlementSync(ctx context.Context) {
	retryPeriod := d.retryPeriod()
	isFirstSync := true
	for {
		if isDone(ctx) {
			return // If the user does ctl+c or something
		}

		n, err := d.SettlePending(ctx)
		if err != nil {
			log.WithError(err).Errorf("failed to settle pending transactions")
		} else if isFirstSync {
			isFirstSync = false
			log.WithField("settled", n).Info("settlement is running")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(retryPeriod):
		}
	}
}

// SettlePending runs a single settlement pass and returns how many rows it
// handled.
func (d *Scoutd) SettlePending(ctx context.Context) (int, error) {
	reset, err := d.Ledger.ResetStuckTransactions(ctx, nil, d.sinceStuck())
	if err != nil {
		return 0, err
	}
	if reset > 0 {
		log.WithField("count", reset).Warn("returned stuck transactions to the queue")
	}

	ids, err := d.Ledger.SelectPendingTransactionIDs(ctx, nil, d.batchSize())
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, d.recordPass(ledger.SettlementSync{})
	}

	var mu sync.Mutex
	var pass ledger.SettlementSync
	var g errgroup.Group
	g.SetLimit(d.workers())
	for _, id := range ids {
		id := id
		g.Go(func() error {
			status, err := d.HandlePendingTransaction(ctx, id)
			if err != nil && status == "" {
				log.WithError(err).WithField("id", id).Error("failed to handle pending transaction")
			}
			mu.Lock()
			defer mu.Unlock()
			switch status {
			case ledger.PendingStatusCompleted:
				pass.Completed++
			case ledger.PendingStatusFailed:
				pass.Failed++
			case ledger.PendingStatusPending:
				pass.Retried++
			}
			return nil
		})
	}
	_ = g.Wait()

	return len(ids), d.recordPass(pass)
}

func (d *Scoutd) recordPass(pass ledger.SettlementSync) error {
	d.syncMu.Lock()
	d.Sync.Completed += pass.Completed
	d.Sync.Failed += pass.Failed
	d.Sync.Retried += pass.Retried
	d.Sync.LastRun = d.now().Unix()
	snapshot := *d.Sync
	d.syncMu.Unlock()

	return d.Ledger.InsertSettlementSync(nil, &snapshot)
}

func isDone(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}
