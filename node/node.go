package node

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/scoutgame/scoutd/config"
	"github.com/scoutgame/scoutd/node/ledger"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

type Scoutd struct {
	Config *viper.Viper

	Ledger *ledger.Ledger
	Chains *Chains
	Trees  *TreeStore
	Decent *DecentClient

	// now is swapped in tests
	now func() time.Time

	syncMu sync.RWMutex
	Sync   *ledger.SettlementSync
}

func NewScoutd(ctx context.Context, conf *viper.Viper) (*Scoutd, error) {
	l := ledger.New(conf)
	if err := l.Init(); err != nil {
		return nil, err
	}

	chains, err := DialChains(ctx, conf)
	if err != nil {
		_ = l.Close()
		return nil, err
	}

	d := New(conf, l, chains)
	if err := d.loadSync(ctx); err != nil {
		chains.Close()
		_ = l.Close()
		return nil, err
	}
	return d, nil
}

// New wires a daemon around an initialized ledger and chain clients.
func New(conf *viper.Viper, l *ledger.Ledger, chains *Chains) *Scoutd {
	d := new(Scoutd)
	d.Config = conf
	d.Ledger = l
	d.Chains = chains
	d.Trees = NewTreeStore(conf.GetDuration(config.AirdropTreeTimeout))
	d.Decent = NewDecentClient(conf.GetString(config.DecentAPI), conf.GetString(config.DecentAPIKey))
	d.now = time.Now
	d.Sync = new(ledger.SettlementSync)
	return d
}

func (d *Scoutd) loadSync(ctx context.Context) error {
	s, err := d.Ledger.SelectSettlementSync(ctx, nil)
	if err == sql.ErrNoRows {
		log.Debug("connected to a fresh database")
		return nil
	}
	if err != nil {
		return err
	}
	d.Sync = s
	return nil
}

// GetSync returns a copy of the settlement progress.
func (d *Scoutd) GetSync() ledger.SettlementSync {
	d.syncMu.RLock()
	defer d.syncMu.RUnlock()
	return *d.Sync
}

func (d *Scoutd) Close() error {
	if d.Chains != nil {
		d.Chains.Close()
	}
	return d.Ledger.Close()
}
