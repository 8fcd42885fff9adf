package remote

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/tracemon/internal/engine"
	"github.com/roach88/tracemon/internal/formula"
	"github.com/roach88/tracemon/internal/ir"
)

// Syncer exchanges knowledge vectors with peers. Each round it registers
// the remote sub-formulas of local monitors with the agent that owns them
// and merges what every peer knows back into the engine.
type Syncer struct {
	engine   *engine.Engine
	peers    map[string]*Client
	self     string
	interval time.Duration
	logger   *zap.Logger
}

// NewSyncer creates a syncer for the local agent self.
func NewSyncer(e *engine.Engine, self string, peers []*Client, interval time.Duration, logger *zap.Logger) *Syncer {
	if logger == nil {
		logger = zap.NewNop()
	}
	byName := make(map[string]*Client, len(peers))
	for _, p := range peers {
		byName[p.Name()] = p
	}
	return &Syncer{engine: e, peers: byName, self: self, interval: interval, logger: logger}
}

// Run syncs once immediately and then every interval until ctx is done.
// Round failures are logged; only cancellation stops the loop.
func (s *Syncer) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if err := s.SyncOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Warn("knowledge sync failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// SyncOnce runs one exchange round against every peer in parallel and
// returns the joined per-peer errors. Entries from the peers that did
// answer are merged even when others failed.
func (s *Syncer) SyncOnce(ctx context.Context) error {
	var (
		remotes map[string][]formula.At
		local   []ir.KVEntry
	)
	err := s.engine.Do(ctx, func(context.Context) error {
		remotes = s.engine.RemoteFormulas()
		local = s.engine.Knowledge().Entries()
		return nil
	})
	if err != nil {
		return err
	}

	var (
		mu       sync.Mutex
		received []ir.KVEntry
		errs     []error
	)
	collect := func(entries []ir.KVEntry, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			errs = append(errs, err)
			return
		}
		received = append(received, entries...)
	}

	eg, egCtx := errgroup.WithContext(ctx)
	for name, peer := range s.peers {
		ats := remotes[name]
		eg.Go(func() error {
			collect(s.exchange(egCtx, peer, ats, local))
			return nil
		})
	}
	for agent := range remotes {
		if _, ok := s.peers[agent]; !ok {
			s.logger.Warn("no peer configured for agent", zap.String("agent", agent))
		}
	}
	_ = eg.Wait()

	if len(received) > 0 {
		var changed int
		err := s.engine.Do(ctx, func(ctx context.Context) error {
			var err error
			changed, err = s.engine.MergeKnowledge(ctx, received)
			return err
		})
		if err != nil {
			errs = append(errs, err)
		} else {
			s.logger.Debug("knowledge synced",
				zap.Int("received", len(received)),
				zap.Int("changed", changed))
		}
	}
	return errors.Join(errs...)
}

// exchange registers every sub-formula owned by peer, or just fetches its
// knowledge when it owns none.
func (s *Syncer) exchange(ctx context.Context, peer *Client, ats []formula.At, local []ir.KVEntry) ([]ir.KVEntry, error) {
	if len(ats) == 0 {
		return peer.FetchKnowledge(ctx)
	}
	var out []ir.KVEntry
	for _, at := range ats {
		entries, err := peer.RegisterFormula(ctx, engine.RemoteFormula{
			FID:       at.FID,
			Formula:   at.F.String(),
			Target:    s.self,
			Knowledge: local,
		})
		if err != nil {
			return out, err
		}
		out = append(out, entries...)
	}
	return out, nil
}
