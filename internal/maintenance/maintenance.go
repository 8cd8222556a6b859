// Package maintenance drives the periodic ring-upkeep exchanges: join
// retry while alone, and the stabilize tick once part of a ring. It mirrors
// the teacher's ticker-driven StartStabilizers loops, stripped of the
// de Bruijn and storage-repair passes that have no place here.
package maintenance

import (
	"context"
	"time"

	"chordring/internal/logger"
	"chordring/internal/ringstate"
	"chordring/internal/rpcclient"
	"chordring/internal/telemetry/lookuptrace"
)

// Config bundles the timing knobs and bootstrap address the maintenance
// loops run with.
type Config struct {
	StabilizeInterval    time.Duration
	JoinRetryInterval    time.Duration
	RPCTimeoutMaintenance time.Duration
	RPCTimeoutJoin        time.Duration
	RPCTimeoutCert        time.Duration
	BootstrapAddr         string // empty: no bootstrap configured, join retry is a no-op
}

// Runner owns the two background loops a peer runs once started: join
// retry and stabilize.
type Runner struct {
	state  *ringstate.State
	client *rpcclient.Client
	lgr    logger.Logger
	cfg    Config
}

// New builds a Runner driving state through client's RPCs.
func New(state *ringstate.State, client *rpcclient.Client, lgr logger.Logger, cfg Config) *Runner {
	if lgr == nil {
		lgr = &logger.NopLogger{}
	}
	return &Runner{state: state, client: client, lgr: lgr, cfg: cfg}
}

// Start launches the join-retry and stabilize loops as background
// goroutines. Both stop when ctx is canceled.
func (r *Runner) Start(ctx context.Context) {
	go r.joinRetryLoop(ctx)
	go r.stabilizeLoop(ctx)
}

func (r *Runner) joinRetryLoop(ctx context.Context) {
	if r.cfg.BootstrapAddr == "" {
		return
	}
	ticker := time.NewTicker(r.cfg.JoinRetryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tryJoin(ctx)
		}
	}
}

// tryJoin implements Phase B: while alone, keep asking the bootstrap peer
// who owns self's id, and adopt the answer as successor.
func (r *Runner) tryJoin(ctx context.Context) {
	if !r.state.IsAlone() {
		return
	}

	joinCtx, cancel := context.WithTimeout(ctx, r.cfg.RPCTimeoutJoin)
	succ, err := r.client.FindSuccessor(joinCtx, r.cfg.BootstrapAddr, r.state.Self().ID)
	cancel()
	if err != nil {
		r.lgr.Warn("join: bootstrap unreachable", logger.F("bootstrap", r.cfg.BootstrapAddr), logger.F("err", err))
		return
	}

	r.state.SetSuccessor(succ)
	r.lgr.Info("join: adopted successor", logger.FDescriptor("successor", succ))

	certCtx, cancel := context.WithTimeout(ctx, r.cfg.RPCTimeoutCert)
	cert, err := r.client.GetCert(certCtx, succ.Addr())
	cancel()
	if err != nil {
		r.lgr.Warn("join: failed to fetch certificate from new successor",
			logger.FDescriptor("successor", succ), logger.F("err", err))
		return
	}
	r.state.SetCert(cert)
}

func (r *Runner) stabilizeLoop(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.StabilizeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.stabilizeTick(ctx)
		}
	}
}

// stabilizeTick implements Phase C steps 1-5.
func (r *Runner) stabilizeTick(ctx context.Context) {
	self := r.state.Self()

	ctx, span := lookuptrace.StartStabilizeTick(ctx, self)
	defer span.End()

	succ := r.state.Successor()

	if succ.Equal(self) {
		if promoted, ok := r.state.PromotePredecessorAsSuccessor(); ok {
			r.lgr.Info("stabilize: promoted predecessor into two-node ring", logger.FDescriptor("successor", promoted))
		}
		return
	}

	rpcCtx, cancel := context.WithTimeout(ctx, r.cfg.RPCTimeoutMaintenance)
	pred, valid, err := r.client.GetPredecessor(rpcCtx, succ.Addr())
	cancel()
	if err != nil {
		r.lgr.Warn("stabilize: successor unreachable", logger.FDescriptor("successor", succ), logger.F("err", err))
		r.state.HandleSuccessorFailure()
		return
	}
	if valid {
		r.state.HandleStabilizeResponse(pred)
	}

	// Use the (possibly updated) successor for the remaining two steps.
	succ = r.state.Successor()

	listCtx, cancel := context.WithTimeout(ctx, r.cfg.RPCTimeoutMaintenance)
	list, err := r.client.GetSuccessorList(listCtx, succ.Addr())
	cancel()
	if err != nil {
		r.lgr.Warn("stabilize: failed to fetch successor list", logger.FDescriptor("successor", succ), logger.F("err", err))
	} else {
		r.state.UpdateSuccessorList(list)
	}

	notifyCtx, cancel := context.WithTimeout(ctx, r.cfg.RPCTimeoutMaintenance)
	if err := r.client.Notify(notifyCtx, succ.Addr(), self); err != nil {
		r.lgr.Warn("stabilize: notify failed", logger.FDescriptor("successor", succ), logger.F("err", err))
	}
	cancel()
}

// GracefulLeave performs the shutdown hand-off: it tells the predecessor
// about self's successor, and the successor about self's predecessor, so
// the ring heals without waiting for failure detection.
func (r *Runner) GracefulLeave(ctx context.Context) {
	self := r.state.Self()
	pred, predValid := r.state.Predecessor()
	succ := r.state.Successor()

	if predValid && !pred.Equal(self) {
		leaveCtx, cancel := context.WithTimeout(ctx, r.cfg.RPCTimeoutMaintenance)
		if err := r.client.SetSuccessor(leaveCtx, pred.Addr(), succ); err != nil {
			r.lgr.Warn("graceful leave: failed to hand off successor to predecessor",
				logger.FDescriptor("predecessor", pred), logger.F("err", err))
		}
		cancel()
	}
	if !succ.Equal(self) && predValid {
		leaveCtx, cancel := context.WithTimeout(ctx, r.cfg.RPCTimeoutMaintenance)
		if err := r.client.SetPredecessor(leaveCtx, succ.Addr(), pred); err != nil {
			r.lgr.Warn("graceful leave: failed to hand off predecessor to successor",
				logger.FDescriptor("successor", succ), logger.F("err", err))
		}
		cancel()
	}
	r.lgr.Info("graceful leave complete")
}
