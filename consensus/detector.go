package consensus

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// FaultDetector bounds the two waits of the protocol: the generous
// draw timeout covering a human picking a move, and the short
// validation timeout covering one network round-trip plus local
// checks. Expired timers and explicit disconnects fan into a single
// fault channel; the Node reacts by ending the session.
type FaultDetector struct {
	drawTimeout     time.Duration
	validateTimeout time.Duration
	log             *zap.SugaredLogger

	faults chan Fault

	mu        sync.Mutex
	drawTimer *time.Timer
}

func NewFaultDetector(drawTimeout, validateTimeout time.Duration, log *zap.SugaredLogger) *FaultDetector {
	return &FaultDetector{
		drawTimeout:     drawTimeout,
		validateTimeout: validateTimeout,
		log:             log,
		faults:          make(chan Fault, 8),
	}
}

// ValidateTimeout is the bound on waiting for validation replies.
func (d *FaultDetector) ValidateTimeout() time.Duration {
	return d.validateTimeout
}

// Faults surfaces detected faults. The first one already kills the
// session, so the channel is small and extra reports are dropped.
func (d *FaultDetector) Faults() <-chan Fault {
	return d.faults
}

// ArmDraw starts (or restarts) the draw timer against the given
// player. It fires a timeout fault if the player emits nothing before
// the deadline.
func (d *FaultDetector) ArmDraw(player int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.drawTimer != nil {
		d.drawTimer.Stop()
	}
	d.drawTimer = time.AfterFunc(d.drawTimeout, func() {
		d.log.Warnw("draw timeout", "player", player)
		d.Report(Fault{Player: player, Reason: FaultTimeout})
	})
}

// DisarmDraw stops the draw timer.
func (d *FaultDetector) DisarmDraw() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.drawTimer != nil {
		d.drawTimer.Stop()
		d.drawTimer = nil
	}
}

// Report pushes a fault without blocking the reporting path.
func (d *FaultDetector) Report(f Fault) {
	select {
	case d.faults <- f:
	default:
		d.log.Debugw("fault dropped, session already failing", "player", f.Player, "reason", f.Reason)
	}
}
