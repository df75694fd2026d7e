package fsm

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/danl5/bgpfsm/pkg/fsmerr"
	"github.com/danl5/bgpfsm/pkg/model"
)

// resolveCollision implements RFC 4271 §6.8. a and b are the two live
// sessions with the same remote speaker, so both share a's PeerRouterID();
// the rule compares that single peer identifier against our own: if ours is
// higher, the connection we initiated (active) survives, otherwise the
// connection the peer initiated (passive) does. Equal IDs mean the peer is
// misconfigured with our own router ID and are a configuration error; the
// caller treats a nil winner as "go Idle via OnIdleError".
func (f *FSM) resolveCollision(a, b *model.Session) (winner, loser *model.Session) {
	local := f.peer.RouterID()
	peer := a.PeerRouterID()
	cmp := compareRouterID(local, peer)
	switch {
	case cmp > 0:
		if a.Direction() == model.DirectionActive {
			return a, b
		}
		return b, a
	case cmp < 0:
		if a.Direction() == model.DirectionPassive {
			return a, b
		}
		return b, a
	default:
		f.logger.Error("collision resolution failed", "err", fsmerr.ErrRouterIDTie, "router_id", peer)
		return nil, nil
	}
}

// assignSession promotes winner to the FSM's single steady-state session,
// clearing whichever slot didn't hold it. The loser is expected to already
// be scheduled for teardown by the caller.
func (f *FSM) assignSession(winner *model.Session) {
	if winner == nil {
		return
	}
	if winner.Direction() == model.DirectionActive {
		f.active, f.passive = winner, nil
	} else {
		f.passive, f.active = winner, nil
	}
}

// teardownSession detaches s from whichever slot holds it — so no
// subsequently dequeued event can still reference it as live — and posts a
// pseudo-delete event for the FSM worker to physically close it on its own
// goroutine. s may be nil, matching callers that tear down an empty slot.
func (f *FSM) teardownSession(s *model.Session, reason string) {
	if s == nil {
		return
	}
	if f.active == s {
		f.active = nil
	}
	if f.passive == s {
		f.passive = nil
	}
	gen := s.Generation()
	f.logger.Debug("session detached pending close", "generation", gen, "reason", reason)
	f.queue.Enqueue(model.Event{
		Kind:    model.EventTcpDeletePseudo,
		Session: s,
		Validate: func() bool {
			return s.Generation() == gen
		},
	})
}

// finalizeDeletion physically closes s. It runs only from the FSM worker,
// on dequeue of the pseudo-delete event teardownSession posted, so a close
// never races a transport callback still holding the same pointer.
func (f *FSM) finalizeDeletion(s *model.Session) {
	if s == nil || s.Closed() {
		return
	}
	if err := s.Close(); err != nil {
		f.logger.Debug("session close returned error", "err", err)
	}
}

// teardownConcurrently closes both sessions in parallel via errgroup,
// joining both outcomes before returning — used by teardownAll whenever
// entering Idle (or an admin-down in Idle) must drop an active and a passive
// session at once rather than serially.
func teardownConcurrently(ctx context.Context, sessions ...*model.Session) error {
	g, _ := errgroup.WithContext(ctx)
	for _, s := range sessions {
		s := s
		if s == nil {
			continue
		}
		g.Go(func() error {
			return s.Close()
		})
	}
	return g.Wait()
}
