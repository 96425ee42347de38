// Package failover runs a request against a list of cluster endpoints, one
// endpoint at a time, until one of them answers.
//
// # Overview
//
// Any single member of the cluster may be unreachable, stale or restarting.
// Rather than pick one member and hope, every call is handed to a Driver
// together with the endpoints currently known to the client. The Driver tries
// them strictly in order:
//
//	endpoints: [A, B, C]
//
//	A ──fail──► B ──ok──► done (C is never contacted)
//	A ──fail──► B ──fail──► C ──fail──► Errors{eA, eB, eC}
//
// # State machine
//
// A Driver moves through four states:
//
//   - Idle: nothing in flight; take the next endpoint or finish as Exhausted
//   - Attempting: exactly one Operation is running
//   - Succeeded: terminal, holds the first successful item
//   - Exhausted: terminal, holds one error per endpoint in attempt order
//
// Terminal states are absorbing. A failure that comes back without blocking
// sends the Driver straight to the next endpoint in the same loop iteration,
// so deterministic tests can drive a whole sequence on one goroutine.
//
// # Concurrency
//
// Only one attempt is ever outstanding, so the Driver needs no locks. It
// never races endpoints against each other and never retries an endpoint.
// Timeouts belong to the transport used inside the Operation; cancelling the
// context passed to Run is the only way to abandon an attempt.
//
// # Usage
//
//	members, err := failover.FirstOK(ctx, endpoints,
//	    func(ctx context.Context, endpoint string) ([]Member, error) {
//	        return listMembers(ctx, endpoint)
//	    })
//	var errs failover.Errors
//	if errors.As(err, &errs) && len(errs) == 0 {
//	    // no endpoints were configured
//	}
package failover
