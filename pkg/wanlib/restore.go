package wanlib

// Snapshot is the persistable form of the engine: admitted transfers with
// their reached offsets, and the waiting queue in order.
type Snapshot struct {
	Active []TransferRequest `json:"active"`
	Queued []TransferRequest `json:"queued"`
}

// Restore rebuilds the queue from a snapshot: formerly admitted requests
// first, in their original order, then the formerly queued ones. Nothing
// is started. It returns the number of requests queued.
func Restore(s *Scheduler, snap Snapshot) int {
	s.c.lock()
	defer s.c.unlock()
	head := 0
	for _, req := range snap.Active {
		s.insertLocked(head, normalizeRestored(req))
		head++
	}
	for _, req := range snap.Queued {
		s.insertLocked(len(s.queue), normalizeRestored(req))
	}
	return len(snap.Active) + len(snap.Queued)
}

func normalizeRestored(req TransferRequest) TransferRequest {
	if req.ResumeOffset < 0 {
		req.ResumeOffset = 0
	}
	if req.RateLimit < 0 {
		req.RateLimit = 0
	}
	return req
}
