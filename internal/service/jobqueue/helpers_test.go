package jobqueue

import "github.com/nkiryanov/yieldmart/internal/repository"

func claimOptsFor(p *Processor) repository.ClaimJobOpts {
	return repository.ClaimJobOpts{Queues: p.cfg.Queues, Now: p.cfg.Now(), Lease: p.cfg.Lease}
}
