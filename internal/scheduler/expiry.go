package scheduler

import (
	"context"

	"github.com/bwmarrin/snowflake"
	obsmetrics "github.com/smallbiznis/crmbilling/internal/observability/metrics"
	"go.uber.org/zap"
)

// expirySweep expires lapsed tenants one transaction each. A tenant that
// fails or turns out ineligible is skipped for the rest of the run.
func (s *Scheduler) expirySweep(ctx context.Context) (ExpiryResult, error) {
	run := jobRunFromContext(ctx)
	now := s.clock.Now()
	seen := map[snowflake.ID]struct{}{}
	var result ExpiryResult

	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		limit := s.cfg.BatchSize + len(seen)
		companies, err := s.companyRepo.ListExpired(ctx, s.db, now, limit)
		if err != nil {
			s.logSchedulerError(ctx, run, "scheduler.expiry.list.failed", JobExpirySweep, 0, err)
			return result, err
		}

		progressed := false
		for _, c := range companies {
			if _, ok := seen[c.ID]; ok {
				continue
			}
			progressed = true

			expired, err := s.subscriptionSvc.Expire(ctx, c.ID)
			if err != nil {
				seen[c.ID] = struct{}{}
				result.Failed++
				s.logSchedulerError(ctx, run, "scheduler.expiry.failed", JobExpirySweep, c.ID, err,
					zap.String("status", string(c.SubscriptionStatus)),
				)
				continue
			}
			if !expired {
				seen[c.ID] = struct{}{}
				continue
			}
			result.Deactivated++
			run.AddProcessed(1)
		}

		if !progressed || len(companies) < limit {
			break
		}
	}

	obsmetrics.Scheduler().AddBatchProcessed(JobExpirySweep, "company", result.Deactivated)
	return result, nil
}
