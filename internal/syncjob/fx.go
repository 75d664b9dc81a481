package syncjob

import (
	"github.com/smallbiznis/commissionhub/internal/jobqueue"
	"github.com/smallbiznis/commissionhub/internal/upstream"
	"go.uber.org/fx"
)

var Module = fx.Module("syncjob",
	fx.Provide(
		func(c *upstream.Client) Source { return c },
		func(q *jobqueue.Queue) Enqueuer { return q },
		New,
	),
)
