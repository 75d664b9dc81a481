package upstream

import (
	customerdomain "github.com/smallbiznis/commissionhub/internal/customer/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("upstream",
	fx.Provide(NewClient),
	fx.Provide(func(c *Client) customerdomain.Lookup { return c }),
)
