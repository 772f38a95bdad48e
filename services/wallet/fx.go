package wallet

import (
	"go.uber.org/fx"
)

var Module = fx.Module("wallet.store",
	fx.Provide(NewStore),
)
