package payables

import (
	"time"

	"github.com/smallbiznis/freightdesk/internal/config"
	"github.com/smallbiznis/freightdesk/internal/payables/domain"
	"github.com/smallbiznis/freightdesk/internal/payables/repository"
	"github.com/smallbiznis/freightdesk/internal/payables/service"
	"github.com/smallbiznis/freightdesk/internal/payables/wizard"
	"go.uber.org/fx"
)

var Module = fx.Module("payables.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(func(svc domain.Service) domain.Store { return svc }),
	fx.Provide(func(holder *config.PayablesConfigHolder) wizard.PolicySource { return holder }),
	fx.Provide(fx.Annotate(
		func(cfg config.Config) time.Duration { return cfg.WizardIdleTTL },
		fx.ResultTags(`name:"wizard_idle_ttl"`),
	)),
	fx.Provide(wizard.NewManager),
)
