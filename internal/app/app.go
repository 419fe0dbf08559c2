package app

import (
	"github.com/carousell/ct-go/pkg/logger"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap/zapcore"

	"github.com/chathub-io/chathub/internal/auth"
	"github.com/chathub-io/chathub/internal/call"
	"github.com/chathub-io/chathub/internal/chat"
	"github.com/chathub-io/chathub/internal/config"
	"github.com/chathub-io/chathub/internal/delivery"
	"github.com/chathub-io/chathub/internal/ingest"
	"github.com/chathub-io/chathub/internal/presence"
	"github.com/chathub-io/chathub/internal/repo/mongodb"
	"github.com/chathub-io/chathub/internal/reward"
	"github.com/chathub-io/chathub/internal/server"
)

func Invoke(funcs ...any) *fx.App {
	log := logger.MustNamed("app")
	conf := config.MustLoad()
	log.Debugw("config loaded", log.Reflect("config", conf))
	return fx.New(
		fx.WithLogger(func() fxevent.Logger {
			l := &fxevent.ZapLogger{
				Logger: log.Unwrap().Desugar(),
			}
			l.UseLogLevel(zapcore.DebugLevel)
			return l
		}),
		fx.Provide(
			newMongoDB,

			mongodb.NewUserRepository,
			mongodb.NewMessageRepository,
			mongodb.NewGroupRepository,
			mongodb.NewChallengeRepository,
			mongodb.NewChallengeTemplateRepository,
			mongodb.NewPointHistoryRepository,

			presence.NewRegistry,
			newFanout,
			newLedger,
			reward.NewRefresher,
			newPipeline,
			newRelay,
			auth.NewService,
			ingest.NewConsumer,

			server.NewController,
			server.NewSocketHandler,
		),
		fx.Supply(conf),
		fx.Invoke(funcs...),
	)
}

func newFanout(registry *presence.Registry, groups mongodb.GroupRepository) *delivery.Fanout {
	return delivery.NewFanout(registry, groups)
}

func newLedger(
	challenges mongodb.ChallengeRepository,
	users mongodb.UserRepository,
	history mongodb.PointHistoryRepository,
	fanout *delivery.Fanout,
	conf *config.Config,
) *reward.Ledger {
	return reward.NewLedger(challenges, users, history, fanout, conf)
}

func newPipeline(
	messages mongodb.MessageRepository,
	groups mongodb.GroupRepository,
	fanout *delivery.Fanout,
	ledger *reward.Ledger,
) *chat.Pipeline {
	return chat.NewPipeline(messages, groups, fanout, ledger)
}

func newRelay(fanout *delivery.Fanout, conf *config.Config) *call.Relay {
	return call.NewRelay(fanout, conf.Call.RetryDelay)
}
