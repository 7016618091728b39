// Command agent is the headless entrypoint: it wires the data-sync
// strategy, notification manager and run tracker into an Orchestrator, and
// drives it on a fixed schedule, per spec.md §4.9/§4.10. Ticks fire only
// from the schedule: the admin listener serves /healthz and /metrics, and
// no HTTP route triggers a tick.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/config"
	"go.uber.org/zap"

	"github.com/franksunye/FSOpsAssistant/internal/alerting"
	appconfig "github.com/franksunye/FSOpsAssistant/internal/config"
	"github.com/franksunye/FSOpsAssistant/internal/datasync"
	"github.com/franksunye/FSOpsAssistant/internal/grouproute"
	"github.com/franksunye/FSOpsAssistant/internal/httpapi"
	"github.com/franksunye/FSOpsAssistant/internal/metrics"
	"github.com/franksunye/FSOpsAssistant/internal/notifyformat"
	"github.com/franksunye/FSOpsAssistant/internal/notifymanager"
	"github.com/franksunye/FSOpsAssistant/internal/orchestrator"
	taskqueue "github.com/franksunye/FSOpsAssistant/internal/queue"
	"github.com/franksunye/FSOpsAssistant/internal/runtracker"
	"github.com/franksunye/FSOpsAssistant/internal/scheduler"
	"github.com/franksunye/FSOpsAssistant/internal/store"
	"github.com/franksunye/FSOpsAssistant/internal/tasks"
	"github.com/franksunye/FSOpsAssistant/internal/webhook"
)

func main() {
	appconfig.Load()

	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tables := appconfig.TablesFromEnv()
	base := appconfig.FromEnv()

	client, err := store.NewClient(ctx)
	if err != nil {
		log.Fatal("agent: init dynamo client", zap.Error(err))
	}

	fetcher := datasync.NewMetabaseFetcher(
		getenv("METABASE_URL", ""),
		getenv("METABASE_USERNAME", ""),
		getenv("METABASE_PASSWORD", ""),
		getenvInt("METABASE_CARD_ID", 1712),
		log,
	)
	strategy := datasync.NewStrategy(fetcher, client, tables.OpportunityCache, log)

	taskStore := tasks.NewStore(client, tables.NotificationTask)
	registry := grouproute.NewRegistry(client, tables.GroupConfig, base.EscalationWebhookURL)
	formatter := notifyformat.New(base.ReminderMaxDisplay, base.BusinessTime.HoursPerDay())

	collector := metrics.NewCollector()

	dispatchProducer := taskqueue.NewProducer(
		getenv("KAFKA_BROKERS", "localhost:9092"),
		getenv("KAFKA_TOPIC_DISPATCH", "sla-agent-dispatch"),
	)
	defer dispatchProducer.Close()
	sender := webhook.NewKafkaSender(dispatchProducer)

	manager := notifymanager.New(taskStore, registry, formatter, sender, base.ManagerConfig(), log).
		WithDispatchErrorCounter(collector.WebhookDispatchErrors)
	tracker := runtracker.NewTracker(client, tables.Runs, tables.RunSteps)

	cfgFn := func() appconfig.Tunables {
		merged, err := appconfig.SystemConfigOverrides(ctx, client, tables.SystemConfig, base)
		if err != nil {
			log.Warn("agent: system_config override read failed, using env/defaults", zap.Error(err))
			return base
		}
		return merged
	}

	orch := orchestrator.New(strategy, manager, tracker, cfgFn, log).WithMetrics(collector)
	if a, err := newAlerter(ctx, log); err != nil {
		log.Info("agent: ops alerting disabled", zap.Error(err))
	} else {
		orch = orch.WithAlerter(a)
	}

	adminAddr := ":" + getenv("AGENT_ADMIN_PORT", "9090")
	adminSrv := &http.Server{Addr: adminAddr, Handler: httpapi.NewRouter(&httpapi.App{Metrics: collector})}
	go func() {
		log.Info("agent: admin/metrics listener starting", zap.String("addr", adminAddr))
		if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("agent: admin listener stopped", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		_ = adminSrv.Close()
	}()

	sched := scheduler.New(base.AgentExecutionInterval, func(tickCtx context.Context) {
		result := orch.RunTick(tickCtx)
		log.Info("agent: tick complete",
			zap.String("run_id", result.RunID),
			zap.String("status", string(result.Status)),
			zap.Int("processed", result.OpportunitiesProcessed),
			zap.Int("sent", result.NotificationsSent),
			zap.Int("errors", len(result.Errors)),
		)
	}, log)

	log.Info("agent: starting", zap.Duration("interval", base.AgentExecutionInterval))
	sched.Start(ctx)
	log.Info("agent: stopped")
}

func newAlerter(ctx context.Context, log *zap.Logger) (*alerting.SESAlerter, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	return alerting.NewSESAlerter(awsCfg, log)
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvInt(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
