// Command worker consumes webhook-dispatch jobs the orchestrator enqueues
// during its execute-notifications tick step and performs the actual HTTP
// POST to the chat-group webhook. Splitting delivery out of the tick process
// is what lets notifymanager.ExecutePending stay a fast, synchronous,
// in-tick state transition: "sent" means "handed to a worker", not "the
// chat platform acknowledged it".
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	taskqueue "github.com/franksunye/FSOpsAssistant/internal/queue"
	"github.com/franksunye/FSOpsAssistant/internal/webhook"
)

func main() {
	_ = godotenv.Load()

	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	workerID := getenv("WORKER_ID", "worker-1")
	brokersCSV := getenv("KAFKA_BROKERS", "localhost:9092")
	mainTopic := getenv("KAFKA_TOPIC_DISPATCH", "sla-agent-dispatch")
	retryTopic := getenv("KAFKA_TOPIC_RETRY", "sla-agent-dispatch-retry")
	groupID := getenv("KAFKA_GROUP_ID", "sla-agent-workers")

	consumer := taskqueue.NewConsumer(taskqueue.SplitCSV(brokersCSV), mainTopic, groupID)
	defer consumer.Close()

	retryProducer := taskqueue.NewProducer(brokersCSV, retryTopic)
	defer retryProducer.Close()

	sender := webhook.NewHTTPSender()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("worker: started",
		zap.String("worker_id", workerID),
		zap.String("main_topic", mainTopic),
		zap.String("retry_topic", retryTopic),
	)

	for ctx.Err() == nil {
		dm, commit, err := consumer.ReadDispatch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			log.Warn("worker: read error", zap.Error(err))
			time.Sleep(500 * time.Millisecond)
			continue
		}

		if err := processOne(ctx, log, sender, retryProducer, dm); err != nil {
			log.Warn("worker: process error, leaving uncommitted for redelivery",
				zap.String("dispatch_id", dm.ID), zap.Error(err))
			continue
		}

		if err := commit(ctx); err != nil {
			log.Warn("worker: commit error", zap.String("dispatch_id", dm.ID), zap.Error(err))
		}
	}

	log.Info("worker: shutting down")
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
