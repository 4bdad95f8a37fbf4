// Package main starts a formflow server.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/formflow/formflow/engine"
	enginehttp "github.com/formflow/formflow/engine/http"
	storageeng "github.com/formflow/formflow/engine/storage"
	httpff "github.com/formflow/formflow/http"
	"github.com/formflow/formflow/log/logkeys"
	"github.com/formflow/formflow/subsystem/notify"
	"github.com/formflow/formflow/subsystem/schema/storage/yamldir"
	"github.com/formflow/formflow/utils/uuid"

	"github.com/alexedwards/flow"
	"github.com/micromdm/nanolib/envflag"
	nanohttp "github.com/micromdm/nanolib/http"
	"github.com/micromdm/nanolib/http/trace"
	"github.com/micromdm/nanolib/log"
	"github.com/micromdm/nanolib/log/stdlogfmt"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// overridden by -ldflags -X
var version = "unknown"

const (
	apiUsername = "formflow"
	apiRealm    = "formflow"
)

func main() {
	var (
		flDebug     = flag.Bool("debug", false, "log debug messages")
		flListen    = flag.String("listen", ":9005", "HTTP listen address")
		flVersion   = flag.Bool("version", false, "print version and exit")
		flDump      = flag.Bool("dump", false, "dump API request bodies and notifications to stdout")
		flAPIKey    = flag.String("api", "", "API key for API endpoints")
		flStorage   = flag.String("storage", "file", "name of engine storage backend (inmem, file, mysql, redis)")
		flDSN       = flag.String("storage-dsn", "", "engine storage data source name (e.g. connection string or path)")
		flSchema    = flag.String("schema-storage", "file", "name of schema storage backend (inmem, file, yaml, mysql, redis)")
		flSchemaDSN = flag.String("schema-dsn", "", "schema storage data source name (e.g. connection string or path)")
		flWorkSec   = flag.Uint("worker-interval", uint(engine.DefaultDuration/time.Second), "interval for worker in seconds, 0 to disable")
		flRemindSec = flag.Uint("reminder-interval", 0, "interval between reminders for idle steps in seconds, 0 to disable")
		flWebhook   = flag.String("webhook-url", "", "URL to POST workflow notifications to")
		flMetrics   = flag.Bool("metrics", false, "serve Prometheus metrics at /metrics")
		flMaxBody   = flag.Int64("max-body", httpff.DefaultMaxBodySize, "maximum API request body size in bytes")
	)
	envflag.Parse("FORMFLOW_", []string{"version"})

	if *flVersion {
		fmt.Println(version)
		return
	}

	logger := stdlogfmt.New(stdlogfmt.WithDebugFlag(*flDebug))

	ctx := context.Background()

	// configure storage
	storage, err := parseStorage(ctx, *flStorage, *flDSN, *flSchema, *flSchemaDSN)
	if err != nil {
		logger.Info(logkeys.Message, "parse storage", logkeys.Error, err)
		os.Exit(1)
	}

	mux := flow.New()

	mux.Handle("/version", nanohttp.NewJSONVersionHandler(version))

	// configure metrics
	var metrics *engine.Metrics
	if *flMetrics {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		if metrics, err = engine.NewMetrics(reg); err != nil {
			logger.Info(logkeys.Message, "registering metrics", logkeys.Error, err)
			os.Exit(1)
		}
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), "GET")
	}

	// configure the workflow engine
	scheduler := engine.NewTimerScheduler()
	defer scheduler.Stop()
	eOpts := []engine.Option{
		engine.WithLogger(logger.With("service", "engine")),
		engine.WithNotifier(notifier(logger, storage.engine, *flWebhook, *flDump)),
		engine.WithScheduler(scheduler),
		engine.WithIDer(uuid.NewOrderedUUID()),
	}
	if metrics != nil {
		eOpts = append(eOpts, engine.WithMetrics(metrics))
	}
	e := engine.New(storage.schema, storage.engine, eOpts...)

	// configure the workflow engine worker (durable auto-advance and reminders)
	var eWorker *engine.Worker
	if *flWorkSec > 0 {
		wOpts := []engine.WorkerOption{
			engine.WithWorkerLogger(logger.With("service", "engine worker")),
			engine.WithWorkerDuration(time.Second * time.Duration(*flWorkSec)),
		}
		if *flRemindSec > 0 {
			wOpts = append(wOpts, engine.WithWorkerReminder(time.Second*time.Duration(*flRemindSec)))
		}
		if metrics != nil {
			wOpts = append(wOpts, engine.WithWorkerMetrics(metrics))
		}
		eWorker = engine.NewWorker(e, storage.engine, wOpts...)
	}

	if *flAPIKey != "" {
		var apiMux enginehttp.Mux = &wrapMux{mux: mux, wrap: func(h http.Handler) http.Handler {
			return nanohttp.NewSimpleBasicAuthHandler(h, apiUsername, *flAPIKey, apiRealm)
		}}
		apiMux = &wrapMux{mux: apiMux, wrap: func(h http.Handler) http.Handler {
			return httpff.LimitBodyHandler(h, *flMaxBody)
		}}
		if *flDump {
			apiMux = &wrapMux{mux: apiMux, wrap: func(h http.Handler) http.Handler {
				return httpff.DumpHandler(h, os.Stdout)
			}}
		}
		handlers(apiMux, logger, e, storage)
	} else {
		logger.Info(logkeys.Message, "no API key provided, API endpoints disabled")
	}

	if eWorker != nil {
		go func() {
			err := eWorker.Run(ctx)
			logs := []interface{}{logkeys.Message, "engine worker stopped"}
			if err != nil {
				logger.Info(append(logs, logkeys.Error, err)...)
				return
			}
			logger.Debug(logs...)
		}()
	}

	if storage.yaml != nil {
		go watchDefinitions(ctx, storage.yaml, logger.With("service", "schema watcher"))
	}

	// seed for newTraceID
	rand.Seed(time.Now().UnixNano())

	logger.Info(logkeys.Message, "starting server", "listen", *flListen)
	err = http.ListenAndServe(*flListen, trace.NewTraceLoggingHandler(mux, logger.With("handler", "log"), newTraceID))
	logs := []interface{}{logkeys.Message, "server shutdown"}
	if err != nil {
		logs = append(logs, logkeys.Error, err)
	}
	logger.Info(logs...)
}

// notifier assembles the engine notifier from the configured sinks.
func notifier(logger log.Logger, store storageeng.ReadSubscriptionStorage, webhookURL string, dump bool) engine.Notifier {
	client := &http.Client{Timeout: 30 * time.Second}
	userAgent := "formflow/" + strings.TrimPrefix(version, "v")
	sinks := notify.Multi{
		notify.Func(notify.NewLogger(logger.With("service", "notify")).Send),
		notify.Func(notify.NewSubscriptions(
			store,
			notify.WithSubscriptionsLogger(logger.With("service", "subscriptions")),
			notify.WithSubscriptionsClient(client),
			notify.WithSubscriptionsHeader("User-Agent", userAgent),
		).Send),
	}
	if webhookURL != "" {
		sinks = append(sinks, notify.Func(notify.NewWebhook(
			webhookURL,
			notify.WithClient(client),
			notify.WithHeader("User-Agent", userAgent),
		).Send))
	}
	var n engine.Notifier = notify.Func(sinks.Send)
	if dump {
		n = notify.Func(notify.NewDumper(n, os.Stdout).Send)
	}
	return n
}

func watchDefinitions(ctx context.Context, dir *yamldir.YAMLDir, logger log.Logger) {
	err := yamldir.NewWatcher(dir, yamldir.WithLogger(logger)).Run(ctx)
	logs := []interface{}{logkeys.Message, "schema watcher stopped"}
	if err != nil {
		logs = append(logs, logkeys.Error, err)
	}
	logger.Info(logs...)
}

// newTraceID generates a new HTTP trace ID for context logging.
// Currently this just makes a random string.
func newTraceID(_ *http.Request) string {
	b := make([]byte, 8)
	rand.Read(b)
	return fmt.Sprintf("%x", b)
}
