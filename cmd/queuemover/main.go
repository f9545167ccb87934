/*
This is the main package for queuemover.

queuemover drains a to-do queue and relocates every message into a completed
queue. With INTERVAL=0 it runs a single cycle and exits, otherwise it loops
until SIGINT or SIGTERM, serving health and metrics endpoints.
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	_ "github.com/KimMachineGun/automemlimit"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/udhos/queuemover/cmd/queuemover/zlog"
	"github.com/udhos/queuemover/metrics"
	"github.com/udhos/queuemover/mover"
	"github.com/udhos/queuemover/queue"
	"github.com/udhos/queuemover/tracing"
)

const version = "0.1.0"

type application struct {
	me            string
	config        appConfig
	tracing       *tracing.Tracing
	metrics       *metrics.Metrics
	client        queue.Client
	worker        *mover.Worker
	serverHealth  *serverGin
	serverMetrics *serverGin
}

func getVersion(me string) string {
	return fmt.Sprintf("%s version=%s runtime=%s GOOS=%s GOARCH=%s GOMAXPROCS=%d",
		me, version, runtime.Version(), runtime.GOOS, runtime.GOARCH, runtime.GOMAXPROCS(0))
}

func main() {

	var showVersion bool
	flag.BoolVar(&showVersion, "version", showVersion, "show version")
	flag.Parse()

	me := filepath.Base(os.Args[0])

	{
		v := getVersion(me)
		if showVersion {
			fmt.Print(v)
			fmt.Println()
			return
		}
		zlog.Infof("%s", v)
	}

	app := &application{
		me:     me,
		config: newConfig(me),
	}

	zlog.SetDebug(app.config.debug)

	if err := app.config.validate(); err != nil {
		zlog.Fatalf("%v", err)
	}

	//
	// initialize tracing
	//

	{
		t, errTracing := tracing.Init(me, app.config.jaegerURL, zlog.Logger)
		if errTracing != nil {
			zlog.Fatalf("tracing: %v", errTracing)
		}
		app.tracing = t
		defer app.tracing.Shutdown(5 * time.Second)
	}

	app.metrics = metrics.New(metrics.Options{
		Namespace:           app.config.metricsNamespace,
		Registerer:          prometheus.DefaultRegisterer,
		BucketsLatencyHTTP:  app.config.metricsBucketsLatencyHTTP,
		BucketsLatencyQueue: app.config.metricsBucketsLatencyQueue,
	})

	//
	// queue backend and worker
	//

	client, closeClient, errClient := newQueueClient(context.Background(), app)
	if errClient != nil {
		zlog.Fatalf("queue client: %v", errClient)
	}
	defer closeClient()
	app.client = client

	worker, errWorker := mover.NewWorker(mover.WorkerOptions{
		Client:      app.client,
		Source:      app.config.queueURLTodo,
		Destination: app.config.queueURLCompleted,
		Concurrency: app.config.concurrency,
		Logger:      zlog.Logger,
		Tracer:      app.tracing.Tracer("component-mover"),
		Metrics:     app.metrics,
	})
	if errWorker != nil {
		zlog.Fatalf("worker: %v", errWorker)
	}
	app.worker = worker

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if app.config.interval > 0 {
		startServers(app)
		defer shutdownServers(app)
	}

	run(ctx, app)
}

// run executes cycles until the first one (single run) or until ctx is
// done. Each cycle runs detached from ctx so its batch drains completely.
func run(ctx context.Context, app *application) {
	for {
		report := app.worker.RunCycle(context.WithoutCancel(ctx),
			app.config.maxMessages, app.config.waitSeconds)

		if err := report.Write(os.Stdout, app.config.reportFormat); err != nil {
			zlog.Errorf("report: %v", err)
		}

		if dups := report.PossibleDuplicates(); len(dups) > 0 {
			zlog.Warnf("cycle %s: %d possible duplicates in %s: %v",
				report.CycleID, len(dups), report.Destination, dups)
		}

		if app.config.interval == 0 {
			zlog.Infof("interval is %v, exiting after single run", app.config.interval)
			return
		}

		zlog.Debugf("sleeping for %v", app.config.interval)

		select {
		case <-ctx.Done():
			zlog.Infof("received shutdown signal: %v", context.Cause(ctx))
			return
		case <-time.After(app.config.interval):
		}
	}
}

func startServers(app *application) {

	//
	// start health server
	//

	app.serverHealth = newServerHealth(app)
	app.serverHealth.start("health")

	//
	// start metrics server
	//

	app.serverMetrics = newServerGin(app.config.metricsAddr)

	prom := promhttp.Handler()
	zlog.Infof("registering route: %s %s", app.config.metricsAddr, app.config.metricsPath)
	app.serverMetrics.router.GET(app.config.metricsPath, func(c *gin.Context) {
		prom.ServeHTTP(c.Writer, c.Request)
	})

	app.serverMetrics.start("metrics")
}

func newServerHealth(app *application) *serverGin {
	s := newServerGin(app.config.healthAddr, serverMiddlewares(app)...)

	zlog.Infof("registering route: %s %s", app.config.healthAddr, app.config.healthPath)
	s.router.GET(app.config.healthPath, func(c *gin.Context) {
		c.String(http.StatusOK, "health ok")
	})

	return s
}

func shutdownServers(app *application) {
	const timeout = 5 * time.Second
	app.serverHealth.shutdown(timeout)
	app.serverMetrics.shutdown(timeout)
	zlog.Infof("exiting")
}
