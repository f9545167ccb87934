package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/udhos/queuemover/metrics"
	"github.com/udhos/queuemover/mover"
	"github.com/udhos/queuemover/queue"
)

const (
	testTodo      = "https://sqs.us-east-1.amazonaws.com/123456789012/todo"
	testCompleted = "https://sqs.us-east-1.amazonaws.com/123456789012/completed"
)

func validConfig() appConfig {
	return appConfig{
		awsAccessKeyID:         "AKIAEXAMPLE",
		awsSecretAccessKey:     "secret",
		queueURLTodo:           testTodo,
		queueURLCompleted:      testCompleted,
		queueBackend:           backendSQS,
		maxMessages:            5,
		waitSeconds:            2,
		concurrency:            1,
		reportFormat:           mover.FormatNone,
		redisAddr:              "localhost:6379",
		redisVisibilityTimeout: 30 * time.Second,
	}
}

type validateTestCase struct {
	name        string
	change      func(c *appConfig)
	expectError bool
}

var validateTestTable = []validateTestCase{
	{"valid", func(_ *appConfig) {}, false},
	{"missing todo", func(c *appConfig) { c.queueURLTodo = "" }, true},
	{"missing completed", func(c *appConfig) { c.queueURLCompleted = "" }, true},
	{"same queue", func(c *appConfig) { c.queueURLCompleted = c.queueURLTodo }, true},
	{"missing secret", func(c *appConfig) { c.awsSecretAccessKey = "" }, true},
	{"missing key id", func(c *appConfig) { c.awsAccessKeyID = "" }, true},
	{"missing credentials", func(c *appConfig) { c.awsAccessKeyID = ""; c.awsSecretAccessKey = "" }, true},
	{"default credentials", func(c *appConfig) {
		c.awsAccessKeyID = ""
		c.awsSecretAccessKey = ""
		c.awsDefaultCredentials = true
	}, false},
	{"region from env", func(c *appConfig) {
		c.queueURLTodo = "todo"
		c.queueURLCompleted = "completed"
		c.awsRegion = "sa-east-1"
	}, false},
	{"unresolvable region", func(c *appConfig) {
		c.queueURLTodo = "todo"
		c.queueURLCompleted = "completed"
	}, true},
	{"different regions", func(c *appConfig) {
		c.queueURLCompleted = "https://sqs.eu-west-1.amazonaws.com/123456789012/completed"
	}, true},
	{"redis needs no aws credentials", func(c *appConfig) {
		c.queueBackend = backendRedis
		c.awsAccessKeyID = ""
		c.awsSecretAccessKey = ""
		c.queueURLTodo = "todo"
		c.queueURLCompleted = "completed"
	}, false},
	{"redis missing addr", func(c *appConfig) { c.queueBackend = backendRedis; c.redisAddr = "" }, true},
	{"redis bad visibility", func(c *appConfig) { c.queueBackend = backendRedis; c.redisVisibilityTimeout = 0 }, true},
	{"unknown backend", func(c *appConfig) { c.queueBackend = "kafka" }, true},
	{"yaml report", func(c *appConfig) { c.reportFormat = mover.FormatYAML }, false},
	{"unknown report", func(c *appConfig) { c.reportFormat = "xml" }, true},
	{"bad concurrency", func(c *appConfig) { c.concurrency = 0 }, true},
	{"negative interval", func(c *appConfig) { c.interval = -time.Second }, true},
}

// go test -run TestValidate ./cmd/queuemover
func TestValidate(t *testing.T) {
	for _, data := range validateTestTable {
		c := validConfig()
		data.change(&c)
		err := c.validate()
		if data.expectError {
			if !errors.Is(err, errConfiguration) {
				t.Errorf("%s: expecting configuration error, got: %v", data.name, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: unexpected error: %v", data.name, err)
		}
	}
}

// go test -run TestRegion ./cmd/queuemover
func TestRegion(t *testing.T) {
	c := validConfig()

	region, err := c.region()
	if err != nil || region != "us-east-1" {
		t.Errorf("region from queue url: region=%s error=%v", region, err)
	}

	c.awsRegion = "sa-east-1"
	region, err = c.region()
	if err != nil || region != "sa-east-1" {
		t.Errorf("region from env: region=%s error=%v", region, err)
	}
}

func newTestApp(t *testing.T, client queue.Client) *application {
	t.Helper()

	app := &application{
		me:     "queuemover-test",
		config: validConfig(),
		client: client,
		metrics: metrics.New(metrics.Options{
			Registerer: prometheus.NewRegistry(),
		}),
	}

	worker, err := mover.NewWorker(mover.WorkerOptions{
		Client:      client,
		Source:      app.config.queueURLTodo,
		Destination: app.config.queueURLCompleted,
		Metrics:     app.metrics,
	})
	if err != nil {
		t.Fatalf("worker: %v", err)
	}
	app.worker = worker

	return app
}

// go test -run TestRunSingleCycle ./cmd/queuemover
func TestRunSingleCycle(t *testing.T) {
	q := queue.NewMem(10 * time.Second)
	for _, body := range []string{`["alpha","beta"]`, `{"z":1,"a":2}`, `not-json`} {
		q.Send(context.TODO(), testTodo, body, nil)
	}

	app := newTestApp(t, q)

	run(context.TODO(), app)

	if l := q.Len(testTodo); l != 0 {
		t.Errorf("expecting empty to-do queue, got %d", l)
	}
	if l := q.Len(testCompleted); l != 3 {
		t.Errorf("expecting 3 messages in completed queue, got %d", l)
	}
}

// go test -run TestRunStopsOnShutdown ./cmd/queuemover
func TestRunStopsOnShutdown(t *testing.T) {
	q := queue.NewMem(10 * time.Second)
	q.Send(context.TODO(), testTodo, "x", nil)

	app := newTestApp(t, q)
	app.config.interval = time.Hour
	app.config.waitSeconds = 0

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		run(ctx, app)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("run did not stop after shutdown")
	}

	if l := q.Len(testCompleted); l != 1 {
		t.Errorf("in-flight cycle should complete before stopping, got %d", l)
	}
}

// go test -run TestHealth ./cmd/queuemover
func TestHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)

	app := newTestApp(t, queue.NewMem(time.Second))
	app.config.healthPath = "/health"

	s := newServerHealth(app)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expecting status 200, got %d", w.Code)
	}
	if w.Body.String() != "health ok" {
		t.Errorf("unexpected body: %q", w.Body.String())
	}
}
