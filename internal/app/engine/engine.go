package engine

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	snapshotconsumer "github.com/myeonghunKMH/MS-DataSchool-project3-sub000/internal/consumer/snapshot"
	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/internal/usecase/bookcache"
	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/internal/usecase/matching"
	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/internal/usecase/notification"
	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/pkg/logger"
)

// Engine composes the snapshot consumer, the book cache, the matcher, and
// the notification hub into one process. New snapshots flow from Kafka into
// the cache; each cache update triggers a matching pass for that market.
type Engine struct {
	cache   *bookcache.Cache
	matcher matching.Matcher
	reader  *snapshotconsumer.Reader
	hub     *notification.Hub
	logger  logger.Interface

	wsPort int
	server *http.Server
	routes []func(*mux.Router)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEngine creates an engine from already-wired components.
func NewEngine(
	cache *bookcache.Cache,
	matcher matching.Matcher,
	reader *snapshotconsumer.Reader,
	hub *notification.Hub,
	logger logger.Interface,
	wsPort int,
) *Engine {
	return &Engine{
		cache:   cache,
		matcher: matcher,
		reader:  reader,
		hub:     hub,
		logger:  logger,
		wsPort:  wsPort,
	}
}

// RegisterRoutes adds extra HTTP routes to the engine's server. Must be
// called before Start.
func (e *Engine) RegisterRoutes(fn func(*mux.Router)) {
	e.routes = append(e.routes, fn)
}

// Start wires the snapshot feed to the matcher and starts the background
// routines.
func (e *Engine) Start(ctx context.Context) error {
	e.ctx, e.cancel = context.WithCancel(ctx)

	e.cache.OnUpdate(func(market string) {
		e.matcher.Trigger(market)
	})

	e.wg.Add(2)
	go e.runConsumer()
	go e.runHub()

	if e.wsPort > 0 {
		router := mux.NewRouter()
		router.HandleFunc("/ws", e.hub.ServeWS)
		for _, fn := range e.routes {
			fn(router)
		}
		e.server = &http.Server{
			Addr:    net.JoinHostPort("", strconv.Itoa(e.wsPort)),
			Handler: router,
		}
		e.wg.Add(1)
		go e.runServer()
	}

	e.logger.Info("engine started")
	return nil
}

// Stop shuts down the engine, waiting for in-flight matching passes and
// background routines to drain. ctx bounds the wait.
func (e *Engine) Stop(ctx context.Context) error {
	if e.cancel != nil {
		e.cancel()
	}
	if e.server != nil {
		_ = e.server.Shutdown(ctx)
	}

	done := make(chan struct{})
	go func() {
		e.matcher.Wait()
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.logger.Info("engine stopped gracefully")
		return nil
	case <-ctx.Done():
		e.logger.Warn("engine stop timeout exceeded")
		return ctx.Err()
	}
}

func (e *Engine) runConsumer() {
	defer e.wg.Done()
	defer e.reader.Close()

	for {
		err := e.reader.Run(e.ctx)
		if e.ctx.Err() != nil {
			return
		}
		if err != nil {
			e.logger.ErrorContext(e.ctx, err, logger.Field{
				Key:   "action",
				Value: "consume_snapshots",
			})
			// Simple backoff before reconnecting to the feed.
			select {
			case <-e.ctx.Done():
				return
			case <-time.After(time.Second):
			}
		}
	}
}

func (e *Engine) runHub() {
	defer e.wg.Done()
	e.hub.Run(e.ctx)
}

func (e *Engine) runServer() {
	defer e.wg.Done()

	e.logger.Info("ws server listening", logger.Field{Key: "port", Value: e.wsPort})
	if err := e.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		e.logger.Error(err, logger.Field{Key: "action", Value: "ws_listen"})
	}
}
