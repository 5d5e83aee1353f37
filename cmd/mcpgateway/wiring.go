package main

import (
	"net/http"
	"sync"
	"time"

	"mcpgateway/internal/elicit"
	"mcpgateway/internal/logs"
	"mcpgateway/internal/sessionstore"
)

// defaultLogConfig mirrors the teacher's runServer default when no
// [logging] section is configured: console output at the given level,
// plus a rotating file only when toFile is set.
func defaultLogConfig(level string, toFile bool, dir string) *logs.LogConfig {
	return &logs.LogConfig{
		Level:         level,
		EnableFile:    toFile,
		EnableConsole: true,
		Filename:      "mcpgateway.log",
		LogDir:        dir,
		MaxSize:       10,
		MaxBackups:    5,
		MaxAge:        30,
		Compress:      true,
	}
}

// newHTTPServer applies the teacher's internal/server/server.go timeout
// budget to the gateway's single-endpoint handler.
func newHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 60 * time.Second,
		ReadTimeout:       120 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       180 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
}

// elicitBrokerCache lazily creates and memoizes one elicit.Broker per
// session, all sharing the node's session store (spec 4.7: "at most one
// pending elicit per session").
type elicitBrokerCache struct {
	store *sessionstore.Store

	mu      sync.Mutex
	brokers map[string]*elicit.Broker
}

func newElicitBrokerCache(store *sessionstore.Store) *elicitBrokerCache {
	return &elicitBrokerCache{store: store, brokers: make(map[string]*elicit.Broker)}
}

func (c *elicitBrokerCache) forSession(sessionID string) *elicit.Broker {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.brokers[sessionID]
	if !ok {
		b = elicit.NewBroker(c.store)
		c.brokers[sessionID] = b
	}
	return b
}
