package main

import (
	"context"

	"codeberg.org/freetier/gateway/internal/balance"
	"codeberg.org/freetier/gateway/internal/botdefense"
	"codeberg.org/freetier/gateway/internal/config"
	"codeberg.org/freetier/gateway/internal/keyselect"
	"codeberg.org/freetier/gateway/internal/kvstore"
	"codeberg.org/freetier/gateway/internal/llm"
	"codeberg.org/freetier/gateway/internal/ratelimit"
	"github.com/gin-gonic/gin"
)

// holds all dependencies and state for the gateway
type Server struct {
	config   *config.Config
	store    kvstore.Store
	limiter  *ratelimit.Limiter
	balance  *balance.Checker
	selector *keyselect.Selector
	defense  *botdefense.Defense
	upstream *llm.Client
	burst    gin.HandlerFunc
	router   *gin.Engine

	// stops background maintenance tied to the store
	stopBackground context.CancelFunc
}
