// nexusd is the NEXUS server: HTTP admin API, routing config, module
// registry and authz, wired together and served over gin.
//
// Grounded on codeready-toolchain-tarsy/cmd/tarsy/main.go's flag +
// .env + gin.Run shape.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/nexuscore/nexus/admin"
	"github.com/nexuscore/nexus/authz"
	"github.com/nexuscore/nexus/core"
	"github.com/nexuscore/nexus/delegation"
	"github.com/nexuscore/nexus/pipeline"
	"github.com/nexuscore/nexus/routing"
	"github.com/nexuscore/nexus/telemetry"
)

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func main() {
	envPath := flag.String("env-file", getEnv("NEXUS_ENV_FILE", ".env"), "path to .env file")
	flag.Parse()

	if err := godotenv.Load(*envPath); err != nil {
		log.Printf("no .env file loaded from %s, using existing environment: %v", *envPath, err)
	}

	procCfg := core.LoadProcessConfig()
	ginMode := getEnv("GIN_MODE", "release")
	gin.SetMode(ginMode)

	logger := core.NewStructuredLogger()

	tel, err := telemetry.EnableTelemetry("nexusd", getEnv("NEXUS_OTLP_ENDPOINT", ""), logger)
	if err != nil {
		logger.Warn("telemetry disabled", map[string]interface{}{"error": err.Error()})
		tel = &core.NoOpTelemetry{}
	}
	if shutdowner, ok := tel.(interface{ Shutdown(context.Context) error }); ok {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdowner.Shutdown(ctx); err != nil {
				logger.Warn("telemetry shutdown failed", map[string]interface{}{"error": err.Error()})
			}
		}()
	}

	routingMgr, err := routing.NewManager(procCfg.RoutingConfigPath, logger)
	if err != nil {
		log.Fatalf("failed to initialize routing manager: %v", err)
	}

	tierPool := delegation.NewHTTPTierPool(routingMgr.Get(), getEnv("NEXUS_LLM_API_KEY", ""))
	delegationMgr := delegation.New(tierPool, logger, routingMgr.Get(), tel)
	routingMgr.RegisterObserver(delegationMgr.OnConfigChanged)

	registry, err := pipeline.OpenRegistry(procCfg.SQLiteDSN)
	if err != nil {
		log.Fatalf("failed to open module registry: %v", err)
	}
	defer registry.Close()

	authStore, err := authz.OpenStore(getEnv("NEXUS_AUTH_DSN", "data/auth.db"))
	if err != nil {
		log.Fatalf("failed to open auth store: %v", err)
	}
	defer authStore.Close()

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(authz.RequireAuth(authStore, nil))

	admin.NewServer(routingMgr, registry, logger).Register(router)

	httpPort := getEnv("NEXUS_HTTP_PORT", strconv.Itoa(procCfg.AdminPort))
	logger.Info("nexusd starting", map[string]interface{}{"port": httpPort})
	instrumented := telemetry.WrapHandler(router, "nexusd")
	if err := http.ListenAndServe(":"+httpPort, instrumented); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
