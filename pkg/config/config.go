// pkg/config/config.go
package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env        string
	UserAddr   string // user-service
	TenantAddr string // tenant-service
	RegAddr    string // registration-service

	// AWS (identity domain, federated broker, role store, record tables)
	AWSRegion      string
	AWSEndpointURL string // LocalStack-style override; empty in real deployments

	// DynamoDB table names
	TableUser    string
	TableTenant  string
	TableProduct string
	TableOrder   string

	// IAM role namespace, e.g. "SaaS" -> SaaS_<tenant>_AdminRole
	RolePrefix string

	// Peer service endpoints
	TokenServiceURL  string
	UserServiceURL   string
	TenantServiceURL string

	// Workflow bounds
	StepTimeout      time.Duration
	WorkflowDeadline time.Duration

	// Redis & Postgres
	RedisURL    string
	DatabaseURL string
}

func Load() Config {
	_ = godotenv.Load()
	cfg := Config{
		Env:              env("SAASID_ENV", "dev"),
		UserAddr:         env("USER_HTTP_ADDR", ":8080"),
		TenantAddr:       env("TENANT_HTTP_ADDR", ":8081"),
		RegAddr:          env("REG_HTTP_ADDR", ":8082"),
		AWSRegion:        env("AWS_DEFAULT_REGION", "us-east-1"),
		AWSEndpointURL:   env("AWS_ENDPOINT_URL", ""),
		TableUser:        env("TABLE_NAME_USER", "users"),
		TableTenant:      env("TABLE_NAME_TENANT", "tenants"),
		TableProduct:     env("TABLE_NAME_PRODUCT", "products"),
		TableOrder:       env("TABLE_NAME_ORDER", "orders"),
		RolePrefix:       env("ROLE_PREFIX", "SaaS"),
		TokenServiceURL:  env("SERVICE_ENDPOINT_TOKEN", "http://localhost:8083"),
		UserServiceURL:   env("SERVICE_ENDPOINT_USER", "http://localhost:8080"),
		TenantServiceURL: env("SERVICE_ENDPOINT_TENANT", "http://localhost:8081"),
		StepTimeout:      envDur("STEP_TIMEOUT_SEC", 30) * time.Second,
		WorkflowDeadline: envDur("WORKFLOW_DEADLINE_SEC", 300) * time.Second,
		RedisURL:         env("REDIS_URL", ""),
		DatabaseURL:      env("DATABASE_URL", ""),
	}
	if cfg.DatabaseURL == "" {
		log.Println("[WARN] DATABASE_URL not set; workflow journal disabled")
	}
	if cfg.RedisURL == "" {
		log.Println("[WARN] REDIS_URL not set; tenant leases are process-local only")
	}
	return cfg
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envDur(k string, def int) time.Duration {
	if v := os.Getenv(k); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return time.Duration(i)
		}
	}
	return time.Duration(def)
}
