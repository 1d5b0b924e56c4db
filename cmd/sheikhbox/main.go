/*
Copyright The SheikhBox Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	redisv9 "github.com/redis/go-redis/v9"
	"k8s.io/klog/v2"

	"github.com/sheikhbox/sheikhbox/pkg/chat"
	"github.com/sheikhbox/sheikhbox/pkg/llm/gemini"
	"github.com/sheikhbox/sheikhbox/pkg/redisstore"
	"github.com/sheikhbox/sheikhbox/pkg/sandbox/docker"
	"github.com/sheikhbox/sheikhbox/pkg/server"
	"github.com/sheikhbox/sheikhbox/pkg/sessionmgr"
)

func main() {
	var (
		port                  = flag.String("port", "8000", "SheikhBox API server port")
		enableTLS             = flag.Bool("enable-tls", false, "Enable TLS (HTTPS)")
		tlsCert               = flag.String("tls-cert", "", "Path to TLS certificate file")
		tlsKey                = flag.String("tls-key", "", "Path to TLS key file")
		debug                 = flag.Bool("debug", false, "Enable debug mode")
		maxConcurrentRequests = flag.Int("max-concurrent-requests", 1000, "Maximum number of concurrent requests")
		redisAddr             = flag.String("redis-addr", os.Getenv("REDIS_ADDR"), "Redis address for session records (empty disables Redis)")
	)

	// Initialize klog flags
	klog.InitFlags(nil)

	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	apiKey := os.Getenv("GOOGLE_API_KEY")
	if apiKey == "" {
		klog.Fatal("GOOGLE_API_KEY must be set")
	}
	model := os.Getenv("SHEIKHBOX_MODEL")
	if model == "" {
		model = gemini.DefaultModel
	}

	llmClient, err := gemini.New(ctx, apiKey, model)
	if err != nil {
		klog.Fatalf("Failed to create Gemini client: %v", err)
	}
	defer llmClient.Close()

	provisioner, err := docker.NewProvisioner(docker.ConfigFromEnv())
	if err != nil {
		klog.Fatalf("Failed to create sandbox provisioner: %v", err)
	}

	// Redis keeps session records visible across restarts. Without it
	// the in-process registry still works on its own.
	var records sessionmgr.RecordStore
	if *redisAddr != "" {
		store := redisstore.New(&redisv9.Options{Addr: *redisAddr})
		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		if err := store.Ping(pingCtx); err != nil {
			klog.Fatalf("Failed to connect to Redis at %s: %v", *redisAddr, err)
		}
		pingCancel()
		records = store
		klog.Infof("Session records backed by Redis at %s", *redisAddr)
	}

	sessions := sessionmgr.New(provisioner, records)
	orchestrator := chat.New(sessions, llmClient)

	config := &server.Config{
		Port:                  *port,
		Debug:                 *debug,
		EnableTLS:             *enableTLS,
		TLSCert:               *tlsCert,
		TLSKey:                *tlsKey,
		MaxConcurrentRequests: *maxConcurrentRequests,
	}

	srv, err := server.NewServer(config, sessions, orchestrator)
	if err != nil {
		klog.Fatalf("Failed to create SheikhBox API server: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		klog.Infof("Starting SheikhBox server on port %s", *port)
		if err := srv.Start(ctx); err != nil {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		klog.Info("Received shutdown signal, shutting down gracefully...")
		cancel()
		<-errCh
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		sessions.Shutdown(shutdownCtx)
	case err := <-errCh:
		klog.Fatalf("Server error: %v", err)
	}

	klog.Info("SheikhBox server stopped")
}
