package providers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/samber/do/v2"

	"github.com/neobackupapp/neobackup-server/internal/api"
	"github.com/neobackupapp/neobackup-server/internal/auth"
	"github.com/neobackupapp/neobackup-server/internal/command"
	"github.com/neobackupapp/neobackup-server/internal/config"
	"github.com/neobackupapp/neobackup-server/internal/logger"
	"github.com/neobackupapp/neobackup-server/internal/mdns"
	"github.com/neobackupapp/neobackup-server/internal/service"
)

// HTTPServerHandle wraps http.Server with Shutdownable.
type HTTPServerHandle struct {
	*http.Server
}

// Shutdown implements do.Shutdownable.
func (h *HTTPServerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Server.Shutdown(ctx)
}

// ProvideHTTPServer provides the HTTP server.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	tokens := do.MustInvoke[*auth.TokenService](i)
	limiter := do.MustInvoke[*CommandLimiterHandle](i)
	dispatcherHandle := do.MustInvoke[*DispatcherHandle](i)

	services := &api.Services{
		Instance: do.MustInvoke[*service.InstanceService](i),
		Schedule: do.MustInvoke[*service.ScheduleService](i),
		Backup:   do.MustInvoke[*service.BackupService](i),
		Extras:   do.MustInvoke[*service.ExtrasService](i),
		Search:   do.MustInvoke[*service.SearchService](i),
		Export:   do.MustInvoke[*service.ExportService](i),
		Commands: do.MustInvoke[*command.Handler](i),
		Status:   dispatcherHandle.Dispatcher,
		Manual:   dispatcherHandle.Dispatcher,
	}

	server := api.NewServer(services, sseHandle.Manager, api.Options{
		Version:        service.Version,
		AuthRequired:   cfg.Auth.Required,
		Tokens:         tokens,
		CommandLimiter: limiter.KeyedRateLimiter,
		CORSOrigins:    cfg.Server.CORSOrigins,
	}, log.Logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in background
	go func() {
		log.Info("HTTP server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("Server failed")
		}
	}()

	log.Info("Server running", "addr", srv.Addr)

	return &HTTPServerHandle{Server: srv}, nil
}

// MDNSServiceHandle wraps mdns.Service with Shutdownable.
type MDNSServiceHandle struct {
	*mdns.Service
	started bool
}

// Shutdown implements do.Shutdownable.
func (h *MDNSServiceHandle) Shutdown() error {
	if h.started && h.Service != nil {
		h.Stop()
	}
	return nil
}

// ProvideMDNSService provides the mDNS advertisement service.
func ProvideMDNSService(i do.Injector) (*MDNSServiceHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	instanceService := do.MustInvoke[*service.InstanceService](i)

	// The instance ID is created on first access regardless of mDNS config.
	instance, err := instanceService.GetInstance(context.Background())
	if err != nil {
		return nil, err
	}
	log.Info("Scheduler instance ready",
		"instance_id", instance.ID,
		"name", instance.Name,
	)

	if !cfg.Discovery.MDNSEnabled {
		log.Info("mDNS advertisement disabled by configuration")
		return &MDNSServiceHandle{Service: nil, started: false}, nil
	}

	svc := mdns.NewService(log.Logger)

	port := 8080
	if _, err := fmt.Sscanf(cfg.Server.Port, "%d", &port); err != nil {
		log.Warn("Failed to parse server port for mDNS, using default", "port", cfg.Server.Port)
	}

	if err := svc.Start(instance, port); err != nil {
		log.WithError(err).Warn("mDNS advertisement unavailable")
		// Non-fatal: containers usually have no avahi daemon.
		return &MDNSServiceHandle{Service: svc, started: false}, nil
	}

	return &MDNSServiceHandle{Service: svc, started: true}, nil
}
