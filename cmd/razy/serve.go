package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/razy-go/razy"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

// HTTPPayload is the transport payload attached to handler contexts by
// the serve front end. Route handlers recover it with razy.PayloadFrom.
type HTTPPayload struct {
	Writer  http.ResponseWriter
	Request *http.Request
}

func newServeCmd() *cobra.Command {
	var addr string
	var debug bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve HTTP requests through the dispatch tree",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(debug)
			config, err := loadAppConfig()
			if err != nil {
				return err
			}

			cache := razy.NewRouteCache()
			plugins := razy.NewPluginManager()
			subject := razy.NewEventSubject(logger)

			newApp := func(host string) *razy.Application {
				return razy.NewApplication(flagRoot, config, host,
					razy.WithAppLogger(logger),
					razy.WithRegistry(controllers),
					razy.WithPlugins(plugins),
					razy.WithCache(cache),
					razy.WithObservers(subject),
				)
			}

			stop, err := newApp("").WatchConfig(distConfigPaths(config)...)
			if err != nil {
				logger.Warn("Config watching disabled", "error", err)
			} else {
				defer stop()
			}

			scheduler, err := startSchedules(config, newApp, logger)
			if err != nil {
				return err
			}
			if scheduler != nil {
				defer scheduler.Stop()
			}

			router := chi.NewRouter()
			router.Use(middleware.RequestID)
			router.Use(middleware.Recoverer)
			router.Handle("/*", dispatchHandler(newApp, logger))

			logger.Info("Listening", "addr", addr)
			return http.ListenAndServe(addr, router)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", ":8080", "listen address")
	cmd.Flags().BoolVar(&debug, "debug", false, "debug logging")
	return cmd
}

// dispatchHandler builds one fresh Application per request, scoped to the
// request host, and maps dispatch outcomes onto HTTP statuses.
func dispatchHandler(newApp func(host string) *razy.Application, logger razy.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		host := r.Host
		if h, _, err := net.SplitHostPort(host); err == nil {
			host = h
		}

		app := newApp(host)
		ctx := razy.WithPayload(r.Context(), &HTTPPayload{Writer: w, Request: r})

		matched, err := app.Dispatch(ctx, r.URL.Path)
		switch {
		case errors.Is(err, razy.ErrDomainNotFound), errors.Is(err, razy.ErrDistributorNotFound):
			http.NotFound(w, r)
		case errors.Is(err, razy.ErrAccessDenied):
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		case err != nil:
			logger.Error("Dispatch failed", "host", host, "path", r.URL.Path, "error", err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		case !matched:
			http.NotFound(w, r)
		}
	}
}

// startSchedules wires every distributor's schedule table into a cron
// runner. Each tick resolves a fresh Application, keeping scheduled
// scripts under the same request-scoped discipline as HTTP dispatch.
func startSchedules(config *razy.AppConfig, newApp func(host string) *razy.Application, logger razy.Logger) (*cron.Cron, error) {
	scheduler := cron.New()
	scheduled := 0

	for fqdn, domain := range config.Domains {
		for _, site := range domain.Sites {
			folder := site.Folder
			if !filepath.IsAbs(folder) {
				folder = filepath.Join(flagRoot, folder)
			}
			distConfig, _, err := razy.LoadDistConfig(filepath.Join(folder, razy.DistConfigFile))
			if err != nil {
				logger.Warn("Skipping schedules of unreadable config", "folder", folder, "error", err)
				continue
			}

			for spec, script := range distConfig.Schedule {
				fqdn, mountPath, script := fqdn, site.Path, script
				_, err := scheduler.AddFunc(spec, func() {
					app := newApp(fqdn)
					matched, err := app.RunScript(context.Background(), mountPath, script, nil)
					if err != nil {
						logger.Error("Scheduled script failed", "host", fqdn, "script", script, "error", err)
					} else if !matched {
						logger.Warn("Scheduled script not registered", "host", fqdn, "script", script)
					}
				})
				if err != nil {
					logger.Warn("Invalid schedule spec", "spec", spec, "script", script, "error", err)
					continue
				}
				scheduled++
			}
		}
	}

	if scheduled == 0 {
		return nil, nil
	}
	scheduler.Start()
	logger.Info("Schedules started", "count", scheduled)
	return scheduler, nil
}

func distConfigPaths(config *razy.AppConfig) []string {
	var paths []string
	for _, domain := range config.Domains {
		for _, site := range domain.Sites {
			folder := site.Folder
			if !filepath.IsAbs(folder) {
				folder = filepath.Join(flagRoot, folder)
			}
			paths = append(paths, filepath.Join(folder, razy.DistConfigFile))
		}
	}
	return paths
}
