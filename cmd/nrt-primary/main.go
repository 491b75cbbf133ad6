package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fidato13/nrtsearch/pkg/index"
	"github.com/fidato13/nrtsearch/pkg/logging"
	"github.com/fidato13/nrtsearch/pkg/metrics"
	"github.com/fidato13/nrtsearch/pkg/nrt"
	"github.com/fidato13/nrtsearch/pkg/transport"
	"github.com/fidato13/nrtsearch/pkg/upload"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	flag.Parse()

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewJSONLogger(os.Stdout, logging.ParseLevel(cfg.LogLevel))
	logging.SetDefaultLogger(logger)
	reg := metrics.NewRegistry()

	if err := run(cfg, logger, reg); err != nil {
		logger.Error("nrt-primary exited with error", logging.Error(err))
		os.Exit(1)
	}
}

func run(cfg *Config, logger logging.Logger, reg *metrics.Registry) error {
	store, err := newBlobStore(cfg)
	if err != nil {
		return err
	}

	writer, err := index.NewLocalWriter(cfg.DataDir, cfg.PrimaryGen)
	if err != nil {
		return err
	}

	queueCfg := upload.DefaultQueueConfig(writer.IndexID())
	queueCfg.Logger = logger
	queueCfg.Metrics = reg
	uploads, err := upload.NewQueue(store, queueCfg)
	if err != nil {
		return err
	}

	settings := nrt.NewSettingsHolder(cfg.Settings)
	primary, err := nrt.NewPrimaryNode(nrt.PrimaryNodeConfig{
		IndexName:  cfg.IndexName,
		IndexID:    writer.IndexID(),
		PrimaryGen: cfg.PrimaryGen,
		Writer:     writer,
		Settings:   settings,
		Uploads:    uploads,
		Logger:     logger,
		Metrics:    reg,
	})
	if err != nil {
		return err
	}
	writer.SetPreCopyHook(primary.PreCopyMergedSegmentFiles)
	primary.SetRAMBufferSizeMB(cfg.Settings.RAMBufferSizeMB)

	manager, err := nrt.NewPrimaryRefreshManager(primary)
	if err != nil {
		return err
	}

	stopRefresh := make(chan struct{})
	go refreshLoop(manager, cfg.RefreshInterval, stopRefresh, logger)

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: newHandler(primary, manager, writer, reg),
	}
	go func() {
		logger.Info("http server listening", logging.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", logging.Error(err))
		}
	}()

	logger.Info("nrt primary started",
		logging.IndexName(cfg.IndexName),
		logging.PrimaryGen(cfg.PrimaryGen))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	close(stopRefresh)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	server.Shutdown(shutdownCtx)

	if err := manager.Close(); err != nil {
		logger.Warn("error closing refresh manager", logging.Error(err))
	}
	return primary.Close()
}

func newBlobStore(cfg *Config) (upload.BlobStore, error) {
	switch cfg.Upload.Backend {
	case "s3":
		return upload.NewS3Store(context.Background(), cfg.Upload.Bucket, cfg.Upload.Prefix)
	default:
		return upload.NewDirStore(cfg.Upload.Dir)
	}
}

func refreshLoop(manager *nrt.PrimaryRefreshManager, interval time.Duration, stop <-chan struct{}, logger logging.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if _, err := manager.MaybeRefresh(); err != nil {
				logger.Warn("refresh failed", logging.Error(err))
			}
		}
	}
}

type addReplicaRequest struct {
	ReplicaID int    `json:"replicaId"`
	Host      string `json:"host"`
	Port      int    `json:"port"`
}

func newHandler(primary *nrt.PrimaryNode, manager *nrt.PrimaryRefreshManager, writer *index.LocalWriter, reg *metrics.Registry) http.Handler {
	mux := http.NewServeMux()
	factory := transport.NewMangosSocketFactory()

	mux.Handle("/metrics", promhttp.HandlerFor(reg.GetPrometheusRegistry(), promhttp.HandlerOpts{}))

	mux.HandleFunc("GET /replicas", func(w http.ResponseWriter, r *http.Request) {
		type replicaInfo struct {
			ReplicaID int    `json:"replicaId"`
			Host      string `json:"host"`
			Port      int    `json:"port"`
		}
		nodes := primary.GetNodesInfo()
		out := make([]replicaInfo, 0, len(nodes))
		for _, n := range nodes {
			out = append(out, replicaInfo{
				ReplicaID: n.ReplicaID,
				Host:      n.HostPort.HostName,
				Port:      n.HostPort.Port,
			})
		}
		writeJSON(w, http.StatusOK, out)
	})

	mux.HandleFunc("POST /replicas", func(w http.ResponseWriter, r *http.Request) {
		var req addReplicaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		client, err := transport.NewClient(factory, transport.ClientConfig{
			Host: req.Host,
			Port: req.Port,
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		if err := primary.AddReplica(req.ReplicaID, client); err != nil {
			client.Close()
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("POST /documents", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := writer.AddDocument(body); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})

	mux.HandleFunc("POST /refresh/durable", func(w http.ResponseWriter, r *http.Request) {
		future := manager.NextRefreshDurable()
		if err := future.Wait(); err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
