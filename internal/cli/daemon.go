package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/korelabs/kore/internal/engine"
)

func init() {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run scheduled maintenance until interrupted",
		Long: "Run a decay pass for every agent on the configured interval, " +
			"optionally followed by compression. Exposes Prometheus metrics when " +
			"--metrics-addr is set.",
		Run: runDaemon,
	}
	cmd.Flags().String("metrics-addr", "", "Listen address for /metrics (e.g. :9090); empty disables")
	RootCmd.AddCommand(cmd)
}

func runDaemon(cmd *cobra.Command, args []string) {
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

	eng, cfg, err := openEngine()
	if err != nil {
		exitErr("open", err)
	}
	defer eng.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := slog.Default().With("component", "daemon")

	var srv *http.Server
	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv = &http.Server{Addr: metricsAddr, Handler: mux}
		go func() {
			log.Info("metrics listening", "addr", metricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server", "error", err)
			}
		}()
	}

	interval := cfg.Maintenance.DecayInterval
	if interval <= 0 {
		interval = time.Hour
	}
	log.Info("daemon started", "interval", interval, "compress", cfg.Maintenance.CompressOnDecay)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// First pass immediately; subsequent passes on the ticker.
	maintainAll(ctx, eng, cfg.Maintenance.CompressOnDecay, log)
	for {
		select {
		case <-ctx.Done():
			log.Info("daemon stopping")
			if srv != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				_ = srv.Shutdown(shutdownCtx)
				cancel()
			}
			return
		case <-ticker.C:
			maintainAll(ctx, eng, cfg.Maintenance.CompressOnDecay, log)
		}
	}
}

// maintainAll runs one maintenance round across every agent in the store.
// Per-agent failures are logged and do not stop the round.
func maintainAll(ctx context.Context, eng *engine.Engine, compress bool, log *slog.Logger) {
	agents, err := eng.ListAgents(ctx)
	if err != nil {
		log.Error("list agents", "error", err)
		return
	}
	for _, agent := range agents {
		if ctx.Err() != nil {
			return
		}
		// The decay pass cleans up expired records itself.
		if _, err := eng.RunDecayPass(ctx, agent.AgentID); err != nil {
			log.Error("decay pass", "agent", agent.AgentID, "error", err)
		}
		if compress {
			if _, err := eng.RunCompression(ctx, agent.AgentID); err != nil {
				log.Error("compression pass", "agent", agent.AgentID, "error", err)
			}
		}
	}
}
