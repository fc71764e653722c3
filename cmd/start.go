package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"firestige.xyz/twinport/internal/chipsim"
	"firestige.xyz/twinport/internal/config"
	"firestige.xyz/twinport/internal/core"
	"firestige.xyz/twinport/internal/engine"
	"firestige.xyz/twinport/internal/log"
	"firestige.xyz/twinport/internal/metrics"
	"firestige.xyz/twinport/internal/spibus"
)

// simProfile resolves the register map the simulator should present; it
// must match what the engine loads.
func simProfile(cfg *config.GlobalConfig) spibus.Profile {
	if cfg.Chip.ProfilePath != "" {
		if p, err := spibus.LoadProfile(cfg.Chip.ProfilePath); err == nil {
			return p
		}
	}
	return spibus.DefaultProfile()
}

var startSim bool

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the switch data plane",
	Long: `
Run the twinport data plane until interrupted.

With --sim (the default and currently only transport) the engine drives the
built-in chip simulator; each physical port is bridged to a UDP socket pair
so external tools can inject and observe traffic.

Examples:
  twinport start                  # defaults, simulator on 127.0.0.1:10001/10002
  twinport start -c config.yml    # explicit configuration
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}
		if err := log.Init(cfg.Log); err != nil {
			return err
		}
		return runEngine(cfg)
	},
}

func init() {
	startCmd.Flags().BoolVar(&startSim, "sim", true, "run against the built-in chip simulator")
}

func runEngine(cfg *config.GlobalConfig) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !startSim {
		return fmt.Errorf("no hardware transport configured; run with --sim")
	}

	sim := chipsim.New(simProfile(cfg))
	sim.SetLink(core.Port1, true)
	sim.SetLink(core.Port2, true)

	bridges := []struct {
		port         core.PortID
		listen, peer string
	}{
		{core.Port1, cfg.Sim.Port1Listen, cfg.Sim.Port1Peer},
		{core.Port2, cfg.Sim.Port2Listen, cfg.Sim.Port2Peer},
	}
	for _, b := range bridges {
		br, err := chipsim.AttachUDP(ctx, sim, b.port, b.listen, b.peer)
		if err != nil {
			return err
		}
		defer br.Close()
	}

	eng, err := engine.New(cfg, sim, sim,
		func(port core.PortID, pkt []byte) {
			slog.Info("host delivery", "ingress", port.String(), "len", len(pkt))
		},
		engine.Hooks{
			OnLinkChange: func(port core.PortID, up bool) {
				slog.Info("carrier change", "port", port.String(), "up", up)
			},
			OnRecovery: func(reason string) {
				slog.Warn("transmit path recovered", "reason", reason)
			},
		})
	if err != nil {
		return err
	}

	if cfg.Metrics.Enabled {
		srv := metrics.NewServer(cfg.Metrics.Addr, cfg.Metrics.Path)
		if err := srv.Start(ctx); err != nil {
			return err
		}
		defer srv.Stop(context.Background())
	}

	if err := eng.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	eng.Stop()

	st := eng.Stats()
	slog.Info("final counters",
		"tx_sent", st.TX.Sent, "tx_dropped", st.TX.Dropped,
		"rx_frames", st.RX.Frames, "rx_errors", st.RX.Errors,
		"fdb_entries", st.Fdb)
	return nil
}
