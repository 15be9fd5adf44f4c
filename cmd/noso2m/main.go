// Package main implements noso2m, a miner for the Noso cryptocurrency. It
// mines against a pool by default or solo against node consensus with --solo.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/klauspost/cpuid/v2"
	"github.com/spf13/cobra"

	"github.com/bardlex/noso2m/internal/config"
	"github.com/bardlex/noso2m/internal/coordinator"
	"github.com/bardlex/noso2m/internal/mining"
	"github.com/bardlex/noso2m/internal/peer"
	"github.com/bardlex/noso2m/internal/report"
	"github.com/bardlex/noso2m/pkg/log"
)

// version is set at build time
var version = "0.2.4"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "noso2m",
		Short:         "A miner for Nosocryptocurrency Protocol-2",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runMiner(ctx, cfg)
		},
	}

	flags := root.PersistentFlags()
	flags.StringP("config", "c", "", "a TOML configuration file")
	flags.StringP("address", "a", config.DefaultAddress, "an original noso wallet address")
	flags.IntP("minerid", "i", config.DefaultMinerID, "miner id, a number between 0-8100")
	flags.IntP("threads", "t", config.DefaultThreads, "threads count, 2 or more")
	flags.String("pools", config.DefaultPools, "mining pools list")
	flags.Bool("solo", false, "solo mining mode")

	root.AddCommand(newPoolsCmd())
	return root
}

func newPoolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pools",
		Short: "Show pool information of configured pools",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := log.New(cfg.ServiceName, cfg.Version, cfg.LogLevel, cfg.LogFormat)
			client := peer.NewPoolClient(peer.NewTCPTransport(logger), cfg.PoolTimeout, logger)
			showPools(cmd.Context(), cmd.OutOrStdout(), cfg.MiningPools(), client)
			return nil
		},
	}
}

// loadConfig layers the flags the user set over the environment and the
// config file
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cfg.Version == "dev" {
		cfg.Version = version
	}

	flags := cmd.Flags()
	if flags.Changed("config") {
		path, _ := flags.GetString("config")
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	if flags.Changed("address") {
		cfg.Address, _ = flags.GetString("address")
	}
	if flags.Changed("minerid") {
		cfg.MinerID, _ = flags.GetInt("minerid")
	}
	if flags.Changed("threads") {
		cfg.Threads, _ = flags.GetInt("threads")
	}
	if flags.Changed("pools") {
		cfg.Pools, _ = flags.GetString("pools")
	}
	if flags.Changed("solo") {
		cfg.Solo, _ = flags.GetBool("solo")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runMiner(ctx context.Context, cfg *config.Config) error {
	logger := log.New(cfg.ServiceName, cfg.Version, cfg.LogLevel, cfg.LogFormat)
	mode := mining.ModePool
	if cfg.Solo {
		mode = mining.ModeSolo
	}

	nodes, err := cfg.NodePeers()
	if err != nil {
		return err
	}
	pools := cfg.MiningPools()

	logger.Info("starting noso2m",
		"version", cfg.Version,
		"address", cfg.Address,
		"miner_id", cfg.MinerID,
		"threads", cfg.Threads,
		"mode", mode.String(),
	)
	for _, p := range pools {
		logger.Info("mining pool configured", "pool", p.String())
	}
	checkCPU(logger, cfg.Threads)

	transport := peer.NewTCPTransport(logger)
	nodeClient := peer.NewNodeClient(transport, cfg.NodeTimeout, logger)
	poolClient := peer.NewPoolClient(transport, cfg.PoolTimeout, logger)

	if err := coordinator.CheckClock(ctx, nodes, nodeClient, time.Now, logger); err != nil {
		return err
	}

	sinks, err := newSinks(cfg, mode, logger)
	if err != nil {
		return err
	}
	defer sinks.Close()
	sinks.Start(ctx)

	coord, err := coordinator.New(coordinator.Config{
		Address:         cfg.Address,
		MinerID:         uint32(cfg.MinerID),
		Threads:         cfg.Threads,
		Mode:            mode,
		Quorum:          cfg.Quorum,
		VerifySolutions: cfg.VerifySolutions,
	}, nodes, pools, nodeClient, poolClient, sinks.Sink(), logger)
	if err != nil {
		return err
	}

	coord.Run(ctx)
	logger.Info("noso2m stopped", "mined_blocks", coord.State().MinedBlocks())
	return nil
}

// checkCPU warns when more threads are asked for than the CPU has
func checkCPU(logger *log.Logger, threads int) {
	logger.Info("cpu detected",
		"brand", cpuid.CPU.BrandName,
		"physical_cores", cpuid.CPU.PhysicalCores,
		"logical_cores", cpuid.CPU.LogicalCores,
	)
	if cores := cpuid.CPU.LogicalCores; cores > 0 && threads > cores {
		logger.Warn("threads count exceeds logical cores, hashrate will suffer",
			"threads", threads, "logical_cores", cores)
	}
}

// poolInfoAPI is the part of peer.PoolClient the pools command uses
type poolInfoAPI interface {
	Info(ctx context.Context, pool peer.Peer) (*peer.PoolInfo, error)
}

func showPools(ctx context.Context, out io.Writer, pools []peer.Peer, api poolInfoAPI) {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "POOL\tADDRESS\tMINERS\tFEE\tHASHRATE")
	for _, p := range pools {
		info, err := api.Info(ctx, p)
		if err != nil {
			fmt.Fprintf(tw, "%s\t%s\tN/A\tN/A\tN/A\n", p.Name, p.Addr())
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%.2f%%\t%s\n",
			p.Name, p.Addr(), info.Miners, float64(info.Fee)/100, report.FormatHashrate(float64(info.Hashrate)))
	}
	tw.Flush()
}
