package main

import (
	"flag"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ShivamSoni20/sol-gift/config"
	"github.com/ShivamSoni20/sol-gift/core"
	"github.com/ShivamSoni20/sol-gift/crypto"
	"github.com/ShivamSoni20/sol-gift/observability/logging"
	"github.com/ShivamSoni20/sol-gift/rpc"
	"github.com/ShivamSoni20/sol-gift/storage"
)

const nodePassEnv = "GIFT_NODE_PASS"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	devFund := flag.String("dev-fund", "", "DEV ONLY: comma-separated addr=amount pairs credited at startup")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("GIFT_ENV"))

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger := logging.SetupWithOptions("giftd", env, logging.Options{
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
	})

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	nodeKey, err := crypto.LoadFromKeystore(cfg.NodeKeystorePath, os.Getenv(nodePassEnv))
	if err != nil {
		panic(fmt.Sprintf("Failed to load node key: %v", err))
	}

	node := core.NewNode(db)
	logger.Info("gift node starting",
		"network", cfg.NetworkName,
		"address", nodeKey.PubKey().Address().String(),
		"data_dir", cfg.DataDir,
	)

	if *devFund != "" {
		if err := applyDevFunding(node, *devFund); err != nil {
			panic(fmt.Sprintf("Failed to apply dev funding: %v", err))
		}
	}

	if addr := strings.TrimSpace(cfg.MetricsAddress); addr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.Error("metrics listener failed", "error", err)
			}
		}()
		logger.Info("metrics listening", "address", addr)
	}

	server := rpc.NewServer(node)
	if err := server.Start(cfg.RPCAddress); err != nil {
		panic(fmt.Sprintf("RPC server failed: %v", err))
	}
}

// applyDevFunding credits local accounts from addr=amount pairs so scenarios
// can run against a fresh data directory.
func applyDevFunding(node *core.Node, spec string) error {
	for _, pair := range strings.Split(spec, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("malformed funding entry %q", pair)
		}
		addr, err := crypto.DecodeAddress(strings.TrimSpace(parts[0]))
		if err != nil {
			return fmt.Errorf("funding entry %q: %w", pair, err)
		}
		amount, ok := new(big.Int).SetString(strings.TrimSpace(parts[1]), 10)
		if !ok || amount.Sign() <= 0 {
			return fmt.Errorf("funding entry %q: amount must be a positive integer", pair)
		}
		if err := node.SetAccountBalance(addr.Bytes(), amount); err != nil {
			return fmt.Errorf("funding entry %q: %w", pair, err)
		}
	}
	return nil
}
