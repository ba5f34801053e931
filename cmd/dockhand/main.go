package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dockhand/dockhand/pkg/config"
	"github.com/dockhand/dockhand/pkg/coordinator"
	"github.com/dockhand/dockhand/pkg/credentials"
	"github.com/dockhand/dockhand/pkg/log"
	"github.com/dockhand/dockhand/pkg/node"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var (
	logLevel string
	logJSON  bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "dockhand",
	Short: "Dockhand - remote control for distributed Docker daemons",
	Long: `Dockhand routes container commands from a REST/WebSocket API to
agents running next to Docker daemons anywhere, over a single
outbound connection per node. No inbound ports on the node side,
no registry, no state to operate.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log.Init(log.Config{Level: log.Level(logLevel), JSONOutput: logJSON})
	},
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Dockhand version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Emit JSON logs instead of console output")

	rootCmd.AddCommand(coordinatorCmd)
	rootCmd.AddCommand(nodeCmd)
	rootCmd.AddCommand(standaloneCmd)
	rootCmd.AddCommand(credentialsCmd)
}

var coordinatorCmd = &cobra.Command{
	Use:   "coordinator",
	Short: "Run the coordinator (RPC endpoint + HTTP API)",
	Long: `Run the coordinator process. Nodes dial the RPC address and hold a
single stream open; users call the HTTP API with a node's credentials
in the query string.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg.ApplyEnv()
		if cmd.Flags().Changed("rpc-addr") {
			cfg.RPC.Addr, _ = cmd.Flags().GetString("rpc-addr")
		}
		if cmd.Flags().Changed("api-addr") {
			cfg.API.Addr, _ = cmd.Flags().GetString("api-addr")
		}

		fmt.Println("Starting Dockhand coordinator...")
		fmt.Printf("  RPC Address: %s\n", cfg.RPC.Addr)
		fmt.Printf("  API Address: %s\n", cfg.API.Addr)
		fmt.Println()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return coordinator.New(cfg, log.WithComponent("coordinator")).Run(ctx)
	},
}

var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Run a node agent next to a Docker daemon",
	Long: `Run the node agent. The agent connects out to the coordinator,
authenticates with its credentials, and serves container commands
against the local Docker daemon. Credentials are generated when not
provided.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		url, _ := cmd.Flags().GetString("coordinator-url")
		if env := os.Getenv("COORDINATOR_URL"); env != "" && !cmd.Flags().Changed("coordinator-url") {
			url = env
		}
		nodeID, _ := cmd.Flags().GetString("node-id")
		password, _ := cmd.Flags().GetString("password")
		var err error
		if nodeID == "" {
			if nodeID, err = credentials.NewNodeID(); err != nil {
				return err
			}
		}
		if password == "" {
			if password, err = credentials.NewPassword(); err != nil {
				return err
			}
		}

		engine, err := node.NewDockerEngine()
		if err != nil {
			return err
		}
		defer engine.Close()

		fmt.Println("Starting Dockhand node agent...")
		fmt.Printf("  Coordinator: %s\n", url)
		fmt.Printf("  Node ID:     %s\n", nodeID)
		fmt.Printf("  Password:    %s\n", password)
		fmt.Println()
		fmt.Println("Query this node through the coordinator, for example:")
		fmt.Printf("  curl 'http://<coordinator>/api/containers?node_id=%s&password=%s'\n", nodeID, password)
		fmt.Println()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		agent := node.NewAgent(node.AgentConfig{
			CoordinatorURL: url,
			NodeID:         nodeID,
			Password:       password,
		}, engine, log.WithNodeID(nodeID))
		if err := agent.Run(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	},
}

var standaloneCmd = &cobra.Command{
	Use:   "standalone",
	Short: "Run a coordinator and a local node agent in one process",
	Long: `Run both halves in one process against the local Docker daemon.
Useful for a single host or for trying Dockhand out.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Default()
		cfg.ApplyEnv()
		if cmd.Flags().Changed("rpc-addr") {
			cfg.RPC.Addr, _ = cmd.Flags().GetString("rpc-addr")
		}
		if cmd.Flags().Changed("api-addr") {
			cfg.API.Addr, _ = cmd.Flags().GetString("api-addr")
		}
		nodeID, err := credentials.NewNodeID()
		if err != nil {
			return err
		}
		password, err := credentials.NewPassword()
		if err != nil {
			return err
		}

		engine, err := node.NewDockerEngine()
		if err != nil {
			return err
		}
		defer engine.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		coord := coordinator.New(cfg, log.WithComponent("coordinator"))
		errCh := make(chan error, 1)
		go func() { errCh <- coord.Run(ctx) }()

		select {
		case <-coord.Ready():
		case err := <-errCh:
			return err
		}

		url := fmt.Sprintf("ws://%s/rpc", coord.RPCAddr())
		fmt.Println("Dockhand standalone is running.")
		fmt.Printf("  API Address: http://%s\n", coord.APIAddr())
		fmt.Printf("  Node ID:     %s\n", nodeID)
		fmt.Printf("  Password:    %s\n", password)
		fmt.Println()
		fmt.Printf("  curl 'http://%s/api/containers?node_id=%s&password=%s'\n",
			coord.APIAddr(), nodeID, password)
		fmt.Println()

		agent := node.NewAgent(node.AgentConfig{
			CoordinatorURL: url,
			NodeID:         nodeID,
			Password:       password,
		}, engine, log.WithNodeID(nodeID))
		go agent.Run(ctx)

		return <-errCh
	},
}

var credentialsCmd = &cobra.Command{
	Use:   "credentials",
	Short: "Generate a node id and password pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		nodeID, err := credentials.NewNodeID()
		if err != nil {
			return err
		}
		password, err := credentials.NewPassword()
		if err != nil {
			return err
		}
		fmt.Printf("Node ID:  %s\n", nodeID)
		fmt.Printf("Password: %s\n", password)
		return nil
	},
}

func init() {
	coordinatorCmd.Flags().String("rpc-addr", config.DefaultRPCAddr, "Address for the node RPC listener")
	coordinatorCmd.Flags().String("api-addr", config.DefaultAPIAddr, "Address for the HTTP API listener")
	coordinatorCmd.Flags().String("config", "", "Path to a YAML config file")

	nodeCmd.Flags().String("coordinator-url", "ws://localhost:50051/rpc", "Coordinator RPC endpoint (env COORDINATOR_URL)")
	nodeCmd.Flags().String("node-id", "", "Node identifier (generated when empty)")
	nodeCmd.Flags().String("password", "", "Node password (generated when empty)")

	standaloneCmd.Flags().String("rpc-addr", config.DefaultRPCAddr, "Address for the node RPC listener")
	standaloneCmd.Flags().String("api-addr", config.DefaultAPIAddr, "Address for the HTTP API listener")
}
