package main

import (
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	configPath  string
	port        int
	metricsPort int
	journalPath string
	logLevel    string

	modeName    string
	documentIn  string
	documentOut string
	indexBoxes  []string
	paramBoxes  []string
	uniform     int
	showLeaves  bool
	sessionID   string

	rootCmd = &cobra.Command{
		Use:   "hsplines",
		Short: "Hierarchical and truncated hierarchical B-spline bases",
		Long: `hsplines builds adaptively refined hierarchical spline bases. It can
serve them over gRPC with a refinement journal, refine them offline and
inspect stored documents.`,
		SilenceUsage: true,
	}

	// --- Server ---
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HBasis gRPC server",
		Args:  cobra.NoArgs,
		RunE:  runServe, // Defined in cmd_serve.go
	}

	// --- Offline tools ---
	refineCmd = &cobra.Command{
		Use:   "refine",
		Short: "Refine a basis offline and print or store the result",
		Args:  cobra.NoArgs,
		RunE:  runRefine, // Defined in cmd_refine.go
	}
	inspectCmd = &cobra.Command{
		Use:   "inspect [document]",
		Short: "Decode a stored basis document and describe it",
		Args:  cobra.ExactArgs(1),
		RunE:  runInspect, // Defined in cmd_inspect.go
	}
	replayCmd = &cobra.Command{
		Use:   "replay",
		Short: "Rebuild the sessions of a refinement journal",
		Args:  cobra.NoArgs,
		RunE:  runReplay, // Defined in cmd_replay.go
	}
	initConfigCmd = &cobra.Command{
		Use:   "init-config [path]",
		Short: "Write the default configuration file",
		Args:  cobra.ExactArgs(1),
		RunE:  runInitConfig, // Defined in cmd_serve.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level (debug, info, warn, error)")

	serveCmd.Flags().IntVarP(&port, "port", "p", 0, "override server.port")
	serveCmd.Flags().IntVar(&metricsPort, "metrics-port", -1, "override server.metrics_port (0 disables)")
	serveCmd.Flags().StringVar(&journalPath, "journal", "", "override journal.path")

	refineCmd.Flags().StringVar(&modeName, "mode", "", "basis variant (hb or thb), default from the configuration")
	refineCmd.Flags().StringVarP(&documentIn, "in", "i", "", "start from a stored document instead of the configured basis")
	refineCmd.Flags().StringVarP(&documentOut, "out", "o", "", "write the refined basis document to this file")
	refineCmd.Flags().StringArrayVar(&indexBoxes, "box", nil, "index box LEVEL:LO,..:HI,.. refined to LEVEL (repeatable)")
	refineCmd.Flags().StringArrayVar(&paramBoxes, "param", nil, "parameter box LO,..:HI,.. refined at the finest level (repeatable)")
	refineCmd.Flags().IntVar(&uniform, "uniform", 0, "number of uniform refinements applied first")
	refineCmd.Flags().BoolVar(&showLeaves, "leaves", false, "list the tree leaves")

	inspectCmd.Flags().BoolVar(&showLeaves, "leaves", false, "list the tree leaves")

	replayCmd.Flags().StringVar(&journalPath, "journal", "", "journal base path, default from the configuration")
	replayCmd.Flags().StringVar(&sessionID, "session", "", "export this session")
	replayCmd.Flags().StringVarP(&documentOut, "out", "o", "", "file receiving the exported session")
	replayCmd.Flags().BoolVar(&showLeaves, "leaves", false, "list the tree leaves of the exported session")

	rootCmd.AddCommand(serveCmd, refineCmd, inspectCmd, replayCmd, initConfigCmd)
}
