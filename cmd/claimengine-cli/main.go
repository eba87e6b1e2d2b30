// claimengine-cli - Command-line interface for claim-engine operations.
//
// This tool provides administrative operations for the claim engine:
// - Channel inspection (get)
// - Manual consolidation of a channel's staged records (consolidate)
// - One-off estimate-sweep runs across every channel (estimate)
// - Out-of-band claim admission and estimate/exact reconciliation (claim, reconcile)
// - Pure cost pricing (cost)
//
// Usage:
//
//	claimengine-cli channel get --cid <cid>
//	claimengine-cli consolidate run --cid <cid>
//	claimengine-cli estimate sweep
//	claimengine-cli claim validate --claim-json <json> --estimate <drops> --destination <account>
//	claimengine-cli reconcile store-exact --claim-json <json> --exact-cost <drops>
//	claimengine-cli cost estimate --runtime-ms <ms> --machine-type <name> --request-bytes <n> --response-bytes <n>
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dhali/claimengine/internal/config"
	"github.com/dhali/claimengine/internal/consolidator"
	"github.com/dhali/claimengine/internal/cost"
	"github.com/dhali/claimengine/internal/ledgerclient/jsonrpc"
	"github.com/dhali/claimengine/internal/ratelimit"
	"github.com/dhali/claimengine/internal/reconciler"
	"github.com/dhali/claimengine/internal/record"
	"github.com/dhali/claimengine/internal/scheduler"
	"github.com/dhali/claimengine/internal/store"
	"github.com/dhali/claimengine/internal/store/postgres"
	"github.com/dhali/claimengine/internal/validator"
)

var (
	// Version is set during build.
	Version = "dev"

	// Global flags
	postgresURL string
	useMemory   bool
	verbose     bool

	// Store instance, initialized once per invocation.
	backingStore store.TransactionalStore
	pgStore      *postgres.Store

	// cfg is loaded once in main and read by command builders that need
	// pricing or ledger-endpoint defaults.
	cfg *config.Config
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg = config.Load()

	rootCmd := &cobra.Command{
		Use:           "claimengine-cli",
		Short:         "claimengine-cli - Command-line interface for claim-engine operations",
		Long:          "claimengine-cli provides administrative operations for the Dhali-style claim validation engine.\n\nOperations include channel inspection, manual consolidation, and estimate sweeps.",
		Version:       Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			} else {
				zerolog.SetGlobalLevel(zerolog.InfoLevel)
			}

			if cmd.Name() == "version" || cmd.Name() == "help" {
				return nil
			}

			if useMemory {
				backingStore = store.NewMemoryStore()
				return nil
			}

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			s, err := postgres.Open(ctx, postgresURL)
			if err != nil {
				return fmt.Errorf("failed to connect to store: %w", err)
			}
			pgStore = s
			backingStore = s
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if pgStore != nil {
				pgStore.Close()
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&postgresURL, "postgres-url", cfg.PostgresURL, "PostgreSQL connection URL")
	rootCmd.PersistentFlags().BoolVar(&useMemory, "memory", false, "Use an ephemeral in-memory store instead of PostgreSQL (testing only)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")

	rootCmd.AddCommand(channelCmd())
	rootCmd.AddCommand(consolidateCmd())
	rootCmd.AddCommand(estimateCmd())
	rootCmd.AddCommand(claimCmd())
	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(costCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// channelCmd creates the channel command group.
func channelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "channel",
		Short: "Channel inspection",
		Long:  "Inspect a channel's private and public accounting records.",
	}

	getCmd := &cobra.Command{
		Use:   "get",
		Short: "Get a channel's private and public records",
		RunE: func(cmd *cobra.Command, args []string) error {
			cid, _ := cmd.Flags().GetString("cid")

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			var priv record.PrivateChannelRecord
			var pub record.PublicChannelRecord
			var privFound, pubFound bool

			err := backingStore.RunTransaction(ctx, func(ctx context.Context, tx store.Transaction) error {
				privSnap, err := tx.Get(store.Doc("payment_channels", cid))
				if err != nil {
					return err
				}
				if privFound = privSnap.Exists(); privFound {
					if err := privSnap.DataTo(&priv); err != nil {
						return err
					}
				}

				pubSnap, err := tx.Get(store.Doc("public_claim_info", cid))
				if err != nil {
					return err
				}
				if pubFound = pubSnap.Exists(); pubFound {
					if err := pubSnap.DataTo(&pub); err != nil {
						return err
					}
				}
				return nil
			})
			if err != nil {
				return fmt.Errorf("failed to read channel: %w", err)
			}

			printJSON(map[string]interface{}{
				"cid":            cid,
				"private_found":  privFound,
				"private_record": priv,
				"public_found":   pubFound,
				"public_record":  pub,
			})
			return nil
		},
	}
	getCmd.Flags().String("cid", "", "Channel document id (required)")
	getCmd.MarkFlagRequired("cid")

	cmd.AddCommand(getCmd)
	return cmd
}

// consolidateCmd creates the consolidate command group.
func consolidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "consolidate",
		Short: "Manual consolidation operations",
		Long:  "Manually trigger consolidation of a single channel's staged records.",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Consolidate one channel's staged records from one subcollection (estimate or exact)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cid, _ := cmd.Flags().GetString("cid")
			subcollection, _ := cmd.Flags().GetString("subcollection")

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()

			sourcePath := "payment_channels/" + cid + "/" + subcollection
			sources, err := backingStore.ListCollection(ctx, sourcePath)
			if err != nil {
				return fmt.Errorf("failed to list staged records: %w", err)
			}
			if len(sources) == 0 {
				log.Info().Str("cid", cid).Str("subcollection", subcollection).Msg("no staged records found, nothing to consolidate")
				return nil
			}

			privTarget := store.Doc("payment_channels", cid)
			pubTarget := store.Doc("public_claim_info", cid)
			if err := consolidator.Consolidate(ctx, backingStore, sources, privTarget, pubTarget); err != nil {
				return fmt.Errorf("consolidation failed: %w", err)
			}

			log.Info().Str("cid", cid).Int("sources_folded", len(sources)).Msg("consolidation complete")
			return nil
		},
	}
	runCmd.Flags().String("cid", "", "Channel document id (required)")
	runCmd.Flags().String("subcollection", "estimate", "Subcollection to consolidate (estimate or exact)")
	runCmd.MarkFlagRequired("cid")

	cmd.AddCommand(runCmd)
	return cmd
}

// estimateCmd creates the estimate command group.
func estimateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Estimate sweep operations",
		Long:  "Run the periodic consolidation sweep across every channel once, out of band.",
	}

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run a single consolidation sweep across every channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()

			sched := scheduler.New(backingStore, log.Logger)
			if err := sched.RunOnce(ctx); err != nil {
				return fmt.Errorf("sweep failed: %w", err)
			}
			log.Info().Msg("sweep complete")
			return nil
		},
	}

	cmd.AddCommand(sweepCmd)
	return cmd
}

// claimCmd creates the claim command group: out-of-band admission of a
// claim against spec §4.5's validator, for operators reproducing or
// replaying what the HTTP invocation surface does in production.
func claimCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "claim",
		Short: "Claim admission",
		Long:  "Validate or check a claim against the channel's accounting records and the ledger.",
	}

	newValidator := func() *validator.Validator {
		return &validator.Validator{
			Store:   backingStore,
			Ledger:  jsonrpc.New(cfg.LedgerRPCEndpoint),
			Limiter: ratelimit.Limiter{Strategy: ratelimit.StagedClaimBuffer{Limit: cfg.StagedBufferLimit, Window: cfg.RateLimitWindow}},
		}
	}

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Admit a claim, persisting its updated channel totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			claimJSON, _ := cmd.Flags().GetString("claim-json")
			estimate, _ := cmd.Flags().GetInt64("estimate")
			destination, _ := cmd.Flags().GetString("destination")

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			newToClaim, err := newValidator().ValidateClaim(ctx, []byte(claimJSON), estimate, destination, cfg.SettleDelay)
			if err != nil {
				return fmt.Errorf("claim rejected: %w", err)
			}
			printJSON(map[string]interface{}{"admitted": true, "to_claim": newToClaim})
			return nil
		},
	}
	validateCmd.Flags().String("claim-json", "", "The claim, as raw JSON (required)")
	validateCmd.Flags().Int64("estimate", 0, "Estimated cost in drops for this request")
	validateCmd.Flags().String("destination", "", "Expected destination_account (required)")
	validateCmd.MarkFlagRequired("claim-json")
	validateCmd.MarkFlagRequired("destination")

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Run admission checks without persisting any change",
		RunE: func(cmd *cobra.Command, args []string) error {
			claimJSON, _ := cmd.Flags().GetString("claim-json")
			estimate, _ := cmd.Flags().GetInt64("estimate")
			destination, _ := cmd.Flags().GetString("destination")

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if err := newValidator().ThrowIfClaimInvalid(ctx, []byte(claimJSON), estimate, destination, cfg.SettleDelay); err != nil {
				return fmt.Errorf("claim rejected: %w", err)
			}
			printJSON(map[string]interface{}{"admitted": true})
			return nil
		},
	}
	checkCmd.Flags().String("claim-json", "", "The claim, as raw JSON (required)")
	checkCmd.Flags().Int64("estimate", 0, "Estimated cost in drops for this request")
	checkCmd.Flags().String("destination", "", "Expected destination_account (required)")
	checkCmd.MarkFlagRequired("claim-json")
	checkCmd.MarkFlagRequired("destination")

	cmd.AddCommand(validateCmd, checkCmd)
	return cmd
}

// reconcileCmd creates the reconcile command group, exposing spec §4.6's
// three estimate/exact bookkeeping operations.
func reconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Estimate/exact reconciliation",
		Long:  "Fold a measured exact cost back into a channel, append an exact-cost record, or promote a staged estimate to exact.",
	}

	r := func() *reconciler.Reconciler { return &reconciler.Reconciler{Store: backingStore} }

	updateCmd := &cobra.Command{
		Use:   "update-exact",
		Short: "Replace an already-admitted estimate with its measured exact cost",
		RunE: func(cmd *cobra.Command, args []string) error {
			claimJSON, _ := cmd.Flags().GetString("claim-json")
			estimateCost, _ := cmd.Flags().GetInt64("estimate-cost")
			exactCost, _ := cmd.Flags().GetInt64("exact-cost")

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if err := r().UpdateEstimatedCostWithExact(ctx, []byte(claimJSON), estimateCost, exactCost); err != nil {
				return fmt.Errorf("reconcile failed: %w", err)
			}
			printJSON(map[string]interface{}{"reconciled": true})
			return nil
		},
	}
	updateCmd.Flags().String("claim-json", "", "The claim, as raw JSON (required)")
	updateCmd.Flags().Int64("estimate-cost", 0, "The provisional estimate cost that was admitted")
	updateCmd.Flags().Int64("exact-cost", 0, "The measured exact cost to replace it with")
	updateCmd.MarkFlagRequired("claim-json")

	storeExactCmd := &cobra.Command{
		Use:   "store-exact",
		Short: "Append a new exact-cost record and print its generated RID",
		RunE: func(cmd *cobra.Command, args []string) error {
			claimJSON, _ := cmd.Flags().GetString("claim-json")
			exactCost, _ := cmd.Flags().GetInt64("exact-cost")

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			rid, err := r().StoreExactClaim(ctx, []byte(claimJSON), exactCost)
			if err != nil {
				return fmt.Errorf("store-exact failed: %w", err)
			}
			printJSON(map[string]interface{}{"rid": rid})
			return nil
		},
	}
	storeExactCmd.Flags().String("claim-json", "", "The claim, as raw JSON (required)")
	storeExactCmd.Flags().Int64("exact-cost", 0, "The measured exact cost for this request")
	storeExactCmd.MarkFlagRequired("claim-json")

	promoteCmd := &cobra.Command{
		Use:   "promote",
		Short: "Promote a staged estimate record to exact, by RID",
		RunE: func(cmd *cobra.Command, args []string) error {
			claimJSON, _ := cmd.Flags().GetString("claim-json")
			rid, _ := cmd.Flags().GetString("rid")
			exactCost, _ := cmd.Flags().GetInt64("exact-cost")

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if err := r().ValidateExactClaim(ctx, []byte(claimJSON), rid, exactCost); err != nil {
				return fmt.Errorf("promote failed: %w", err)
			}
			printJSON(map[string]interface{}{"promoted": true})
			return nil
		},
	}
	promoteCmd.Flags().String("claim-json", "", "The claim, as raw JSON (required)")
	promoteCmd.Flags().String("rid", "", "The estimate record's RID (required)")
	promoteCmd.Flags().Int64("exact-cost", 0, "The measured exact cost to overwrite the estimate with")
	promoteCmd.MarkFlagRequired("claim-json")
	promoteCmd.MarkFlagRequired("rid")

	cmd.AddCommand(updateCmd, storeExactCmd, promoteCmd)
	return cmd
}

// costCmd creates the cost command group: pure pricing, no store or ledger
// dependency, useful for operators sanity-checking a deployment's pricing
// constants against a sample request.
func costCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cost",
		Short: "Pricing calculations",
	}

	estimateCostCmd := &cobra.Command{
		Use:   "estimate",
		Short: "Compute the drops cost of one request given its measured usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			runtimeMS, _ := cmd.Flags().GetFloat64("runtime-ms")
			machineType, _ := cmd.Flags().GetString("machine-type")
			requestBytes, _ := cmd.Flags().GetInt64("request-bytes")
			responseBytes, _ := cmd.Flags().GetInt64("response-bytes")

			costCfg := cost.Config{
				PricePerGiBSecond: cfg.PricePerGiBSecond,
				FudgeFactor:       cfg.FudgeFactor,
				DropsPerDollar:    cfg.DollarsToDropsRate,
				MachineClasses:    cfg.MachineClasses,
			}

			dollars, err := cost.DollarsForRequest(costCfg, runtimeMS, machineType, requestBytes, responseBytes)
			if err != nil {
				return fmt.Errorf("cost computation failed: %w", err)
			}
			drops, err := cost.DollarsToDrops(costCfg, dollars)
			if err != nil {
				return fmt.Errorf("cost computation failed: %w", err)
			}
			printJSON(map[string]interface{}{"dollars": dollars, "drops": drops})
			return nil
		},
	}
	estimateCostCmd.Flags().Float64("runtime-ms", 0, "Measured runtime in milliseconds")
	estimateCostCmd.Flags().String("machine-type", "standard", "Machine class name")
	estimateCostCmd.Flags().Int64("request-bytes", 0, "Request payload size in bytes")
	estimateCostCmd.Flags().Int64("response-bytes", 0, "Response payload size in bytes")

	cmd.AddCommand(estimateCostCmd)
	return cmd
}

func printJSON(v interface{}) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
		return
	}
	fmt.Println(string(b))
}
