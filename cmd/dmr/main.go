// Command dmr is the CLI surface from spec.md §6 (ADDED): serve the
// HTTP API, or drive Retriever.Ingest/Retrieve/Forget directly for
// scripting, plus an operational self-check and the emotion demo.
// Modeled on the teacher's cobra-based cmd/sqvect/main.go.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/dmrproject/dmr/internal/applog"
	"github.com/dmrproject/dmr/internal/config"
	"github.com/dmrproject/dmr/internal/emotiondemo"
	"github.com/dmrproject/dmr/internal/httpapi"
	"github.com/dmrproject/dmr/pkg/coldstore"
	"github.com/dmrproject/dmr/pkg/hotindex"
	"github.com/dmrproject/dmr/pkg/hotstore"
	"github.com/dmrproject/dmr/pkg/retriever"
	"github.com/dmrproject/dmr/pkg/signature"
	"github.com/dmrproject/dmr/pkg/vectorize"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "dmr",
	Short: "Deterministic memory router for retrieval-augmented agents",
	Long:  "A deterministic, offline memory layer: hot ANN recall plus cold full-text recall, merged under a fixed admission policy.",
}

func buildRetriever(cfg config.Config) (*retriever.Retriever, func(), error) {
	v := vectorize.New()
	hi := hotindex.NewShardManager(cfg.HotIndexDir, v.Dim())

	var hs hotstore.Store = hotstore.NullStore{}
	var closeHot func()
	if cfg.HotStoreURL != "" {
		opts, err := redis.ParseURL(cfg.HotStoreURL)
		if err != nil {
			return nil, nil, fmt.Errorf("parse hot store url: %w", err)
		}
		client := redis.NewClient(opts)
		hs = hotstore.NewRedisStore(client, cfg.HotStorePrefix)
		closeHot = func() { client.Close() }
	}

	cs, err := coldstore.Open(cfg.ColdStorePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open cold store: %w", err)
	}

	r := retriever.New(v, hi, hs, cs, cfg.RetrieverPolicy())
	cleanup := func() {
		cs.Close()
		if closeHot != nil {
			closeHot()
		}
	}
	return r, cleanup, nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}
		log, err := applog.New(cfg.LogLevel)
		if err != nil {
			return err
		}

		r, cleanup, err := buildRetriever(cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		srv := &httpapi.Server{Retriever: r, Log: log}
		log.Info("starting dmr server", "addr", cfg.ListenAddr)
		return http.ListenAndServe(cfg.ListenAddr, srv.Router())
	},
}

var (
	ingestTenant  string
	ingestUser    string
	ingestUserMsg string
	ingestAIMsg   string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest one turn",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}
		r, cleanup, err := buildRetriever(cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		turnID, sig, err := r.Ingest(context.Background(), ingestTenant, ingestUser, ingestUserMsg, ingestAIMsg, time.Now().Unix())
		if err != nil {
			return err
		}
		fmt.Printf("turn_id=%s signature=%s\n", turnID, sig)
		return nil
	},
}

var (
	queryTenant string
	queryUser   string
	queryText   string
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Retrieve evidence for a query",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}
		r, cleanup, err := buildRetriever(cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		items, err := r.Retrieve(context.Background(), queryTenant, queryUser, queryText)
		if err != nil {
			return err
		}
		tuples := make([]signature.EvidenceTuple, len(items))
		for i, it := range items {
			tuples[i] = signature.EvidenceTuple{TurnID: it.TurnID, Signature: it.Signature, Score: it.Score, Source: it.Source}
			fmt.Printf("[%s|%s|%s|score=%.6f]\n%s\n\n", it.Source, it.TurnID, it.Signature, it.Score, it.Text)
		}
		pol := signature.Policy{
			Threshold:    r.Policy.Threshold,
			KFinal:       r.Policy.KFinal,
			MaxChars:     r.Policy.MaxChars,
			BudgetMsHot:  r.Policy.BudgetMsHot,
			BudgetMsCold: r.Policy.BudgetMsCold,
		}
		fmt.Printf("pack_signature=%s\n", signature.PackSignature(queryTenant, queryUser, queryText, pol, tuples))
		return nil
	},
}

var (
	forgetTenant string
	forgetUser   string
	forgetTurn   string
)

var forgetCmd = &cobra.Command{
	Use:   "forget",
	Short: "Tombstone a turn in the hot tier",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}
		r, cleanup, err := buildRetriever(cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		if err := r.Forget(context.Background(), forgetTenant, forgetUser, forgetTurn); err != nil {
			return err
		}
		fmt.Printf("status=ok turn_id=%s\n", forgetTurn)
		return nil
	},
}

// doctorCmd pings the configured Redis hot store (if any) and opens
// the cold SQLite file, reporting each component's health. Only the
// cold tier is a hard dependency, per spec.md §7's propagation policy,
// so a hot-tier fault is reported but does not change the exit code.
var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run an operational self-check against configured stores",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}

		hotOK := true
		if cfg.HotStoreURL != "" {
			opts, err := redis.ParseURL(cfg.HotStoreURL)
			if err != nil {
				hotOK = false
				fmt.Printf("hot:  FAIL (%v)\n", err)
			} else {
				client := redis.NewClient(opts)
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				err := client.Ping(ctx).Err()
				cancel()
				client.Close()
				if err != nil {
					hotOK = false
					fmt.Printf("hot:  FAIL (%v)\n", err)
				} else {
					fmt.Println("hot:  ok")
				}
			}
		} else {
			fmt.Println("hot:  not configured")
		}

		cs, err := coldstore.Open(cfg.ColdStorePath)
		if err != nil {
			fmt.Printf("cold: FAIL (%v)\n", err)
			return fmt.Errorf("cold tier unreachable: %w", err)
		}
		cs.Close()
		fmt.Println("cold: ok")

		if !hotOK {
			fmt.Println("overall: degraded (hot tier unavailable, cold tier authoritative and reachable)")
		}
		return nil
	},
}

var emotionCmd = &cobra.Command{
	Use:   "emotion <text>",
	Short: "Print the emotion analysis for a piece of text",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return emotiondemo.Run(os.Stdout, args[0])
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to a YAML config file")

	ingestCmd.Flags().StringVar(&ingestTenant, "tenant", "", "tenant id")
	ingestCmd.Flags().StringVar(&ingestUser, "user", "", "user id")
	ingestCmd.Flags().StringVar(&ingestUserMsg, "user-msg", "", "human message text")
	ingestCmd.Flags().StringVar(&ingestAIMsg, "assistant-msg", "", "assistant message text")
	ingestCmd.MarkFlagRequired("tenant")
	ingestCmd.MarkFlagRequired("user")

	queryCmd.Flags().StringVar(&queryTenant, "tenant", "", "tenant id")
	queryCmd.Flags().StringVar(&queryUser, "user", "", "user id")
	queryCmd.Flags().StringVar(&queryText, "query", "", "query text")
	queryCmd.MarkFlagRequired("tenant")
	queryCmd.MarkFlagRequired("user")

	forgetCmd.Flags().StringVar(&forgetTenant, "tenant", "", "tenant id")
	forgetCmd.Flags().StringVar(&forgetUser, "user", "", "user id")
	forgetCmd.Flags().StringVar(&forgetTurn, "turn-id", "", "turn id to tombstone")
	forgetCmd.MarkFlagRequired("tenant")
	forgetCmd.MarkFlagRequired("user")
	forgetCmd.MarkFlagRequired("turn-id")

	rootCmd.AddCommand(serveCmd, ingestCmd, queryCmd, forgetCmd, doctorCmd, emotionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
