package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/coffersTech/nanosearch/internal/cluster"
	"github.com/coffersTech/nanosearch/sdk/nanosearch"
	"github.com/spf13/cobra"
)

// clientFlags select the servers used by search, stats and ingest.
type clientFlags struct {
	servers []string
	token   string
}

func (f *clientFlags) register(cmd *cobra.Command, multi bool) {
	usage := "Server URL"
	if multi {
		usage = "Server URL, repeat to query several servers"
	}
	cmd.Flags().StringSliceVar(&f.servers, "server", []string{getEnv("NANOSEARCH_SERVER", "http://localhost:8088")}, usage)
	cmd.Flags().StringVar(&f.token, "token", os.Getenv("NANOSEARCH_TOKEN"), "API token secret")
}

func (f *clientFlags) client() (*nanosearch.Client, error) {
	if len(f.servers) != 1 {
		return nil, fmt.Errorf("expected one --server, got %d", len(f.servers))
	}
	return nanosearch.New(f.servers[0], f.token), nil
}

func (f *clientFlags) aggregator() *cluster.Aggregator {
	nodes := make([]*nanosearch.Client, len(f.servers))
	for i, s := range f.servers {
		nodes[i] = nanosearch.New(s, f.token)
	}
	return cluster.NewAggregator(nil, nodes...)
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func newSearchCmd() *cobra.Command {
	cf := &clientFlags{}
	var (
		req    nanosearch.SearchRequest
		since  time.Duration
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "search [QUERY]",
		Short: "Search a running server",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				req.Query = args[0]
			}
			if since > 0 {
				req.Start = time.Now().Add(-since)
			}

			docs, err := cf.aggregator().Search(cmd.Context(), req)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(docs)
			}
			for _, d := range docs {
				ts := time.Unix(0, d.Timestamp).UTC().Format(time.RFC3339Nano)
				fmt.Fprintf(out, "%s [%s] %s\n", ts, d.Source, d.Text)
			}
			return nil
		},
	}
	cf.register(cmd, true)
	cmd.Flags().StringVar(&req.Source, "source", "", "Only documents from this source")
	cmd.Flags().IntVar(&req.Limit, "limit", 0, "Maximum results (server default when 0)")
	cmd.Flags().DurationVar(&since, "since", 0, "Only documents newer than this, e.g. 15m")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print documents as JSON")
	return cmd
}

func newIngestCmd() *cobra.Command {
	cf := &clientFlags{}
	var (
		source    string
		batchSize int
	)

	cmd := &cobra.Command{
		Use:   "ingest [FILE]",
		Short: "Send each line of a file (or stdin) to a running server as a document",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if batchSize <= 0 {
				return fmt.Errorf("--batch-size must be positive, got %d", batchSize)
			}

			var r io.Reader = cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}

			c, err := cf.client()
			if err != nil {
				return err
			}
			total := 0
			batch := make([]nanosearch.Document, 0, batchSize)
			send := func() error {
				if len(batch) == 0 {
					return nil
				}
				res, err := c.Ingest(cmd.Context(), batch...)
				if err != nil {
					return err
				}
				total += res.Ingested
				batch = batch[:0]
				return nil
			}

			scanner := bufio.NewScanner(r)
			scanner.Buffer(make([]byte, 64*1024), maxLineSize)
			for scanner.Scan() {
				if scanner.Text() == "" {
					continue
				}
				batch = append(batch, nanosearch.Document{Source: source, Text: scanner.Text()})
				if len(batch) >= batchSize {
					if err := send(); err != nil {
						return err
					}
				}
			}
			if err := scanner.Err(); err != nil {
				return err
			}
			if err := send(); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Ingested %d documents\n", total)
			return nil
		},
	}
	cf.register(cmd, false)
	cmd.Flags().StringVar(&source, "source", "cli", "Source of the documents")
	cmd.Flags().IntVar(&batchSize, "batch-size", 500, "Documents per request")
	return cmd
}

func newStatsCmd() *cobra.Command {
	cf := &clientFlags{}

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print the statistics of one or more running servers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := cf.aggregator().Stats(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		},
	}
	cf.register(cmd, true)
	return cmd
}
