package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kartikbazzad/bunview"
	"github.com/kartikbazzad/bunview/client"
	"github.com/kartikbazzad/bunview/ddoc"
	"github.com/kartikbazzad/bunview/internal/config"
	"github.com/kartikbazzad/bunview/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:   "bunview",
	Short: "Query map/reduce views of a document database",
}

func main() {
	rootCmd.AddCommand(queryCmd, shellCmd, ddocCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newClient() (*client.Client, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger.Init(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	c, err := client.New(client.Config{
		BaseURL:  cfg.BaseURL,
		Bucket:   cfg.Bucket,
		Username: cfg.Username,
		Password: cfg.Password,
	})
	if err != nil {
		return nil, nil, err
	}
	return c, cfg, nil
}

// ---- query ----

var queryFlags struct {
	limit       int
	skip        int
	descending  bool
	includeDocs bool
	group       bool
	groupLevel  int
	noReduce    bool
	stale       string
	key         string
	keys        string
	startKey    string
	endKey      string
	onError     string
	post        bool
}

var queryCmd = &cobra.Command{
	Use:   "query <ddoc/_view/name>",
	Short: "Run a view query and print its rows as JSON lines",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, cfg, err := newClient()
		if err != nil {
			return err
		}

		params := bunview.Params{"connection_timeout": cfg.Timeout}
		if cmd.Flags().Changed("limit") {
			params["limit"] = queryFlags.limit
		}
		if queryFlags.skip > 0 {
			params["skip"] = queryFlags.skip
		}
		if queryFlags.descending {
			params["descending"] = true
		}
		if queryFlags.includeDocs {
			params["include_docs"] = true
		}
		if queryFlags.group {
			params["group"] = true
		}
		if cmd.Flags().Changed("group-level") {
			params["group_level"] = queryFlags.groupLevel
		}
		if queryFlags.noReduce {
			params["reduce"] = false
		}
		if queryFlags.stale != "" {
			params["stale"] = queryFlags.stale
		}
		if queryFlags.onError != "" {
			params["on_error"] = queryFlags.onError
		}
		for name, raw := range map[string]string{
			"key":      queryFlags.key,
			"keys":     queryFlags.keys,
			"startkey": queryFlags.startKey,
			"endkey":   queryFlags.endKey,
		} {
			if raw == "" {
				continue
			}
			params[name] = parseKeyFlag(raw)
		}
		if queryFlags.post {
			inner := make(map[string]any, len(params))
			for k, v := range params {
				if k != "connection_timeout" {
					inner[k] = v
				}
			}
			params = bunview.Params{"connection_timeout": cfg.Timeout, "body": inner}
		}

		v, err := bunview.NewView(c, args[0], nil)
		if err != nil {
			return err
		}
		v.OnError(func(from, reason string) {
			fmt.Fprintf(os.Stderr, "node error from %s: %s\n", from, reason)
		})

		enc := json.NewEncoder(os.Stdout)
		total := 0
		err = v.FetchEach(context.Background(), params, func(r *bunview.Row) error {
			total++
			return enc.Encode(map[string]any{
				"id":    r.ID,
				"key":   r.Key,
				"value": r.Value,
				"doc":   r.Doc,
			})
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "%d row(s)\n", total)
		return nil
	},
}

// parseKeyFlag accepts JSON ('["post-42",1]', '"abc"', '42') and falls
// back to treating the flag as a plain string key.
func parseKeyFlag(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v
	}
	return raw
}

// ---- ddoc ----

var ddocCmd = &cobra.Command{
	Use:   "ddoc",
	Short: "Manage design documents",
}

var ddocPushCmd = &cobra.Command{
	Use:   "push <file.json>",
	Short: "Validate and publish a design document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		var d ddoc.DesignDoc
		if err := json.Unmarshal(data, &d); err != nil {
			return fmt.Errorf("parse %s: %w", args[0], err)
		}
		c, _, err := newClient()
		if err != nil {
			return err
		}
		if err := c.PutDesignDoc(context.Background(), &d); err != nil {
			return err
		}
		fmt.Printf("published %s\n", d.ID)
		return nil
	},
}

var ddocGetCmd = &cobra.Command{
	Use:   "get <_design/name>",
	Short: "Fetch a design document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, _, err := newClient()
		if err != nil {
			return err
		}
		d, err := c.GetDesignDoc(context.Background(), args[0])
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(d, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	f := queryCmd.Flags()
	f.IntVar(&queryFlags.limit, "limit", 0, "maximum rows to return")
	f.IntVar(&queryFlags.skip, "skip", 0, "rows to skip")
	f.BoolVar(&queryFlags.descending, "descending", false, "reverse key order")
	f.BoolVar(&queryFlags.includeDocs, "include-docs", false, "join full documents")
	f.BoolVar(&queryFlags.group, "group", false, "group reduced rows by key")
	f.IntVar(&queryFlags.groupLevel, "group-level", 0, "group array keys at this depth")
	f.BoolVar(&queryFlags.noReduce, "no-reduce", false, "skip the reduce function")
	f.StringVar(&queryFlags.stale, "stale", "", "staleness: false, ok or update_after")
	f.StringVar(&queryFlags.key, "key", "", "exact key (JSON)")
	f.StringVar(&queryFlags.keys, "keys", "", "key list (JSON array)")
	f.StringVar(&queryFlags.startKey, "startkey", "", "range start key (JSON)")
	f.StringVar(&queryFlags.endKey, "endkey", "", "range end key (JSON)")
	f.StringVar(&queryFlags.onError, "on-error", "", "partial failure mode: continue or stop")
	f.BoolVar(&queryFlags.post, "post", false, "send options as a request body")

	ddocCmd.AddCommand(ddocPushCmd, ddocGetCmd)
}
