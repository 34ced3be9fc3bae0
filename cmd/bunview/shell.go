package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/kartikbazzad/bunview"
	"github.com/kartikbazzad/bunview/client"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive view query shell",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, cfg, err := newClient()
		if err != nil {
			return err
		}
		sh := &shell{client: c, params: bunview.Params{"connection_timeout": cfg.Timeout}}
		return sh.run()
	},
}

type shell struct {
	client   *client.Client
	endpoint string
	params   bunview.Params
}

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".bunview_history")
}

func (s *shell) run() error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	if path := historyPath(); path != "" {
		if f, err := os.Open(path); err == nil {
			line.ReadHistory(f)
			f.Close()
		}
		defer func() {
			if f, err := os.Create(path); err == nil {
				line.WriteHistory(f)
				f.Close()
			}
		}()
	}

	fmt.Println("bunview shell. Type '.help' for commands.")
	for {
		input, err := line.Prompt("> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				fmt.Println()
				return nil
			}
			return err
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		exit, err := s.dispatch(input)
		if err != nil {
			fmt.Fprintln(os.Stderr, "ERROR:", err)
		}
		if exit {
			return nil
		}
	}
}

func (s *shell) dispatch(input string) (exit bool, err error) {
	parts := strings.Fields(input)
	cmd, args := parts[0], parts[1:]
	if !strings.HasPrefix(cmd, ".") {
		return false, fmt.Errorf("commands start with '.'; try .help")
	}
	switch cmd {
	case ".exit", ".quit":
		return true, nil
	case ".help":
		s.printHelp()
		return false, nil
	case ".view":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: .view <ddoc/_view/name>")
		}
		if _, err := bunview.ParseIdentity(args[0]); err != nil {
			return false, err
		}
		s.endpoint = args[0]
		return false, nil
	case ".set":
		if len(args) != 2 {
			return false, fmt.Errorf("usage: .set <option> <json-value>")
		}
		s.params[args[0]] = parseKeyFlag(args[1])
		return false, nil
	case ".unset":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: .unset <option>")
		}
		delete(s.params, args[0])
		return false, nil
	case ".params":
		out, err := json.MarshalIndent(s.params, "", "  ")
		if err != nil {
			return false, err
		}
		fmt.Println(string(out))
		return false, nil
	case ".limit":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: .limit <n>")
		}
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return false, err
		}
		s.params["limit"] = n
		return false, nil
	case ".query":
		return false, s.query(args)
	case ".first":
		return false, s.first()
	default:
		return false, fmt.Errorf("unknown command %s; try .help", cmd)
	}
}

func (s *shell) view() (*bunview.View, error) {
	if s.endpoint == "" {
		return nil, fmt.Errorf("no view selected; use .view <ddoc/_view/name>")
	}
	v, err := bunview.NewView(s.client, s.endpoint, nil)
	if err != nil {
		return nil, err
	}
	v.OnError(func(from, reason string) {
		fmt.Fprintf(os.Stderr, "node error from %s: %s\n", from, reason)
	})
	return v, nil
}

// query runs the selected view with the session params, optionally
// overlaid with a JSON object argument: .query {"limit": 5}
func (s *shell) query(args []string) error {
	v, err := s.view()
	if err != nil {
		return err
	}
	params := s.params
	if len(args) > 0 {
		var extra bunview.Params
		if err := json.Unmarshal([]byte(strings.Join(args, " ")), &extra); err != nil {
			return fmt.Errorf("params must be a JSON object: %w", err)
		}
		merged := make(bunview.Params, len(params)+len(extra))
		for k, val := range params {
			merged[k] = val
		}
		for k, val := range extra {
			merged[k] = val
		}
		params = merged
	}

	enc := json.NewEncoder(os.Stdout)
	count := 0
	err = v.FetchEach(context.Background(), params, func(r *bunview.Row) error {
		count++
		return enc.Encode(map[string]any{"id": r.ID, "key": r.Key, "value": r.Value, "doc": r.Doc})
	})
	if err != nil {
		return err
	}
	fmt.Printf("%d row(s)\n", count)
	return nil
}

func (s *shell) first() error {
	v, err := s.view()
	if err != nil {
		return err
	}
	row, err := v.First(context.Background(), s.params)
	if err != nil {
		return err
	}
	if row == nil {
		fmt.Println("no rows")
		return nil
	}
	out, err := json.MarshalIndent(map[string]any{"id": row.ID, "key": row.Key, "value": row.Value}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func (s *shell) printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  .view <ddoc/_view/name>   Select the view to query")
	fmt.Println("  .query [json-params]      Run the view with session params")
	fmt.Println("  .first                    Fetch the first row only")
	fmt.Println("  .limit <n>                Set the session row limit")
	fmt.Println("  .set <option> <json>      Set a session query option")
	fmt.Println("  .unset <option>           Remove a session query option")
	fmt.Println("  .params                   Show session query options")
	fmt.Println("  .help                     Show this help message")
	fmt.Println("  .exit                     Leave the shell")
}
