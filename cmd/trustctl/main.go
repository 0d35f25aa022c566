// Command trustctl is an operator CLI that talks to a running trustwotd
// daemon's local JSON/HTTP mirror (internal/httpapi), for scripting and
// manual inspection without going through the signed pub/sub transport.
//
// Grounded on the teacher's cmd/cli package (one cobra.Command per
// operation, thin RunE bodies) adapted here to an HTTP client instead of
// an in-process core handle, since this CLI is a separate process from
// the daemon it operates on.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var baseURL string
var httpClient = &http.Client{Timeout: 10 * time.Second}

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "trustctl",
		Short: "Operator CLI for a trustwotd daemon",
	}
	root.PersistentFlags().StringVar(&baseURL, "addr", "http://127.0.0.1:8080", "base URL of the trustwotd HTTP mirror")

	root.AddCommand(scoreCmd())
	root.AddCommand(scoresCmd())
	root.AddCommand(statsCmd())
	root.AddCommand(searchCmd())
	root.AddCommand(manageTACmd())
	return root
}

func scoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "score <pubkey>",
		Short: "Calculate the trust score for a single pubkey",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return postAndPrint("/api/calculate-trust-score", map[string]string{"targetPubkey": args[0]})
		},
	}
}

func scoresCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scores <pubkey> [pubkey...]",
		Short: "Calculate trust scores for multiple pubkeys",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return postAndPrint("/api/calculate-trust-scores", map[string]any{"targetPubkeys": args})
		},
	}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print engine statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return getAndPrint("/api/stats")
		},
	}
}

func searchCmd() *cobra.Command {
	var limit int
	var extend bool
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search known profiles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return postAndPrint("/api/search-profiles", map[string]any{
				"query": args[0], "limit": limit, "extendToNostr": extend,
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 7, "maximum results (1-50)")
	cmd.Flags().BoolVar(&extend, "extend-to-nostr", false, "send extendToNostr; the daemon searches only pubkeys already in its follow graph")
	return cmd
}

func manageTACmd() *cobra.Command {
	var relays []string
	cmd := &cobra.Command{
		Use:   "manage-ta <get|enable|disable>",
		Short: "Manage the optional trusted-assertion side-service flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return postAndPrint("/api/manage-ta", map[string]any{"action": args[0], "customRelays": relays})
		},
	}
	cmd.Flags().StringSliceVar(&relays, "relays", nil, "custom relay list to apply on enable")
	return cmd
}

func postAndPrint(path string, body any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request body: %w", err)
	}
	resp, err := httpClient.Post(baseURL+path, "application/json", bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()
	return printResponse(resp)
}

func getAndPrint(path string) error {
	resp, err := httpClient.Get(baseURL + path)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()
	return printResponse(resp)
}

func printResponse(resp *http.Response) error {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		fmt.Println(string(raw))
		return nil
	}
	fmt.Println(pretty.String())
	if resp.StatusCode >= 400 {
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}
	return nil
}
