// traderctl is a thin operator CLI over the running server's HTTP
// surface (§6) — read-only status/position/signal queries plus the
// two operator actions, for operators who prefer a terminal to curl.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	asJSON    bool
	days      int
)

func main() {
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "http://localhost:8001", "Base URL of the running stock-agent server")
	rootCmd.PersistentFlags().BoolVarP(&asJSON, "json", "j", false, "Print raw JSON instead of a formatted summary")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(positionsCmd)
	rootCmd.AddCommand(pendingCmd)

	historyCmd.Flags().IntVarP(&days, "days", "d", 30, "Lookback window in days")
	rootCmd.AddCommand(historyCmd)

	rootCmd.AddCommand(performanceCmd)
	rootCmd.AddCommand(analyseCmd)
	rootCmd.AddCommand(telegramTestCmd)
	rootCmd.AddCommand(brokerLoginCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "traderctl",
	Short: "traderctl talks to a running stock-agent server's HTTP surface.",
	Long:  "traderctl talks to a running stock-agent server's HTTP surface.",
}

var statusCmd = &cobra.Command{
	Use:     "status",
	Aliases: []string{"st"},
	Short:   "Show process health, universe size, and pending-signal count",
	Args:    cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		get("/api/status")
	},
}

var positionsCmd = &cobra.Command{
	Use:     "positions",
	Aliases: []string{"pos"},
	Short:   "List open positions",
	Args:    cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		get("/api/positions")
	},
}

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List trade proposals awaiting an operator reply",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		get("/api/signals/pending")
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List trade records over a lookback window",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		get(fmt.Sprintf("/api/signals/history?days=%d", days))
	},
}

var performanceCmd = &cobra.Command{
	Use:     "performance",
	Aliases: []string{"perf"},
	Short:   "Show the learning summary computed over every closed/rejected trade",
	Args:    cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		get("/api/performance")
	},
}

var analyseCmd = &cobra.Command{
	Use:   "analyse <symbol>",
	Short: "Show the full fundamental/technical/macro analysis bundle for a symbol",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		get("/api/analyse/" + args[0])
	},
}

var telegramTestCmd = &cobra.Command{
	Use:   "telegram-test",
	Short: "Send a probe message over the chat channel to confirm credentials work",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		post("/api/telegram/test")
	},
}

var brokerLoginCmd = &cobra.Command{
	Use:   "broker-login",
	Short: "Force a fresh broker session outside the lazy login path",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		post("/api/broker/login")
	},
}

var httpClient = &http.Client{Timeout: 15 * time.Second}

func get(path string) {
	resp, err := httpClient.Get(serverURL + path)
	requireNoError(err)
	printResponse(resp)
}

func post(path string) {
	resp, err := httpClient.Post(serverURL+path, "application/json", nil)
	requireNoError(err)
	printResponse(resp)
}

func printResponse(resp *http.Response) {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	requireNoError(err)

	if resp.StatusCode >= http.StatusBadRequest {
		fmt.Fprintf(os.Stderr, "server returned %s: %s\n", resp.Status, body)
		os.Exit(1)
	}

	if asJSON {
		fmt.Println(string(body))
		return
	}

	var pretty interface{}
	if err := json.Unmarshal(body, &pretty); err != nil {
		fmt.Println(string(body))
		return
	}
	out, err := json.MarshalIndent(pretty, "", "  ")
	requireNoError(err)
	fmt.Println(string(out))
}

func requireNoError(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
