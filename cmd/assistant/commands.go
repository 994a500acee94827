package main

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MahfuzulAlam/directorist-smart-assistant/internal/config"
	syncer "github.com/MahfuzulAlam/directorist-smart-assistant/internal/sync"
)

// --- sync ---

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push eligible listings to the vector store",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		printStep("Starting bulk sync...")
		resp, err := client.post(cmd.Context(), "/v1/sync", nil)
		if err != nil {
			return err
		}

		var report syncer.Report
		if err := decodeJSON(resp, &report); err != nil {
			return err
		}

		if report.Failed > 0 {
			printWarning("%s", report.Message)
			for _, e := range report.Errors {
				printError("%s", e)
			}
			return fmt.Errorf("%d of %d listings failed", report.Failed, report.Total)
		}
		printSuccess("%s", report.Message)
		return nil
	},
}

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask the assistant a question about the directory",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/v1/chat", map[string]string{"message": question})
		if err != nil {
			return err
		}

		var answer struct {
			Reply  string `json:"reply"`
			Source string `json:"source"`
		}
		if err := decodeJSON(resp, &answer); err != nil {
			return err
		}

		fmt.Println(answer.Reply)
		if answer.Source != "vector" {
			printWarning("answer grounded via %s path", answer.Source)
		}
		return nil
	},
}

// --- search ---

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Semantic search over published listings",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := fmt.Sprintf("/v1/search?q=%s&limit=%d", url.QueryEscape(query), limit)
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var results []struct {
			ID        int64    `json:"id"`
			Title     string   `json:"title"`
			Types     []string `json:"types"`
			Locations []string `json:"locations"`
			Permalink string   `json:"permalink"`
		}
		if err := decodeJSON(resp, &results); err != nil {
			return err
		}

		if len(results) == 0 {
			fmt.Println("No listings found.")
			return nil
		}

		for _, r := range results {
			fmt.Printf("%s %s\n", colorize(colorCyan, fmt.Sprintf("#%d", r.ID)), colorize(colorBold, r.Title))
			if len(r.Types) > 0 {
				fmt.Printf("  Type: %s\n", strings.Join(r.Types, ", "))
			}
			if len(r.Locations) > 0 {
				fmt.Printf("  Location: %s\n", strings.Join(r.Locations, ", "))
			}
			if r.Permalink != "" {
				fmt.Printf("  %s\n", r.Permalink)
			}
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().Int("limit", 0, "maximum number of results (0 uses the configured top-k)")
}

// --- settings ---

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or update runtime settings",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective settings (secrets masked)",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/v1/settings")
		if err != nil {
			return err
		}

		var values map[string]string
		if err := decodeJSON(resp, &values); err != nil {
			return err
		}

		keys := make([]string, 0, len(values))
		for k := range values {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k), values[k])
		}
		return nil
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a runtime setting",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.put(cmd.Context(), "/v1/settings", map[string]string{key: value})
		if err != nil {
			return err
		}

		var values map[string]string
		if err := decodeJSON(resp, &values); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, values[key])
		return nil
	},
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsSetCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update daemon configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
