package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"pagewatch/internal/detector"
	"pagewatch/internal/extract"
	"pagewatch/internal/fetch"
	"pagewatch/internal/tracker"
	logx "pagewatch/pkg/logx"
)

var (
	checkTimeout   time.Duration
	checkUserAgent string
	checkJSON      bool
	checkVerbose   bool
)

type checkReport struct {
	URL         string          `json:"url"`
	Fingerprint string          `json:"fingerprint"`
	Resources   []checkResource `json:"resources"`
}

type checkResource struct {
	URL  string `json:"url"`
	Kind string `json:"kind"`
	Hash string `json:"hash"`
}

var checkCmd = &cobra.Command{
	Use:   "check <url>",
	Short: "Fetch a page once and print its fingerprint and media links",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		u, err := tracker.ValidateURL(args[0])
		if err != nil {
			return err
		}
		level := "warn"
		if checkVerbose {
			level = "debug"
		}
		log := logx.NewWriter(cmd.ErrOrStderr(), level)

		httpc := fetch.New(fetch.Config{PageTimeout: checkTimeout, UserAgent: checkUserAgent}, log)
		defer httpc.Close()
		ex := extract.New(extract.Config{
			PageTimeout:     httpc.PageTimeout(),
			ResourceTimeout: httpc.ResourceTimeout(),
		}, httpc, log)

		page := ex.Extract(cmd.Context(), u)
		if page.Empty() {
			return errors.New("page unreachable or empty")
		}

		rep := checkReport{URL: u, Fingerprint: detector.Fingerprint(page.Content), Resources: []checkResource{}}
		for _, r := range page.Resources {
			rep.Resources = append(rep.Resources, checkResource{URL: r.URL, Kind: string(r.Kind), Hash: r.Hash})
		}

		out := cmd.OutOrStdout()
		if checkJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(rep)
		}
		fmt.Fprintf(out, "url:         %s\nfingerprint: %s\nresources:   %d\n", rep.URL, rep.Fingerprint, len(rep.Resources))
		for _, r := range rep.Resources {
			fmt.Fprintf(out, "  %-8s %s  %s\n", r.Kind, r.Hash, r.URL)
		}
		return nil
	},
}

func init() {
	checkCmd.Flags().DurationVar(&checkTimeout, "timeout", 30*time.Second, "page fetch timeout")
	checkCmd.Flags().StringVar(&checkUserAgent, "user-agent", "", "override the User-Agent header")
	checkCmd.Flags().BoolVar(&checkJSON, "json", false, "print the report as JSON")
	checkCmd.Flags().BoolVarP(&checkVerbose, "verbose", "v", false, "log fetch details to stderr")
	rootCmd.AddCommand(checkCmd)
}
