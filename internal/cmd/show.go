package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/trickstertwo/xroute/config"
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the sinks and rules a routing file declares",
	Args:  cobra.NoArgs,
	RunE:  runShow,
}

var (
	showJSON bool // Output as JSON
)

func init() {
	showCmd.Flags().BoolVar(&showJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(showCmd)
}

func runShow(cmd *cobra.Command, args []string) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	f, err := config.Load(path)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if showJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(f)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SINK\tTYPE\tTARGET\tFILTER")
	for _, s := range f.Sinks {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Name, s.Type, sinkTarget(s, f.LogDir), filterSummary(s.Filter))
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "RULE\tPATTERN\tLEVELS\tSINKS\tFINAL")
	for _, r := range f.Rules {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\n", r.Name, r.Pattern, levelSummary(r), strings.Join(r.Sinks, ","), r.Final)
	}
	return tw.Flush()
}

func sinkTarget(s config.SinkSpec, logDir string) string {
	if s.Type != "file" {
		if s.Output == "" {
			return "stdout"
		}
		return s.Output
	}
	dir := s.Dir
	if dir == "" {
		dir = logDir
	}
	if dir == "" {
		return s.Path
	}
	return dir + "/" + s.Path
}

func filterSummary(fs *config.FilterSpec) string {
	if fs == nil {
		return "-"
	}
	var parts []string
	if fs.LoggerPrefix != "" {
		parts = append(parts, "logger^="+fs.LoggerPrefix)
	}
	if fs.MessageContains != "" {
		parts = append(parts, "msg~="+fs.MessageContains)
	}
	if fs.HasField != "" {
		parts = append(parts, "has:"+fs.HasField)
	}
	if fs.MinLevel != "" {
		parts = append(parts, ">="+fs.MinLevel)
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, " ")
}

func levelSummary(r config.RuleSpec) string {
	if len(r.Levels) > 0 {
		return strings.Join(r.Levels, ",")
	}
	if r.MinLevel == "" {
		return ">=trace"
	}
	return ">=" + r.MinLevel
}
