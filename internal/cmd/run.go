package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/trickstertwo/xroute"
	"github.com/trickstertwo/xroute/config"
	"github.com/trickstertwo/xroute/sink/zerologsink"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Apply a routing file, watch it and emit probe lines from a session",
	Long: `run applies the routing file to a fresh runtime, watches it for changes and
creates one session that owns a console sink and a rule for its own probe
logger. Every interval a probe line is logged through the runtime, so edits to
the file are visible immediately while the session keeps its own routing.
Stops on SIGINT/SIGTERM or after --count probes.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	runCmd.Flags().String("session", "xroute-run", "session (module) name")
	runCmd.Flags().String("company", "xroute", "company name used for the session log path")
	runCmd.Flags().Duration("interval", time.Second, "probe interval")
	runCmd.Flags().Int("count", 0, "stop after this many probes (0 runs until interrupted)")
	runCmd.Flags().String("self-log-level", "info", "level for the library's own diagnostics (off disables)")
	_ = viper.BindPFlag("run.session", runCmd.Flags().Lookup("session"))
	_ = viper.BindPFlag("run.company", runCmd.Flags().Lookup("company"))
	_ = viper.BindPFlag("run.interval", runCmd.Flags().Lookup("interval"))
	_ = viper.BindPFlag("run.count", runCmd.Flags().Lookup("count"))
	_ = viper.BindPFlag("run.self_log_level", runCmd.Flags().Lookup("self-log-level"))
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	name := viper.GetString("run.session")
	interval := viper.GetDuration("run.interval")
	if interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", interval)
	}
	selfLevel, err := xroute.ParseLevel(viper.GetString("run.self_log_level"))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt := xroute.NewBuilder().
		WithErrorHandler(func(err error) {
			fmt.Fprintln(cmd.ErrOrStderr(), "xroute:", err)
		}).
		Build()
	if err := config.Apply(rt, path); err != nil {
		return err
	}
	if err := config.Watch(ctx, rt, path, func(err error) {
		fmt.Fprintln(cmd.ErrOrStderr(), "xroute: reload:", err)
	}); err != nil {
		return err
	}

	dir, err := xroute.NewDirectory(rt)
	if err != nil {
		return err
	}
	defer func() {
		dir.CloseAll()
		_ = rt.Flush()
	}()

	if selfLevel != xroute.LevelOff {
		diag := zerologsink.NewWriter("xroute-diagnostics", zerologsink.Config{Writer: cmd.ErrOrStderr(), Console: true})
		if err := dir.EnableSelfLog(selfLevel, diag); err != nil {
			return err
		}
	}

	sess, err := dir.Create(name, viper.GetString("run.company"))
	if err != nil {
		return err
	}
	console := zerologsink.NewWriter(name+"-console", zerologsink.Config{Writer: cmd.OutOrStdout(), Console: true})
	rule, err := xroute.NewRuleBuilder().
		Pattern(name + ".*").
		Sinks(console).
		Threshold(xroute.LevelInfo).
		Build()
	if err != nil {
		return err
	}
	if err := sess.AddSink(console, true); err != nil {
		return err
	}
	if err := sess.AddRule("probe", rule, false); err != nil {
		return err
	}

	return probe(ctx, rt.Logger(name+".probe"), interval, viper.GetInt("run.count"))
}

func probe(ctx context.Context, log *xroute.Logger, interval time.Duration, count int) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for seq := 1; count <= 0 || seq <= count; seq++ {
		log.Info().Int("seq", seq).Msg("probe")
		if count > 0 && seq == count {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
	return nil
}
