package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// ─── Mining CLI ─────────────────────────────────────────────────────────────
// idlemine mine start|status|collect|cancel USER

func init() {
	rootCmd.AddCommand(mineCmd)
	mineCmd.AddCommand(mineStartCmd)
	mineCmd.AddCommand(mineStatusCmd)
	mineCmd.AddCommand(mineCollectCmd)
	mineCmd.AddCommand(mineCancelCmd)
}

var mineCmd = &cobra.Command{
	Use:   "mine",
	Short: "Start, inspect and collect mining sessions",
}

var mineStartCmd = &cobra.Command{
	Use:   "start USER",
	Short: "Start a mining session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		res, err := c.StartMining(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if !res.Started {
			fmt.Fprintf(out, "Session %s already running for %s.\n", res.Status.Session.ID, args[0])
			return nil
		}
		p := res.Status.Profile
		fmt.Fprintf(out, "Mining started for %s (session %s)\n", args[0], res.Status.Session.ID)
		fmt.Fprintf(out, "  Rate:     %.2f/h  (+%.1f%% boost)\n", p.TotalRatePerHour, p.TotalBoostPercent)
		fmt.Fprintf(out, "  Duration: %.2fh, ends %s\n", p.EffectiveDurationHours, res.Status.Session.EndsAt.Local().Format(time.Kitchen))
		fmt.Fprintf(out, "  Estimate: %.2f\n", p.EstimatedFullEarnings)
		return nil
	},
}

var mineStatusCmd = &cobra.Command{
	Use:   "status USER",
	Short: "Show the current session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		st, err := c.MiningStatus(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if !st.Session.IsActive {
			fmt.Fprintf(out, "%s is idle.\n", args[0])
			return nil
		}
		remaining := time.Duration(st.RemainingMs) * time.Millisecond
		fmt.Fprintf(out, "Session %s: %.1f%% done, %s left\n", st.Session.ID, st.ProgressPercent, remaining.Round(time.Second))
		fmt.Fprintf(out, "  Accrued: %.4f\n", st.Session.Accrued)
		return nil
	},
}

var mineCollectCmd = &cobra.Command{
	Use:   "collect USER",
	Short: "Collect the accrued reward and end the session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		res, err := c.Collect(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if !res.Collected {
			fmt.Fprintln(out, "Nothing to collect.")
			return nil
		}
		fmt.Fprintf(out, "Collected %s (+%d XP)\n", res.Reward.StringFixed(2), res.Experience)
		return nil
	},
}

var mineCancelCmd = &cobra.Command{
	Use:   "cancel USER",
	Short: "Abandon the active session without reward",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		cancelled, err := c.CancelMining(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if cancelled {
			fmt.Fprintln(cmd.OutOrStdout(), "Session cancelled.")
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), "No active session.")
		}
		return nil
	},
}
