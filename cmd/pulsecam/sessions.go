package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/ayusman/pulsecam/internal/store"
	"github.com/spf13/cobra"
)

var sessionsLimit int

var sessionsCmd = &cobra.Command{
	Use:   "sessions [id]",
	Short: "List recorded sessions, or show one session's estimates",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			return showSession(args[0], sessionsLimit)
		}
		return listSessions(sessionsLimit)
	},
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.Flags().IntVarP(&sessionsLimit, "limit", "n", 20, "Maximum rows to show (0 for all)")
}

func listSessions(limit int) error {
	sessions, err := DB.ListSessions(limit)
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	if len(sessions) == 0 {
		fmt.Println("No sessions found in database.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tSTARTED\tDURATION\tRATE\tESTIMATES\tMEAN BPM")
	fmt.Fprintln(w, "--\t-------\t--------\t----\t---------\t--------")

	for _, s := range sessions {
		sum, err := DB.Summarize(s.ID)
		if err != nil {
			return fmt.Errorf("failed to summarize session %s: %w", s.ID, err)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2f Hz\t%d\t%s\n",
			s.ID, s.StartedAt.Local().Format("2006-01-02 15:04"), duration(s), s.SampleRateHz, sum.Count, meanBPM(sum))
	}
	return w.Flush()
}

func showSession(id string, limit int) error {
	s, err := DB.GetSession(id)
	if err != nil {
		return fmt.Errorf("session %s: %w", id, err)
	}
	sum, err := DB.Summarize(id)
	if err != nil {
		return fmt.Errorf("failed to summarize session: %w", err)
	}
	estimates, err := DB.ListEstimates(id, limit)
	if err != nil {
		return fmt.Errorf("failed to list estimates: %w", err)
	}

	fmt.Printf("Session:  %s\n", s.ID)
	fmt.Printf("Started:  %s\n", s.StartedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Printf("Duration: %s\n", duration(s))
	fmt.Printf("Pipeline: window %d, buffer %d, %.2f Hz\n", s.WindowSize, s.BufferSize, s.SampleRateHz)
	fmt.Printf("BPM:      mean %s, min %.1f, max %.1f over %d estimates\n\n", meanBPM(sum), sum.MinBPM, sum.MaxBPM, sum.Count)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "TIME\tBPM\tCHANNEL\tRED\tGREEN\tBLUE")
	for _, e := range estimates {
		fmt.Fprintf(w, "%s\t%.1f\t%s\t%.1f\t%.1f\t%.1f\n",
			e.CreatedAt.Local().Format("15:04:05.000"), e.BPM, e.Channel, e.RedBPM, e.GreenBPM, e.BlueBPM)
	}
	return w.Flush()
}

func duration(s *store.Session) string {
	if s.EndedAt == nil {
		return "running"
	}
	return s.EndedAt.Sub(s.StartedAt).Round(time.Second).String()
}

func meanBPM(sum store.Summary) string {
	if sum.Count == 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f", sum.MeanBPM)
}
