package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

const timeLayout = "2006-01-02 15:04"

func queueCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "List scheduled posts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := a.ScheduleStore().Load()
			if err != nil {
				return err
			}
			done, err := a.ProcessedStore().Filenames()
			if err != nil {
				return err
			}

			now := time.Now()
			n := 0
			for _, e := range entries {
				_, published := done[e.Filename]
				if published && !all {
					continue
				}
				status := "pending"
				switch {
				case published:
					status = "published"
				case !e.ScheduledAt.After(now):
					status = "due"
				}
				fmt.Printf("%s  %-9s  %s\n",
					e.ScheduledAt.In(a.Location()).Format(timeLayout), status, e.Filename)
				n++
			}
			if n == 0 {
				fmt.Println("queue is empty")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include already-published entries")
	return cmd
}

func cancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <filename>",
		Short: "Remove a pending post from the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.ScheduleStore().Cancel(args[0]); err != nil {
				return err
			}
			fmt.Printf("cancelled %s\n", args[0])
			return nil
		},
	}
}

func rescheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reschedule <filename> <time>",
		Short: "Move a pending post to a new time",
		Long: `Moves a queue entry to a new time, rejecting times that collide with
another entry. Time formats: "` + timeLayout + `" (configured timezone) or RFC 3339.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			at, err := parseTimeArg(args[1], a.Location())
			if err != nil {
				return err
			}
			if err := a.ScheduleStore().Reschedule(args[0], at); err != nil {
				return err
			}
			fmt.Printf("rescheduled %s to %s\n", args[0], at.Format(timeLayout))
			return nil
		},
	}
}

func rebalanceCmd() *cobra.Command {
	var (
		apply bool
		days  int
	)
	cmd := &cobra.Command{
		Use:   "rebalance",
		Short: "Pull queued posts forward into unused schedule slots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Rebalancer().Run(days, !apply)
			if err != nil {
				return err
			}
			for _, ch := range res.Changes {
				fmt.Printf("%s: %s -> %s\n", ch.Filename,
					ch.OldTime.In(a.Location()).Format(timeLayout),
					ch.NewTime.In(a.Location()).Format(timeLayout))
			}
			verb := "would move"
			if apply {
				verb = "moved"
				if res.EntriesMoved > 0 {
					a.Notify().RebalanceApplied(cmd.Context(), res.EntriesMoved, res.GapsFound)
				}
			}
			fmt.Printf("%d gap(s) found, %s %d entrie(s)\n", res.GapsFound, verb, res.EntriesMoved)
			if !apply && res.EntriesMoved > 0 {
				fmt.Println("re-run with --apply to persist")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&apply, "apply", false, "persist the moves (default is a dry run)")
	cmd.Flags().IntVar(&days, "days", 0, "slot scan horizon in days (0 = default)")
	return cmd
}

func parseTimeArg(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(timeLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q (want %q or RFC 3339)", s, timeLayout)
	}
	return t, nil
}
