package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"instapost/internal/image"
	"instapost/internal/ingest"
	"instapost/internal/ledger"
	"instapost/internal/publish"
)

func scheduleCmd() *cobra.Command {
	var caption string
	cmd := &cobra.Command{
		Use:   "schedule <file>",
		Short: "Add an image to the posting queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			abs, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			if _, err := os.Stat(abs); err != nil {
				return err
			}

			entry, status, err := a.Coordinator().Schedule(filepath.Base(abs), abs, caption)
			if err != nil {
				return err
			}
			switch status {
			case ingest.StatusScheduled:
				fmt.Printf("scheduled %s for %s\n", entry.Filename,
					entry.ScheduledAt.In(a.Location()).Format(timeLayout))
			case ingest.StatusAlreadyScheduled:
				fmt.Printf("%s is already in the queue\n", entry.Filename)
			case ingest.StatusAlreadyProcessed:
				fmt.Printf("%s was already published\n", filepath.Base(abs))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&caption, "caption", "c", "", "caption text (a sidecar .txt file takes precedence)")
	return cmd
}

func postCmd() *cobra.Command {
	var caption string
	cmd := &cobra.Command{
		Use:   "post <file>",
		Short: "Publish an image immediately, bypassing the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			pipeline, err := a.PublishPipeline()
			if err != nil {
				return err
			}

			abs, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			if err := image.Validate(abs); err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()

			res, err := pipeline.Publish(ctx, abs, publish.ResolveCaption(abs, caption))
			if err != nil {
				return err
			}

			// Record it so the watcher and mover treat the file as done.
			url := res.URL
			if err := a.ProcessedStore().Append(ledger.ProcessedEntry{
				Filename:    filepath.Base(abs),
				ScheduledAt: res.CompletedAt,
				URL:         &url,
				ProcessedAt: res.CompletedAt,
			}); err != nil {
				return fmt.Errorf("published %s but failed to record it: %w", res.URL, err)
			}

			fmt.Printf("published: %s\n", res.URL)
			return nil
		},
	}
	cmd.Flags().StringVarP(&caption, "caption", "c", "", "caption text (a sidecar .txt file takes precedence)")
	return cmd
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Check an image against the publishing constraints",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := image.Validate(args[0]); err != nil {
				return err
			}
			in, err := image.Probe(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s is publishable: %s %dx%d, %d bytes\n",
				args[0], in.Format, in.Width, in.Height, in.Size)
			return nil
		},
	}
}

func accountCmd() *cobra.Command {
	var recent int
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Show the connected Instagram account, token status and recent posts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ig, err := a.Instagram()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			info, err := ig.GetAccountInfo(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("account:   %s (@%s)\n", info.Name, info.Username)
			fmt.Printf("followers: %d\n", info.FollowersCount)
			fmt.Printf("posts:     %d\n", info.MediaCount)

			tok, err := ig.DebugToken(ctx)
			if err != nil {
				fmt.Printf("token:     inspection failed: %v\n", err)
				return nil
			}
			state := "valid"
			if !tok.IsValid {
				state = "INVALID"
			}
			if tok.ExpiresAt > 0 {
				fmt.Printf("token:     %s, expires %s\n", state,
					time.Unix(tok.ExpiresAt, 0).In(a.Location()).Format(timeLayout))
			} else {
				fmt.Printf("token:     %s, no expiry\n", state)
			}

			if recent > 0 {
				media, err := ig.RecentMedia(ctx, recent)
				if err != nil {
					return err
				}
				fmt.Println("recent posts:")
				for _, m := range media {
					caption := m.Caption
					if len(caption) > 60 {
						caption = caption[:57] + "..."
					}
					fmt.Printf("  %s  %s  %s\n", m.Timestamp, m.Permalink, caption)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&recent, "recent", 0, "also list the N most recent posts")
	return cmd
}
