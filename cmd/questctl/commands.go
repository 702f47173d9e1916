package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/questlore/questpub/pkg/questpub"
	"github.com/questlore/questpub/pkg/questpub/scan"
)

func requireUser(cmd *cobra.Command) (string, error) {
	userID, _ := cmd.Flags().GetString("user")
	if userID == "" {
		return "", errors.New("a user id is required (--user or QUESTPUB_USER)")
	}
	return userID, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printValidation lists field errors one per line and returns err unchanged.
func printValidation(w io.Writer, err error) error {
	var verr *questpub.ValidationError
	if errors.As(err, &verr) {
		for _, fe := range verr.Fields {
			fmt.Fprintf(w, "  %s [%s]: %s\n", fe.Field, fe.Kind, fe.Message)
		}
	}
	return err
}

func readContent(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

// NewValidateCommand creates the validate command
func NewValidateCommand(newService ServiceFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a quest document without storing it",
		Long:  `Translate a quest document and print the metadata it would publish, or every field error found. Use - to read stdin.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := readContent(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}

			svc, cleanup, err := newService(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to create service: %w", err)
			}
			defer cleanup()

			quest, err := svc.ValidateContent(content)
			if err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), "Invalid quest:")
				return printValidation(cmd.OutOrStdout(), err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Valid quest:")
			return printJSON(cmd.OutOrStdout(), quest)
		},
	}
}

// NewPublishCommand creates the publish command
func NewPublishCommand(newService ServiceFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "publish <document-id> <file>",
		Short: "Publish or republish a quest document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := requireUser(cmd)
			if err != nil {
				return err
			}
			content, err := readContent(args[1])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[1], err)
			}

			svc, cleanup, err := newService(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to create service: %w", err)
			}
			defer cleanup()

			id, err := svc.Publish(cmd.Context(), userID, args[0], content)
			if err != nil {
				return printValidation(cmd.OutOrStdout(), fmt.Errorf("publish failed: %w", err))
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Published %s\n", id)
			return nil
		},
	}
}

// NewUnpublishCommand creates the unpublish command
func NewUnpublishCommand(newService ServiceFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "unpublish <document-id>",
		Short: "Unpublish a quest; it can never be republished",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := requireUser(cmd)
			if err != nil {
				return err
			}

			svc, cleanup, err := newService(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to create service: %w", err)
			}
			defer cleanup()

			id, err := svc.Unpublish(cmd.Context(), userID, args[0])
			if err != nil {
				return fmt.Errorf("unpublish failed: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Unpublished %s\n", id)
			return nil
		},
	}
}

// NewGetCommand creates the get command
func NewGetCommand(newService ServiceFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "get <quest-id>",
		Short: "Show one quest record, tombstoned or not",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := newService(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to create service: %w", err)
			}
			defer cleanup()

			quest, err := svc.GetQuest(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), quest)
		},
	}
}

// NewSearchCommand creates the search command
func NewSearchCommand(newService ServiceFactory) *cobra.Command {
	var (
		id             string
		owner          string
		players        int
		text           string
		publishedAfter int
		order          string
		limit          int
		token          string
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search quests",
		Long: `Search quests visible to --user (anonymous when empty). At least one of
--id, --owner, --players, --search or --published-after is required.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			params := map[string]string{}
			set := func(key, value string) {
				if value != "" {
					params[key] = value
				}
			}
			set(questpub.ParamID, id)
			set(questpub.ParamOwner, owner)
			set(questpub.ParamSearch, text)
			set(questpub.ParamOrder, order)
			set(questpub.ParamToken, token)
			if players > 0 {
				set(questpub.ParamPlayers, strconv.Itoa(players))
			}
			if publishedAfter > 0 {
				set(questpub.ParamPublishedAfter, strconv.Itoa(publishedAfter))
			}
			if limit > 0 {
				set(questpub.ParamLimit, strconv.Itoa(limit))
			}

			req, err := questpub.ParseSearchRequest(params)
			if err != nil {
				return printValidation(cmd.OutOrStdout(), err)
			}

			svc, cleanup, err := newService(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to create service: %w", err)
			}
			defer cleanup()

			userID, _ := cmd.Flags().GetString("user")
			result, err := svc.Search(cmd.Context(), userID, req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "quest id")
	cmd.Flags().StringVar(&owner, "owner", "", "owner user id")
	cmd.Flags().IntVar(&players, "players", 0, "party size the quest must support")
	cmd.Flags().StringVarP(&text, "search", "s", "", "text to find in title or summary")
	cmd.Flags().IntVar(&publishedAfter, "published-after", 0, "only quests published within this many seconds")
	cmd.Flags().StringVar(&order, "order", "", "sort order, e.g. -published or +title")
	cmd.Flags().IntVar(&limit, "limit", 0, "page size")
	cmd.Flags().StringVar(&token, "token", "", "continuation token from a previous page")

	return cmd
}

// NewAuditCommand creates the audit command
func NewAuditCommand(newService ServiceFactory) *cobra.Command {
	var (
		owner     string
		batchSize int
		dryRun    bool
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Re-validate an owner's stored quest records",
		Long: `Page through an owner's quests, drafts included when --user is the owner,
and check every stored record against the current schema. Exits non-zero
when any record fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if owner == "" {
				return errors.New("--owner is required")
			}

			svc, cleanup, err := newService(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to create service: %w", err)
			}
			defer cleanup()

			userID, _ := cmd.Flags().GetString("user")
			result, err := scan.New(svc, nil).Scan(cmd.Context(), scan.ScanOptions{
				UserID:    userID,
				Request:   questpub.SearchRequest{Owner: owner, Order: "+id", Limit: batchSize},
				Processor: scan.Auditor{},
				DryRun:    dryRun,
			})
			if err != nil {
				return fmt.Errorf("audit failed: %w", err)
			}

			out := cmd.OutOrStdout()
			for _, id := range result.FailedIDs() {
				fmt.Fprintf(out, "%s:\n", id)
				printValidation(out, result.Failures[id])
			}
			fmt.Fprintf(out, "Checked %d quests, %d failed\n", result.TotalFound, result.TotalFailed)

			if result.TotalFailed > 0 {
				return fmt.Errorf("%d quest records failed validation", result.TotalFailed)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "owner whose quests are audited")
	cmd.Flags().IntVar(&batchSize, "batch-size", 100, "quests fetched per page")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "only count matching quests")

	return cmd
}
