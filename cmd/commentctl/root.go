package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sr-verde/gitmentario/common/id"
	"github.com/sr-verde/gitmentario/core/config"
	"github.com/sr-verde/gitmentario/internal/comment"
	"github.com/sr-verde/gitmentario/internal/http/dto"
	"github.com/sr-verde/gitmentario/internal/model"
	"github.com/sr-verde/gitmentario/internal/site"
)

type app struct {
	site   config.SiteConfig
	nodeID int64
}

var (
	labelColor   = color.New(color.FgCyan)
	pendingColor = color.New(color.FgYellow, color.Bold)
	okColor      = color.New(color.FgGreen)
)

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "commentctl",
		Short:         "Inspect gitmentario comment files",
		SilenceUsage: true,
	}
	root.AddCommand(
		newParseCmd(),
		newPathCmd(a),
		newSchemaCmd(),
		newTokenCmd(a),
	)
	return root
}

func newParseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "parse <file>",
		Short: "Decode a comment file and print its fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			doc, err := comment.Deserialize(content)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			printDocument(cmd.OutOrStdout(), doc)
			return nil
		},
	}
}

func printDocument(out io.Writer, doc comment.Document) {
	field := func(name, value string) {
		if value == "" {
			return
		}
		labelColor.Fprintf(out, "%-12s", name+":")
		fmt.Fprintln(out, value)
	}

	field("token", doc.Token.String())
	field("page", doc.ContentID)
	field("author", doc.Author)
	field("contact", doc.Contact)
	field("contact_hash", doc.ContactHash)
	field("date", doc.Date.Format("2006-01-02T15:04:05.999999999Z07:00"))
	field("parent", doc.Parent.String())

	labelColor.Fprintf(out, "%-12s", "moderation:")
	if doc.State == model.ModerationPending {
		pendingColor.Fprintln(out, doc.State)
	} else {
		okColor.Fprintln(out, doc.State)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, doc.Body)
}

func newPathCmd(a *app) *cobra.Command {
	var pending bool

	cmd := &cobra.Command{
		Use:   "path <content-id> <token>",
		Short: "Print the repository path of a comment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			contentID, token := args[0], model.Token(args[1])
			if err := model.ValidateContentID(contentID); err != nil {
				return err
			}
			if !token.Valid() {
				return fmt.Errorf("%w: %q is not a comment token", model.ErrValidation, token)
			}

			state := model.ModerationApproved
			if pending {
				state = model.ModerationPending
			}
			bucket := site.BucketFor(a.site.ContentDir, contentID)
			fmt.Fprintln(cmd.OutOrStdout(), site.NewResolver(a.site).Resolve(bucket, token, state))
			return nil
		},
	}
	cmd.Flags().BoolVar(&pending, "pending", false, "resolve the path of a held comment")
	return cmd
}

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON schema of the submission request",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(dto.SubmitCommentSchema())
		},
	}
}

func newTokenCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Draw a comment token from the configured node",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			gen, err := id.NewGenerator(a.nodeID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), gen.Next())
			return nil
		},
	}
}
