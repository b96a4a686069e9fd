package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/raphaelgruber/docchat/internal/models"
	"github.com/spf13/cobra"
)

var (
	convTitleFilter string
	convContext     string
	convNewTitle    string
	convDeleteForce bool
)

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"conv"},
	Short:   "Manage conversations",
	Long: `Manage conversations. A conversation groups the documents the assistant
may cite and the chat history about them.

Examples:
  docchat conversations list
  docchat conversations create "Q3 planning" --context "Finance docs for Q3"
  docchat conversations show 42
  docchat conversations delete 42`,
}

var conversationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations",
	Args:  cobra.NoArgs,
	RunE:  runConversationsList,
}

var conversationsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a conversation and its items",
	Args:  cobra.ExactArgs(1),
	RunE:  runConversationsShow,
}

var conversationsCreateCmd = &cobra.Command{
	Use:   "create <title>",
	Short: "Create a conversation",
	Args:  cobra.ExactArgs(1),
	RunE:  runConversationsCreate,
}

var conversationsUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Change a conversation's title or context",
	Args:  cobra.ExactArgs(1),
	RunE:  runConversationsUpdate,
}

var conversationsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an empty conversation",
	Long: `Delete a conversation. Conversations that still hold items cannot be
deleted; remove the items first.

Requires confirmation unless --force is used.`,
	Args: cobra.ExactArgs(1),
	RunE: runConversationsDelete,
}

func init() {
	conversationsListCmd.Flags().StringVarP(&convTitleFilter, "title", "t", "", "filter by title")
	conversationsCreateCmd.Flags().StringVar(&convContext, "context", "", "background the assistant should know")
	conversationsUpdateCmd.Flags().StringVarP(&convNewTitle, "title", "t", "", "new title")
	conversationsUpdateCmd.Flags().StringVar(&convContext, "context", "", "new context")
	conversationsDeleteCmd.Flags().BoolVarP(&convDeleteForce, "force", "f", false, "skip confirmation")

	conversationsCmd.AddCommand(conversationsListCmd)
	conversationsCmd.AddCommand(conversationsShowCmd)
	conversationsCmd.AddCommand(conversationsCreateCmd)
	conversationsCmd.AddCommand(conversationsUpdateCmd)
	conversationsCmd.AddCommand(conversationsDeleteCmd)
}

func runConversationsList(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	convs, err := application.Conversations(commandContext(cmd), convTitleFilter)
	if err != nil {
		return err
	}

	if len(convs) == 0 {
		fmt.Fprintln(out, "No conversations found.")
		return nil
	}

	fmt.Fprintf(out, "Conversations (%d):\n\n", len(convs))
	for _, c := range convs {
		marker := ""
		if c.ID == conversationID {
			marker = defaultTheme.statusStyle().Render(" (selected)")
		}
		fmt.Fprintf(out, "- %s  %s%s\n", c.ID, c.Title, marker)
		if verbose && c.Context != "" {
			fmt.Fprintf(out, "  %s\n", truncate(c.Context, 80))
		}
	}
	return nil
}

func runConversationsShow(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	out := cmd.OutOrStdout()

	conv, err := application.Conversation(ctx, args[0])
	if err != nil {
		return err
	}
	items, err := application.ItemsByConversation(ctx, conv.ID)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%s\n", conv.Title)
	fmt.Fprintf(out, "  ID:      %s\n", conv.ID)
	if conv.Context != "" {
		fmt.Fprintf(out, "  Context: %s\n", conv.Context)
	}
	if !conv.CreatedAt.IsZero() {
		fmt.Fprintf(out, "  Created: %s\n", conv.CreatedAt.Format("2006-01-02 15:04"))
	}
	fmt.Fprintf(out, "  Items:   %d\n", len(items))
	printItems(out, items)
	return nil
}

func runConversationsCreate(cmd *cobra.Command, args []string) error {
	conv, err := application.CreateConversation(commandContext(cmd), args[0], convContext)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), defaultTheme.completedStyle().Render(fmt.Sprintf("✓ Created conversation %s (%s)", conv.Title, conv.ID)))
	return nil
}

func runConversationsUpdate(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)

	current, err := application.Conversation(ctx, args[0])
	if err != nil {
		return err
	}

	title := current.Title
	if cmd.Flags().Changed("title") {
		title = convNewTitle
	}
	contextText := current.Context
	if cmd.Flags().Changed("context") {
		contextText = convContext
	}

	conv, err := application.UpdateConversation(ctx, current.ID, title, contextText)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), defaultTheme.completedStyle().Render("✓ Updated "+conv.Title))
	return nil
}

func runConversationsDelete(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	out := cmd.OutOrStdout()

	conv, err := application.Conversation(ctx, args[0])
	if err != nil {
		return err
	}

	if !convDeleteForce {
		ok, err := confirm(cmd.InOrStdin(), out, fmt.Sprintf("About to delete: %s (%s)", conv.Title, conv.ID))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(out, "Cancelled.")
			return nil
		}
	}

	err = application.DeleteConversation(ctx, conv.ID)
	var validation *models.ValidationError
	if errors.As(err, &validation) && validation.Field == "items" {
		n, _ := application.ItemStore().Count(conv.ID)
		fmt.Fprintln(out, renderBlocked(defaultTheme, *conv, n))
		return validation
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(out, defaultTheme.completedStyle().Render("✓ Deleted "+conv.Title))
	return nil
}

// confirm asks a y/N question on out and reads the answer from in.
func confirm(in io.Reader, out io.Writer, prompt string) (bool, error) {
	fmt.Fprintln(out, prompt)
	fmt.Fprint(out, "\nContinue? [y/N]: ")

	response, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("read input: %w", err)
	}
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes", nil
}
