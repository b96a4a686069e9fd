package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/raphaelgruber/docchat/internal/models"
	"github.com/raphaelgruber/docchat/internal/reconcile"
	"github.com/raphaelgruber/docchat/internal/service"
	"github.com/spf13/cobra"
)

var (
	itemsSearch     string
	itemsMimeType   string
	itemsActiveOnly bool
	itemsAll        bool
	itemsPermanent  bool
	itemsPlain      bool
)

var itemsCmd = &cobra.Command{
	Use:   "items",
	Short: "Manage the documents of a conversation",
	Long: `Manage items, the ingested documents a conversation's answers are
grounded in. Only active items are cited by the assistant.

Examples:
  docchat items list -c 42
  docchat items add https://example.com/report.pdf -c 42
  docchat items search quarterly -c 42 --active-only
  docchat items toggle 7
  docchat items watch -c 42`,
}

var itemsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List items",
	Long: `List the selected conversation's items, or items across all
conversations with --all.`,
	Args: cobra.NoArgs,
	RunE: runItemsList,
}

var itemsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show an item",
	Args:  cobra.ExactArgs(1),
	RunE:  runItemsShow,
}

var itemsSearchCmd = &cobra.Command{
	Use:   "search <term>",
	Short: "Search the selected conversation's items by name",
	Args:  cobra.ExactArgs(1),
	RunE:  runItemsSearch,
}

var itemsToggleCmd = &cobra.Command{
	Use:   "toggle <id>",
	Short: "Switch an item between active and inactive",
	Args:  cobra.ExactArgs(1),
	RunE:  runItemsToggle,
}

var itemsRenameCmd = &cobra.Command{
	Use:   "rename <id> <name>",
	Short: "Rename an item",
	Args:  cobra.ExactArgs(2),
	RunE:  runItemsRename,
}

var itemsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an item",
	Long: `Delete an item. Without --permanent the backend keeps a soft-deleted
copy. Listings catch up with the delete over the next few seconds and the
command follows that refresh. --plain waits for it without the
interactive view.`,
	Args: cobra.ExactArgs(1),
	RunE: runItemsDelete,
}

var itemsAddCmd = &cobra.Command{
	Use:   "add <link>",
	Short: "Ingest a document into the selected conversation",
	Long: `Hand a document link to the ingestion service. The new item shows up
after ingestion finishes; the command follows the refresh until then.
Use --plain in scripts.`,
	Args: cobra.ExactArgs(1),
	RunE: runItemsAdd,
}

var itemsWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the selected conversation's items as they change",
	Args:  cobra.NoArgs,
	RunE:  runItemsWatch,
}

func init() {
	itemsListCmd.Flags().StringVarP(&itemsSearch, "search", "s", "", "filter by file name")
	itemsListCmd.Flags().StringVar(&itemsMimeType, "mime-type", "", "filter by MIME type")
	itemsListCmd.Flags().BoolVar(&itemsActiveOnly, "active-only", false, "only active items")
	itemsListCmd.Flags().BoolVar(&itemsAll, "all", false, "list items of every conversation")
	itemsSearchCmd.Flags().BoolVar(&itemsActiveOnly, "active-only", false, "only active items")
	itemsDeleteCmd.Flags().BoolVar(&itemsPermanent, "permanent", false, "delete without keeping a soft-deleted copy")
	itemsDeleteCmd.Flags().BoolVar(&itemsPlain, "plain", false, "wait for the refresh without the interactive view")
	itemsAddCmd.Flags().BoolVar(&itemsPlain, "plain", false, "wait for the refresh without the interactive view")

	itemsCmd.AddCommand(itemsListCmd)
	itemsCmd.AddCommand(itemsShowCmd)
	itemsCmd.AddCommand(itemsSearchCmd)
	itemsCmd.AddCommand(itemsToggleCmd)
	itemsCmd.AddCommand(itemsRenameCmd)
	itemsCmd.AddCommand(itemsDeleteCmd)
	itemsCmd.AddCommand(itemsAddCmd)
	itemsCmd.AddCommand(itemsWatchCmd)
}

func runItemsList(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)

	params := service.ListItemsParams{}
	if itemsSearch != "" {
		params.Search = &itemsSearch
	}
	if itemsMimeType != "" {
		params.MimeType = &itemsMimeType
	}
	if itemsActiveOnly {
		params.ActiveOnly = &itemsActiveOnly
	}

	var items []models.Item
	var err error
	switch {
	case itemsAll:
		items, err = application.Items(ctx, params)
	case params == (service.ListItemsParams{}):
		var conv string
		if conv, err = requireConversation(); err != nil {
			return err
		}
		items, err = application.ItemsByConversation(ctx, conv)
	default:
		var conv string
		if conv, err = requireConversation(); err != nil {
			return err
		}
		params.ConversationID = &conv
		items, err = application.Items(ctx, params)
		items = models.FilterByConversation(items, conv)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(items) == 0 {
		fmt.Fprintln(out, "No items found.")
		return nil
	}
	fmt.Fprintf(out, "Items (%d):\n", len(items))
	printItems(out, items)
	return nil
}

// printItems writes one line per item, active items marked.
func printItems(out io.Writer, items []models.Item) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintln(out)
	for _, it := range items {
		state := "inactive"
		if it.Active {
			state = defaultTheme.completedStyle().Render("active")
		}
		fmt.Fprintf(out, "- %s  %s [%s]\n", it.ID, it.FileName, state)
		if verbose {
			fmt.Fprintf(out, "  %s, %s\n", it.MimeType, formatSize(it.Size))
			if it.SourceURI != "" {
				fmt.Fprintf(out, "  %s\n", it.SourceURI)
			}
		}
	}
}

func formatSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

func runItemsShow(cmd *cobra.Command, args []string) error {
	item, err := application.Item(commandContext(cmd), args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s\n", item.FileName)
	fmt.Fprintf(out, "  ID:           %s\n", item.ID)
	fmt.Fprintf(out, "  Active:       %t\n", item.Active)
	fmt.Fprintf(out, "  Type:         %s\n", item.MimeType)
	fmt.Fprintf(out, "  Size:         %s\n", formatSize(item.Size))
	if item.ConversationID != "" {
		fmt.Fprintf(out, "  Conversation: %s\n", item.ConversationID)
	}
	if item.SourceURI != "" {
		fmt.Fprintf(out, "  Source:       %s\n", item.SourceURI)
	}
	return nil
}

func runItemsSearch(cmd *cobra.Command, args []string) error {
	conv, err := requireConversation()
	if err != nil {
		return err
	}

	items, err := application.SearchItems(commandContext(cmd), conv, args[0], itemsActiveOnly)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(items) == 0 {
		fmt.Fprintf(out, "No items match %q.\n", args[0])
		return nil
	}
	fmt.Fprintf(out, "Matches for %q (%d):\n", args[0], len(items))
	printItems(out, items)
	return nil
}

func runItemsToggle(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)

	item, err := application.Item(ctx, args[0])
	if err != nil {
		return err
	}
	updated, err := application.ToggleItemActive(ctx, *item)
	if err != nil {
		return err
	}

	state := "inactive"
	if updated.Active {
		state = "active"
	}
	fmt.Fprintln(cmd.OutOrStdout(), defaultTheme.completedStyle().Render(fmt.Sprintf("✓ %s is now %s", updated.FileName, state)))
	return nil
}

func runItemsRename(cmd *cobra.Command, args []string) error {
	updated, err := application.RenameItem(commandContext(cmd), args[0], args[1])
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), defaultTheme.completedStyle().Render("✓ Renamed to "+updated.FileName))
	return nil
}

func runItemsDelete(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	out := cmd.OutOrStdout()

	seq, err := application.DeleteItem(ctx, args[0], itemsPermanent)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, defaultTheme.completedStyle().Render("✓ Deleted item "+args[0]))

	return follow(cmd, seq, "")
}

func runItemsAdd(cmd *cobra.Command, args []string) error {
	conv, err := requireConversation()
	if err != nil {
		return err
	}

	resp, seq, err := application.AddItem(commandContext(cmd), conv, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), defaultTheme.completedStyle().Render(fmt.Sprintf("✓ Submitted %s (%s)", resp.FileName, resp.ItemID)))

	return follow(cmd, seq, resp.ItemID)
}

// follow shows the refresh that trails a mutation. The process must not
// exit before it ends, or the refresh is cut short.
func follow(cmd *cobra.Command, seq *reconcile.Sequence, waitFor string) error {
	if seq == nil {
		return nil
	}
	ctx := commandContext(cmd)
	conv, _ := strings.CutPrefix(seq.Scope(), "items:")

	if !itemsPlain {
		return runWatch(ctx, application, watchOptions{
			conversationID: conv,
			seq:            seq,
			follow:         true,
			waitFor:        waitFor,
		})
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, defaultTheme.hintStyle().Render("Refreshing listings..."))
	res, err := seq.Wait(ctx)
	if err != nil {
		return fmt.Errorf("wait for refresh: %w", err)
	}
	if res.Attempts > 0 && res.Failures == res.Attempts {
		fmt.Fprintln(out, defaultTheme.errorStyle().Render(fmt.Sprintf("✗ Refresh failed after %d attempts", res.Attempts)))
		return nil
	}

	items := application.ItemStore().Items(conv)
	fmt.Fprintf(out, "Items (%d):\n", len(items))
	printItems(out, items)
	if waitFor != "" && !containsItem(items, waitFor) {
		fmt.Fprintln(out, defaultTheme.hintStyle().Render("The new item is still being ingested."))
	}
	return nil
}

func runItemsWatch(cmd *cobra.Command, args []string) error {
	conv, err := requireConversation()
	if err != nil {
		return err
	}

	err = runWatch(commandContext(cmd), application, watchOptions{conversationID: conv})

	// Leaving the view refreshes once more on the short schedule.
	seq := application.CloseItemsDialog(conv)
	if _, waitErr := seq.Wait(commandContext(cmd)); waitErr != nil && err == nil {
		err = fmt.Errorf("wait for refresh: %w", waitErr)
	}
	return err
}
