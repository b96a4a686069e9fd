package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/raphaelgruber/docchat/internal/app"
	"github.com/raphaelgruber/docchat/internal/markdown"
	"github.com/raphaelgruber/docchat/internal/models"
	"github.com/raphaelgruber/docchat/internal/service"
	"github.com/spf13/cobra"
)

var (
	chatNoRAG    bool
	chatTopK     int
	chatLimit    int
	chatShowRefs bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Ask questions about a conversation's documents",
	Long: `Ask questions answered from the active items of a conversation.

Examples:
  docchat chat send -c 42 "What were the Q3 revenue drivers?"
  docchat chat send -c 42 --top-k 8 "Summarize the risks section"
  docchat chat history -c 42 --limit 50`,
}

var chatSendCmd = &cobra.Command{
	Use:   "send <message>",
	Short: "Send a message and print the answer",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runChatSend,
}

var chatHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the most recent messages",
	Args:  cobra.NoArgs,
	RunE:  runChatHistory,
}

func init() {
	chatSendCmd.Flags().BoolVar(&chatNoRAG, "no-rag", false, "answer without retrieving from documents")
	chatSendCmd.Flags().IntVarP(&chatTopK, "top-k", "k", 0, "number of excerpts to retrieve (server default when 0)")
	chatSendCmd.Flags().BoolVar(&chatShowRefs, "refs", false, "print the cited excerpts")
	chatHistoryCmd.Flags().IntVarP(&chatLimit, "limit", "n", service.DefaultHistoryLimit, "max messages")

	chatCmd.AddCommand(chatSendCmd)
	chatCmd.AddCommand(chatHistoryCmd)
}

func runChatSend(cmd *cobra.Command, args []string) error {
	conv, err := requireConversation()
	if err != nil {
		return err
	}

	var opts []app.ChatOption
	if chatNoRAG {
		opts = append(opts, app.WithRAG(false))
	}
	if chatTopK > 0 {
		opts = append(opts, app.WithTopK(chatTopK))
	}

	resp, err := application.SendMessage(commandContext(cmd), conv, strings.Join(args, " "), opts...)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprint(out, renderReply(defaultTheme, resp.Message.Content))
	printReferences(out, resp.Message, chatShowRefs || verbose)
	return nil
}

// renderReply styles the headings of a Markdown answer.
func renderReply(t Theme, content string) string {
	doc := markdown.Parse(content)

	var b strings.Builder
	if doc.Preamble != "" {
		b.WriteString(doc.Preamble + "\n")
	}
	for _, s := range doc.Sections {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(t.statusStyle().Bold(true).Render(s.Heading) + "\n")
		if s.Content != "" {
			b.WriteString(s.Content + "\n")
		}
	}
	return b.String()
}

// printReferences lists the documents an answer draws on. Sources the
// answer cites inline are marked.
func printReferences(out io.Writer, msg models.Message, excerpts bool) {
	if len(msg.References) == 0 {
		return
	}
	cited := make(map[int]bool)
	for _, n := range markdown.Citations(msg.Content) {
		cited[n] = true
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, defaultTheme.hintStyle().Render("Sources:"))
	for i, r := range msg.References {
		fmt.Fprintf(out, "  [%d] %s", i+1, r.FileName)
		if r.Score > 0 {
			fmt.Fprintf(out, " (%.2f)", r.Score)
		}
		if cited[i+1] {
			fmt.Fprint(out, " "+defaultTheme.completedStyle().Render("cited"))
		}
		fmt.Fprintln(out)
		if excerpts && r.Content != "" {
			fmt.Fprintf(out, "      %s\n", markdown.Excerpt(r.Content, 160))
		}
	}
}

func runChatHistory(cmd *cobra.Command, args []string) error {
	conv, err := requireConversation()
	if err != nil {
		return err
	}

	msgs, err := application.ChatHistory(commandContext(cmd), conv, chatLimit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(msgs) == 0 {
		fmt.Fprintln(out, "No messages yet.")
		return nil
	}
	for _, m := range msgs {
		speaker := defaultTheme.statusStyle().Render("you")
		if m.Role == models.RoleAssistant {
			speaker = defaultTheme.completedStyle().Render("assistant")
		}
		stamp := ""
		if !m.CreatedAt.IsZero() {
			stamp = defaultTheme.hintStyle().Render(" " + m.CreatedAt.Format("2006-01-02 15:04"))
		}
		fmt.Fprintf(out, "%s%s\n%s\n", speaker, stamp, renderReply(defaultTheme, m.Content))
	}
	return nil
}
