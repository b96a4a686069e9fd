package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	loginUsername string
	loginRefresh  bool
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in to the document-chat service",
	Long: `Sign in with your username and password.

The password is read without echo when stdin is a terminal, otherwise
from the first line of stdin. Credentials are kept for seven days.

Examples:
  docchat login
  docchat login --username alice
  echo "$PASSWORD" | docchat login -u alice
  docchat login --refresh`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and forget stored credentials",
	Args:  cobra.NoArgs,
	RunE:  runLogout,
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	Args:  cobra.NoArgs,
	RunE:  runWhoami,
}

func init() {
	loginCmd.Flags().StringVarP(&loginUsername, "username", "u", "", "username (prompted when empty)")
	loginCmd.Flags().BoolVar(&loginRefresh, "refresh", false, "renew the stored credentials instead of signing in")
}

func runLogin(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	out := cmd.OutOrStdout()

	if loginRefresh {
		user, err := application.Refresh(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, defaultTheme.completedStyle().Render("✓ Session renewed for "+user.DisplayName()))
		return nil
	}

	in := bufio.NewReader(cmd.InOrStdin())
	username := loginUsername
	if username == "" {
		fmt.Fprint(out, "Username: ")
		line, err := in.ReadString('\n')
		if err != nil && err != io.EOF {
			return fmt.Errorf("read username: %w", err)
		}
		username = strings.TrimSpace(line)
	}

	fmt.Fprint(out, "Password: ")
	password, err := readPassword(in)
	fmt.Fprintln(out)
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}

	user, err := application.SignIn(ctx, username, password)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, defaultTheme.completedStyle().Render("✓ Signed in as "+user.DisplayName()))
	return nil
}

// readPassword reads without echo from a terminal, or a line from in otherwise.
func readPassword(in *bufio.Reader) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	line, err := in.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	if err := application.SignOut(); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
	return nil
}

func runWhoami(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	session := application.Session()
	if !session.IsAuthenticated || session.User == nil {
		fmt.Fprintln(out, defaultTheme.hintStyle().Render("Not signed in. Run 'docchat login'."))
		return nil
	}

	u := session.User
	fmt.Fprintf(out, "%s\n", u.DisplayName())
	fmt.Fprintf(out, "  Username: %s\n", u.Username)
	if u.Email != "" {
		fmt.Fprintf(out, "  Email:    %s\n", u.Email)
	}
	if verbose {
		for k, v := range u.Attributes {
			fmt.Fprintf(out, "  %s: %s\n", k, v)
		}
	}
	return nil
}
