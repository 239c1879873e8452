package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
)

const defaultServer = "http://localhost:3001"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var server string

	root := &cobra.Command{
		Use:          "chatctl",
		Short:        "Terminal client for chatrelay sessions",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&server, "server", "s", envOr("CHATCTL_SERVER", defaultServer), "chatrelay base URL")

	client := func() *apiClient { return newAPIClient(server, nil) }

	var sessionID string
	chatCmd := &cobra.Command{
		Use:   "chat",
		Short: "Open a session and chat line by line",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd.Context(), client(), sessionID, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	chatCmd.Flags().StringVar(&sessionID, "session", "", "resume an existing session id")

	historyCmd := &cobra.Command{
		Use:   "history <session-id>",
		Short: "Print a session transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := client().get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, t := range sess.Transcript {
				writeTurn(out, t)
			}
			return nil
		},
	}

	closeCmd := &cobra.Command{
		Use:   "close <session-id>",
		Short: "Close a session and discard its transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client().close(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "closed %s\n", args[0])
			return nil
		},
	}

	root.AddCommand(chatCmd, historyCmd, closeCmd)
	return root
}

// runChat reads one message per line until EOF or "/quit". A resumed session
// replays its transcript first.
func runChat(ctx context.Context, c *apiClient, sessionID string, in io.Reader, out io.Writer) error {
	sess, err := c.open(ctx, sessionID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "session %s\n", sess.ID)
	for _, t := range sess.Transcript {
		writeTurn(out, t)
	}

	r := &renderer{w: out}
	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !sc.Scan() {
			fmt.Fprintln(out)
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/close":
			if err := c.close(ctx, sess.ID); err != nil {
				return err
			}
			fmt.Fprintln(out, "session closed")
			return nil
		}

		if err := c.send(ctx, sess.ID, line, r.update); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(out, "! %v\n", err)
		}
	}
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
