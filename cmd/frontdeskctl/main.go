package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/h1v3-io/frontdesk/pkg/protocol"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	var addr, key string
	var api *client

	root := &cobra.Command{
		Use:   "frontdeskctl",
		Short: "Operate a running frontdesk daemon",
		Long: `frontdeskctl talks to frontdeskd's JSON API.

Environment:
  FRONTDESK_API_URL    Daemon URL (default: http://localhost:8080)
  FRONTDESK_ADMIN_KEY  Admin key for authenticated routes`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			api = newClient(strings.TrimRight(addr, "/"), key)
		},
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&addr, "addr", envOr("FRONTDESK_API_URL", "http://localhost:8080"), "daemon URL")
	root.PersistentFlags().StringVar(&key, "key", os.Getenv("FRONTDESK_ADMIN_KEY"), "admin key")

	current := func() *client { return api }
	root.AddCommand(
		newHealthCmd(current),
		newAskCmd(current),
		newTicketsCmd(current),
		newKBCmd(current),
	)
	return root
}

func newHealthCmd(api func() *client) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check daemon health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := api().get("/api/health")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(string(body)))
			return nil
		},
	}
}

func newAskCmd(api func() *client) *cobra.Command {
	var caller string
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question as a caller would",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := api().post("/api/ask", map[string]string{
				"caller":   caller,
				"question": strings.Join(args, " "),
			})
			if err != nil {
				return err
			}
			var res protocol.AskResult
			if err := json.Unmarshal(body, &res); err != nil {
				return fmt.Errorf("decode answer: %w", err)
			}
			if res.Found {
				fmt.Fprintln(cmd.OutOrStdout(), res.Answer)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "escalated to a supervisor (ticket %s)\n", res.TicketID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&caller, "caller", "frontdeskctl", "caller name recorded on the ticket")
	return cmd
}

func newTicketsCmd(api func() *client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tickets",
		Short: "List, inspect and resolve help requests",
	}

	var state, caller string
	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List help requests (--state, --caller, --limit)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			q.Set("limit", strconv.Itoa(limit))
			if state != "" {
				q.Set("state", state)
			}
			if caller != "" {
				q.Set("caller", caller)
			}
			body, err := api().get("/api/tickets?" + q.Encode())
			if err != nil {
				return err
			}
			var tickets []protocol.HelpRequest
			if err := json.Unmarshal(body, &tickets); err != nil {
				return fmt.Errorf("decode tickets: %w", err)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TICKET\tSTATE\tCALLER\tQUESTION")
			for _, t := range tickets {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.TicketID, t.State, t.Caller, t.Question)
			}
			return w.Flush()
		},
	}
	list.Flags().StringVar(&state, "state", "", "comma-separated states (pending, resolved, unresolved)")
	list.Flags().StringVar(&caller, "caller", "", "filter by caller")
	list.Flags().IntVar(&limit, "limit", 50, "max results")

	show := &cobra.Command{
		Use:   "show <ticket_id>",
		Short: "Show a help request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := api().get("/api/tickets/" + url.PathEscape(args[0]))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), prettyJSON(body))
			return nil
		},
	}

	resolve := &cobra.Command{
		Use:   "resolve <ticket_id> <answer>",
		Short: "Answer a pending help request and teach it to the knowledge base",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := api().post("/api/tickets/"+url.PathEscape(args[0])+"/resolve", map[string]string{
				"answer": strings.Join(args[1:], " "),
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ticket %s resolved\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(list, show, resolve)
	return cmd
}

func newKBCmd(api func() *client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kb",
		Short: "Maintain the knowledge base",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List knowledge base entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := api().get("/api/kb")
			if err != nil {
				return err
			}
			var entries []protocol.KBEntry
			if err := json.Unmarshal(body, &entries); err != nil {
				return fmt.Errorf("decode entries: %w", err)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tQUESTION\tANSWER")
			for _, e := range entries {
				fmt.Fprintf(w, "%d\t%s\t%s\n", e.ID, e.Question, e.Answer)
			}
			return w.Flush()
		},
	}

	add := &cobra.Command{
		Use:   "add <question> <answer>",
		Short: "Add a knowledge base entry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := api().post("/api/kb", map[string]string{"question": args[0], "answer": args[1]})
			if err != nil {
				return err
			}
			var e protocol.KBEntry
			if err := json.Unmarshal(body, &e); err != nil {
				return fmt.Errorf("decode entry: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added entry %d\n", e.ID)
			return nil
		},
	}

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a knowledge base entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid id %q", args[0])
			}
			if err := api().delete(fmt.Sprintf("/api/kb/%d", id)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted entry %d\n", id)
			return nil
		},
	}

	cmd.AddCommand(list, add, del)
	return cmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
