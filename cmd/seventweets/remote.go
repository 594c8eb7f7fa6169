package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"seventweets/pkg/client"
	"seventweets/pkg/types"

	"github.com/spf13/cobra"
)

// remoteFlags address a running node
type remoteFlags struct {
	node       string
	token      string
	timeout    time.Duration
	jsonOutput bool
}

func (f *remoteFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.node, "node", "localhost:8000", "address of the node to talk to")
	cmd.Flags().StringVar(&f.token, "token", os.Getenv("ST_API_TOKEN"), "API token of the node")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 10*time.Second, "request timeout")
	cmd.Flags().BoolVar(&f.jsonOutput, "json", false, "print JSON instead of a table")
}

func (f *remoteFlags) target() types.PeerIdentity {
	return types.PeerIdentity{Name: "target", Address: f.node}
}

func (f *remoteFlags) client() *client.Client {
	return client.NewClient(f.timeout, f.token, setupLogger(verbose))
}

func writeJSONOutput(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func joinCmd() *cobra.Command {
	var f remoteFlags

	cmd := &cobra.Command{
		Use:   "join <name@address>",
		Short: "Make a running node join the network of a seed node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seed, err := types.ParsePeerIdentity(args[0])
			if err != nil {
				return err
			}

			resp, err := f.client().Join(context.Background(), f.target(), seed)
			if err != nil {
				return fmt.Errorf("join failed: %w", err)
			}

			out := cmd.OutOrStdout()
			if f.jsonOutput {
				return writeJSONOutput(out, resp)
			}

			fmt.Fprintf(out, "%s %s\n", successStyle.Render("Joined network of"), resp.Seed)
			fmt.Fprintln(out, renderPeersTable(resp.Peers, types.PeerIdentity{}))
			if len(resp.Unreachable) > 0 {
				names := make([]string, len(resp.Unreachable))
				for i, p := range resp.Unreachable {
					names[i] = p.String()
				}
				fmt.Fprintln(out, warningStyle.Render("Unreachable: "+strings.Join(names, ", ")))
			}
			return nil
		},
	}

	f.register(cmd)
	return cmd
}

func peersCmd() *cobra.Command {
	var f remoteFlags

	cmd := &cobra.Command{
		Use:   "peers",
		Short: "List the nodes known to a running node",
		RunE: func(cmd *cobra.Command, args []string) error {
			nodes, err := f.client().KnownNodes(context.Background(), f.target())
			if err != nil {
				return fmt.Errorf("failed to list peers: %w", err)
			}

			out := cmd.OutOrStdout()
			if f.jsonOutput {
				return writeJSONOutput(out, nodes)
			}

			// the node lists itself last
			var self types.PeerIdentity
			if len(nodes) > 0 {
				self = nodes[len(nodes)-1]
			}
			fmt.Fprintln(out, renderPeersTable(nodes, self))
			return nil
		},
	}

	f.register(cmd)
	return cmd
}

func searchCmd() *cobra.Command {
	var (
		f    remoteFlags
		from string
		to   string
		all  bool
	)

	cmd := &cobra.Command{
		Use:   "search [content]",
		Short: "Search tweets on a node, or on its whole network with --all",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if len(args) == 1 {
				q.Set(types.ParamContent, args[0])
			}
			q.Set(types.ParamCreatedFrom, from)
			q.Set(types.ParamCreatedTo, to)

			criteria, err := types.ParseSearchCriteria(q)
			if err != nil {
				return err
			}

			c := f.client()
			var tweets []types.Tweet
			if all {
				tweets, err = c.GlobalSearch(context.Background(), f.target(), criteria)
			} else {
				tweets, err = c.Search(context.Background(), f.target(), criteria)
			}
			if err != nil {
				return fmt.Errorf("search failed: %w", err)
			}

			out := cmd.OutOrStdout()
			if f.jsonOutput {
				return writeJSONOutput(out, tweets)
			}
			fmt.Fprintln(out, renderTweetsTable(tweets))
			return nil
		},
	}

	f.register(cmd)
	cmd.Flags().StringVar(&from, "from", "", "only tweets created at or after this time")
	cmd.Flags().StringVar(&to, "to", "", "only tweets created at or before this time")
	cmd.Flags().BoolVar(&all, "all", false, "search every node known to the target node")
	return cmd
}

func postCmd() *cobra.Command {
	var f remoteFlags

	cmd := &cobra.Command{
		Use:   "post <tweet>",
		Short: "Post a tweet on a node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := f.client().PostTweet(context.Background(), f.target(), args[0])
			if err != nil {
				return fmt.Errorf("failed to post tweet: %w", err)
			}

			out := cmd.OutOrStdout()
			if f.jsonOutput {
				return writeJSONOutput(out, t)
			}
			fmt.Fprintln(out, renderTweetsTable([]types.Tweet{*t}))
			return nil
		},
	}

	f.register(cmd)
	return cmd
}
