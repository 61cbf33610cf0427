package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"portmap-ai/pkg/model"
)

var nodesCmd = &cobra.Command{
	Use:   "nodes",
	Short: "List registered nodes",
	RunE:  runNodes,
}

var nodeCmd = &cobra.Command{
	Use:   "node [node-id]",
	Short: "Show one node as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runNode,
}

var enqueueCmd = &cobra.Command{
	Use:   "enqueue [node-id] [type] [value]",
	Short: "Queue a command for a node (scan_now, set_interval, set_autolearn, reload_config)",
	Args:  cobra.RangeArgs(2, 3),
	RunE:  runEnqueue,
}

var nodesJSON bool

func init() {
	nodesCmd.Flags().BoolVar(&nodesJSON, "json", false, "print raw JSON")
}

func runNodes(cmd *cobra.Command, _ []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	nodes, err := c.ListNodes(cmd.Context())
	if err != nil {
		return err
	}
	if nodesJSON {
		return printJSON(cmd.OutOrStdout(), nodes)
	}
	printNodes(cmd.OutOrStdout(), nodes, time.Now())
	return nil
}

func runNode(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	node, err := c.GetNode(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), node)
}

func runEnqueue(cmd *cobra.Command, args []string) error {
	command := model.Command{"type": args[1]}
	if len(args) == 3 {
		command["value"] = parseValue(args[2])
	}
	c, err := newClient()
	if err != nil {
		return err
	}
	if err := c.Enqueue(cmd.Context(), args[0], command); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Queued %s for %s\n", args[1], args[0])
	return nil
}

// parseValue turns CLI text into a JSON-friendly value: integers, booleans, else string.
func parseValue(s string) interface{} {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}

func printNodes(w io.Writer, nodes []model.Node, now time.Time) {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].NodeID < nodes[j].NodeID })
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NODE\tROLE\tADDRESS\tSTATUS\tLAST SEEN")
	for _, n := range nodes {
		age := now.Sub(time.Unix(n.LastSeen, 0)).Truncate(time.Second)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s ago\n", n.NodeID, n.Role, dash(n.Address), n.Status, age)
	}
	tw.Flush()
}

func dash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
