package main

import (
	"github.com/spf13/cobra"

	"github.com/dreamware/kvclient/internal/members"
)

func newMemberCmd() *cobra.Command {
	memberCmd := &cobra.Command{
		Use:   "member",
		Short: "Cluster membership",
		Long: `List, add, remove and update cluster members.

Examples:
  kvctl member list
  kvctl member add http://10.0.0.4:2380
  kvctl member update 8e9e05c52164694d http://10.0.0.5:2380
  kvctl member remove 8e9e05c52164694d`,
	}

	memberCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List cluster members",
		Args:  cobra.NoArgs,
		RunE:  runMemberList,
	})
	memberCmd.AddCommand(&cobra.Command{
		Use:   "add <peerURL>...",
		Short: "Add a member reachable at the given peer URLs",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runMemberAdd,
	})
	memberCmd.AddCommand(&cobra.Command{
		Use:   "remove <memberID>",
		Short: "Remove a member",
		Args:  cobra.ExactArgs(1),
		RunE:  runMemberRemove,
	})
	memberCmd.AddCommand(&cobra.Command{
		Use:   "update <memberID> <peerURL>...",
		Short: "Replace the peer URLs of a member",
		Args:  cobra.MinimumNArgs(2),
		RunE:  runMemberUpdate,
	})
	return memberCmd
}

func runMemberList(cmd *cobra.Command, args []string) error {
	c, err := newClient(cmd)
	if err != nil {
		return err
	}
	resp, err := members.List(cmd.Context(), c)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), resp.Data)
}

func runMemberAdd(cmd *cobra.Command, args []string) error {
	c, err := newClient(cmd)
	if err != nil {
		return err
	}
	resp, err := members.Add(cmd.Context(), c, args)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), resp.Data)
}

func runMemberRemove(cmd *cobra.Command, args []string) error {
	c, err := newClient(cmd)
	if err != nil {
		return err
	}
	if _, err := members.Delete(cmd.Context(), c, args[0]); err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), map[string]string{"removed": args[0]})
}

func runMemberUpdate(cmd *cobra.Command, args []string) error {
	c, err := newClient(cmd)
	if err != nil {
		return err
	}
	id, peerURLs := args[0], args[1:]
	if _, err := members.Update(cmd.Context(), c, id, peerURLs); err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), members.Member{ID: id, PeerURLs: peerURLs})
}
