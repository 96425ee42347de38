package main

import (
	"github.com/spf13/cobra"

	"github.com/dreamware/kvclient/internal/cluster"
	"github.com/dreamware/kvclient/internal/kv"
)

func newGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Read a key or directory",
		Args:  cobra.ExactArgs(1),
		RunE:  runGet,
	}
	cmd.Flags().Bool("recursive", false, "Return every key below a directory")
	cmd.Flags().Bool("sort", false, "Sort directory entries by key")
	cmd.Flags().Bool("quorum", false, "Require a quorum read")
	return cmd
}

func newSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Write a key; with --prev-value or --prev-index only if it matches",
		Args:  cobra.ExactArgs(2),
		RunE:  runSet,
	}
	cmd.Flags().Uint64("ttl", 0, "Key lifetime in seconds")
	addConditionFlags(cmd)
	return cmd
}

func newMkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mk <key> <value>",
		Short: "Create a key that must not exist yet",
		Args:  cobra.ExactArgs(2),
		RunE:  runMk,
	}
	cmd.Flags().Uint64("ttl", 0, "Key lifetime in seconds")
	return cmd
}

func newUpdateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <key> <value>",
		Short: "Update a key that must already exist",
		Args:  cobra.ExactArgs(2),
		RunE:  runUpdate,
	}
	cmd.Flags().Uint64("ttl", 0, "Key lifetime in seconds")
	return cmd
}

func newRmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rm <key>",
		Short: "Delete a key; with --prev-value or --prev-index only if it matches",
		Args:  cobra.ExactArgs(1),
		RunE:  runRm,
	}
	cmd.Flags().Bool("recursive", false, "Delete a directory and everything below it")
	addConditionFlags(cmd)
	return cmd
}

func addConditionFlags(cmd *cobra.Command) {
	cmd.Flags().String("prev-value", "", "Require the current value to equal this")
	cmd.Flags().Uint64("prev-index", 0, "Require the current modified index to equal this")
}

// conditions reads --prev-value and --prev-index. Only flags given on the
// command line count, so an empty --prev-value is a real condition.
func conditions(cmd *cobra.Command) kv.ComparisonConditions {
	var cond kv.ComparisonConditions
	if cmd.Flags().Changed("prev-value") {
		v, _ := cmd.Flags().GetString("prev-value")
		cond.Value = &v
	}
	if cmd.Flags().Changed("prev-index") {
		idx, _ := cmd.Flags().GetUint64("prev-index")
		cond.ModifiedIndex = &idx
	}
	return cond
}

func ttlFlag(cmd *cobra.Command) *uint64 {
	if !cmd.Flags().Changed("ttl") {
		return nil
	}
	ttl, _ := cmd.Flags().GetUint64("ttl")
	return &ttl
}

func printKeyResult(cmd *cobra.Command, resp cluster.Response[kv.KeyValueInfo], err error) error {
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), resp.Data)
}

func runGet(cmd *cobra.Command, args []string) error {
	c, err := newClient(cmd)
	if err != nil {
		return err
	}
	var opts kv.GetOptions
	opts.Recursive, _ = cmd.Flags().GetBool("recursive")
	opts.Sort, _ = cmd.Flags().GetBool("sort")
	opts.Strong, _ = cmd.Flags().GetBool("quorum")

	resp, err := kv.Get(cmd.Context(), c, args[0], opts)
	return printKeyResult(cmd, resp, err)
}

func runSet(cmd *cobra.Command, args []string) error {
	c, err := newClient(cmd)
	if err != nil {
		return err
	}
	key, value := args[0], args[1]

	if cond := conditions(cmd); !cond.IsEmpty() {
		resp, err := kv.CompareAndSwap(cmd.Context(), c, key, value, ttlFlag(cmd), cond)
		return printKeyResult(cmd, resp, err)
	}
	resp, err := kv.Set(cmd.Context(), c, key, value, ttlFlag(cmd))
	return printKeyResult(cmd, resp, err)
}

func runMk(cmd *cobra.Command, args []string) error {
	c, err := newClient(cmd)
	if err != nil {
		return err
	}
	resp, err := kv.Create(cmd.Context(), c, args[0], args[1], ttlFlag(cmd))
	return printKeyResult(cmd, resp, err)
}

func runUpdate(cmd *cobra.Command, args []string) error {
	c, err := newClient(cmd)
	if err != nil {
		return err
	}
	resp, err := kv.Update(cmd.Context(), c, args[0], args[1], ttlFlag(cmd))
	return printKeyResult(cmd, resp, err)
}

func runRm(cmd *cobra.Command, args []string) error {
	c, err := newClient(cmd)
	if err != nil {
		return err
	}

	if cond := conditions(cmd); !cond.IsEmpty() {
		resp, err := kv.CompareAndDelete(cmd.Context(), c, args[0], cond)
		return printKeyResult(cmd, resp, err)
	}
	recursive, _ := cmd.Flags().GetBool("recursive")
	resp, err := kv.Delete(cmd.Context(), c, args[0], recursive)
	return printKeyResult(cmd, resp, err)
}
