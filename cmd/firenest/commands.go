package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/birbparty/firenest/internal/telemetry"
	"github.com/birbparty/firenest/sdk"
	"github.com/spf13/cobra"
)

// run wraps a command body in a timed operation
func run(name string, fn func(ctx context.Context, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, done := telemetry.TimeOperation(cmd.Context(), "cli."+name)
		err := fn(ctx, cmd, args)
		if err != nil {
			telemetry.RecordError(ctx, err)
			done("error")
			return err
		}
		done("ok")
		return nil
	}
}

var getCmd = &cobra.Command{
	Use:   "get <collection/id>",
	Short: "Print a document",
	Args:  cobra.ExactArgs(1),
	RunE: run("get", func(ctx context.Context, cmd *cobra.Command, args []string) error {
		collection, id, err := splitPath(args[0])
		if err != nil {
			return err
		}
		doc, err := client.Get(ctx, collection, id)
		if err != nil {
			return err
		}
		return printDocuments(cmd.OutOrStdout(), doc)
	}),
}

var listCmd = &cobra.Command{
	Use:   "list <collection>",
	Short: "Print every document of a collection",
	Args:  cobra.ExactArgs(1),
	RunE: run("list", func(ctx context.Context, cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		count := 0
		for doc, err := range client.List(ctx, args[0]).All() {
			if err != nil {
				return err
			}
			if err := printDocuments(cmd.OutOrStdout(), doc); err != nil {
				return err
			}
			count++
			if limit > 0 && count >= limit {
				break
			}
		}
		return nil
	}),
}

var queryCmd = &cobra.Command{
	Use:   "query <collection>",
	Short: "Print the documents matching a filter",
	Long: `Print the documents matching a filter.

The filter is "field op value" where op is one of
==, !=, <, <=, >, >=, array-contains, in, array-contains-any, not-in
and value is JSON. Orders are "field", "field:asc" or "field:desc".`,
	Args: cobra.ExactArgs(1),
	RunE: run("query", func(ctx context.Context, cmd *cobra.Command, args []string) error {
		where, _ := cmd.Flags().GetString("where")
		orders, _ := cmd.Flags().GetStringArray("order")

		var filter *sdk.Filter
		if where != "" {
			var err error
			if filter, err = parseWhere(where); err != nil {
				return err
			}
		}

		var orderBy []sdk.Order
		for _, o := range orders {
			order, err := parseOrder(o)
			if err != nil {
				return err
			}
			orderBy = append(orderBy, order)
		}

		docs, err := client.Query(ctx, args[0], filter, orderBy)
		if err != nil {
			return err
		}
		return printDocuments(cmd.OutOrStdout(), docs...)
	}),
}

var writeCmd = &cobra.Command{
	Use:   "write <collection> [id]",
	Short: "Write a document from JSON",
	Long: `Write a document from JSON read from --data, --file or stdin.

Without an id the document is created under a generated id, which is
printed.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: run("write", func(ctx context.Context, cmd *cobra.Command, args []string) error {
		data, _ := cmd.Flags().GetString("data")
		file, _ := cmd.Flags().GetString("file")
		merge, _ := cmd.Flags().GetBool("merge")
		mustExist, _ := cmd.Flags().GetBool("must-exist")
		mustNotExist, _ := cmd.Flags().GetBool("must-not-exist")

		if mustExist && mustNotExist {
			return errors.New("--must-exist and --must-not-exist are exclusive")
		}

		var fields sdk.MapFields
		var err error
		switch {
		case data != "":
			fields, err = parseData(strings.NewReader(data))
		case file != "":
			f, openErr := os.Open(file)
			if openErr != nil {
				return openErr
			}
			defer f.Close()
			fields, err = parseData(f)
		default:
			fields, err = parseData(cmd.InOrStdin())
		}
		if err != nil {
			return err
		}

		opts := sdk.WriteOptions{Merge: merge}
		switch {
		case mustExist:
			opts.Precondition = sdk.MustExist()
		case mustNotExist:
			opts.Precondition = sdk.MustNotExist()
		}

		id := ""
		if len(args) == 2 {
			id = args[1]
		}
		result, err := client.Write(ctx, args[0], id, fields, opts)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s/%s updated %s\n", args[0], result.DocumentID, result.UpdateTime.Format("2006-01-02T15:04:05.000000Z07:00"))
		return nil
	}),
}

var deleteCmd = &cobra.Command{
	Use:   "delete <collection/id>",
	Short: "Delete a document",
	Args:  cobra.ExactArgs(1),
	RunE: run("delete", func(ctx context.Context, cmd *cobra.Command, args []string) error {
		mustExist, _ := cmd.Flags().GetBool("must-exist")
		return client.Delete(ctx, strings.Trim(args[0], "/"), mustExist)
	}),
}

func init() {
	listCmd.Flags().Int("limit", 0, "Stop after this many documents")

	queryCmd.Flags().String("where", "", `Filter, e.g. "score >= 10"`)
	queryCmd.Flags().StringArray("order", nil, "Order by field[:asc|desc]; repeatable")

	writeCmd.Flags().String("data", "", "Document fields as a JSON object")
	writeCmd.Flags().StringP("file", "f", "", "Read the JSON object from a file")
	writeCmd.Flags().Bool("merge", false, "Only replace the given top level fields")
	writeCmd.Flags().Bool("must-exist", false, "Fail unless the document exists")
	writeCmd.Flags().Bool("must-not-exist", false, "Fail if the document exists")

	deleteCmd.Flags().Bool("must-exist", false, "Fail if the document does not exist")
}
