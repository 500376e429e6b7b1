package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/DrewBradfordXYZ/sforce-go"
)

var writeOpts = struct {
	FromStdin  bool
	ExternalID string
}{}

type recordWriter func(ctx context.Context, sf *sforce.Client, records []sforce.Record) ([]sforce.WriteResult, error)

type idWriter func(ctx context.Context, sf *sforce.Client, ids []string) ([]sforce.WriteResult, error)

var createCommand = newRecordCommand("create",
	"Create records from JSON",
	`This command creates the records read from a JSON file or standard input.
Each record names its object type in the "type" key. Records are sent in
chunks of 200; the printed results are in input order.

Usage examples:

	sfquery create accounts.json
	echo '{"type":"Account","Name":"Acme"}' | sfquery create --stdin
`,
	func(ctx context.Context, sf *sforce.Client, records []sforce.Record) ([]sforce.WriteResult, error) {
		return sf.Create(ctx, records...)
	})

var updateCommand = newRecordCommand("update",
	"Update records from JSON",
	`This command updates the records read from a JSON file or standard input.
Each record carries "type" and "Id"; a null value clears the field.

Usage examples:

	sfquery update changes.json
`,
	func(ctx context.Context, sf *sforce.Client, records []sforce.Record) ([]sforce.WriteResult, error) {
		return sf.Update(ctx, records...)
	})

var upsertCommand = newRecordCommand("upsert",
	"Insert or update records matched on an external id field",
	`This command upserts the records read from a JSON file or standard input,
matching existing records on --external-id.

Usage examples:

	sfquery upsert --external-id Legacy_Id__c accounts.json
`,
	func(ctx context.Context, sf *sforce.Client, records []sforce.Record) ([]sforce.WriteResult, error) {
		return sf.Upsert(ctx, writeOpts.ExternalID, records...)
	})

var deleteCommand = newIDCommand("delete",
	"Delete records by id",
	`This command moves the given records to the recycle bin.

Usage examples:

	sfquery delete 001A 001B
	cat ids.txt | sfquery delete --stdin
`,
	func(ctx context.Context, sf *sforce.Client, ids []string) ([]sforce.WriteResult, error) {
		return sf.Delete(ctx, ids...)
	})

var undeleteCommand = newIDCommand("undelete",
	"Restore deleted records by id",
	`This command restores the given records from the recycle bin.

Usage examples:

	sfquery undelete 001A 001B
`,
	func(ctx context.Context, sf *sforce.Client, ids []string) ([]sforce.WriteResult, error) {
		return sf.Undelete(ctx, ids...)
	})

func init() {
	upsertCommand.Flags().StringVar(&writeOpts.ExternalID, "external-id", "",
		"External id field used to match existing records")
	_ = upsertCommand.MarkFlagRequired("external-id")
}

func newRecordCommand(use, short, long string, write recordWriter) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " [file]",
		Short: short,
		Long:  long,
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) > 1 {
				return errors.New("only one file path is allowed")
			} else if len(args) == 1 {
				path = args[0]
			}

			source, err := getReader(path, writeOpts.FromStdin)
			if err != nil {
				return err
			}
			defer source.Close()

			records, err := readRecords(source)
			if err != nil {
				return err
			}

			sf, err := clientFromContext(cmd.Context())
			if err != nil {
				return err
			}

			results, err := write(cmd.Context(), sf, records)
			return printResults(cmd, results, err)
		},
	}

	cmd.Flags().BoolVar(&writeOpts.FromStdin, "stdin", false,
		"Read records from standard input. Ignored if a file is provided as an argument.")

	return cmd
}

func newIDCommand(use, short, long string, write idWriter) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " <id>...",
		Short: short,
		Long:  long,
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := idsFromArgs(args, writeOpts.FromStdin)
			if err != nil {
				return err
			}

			sf, err := clientFromContext(cmd.Context())
			if err != nil {
				return err
			}

			results, err := write(cmd.Context(), sf, ids)
			return printResults(cmd, results, err)
		},
	}

	cmd.Flags().BoolVar(&writeOpts.FromStdin, "stdin", false,
		"Read ids from standard input")

	return cmd
}

// printResults prints whatever results came back, including the chunks
// written before a create failed, then returns err.
func printResults(cmd *cobra.Command, results []sforce.WriteResult, err error) error {
	if len(results) > 0 || err == nil {
		if werr := writeJSON(cmd.OutOrStdout(), results, rootOpts.Pretty); werr != nil {
			return werr
		}
	}
	if err != nil {
		return err
	}

	for _, r := range results {
		if !r.Success {
			return errors.New("one or more records failed")
		}
	}
	return nil
}
