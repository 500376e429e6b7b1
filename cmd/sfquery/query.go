package main

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/DrewBradfordXYZ/sforce-go"
	"github.com/DrewBradfordXYZ/sforce-go/client"
)

var queryOpts = struct {
	Count  bool
	Stream bool
}{}

var queryCommand = newQueryCommand(sforce.QueryStandard, "query",
	"Run a query and print every matching record",
	`This command runs a query, follows the query locator until the result is
done and prints the records as a JSON array.

Usage examples:

1. All accounts with their contacts:

	sfquery query "SELECT Id, Name, (SELECT LastName FROM Contacts) FROM Account"

2. Stream a large result as one JSON object per line:

	sfquery query --stream "SELECT Id, Subject FROM Task"

3. Count matching records without keeping them:

	sfquery query --count "SELECT Id FROM Lead"
`)

var queryAllCommand = newQueryCommand(sforce.QueryIncludeArchived, "queryall",
	"Run a query that also returns deleted and archived records",
	`This command behaves like query but includes records in the recycle bin
and archived activities.

Usage examples:

	sfquery queryall "SELECT Id, IsDeleted FROM Account WHERE IsDeleted = true"
`)

func newQueryCommand(mode client.QueryMode, use, short, long string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " <soql>",
		Short: short,
		Long:  long,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, mode, strings.Join(args, " "))
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&queryOpts.Count, "count", false,
		"Print only the number of matching records")
	flags.BoolVar(&queryOpts.Stream, "stream", false,
		"Print records as they arrive, one JSON object per line")

	return cmd
}

func runQuery(cmd *cobra.Command, mode client.QueryMode, soql string) error {
	sf, err := clientFromContext(cmd.Context())
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	switch {
	case queryOpts.Count && queryOpts.Stream:
		return errors.New("--count and --stream are mutually exclusive")

	case queryOpts.Count:
		n, err := client.Execute(ctx, sf.Client, mode, client.QueryConfig[int]{
			Query:    soql,
			Callback: new(client.Counter).Add,
		})
		if err != nil {
			return err
		}
		return writeJSON(out, map[string]int{"totalSize": n}, rootOpts.Pretty)

	case queryOpts.Stream:
		records := sf.QueryIterator(ctx, soql)
		if mode == client.QueryIncludeArchived {
			records = sf.QueryAllIterator(ctx, soql)
		}
		for rec, err := range records {
			if err != nil {
				return err
			}
			if err := writeJSON(out, rec, false); err != nil {
				return err
			}
		}
		return nil

	default:
		records, err := client.Execute(ctx, sf.Client, mode, client.QueryConfig[[]sforce.Record]{
			Query:    soql,
			Callback: client.NewCollector().Add,
		})
		if err != nil {
			return err
		}
		return writeJSON(out, records, rootOpts.Pretty)
	}
}

var retrieveOpts = struct {
	Type      string
	Fields    []string
	FromStdin bool
}{}

var retrieveCommand = &cobra.Command{
	Use:   "retrieve <id>...",
	Short: "Fetch records by id",
	Long: `This command fetches the given fields of records by id. The output array
is aligned with the ids; ids that were not found print as null.

Usage examples:

	sfquery retrieve --type Account --fields Id,Name 001A 001B
	cat ids.txt | sfquery retrieve --type Contact --fields Id,Email --stdin
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sf, err := clientFromContext(cmd.Context())
		if err != nil {
			return err
		}

		ids, err := idsFromArgs(args, retrieveOpts.FromStdin)
		if err != nil {
			return err
		}

		records, err := sf.Retrieve(cmd.Context(), retrieveOpts.Fields, retrieveOpts.Type, ids...)
		if err != nil {
			return err
		}

		return writeJSON(cmd.OutOrStdout(), records, rootOpts.Pretty)
	},
}

func init() {
	flags := retrieveCommand.Flags()
	flags.StringVar(&retrieveOpts.Type, "type", "",
		"Object type of the records, such as Account")
	flags.StringSliceVar(&retrieveOpts.Fields, "fields", []string{sforce.FieldID},
		"Comma separated fields to fetch")
	flags.BoolVar(&retrieveOpts.FromStdin, "stdin", false,
		"Read ids from standard input")
	_ = retrieveCommand.MarkFlagRequired("type")
}

// idsFromArgs returns the ids given as arguments, or read from standard input.
func idsFromArgs(args []string, fromStdin bool) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	source, err := getReader("", fromStdin)
	if err != nil {
		return nil, errors.New("ids as arguments or --stdin are required")
	}
	defer source.Close()

	return readIDs(source)
}
