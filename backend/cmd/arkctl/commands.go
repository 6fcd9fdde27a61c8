package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"noahs-ark/backend/internal/api"
	"noahs-ark/backend/internal/app"
	"noahs-ark/backend/internal/gedcom"
	"noahs-ark/backend/internal/genealogy"
	"noahs-ark/backend/internal/graph"
	"noahs-ark/backend/internal/records"
)

// appFactory opens the application for one command run
type appFactory func(ctx context.Context) (*app.App, error)

type cli struct {
	open    appFactory
	timeout time.Duration
}

func newRootCmd(open appFactory) *cobra.Command {
	c := &cli{open: open}

	root := &cobra.Command{
		Use:           "arkctl",
		Short:         "Administer the Noah's Ark genealogy backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().DurationVar(&c.timeout, "timeout", 30*time.Second, "overall deadline for the command")

	root.AddCommand(
		&cobra.Command{
			Use:   "ping-db",
			Short: "Check that every configured backend answers",
			Args:  cobra.NoArgs,
			RunE:  c.withApp(c.pingDB),
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Create the Postgres tables and the Neo4j constraints",
			Args:  cobra.NoArgs,
			RunE:  c.withApp(c.migrate),
		},
		c.seedPersonCmd(),
		&cobra.Command{
			Use:   "sosa <person-id>",
			Short: "Print the Sosa numbering of a person's ancestors",
			Args:  cobra.ExactArgs(1),
			RunE:  c.withApp(c.sosa),
		},
		&cobra.Command{
			Use:   "consanguinity <person-id>",
			Short: "Print a person's consanguinity coefficient",
			Args:  cobra.ExactArgs(1),
			RunE:  c.withApp(c.consanguinity),
		},
		c.exportCmd(),
	)
	return root
}

type runFunc func(ctx context.Context, a *app.App, cmd *cobra.Command, args []string) error

// withApp opens the application, runs fn under the command deadline and
// releases everything afterwards
func (c *cli) withApp(fn runFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), c.timeout)
		defer cancel()

		a, err := c.open(ctx)
		if err != nil {
			return fmt.Errorf("failed to open application: %w", err)
		}
		defer a.Close(context.Background())

		return fn(ctx, a, cmd, args)
	}
}

func (c *cli) pingDB(ctx context.Context, a *app.App, cmd *cobra.Command, _ []string) error {
	names := make([]string, 0, len(a.Checks))
	for name := range a.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	out := cmd.OutOrStdout()
	var failed int
	for _, name := range names {
		if err := a.Checks[name](ctx); err != nil {
			failed++
			fmt.Fprintf(out, "%-8s FAIL %v\n", name, err)
			continue
		}
		fmt.Fprintf(out, "%-8s ok\n", name)
	}
	if failed > 0 {
		return fmt.Errorf("%d backend(s) unreachable", failed)
	}
	return nil
}

func (c *cli) migrate(ctx context.Context, a *app.App, cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	if pg, ok := a.Records.(*records.PostgresStore); ok {
		if err := pg.Migrate(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "records: schema applied")
	} else {
		fmt.Fprintln(out, "records: in-memory, nothing to migrate")
	}
	if neo, ok := a.Graph.(*graph.Neo4jStore); ok {
		if err := neo.EnsureSchema(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "graph: constraints ensured")
	} else {
		fmt.Fprintln(out, "graph: in-memory, nothing to migrate")
	}
	return nil
}

func (c *cli) seedPersonCmd() *cobra.Command {
	var first, surname, sex string
	var public bool
	cmd := &cobra.Command{
		Use:   "seed-person",
		Short: "Create a person and print its identifier",
		Args:  cobra.NoArgs,
		RunE: c.withApp(func(ctx context.Context, a *app.App, cmd *cobra.Command, _ []string) error {
			p, err := a.Coordinator.CreatePerson(ctx, genealogy.Person{
				FirstName: first,
				Surname:   surname,
				Sex:       genealogy.ParseSex(sex),
				Public:    public,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), p.ID)
			return nil
		}),
	}
	cmd.Flags().StringVar(&first, "first-name", "", "first name")
	cmd.Flags().StringVar(&surname, "surname", "", "surname")
	cmd.Flags().StringVar(&sex, "sex", "", "male, female or unknown")
	cmd.Flags().BoolVar(&public, "public", false, "make the record public")
	_ = cmd.MarkFlagRequired("first-name")
	_ = cmd.MarkFlagRequired("surname")
	return cmd
}

func (c *cli) sosa(ctx context.Context, a *app.App, cmd *cobra.Command, args []string) error {
	id, err := genealogy.ParsePersonID(args[0])
	if err != nil {
		return err
	}
	view, err := api.NewService(a.APIDeps()).Sosa(ctx, id)
	if err != nil {
		return err
	}
	writeSosa(cmd.OutOrStdout(), view)
	return nil
}

func writeSosa(w io.Writer, view *api.SosaView) {
	for _, e := range view.Ancestors {
		fmt.Fprintf(w, "%6d  gen %-3d %s %s (%s)\n", e.Sosa, e.Generation, e.FirstName, e.Surname, e.ID)
	}
	for _, e := range view.Implex {
		fmt.Fprintf(w, "implex %s also %v\n", e.PersonID, e.Numbers)
	}
}

func (c *cli) consanguinity(ctx context.Context, a *app.App, cmd *cobra.Command, args []string) error {
	id, err := genealogy.ParsePersonID(args[0])
	if err != nil {
		return err
	}
	view, err := api.NewService(a.APIDeps()).Consanguinity(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %.6f\n", view.PersonID, view.Coefficient)
	return nil
}

func (c *cli) exportCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "export <person-id>",
		Short: "Export a person record as GEDCOM-style JSON",
		Args:  cobra.ExactArgs(1),
		RunE: c.withApp(func(ctx context.Context, a *app.App, cmd *cobra.Command, args []string) error {
			id, err := genealogy.ParsePersonID(args[0])
			if err != nil {
				return err
			}
			p, err := a.Coordinator.GetPerson(ctx, id)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch format {
			case "gedcom":
				rec, err := gedcom.ExportPerson(*p)
				if err != nil {
					return err
				}
				data, err := json.MarshalIndent(rec, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(data))
			case "json":
				text, err := gedcom.ToJSON(*p)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, text)
			default:
				return fmt.Errorf("unknown format %q", format)
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&format, "format", "gedcom", "gedcom or json")
	return cmd
}
