package main

import (
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/praneth2580/storix/internal/join"
)

// viewPrinter fetches one joined view, or one record of it when id is set.
type viewPrinter func(views *join.Engine, id string) (any, error)

func one[V any](v *V, err error, id string) (any, error) {
	if err != nil {
		return nil, err
	}

	if v == nil {
		return nil, fmt.Errorf("no record %q in this view", id)
	}

	return v, nil
}

var showViews = map[string]viewPrinter{
	"products": func(v *join.Engine, id string) (any, error) {
		if id == "" {
			return v.Products()
		}

		p, err := v.ProductByID(id)

		return one(p, err, id)
	},
	"variants": func(v *join.Engine, id string) (any, error) {
		if id == "" {
			return v.Variants()
		}

		p, err := v.VariantByID(id)

		return one(p, err, id)
	},
	"stock": func(v *join.Engine, id string) (any, error) {
		if id == "" {
			return v.StockItems()
		}

		p, err := v.StockByID(id)

		return one(p, err, id)
	},
	"customers": func(v *join.Engine, id string) (any, error) {
		if id == "" {
			return v.Customers()
		}

		p, err := v.CustomerByID(id)

		return one(p, err, id)
	},
	"suppliers": func(v *join.Engine, id string) (any, error) {
		if id == "" {
			return v.Suppliers()
		}

		p, err := v.SupplierByID(id)

		return one(p, err, id)
	},
}

func showViewNames() string {
	return strings.Join(slices.Sorted(maps.Keys(showViews)), ", ")
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <view> [id]",
		Short: "Sync, then print a joined view as JSON",
		Long: fmt.Sprintf(`Run a full sync, then print a joined view as JSON. With an id, print only
that record. Views: %s.`, showViewNames()),
		Args: cobra.RangeArgs(1, 2),
		RunE: runShow,
	}
}

func runShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cc := mustCLIContext(ctx)

	printer, ok := showViews[args[0]]
	if !ok {
		return fmt.Errorf("unknown view %q (views: %s)", args[0], showViewNames())
	}

	var id string
	if len(args) == 2 {
		id = args[1]
	}

	s, err := openSession(ctx, cc)
	if err != nil {
		return err
	}
	defer s.Close()

	if _, err := s.engine.SyncAll(ctx); err != nil {
		return err
	}

	out, err := printer(s.views, id)
	if err != nil {
		return err
	}

	return printJSON(os.Stdout, out)
}
