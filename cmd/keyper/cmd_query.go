package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/keyperdb/keyper/internal/collection"
)

var (
	queryWhere  string
	queryOrder  string
	queryLimit  int
	queryOffset int
	queryForce  bool
	getForce    bool
)

var getCmd = &cobra.Command{
	Use:   "get <collection> <pk>",
	Short: "Fetch a single entity by primary key",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCollection(args[0])
		if err != nil {
			return err
		}
		e, err := c.FetchOne(context.Background(), args[1], nil, getForce)
		if err != nil {
			return err
		}
		return printJSON(e.Fields())
	},
}

var queryCmd = &cobra.Command{
	Use:   "query <collection>",
	Short: "Fetch entities from the SQLite Data Source via a Criteria where clause",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCollection(args[0])
		if err != nil {
			return err
		}

		params, err := parseFilterParams()
		if err != nil {
			return err
		}

		res, err := c.Fetch(context.Background(), params, nil, queryForce)
		if err != nil {
			return err
		}
		items := make([]map[string]any, len(res.Items))
		for i, e := range res.Items {
			items[i] = e.Fields()
		}
		return printJSON(map[string]any{"items": items, "total": res.Total})
	},
}

func parseFilterParams() (collection.FilterParams, error) {
	var params collection.FilterParams

	if queryWhere != "" {
		if err := json.Unmarshal([]byte(queryWhere), &params.Where); err != nil {
			return params, fmt.Errorf("parsing --where: %w", err)
		}
	}
	if queryOrder != "" {
		var orderBy any
		if err := json.Unmarshal([]byte(queryOrder), &orderBy); err != nil {
			// Fall back to treating it as a bare field name.
			orderBy = queryOrder
		}
		params.OrderBy = orderBy
	}
	if cmdFlagChanged(queryCmd, "limit") {
		params.Limit = queryLimit
		params.HasLimit = true
	}
	if cmdFlagChanged(queryCmd, "offset") {
		params.Offset = queryOffset
		params.HasOffset = true
	}
	return params, nil
}

func cmdFlagChanged(cmd *cobra.Command, name string) bool {
	f := cmd.Flags().Lookup(name)
	return f != nil && f.Changed
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	queryCmd.Flags().StringVar(&queryWhere, "where", "", "Criteria where clause, as JSON")
	queryCmd.Flags().StringVar(&queryOrder, "order-by", "", "order spec: a field name, \"field-\" for descending, or a JSON array of terms")
	queryCmd.Flags().IntVar(&queryLimit, "limit", 0, "max rows to return")
	queryCmd.Flags().IntVar(&queryOffset, "offset", 0, "rows to skip")
	queryCmd.Flags().BoolVar(&queryForce, "force", false, "bypass the query cache and reload from the Data Source")
	getCmd.Flags().BoolVar(&getForce, "force", false, "bypass the cache and reload from the Data Source")

	rootCmd.AddCommand(getCmd, queryCmd)
}
