// forestctl - offline inspection tool for an annforest directory.
//
// Usage:
//
//	forestctl create -dir PATH -f DIM [-k K] [-trees N] [-metric angular|euclidean]
//	forestctl add -dir PATH -id ID -vec "1,2,3"
//	forestctl query -dir PATH -vec "1,2,3" -n N [-search-k K]
//	forestctl stats -dir PATH
//
// This sits outside the forest's core scope (spec.md §1 excludes CLI
// wrapping) but is carried as the ambient "some way to drive it" layer
// every example in the pack provides in some form, following
// cmd/turdb/main.go's plain flag-dispatch style rather than a
// third-party CLI framework.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"annforest/pkg/annforest"
	"annforest/pkg/config"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "create":
		err = runCreate(os.Args[2:])
	case "add":
		err = runAdd(os.Args[2:])
	case "query":
		err = runQuery(os.Args[2:])
	case "stats":
		err = runStats(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "forestctl: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: forestctl <create|add|query|stats> [flags]")
}

func runCreate(args []string) error {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	dir := fs.String("dir", "", "forest directory")
	f := fs.Int("f", 0, "vector dimension")
	k := fs.Int("k", 0, "leaf capacity (0 = default)")
	trees := fs.Int("trees", 1, "tree count")
	metric := fs.String("metric", "angular", "angular|euclidean")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *dir == "" || *f <= 0 {
		return fmt.Errorf("create: -dir and -f are required")
	}

	opts := config.DefaultOptions(*f)
	opts.Directory = *dir
	opts.TreeCount = *trees
	opts.Metric = *metric
	if *k > 0 {
		opts.K = *k
	}

	ix, err := annforest.Open(opts)
	if err != nil {
		return err
	}
	if err := ix.Close(); err != nil {
		return err
	}
	return config.Save(opts, *dir+"/forestctl.yaml")
}

func runAdd(args []string) error {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	dir := fs.String("dir", "", "forest directory")
	id := fs.Int("id", 0, "item id")
	vecStr := fs.String("vec", "", "comma-separated vector")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *dir == "" || *vecStr == "" {
		return fmt.Errorf("add: -dir and -vec are required")
	}

	vec, err := parseVec(*vecStr)
	if err != nil {
		return err
	}

	opts, err := openExistingOptions(*dir, len(vec))
	if err != nil {
		return err
	}
	ix, err := annforest.Open(opts)
	if err != nil {
		return err
	}
	defer ix.Close()

	return ix.AddItem(int32(*id), vec)
}

func runQuery(args []string) error {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	dir := fs.String("dir", "", "forest directory")
	vecStr := fs.String("vec", "", "comma-separated query vector")
	n := fs.Int("n", 10, "number of results")
	searchK := fs.Int("search-k", 0, "search candidate budget (0 = default)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *dir == "" || *vecStr == "" {
		return fmt.Errorf("query: -dir and -vec are required")
	}

	vec, err := parseVec(*vecStr)
	if err != nil {
		return err
	}

	opts, err := openExistingOptions(*dir, len(vec))
	if err != nil {
		return err
	}
	opts.ReadOnly = true
	ix, err := annforest.Open(opts)
	if err != nil {
		return err
	}
	defer ix.Close()

	ids, dists, err := ix.GetNNSByVector(vec, *n, *searchK, true)
	if err != nil {
		return err
	}
	for i, id := range ids {
		fmt.Printf("%d\t%f\n", id, dists[i])
	}
	return nil
}

func runStats(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	dir := fs.String("dir", "", "forest directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *dir == "" {
		return fmt.Errorf("stats: -dir is required")
	}

	opts, err := openExistingOptions(*dir, 0)
	if err != nil {
		return err
	}
	opts.ReadOnly = true
	ix, err := annforest.Open(opts)
	if err != nil {
		return err
	}
	defer ix.Close()

	n, err := ix.GetNItems()
	if err != nil {
		return err
	}
	fmt.Printf("items: %d\n", n)
	return nil
}

// openExistingOptions loads the directory's sidecar options file if
// present (config.Load), falling back to DefaultOptions(dim) with
// SkipHeaderCheck so a bare directory can still be queried.
func openExistingOptions(dir string, dim int) (config.Options, error) {
	sidecarPath := dir + "/forestctl.yaml"
	if opts, err := config.Load(sidecarPath); err == nil {
		opts.Directory = dir
		return opts, nil
	}
	opts := config.DefaultOptions(dim)
	opts.Directory = dir
	opts.SkipHeaderCheck = true
	return opts, nil
}

func parseVec(s string) ([]float32, error) {
	parts := strings.Split(s, ",")
	vec := make([]float32, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("parse vector: %w", err)
		}
		vec[i] = float32(v)
	}
	return vec, nil
}
