package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/danielpatrickdp/emotion-core/internal/scorelog"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to scorelog sqlite database")
	last := flag.Int("last", 0, "also show the N most recent events")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/scorelog.db [--last N] [--json]")
		os.Exit(2)
	}

	store, err := scorelog.NewStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	if err := run(store, *last, *jsonOut); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region run

func run(store *scorelog.Store, last int, jsonOut bool) error {
	summaries, err := store.Summary()
	if err != nil {
		return err
	}

	var recent []scorelog.Event
	if last > 0 {
		recent, err = store.ListRecent(last)
		if err != nil {
			return err
		}
	}

	if jsonOut {
		return json.NewEncoder(os.Stdout).Encode(struct {
			Labels []scorelog.LabelSummary `json:"labels"`
			Recent []scorelog.Event        `json:"recent,omitempty"`
		}{Labels: summaries, Recent: recent})
	}

	fmt.Printf("%-16s %8s %10s %10s %10s\n", "label", "count", "mean_prob", "valence", "arousal")
	for _, ls := range summaries {
		fmt.Printf("%-16s %8d %10.4f %+10.3f %+10.3f\n",
			ls.Label, ls.Count, ls.MeanTopProb, ls.MeanValence, ls.MeanArousal)
	}

	if len(recent) > 0 {
		fmt.Printf("\nrecent events:\n")
		for _, ev := range recent {
			hit := " "
			if ev.CacheHit {
				hit = "*"
			}
			fmt.Printf("%s %-16s %.4f v=%+.3f a=%+.3f  %s\n",
				hit, ev.TopLabel, ev.TopProbability, ev.Valence, ev.Arousal, ev.Text)
		}
	}
	return nil
}

// #endregion run
