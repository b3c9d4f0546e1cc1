package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/danielpatrickdp/emotion-core/internal/backend"
	"github.com/danielpatrickdp/emotion-core/internal/emotion"
	"github.com/danielpatrickdp/emotion-core/internal/memo"
	"github.com/danielpatrickdp/emotion-core/internal/scorelog"
)

// #region transcript

// transcriptLine is one JSONL record of the input transcript.
type transcriptLine struct {
	Text string `json:"text"`
}

// #endregion transcript

// #region main

func main() {
	transcriptPath := flag.String("transcript", "", "path to JSONL transcript ({\"text\": ...} per line)")
	dbPath := flag.String("db", "scorelog.db", "output sqlite database")
	calibPath := flag.String("calibration", "", "calibration YAML (empty = identity)")
	addr := flag.String("addr", "localhost:50051", "scoring backend address")
	maxLength := flag.Int("max-length", 256, "truncation budget per text")
	topK := flag.Int("top-k", 5, "top labels per result")
	flag.Parse()

	if *transcriptPath == "" {
		fmt.Fprintln(os.Stderr, "usage: calibrate --transcript path/to/transcript.jsonl [--db out.db] [--calibration file.yaml] [--addr host:port]")
		os.Exit(2)
	}
	os.Exit(run(*transcriptPath, *dbPath, *calibPath, *addr, *maxLength, *topK))
}

// #endregion main

// #region run

func run(transcriptPath, dbPath, calibPath, addr string, maxLength, topK int) int {
	f, err := os.Open(transcriptPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open transcript: %v\n", err)
		return 2
	}
	defer f.Close()

	store, err := scorelog.NewStore(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open scorelog db: %v\n", err)
		return 2
	}
	defer store.Close()

	remote, err := backend.NewRemote(addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect backend: %v\n", err)
		return 2
	}
	defer remote.Close()

	cfg := emotion.DefaultConfig()
	cfg.CalibrationPath = calibPath

	svc, err := emotion.New(remote, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build service: %v\n", err)
		return 2
	}
	defer svc.Close()

	seen := make(map[string]bool)
	var turns, cacheHits, failures int

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var line transcriptLine
		if err := json.Unmarshal(raw, &line); err != nil {
			fmt.Fprintf(os.Stderr, "skipping malformed line: %v\n", err)
			continue
		}
		if line.Text == "" {
			continue
		}

		turns++
		key := memo.NormalizeKey(line.Text)
		cacheHit := seen[key]
		seen[key] = true
		if cacheHit {
			cacheHits++
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		res, err := svc.Score(ctx, line.Text, maxLength, topK)
		cancel()
		if err != nil {
			failures++
			fmt.Fprintf(os.Stderr, "score failed for turn %d: %v\n", turns, err)
			continue
		}

		ev := scorelog.Event{
			Text:     key,
			CacheHit: cacheHit,
			Valence:  res.Valence,
			Arousal:  res.Arousal,
		}
		if len(res.TopLabels) > 0 {
			ev.TopLabel = res.TopLabels[0].Label
			ev.TopProbability = res.TopLabels[0].Probability
		}
		ev.Probabilities = res.Probabilities

		if err := store.Record(ev); err != nil {
			fmt.Fprintf(os.Stderr, "record event: %v\n", err)
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "read transcript: %v\n", err)
		return 2
	}

	printSummary(store, turns, cacheHits, failures)
	return 0
}

// #endregion run

// #region summary

func printSummary(store *scorelog.Store, turns, cacheHits, failures int) {
	fmt.Printf("Replayed %d turns (%d cache hits, %d failures)\n", turns, cacheHits, failures)

	summaries, err := store.Summary()
	if err != nil {
		fmt.Fprintf(os.Stderr, "summary: %v\n", err)
		return
	}
	fmt.Printf("%-16s %8s %10s %10s %10s\n", "label", "count", "mean_prob", "valence", "arousal")
	for _, ls := range summaries {
		fmt.Printf("%-16s %8d %10.4f %+10.3f %+10.3f\n",
			ls.Label, ls.Count, ls.MeanTopProb, ls.MeanValence, ls.MeanArousal)
	}
}

// #endregion summary
