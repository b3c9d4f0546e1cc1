package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/danielpatrickdp/emotion-core/internal/backend"
	"github.com/danielpatrickdp/emotion-core/internal/emotion"
)

// #region main
func main() {
	addr := envOr("SCORING_ADDR", "localhost:50051")
	calibPath := envOr("CALIBRATION_FILE", "")

	remote, err := backend.NewRemote(addr)
	if err != nil {
		log.Fatalf("failed to connect to scoring backend at %s: %v", addr, err)
	}
	defer remote.Close()

	cfg := emotion.DefaultConfig()
	cfg.CalibrationPath = calibPath
	cfg.CanarySchedule = "@every 10m"

	svc, err := emotion.New(remote, cfg)
	if err != nil {
		log.Fatalf("failed to build emotion service: %v", err)
	}
	defer svc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := svc.Warmup(ctx); err != nil {
		log.Printf("warmup failed, continuing: %v", err)
	}
	cancel()

	fmt.Println("Emotion scoring ready.")
	fmt.Printf("  Backend: %s | Calibration: %s\n", addr, orNone(calibPath))
	fmt.Println("Type text to score ('health' for status, 'quit' to exit):")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			break
		}
		if line == "health" {
			printHealth(svc)
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		res, err := svc.Score(ctx, line, 256, 5)
		cancel()
		if err != nil {
			log.Printf("score error: %v", err)
			continue
		}

		for i, ls := range res.TopLabels {
			fmt.Printf("  %d. %-16s %.4f\n", i+1, ls.Label, ls.Probability)
		}
		fmt.Printf("  active=%v valence=%.3f arousal=%.3f\n",
			res.ActiveLabels, res.Valence, res.Arousal)
	}
}

// #endregion main

// #region health
func printHealth(svc *emotion.Service) {
	h := svc.HealthSnapshot()
	fmt.Printf("  canary_ok=%v canary_hash=%d shadow_samples=%d clamped=%d degraded=%v\n",
		h.CanaryOK, h.CanaryHash, h.ShadowSampleCount, h.CalibrationClamped, h.CalibrationDegraded)
	for _, ls := range h.ShadowTopLabels {
		fmt.Printf("  label[%d]: count=%d mean_delta=%+.4f mean_activation=%.3f\n",
			ls.Index, ls.Count, ls.MeanDelta, ls.MeanActivation)
	}
}

// #endregion health

// #region helpers
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func orNone(s string) string {
	if s == "" {
		return "(identity)"
	}
	return s
}

// #endregion helpers
