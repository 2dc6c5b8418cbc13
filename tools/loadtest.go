// Command loadtest posts synthetic power-quality samples to the ingest API.
//
//	go run tools/loadtest.go -url http://localhost:8080/api/measurements -workers 8 -duration 30s
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"
)

type result struct {
	mu        sync.Mutex
	latencies []time.Duration
	statuses  map[int]int
	failed    int
}

func (r *result) record(status int, latency time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.failed++
		return
	}
	r.statuses[status]++
	r.latencies = append(r.latencies, latency)
}

func main() {
	url := flag.String("url", "http://localhost:8080/api/measurements", "ingest endpoint")
	workers := flag.Int("workers", 4, "concurrent senders")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	disturb := flag.Float64("disturb", 0.05, "fraction of samples with a voltage or THD disturbance")
	flag.Parse()

	if *workers < 1 {
		fmt.Fprintln(os.Stderr, "workers must be at least 1")
		os.Exit(1)
	}

	fmt.Printf("Load test: url=%s workers=%d duration=%v disturb=%.2f\n\n", *url, *workers, *duration, *disturb)

	res := &result{statuses: make(map[int]int)}
	start := time.Now()
	deadline := start.Add(*duration)

	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	var wg sync.WaitGroup
	for i := 0; i < *workers; i++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for time.Now().Before(deadline) {
				send(client, *url, syntheticSample(rng, *disturb), res)
			}
		}(start.UnixNano() + int64(i))
	}
	wg.Wait()

	printResults(res, time.Since(start))
}

// syntheticSample produces a plausible single-phase reading around 230 V / 50 Hz.
func syntheticSample(rng *rand.Rand, disturb float64) map[string]any {
	voltage := 230 + rng.NormFloat64()*2
	thd := 1.5 + rng.Float64()*2
	if rng.Float64() < disturb {
		switch rng.Intn(3) {
		case 0:
			voltage = 195 + rng.Float64()*10
		case 1:
			voltage = 255 + rng.Float64()*10
		default:
			thd = 8.5 + rng.Float64()*3
		}
	}

	current := 5 + rng.Float64()*10
	cosPhi := 0.88 + rng.Float64()*0.12
	apparent := voltage * current
	active := apparent * cosPhi
	reactive := math.Sqrt(apparent*apparent - active*active)

	harmonicsV := make([]float64, 8)
	harmonicsI := make([]float64, 8)
	harmonicsV[0], harmonicsI[0] = voltage, current
	for n := 1; n < 8; n++ {
		harmonicsV[n] = voltage * thd / 100 / float64(n+1)
		harmonicsI[n] = current * 0.05 / float64(n+1)
	}

	return map[string]any{
		"timestamp":      time.Now().Unix(),
		"voltage_rms":    voltage,
		"current_rms":    current,
		"frequency":      50 + rng.NormFloat64()*0.05,
		"power_active":   active,
		"power_apparent": apparent,
		"power_reactive": reactive,
		"cos_phi":        cosPhi,
		"thd_voltage":    thd,
		"thd_current":    3 + rng.Float64()*2,
		"harmonics_v":    harmonicsV,
		"harmonics_i":    harmonicsI,
	}
}

func send(client *http.Client, url string, sample map[string]any, res *result) {
	body, _ := json.Marshal(sample)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		res.record(0, 0, err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := client.Do(req)
	latency := time.Since(start)
	if err != nil {
		res.record(0, latency, err)
		return
	}
	resp.Body.Close()
	res.record(resp.StatusCode, latency, nil)
}

func printResults(res *result, elapsed time.Duration) {
	res.mu.Lock()
	defer res.mu.Unlock()

	lat := res.latencies
	sort.Slice(lat, func(i, j int) bool { return lat[i] < lat[j] })
	total := len(lat) + res.failed

	percentile := func(p int) time.Duration {
		if len(lat) == 0 {
			return 0
		}
		idx := len(lat) * p / 100
		if idx >= len(lat) {
			idx = len(lat) - 1
		}
		return lat[idx]
	}

	fmt.Println("==========================================")
	fmt.Println("Load Test Results")
	fmt.Println("==========================================")
	fmt.Printf("Duration:       %v\n", elapsed)
	fmt.Printf("Total Requests: %d\n", total)
	fmt.Printf("Transport Errs: %d\n", res.failed)
	fmt.Printf("Requests/sec:   %.2f\n", float64(total)/elapsed.Seconds())
	fmt.Println("\nStatus codes:")
	for code, n := range res.statuses {
		fmt.Printf("  %d: %d\n", code, n)
	}
	if len(lat) > 0 {
		fmt.Println("\nLatency:")
		fmt.Printf("  Min: %v\n", lat[0])
		fmt.Printf("  p50: %v\n", percentile(50))
		fmt.Printf("  p95: %v\n", percentile(95))
		fmt.Printf("  p99: %v\n", percentile(99))
		fmt.Printf("  Max: %v\n", lat[len(lat)-1])
	}
	fmt.Println("==========================================")
}
