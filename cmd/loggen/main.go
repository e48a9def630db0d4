// loggen writes synthetic function-invocation logs (START/END/REPORT
// framing with JSON and plain app lines) to a file or stdout, for
// feeding tailview -file during development.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
)

func main() {
	var (
		outPath     string
		toStdout    bool
		rate        float64
		durationStr string
		fragments   bool
	)

	flag.StringVar(&outPath, "out", "simulated.log", "output file path")
	flag.BoolVar(&toStdout, "stdout", false, "write to stdout instead of a file")
	flag.Float64Var(&rate, "rate", 5.0, "lines per second")
	flag.StringVar(&durationStr, "duration", "", "optional run duration (e.g. 30s, 2m); empty runs until interrupted")
	flag.BoolVar(&fragments, "fragments", false, "occasionally split large JSON lines to exercise fragment merging")
	flag.Parse()

	abort := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		close(abort)
	}()

	var deadline time.Time
	if durationStr != "" {
		d, err := time.ParseDuration(durationStr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid duration: %v\n", err)
			os.Exit(2)
		}
		deadline = time.Now().Add(d)
	}

	out := os.Stdout
	if !toStdout {
		f, err := os.OpenFile(outPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open %s: %v\n", outPath, err)
			os.Exit(1)
		}
		defer f.Close()
		out = f
		fmt.Fprintf(os.Stderr, "generating invocation logs -> %s at %.2f lines/s\n", outPath, rate)
	}

	w := bufio.NewWriter(out)
	defer w.Flush()

	if rate <= 0 {
		rate = 1
	}
	ticker := time.NewTicker(time.Duration(float64(time.Second) / rate))
	defer ticker.Stop()

	var pending []string
	cold := true
	for {
		select {
		case <-abort:
			return
		case <-ticker.C:
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return
		}
		if len(pending) == 0 {
			pending = invocation(cold, fragments)
			cold = false
			if rand.Intn(20) == 0 {
				cold = true // simulate a recycled sandbox
			}
		}
		fmt.Fprintln(w, pending[0])
		pending = pending[1:]
		w.Flush()
	}
}

// invocation produces the line script for one synthetic invocation.
func invocation(cold, fragments bool) []string {
	id := fmt.Sprintf("%08x-%04x-%04x", rand.Uint32(), rand.Intn(0xffff), rand.Intn(0xffff))
	dur := 50 + rand.Float64()*400
	mem := 40 + rand.Intn(80)

	var lines []string
	if cold {
		lines = append(lines, fmt.Sprintf("INIT_REPORT Init Duration: %.2f ms Phase: init Status: success", 100+rand.Float64()*900))
	}
	lines = append(lines,
		fmt.Sprintf("START RequestId: %s Version: $LATEST", id),
		fmt.Sprintf(`{"level":"info","msg":"handling request","requestId":"%s","path":"/v1/items"}`, id),
	)
	switch rand.Intn(5) {
	case 0:
		lines = append(lines, fmt.Sprintf(`{"level":"warn","msg":"slow downstream call","latency_ms":%d}`, 200+rand.Intn(500)))
	case 1:
		lines = append(lines, "error: failed to write cache entry, retrying")
	case 2:
		big := fmt.Sprintf(`{"level":"debug","msg":"state dump","requestId":"%s","items":[%s]}`, id, itemList(30))
		if fragments {
			// both halves go out in one write so the tail sees them
			// close enough together to merge
			big = split(big)
		}
		lines = append(lines, big)
	default:
		lines = append(lines, "Database connection established")
	}
	lines = append(lines,
		fmt.Sprintf("END RequestId: %s", id),
		fmt.Sprintf("REPORT RequestId: %s Duration: %.2f ms Billed Duration: %.0f ms Memory Size: 128 MB Max Memory Used: %d MB", id, dur, dur+1, mem),
	)
	return lines
}

func itemList(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf(`{"sku":"item-%04d","qty":%d}`, rand.Intn(10000), 1+rand.Intn(9))
	}
	return strings.Join(parts, ",")
}

// split breaks a JSON line roughly in half, the way log transports
// truncate oversized records.
func split(line string) string {
	mid := len(line) / 2
	return line[:mid] + "\n" + line[mid:]
}
