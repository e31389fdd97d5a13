package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"net/url"
	"os"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ColeHoward/filedrop/internal/wire"
)

type sample struct {
	latency time.Duration
	bytes   int64
	err     error
}

type results struct {
	mu      sync.Mutex
	samples []sample
	failed  int
}

func (r *results) add(s sample) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.samples = append(r.samples, s)
	if s.err != nil {
		r.failed++
		if r.failed <= 10 {
			fmt.Println("request error:", s.err)
		}
	}
}

func main() {
	concurrency := flag.Int("c", 16, "Number of concurrent connections")
	total := flag.Int("n", 1000, "Number of requests to make")
	rawURL := flag.String("url", "http://localhost:80/download/report.txt", "URL to download")
	chunked := flag.Bool("chunked", false, "Ask the server for a chunked body")
	flag.Parse()

	target, err := url.Parse(*rawURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid url:", err)
		os.Exit(2)
	}

	fmt.Printf("downloading %s %d times over %d connections\n", target, *total, *concurrency)

	var (
		wg   sync.WaitGroup
		next atomic.Int64
		res  results
	)
	start := time.Now()
	for range *concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				n := next.Add(1)
				if n > int64(*total) {
					return
				}
				res.add(fetch(target, *chunked))
				if n%1000 == 0 {
					fmt.Printf("%d requests sent\n", n)
				}
			}
		}()
	}
	wg.Wait()

	report(&res, time.Since(start))
}

// fetch downloads target over a fresh connection and reads the response the
// way the server frames it
func fetch(target *url.URL, chunked bool) sample {
	began := time.Now()
	n, err := download(target, chunked)
	return sample{latency: time.Since(began), bytes: n, err: err}
}

func download(target *url.URL, chunked bool) (int64, error) {
	conn, err := net.DialTimeout("tcp", target.Host, 10*time.Second)
	if err != nil {
		return 0, err
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(10 * time.Second))

	req := "GET " + target.RequestURI() + " HTTP/1.1\r\n"
	if chunked {
		// the server mirrors the request's framing
		req += "Transfer-Encoding: chunked\r\n"
	}
	if _, err := io.WriteString(conn, req+"\r\n"); err != nil {
		return 0, err
	}

	tp := textproto.NewReader(bufio.NewReader(conn))
	status, err := tp.ReadLine()
	if err != nil {
		return 0, err
	}
	header, err := tp.ReadMIMEHeader()
	if err != nil {
		return 0, err
	}
	if status != "HTTP/1.1 200 OK" {
		return 0, fmt.Errorf("unexpected status %q", status)
	}

	var body io.Reader
	if header.Get("Transfer-Encoding") == "chunked" {
		body = wire.NewChunkedReader(tp.R)
	} else {
		size, err := strconv.ParseInt(header.Get("Content-Length"), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("bad Content-Length: %w", err)
		}
		body = io.LimitReader(tp.R, size)
	}
	return io.Copy(io.Discard, body)
}

func report(res *results, elapsed time.Duration) {
	if len(res.samples) == 0 {
		fmt.Println("no requests were made")
		return
	}

	latencies := make([]time.Duration, 0, len(res.samples))
	var sum time.Duration
	var received int64
	for _, s := range res.samples {
		latencies = append(latencies, s.latency)
		sum += s.latency
		received += s.bytes
	}
	slices.Sort(latencies)

	count := len(latencies)
	fmt.Println()
	fmt.Printf("requests:      %d (%d failed)\n", count, res.failed)
	fmt.Printf("bytes:         %d\n", received)
	fmt.Printf("elapsed:       %v\n", elapsed)
	fmt.Printf("throughput:    %.2f req/s\n", float64(count)/elapsed.Seconds())
	fmt.Printf("latency min:   %v\n", latencies[0])
	fmt.Printf("latency avg:   %v\n", sum/time.Duration(count))
	fmt.Printf("latency p99:   %v\n", latencies[count*99/100])
	fmt.Printf("latency max:   %v\n", latencies[count-1])
}
