// seed_offers.go — standalone script to create offers for a batch of service
// orders via the funnel API. Reads one order UUID per line.
//
// Usage:
//
//	go run scripts/seed_offers.go -orders orders.txt -api http://localhost:8700 -caller seed
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
)

func main() {
	ordersPath := flag.String("orders", "orders.txt", "path to file with one order id per line")
	apiURL := flag.String("api", "http://localhost:8700", "funnel API base URL")
	callerID := flag.String("caller", "seed", "X-Caller-ID header value")
	mode := flag.String("mode", "offer", "assignment mode: offer or broadcast")
	dryRun := flag.Bool("dry-run", false, "print orders without posting")
	flag.Parse()

	if *mode != "offer" && *mode != "broadcast" {
		log.Fatalf("unsupported mode %q", *mode)
	}

	f, err := os.Open(*ordersPath)
	if err != nil {
		log.Fatalf("open orders file: %v", err)
	}
	defer f.Close()

	client := &http.Client{}
	created, failed := 0, 0

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		orderID := strings.TrimSpace(scanner.Text())
		if orderID == "" || strings.HasPrefix(orderID, "#") {
			continue
		}
		if *dryRun {
			fmt.Printf("would create %s assignment for order %s\n", *mode, orderID)
			continue
		}

		url := fmt.Sprintf("%s/api/v1/orders/%s/assignments/%s", *apiURL, orderID, *mode)
		req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(nil))
		if err != nil {
			log.Fatalf("build request: %v", err)
		}
		req.Header.Set("X-Caller-ID", *callerID)
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			log.Printf("order %s: %v", orderID, err)
			failed++
			continue
		}
		if resp.StatusCode == http.StatusCreated {
			created++
		} else {
			var body map[string]interface{}
			_ = json.NewDecoder(resp.Body).Decode(&body)
			log.Printf("order %s: status %d, error=%v", orderID, resp.StatusCode, body["error"])
			failed++
		}
		resp.Body.Close()
	}
	if err := scanner.Err(); err != nil {
		log.Fatalf("read orders file: %v", err)
	}

	fmt.Printf("done: %d created, %d failed\n", created, failed)
}
