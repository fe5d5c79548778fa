// Package main is the container health probe. It exits 0 when the opshop
// /health endpoint answers 200 and 1 otherwise, so it can run in a distroless
// image with no shell. The port follows OPSHOP_PORT when set. Build with
// CGO_ENABLED=0 for a static binary.
package main

import (
	"net/http"
	"opshop/internal/version"
	"os"
	"time"
)

func main() {
	port := os.Getenv("OPSHOP_PORT")
	if port == "" {
		port = "8080"
	}

	req, err := http.NewRequest(http.MethodGet, "http://localhost:"+port+"/health", nil)
	if err != nil {
		os.Exit(1)
	}
	req.Header.Set("User-Agent", version.GetInfo().UserAgent())

	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		os.Exit(1)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		os.Exit(1)
	}
}
