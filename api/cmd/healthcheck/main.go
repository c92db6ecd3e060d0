package main

import (
	"net/http"
	"os"
)

func main() {
	// Points at the API's internal port
	resp, err := http.Get("http://localhost:8080/ping")
	if err != nil || resp.StatusCode != http.StatusOK {
		os.Exit(1) // Docker marks as UNHEALTHY
	}
	os.Exit(0) // Docker marks as HEALTHY
}
