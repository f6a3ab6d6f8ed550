// hiredraft-poll submits one message to a running gateway and polls until
// the job reaches a terminal state, then prints the extracted answer.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/hiredraft/hiredraft/internal/jobclient"
)

func main() {
	_ = godotenv.Load()

	var (
		message  = flag.String("message", "", "user message to submit (required)")
		chatID   = flag.String("chat", "", "conversation id (a fresh one is assigned when empty)")
		baseURL  = flag.String("url", os.Getenv("HIREDRAFT_API_URL"), "gateway base URL")
		token    = flag.String("token", os.Getenv("HIREDRAFT_API_TOKEN"), "gateway bearer token")
		interval = flag.Duration("interval", 2*time.Second, "polling interval")
		timeout  = flag.Duration("timeout", 5*time.Minute, "give up after this long")
	)
	flag.Parse()

	if *message == "" {
		fmt.Fprintln(os.Stderr, "error: -message is required")
		flag.Usage()
		os.Exit(2)
	}

	client, err := jobclient.New(*baseURL, *token)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	kickoffID, err := client.Kickoff(ctx, *message, *chatID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "kickoff failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "kickoff id: %s\n", kickoffID)

	status, err := client.PollUntilDone(ctx, kickoffID, *interval)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gave up polling: %v (last state %s)\n", err, status.State)
		os.Exit(1)
	}

	switch status.State {
	case "SUCCESS":
		answer := jobclient.ExtractAnswer(status.Result)
		if answer == "" {
			fmt.Fprintln(os.Stderr, "job succeeded but no answer field was present")
			os.Exit(1)
		}
		fmt.Println(answer)
	default:
		fmt.Fprintf(os.Stderr, "job ended in %s: %s\n", status.State, status.ProgressNote)
		os.Exit(1)
	}
}
