// Command optimize is a terminal front end for the relay. Each line read
// from stdin is sent as the next user message; the answer is printed as it
// streams. Ctrl-C cancels a running answer, or exits when idle.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/comigor/prompt-optimizer/internal/client"
	"github.com/comigor/prompt-optimizer/internal/logger"
)

func main() {
	endpoint := flag.String("endpoint", "http://localhost:8080/api/optimize", "relay endpoint URL")
	logLevel := flag.String("log-level", "error", "log level (debug, info, warn, error)")
	flag.Parse()
	logger.SetLevel(*logLevel)

	if err := run(*endpoint, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(endpoint string, in io.Reader, out io.Writer) error {
	var printed int
	session := client.New(endpoint, client.WithRenderer(func(partial string) {
		// Only the newly arrived suffix is printed.
		fmt.Fprint(out, partial[printed:])
		printed = len(partial)
	}))

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)
	go func() {
		for range interrupts {
			switch session.State() {
			case client.StateSending, client.StateStreaming:
				session.Cancel()
			default:
				os.Exit(130)
			}
		}
	}()

	scanner := bufio.NewScanner(in)
	fmt.Fprint(out, "> ")
	for scanner.Scan() {
		printed = 0
		err := session.Submit(context.Background(), scanner.Text())
		switch {
		case errors.Is(err, client.ErrEmptyInput):
		case err != nil:
			fmt.Fprintf(out, "\nerror: %s\n", session.Err())
		case session.State() == client.StateAborted:
			fmt.Fprintln(out, "\n[cancelled]")
		default:
			if !strings.HasSuffix(session.Pending(), "\n") {
				fmt.Fprintln(out)
			}
		}
		fmt.Fprint(out, "> ")
	}
	return scanner.Err()
}
