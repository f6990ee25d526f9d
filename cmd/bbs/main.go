// Command bbs is a terminal client for the bulletin board backend.
package main

import (
	"fmt"
	"os"

	"github.com/Sternrassler/bbs-client/pkg/client"
)

func main() {
	root, closeApp := newRootCmd()
	err := root.Execute()
	if closeErr := closeApp(); closeErr != nil {
		fmt.Fprintln(os.Stderr, "bbs: shutdown:", closeErr)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "bbs:", userMessage(err))
		os.Exit(1)
	}
}

// userMessage prefers the catalog text of a classified error.
func userMessage(err error) string {
	if ce, ok := client.AsClassified(err); ok {
		msg := ce.UserMessage
		for field, problem := range ce.FieldErrors {
			msg += fmt.Sprintf("\n  %s: %s", field, problem)
		}
		return msg
	}
	return err.Error()
}
