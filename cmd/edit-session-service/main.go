// Package main is the entry point of edit-session-service (HTTP + WebSocket).
package main

import (
	"log"

	"github.com/markdownpro2/edit-session-service/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
