package main

import (
	"log"

	tool "go-identity-service/internal/tools/obscheck"
)

func main() {
	if err := tool.NewRootCommand().Execute(); err != nil {
		log.Fatal(err)
	}
}
