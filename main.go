package main

import (
	"fmt"

	_ "github.com/agentuity/go-memo/cache"
	_ "github.com/agentuity/go-memo/env"
	_ "github.com/agentuity/go-memo/logger"
	_ "github.com/agentuity/go-memo/resilience"
	_ "github.com/agentuity/go-memo/tui"
)

func main() {
	fmt.Println("go-memo: see cmd/memo for the command line tool")
}
