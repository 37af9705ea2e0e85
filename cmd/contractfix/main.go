package main

import (
	"github.com/joho/godotenv"

	"github.com/animus-coder/contractfix/internal/cli"
)

func main() {
	// A missing .env is fine; variables already in the environment win.
	_ = godotenv.Load()
	cli.Execute()
}
