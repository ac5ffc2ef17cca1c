package main

import (
	"log"

	"yashubustudio/newsclass/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		log.Fatalf("newsclass: %v", err)
	}
}
