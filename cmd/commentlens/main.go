package main

import (
	"github.com/rcliao/commentlens/cmd/handlers"
	"github.com/rcliao/commentlens/internal/logger"
)

func main() {
	logger.Init() // Initialize the logger
	handlers.Execute()
}
